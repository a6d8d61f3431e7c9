package loader

import (
	"czmlstream/internal/models"
	"fmt"
	"strings"
)

// State is the display state of one segment.
type State int

const (
	NotNeeded State = iota
	Loading
	Loaded
)

func (s State) String() string {
	switch s {
	case Loaded:
		return "Loaded."
	case Loading:
		return "Loading now..."
	default:
		return "Not needed yet."
	}
}

// Key returns a stable machine-readable name for the state.
func (s State) Key() string {
	switch s {
	case Loaded:
		return "loaded"
	case Loading:
		return "loading"
	default:
		return "not_needed"
	}
}

// SegmentStatus is one line of the status projection.
type SegmentStatus struct {
	Source string
	Range  models.Range
	State  State
	// Err is set when the segment's fetch failed; the state then stays Loading.
	Err error
}

func statusOf(seg models.Segment) SegmentStatus {
	st := SegmentStatus{Source: seg.Source, Range: seg.Range, Err: seg.Err}
	switch {
	case seg.Loaded:
		st.State = Loaded
	case seg.Requested:
		st.State = Loading
	default:
		st.State = NotNeeded
	}
	return st
}

// Status returns the per-segment projection in range order.
func (l *Loader) Status() []SegmentStatus {
	out := make([]SegmentStatus, len(l.segments))
	for i, seg := range l.segments {
		out[i] = statusOf(seg)
	}
	return out
}

// FormatStatus renders the projection one segment per line.
func FormatStatus(statuses []SegmentStatus) string {
	var sb strings.Builder
	for _, st := range statuses {
		sb.WriteString(fmt.Sprintf("%s - %s", st.Source, st.State))
		if st.Err != nil {
			sb.WriteString(fmt.Sprintf(" (failed: %v)", st.Err))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
