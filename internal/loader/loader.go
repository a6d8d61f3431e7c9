// Package loader streams a multi-part document into a data source as a
// simulated clock approaches each part's time range.
//
// A Loader is driven from a single goroutine. Ticks, fetch completions and
// resets must be serialized by the caller; the session package does so with
// an event loop. A fetch is handed to the Requester only after its segment has
// been marked requested, so interleaved ticks can never issue it twice.
package loader

import (
	"czmlstream/internal/czml"
	"czmlstream/internal/logger"
	"czmlstream/internal/models"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidSegments is returned by New for an unusable segment list.
	ErrInvalidSegments = errors.New("invalid segment list")
	// ErrStaleCompletion is returned by Complete for a fetch issued before the last reset.
	ErrStaleCompletion = errors.New("stale completion from an earlier generation")
)

// Requester issues the asynchronous fetch for a request. It must not block
// and must not call back into the loader; the completion is delivered later
// through Complete.
type Requester interface {
	Request(req models.FetchRequest)
}

// RequesterFunc adapts a function to a Requester.
type RequesterFunc func(req models.FetchRequest)

// Request calls f(req).
func (f RequesterFunc) Request(req models.FetchRequest) { f(req) }

// Store is the merged dataset the loader feeds.
type Store interface {
	Process(data []byte) error
	RemoveAll()
	GetByID(id string) (*czml.Entity, bool)
}

// Observer receives the status projection after every state change.
type Observer interface {
	StatusChanged(statuses []SegmentStatus)
}

// ObserverFunc adapts a function to an Observer.
type ObserverFunc func(statuses []SegmentStatus)

// StatusChanged calls f(statuses).
func (f ObserverFunc) StatusChanged(statuses []SegmentStatus) { f(statuses) }

// Options tunes a Loader.
type Options struct {
	// Preload is how many seconds before a segment's start it may be fetched.
	Preload float64
	// TrackedID is the entity followed once content arrives.
	TrackedID string
	// Observer is optional.
	Observer Observer
	// NewID generates request ids. Defaults to random UUIDs.
	NewID func() string
}

// Loader fetches each segment once, inside its preload window.
type Loader struct {
	segments   []models.Segment
	preload    float64
	trackedID  string
	tracked    *czml.Entity
	generation uint64
	// lastOffset is where the previous tick swept to; it is meaningless
	// while sweepKnown is false.
	lastOffset float64
	sweepKnown bool

	store     Store
	requester Requester
	observer  Observer
	logger    logger.Logger
	newID     func() string
}

// New validates segments and returns a loader with nothing requested yet.
// Segments must be in range order and must not overlap.
func New(log logger.Logger, store Store, requester Requester, segments []models.Segment, opts Options) (*Loader, error) {
	if err := validate(segments, opts.Preload); err != nil {
		return nil, err
	}

	owned := make([]models.Segment, len(segments))
	for i, seg := range segments {
		owned[i] = models.Segment{Source: seg.Source, Range: seg.Range}
	}

	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	// A fresh loader sits at the start of the timeline.
	return &Loader{
		segments:   owned,
		preload:    opts.Preload,
		trackedID:  opts.TrackedID,
		store:      store,
		requester:  requester,
		observer:   opts.Observer,
		logger:     log,
		newID:      newID,
		sweepKnown: true,
	}, nil
}

func validate(segments []models.Segment, preload float64) error {
	if preload < 0 {
		return fmt.Errorf("%w: preload window %g is negative", ErrInvalidSegments, preload)
	}
	if len(segments) == 0 {
		return fmt.Errorf("%w: no segments", ErrInvalidSegments)
	}
	for i, seg := range segments {
		if seg.Source == "" {
			return fmt.Errorf("%w: segment %d has no source", ErrInvalidSegments, i)
		}
		if seg.Range.Start > seg.Range.End {
			return fmt.Errorf("%w: segment %s has range %s with start after end", ErrInvalidSegments, seg.Source, seg.Range)
		}
		if i > 0 && seg.Range.Start < segments[i-1].Range.End {
			return fmt.Errorf("%w: segment %s overlaps or precedes %s", ErrInvalidSegments, seg.Source, segments[i-1].Source)
		}
	}
	return nil
}

// Start requests the first segment up front if it has not been requested.
func (l *Loader) Start() {
	if !l.segments[0].Requested {
		l.loadSegment(0)
	}
}

// OnTick requests every not-yet-requested segment whose preload window
// contains offset, in range order. When offset jumps forward, every window
// swept since the previous tick counts as well, so a fast-forward over
// several segments requests all of them in this one call. Jumping backward
// only considers offset itself, as does the first tick after Reset.
func (l *Loader) OnTick(offset float64) {
	from := offset
	if l.sweepKnown && offset > l.lastOffset {
		from = l.lastOffset
	}
	l.lastOffset = offset
	l.sweepKnown = true

	for i := range l.segments {
		seg := &l.segments[i]
		if !seg.Requested && seg.Range.Crossed(from, offset, l.preload) {
			l.loadSegment(i)
		}
	}
}

func (l *Loader) loadSegment(i int) {
	seg := &l.segments[i]
	seg.Requested = true
	seg.Err = nil

	req := models.FetchRequest{
		ID:         l.newID(),
		Index:      i,
		Source:     seg.Source,
		Generation: l.generation,
	}
	l.logger.Infof("Requesting segment %s %s (request %s)", seg.Source, seg.Range, req.ID)
	l.publish()
	l.requester.Request(req)
}

// Complete applies the outcome of a fetch. A failed fetch or unparseable
// content leaves the segment requested but not loaded, and it is not
// retried. Completions from before the latest Reset are discarded.
func (l *Loader) Complete(req models.FetchRequest, data []byte, fetchErr error) error {
	if req.Generation != l.generation {
		l.logger.Debugf("Discarding completion for %s from generation %d (current %d)", req.Source, req.Generation, l.generation)
		return ErrStaleCompletion
	}
	if req.Index < 0 || req.Index >= len(l.segments) {
		return fmt.Errorf("completion for unknown segment index %d", req.Index)
	}

	seg := &l.segments[req.Index]
	if seg.Loaded {
		return nil
	}

	if fetchErr != nil {
		seg.Err = fetchErr
		l.logger.Warnf("Failed to fetch segment %s: %v", seg.Source, fetchErr)
		l.publish()
		return fmt.Errorf("segment %s: %w", seg.Source, fetchErr)
	}

	if err := l.store.Process(data); err != nil {
		seg.Err = err
		l.logger.Warnf("Failed to merge segment %s: %v", seg.Source, err)
		l.publish()
		return fmt.Errorf("segment %s: %w", seg.Source, err)
	}

	seg.Loaded = true
	l.logger.Infof("Loaded segment %s", seg.Source)

	l.resolveTracked()

	l.publish()
	return nil
}

// Reset forgets every segment's progress, empties the store and requests
// the first segment again immediately. Fetches still in flight are not
// cancelled; their completions are discarded.
func (l *Loader) Reset() {
	for i := range l.segments {
		l.segments[i].Requested = false
		l.segments[i].Loaded = false
		l.segments[i].Err = nil
	}
	l.store.RemoveAll()
	l.tracked = nil
	l.sweepKnown = false
	l.generation++
	l.logger.Infof("Loader reset, generation %d", l.generation)

	l.publish()
	l.loadSegment(0)
}

// resolveTracked points tracked at the store's current entity for
// trackedID. A delete packet followed by a re-declaration replaces the
// entity, and a delete on its own clears it.
func (l *Loader) resolveTracked() {
	if l.trackedID == "" {
		return
	}
	entity, found := l.store.GetByID(l.trackedID)
	switch {
	case found && entity != l.tracked:
		if l.tracked == nil {
			l.logger.Infof("Tracking entity %s", l.trackedID)
		} else {
			l.logger.Infof("Tracked entity %s was redeclared, following the new one", l.trackedID)
		}
		l.tracked = entity
	case !found && l.tracked != nil:
		l.logger.Infof("Tracked entity %s was deleted", l.trackedID)
		l.tracked = nil
	}
}

// SampleTrackedProperty returns the tracked entity's named property at t.
// The boolean is false if nothing is tracked, the entity is not available
// at t, or the property has no value then.
func (l *Loader) SampleTrackedProperty(t time.Time, name string) (czml.Value, bool) {
	if l.tracked == nil || !l.tracked.IsAvailable(t) {
		return nil, false
	}
	return l.tracked.Sample(name, t)
}

// Tracked returns the followed entity, if one has been found.
func (l *Loader) Tracked() (*czml.Entity, bool) {
	return l.tracked, l.tracked != nil
}

// Segments returns a copy of the segment list.
func (l *Loader) Segments() []models.Segment {
	out := make([]models.Segment, len(l.segments))
	copy(out, l.segments)
	return out
}

// Generation returns the number of resets performed.
func (l *Loader) Generation() uint64 {
	return l.generation
}

// Preload returns the preload window in seconds.
func (l *Loader) Preload() float64 {
	return l.preload
}

func (l *Loader) publish() {
	if l.observer == nil {
		return
	}
	l.observer.StatusChanged(l.Status())
}
