package models

import "fmt"

// Range is a half-open interval [Start, End) in seconds from the clock start.
type Range struct {
	Start float64
	End   float64
}

// Contains reports whether offset falls inside the range window, widened by
// preload seconds before Start. End is inclusive here, matching the loader's
// eligibility rule.
func (r Range) Contains(offset, preload float64) bool {
	return r.Crossed(offset, offset, preload)
}

// Crossed reports whether the preload-widened window [Start-preload, End]
// intersects the span [from, to] swept by the clock.
func (r Range) Crossed(from, to, preload float64) bool {
	return from <= r.End && to >= r.Start-preload
}

func (r Range) String() string {
	return fmt.Sprintf("[%g, %g)", r.Start, r.End)
}

// Segment represents one independently fetched chunk of a multi-part document.
type Segment struct {
	// Source is the locator handed to the fetcher, usually a relative URL or file name.
	Source string
	// Range is the time span the segment's content covers.
	Range Range
	// Requested is set once a fetch has been issued.
	Requested bool
	// Loaded is set once the fetched content has been merged.
	Loaded bool
	// Err holds the last fetch or merge failure, if any.
	Err error
}

// FetchRequest is handed to the transport for every issued segment fetch.
type FetchRequest struct {
	// ID is unique per request and only used for log correlation.
	ID string
	// Index is the segment's position in the loader's list.
	Index int
	// Source is copied from the segment.
	Source string
	// Generation is the loader's reset counter at issue time.
	Generation uint64
}
