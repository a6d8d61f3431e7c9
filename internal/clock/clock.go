// Package clock implements the simulated timeline that drives segment loading.
package clock

import (
	"fmt"
	"strings"
	"time"
)

// RangePolicy decides what happens when the clock runs past its stop time.
type RangePolicy int

const (
	// Unbounded lets the clock run past stop.
	Unbounded RangePolicy = iota
	// Clamped holds the clock at stop.
	Clamped
	// LoopStop wraps the clock back to start.
	LoopStop
)

// ParseRange maps CZML-style range names to a policy.
func ParseRange(s string) (RangePolicy, error) {
	switch strings.ToUpper(strings.ReplaceAll(s, "-", "_")) {
	case "", "UNBOUNDED":
		return Unbounded, nil
	case "CLAMPED":
		return Clamped, nil
	case "LOOP_STOP", "LOOP":
		return LoopStop, nil
	default:
		return Unbounded, fmt.Errorf("unknown clock range %q", s)
	}
}

func (r RangePolicy) String() string {
	switch r {
	case Clamped:
		return "CLAMPED"
	case LoopStop:
		return "LOOP_STOP"
	default:
		return "UNBOUNDED"
	}
}

// Settings configures a Clock.
type Settings struct {
	Start time.Time
	// Stop may be zero for an open-ended timeline.
	Stop       time.Time
	Multiplier float64
	Range      RangePolicy
}

// Clock tracks simulated time. It is advanced by wall-clock deltas passed to
// Tick and is not safe for concurrent use.
type Clock struct {
	settings      Settings
	current       time.Time
	lastWall      time.Time
	shouldAnimate bool
}

// New creates a clock positioned at its start time and animating.
func New(s Settings) *Clock {
	if s.Multiplier == 0 {
		s.Multiplier = 1
	}
	return &Clock{
		settings:      s,
		current:       s.Start,
		shouldAnimate: true,
	}
}

// Tick advances the clock by the wall time elapsed since the previous tick,
// scaled by the multiplier, and returns the new offset from start in seconds.
// The first tick only establishes the wall reference.
func (c *Clock) Tick(now time.Time) float64 {
	if !c.lastWall.IsZero() && c.shouldAnimate {
		delta := now.Sub(c.lastWall)
		c.current = c.current.Add(time.Duration(float64(delta) * c.settings.Multiplier))
		c.applyRange()
	}
	c.lastWall = now
	return c.Offset()
}

func (c *Clock) applyRange() {
	stop := c.settings.Stop
	if stop.IsZero() || !c.current.After(stop) {
		return
	}
	switch c.settings.Range {
	case Clamped:
		c.current = stop
	case LoopStop:
		c.current = c.settings.Start
	}
}

// Seek moves the clock to offset seconds from start. Negative offsets clamp to start.
func (c *Clock) Seek(offset float64) {
	if offset < 0 {
		offset = 0
	}
	c.current = c.settings.Start.Add(time.Duration(offset * float64(time.Second)))
	c.applyRange()
}

// Reset returns the clock to its start time and resumes animation.
func (c *Clock) Reset() {
	c.current = c.settings.Start
	c.shouldAnimate = true
}

// SetAnimating pauses or resumes the clock.
func (c *Clock) SetAnimating(animate bool) {
	c.shouldAnimate = animate
}

// Animating reports whether ticks advance the clock.
func (c *Clock) Animating() bool {
	return c.shouldAnimate
}

// Offset returns the elapsed seconds from start to the current time.
func (c *Clock) Offset() float64 {
	return c.current.Sub(c.settings.Start).Seconds()
}

// CurrentTime returns the current simulated time.
func (c *Clock) CurrentTime() time.Time {
	return c.current
}

// StartTime returns the configured start time.
func (c *Clock) StartTime() time.Time {
	return c.settings.Start
}
