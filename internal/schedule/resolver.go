// Package schedule resolves which time window of chat records belongs to the
// next scheduled report. Reports fire at fixed hour-of-day checkpoints; the
// window for a run is bounded by the two most recently passed checkpoints.
package schedule

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoCheckpoints is returned when a resolver is constructed without any
// checkpoint hours.
var ErrNoCheckpoints = errors.New("schedule: checkpoint list is empty")

// Window is the half-open interval [Start, End) of records attributed to one
// report run. End is the instant of the most recently passed checkpoint;
// Start is the checkpoint before it, wrapping to the previous day as needed.
type Window struct {
	Start time.Time
	End   time.Time
}

// Duration returns the length of the window.
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Resolver maps an instant to the report window it belongs to. It is a pure
// function of its configuration and the supplied instant: no I/O, no clock,
// no shared state. Safe for concurrent use.
type Resolver struct {
	checkpoints []int
	minute      int
	loc         *time.Location
}

// NewResolver validates the checkpoint configuration and returns a resolver.
// Checkpoints are hour-of-day values (0-23) in loc, strictly ascending.
// The minute offset (0-59) applies to every checkpoint. A nil loc means UTC.
func NewResolver(checkpoints []int, minute int, loc *time.Location) (*Resolver, error) {
	if len(checkpoints) == 0 {
		return nil, ErrNoCheckpoints
	}
	if minute < 0 || minute > 59 {
		return nil, fmt.Errorf("schedule: minute offset %d out of range", minute)
	}
	for i, h := range checkpoints {
		if h < 0 || h > 23 {
			return nil, fmt.Errorf("schedule: checkpoint hour %d out of range", h)
		}
		if i > 0 && h <= checkpoints[i-1] {
			return nil, fmt.Errorf("schedule: checkpoint hours must be strictly ascending, got %d after %d", h, checkpoints[i-1])
		}
	}
	if loc == nil {
		loc = time.UTC
	}
	hours := make([]int, len(checkpoints))
	copy(hours, checkpoints)
	return &Resolver{checkpoints: hours, minute: minute, loc: loc}, nil
}

// Checkpoints returns a copy of the configured checkpoint hours.
func (r *Resolver) Checkpoints() []int {
	hours := make([]int, len(r.checkpoints))
	copy(hours, r.checkpoints)
	return hours
}

// Resolve returns the report window for the given instant.
//
// The most recent checkpoint at or before now's hour closes the window. When
// no checkpoint has passed yet today the list wraps: the previous day's final
// checkpoint closes the window, and the window start falls one further day
// back. now.Hour() exactly equal to a checkpoint counts as passed.
func (r *Resolver) Resolve(now time.Time) (Window, error) {
	if now.IsZero() {
		return Window{}, errors.New("schedule: zero instant")
	}
	now = now.In(r.loc)

	last := -1
	idx := -1
	for i, h := range r.checkpoints {
		if h <= now.Hour() {
			last = h
			idx = i
		}
	}

	wrapped := false
	if last == -1 {
		// Nothing has fired yet today; the previous cycle's final
		// checkpoint closes the window.
		idx = len(r.checkpoints) - 1
		last = r.checkpoints[idx]
		wrapped = true
	}

	endDay := now
	if wrapped {
		endDay = now.AddDate(0, 0, -1)
	}
	end := time.Date(endDay.Year(), endDay.Month(), endDay.Day(), last, r.minute, 0, 0, r.loc)

	prevIdx := idx - 1
	prevWrapped := false
	if prevIdx < 0 {
		prevIdx = len(r.checkpoints) - 1
		prevWrapped = true
	}
	prev := r.checkpoints[prevIdx]

	startDay := end
	if wrapped || prevWrapped {
		startDay = end.AddDate(0, 0, -1)
	}
	start := time.Date(startDay.Year(), startDay.Month(), startDay.Day(), prev, r.minute, 0, 0, r.loc)

	return Window{Start: start, End: end}, nil
}
