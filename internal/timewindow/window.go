// Package timewindow holds the interval arithmetic used by conflict detection.
package timewindow

import (
	"errors"
	"time"
)

var (
	ErrMissingBound = errors.New("window is missing a start or end time")
	ErrInverted     = errors.New("window ends before it starts")
)

// Window is a time interval with both bounds normalized to UTC.
type Window struct {
	Start time.Time
	End   time.Time
}

// New builds a Window from two timestamps in any location.
func New(start, end time.Time) Window {
	return Window{Start: Normalize(start), End: Normalize(end)}
}

// Normalize returns the UTC-equivalent instant of t. The zero time stays zero.
func Normalize(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

// Validate reports why the window cannot take part in comparisons, if it cannot.
func (w Window) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() {
		return ErrMissingBound
	}
	if w.End.Before(w.Start) {
		return ErrInverted
	}
	return nil
}

// Valid is Validate() == nil.
func (w Window) Valid() bool {
	return w.Validate() == nil
}

// Duration is End - Start.
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Overlaps uses the half-open test: a.Start < b.End && b.Start < a.End.
func (w Window) Overlaps(o Window) bool {
	return w.Start.Before(o.End) && o.Start.Before(w.End)
}

// Overlap returns the shared part of two windows.
func (w Window) Overlap(o Window) (Window, bool) {
	if !w.Overlaps(o) {
		return Window{}, false
	}
	start := w.Start
	if o.Start.After(start) {
		start = o.Start
	}
	end := w.End
	if o.End.Before(end) {
		end = o.End
	}
	return Window{Start: start, End: end}, true
}

// Gap is the time between the end of w and the start of next. Negative when they overlap.
func (w Window) Gap(next Window) time.Duration {
	return next.Start.Sub(w.End)
}

// Contains reports whether t lies in [Start, End].
func (w Window) Contains(t time.Time) bool {
	t = Normalize(t)
	return !t.Before(w.Start) && !t.After(w.End)
}
