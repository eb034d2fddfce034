// Package schedule enumerates the backward-stepping date windows that
// partition a reporting history into bounded fetch requests.
package schedule

import (
	"time"

	"sms-dlr-aggregator/internal/domain"
)

// Default window parameters, in days.
const (
	DefaultSpanDays    = 7
	DefaultHorizonDays = 365
)

// Scheduler walks non-overlapping, contiguous windows backward from a
// reference instant until the horizon is covered. Output is fully
// deterministic for a given (reference, span, horizon) triple, so a later run
// re-covers exactly the same window boundaries.
type Scheduler struct {
	reference   time.Time
	spanDays    int
	horizonDays int

	cursor time.Time // end of the next window to emit
	done   bool
}

// New creates a Scheduler. Zero or negative span/horizon fall back to the
// defaults.
func New(reference time.Time, spanDays, horizonDays int) *Scheduler {
	if spanDays <= 0 {
		spanDays = DefaultSpanDays
	}
	if horizonDays <= 0 {
		horizonDays = DefaultHorizonDays
	}
	s := &Scheduler{
		reference:   reference,
		spanDays:    spanDays,
		horizonDays: horizonDays,
	}
	s.Reset()
	return s
}

// Reset restarts iteration from the first (most recent) window.
func (s *Scheduler) Reset() {
	s.cursor = s.reference
	s.done = false
}

// Horizon returns the earliest instant the walk must reach.
func (s *Scheduler) Horizon() time.Time {
	return s.reference.AddDate(0, 0, -s.horizonDays)
}

// Next returns the next window walking backward, and false once the horizon
// has been covered. The first window ends at the reference instant itself;
// every earlier window ends at 23:59:59 of its last day. Each window starts at
// 00:00:00 of its first day, spanning exactly spanDays calendar days. The
// final window may start before the horizon when the horizon is not an exact
// multiple of the span; that overshoot is intentional.
func (s *Scheduler) Next() (domain.Window, bool) {
	if s.done || !s.cursor.After(s.Horizon()) {
		return domain.Window{}, false
	}

	end := s.cursor
	start := startOfDay(end).AddDate(0, 0, -(s.spanDays - 1))

	if !start.After(s.Horizon()) {
		// Horizon covered; this is the last window.
		s.done = true
	}
	// The next window ends exactly one second before this one starts.
	s.cursor = start.Add(-time.Second)

	return domain.Window{Start: start, End: end}, true
}

// Windows materializes the full sequence for (reference, span, horizon).
func Windows(reference time.Time, spanDays, horizonDays int) []domain.Window {
	s := New(reference, spanDays, horizonDays)
	var out []domain.Window
	for {
		w, ok := s.Next()
		if !ok {
			return out
		}
		out = append(out, w)
	}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
