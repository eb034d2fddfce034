package domain

import (
	"fmt"
	"time"
)

// Window is one bounded, non-overlapping date range processed as a single
// fetch unit. Both bounds are inclusive.
type Window struct {
	Start time.Time
	End   time.Time
}

// Covers reports whether t lies within the window (inclusive).
func (w Window) Covers(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// String formats the window for logs.
func (w Window) String() string {
	return fmt.Sprintf("[%s .. %s]", w.Start.Format("2006-01-02 15:04:05"), w.End.Format("2006-01-02 15:04:05"))
}
