// Package calendar builds the shared daily date axis every discharge series is aligned to.
package calendar

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
)

// DateLayout is the layout used for calendar dates in config and flags.
const DateLayout = "2006-01-02"

// InvalidRangeError is returned when the end of a range precedes its start.
type InvalidRangeError struct {
	Start time.Time
	End   time.Time
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("calendar: end %s is before start %s", e.End.Format(DateLayout), e.Start.Format(DateLayout))
}

// Grid is an inclusive run of consecutive UTC dates.
type Grid struct {
	start time.Time
	days  int
}

// Build returns the grid of dates from start to end inclusive. Both bounds
// are truncated to their UTC calendar date.
func Build(start, end time.Time) (*Grid, error) {
	s := Truncate(start)
	e := Truncate(end)
	if e.Before(s) {
		return nil, &InvalidRangeError{Start: s, End: e}
	}
	return &Grid{start: s, days: daysBetween(s, e) + 1}, nil
}

// Parse builds a grid from two dates in DateLayout form. An empty end means today (UTC).
func Parse(start, end string, now time.Time) (*Grid, error) {
	s, err := time.Parse(DateLayout, start)
	if err != nil {
		return nil, eris.Wrapf(err, "calendar: parse start %q", start)
	}
	e := now
	if end != "" {
		e, err = time.Parse(DateLayout, end)
		if err != nil {
			return nil, eris.Wrapf(err, "calendar: parse end %q", end)
		}
	}
	return Build(s, e)
}

// Truncate returns the UTC midnight of t's calendar date.
func Truncate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Len returns the number of dates in the grid.
func (g *Grid) Len() int { return g.days }

// Start returns the first date.
func (g *Grid) Start() time.Time { return g.start }

// End returns the last date.
func (g *Grid) End() time.Time { return g.start.AddDate(0, 0, g.days-1) }

// Date returns the i-th date.
func (g *Grid) Date(i int) time.Time { return g.start.AddDate(0, 0, i) }

// Dates returns every date in order.
func (g *Grid) Dates() []time.Time {
	out := make([]time.Time, g.days)
	for i := range out {
		out[i] = g.Date(i)
	}
	return out
}

// Index returns the slot of t's calendar date, or false when it falls outside the grid.
func (g *Grid) Index(t time.Time) (int, bool) {
	i := daysBetween(g.start, Truncate(t))
	if i < 0 || i >= g.days {
		return 0, false
	}
	return i, true
}

// daysBetween counts whole days from a to b; both must be UTC midnights.
func daysBetween(a, b time.Time) int {
	return int(b.Sub(a).Round(time.Hour).Hours() / 24)
}
