package types

import (
	"fmt"
	"time"
)

// DateRange is an inclusive calendar-day interval. Both endpoints are
// truncated to midnight UTC; a single-day rental has Start == End.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewDateRange normalizes both endpoints to midnight UTC and validates order.
func NewDateRange(start, end time.Time) (DateRange, error) {
	s := truncateDay(start)
	e := truncateDay(end)
	if e.Before(s) {
		return DateRange{}, fmt.Errorf("end date %s precedes start date %s", e.Format("2006-01-02"), s.Format("2006-01-02"))
	}
	return DateRange{Start: s, End: e}, nil
}

// ParseDateRange builds a range from two YYYY-MM-DD strings.
func ParseDateRange(start, end string) (DateRange, error) {
	s, err := time.Parse("2006-01-02", start)
	if err != nil {
		return DateRange{}, fmt.Errorf("invalid start date %q: %w", start, err)
	}
	e, err := time.Parse("2006-01-02", end)
	if err != nil {
		return DateRange{}, fmt.Errorf("invalid end date %q: %w", end, err)
	}
	return NewDateRange(s, e)
}

// Overlaps reports whether the two inclusive ranges share at least one day.
func (r DateRange) Overlaps(other DateRange) bool {
	return !r.Start.After(other.End) && !other.Start.After(r.End)
}

// Contains reports whether the given day falls inside the range.
func (r DateRange) Contains(day time.Time) bool {
	d := truncateDay(day)
	return !d.Before(r.Start) && !d.After(r.End)
}

// Days returns the number of calendar days covered, inclusive of both ends.
func (r DateRange) Days() int {
	return int(r.End.Sub(r.Start).Hours()/24) + 1
}

// EachDay invokes fn for every day in the range, stopping early on false.
func (r DateRange) EachDay(fn func(day time.Time) bool) {
	for d := r.Start; !d.After(r.End); d = d.AddDate(0, 0, 1) {
		if !fn(d) {
			return
		}
	}
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
