package clock

import (
	"fmt"
	"time"
)

// DayLayout is the storage and display format of a calendar day
const DayLayout = "2006-01-02"

// Day is a calendar day in a specific location.
type Day struct {
	start time.Time
}

// DayOf returns the calendar day containing t, in t's location.
func DayOf(t time.Time) Day {
	y, m, d := t.Date()
	return Day{start: time.Date(y, m, d, 0, 0, 0, 0, t.Location())}
}

// NewDay builds a day from its date parts.
func NewDay(year int, month time.Month, day int, loc *time.Location) Day {
	return Day{start: time.Date(year, month, day, 0, 0, 0, 0, loc)}
}

// ParseDay parses a YYYY-MM-DD day in loc.
func ParseDay(s string, loc *time.Location) (Day, error) {
	t, err := time.ParseInLocation(DayLayout, s, loc)
	if err != nil {
		return Day{}, fmt.Errorf("invalid day %q: %w", s, err)
	}
	return Day{start: t}, nil
}

// Start is local midnight at the beginning of the day.
func (d Day) Start() time.Time { return d.start }

// End is local midnight at the beginning of the next day. It is Start()+24h
// except across a DST change, where it keeps consecutive days contiguous.
func (d Day) End() time.Time { return d.AddDays(1).start }

// AddDays returns the day n calendar days away.
func (d Day) AddDays(n int) Day {
	y, m, dd := d.start.Date()
	return Day{start: time.Date(y, m, dd+n, 0, 0, 0, 0, d.start.Location())}
}

// Contains reports whether t falls within [Start, End).
func (d Day) Contains(t time.Time) bool {
	return !t.Before(d.start) && t.Before(d.End())
}

func (d Day) Weekday() time.Weekday { return d.start.Weekday() }

func (d Day) Location() *time.Location { return d.start.Location() }

func (d Day) Equal(o Day) bool { return d.String() == o.String() }

func (d Day) String() string { return d.start.Format(DayLayout) }

// At returns the local instant hour:minute within the day.
func (d Day) At(hour, minute int) time.Time {
	y, m, dd := d.start.Date()
	return time.Date(y, m, dd, hour, minute, 0, 0, d.start.Location())
}
