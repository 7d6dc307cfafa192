package domain

import (
	"fmt"
	"time"
)

// Day is the canonical in-memory trading-day type: days since the Unix epoch
// in UTC. Wire formats (YYYYMMDD strings) are converted at the edges.
type Day int

const secondsPerDay = 24 * 60 * 60

// DayFromTime truncates a time to its UTC calendar day.
func DayFromTime(t time.Time) Day {
	u := t.UTC()
	midnight := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return Day(midnight.Unix() / secondsPerDay)
}

// ParseDay parses a YYYYMMDD wire date.
func ParseDay(s string) (Day, error) {
	t, err := time.ParseInLocation("20060102", s, time.UTC)
	if err != nil {
		return 0, fmt.Errorf("invalid wire date %q: %w", s, err)
	}
	return DayFromTime(t), nil
}

// MustParseDay parses a YYYYMMDD wire date and panics on failure.
// Only for compiled-in constants and tests.
func MustParseDay(s string) Day {
	d, err := ParseDay(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Time returns midnight UTC of the day.
func (d Day) Time() time.Time {
	return time.Unix(int64(d)*secondsPerDay, 0).UTC()
}

// Wire returns the YYYYMMDD representation.
func (d Day) Wire() string {
	return d.Time().Format("20060102")
}

// String returns the ISO representation used in artefacts and logs.
func (d Day) String() string {
	return d.Time().Format("2006-01-02")
}

// YearMonth returns a sortable YYYYMM key, used for month-end grouping.
func (d Day) YearMonth() int {
	t := d.Time()
	return t.Year()*100 + int(t.Month())
}

// AddDays returns the day shifted by n calendar days.
func (d Day) AddDays(n int) Day {
	return d + Day(n)
}

// Today returns the current UTC day.
func Today() Day {
	return DayFromTime(time.Now())
}
