// Package scheduling holds the time arithmetic behind appointment booking:
// clock parsing, half-open intervals and free-slot computation.
package scheduling

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// DateLayout is the calendar day format used on the wire and in storage.
	DateLayout    = "2006-01-02"
	minutesPerDay = 24 * 60
)

// Interval is a half-open range of minutes since midnight: [Start, End).
type Interval struct {
	Start int
	End   int
}

// NewInterval returns the interval starting at start and lasting duration minutes.
func NewInterval(start, duration int) Interval {
	return Interval{Start: start, End: start + duration}
}

// Overlaps reports whether the two intervals share at least one minute.
// Intervals that only touch (a.End == b.Start) do not overlap.
func (a Interval) Overlaps(b Interval) bool {
	return a.Start < b.End && b.Start < a.End
}

func (a Interval) String() string {
	return FormatClock(a.Start) + "-" + FormatClock(a.End)
}

// ParseClock converts "HH:MM" or "HH:MM:SS" to minutes since midnight.
// Seconds are accepted for compatibility and truncated.
func ParseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("invalid time of day %q: want HH:MM", s)
	}
	limits := []int{23, 59, 59}
	values := make([]int, len(parts))
	for i, p := range parts {
		if len(p) != 2 {
			return 0, fmt.Errorf("invalid time of day %q: want HH:MM", s)
		}
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 || v > limits[i] {
			return 0, fmt.Errorf("invalid time of day %q: want HH:MM", s)
		}
		values[i] = v
	}
	return values[0]*60 + values[1], nil
}

// NormalizeClock re-renders a valid time of day as "HH:MM".
func NormalizeClock(s string) (string, error) {
	m, err := ParseClock(s)
	if err != nil {
		return "", err
	}
	return FormatClock(m), nil
}

// FormatClock renders minutes since midnight as "HH:MM". Values past midnight
// wrap, so an interval ending at 24:00 renders as 00:00.
func FormatClock(minutes int) string {
	m := ((minutes % minutesPerDay) + minutesPerDay) % minutesPerDay
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// ParseDate validates a "YYYY-MM-DD" calendar day.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return d, nil
}

// Day returns the calendar day of t in loc, formatted as DateLayout.
func Day(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(DateLayout)
}
