// Package timeutil provides calendar helpers used for deadline arithmetic.
// Deadlines are counted in business days (Mon-Fri) in the location of the
// time they start from.
package timeutil

import (
	"math"
	"time"
)

// Day is the length of a calendar day used by deadline math.
const Day = 24 * time.Hour

// Clock abstracts the current time so use cases stay deterministic in tests.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a plain function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock returns wall-clock time in UTC.
var SystemClock Clock = ClockFunc(func() time.Time { return time.Now().UTC() })

// FixedClock returns a clock frozen at t.
func FixedClock(t time.Time) Clock {
	return ClockFunc(func() time.Time { return t })
}

// IsWeekend reports whether t falls on Saturday or Sunday in its own location.
func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// AddBusinessDays moves t forward by n working days, skipping Saturdays and
// Sundays. The time of day is preserved. n <= 0 returns t unchanged.
func AddBusinessDays(t time.Time, n int) time.Time {
	if n <= 0 {
		return t
	}
	cur := t
	for added := 0; added < n; {
		cur = cur.AddDate(0, 0, 1)
		if !IsWeekend(cur) {
			added++
		}
	}
	return cur
}

// CeilDays returns the number of whole days covering d, rounding up.
// Non-positive durations yield 0.
func CeilDays(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(float64(d) / float64(Day)))
}
