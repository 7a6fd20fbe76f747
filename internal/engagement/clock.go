// Package engagement implements the pure decision logic of the
// engagement engine: scoring, segmentation, and delivery policy. None of
// these functions perform I/O; callers (the dispatcher, scheduled jobs)
// own persistence and external calls.
package engagement

import "time"

// Clock is the sole source of time for the engine. Production code uses
// SystemClock; tests inject FixedClock so scoring, policy, and scheduling
// decisions are deterministic.
type Clock interface {
	Now() time.Time
	NowInZone(tz string) (time.Time, error)
}

// SystemClock reads the real wall clock.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// NowInZone returns the current time converted to tz.
func (SystemClock) NowInZone(tz string) (time.Time, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Time{}, err
	}
	return time.Now().In(loc), nil
}

// FixedClock always returns the same instant, advanced explicitly by
// tests via Advance.
type FixedClock struct {
	at time.Time
}

// NewFixedClock returns a FixedClock pinned to at.
func NewFixedClock(at time.Time) *FixedClock {
	return &FixedClock{at: at.UTC()}
}

// Now returns the pinned instant.
func (c *FixedClock) Now() time.Time { return c.at }

// NowInZone returns the pinned instant converted to tz.
func (c *FixedClock) NowInZone(tz string) (time.Time, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Time{}, err
	}
	return c.at.In(loc), nil
}

// Advance moves the fixed clock forward by d.
func (c *FixedClock) Advance(d time.Duration) { c.at = c.at.Add(d) }

// StartOfHour truncates t to the start of its hour, in t's own location.
func StartOfHour(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
}

// StartOfDay returns midnight of t's calendar day, converted into tz.
func StartOfDay(t time.Time, tz string) (time.Time, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Time{}, err
	}
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc), nil
}

// IsWeekend reports whether t, interpreted in tz, falls on Saturday or
// Sunday.
func IsWeekend(t time.Time, tz string) bool {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}
	wd := t.In(loc).Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// Weekday returns the 0(Sun)-6(Sat) weekday index of t in tz, matching the
// convention used throughout UserMetrics.typicalActiveHours.
func Weekday(t time.Time, tz string) int {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}
	return int(t.In(loc).Weekday())
}

// HourOfDay returns t's hour-of-day (0-23) in tz.
func HourOfDay(t time.Time, tz string) int {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}
	return t.In(loc).Hour()
}

// BusinessHours names the active-hours window used for deferral and
// optimal-time scoring.
type BusinessHours struct {
	Start int // inclusive, 0-23
	End   int // inclusive, 0-23
}

// NextBusinessHourStart returns the next instant, at or after t, that
// falls within hours [start,end] in tz. If t is already inside the
// window, t itself is returned.
func NextBusinessHourStart(t time.Time, tz string, hours BusinessHours) (time.Time, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Time{}, err
	}
	local := t.In(loc)
	h := local.Hour()
	if h >= hours.Start && h <= hours.End {
		return local, nil
	}
	day := local
	if h > hours.End {
		day = day.AddDate(0, 0, 1)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hours.Start, 0, 0, 0, loc), nil
}
