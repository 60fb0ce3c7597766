package core

import "time"

// DayKeyLayout is the layout used for calendar-day keys.
const DayKeyLayout = "2006-01-02"

// DayLabelLayout renders a calendar day for report buckets, e.g. "Mon, Jan 2".
const DayLabelLayout = "Mon, Jan 2"

// StartOfDay returns 00:00:00.000 of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// EndOfDay returns 23:59:59.999 of t's calendar day in loc.
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	return StartOfDay(t, loc).AddDate(0, 0, 1).Add(-time.Millisecond)
}

// InDay reports whether ts falls within the calendar day [start, end] containing day.
func InDay(ts, day time.Time, loc *time.Location) bool {
	return InRange(ts, StartOfDay(day, loc), EndOfDay(day, loc))
}

// InRange reports whether from <= ts <= to.
func InRange(ts, from, to time.Time) bool {
	return !ts.Before(from) && !ts.After(to)
}

// DayKey formats the calendar day of t in loc as YYYY-MM-DD.
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DayKeyLayout)
}

// ParseDayKey parses a YYYY-MM-DD key as midnight in loc.
func ParseDayKey(s string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DayKeyLayout, s, loc)
}

// NextMidnight returns the start of the calendar day after t in loc.
func NextMidnight(t time.Time, loc *time.Location) time.Time {
	return StartOfDay(t, loc).AddDate(0, 0, 1)
}

// SameDay reports whether a and b fall on the same calendar day in loc.
func SameDay(a, b time.Time, loc *time.Location) bool {
	return DayKey(a, loc) == DayKey(b, loc)
}
