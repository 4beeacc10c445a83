package cortexa

import "time"

// DayFormat is the stable key format for a ledger day.
const DayFormat = "2006-01-02"

// StartOfDayUTC truncates a time to the start of its UTC calendar day.
func StartOfDayUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// SameCalendarDay reports whether two times fall on the same UTC calendar day.
func SameCalendarDay(a, b time.Time) bool {
	a, b = a.UTC(), b.UTC()
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

// DayKey returns the stable string key for a ledger day.
func DayKey(t time.Time) string {
	return t.UTC().Format(DayFormat)
}
