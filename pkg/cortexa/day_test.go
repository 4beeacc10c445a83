package cortexa_test

import (
	"testing"
	"time"

	"github.com/equaltechbd/cortexa/pkg/cortexa"
)

func TestStartOfDayUTC(t *testing.T) {
	// Local-zone timestamps normalize to the UTC calendar day
	est := time.FixedZone("EST", -5*3600)
	ts := time.Date(2026, 3, 15, 22, 30, 0, 0, est) // 03:30 UTC on the 16th

	day := cortexa.StartOfDayUTC(ts)
	want := time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)
	if !day.Equal(want) {
		t.Errorf("StartOfDayUTC = %v, want %v", day, want)
	}
}

func TestSameCalendarDay(t *testing.T) {
	morning := time.Date(2026, 3, 15, 0, 0, 1, 0, time.UTC)
	night := time.Date(2026, 3, 15, 23, 59, 59, 0, time.UTC)
	nextDay := time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)

	if !cortexa.SameCalendarDay(morning, night) {
		t.Error("Expected same day for timestamps within one UTC day")
	}
	if cortexa.SameCalendarDay(night, nextDay) {
		t.Error("Expected different days across UTC midnight")
	}
}

func TestDayKey(t *testing.T) {
	ts := time.Date(2026, 3, 5, 14, 0, 0, 0, time.UTC)
	if key := cortexa.DayKey(ts); key != "2026-03-05" {
		t.Errorf("DayKey = %q, want 2026-03-05", key)
	}
}
