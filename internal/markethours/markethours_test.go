package markethours

import (
	"testing"
	"time"
)

func TestIsMarketOpen(t *testing.T) {
	cases := []struct {
		name string
		t    time.Time
		want bool
	}{
		{"mid-session weekday", time.Date(2026, 8, 31, 11, 0, 0, 0, IST), true},
		{"just after open", time.Date(2026, 8, 31, 9, 15, 0, 0, IST), true},
		{"just before open", time.Date(2026, 8, 31, 9, 14, 0, 0, IST), false},
		{"at close", time.Date(2026, 8, 31, 15, 30, 0, 0, IST), false},
		{"saturday", time.Date(2026, 8, 29, 11, 0, 0, 0, IST), false},
		{"sunday", time.Date(2026, 8, 30, 11, 0, 0, 0, IST), false},
		{"independence day", time.Date(2026, 8, 15, 11, 0, 0, 0, IST), false},
		{"christmas", time.Date(2026, 12, 25, 11, 0, 0, 0, IST), false},
	}
	for _, tc := range cases {
		if got := IsMarketOpen(tc.t); got != tc.want {
			t.Errorf("%s: IsMarketOpen = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestNextOpenSkipsWeekend(t *testing.T) {
	// Friday evening rolls to Monday 9:15.
	friday := time.Date(2026, 8, 28, 18, 0, 0, 0, IST)
	next := NextOpen(friday)
	if next.Weekday() != time.Monday || next.Hour() != 9 || next.Minute() != 15 {
		t.Errorf("NextOpen(friday evening) = %v", next)
	}
}

func TestNextOpenSameDay(t *testing.T) {
	early := time.Date(2026, 8, 31, 8, 0, 0, 0, IST) // Monday 8 AM
	next := NextOpen(early)
	if next.Day() != 31 || next.Hour() != 9 || next.Minute() != 15 {
		t.Errorf("NextOpen(monday 8am) = %v", next)
	}
}
