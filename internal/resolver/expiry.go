package resolver

import (
	"fmt"
	"strings"
	"time"
)

var monthCodes = [13]string{"", "JAN", "FEB", "MAR", "APR", "MAY", "JUN",
	"JUL", "AUG", "SEP", "OCT", "NOV", "DEC"}

func monthFromCode(code string) (time.Month, bool) {
	code = strings.ToUpper(code)
	for m := 1; m <= 12; m++ {
		if monthCodes[m] == code {
			return time.Month(m), true
		}
	}
	return 0, false
}

// weeklyExpiry returns the DDMMMYY expiry fragment for an option
// ticker. Without a hint it targets the next Thursday, rolling a full
// week when it is already Thursday past 15:00 local time. A month-name
// hint targets the 2nd of that month, next year if the month has
// already passed. This is a best-effort guess; the resolver always
// prefers an index-confirmed ticker over the constructed one.
func weeklyExpiry(now time.Time, hint string) string {
	if hint != "" {
		if m, ok := monthFromCode(hint); ok {
			year := now.Year()
			if m < now.Month() {
				year++
			}
			return fmt.Sprintf("02%s%02d", monthCodes[m], year%100)
		}
	}

	days := (int(time.Thursday) - int(now.Weekday()) + 7) % 7
	if days == 0 && now.Hour() >= 15 {
		days = 7
	}
	exp := now.AddDate(0, 0, days)
	return fmt.Sprintf("%02d%s%02d", exp.Day(), monthCodes[exp.Month()], exp.Year()%100)
}

// monthlyExpiry returns the YYMMM fragment used by futures tickers,
// current month by default, or the hinted month with year rollover.
func monthlyExpiry(now time.Time, hint string) string {
	month := now.Month()
	year := now.Year()
	if hint != "" {
		if m, ok := monthFromCode(hint); ok {
			month = m
			if m < now.Month() {
				year++
			}
		}
	}
	return fmt.Sprintf("%02d%s", year%100, monthCodes[month])
}
