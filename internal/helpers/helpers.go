package helpers

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire format for calendar days ("2006-01-02").
const DateLayout = "2006-01-02"

func StringTrim(s string) string {
	return strings.TrimSpace(s)
}

// ParseDay parses a YYYY-MM-DD string into a UTC midnight timestamp.
func ParseDay(s string) (time.Time, error) {
	day, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD: %v", s, err)
	}
	return day, nil
}

// DayRange returns the inclusive start and end timestamps of the calendar day
// containing t, in UTC. Slot queries match on this window so bookings stored
// with any intra-day timestamp still collide.
func DayRange(t time.Time) (time.Time, time.Time) {
	y, m, d := t.UTC().Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	end := start.Add(24*time.Hour - time.Nanosecond)
	return start, end
}
