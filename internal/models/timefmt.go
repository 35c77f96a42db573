package models

import (
	"fmt"
	"strings"
	"time"
)

// ISOLayout matches the millisecond UTC timestamps written by browser clients.
const ISOLayout = "2006-01-02T15:04:05.000Z07:00"

func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, strings.TrimSpace(s))
}

// ParseWallClock resolves a start or end value on the given date. Both the
// short "15:04" form and the stored "2006-01-02T15:04:05" form are accepted.
// The result carries no zone; it is expressed in UTC for comparison only.
func ParseWallClock(date, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if strings.Contains(value, "T") {
		for _, layout := range []string{DateTimeLayout, "2006-01-02T15:04", time.RFC3339, "2006-01-02T15:04Z07:00"} {
			if t, err := time.Parse(layout, value); err == nil {
				// the zone is dropped: stored values are venue wall clock
				return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC), nil
			}
		}
		return time.Time{}, fmt.Errorf("invalid date-time %q", value)
	}

	d, err := ParseDate(date)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", date, err)
	}
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return time.Date(d.Year(), d.Month(), d.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q", value)
}

func FormatWallClock(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateTimeLayout)
}

func FormatISO(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(ISOLayout)
}

func parseISO(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
