package database

import (
	"fmt"
	"time"
)

// TimeLayout is how every table stores timestamps: fixed-width UTC with
// milliseconds, so string order in SQLite is time order.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime reads a stored timestamp. RFC 3339 is accepted too, for rows
// written by hand.
func ParseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	t, err := time.Parse(TimeLayout, s)
	if err == nil {
		return t, nil
	}
	if t, rfcErr := time.Parse(time.RFC3339Nano, s); rfcErr == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("timestamp %q: %w", s, err)
}
