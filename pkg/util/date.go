package util

import (
	"strconv"
	"strings"
	"time"
)

// millisThreshold separates unix seconds from epoch milliseconds. Anything
// above it would be a date past the year 5000 in seconds.
const millisThreshold = 100_000_000_000

// ParseTime accepts RFC3339 (with or without fraction), a bare date, unix
// seconds or epoch milliseconds. The result is in UTC.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	ts, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ts <= 0 {
		return time.Time{}, false
	}
	if ts > millisThreshold {
		return time.UnixMilli(ts).UTC(), true
	}
	return time.Unix(ts, 0).UTC(), true
}
