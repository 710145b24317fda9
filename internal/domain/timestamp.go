package domain

import (
	"strings"
	"time"
)

// timestampLayouts covers RFC 3339 (with or without fractional seconds),
// naive ISO timestamps as emitted by the templates API, and bare dates.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.DateOnly,
}

// ParseTimestamp parses a catalog timestamp. Naive values are read as UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// TimestampMillis returns the epoch milliseconds of s, or 0 when s is
// absent or unparseable.
func TimestampMillis(s string) int64 {
	t, ok := ParseTimestamp(s)
	if !ok {
		return 0
	}
	return t.UnixMilli()
}

// FormatTimestamp renders t the way published_at values are stored.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
