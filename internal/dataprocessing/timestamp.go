package dataprocessing

import (
	"strings"
	"time"
)

// timestampLayouts are tried in order. Values carry no zone; they are
// interpreted as wall-clock time.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"01/02/2006 15:04:05",
	"01/02/2006 03:04:05 PM",
	"2006-01-02",
}

// ParseTimestamp parses a pickup or dropoff cell. ok is false for empty or
// unrecognized values.
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

	// Offsets are dropped and the wall clock kept.
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC), true
	}

	return time.Time{}, false
}

func parseTimestamps(cells []string) []NullTime {
	out := make([]NullTime, len(cells))
	for i, c := range cells {
		if t, ok := ParseTimestamp(c); ok {
			out[i] = NullTime{Time: t, Valid: true}
		}
	}
	return out
}

func deriveDurations(pickup, dropoff []NullTime) []float64 {
	out := make([]float64, len(pickup))
	for i := range pickup {
		if !pickup[i].Valid || !dropoff[i].Valid {
			out[i] = nan
			continue
		}
		out[i] = dropoff[i].Time.Sub(pickup[i].Time).Minutes()
	}
	return out
}
