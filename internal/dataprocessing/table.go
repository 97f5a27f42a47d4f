package dataprocessing

import (
	"math"
	"slices"
	"time"

	"github.com/go-gota/gota/dataframe"
)

// Well-known trip columns.
const (
	ColPickup         = "tpep_pickup_datetime"
	ColDropoff        = "tpep_dropoff_datetime"
	ColPassengerCount = "passenger_count"
	ColPaymentType    = "payment_type"
	ColFareAmount     = "fare_amount"
	ColTipAmount      = "tip_amount"
	ColTotalAmount    = "total_amount"
	ColPULocationID   = "PULocationID"
	ColDOLocationID   = "DOLocationID"

	// ColTripDuration is derived at load time when both timestamps exist.
	ColTripDuration = "trip_duration_minutes"

	// Derived grouping keys, computed from the pickup timestamp on demand.
	// A raw CSV column with the same name takes precedence.
	ColPickupHour    = "pickup_hour"
	ColPickupWeekday = "pickup_weekday"
)

var nan = math.NaN()

// NullTime is a timezone-naive timestamp that may be absent.
type NullTime struct {
	Time  time.Time
	Valid bool
}

// TripTable is the parsed content of one upload. It is immutable once
// returned by the Loader and safe for concurrent readers.
type TripTable struct {
	frame    dataframe.DataFrame
	pickup   []NullTime
	dropoff  []NullTime
	duration []float64 // NaN marks a null duration; nil when not derived
	skipped  int
}

// Rows returns the number of parsed trip rows.
func (t *TripTable) Rows() int { return t.frame.Nrow() }

// SkippedLines returns how many malformed records were dropped while loading.
func (t *TripTable) SkippedLines() int { return t.skipped }

// Columns lists the raw CSV columns followed by the derived duration column, if any.
func (t *TripTable) Columns() []string {
	names := t.frame.Names()
	if t.duration != nil && !slices.Contains(names, ColTripDuration) {
		names = append(names, ColTripDuration)
	}
	return names
}

// HasColumn reports whether column is a raw or derived column of the table.
func (t *TripTable) HasColumn(column string) bool {
	switch {
	case column == ColTripDuration && t.duration != nil:
		return true
	case t.isPickupKey(column):
		return t.pickup != nil
	}
	return t.hasRaw(column)
}

func (t *TripTable) hasRaw(column string) bool {
	return slices.Contains(t.frame.Names(), column)
}

// isPickupKey reports whether column resolves to a derived pickup key
// rather than a raw column.
func (t *TripTable) isPickupKey(column string) bool {
	return (column == ColPickupHour || column == ColPickupWeekday) && !t.hasRaw(column)
}

// HasDuration reports whether trip_duration_minutes was derived.
func (t *TripTable) HasDuration() bool { return t.duration != nil }

// Pickup returns the parsed pickup timestamp of row i.
func (t *TripTable) Pickup(i int) NullTime {
	if t.pickup == nil {
		return NullTime{}
	}
	return t.pickup[i]
}

// Dropoff returns the parsed dropoff timestamp of row i.
func (t *TripTable) Dropoff(i int) NullTime {
	if t.dropoff == nil {
		return NullTime{}
	}
	return t.dropoff[i]
}

// Duration returns the trip duration in minutes of row i; ok is false when
// the duration is null or was not derived.
func (t *TripTable) Duration(i int) (minutes float64, ok bool) {
	if t.duration == nil || math.IsNaN(t.duration[i]) {
		return 0, false
	}
	return t.duration[i], true
}

// Frame returns a copy of the underlying raw string frame.
func (t *TripTable) Frame() dataframe.DataFrame { return t.frame.Copy() }

// Sanitize returns the numeric values of column, one per row, with 0 in
// place of empty, NaN, infinite or non-numeric cells. Derived pickup keys
// are grouping keys only: a null pickup has no hour, and 0 would read as
// midnight, so they fail with InvalidAggregationRequest.
func (t *TripTable) Sanitize(column string) ([]float64, error) {
	switch {
	case column == ColTripDuration && t.duration != nil:
		return SanitizeValues(t.duration), nil
	case t.isPickupKey(column):
		return nil, invalidRequest("%s is a derived grouping key and has no numeric values", column)
	case !t.hasRaw(column):
		return nil, columnNotFound(column)
	}
	return SanitizeValues(t.frame.Col(column).Float()), nil
}

// SanitizeValues replaces NaN and infinities with 0. Applying it to its own
// output returns the same values.
func SanitizeValues(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out[i] = v
	}
	return out
}

// keyValues returns grouping keys for column together with a mask of the
// rows that take part. Derived pickup keys exclude rows with a null pickup;
// every other column includes all rows.
func (t *TripTable) keyValues(column string) ([]float64, []bool, error) {
	n := t.Rows()
	include := make([]bool, n)

	if t.isPickupKey(column) {
		if t.pickup == nil {
			return nil, nil, columnNotFound(ColPickup)
		}
		keys := make([]float64, n)
		for i, p := range t.pickup {
			if !p.Valid {
				continue
			}
			include[i] = true
			if column == ColPickupHour {
				keys[i] = float64(p.Time.Hour())
			} else {
				keys[i] = float64(weekdayIndex(p.Time.Weekday()))
			}
		}
		return keys, include, nil
	}

	keys, err := t.Sanitize(column)
	if err != nil {
		return nil, nil, err
	}
	for i := range include {
		include[i] = true
	}
	return keys, include, nil
}

// weekdayIndex maps time.Weekday to a Monday-first index.
func weekdayIndex(d time.Weekday) int {
	return (int(d) + 6) % 7
}
