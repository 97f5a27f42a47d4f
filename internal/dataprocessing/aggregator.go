package dataprocessing

import (
	"cmp"
	"math"
	"slices"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ValueCount is one row of a frequency or top-N table.
type ValueCount struct {
	Value float64 `json:"value"`
	Count int     `json:"count"`
}

// GroupShare is one row of a group-sum table.
type GroupShare struct {
	Group      float64 `json:"group"`
	Sum        float64 `json:"sum"`
	Percentage float64 `json:"percentage"`
}

// HourlyRow holds the per-column sums for one hour of the day.
type HourlyRow struct {
	Hour int       `json:"hour"`
	Sums []float64 `json:"sums"`
}

// HourlyTable always has 24 rows, hour 0 first. Sums are aligned with Columns.
type HourlyTable struct {
	Columns []string    `json:"columns"`
	Rows    []HourlyRow `json:"rows"`
}

// Sum returns the sum of column at hour, or 0 if column is not part of the table.
func (h *HourlyTable) Sum(hour int, column string) float64 {
	idx := slices.Index(h.Columns, column)
	if idx < 0 || hour < 0 || hour >= len(h.Rows) {
		return 0
	}
	return h.Rows[hour].Sums[idx]
}

// WeekdayNames lists weekdays in heatmap row order.
var WeekdayNames = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// HeatmapTable counts rides per pickup weekday (Monday first) and hour.
// Averages divide each count by the number of distinct calendar days seen
// for that weekday.
type HeatmapTable struct {
	Weekdays []string       `json:"weekdays"`
	Counts   [7][24]int     `json:"counts"`
	Averages [7][24]float64 `json:"averages"`
	Days     [7]int         `json:"days"`
}

// RouteCount is one pickup/dropoff zone pair and its ride count.
type RouteCount struct {
	PickupZone  float64 `json:"pickup_zone"`
	DropoffZone float64 `json:"dropoff_zone"`
	Count       int     `json:"count"`
}

// ColumnSummary holds descriptive statistics of a sanitized column.
type ColumnSummary struct {
	Column string  `json:"column"`
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Median float64 `json:"median"`
	P90    float64 `json:"p90"`
}

type keyCount[K comparable] struct {
	key   K
	count int
}

// countFirstSeen counts keys in first-encountered order. Rows whose include
// flag is false are ignored.
func countFirstSeen[K comparable](keys []K, include []bool) []keyCount[K] {
	index := make(map[K]int)
	var out []keyCount[K]
	for i, k := range keys {
		if include != nil && !include[i] {
			continue
		}
		if j, ok := index[k]; ok {
			out[j].count++
			continue
		}
		index[k] = len(out)
		out = append(out, keyCount[K]{key: k, count: 1})
	}
	return out
}

// topByCount orders by descending count; the stable sort keeps
// first-encountered order among ties.
func topByCount[K comparable](counts []keyCount[K], n int) []keyCount[K] {
	sorted := slices.Clone(counts)
	slices.SortStableFunc(sorted, func(a, b keyCount[K]) int {
		return cmp.Compare(b.count, a.count)
	})
	if n < len(sorted) {
		sorted = sorted[:n]
	}
	return sorted
}

// FrequencyDistribution counts each distinct sanitized value of column,
// ordered by ascending value. Counts sum to the row count for raw and
// duration columns; derived pickup keys count only rows with a pickup.
func FrequencyDistribution(t *TripTable, column string) ([]ValueCount, error) {
	keys, include, err := t.keyValues(column)
	if err != nil {
		return nil, err
	}

	counts := countFirstSeen(keys, include)
	out := make([]ValueCount, len(counts))
	for i, c := range counts {
		out[i] = ValueCount{Value: c.key, Count: c.count}
	}
	slices.SortFunc(out, func(a, b ValueCount) int { return cmp.Compare(a.Value, b.Value) })
	return out, nil
}

// TopNByCount returns the n most frequent values of column.
func TopNByCount(t *TripTable, column string, n int) ([]ValueCount, error) {
	if n <= 0 {
		return nil, invalidRequest("n must be positive, got %d", n)
	}
	keys, include, err := t.keyValues(column)
	if err != nil {
		return nil, err
	}

	top := topByCount(countFirstSeen(keys, include), n)
	out := make([]ValueCount, len(top))
	for i, c := range top {
		out[i] = ValueCount{Value: c.key, Count: c.count}
	}
	return out, nil
}

// GroupSumWithShare sums valueColumn per distinct groupColumn key (ascending)
// and reports each group's share of the grand total. A zero total gives
// every group a zero share.
func GroupSumWithShare(t *TripTable, groupColumn, valueColumn string) ([]GroupShare, error) {
	keys, include, err := t.keyValues(groupColumn)
	if err != nil {
		return nil, err
	}
	values, err := t.Sanitize(valueColumn)
	if err != nil {
		return nil, err
	}

	index := make(map[float64]int)
	var (
		out   []GroupShare
		total float64
	)
	for i, k := range keys {
		if !include[i] {
			continue
		}
		j, ok := index[k]
		if !ok {
			j = len(out)
			index[k] = j
			out = append(out, GroupShare{Group: k})
		}
		out[j].Sum += values[i]
		total += values[i]
	}

	if total != 0 {
		for i := range out {
			out[i].Percentage = 100 * out[i].Sum / total
		}
	}
	slices.SortFunc(out, func(a, b GroupShare) int { return cmp.Compare(a.Group, b.Group) })
	return out, nil
}

// HourlyAggregate sums each of valueColumns per pickup hour. Rows with a
// null pickup are left out; hours without rides carry zeros.
func HourlyAggregate(t *TripTable, valueColumns []string) (*HourlyTable, error) {
	if len(valueColumns) == 0 {
		return nil, invalidRequest("at least one value column is required")
	}
	if t.pickup == nil {
		return nil, columnNotFound(ColPickup)
	}

	columns := make([][]float64, len(valueColumns))
	for i, c := range valueColumns {
		values, err := t.Sanitize(c)
		if err != nil {
			return nil, err
		}
		columns[i] = values
	}

	out := &HourlyTable{
		Columns: slices.Clone(valueColumns),
		Rows:    make([]HourlyRow, 24),
	}
	for h := range out.Rows {
		out.Rows[h] = HourlyRow{Hour: h, Sums: make([]float64, len(valueColumns))}
	}

	for row, p := range t.pickup {
		if !p.Valid {
			continue
		}
		sums := out.Rows[p.Time.Hour()].Sums
		for c := range columns {
			sums[c] += columns[c][row]
		}
	}
	return out, nil
}

// WeekdayHourMatrix builds the dense 7x24 pickup heatmap.
func WeekdayHourMatrix(t *TripTable) (*HeatmapTable, error) {
	if t.pickup == nil {
		return nil, columnNotFound(ColPickup)
	}

	out := &HeatmapTable{Weekdays: slices.Clone(WeekdayNames)}
	seenDays := make(map[time.Time]struct{})

	for _, p := range t.pickup {
		if !p.Valid {
			continue
		}
		wd := weekdayIndex(p.Time.Weekday())
		out.Counts[wd][p.Time.Hour()]++

		day := time.Date(p.Time.Year(), p.Time.Month(), p.Time.Day(), 0, 0, 0, 0, time.UTC)
		if _, ok := seenDays[day]; !ok {
			seenDays[day] = struct{}{}
			out.Days[wd]++
		}
	}

	for wd := range out.Counts {
		if out.Days[wd] == 0 {
			continue
		}
		for h := range out.Counts[wd] {
			out.Averages[wd][h] = float64(out.Counts[wd][h]) / float64(out.Days[wd])
		}
	}
	return out, nil
}

type route struct {
	pickup, dropoff float64
}

// TopRoutes returns the n most frequent pickup/dropoff zone pairs.
func TopRoutes(t *TripTable, n int) ([]RouteCount, error) {
	if n <= 0 {
		return nil, invalidRequest("n must be positive, got %d", n)
	}
	pu, err := t.Sanitize(ColPULocationID)
	if err != nil {
		return nil, err
	}
	do, err := t.Sanitize(ColDOLocationID)
	if err != nil {
		return nil, err
	}

	routes := make([]route, len(pu))
	for i := range pu {
		routes[i] = route{pickup: pu[i], dropoff: do[i]}
	}

	top := topByCount(countFirstSeen(routes, nil), n)
	out := make([]RouteCount, len(top))
	for i, c := range top {
		out[i] = RouteCount{PickupZone: c.key.pickup, DropoffZone: c.key.dropoff, Count: c.count}
	}
	return out, nil
}

// Describe summarizes the sanitized values of column.
func Describe(t *TripTable, column string) (*ColumnSummary, error) {
	values, err := t.Sanitize(column)
	if err != nil {
		return nil, err
	}

	summary := &ColumnSummary{Column: column, Count: len(values)}
	if len(values) == 0 {
		return summary, nil
	}

	sorted := slices.Clone(values)
	slices.Sort(sorted)

	summary.Mean = stat.Mean(sorted, nil)
	if len(sorted) > 1 {
		summary.StdDev = stat.StdDev(sorted, nil)
	}
	summary.Min = floats.Min(sorted)
	summary.Max = floats.Max(sorted)
	summary.Median = linearQuantile(sorted, 0.5)
	summary.P90 = linearQuantile(sorted, 0.9)
	return summary, nil
}

// linearQuantile interpolates between the two closest ranks of sorted at
// position p*(n-1), so the median of an even-length input is the mean of
// its two middle values.
func linearQuantile(sorted []float64, p float64) float64 {
	h := p * float64(len(sorted)-1)
	lo := int(math.Floor(h))
	if lo+1 >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	return sorted[lo] + (h-float64(lo))*(sorted[lo+1]-sorted[lo])
}
