package dataprocessing

import (
	"fmt"
	"strconv"
	"strings"
)

// AnalysisKind enumerates the analyses that can be run on a TripTable.
type AnalysisKind int

const (
	KindPassengerCountDistribution AnalysisKind = iota + 1
	KindPaymentTypeDistribution
	KindFareAmountDistribution
	KindTipAmountDistribution
	KindTotalAmountDistribution
	KindTripDurationSummary
	KindBusiestHours
	KindTopPickupZones
	KindTopRoutes
	KindTrafficHeatmap
	KindRevenueShare
	KindHourlyTotals
)

// ResultShape tells consumers which field of a Result is populated.
type ResultShape string

const (
	ShapeValueCounts ResultShape = "value_counts"
	ShapeGroupShares ResultShape = "group_shares"
	ShapeHourly      ResultShape = "hourly"
	ShapeHeatmap     ResultShape = "heatmap"
	ShapeRoutes      ResultShape = "routes"
	ShapeSummary     ResultShape = "summary"
)

type kindInfo struct {
	slug     string
	title    string
	shape    ResultShape
	defaultN int
}

var kinds = map[AnalysisKind]kindInfo{
	KindPassengerCountDistribution: {"passenger-count-distribution", "Passenger Count Distribution", ShapeValueCounts, 0},
	KindPaymentTypeDistribution:    {"payment-type-distribution", "Payment Type Distribution", ShapeValueCounts, 0},
	KindFareAmountDistribution:     {"fare-amount-distribution", "Fare Amount Distribution", ShapeValueCounts, 0},
	KindTipAmountDistribution:      {"tip-amount-distribution", "Tip Amount Distribution", ShapeValueCounts, 0},
	KindTotalAmountDistribution:    {"total-amount-distribution", "Total Amount Distribution", ShapeValueCounts, 0},
	KindTripDurationSummary:        {"trip-duration-summary", "Trip Duration Summary", ShapeSummary, 0},
	KindBusiestHours:               {"busiest-hours", "Busiest Pickup Hours", ShapeValueCounts, 5},
	KindTopPickupZones:             {"top-pickup-zones", "Top Pickup Zones", ShapeValueCounts, 10},
	KindTopRoutes:                  {"top-routes", "Top Routes", ShapeRoutes, 5},
	KindTrafficHeatmap:             {"traffic-heatmap", "Traffic Heatmap by Weekday and Hour", ShapeHeatmap, 0},
	KindRevenueShare:               {"revenue-share", "Revenue Share by Pickup Zone", ShapeGroupShares, 0},
	KindHourlyTotals:               {"hourly-totals", "Hourly Fare and Tip Totals", ShapeHourly, 0},
}

// Kinds returns every analysis kind in catalog order.
func Kinds() []AnalysisKind {
	out := make([]AnalysisKind, 0, len(kinds))
	for k := KindPassengerCountDistribution; k <= KindHourlyTotals; k++ {
		out = append(out, k)
	}
	return out
}

// ParseKind resolves a slug. Unknown slugs are an InvalidAggregationRequest.
func ParseKind(slug string) (AnalysisKind, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	for k, info := range kinds {
		if info.slug == slug {
			return k, nil
		}
	}
	return 0, invalidRequest("unknown analysis kind %q", slug)
}

// Valid reports whether k is part of the catalog.
func (k AnalysisKind) Valid() bool {
	_, ok := kinds[k]
	return ok
}

// Slug is the stable machine name of the kind.
func (k AnalysisKind) Slug() string {
	if info, ok := kinds[k]; ok {
		return info.slug
	}
	return fmt.Sprintf("kind-%d", int(k))
}

// Title is the display name of the kind.
func (k AnalysisKind) Title() string { return kinds[k].title }

// Shape is the result layout produced by the kind.
func (k AnalysisKind) Shape() ResultShape { return kinds[k].shape }

// DefaultN is the default result size for top-N kinds, 0 for the others.
func (k AnalysisKind) DefaultN() int { return kinds[k].defaultN }

func (k AnalysisKind) String() string { return k.Slug() }

func (k AnalysisKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid analysis kind %d", int(k))
	}
	return []byte(k.Slug()), nil
}

func (k *AnalysisKind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// AnalysisRequest selects one analysis. N of 0 means the kind's default.
type AnalysisRequest struct {
	Kind AnalysisKind `json:"kind"`
	N    int          `json:"n,omitempty"`
}

// Result carries the output of one analysis; only the field matching Shape is set.
type Result struct {
	Kind   AnalysisKind `json:"kind"`
	Title  string       `json:"title"`
	Shape  ResultShape  `json:"shape"`
	Column string       `json:"column,omitempty"`

	Values  []ValueCount   `json:"values,omitempty"`
	Shares  []GroupShare   `json:"shares,omitempty"`
	Hourly  *HourlyTable   `json:"hourly,omitempty"`
	Heatmap *HeatmapTable  `json:"heatmap,omitempty"`
	Routes  []RouteCount   `json:"routes,omitempty"`
	Summary *ColumnSummary `json:"summary,omitempty"`
}

// Run maps req.Kind to its aggregation and executes it on t.
func Run(t *TripTable, req AnalysisRequest) (*Result, error) {
	if !req.Kind.Valid() {
		return nil, invalidRequest("unknown analysis kind %d", int(req.Kind))
	}

	n := req.N
	if n == 0 {
		n = req.Kind.DefaultN()
	}

	res := &Result{Kind: req.Kind, Title: req.Kind.Title(), Shape: req.Kind.Shape()}
	var err error

	switch req.Kind {
	case KindPassengerCountDistribution:
		res.Column = ColPassengerCount
		res.Values, err = FrequencyDistribution(t, ColPassengerCount)
	case KindPaymentTypeDistribution:
		res.Column = ColPaymentType
		res.Values, err = FrequencyDistribution(t, ColPaymentType)
	case KindFareAmountDistribution:
		res.Column = ColFareAmount
		res.Values, err = FrequencyDistribution(t, ColFareAmount)
	case KindTipAmountDistribution:
		res.Column = ColTipAmount
		res.Values, err = FrequencyDistribution(t, ColTipAmount)
	case KindTotalAmountDistribution:
		res.Column = ColTotalAmount
		res.Values, err = FrequencyDistribution(t, ColTotalAmount)
	case KindTripDurationSummary:
		res.Column = ColTripDuration
		res.Summary, err = Describe(t, ColTripDuration)
	case KindBusiestHours:
		res.Column = ColPickupHour
		res.Values, err = TopNByCount(t, ColPickupHour, n)
	case KindTopPickupZones:
		res.Column = ColPULocationID
		res.Values, err = TopNByCount(t, ColPULocationID, n)
	case KindTopRoutes:
		res.Routes, err = TopRoutes(t, n)
	case KindTrafficHeatmap:
		res.Heatmap, err = WeekdayHourMatrix(t)
	case KindRevenueShare:
		res.Column = ColPULocationID
		res.Shares, err = GroupSumWithShare(t, ColPULocationID, ColTotalAmount)
	case KindHourlyTotals:
		res.Hourly, err = HourlyAggregate(t, []string{ColTotalAmount, ColTipAmount})
	}

	if err != nil {
		return nil, err
	}
	return res, nil
}

// Measures in a flattened heatmap.
const (
	HeatmapRides   = "rides"
	HeatmapAverage = "avg_rides_per_day"
)

// FlatTable is a result rendered as a header plus string rows, the layout
// consumed by file exporters.
type FlatTable struct {
	Name   string
	Title  string
	Header []string
	Rows   [][]string
}

// Flatten renders the populated part of r as a FlatTable.
func (r *Result) Flatten() *FlatTable {
	ft := &FlatTable{Name: r.Kind.Slug(), Title: r.Title}

	switch r.Shape {
	case ShapeValueCounts:
		ft.Header = []string{r.Column, "count"}
		for _, v := range r.Values {
			ft.Rows = append(ft.Rows, []string{formatFloat(v.Value), strconv.Itoa(v.Count)})
		}
	case ShapeGroupShares:
		ft.Header = []string{r.Column, "sum", "percentage"}
		for _, s := range r.Shares {
			ft.Rows = append(ft.Rows, []string{formatFloat(s.Group), formatFloat(s.Sum), strconv.FormatFloat(s.Percentage, 'f', 2, 64)})
		}
	case ShapeHourly:
		if r.Hourly == nil {
			break
		}
		ft.Header = append([]string{"hour"}, r.Hourly.Columns...)
		for _, row := range r.Hourly.Rows {
			cells := []string{strconv.Itoa(row.Hour)}
			for _, s := range row.Sums {
				cells = append(cells, formatFloat(s))
			}
			ft.Rows = append(ft.Rows, cells)
		}
	case ShapeHeatmap:
		if r.Heatmap == nil {
			break
		}
		// Ride counts for each weekday, then the per-day averages.
		ft.Header = []string{"weekday", "measure"}
		for h := 0; h < 24; h++ {
			ft.Header = append(ft.Header, strconv.Itoa(h))
		}
		for wd, name := range r.Heatmap.Weekdays {
			cells := []string{name, HeatmapRides}
			for _, c := range r.Heatmap.Counts[wd] {
				cells = append(cells, strconv.Itoa(c))
			}
			ft.Rows = append(ft.Rows, cells)
		}
		for wd, name := range r.Heatmap.Weekdays {
			cells := []string{name, HeatmapAverage}
			for _, avg := range r.Heatmap.Averages[wd] {
				cells = append(cells, strconv.FormatFloat(avg, 'f', -1, 64))
			}
			ft.Rows = append(ft.Rows, cells)
		}
	case ShapeRoutes:
		ft.Header = []string{ColPULocationID, ColDOLocationID, "count"}
		for _, rc := range r.Routes {
			ft.Rows = append(ft.Rows, []string{formatFloat(rc.PickupZone), formatFloat(rc.DropoffZone), strconv.Itoa(rc.Count)})
		}
	case ShapeSummary:
		if r.Summary == nil {
			break
		}
		s := r.Summary
		ft.Header = []string{"statistic", s.Column}
		ft.Rows = [][]string{
			{"count", strconv.Itoa(s.Count)},
			{"mean", formatFloat(s.Mean)},
			{"std_dev", formatFloat(s.StdDev)},
			{"min", formatFloat(s.Min)},
			{"median", formatFloat(s.Median)},
			{"p90", formatFloat(s.P90)},
			{"max", formatFloat(s.Max)},
		}
	}
	return ft
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
