package dataprocessing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2024-01-01 is a Monday.
const tripsCSV = `tpep_pickup_datetime,tpep_dropoff_datetime,passenger_count,payment_type,fare_amount,tip_amount,total_amount,PULocationID,DOLocationID
2024-01-01 08:00:00,2024-01-01 08:15:00,1,1,10.0,2.0,12.0,132,236
2024-01-01 08:30:00,2024-01-01 08:40:00,2,2,5.0,0,5.0,132,236
2024-01-01 17:05:00,2024-01-01 17:35:00,1,1,30.0,5.0,35.0,161,132
2024-01-02 17:10:00,2024-01-02 17:20:00,,1,abc,1.0,8.0,236,161
not-a-date,2024-01-02 18:00:00,3,2,7.0,0,7.0,161,132
`

func TestSanitize(t *testing.T) {
	table := loadCSV(t, tripsCSV)

	tests := []struct {
		name    string
		column  string
		want    []float64
		wantErr error
	}{
		{name: "malformed cells become zero", column: ColFareAmount, want: []float64{10, 5, 30, 0, 7}},
		{name: "empty cells become zero", column: ColPassengerCount, want: []float64{1, 2, 1, 0, 3}},
		{name: "numeric column unchanged", column: ColTipAmount, want: []float64{2, 0, 5, 1, 0}},
		{name: "derived duration", column: ColTripDuration, want: []float64{15, 10, 30, 10, 0}},
		{name: "timestamps are not numeric", column: ColPickup, want: []float64{0, 0, 0, 0, 0}},
		{name: "unknown column", column: "nonexistent_column", wantErr: ErrColumnNotFound},
		{name: "derived pickup hour has no numeric values", column: ColPickupHour, wantErr: ErrInvalidRequest},
		{name: "derived pickup weekday has no numeric values", column: ColPickupWeekday, wantErr: ErrInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := table.Sanitize(tt.column)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Len(t, got, table.Rows())
			assert.Equal(t, got, SanitizeValues(got), "sanitizing twice is a no-op")
		})
	}
}

func TestFrequencyDistribution(t *testing.T) {
	table := loadCSV(t, tripsCSV)

	got, err := FrequencyDistribution(table, ColPassengerCount)
	require.NoError(t, err)
	assert.Equal(t, []ValueCount{{0, 1}, {1, 2}, {2, 1}, {3, 1}}, got)

	for _, column := range []string{ColPassengerCount, ColPaymentType, ColFareAmount, ColTipAmount, ColTotalAmount} {
		dist, err := FrequencyDistribution(table, column)
		require.NoError(t, err, column)
		total := 0
		for _, vc := range dist {
			total += vc.Count
		}
		assert.Equal(t, table.Rows(), total, column)
	}
}

func TestDerivedKeyFrequencyCountsRowsWithPickup(t *testing.T) {
	table := loadCSV(t, tripsCSV)

	got, err := FrequencyDistribution(table, ColPickupHour)
	require.NoError(t, err)
	assert.Equal(t, []ValueCount{{8, 2}, {17, 2}}, got)

	total := 0
	for _, vc := range got {
		total += vc.Count
	}
	assert.Equal(t, table.Rows()-1, total, "the row with an unparsable pickup is excluded")
}

func TestRawColumnTakesPrecedenceOverDerivedKey(t *testing.T) {
	t.Run("without timestamps", func(t *testing.T) {
		table := loadCSV(t, "pickup_hour,fare_amount\n3,1\n4,2\n")

		assert.True(t, table.HasColumn(ColPickupHour))
		assert.False(t, table.HasColumn(ColPickupWeekday))

		values, err := table.Sanitize(ColPickupHour)
		require.NoError(t, err)
		assert.Equal(t, []float64{3, 4}, values)

		dist, err := FrequencyDistribution(table, ColPickupHour)
		require.NoError(t, err)
		assert.Equal(t, []ValueCount{{3, 1}, {4, 1}}, dist)

		_, err = FrequencyDistribution(table, ColPickupWeekday)
		assert.ErrorIs(t, err, ErrColumnNotFound)
	})

	t.Run("alongside the pickup timestamp", func(t *testing.T) {
		table := loadCSV(t, "tpep_pickup_datetime,pickup_hour\n2024-01-01 08:00:00,23\n")

		dist, err := FrequencyDistribution(table, ColPickupHour)
		require.NoError(t, err)
		assert.Equal(t, []ValueCount{{23, 1}}, dist)

		weekdays, err := FrequencyDistribution(table, ColPickupWeekday)
		require.NoError(t, err)
		assert.Equal(t, []ValueCount{{0, 1}}, weekdays)

		assert.Equal(t, []string{ColPickup, ColPickupHour}, table.Columns())
	})
}

func TestColumnNotFoundLeavesTableUsable(t *testing.T) {
	table := loadCSV(t, tripsCSV)

	_, err := FrequencyDistribution(table, "nonexistent_column")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrColumnNotFound)

	var analysisErr *AnalysisError
	require.ErrorAs(t, err, &analysisErr)
	assert.Equal(t, "nonexistent_column", analysisErr.Column)

	got, err := FrequencyDistribution(table, ColPaymentType)
	require.NoError(t, err)
	assert.Equal(t, []ValueCount{{1, 3}, {2, 2}}, got)
}

func TestTopNByCount(t *testing.T) {
	table := loadCSV(t, tripsCSV)

	tests := []struct {
		name    string
		column  string
		n       int
		want    []ValueCount
		wantErr error
	}{
		{name: "ties keep first-seen order", column: ColPULocationID, n: 2, want: []ValueCount{{132, 2}, {161, 2}}},
		{name: "n of one", column: ColPULocationID, n: 1, want: []ValueCount{{132, 2}}},
		{name: "n larger than distinct values", column: ColPULocationID, n: 10, want: []ValueCount{{132, 2}, {161, 2}, {236, 1}}},
		{name: "pickup hour excludes null pickups", column: ColPickupHour, n: 5, want: []ValueCount{{8, 2}, {17, 2}}},
		{name: "pickup weekday", column: ColPickupWeekday, n: 7, want: []ValueCount{{0, 3}, {1, 1}}},
		{name: "zero n", column: ColPULocationID, n: 0, wantErr: ErrInvalidRequest},
		{name: "negative n", column: ColPULocationID, n: -3, wantErr: ErrInvalidRequest},
		{name: "missing column", column: "borough", n: 3, wantErr: ErrColumnNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TopNByCount(table, tt.column, tt.n)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTopNByCountTieOrderFollowsInput(t *testing.T) {
	table := loadCSV(t, "PULocationID\n7\n3\n3\n7\n5\n")

	got, err := TopNByCount(table, ColPULocationID, 3)
	require.NoError(t, err)
	assert.Equal(t, []ValueCount{{7, 2}, {3, 2}, {5, 1}}, got)
}

func TestGroupSumWithShare(t *testing.T) {
	table := loadCSV(t, tripsCSV)

	got, err := GroupSumWithShare(table, ColPULocationID, ColTotalAmount)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, []float64{132, 161, 236}, []float64{got[0].Group, got[1].Group, got[2].Group})
	assert.Equal(t, 17.0, got[0].Sum)
	assert.Equal(t, 42.0, got[1].Sum)
	assert.Equal(t, 8.0, got[2].Sum)
	assert.InDelta(t, 100*17.0/67.0, got[0].Percentage, 1e-9)

	total := 0.0
	for _, g := range got {
		total += g.Percentage
	}
	assert.InDelta(t, 100.0, total, 1e-9)
}

func TestGroupSumWithShareZeroTotal(t *testing.T) {
	table := loadCSV(t, "PULocationID,total_amount\n1,0\n2,n/a\n1,\n")

	got, err := GroupSumWithShare(table, ColPULocationID, ColTotalAmount)
	require.NoError(t, err)
	assert.Equal(t, []GroupShare{{Group: 1}, {Group: 2}}, got)
}

func TestGroupSumWithShareMissingColumns(t *testing.T) {
	table := loadCSV(t, tripsCSV)

	_, err := GroupSumWithShare(table, "borough", ColTotalAmount)
	assert.ErrorIs(t, err, ErrColumnNotFound)

	_, err = GroupSumWithShare(table, ColPULocationID, "congestion_surcharge")
	assert.ErrorIs(t, err, ErrColumnNotFound)
}

func TestHourlyAggregateScenario(t *testing.T) {
	table := loadCSV(t, hourlyScenarioCSV)

	got, err := HourlyAggregate(table, []string{ColFareAmount})
	require.NoError(t, err)
	require.Len(t, got.Rows, 24)

	for h, row := range got.Rows {
		assert.Equal(t, h, row.Hour)
		if h == 8 {
			assert.Equal(t, 15.0, row.Sums[0])
		} else {
			assert.Equal(t, 0.0, row.Sums[0], "hour %d", h)
		}
	}
}

func TestHourlyAggregate(t *testing.T) {
	table := loadCSV(t, tripsCSV)

	got, err := HourlyAggregate(table, []string{ColFareAmount, ColTipAmount})
	require.NoError(t, err)
	require.Len(t, got.Rows, 24)

	assert.Equal(t, []string{ColFareAmount, ColTipAmount}, got.Columns)
	assert.Equal(t, 15.0, got.Sum(8, ColFareAmount))
	assert.Equal(t, 2.0, got.Sum(8, ColTipAmount))
	assert.Equal(t, 30.0, got.Sum(17, ColFareAmount))
	assert.Equal(t, 6.0, got.Sum(17, ColTipAmount))
	assert.Equal(t, 0.0, got.Sum(18, ColFareAmount), "row with null pickup is excluded")
	assert.Equal(t, 0.0, got.Sum(8, "unknown"))

	t.Run("no value columns", func(t *testing.T) {
		_, err := HourlyAggregate(table, nil)
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("missing value column", func(t *testing.T) {
		_, err := HourlyAggregate(table, []string{ColFareAmount, "extra"})
		assert.ErrorIs(t, err, ErrColumnNotFound)
	})

	t.Run("missing pickup column", func(t *testing.T) {
		_, err := HourlyAggregate(loadCSV(t, "fare_amount\n3\n"), []string{ColFareAmount})
		var analysisErr *AnalysisError
		require.ErrorAs(t, err, &analysisErr)
		assert.Equal(t, ColPickup, analysisErr.Column)
	})

	t.Run("single ride still yields 24 rows", func(t *testing.T) {
		got, err := HourlyAggregate(loadCSV(t, "tpep_pickup_datetime,fare_amount\n2024-01-01 23:59:00,4\n"), []string{ColFareAmount})
		require.NoError(t, err)
		assert.Len(t, got.Rows, 24)
		assert.Equal(t, 4.0, got.Sum(23, ColFareAmount))
	})
}

func TestWeekdayHourMatrix(t *testing.T) {
	table := loadCSV(t, tripsCSV)

	got, err := WeekdayHourMatrix(table)
	require.NoError(t, err)

	assert.Equal(t, WeekdayNames, got.Weekdays)
	assert.Equal(t, 2, got.Counts[0][8])
	assert.Equal(t, 1, got.Counts[0][17])
	assert.Equal(t, 1, got.Counts[1][17])
	assert.Equal(t, [7]int{1, 1, 0, 0, 0, 0, 0}, got.Days)
	assert.Equal(t, 2.0, got.Averages[0][8])

	total := 0
	for wd := range got.Counts {
		for h := range got.Counts[wd] {
			total += got.Counts[wd][h]
		}
	}
	assert.Equal(t, 4, total)
}

func TestWeekdayHourMatrixAveragesPerCalendarDay(t *testing.T) {
	table := loadCSV(t, `tpep_pickup_datetime
2024-01-01 08:00:00
2024-01-08 08:10:00
2024-01-08 08:50:00
2024-01-07 22:00:00
`)

	got, err := WeekdayHourMatrix(table)
	require.NoError(t, err)

	assert.Equal(t, 3, got.Counts[0][8])
	assert.Equal(t, 2, got.Days[0])
	assert.Equal(t, 1.5, got.Averages[0][8])
	assert.Equal(t, 1, got.Counts[6][22], "Sunday is the last row")
	assert.Equal(t, 0.0, got.Averages[3][12])

	_, err = WeekdayHourMatrix(loadCSV(t, "fare_amount\n1\n"))
	assert.ErrorIs(t, err, ErrColumnNotFound)
}

func TestTopRoutes(t *testing.T) {
	table := loadCSV(t, tripsCSV)

	got, err := TopRoutes(table, 2)
	require.NoError(t, err)
	assert.Equal(t, []RouteCount{
		{PickupZone: 132, DropoffZone: 236, Count: 2},
		{PickupZone: 161, DropoffZone: 132, Count: 2},
	}, got)

	_, err = TopRoutes(table, 0)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = TopRoutes(loadCSV(t, "PULocationID\n1\n"), 3)
	assert.ErrorIs(t, err, ErrColumnNotFound)
}

func TestDescribe(t *testing.T) {
	table := loadCSV(t, tripsCSV)

	got, err := Describe(table, ColFareAmount)
	require.NoError(t, err)

	assert.Equal(t, ColFareAmount, got.Column)
	assert.Equal(t, 5, got.Count)
	assert.InDelta(t, 10.4, got.Mean, 1e-9)
	assert.InDelta(t, 11.5456, got.StdDev, 1e-3)
	assert.Equal(t, 0.0, got.Min)
	assert.Equal(t, 30.0, got.Max)
	assert.Equal(t, 7.0, got.Median)
	assert.InDelta(t, 22.0, got.P90, 1e-9)

	single, err := Describe(loadCSV(t, "fare_amount\n4\n"), ColFareAmount)
	require.NoError(t, err)
	assert.Equal(t, 0.0, single.StdDev)
	assert.Equal(t, 4.0, single.Median)
	assert.Equal(t, 4.0, single.P90)

	even, err := Describe(loadCSV(t, "fare_amount\n2\n1\n"), ColFareAmount)
	require.NoError(t, err)
	assert.Equal(t, 1.5, even.Median)
	assert.InDelta(t, 1.9, even.P90, 1e-9)

	_, err = Describe(table, "nonexistent_column")
	assert.ErrorIs(t, err, ErrColumnNotFound)
}
