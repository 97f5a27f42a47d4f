package dataprocessing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"taxipulse/internal/infrastructure"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func loadCSV(t *testing.T, content string) *TripTable {
	t.Helper()
	table, err := NewLoader(DefaultOptions(), testLogger(), nil).Load(context.Background(), strings.NewReader(content))
	require.NoError(t, err)
	return table
}

const hourlyScenarioCSV = `tpep_pickup_datetime,tpep_dropoff_datetime,fare_amount
2024-01-01T08:00,2024-01-01T08:15,10.0
2024-01-01T08:30,2024-01-01T08:40,5.0
`

func TestLoaderLoad(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		input   string
		wantErr error
		check   func(*testing.T, *TripTable)
	}{
		{
			name:  "derives trip duration",
			input: hourlyScenarioCSV,
			check: func(t *testing.T, table *TripTable) {
				assert.Equal(t, 2, table.Rows())
				assert.True(t, table.HasDuration())
				assert.Equal(t, []string{ColPickup, ColDropoff, ColFareAmount, ColTripDuration}, table.Columns())

				d, ok := table.Duration(0)
				assert.True(t, ok)
				assert.Equal(t, 15.0, d)
				d, ok = table.Duration(1)
				assert.True(t, ok)
				assert.Equal(t, 10.0, d)
			},
		},
		{
			name:  "skips malformed lines",
			input: "fare_amount,tip_amount\n1,2\n3,4,5\n6\n7,8\n",
			check: func(t *testing.T, table *TripTable) {
				assert.Equal(t, 2, table.Rows())
				assert.Equal(t, 2, table.SkippedLines())
				fares, err := table.Sanitize(ColFareAmount)
				require.NoError(t, err)
				assert.Equal(t, []float64{1, 7}, fares)
			},
		},
		{
			name:  "tolerates stray quotes",
			input: "zone,fare_amount\nsoho \"east,4\n",
			check: func(t *testing.T, table *TripTable) {
				assert.Equal(t, 1, table.Rows())
			},
		},
		{
			name:  "duration omitted without dropoff column",
			input: "tpep_pickup_datetime,fare_amount\n2024-01-01 08:00:00,3\n",
			check: func(t *testing.T, table *TripTable) {
				assert.False(t, table.HasDuration())
				assert.NotContains(t, table.Columns(), ColTripDuration)
				_, err := table.Sanitize(ColTripDuration)
				assert.ErrorIs(t, err, ErrColumnNotFound)
				assert.True(t, table.Pickup(0).Valid)
				assert.False(t, table.Dropoff(0).Valid)
			},
		},
		{
			name:  "unparsable timestamp gives null duration",
			input: "tpep_pickup_datetime,tpep_dropoff_datetime\nyesterday,2024-01-01 08:00:00\n2024-01-01 08:00:00,\n",
			check: func(t *testing.T, table *TripTable) {
				assert.Equal(t, 2, table.Rows())
				assert.False(t, table.Pickup(0).Valid)
				_, ok := table.Duration(0)
				assert.False(t, ok)
				_, ok = table.Duration(1)
				assert.False(t, ok)

				durations, err := table.Sanitize(ColTripDuration)
				require.NoError(t, err)
				assert.Equal(t, []float64{0, 0}, durations)
			},
		},
		{
			name:  "concatenates chunks in order",
			opts:  Options{ChunkRowCount: 2},
			input: "fare_amount\n1\n2\n3\n4\n5\n",
			check: func(t *testing.T, table *TripTable) {
				fares, err := table.Sanitize(ColFareAmount)
				require.NoError(t, err)
				assert.Equal(t, []float64{1, 2, 3, 4, 5}, fares)
			},
		},
		{
			name:  "permissive strips BOM",
			input: "\xEF\xBB\xBFfare_amount\n1\n",
			check: func(t *testing.T, table *TripTable) {
				assert.True(t, table.HasColumn(ColFareAmount))
			},
		},
		{
			name:  "permissive replaces invalid bytes",
			input: "zone,fare_amount\nbad\xffzone,2\n",
			check: func(t *testing.T, table *TripTable) {
				assert.Equal(t, "bad�zone", table.Frame().Col("zone").Records()[0])
			},
		},
		{
			name:  "latin1 is decoded",
			opts:  Options{TextEncoding: EncodingLatin1},
			input: "zone\ncaf\xe9\n",
			check: func(t *testing.T, table *TripTable) {
				assert.Equal(t, "café", table.Frame().Col("zone").Records()[0])
			},
		},
		{
			name:  "duplicate header names are made unique",
			input: "fare_amount,fare_amount,\n1,2,3\n",
			check: func(t *testing.T, table *TripTable) {
				assert.Equal(t, []string{"fare_amount", "fare_amount_1", "column_3"}, table.Columns())
			},
		},
		{
			name:  "upload at the cap is accepted",
			opts:  Options{MaxUploadBytes: int64(len("fare_amount\n1\n"))},
			input: "fare_amount\n1\n",
			check: func(t *testing.T, table *TripTable) {
				assert.Equal(t, 1, table.Rows())
			},
		},
		{
			name:    "oversize upload",
			opts:    Options{MaxUploadBytes: 10},
			input:   hourlyScenarioCSV,
			wantErr: ErrSizeExceeded,
		},
		{
			name:    "empty input",
			input:   "",
			wantErr: ErrEmptyResult,
		},
		{
			name:    "header only",
			input:   "fare_amount,tip_amount\n",
			wantErr: ErrEmptyResult,
		},
		{
			name:    "every row malformed",
			input:   "fare_amount,tip_amount\n1\n2,3,4\n",
			wantErr: ErrEmptyResult,
		},
		{
			name:    "strict utf-8 rejects invalid bytes",
			opts:    Options{TextEncoding: EncodingUTF8},
			input:   "zone\nbad\xff\n",
			wantErr: ErrDecode,
		},
		{
			name:    "unknown encoding",
			opts:    Options{TextEncoding: "ebcdic"},
			input:   "zone\nx\n",
			wantErr: ErrDecode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader := NewLoader(tt.opts, testLogger(), nil)
			table, err := loader.Load(context.Background(), strings.NewReader(tt.input))

			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, table)

				var ingErr *IngestionError
				assert.True(t, errors.As(err, &ingErr))
				return
			}

			require.NoError(t, err)
			require.NotNil(t, table)
			tt.check(t, table)
		})
	}
}

func TestLoaderDefaults(t *testing.T) {
	opts := NewLoader(Options{}, nil, nil).Options()
	assert.Equal(t, int64(102400), opts.MaxUploadBytes)
	assert.Equal(t, 50000, opts.ChunkRowCount)
	assert.Equal(t, EncodingPermissive, opts.TextEncoding)
}

func TestLoaderStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	loader := NewLoader(Options{ChunkRowCount: 1}, testLogger(), nil)
	table, err := loader.Load(ctx, strings.NewReader("fare_amount\n1\n2\n"))

	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, table)
}

func TestLoaderRecordsMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	metrics, err := infrastructure.CreatePipelineMetrics(mp.Meter("test"))
	require.NoError(t, err)

	loader := NewLoader(Options{MaxUploadBytes: 64}, testLogger(), metrics)
	_, err = loader.Load(context.Background(), strings.NewReader("fare_amount\n1\n2,3\n4\n"))
	require.NoError(t, err)
	_, err = loader.Load(context.Background(), strings.NewReader(strings.Repeat("x", 100)))
	require.ErrorIs(t, err, ErrSizeExceeded)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if data, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range data.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}

	assert.Equal(t, int64(1), sums["taxipulse_datasets_loaded_total"])
	assert.Equal(t, int64(2), sums["taxipulse_rows_loaded_total"])
	assert.Equal(t, int64(1), sums["taxipulse_lines_skipped_total"])
	assert.Equal(t, int64(1), sums["taxipulse_ingestion_failures_total"])
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in     string
		want   time.Time
		wantOK bool
	}{
		{"2024-01-01 08:00:00", time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC), true},
		{"2024-01-01T08:00:00", time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC), true},
		{"2024-01-01T08:30", time.Date(2024, 1, 1, 8, 30, 0, 0, time.UTC), true},
		{"2024-01-01 08:30", time.Date(2024, 1, 1, 8, 30, 0, 0, time.UTC), true},
		{"01/02/2024 15:04:05", time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC), true},
		{"01/02/2024 03:04:05 PM", time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC), true},
		{"2024-01-05", time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), true},
		{"2024-01-01T08:00:00+05:00", time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC), true},
		{" 2024-01-01 08:00:00 ", time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC), true},
		{"", time.Time{}, false},
		{"NaN", time.Time{}, false},
		{"2024-13-01 08:00:00", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseTimestamp(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.True(t, tt.want.Equal(got), "got %s", got)
			}
		})
	}
}

func TestIngestionErrorMessage(t *testing.T) {
	err := &IngestionError{Kind: DecodeError, Message: "decode text", Err: errors.New("boom")}
	assert.Equal(t, "DecodeError: decode text: boom", err.Error())
	assert.NotErrorIs(t, err, ErrEmptyResult)
}
