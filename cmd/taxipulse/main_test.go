package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// No tip_amount column.
const tripsCSV = `tpep_pickup_datetime,tpep_dropoff_datetime,passenger_count,payment_type,fare_amount,total_amount,PULocationID,DOLocationID
2024-01-01 08:05:00,2024-01-01 08:20:00,1,1,10.5,15,161,236
2024-01-01 08:30:00,2024-01-01 08:45:00,2,2,7,9.5,161,236
2024-01-02 17:10:00,2024-01-02 17:40:00,1,1,20,28,132,161
`

func writeTrips(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jan.csv")
	require.NoError(t, os.WriteFile(path, []byte(tripsCSV), 0644))
	return path
}

func runCLI(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestAnalyzePrintsJSON(t *testing.T) {
	file := writeTrips(t)

	code, stdout, stderr := runCLI("analyze", "-file", file, "-kind", "busiest-hours")
	require.Equal(t, exitOK, code, stderr)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(stdout), &result))
	assert.Equal(t, "busiest-hours", result["kind"])
	values := result["values"].([]interface{})
	require.NotEmpty(t, values)
	assert.Equal(t, map[string]interface{}{"value": 8.0, "count": 2.0}, values[0])
}

func TestAnalyzeAllSkipsMissingColumns(t *testing.T) {
	file := writeTrips(t)

	code, stdout, stderr := runCLI("analyze", "-file", file, "-kind", "all")
	require.Equal(t, exitOK, code, stderr)

	var results []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(stdout), &results))
	kinds := make([]string, 0, len(results))
	for _, r := range results {
		kinds = append(kinds, r["kind"].(string))
	}
	assert.Contains(t, kinds, "top-routes")
	assert.NotContains(t, kinds, "tip-amount-distribution")
	assert.Contains(t, stderr, "analysis skipped")
}

func TestAnalyzeExportsToFile(t *testing.T) {
	file := writeTrips(t)
	out := filepath.Join(t.TempDir(), "hours.csv")

	code, stdout, stderr := runCLI("analyze", "-file", file, "-kind", "busiest-hours", "-format", "csv", "-out", out)
	require.Equal(t, exitOK, code, stderr)
	assert.Equal(t, out, strings.TrimSpace(stdout))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "8,2")
}

func TestAnalyzeErrors(t *testing.T) {
	file := writeTrips(t)

	tests := []struct {
		name     string
		args     []string
		wantCode int
		wantErr  string
	}{
		{name: "no command", args: nil, wantCode: exitUsage, wantErr: "usage"},
		{name: "unknown command", args: []string{"report"}, wantCode: exitUsage, wantErr: "unknown command"},
		{name: "missing flags", args: []string{"analyze", "-file", file}, wantCode: exitUsage, wantErr: "requires -file and -kind"},
		{name: "unknown kind", args: []string{"analyze", "-file", file, "-kind", "borough-share"}, wantCode: exitUsage, wantErr: "unknown analysis kind"},
		{name: "unknown format", args: []string{"analyze", "-file", file, "-kind", "busiest-hours", "-format", "docx"}, wantCode: exitUsage, wantErr: "unsupported export format"},
		{name: "missing file", args: []string{"analyze", "-file", file + ".gone", "-kind", "busiest-hours"}, wantCode: exitError, wantErr: "does not exist"},
		{name: "missing column", args: []string{"analyze", "-file", file, "-kind", "tip-amount-distribution"}, wantCode: exitError, wantErr: "tip_amount"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := runCLI(tt.args...)
			assert.Equal(t, tt.wantCode, code)
			assert.Contains(t, stderr, tt.wantErr)
		})
	}
}

func TestHelpListsKinds(t *testing.T) {
	code, stdout, _ := runCLI("help")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, stdout, "busiest-hours")
	assert.Contains(t, stdout, "taxipulse serve")
}
