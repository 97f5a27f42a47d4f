package validation

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taxipulse/internal/shared/testutil"
)

func TestFileValidator_ValidateInputDirectory(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "jan.csv")
	require.NoError(t, os.WriteFile(file, []byte("a\n"), 0644))

	logger, _ := testutil.NewTestLogger(t)
	v := NewFileValidator(0, logger)

	assert.NoError(t, v.ValidateInputDirectory(dir))
	assert.ErrorContains(t, v.ValidateInputDirectory(filepath.Join(dir, "missing")), "does not exist")
	assert.ErrorContains(t, v.ValidateInputDirectory(file), "not a directory")
}

func TestFileValidator_ValidateOutputDirectory(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	v := NewFileValidator(0, logger)
	dir := filepath.Join(t.TempDir(), "exports", "nested")

	require.NoError(t, v.ValidateOutputDirectory(dir))
	assert.DirExists(t, dir)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFileValidator_ValidateCSVFile(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name          string
		setup         func(t *testing.T) string
		maxBytes      int64
		errorContains string
	}{
		{
			name: "valid csv",
			setup: func(t *testing.T) string {
				p := filepath.Join(dir, "ok.csv")
				require.NoError(t, os.WriteFile(p, []byte("a,b\n1,2\n"), 0644))
				return p
			},
		},
		{
			name: "upper case extension",
			setup: func(t *testing.T) string {
				p := filepath.Join(dir, "OK.CSV")
				require.NoError(t, os.WriteFile(p, []byte("a\n"), 0644))
				return p
			},
		},
		{
			name: "missing file",
			setup: func(t *testing.T) string {
				return filepath.Join(dir, "missing.csv")
			},
			errorContains: "does not exist",
		},
		{
			name: "directory",
			setup: func(t *testing.T) string {
				p := filepath.Join(dir, "folder.csv")
				require.NoError(t, os.Mkdir(p, 0755))
				return p
			},
			errorContains: "not a regular file",
		},
		{
			name: "wrong extension",
			setup: func(t *testing.T) string {
				p := filepath.Join(dir, "trips.xlsx")
				require.NoError(t, os.WriteFile(p, []byte("PK"), 0644))
				return p
			},
			errorContains: "not a CSV file",
		},
		{
			name: "too large",
			setup: func(t *testing.T) string {
				p := filepath.Join(dir, "big.csv")
				require.NoError(t, os.WriteFile(p, []byte(strings.Repeat("x", 64)), 0644))
				return p
			},
			maxBytes:      16,
			errorContains: "limit is 16",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, handler := testutil.NewTestLogger(t)
			v := NewFileValidator(tt.maxBytes, logger)
			err := v.ValidateCSVFile(tt.setup(t))
			if tt.errorContains == "" {
				assert.NoError(t, err)
				assert.True(t, handler.ContainsMessage("CSV file validated"))
				return
			}
			assert.ErrorContains(t, err, tt.errorContains)
		})
	}
}
