package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPaths(t *testing.T) {
	base := t.TempDir()
	absExports := filepath.Join(t.TempDir(), "elsewhere")

	tests := []struct {
		name  string
		cfg   PathsConfig
		check func(*testing.T, *Paths)
	}{
		{
			name: "defaults are anchored at base dir",
			cfg:  PathsConfig{BaseDir: base},
			check: func(t *testing.T, p *Paths) {
				assert.Equal(t, base, p.BaseDir)
				assert.Equal(t, filepath.Join(base, "data", "uploads"), p.UploadsDir)
				assert.Equal(t, filepath.Join(base, "data", "exports"), p.ExportsDir)
				assert.Equal(t, filepath.Join(base, "data", "inbox"), p.InboxDir)
				assert.Equal(t, filepath.Join(base, "logs"), p.LogsDir)
			},
		},
		{
			name: "absolute paths are kept",
			cfg:  PathsConfig{BaseDir: base, ExportsDir: absExports},
			check: func(t *testing.T, p *Paths) {
				assert.Equal(t, absExports, p.ExportsDir)
			},
		},
		{
			name: "relative overrides",
			cfg:  PathsConfig{BaseDir: base, InboxDir: "drop"},
			check: func(t *testing.T, p *Paths) {
				assert.Equal(t, filepath.Join(base, "drop"), p.InboxDir)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := GetPaths(tt.cfg)
			require.NoError(t, err)
			tt.check(t, p)
		})
	}
}

func TestGetPathsDefaultsToExecutableDir(t *testing.T) {
	p, err := GetPaths(PathsConfig{})
	require.NoError(t, err)

	exe, err := os.Executable()
	require.NoError(t, err)
	exe, err = filepath.EvalSymlinks(exe)
	require.NoError(t, err)

	assert.Equal(t, filepath.Dir(exe), p.BaseDir)
}

func TestEnsureDirectories(t *testing.T) {
	p, err := GetPaths(PathsConfig{BaseDir: t.TempDir()})
	require.NoError(t, err)

	require.NoError(t, p.EnsureDirectories())

	for _, dir := range []string{p.DataDir, p.UploadsDir, p.ExportsDir, p.InboxDir, p.LogsDir} {
		info, err := os.Stat(dir)
		require.NoError(t, err, dir)
		assert.True(t, info.IsDir())
	}

	assert.Equal(t, filepath.Join(p.ExportsDir, "x.xlsx"), p.GetExportPath("x.xlsx"))
	assert.Equal(t, filepath.Join(p.LogsDir, "a.log"), p.GetLogPath("a.log"))
	assert.True(t, FileExists(p.UploadsDir))
	assert.False(t, FileExists(filepath.Join(p.UploadsDir, "missing.csv")))
}
