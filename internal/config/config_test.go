package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadFrom(t *testing.T) {
	tests := []struct {
		name        string
		env         map[string]string
		file        string
		wantErr     bool
		errContains string
		validateCfg func(*testing.T, *Config)
	}{
		{
			name: "defaults with no file and no env",
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
				assert.Equal(t, int64(102400), cfg.Ingestion.MaxUploadBytes)
				assert.Equal(t, 50000, cfg.Ingestion.ChunkRowCount)
				assert.Equal(t, "permissive", cfg.Ingestion.TextEncoding)
				assert.Equal(t, DefaultDatasetCapacity, cfg.Datasets.Capacity)
				assert.Equal(t, "xlsx", cfg.Export.DefaultFormat)
				assert.Equal(t, "xlsx", cfg.Watch.Format, "watch format falls back to the export default")
				assert.Equal(t, "json", cfg.Logging.Format)
				assert.Equal(t, "stdout", cfg.Logging.Output)
			},
		},
		{
			name: "environment overrides",
			env: map[string]string{
				"TAXIPULSE_SERVER_PORT":                "9090",
				"TAXIPULSE_SERVER_READ_TIMEOUT":        "30s",
				"TAXIPULSE_INGESTION_MAX_UPLOAD_BYTES": "2048",
				"TAXIPULSE_INGESTION_TEXT_ENCODING":    "LATIN1",
				"TAXIPULSE_SECURITY_ALLOWED_ORIGINS":   "http://a.example,http://b.example",
				"TAXIPULSE_LOGGING_FORMAT":             "text",
			},
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 9090, cfg.Server.Port)
				assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
				assert.Equal(t, int64(2048), cfg.Ingestion.MaxUploadBytes)
				assert.Equal(t, "latin1", cfg.Ingestion.TextEncoding)
				assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.Security.AllowedOrigins)
				assert.Equal(t, "json", cfg.Logging.Format, "format is always forced to json")
			},
		},
		{
			name: "yaml file overlays defaults",
			file: `
server:
  port: 7070
ingestion:
  chunk_row_count: 10
  text_encoding: utf-8
export:
  default_format: pdf
watch:
  enabled: true
  debounce: 2s
`,
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 7070, cfg.Server.Port)
				assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout, "keys missing from the file keep defaults")
				assert.Equal(t, 10, cfg.Ingestion.ChunkRowCount)
				assert.Equal(t, "utf-8", cfg.Ingestion.TextEncoding)
				assert.Equal(t, "pdf", cfg.Export.DefaultFormat)
				assert.True(t, cfg.Watch.Enabled)
				assert.Equal(t, 2*time.Second, cfg.Watch.Debounce)
			},
		},
		{
			name: "environment wins over file",
			file: "server:\n  port: 7070\n",
			env:  map[string]string{"TAXIPULSE_SERVER_PORT": "6060"},
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 6060, cfg.Server.Port)
			},
		},
		{
			name:        "invalid port",
			env:         map[string]string{"TAXIPULSE_SERVER_PORT": "99999"},
			wantErr:     true,
			errContains: "invalid server port",
		},
		{
			name:        "zero upload cap",
			env:         map[string]string{"TAXIPULSE_INGESTION_MAX_UPLOAD_BYTES": "0"},
			wantErr:     true,
			errContains: "max upload bytes",
		},
		{
			name:        "unknown encoding",
			env:         map[string]string{"TAXIPULSE_INGESTION_TEXT_ENCODING": "ebcdic"},
			wantErr:     true,
			errContains: "unsupported text encoding",
		},
		{
			name:        "unknown export format",
			file:        "export:\n  default_format: docx\n",
			wantErr:     true,
			errContains: "unsupported export format",
		},
		{
			name:        "malformed yaml",
			file:        "server: [port",
			wantErr:     true,
			errContains: "failed to load config from file",
		},
		{
			name:        "malformed env value",
			env:         map[string]string{"TAXIPULSE_INGESTION_CHUNK_ROW_COUNT": "lots"},
			wantErr:     true,
			errContains: "failed to load config from env",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			path := ""
			if tt.file != "" {
				path = writeConfigFile(t, tt.file)
			}

			cfg, err := LoadFrom(path)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)
			if tt.validateCfg != nil {
				tt.validateCfg(t, cfg)
			}
		})
	}
}

func TestLoadUsesExplicitConfigFile(t *testing.T) {
	path := writeConfigFile(t, "server:\n  port: 8181\n")
	t.Setenv(ConfigFileEnv, path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8181, cfg.Server.Port)
}

func TestValidateNormalizesLoggingOutput(t *testing.T) {
	cfg := Default()
	cfg.Logging.Output = "console"
	cfg.Logging.FilePath = ""

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "stdout", cfg.Logging.Output)
	assert.Equal(t, DefaultLogFile, cfg.Logging.FilePath)
}

func TestValidateCORSRequiresOrigins(t *testing.T) {
	cfg := Default()
	cfg.Security.AllowedOrigins = nil

	err := cfg.Validate()
	require.Error(t, err)

	cfg.Security.EnableCORS = false
	assert.NoError(t, cfg.Validate())
}
