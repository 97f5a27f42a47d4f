package http

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taxipulse/internal/config"
	"taxipulse/internal/dataprocessing"
	"taxipulse/internal/exporter"
	"taxipulse/internal/services"
)

type fixedClients int

func (c fixedClients) ClientCount() int { return int(c) }

func newHealthRouter(t *testing.T, paths *config.Paths, withDatasets bool) http.Handler {
	t.Helper()
	logger := discardLogger()

	var datasets *services.DatasetService
	if withDatasets {
		loader := dataprocessing.NewLoader(dataprocessing.DefaultOptions(), logger, nil)
		exp := exporter.NewExporter(paths, config.ExportConfig{}, logger)
		datasets = services.NewDatasetService(loader, exp, nil, nil, services.DatasetServiceOptions{Capacity: 2}, logger)
	}
	hs := services.NewHealthService("test", paths, datasets, fixedClients(2), logger)
	return NewHealthHandler(hs, logger).Routes()
}

func TestHealthHandler(t *testing.T) {
	paths, err := config.GetPaths(config.PathsConfig{BaseDir: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, paths.EnsureDirectories())
	router := newHealthRouter(t, paths, true)

	tests := []struct {
		path       string
		wantStatus string
	}{
		{path: "/", wantStatus: "ok"},
		{path: "/ready", wantStatus: "ready"},
		{path: "/live", wantStatus: "alive"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			body := decodeBody(t, rec)
			assert.Equal(t, tt.wantStatus, body["status"])
			assert.Equal(t, "test", body["version"])
		})
	}

	t.Run("/stats", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, 2.0, body["websocket_clients"])
		assert.Equal(t, 0.0, body["datasets"])
	})
}

func TestHealthHandlerNotReady(t *testing.T) {
	paths := &config.Paths{ExportsDir: filepath.Join(t.TempDir(), "absent")}
	router := newHealthRouter(t, paths, false)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "not_ready", decodeBody(t, rec)["status"])
}

func TestMetricsHandler(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewMetricsHandler(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "disabled", decodeBody(t, rec)["status"])
	})

	t.Run("enabled", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "taxipulse_test_total", Help: "test counter"})
		reg.MustRegister(counter)
		counter.Inc()

		rec := httptest.NewRecorder()
		NewMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).
			ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "taxipulse_test_total 1")
	})
}
