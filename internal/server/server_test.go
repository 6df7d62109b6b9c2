package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synthlane/reload-watcher/internal/config"
	"github.com/synthlane/reload-watcher/internal/doctype"
	"github.com/synthlane/reload-watcher/internal/observability"
	"go.uber.org/zap"
)

type stubSource struct {
	running bool
	roots   []doctype.WatchedRoot
}

func (s stubSource) IsRunning() bool              { return s.running }
func (s stubSource) Roots() []doctype.WatchedRoot { return s.roots }

var erpnextRoot = doctype.WatchedRoot{App: "erpnext", Dir: "/workspace/frappe-bench/apps/erpnext", Recursive: true}

func newTestServer(t *testing.T, source StatusSource) (*Server, *observability.Metrics) {
	t.Helper()
	metrics := observability.NewMetrics()
	require.NoError(t, metrics.Register())

	cfg := config.DefaultConfig()
	cfg.Observability.Metrics.Enabled = true
	return New(cfg, source, zap.NewNop(), metrics, nil), metrics
}

func TestServer_ObservabilityEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, stubSource{running: true, roots: []doctype.WatchedRoot{erpnextRoot}})
	handler := srv.Handler()

	tests := []struct {
		name           string
		endpoint       string
		expectedStatus int
		contentType    string
	}{
		{"health endpoint", "/health", http.StatusOK, "application/json"},
		{"ready endpoint", "/ready", http.StatusOK, "application/json"},
		{"metrics endpoint", "/metrics", http.StatusOK, "text/plain"},
		{"unknown endpoint", "/reload", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.endpoint, nil))

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.contentType != "" {
				assert.Contains(t, w.Header().Get("Content-Type"), tt.contentType)
			}
		})
	}
}

func TestHealthHandler(t *testing.T) {
	srv, _ := newTestServer(t, stubSource{running: true, roots: []doctype.WatchedRoot{erpnextRoot}})

	w := httptest.NewRecorder()
	srv.healthHandler(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var health observability.HealthStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&health))

	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "1.0.0", health.Version)
	assert.NotEmpty(t, health.Uptime)
	assert.Equal(t, []string{erpnextRoot.Dir}, health.Roots)
	assert.True(t, health.Checks["watcher"])
	assert.True(t, health.Checks["roots"])
}

func TestHealthHandler_Stopped(t *testing.T) {
	srv, _ := newTestServer(t, stubSource{})

	w := httptest.NewRecorder()
	srv.healthHandler(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	var health observability.HealthStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&health))
	assert.Equal(t, "unhealthy", health.Status)
	assert.False(t, health.Checks["watcher"])
}

func TestReadinessHandler(t *testing.T) {
	tests := []struct {
		name   string
		source stubSource
		status int
		body   string
	}{
		{"ready", stubSource{running: true, roots: []doctype.WatchedRoot{erpnextRoot}}, http.StatusOK, "ready"},
		{"not running", stubSource{roots: []doctype.WatchedRoot{erpnextRoot}}, http.StatusServiceUnavailable, "not ready"},
		{"no roots", stubSource{running: true}, http.StatusServiceUnavailable, "not ready"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, tt.source)

			w := httptest.NewRecorder()
			srv.readinessHandler(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
			assert.Equal(t, tt.status, w.Code)

			var response map[string]string
			require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
			assert.Equal(t, tt.body, response["status"])
		})
	}
}

func TestMetricsHandler(t *testing.T) {
	srv, metrics := newTestServer(t, stubSource{running: true})
	metrics.RecordOutcome("done", true)
	metrics.SetHealthStatus(true)

	w := httptest.NewRecorder()
	srv.metricsHandler(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `reload_watcher_outcomes_total{result="success",stage="done"} 1`)
	assert.Contains(t, body, "reload_watcher_health_status 1")
}

func TestServer_CustomMetricsPath(t *testing.T) {
	metrics := observability.NewMetrics()
	require.NoError(t, metrics.Register())

	cfg := config.DefaultConfig()
	cfg.Observability.Metrics.Path = "/internal/metrics"
	srv := New(cfg, stubSource{}, zap.NewNop(), metrics, nil)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/internal/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_ServeAndShutdown(t *testing.T) {
	srv, _ := newTestServer(t, stubSource{running: true, roots: []doctype.WatchedRoot{erpnextRoot}})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	url := fmt.Sprintf("http://%s/ready", ln.Addr().String())
	var resp *http.Response
	require.Eventually(t, func() bool {
		resp, err = http.Get(url)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), `"ready"`))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}
