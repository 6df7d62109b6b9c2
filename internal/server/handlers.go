package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/synthlane/reload-watcher/internal/constants"
	"github.com/synthlane/reload-watcher/internal/observability"
	"go.uber.org/zap"
)

// healthHandler reports liveness along with the watched roots
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	_, span := s.tracer.StartSpan(r.Context(), "health_check")
	defer span.End()

	roots := s.source.Roots()
	dirs := make([]string, 0, len(roots))
	for _, root := range roots {
		dirs = append(dirs, root.Dir)
	}

	running := s.source.IsRunning()
	health := observability.HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   s.version,
		Uptime:    time.Since(s.startTime).String(),
		Roots:     dirs,
		Checks: map[string]bool{
			"watcher": running,
			"roots":   len(roots) > 0,
		},
	}
	if !running {
		health.Status = "unhealthy"
	}

	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(health)

	s.logger.Debug("Health check completed",
		zap.String("path", r.URL.Path),
		zap.String("remote_addr", r.RemoteAddr),
	)
}

// readinessHandler answers 200 once the watcher is subscribed and running
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	_, span := s.tracer.StartSpan(r.Context(), "readiness_check")
	defer span.End()

	ready := s.source.IsRunning() && len(s.source.Roots()) > 0

	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	if ready {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "not ready"})
	}

	s.logger.Debug("Readiness check completed",
		zap.String("path", r.URL.Path),
		zap.Bool("ready", ready),
	)
}

// metricsHandler serves Prometheus metrics
func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	s.metrics.Handler().ServeHTTP(w, r)
}
