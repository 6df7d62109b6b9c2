// Package server exposes the watcher's health, readiness and Prometheus
// metrics over HTTP. It is only started when metrics are enabled.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/synthlane/reload-watcher/internal/config"
	"github.com/synthlane/reload-watcher/internal/constants"
	"github.com/synthlane/reload-watcher/internal/doctype"
	"github.com/synthlane/reload-watcher/internal/observability"
	"go.uber.org/zap"
)

// StatusSource reports the state of the change watcher
type StatusSource interface {
	IsRunning() bool
	Roots() []doctype.WatchedRoot
}

type Server struct {
	config      config.ServerConfig
	metricsPath string
	version     string
	source      StatusSource
	server      *http.Server

	logger    *zap.Logger
	metrics   *observability.Metrics
	tracer    *observability.Tracer
	startTime time.Time
}

func New(cfg *config.Config, source StatusSource, logger *zap.Logger, metrics *observability.Metrics, tracer *observability.Tracer) *Server {
	metricsPath := cfg.Observability.Metrics.Path
	if metricsPath == "" {
		metricsPath = constants.PathMetrics
	}
	if tracer == nil {
		tracer = observability.NoopTracer()
	}

	return &Server{
		config:      cfg.Server,
		metricsPath: metricsPath,
		version:     cfg.Observability.Tracing.Version,
		source:      source,
		logger:      logger,
		metrics:     metrics,
		tracer:      tracer,
		startTime:   time.Now(),
	}
}

// Handler returns the status endpoints wrapped in the middleware chain
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(constants.PathHealth, s.healthHandler)
	mux.HandleFunc(constants.PathReady, s.readinessHandler)
	mux.HandleFunc(s.metricsPath, s.metricsHandler)
	return s.applyMiddleware(mux)
}

// Start serves until ctx is cancelled, then shuts down within the
// configured timeout.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Address())
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB max header size
	}

	s.logger.Info("Starting status server",
		zap.String("address", ln.Addr().String()),
		zap.String("metrics_path", s.metricsPath),
	)

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			s.logger.Error("Status server failed", zap.Error(err))
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down status server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Failed to shutdown status server", zap.Error(err))
		return err
	}
	return nil
}
