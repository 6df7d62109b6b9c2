package hotreload

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/synthlane/reload-watcher/internal/bench"
	"github.com/synthlane/reload-watcher/internal/config"
	"github.com/synthlane/reload-watcher/internal/constants"
	"github.com/synthlane/reload-watcher/internal/doctype"
	"github.com/synthlane/reload-watcher/internal/observability"
	"go.uber.org/zap"
)

// Manager wires the watcher, the coordinator and the outcome broadcaster
type Manager struct {
	watcher     *Watcher
	coordinator *Coordinator
	broadcaster *Broadcaster
	logger      *zap.Logger
	metrics     *observability.Metrics
	mu          sync.Mutex
	started     bool
}

// NewManager creates a new change watcher manager. Outcomes are logged and,
// when metrics are given, counted.
func NewManager(
	cfg config.WatcherConfig,
	patcher *doctype.Patcher,
	invoker bench.Invoker,
	logger *zap.Logger,
	opts ...Option,
) (*Manager, error) {
	watcher, err := NewWatcher(logger, cfg.QueueSize)
	if err != nil {
		return nil, err
	}

	broadcaster := NewBroadcaster(logger)
	coordinator := NewCoordinator(watcher, cfg, patcher, invoker, broadcaster, logger, opts...)

	m := &Manager{
		watcher:     watcher,
		coordinator: coordinator,
		broadcaster: broadcaster,
		logger:      logger,
		metrics:     coordinator.metrics,
	}
	if err := m.AddListener(constants.ListenerLog, m.logOutcome); err != nil {
		return nil, err
	}
	if err := m.AddListener(constants.ListenerMetrics, m.countOutcome); err != nil {
		return nil, err
	}
	return m, nil
}

// AddRoot subscribes to root and makes its records eligible for dispatch
func (m *Manager) AddRoot(root doctype.WatchedRoot) error {
	if err := m.watcher.Add(root.Dir, root.Recursive); err != nil {
		return err
	}
	m.coordinator.AddRoot(root)
	m.logger.Info("Watching app",
		zap.String("app", root.App),
		zap.String("dir", root.Dir),
		zap.Bool("recursive", root.Recursive),
	)
	return nil
}

// WatchRoots subscribes to every root whose directory exists. Missing
// directories are logged and skipped; it fails only when nothing could be
// watched.
func (m *Manager) WatchRoots(roots []doctype.WatchedRoot) (int, error) {
	var (
		watched int
		errs    []error
	)
	for _, root := range roots {
		info, err := os.Stat(root.Dir)
		if err != nil || !info.IsDir() {
			m.logger.Warn("App directory not found, skipping",
				zap.String("app", root.App),
				zap.String("dir", root.Dir),
			)
			continue
		}
		if err := m.AddRoot(root); err != nil {
			errs = append(errs, fmt.Errorf("app %s: %w", root.App, err))
			continue
		}
		watched++
	}

	if watched == 0 {
		errs = append(errs, errors.New("no app directory could be watched"))
		return 0, errors.Join(errs...)
	}
	for _, err := range errs {
		m.logger.Warn("Failed to watch app", zap.Error(err))
	}
	return watched, nil
}

// Roots returns the watched roots
func (m *Manager) Roots() []doctype.WatchedRoot {
	return m.coordinator.Roots()
}

// AddListener adds an outcome listener
func (m *Manager) AddListener(name string, listener Listener) error {
	return m.broadcaster.AddListener(name, listener)
}

// RemoveListener removes an outcome listener
func (m *Manager) RemoveListener(name string) {
	m.broadcaster.RemoveListener(name)
}

// Start starts watching
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return nil
	}

	if err := m.coordinator.Start(); err != nil {
		return err
	}

	m.started = true
	m.metrics.SetHealthStatus(true)
	m.logger.Info("Change watcher started", zap.Int("roots", len(m.coordinator.Roots())))
	return nil
}

// Stop stops watching. Pending debounce timers are discarded.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.coordinator.Stop()
	m.broadcaster.Close()
	m.metrics.SetHealthStatus(false)
	if m.started {
		m.started = false
		m.logger.Info("Change watcher stopped")
	}
}

// Trigger runs the pipeline for path once without waiting for a change
func (m *Manager) Trigger(ctx context.Context, path string) (bench.Outcome, error) {
	return m.coordinator.Trigger(ctx, path)
}

// IsRunning returns whether the change watcher is running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

// Shutdown stops the manager, giving up on in-flight dispatches when ctx
// ends first.
func (m *Manager) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.Stop()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		m.coordinator.kill()
		return ctx.Err()
	}
}

func (m *Manager) logOutcome(_ context.Context, outcome bench.Outcome) error {
	fields := []zap.Field{
		zap.String("path", outcome.Path),
		zap.String("record", outcome.Ref.String()),
		zap.String("stage", string(outcome.Stage)),
		zap.Duration("duration", outcome.Duration),
	}
	if outcome.Success {
		m.logger.Info("Dispatch completed", fields...)
		return nil
	}
	m.logger.Error("Dispatch failed", append(fields, zap.Error(outcome.Err))...)
	return nil
}

func (m *Manager) countOutcome(_ context.Context, outcome bench.Outcome) error {
	m.metrics.RecordOutcome(string(outcome.Stage), outcome.Success)
	return nil
}
