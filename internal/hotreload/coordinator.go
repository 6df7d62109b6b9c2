package hotreload

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/synthlane/reload-watcher/internal/bench"
	"github.com/synthlane/reload-watcher/internal/config"
	"github.com/synthlane/reload-watcher/internal/constants"
	"github.com/synthlane/reload-watcher/internal/doctype"
	"github.com/synthlane/reload-watcher/internal/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Skip reasons reported to metrics.
const (
	skipIgnoredKind   = "ignored_kind"
	skipNotApplicable = "not_applicable"
	skipSelfWrite     = "self_write"
)

var (
	// ErrNotApplicable is returned by Trigger for a path that is not a record.
	ErrNotApplicable = errors.New("not a record path")
	// ErrInFlight is returned by Trigger while the path is already being dispatched.
	ErrInFlight = errors.New("dispatch already in flight")
)

// Option customises a Coordinator.
type Option func(*Coordinator)

// WithMetrics records events, skips and outcomes.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithTracer wraps every dispatch in a span.
func WithTracer(t *observability.Tracer) Option {
	return func(c *Coordinator) { c.tracer = t }
}

// Coordinator debounces change events per path and runs each settled path
// through classify, patch and reload on a bounded worker pool.
type Coordinator struct {
	watcher     *Watcher
	cfg         config.WatcherConfig
	patcher     *doctype.Patcher
	invoker     bench.Invoker
	broadcaster *Broadcaster
	logger      *zap.Logger
	metrics     *observability.Metrics
	tracer      *observability.Tracer

	roots    []doctype.WatchedRoot
	timers   map[string]*time.Timer
	inFlight map[string]bool
	dirty    map[string]bool

	// written holds the digest of our own last write per path. It is kept
	// until the file holds something else, so recognising a self-write does
	// not depend on when its event arrives.
	written *cache.Cache
	jobs    chan string

	ctx    context.Context
	cancel context.CancelFunc
	runCtx context.Context
	kill   context.CancelFunc

	mu        sync.Mutex
	wg        sync.WaitGroup
	isRunning bool
	stopped   bool
}

// NewCoordinator creates a new coordinator fed by watcher
func NewCoordinator(
	watcher *Watcher,
	cfg config.WatcherConfig,
	patcher *doctype.Patcher,
	invoker bench.Invoker,
	broadcaster *Broadcaster,
	logger *zap.Logger,
	opts ...Option,
) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	runCtx, kill := context.WithCancel(context.Background())

	queueSize := cfg.QueueSize
	if queueSize < 1 {
		queueSize = constants.DefaultQueueSize
	}

	c := &Coordinator{
		watcher:     watcher,
		cfg:         cfg,
		patcher:     patcher,
		invoker:     invoker,
		broadcaster: broadcaster,
		logger:      logger,
		metrics:     observability.NewMetrics(),
		tracer:      observability.NoopTracer(),
		timers:      make(map[string]*time.Timer),
		inFlight:    make(map[string]bool),
		dirty:       make(map[string]bool),
		written:     cache.New(cache.NoExpiration, 0),
		jobs:        make(chan string, queueSize),
		ctx:         ctx,
		cancel:      cancel,
		runCtx:      runCtx,
		kill:        kill,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AddRoot makes paths under root eligible for classification.
func (c *Coordinator) AddRoot(root doctype.WatchedRoot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roots = append(c.roots, root)
}

// Roots returns the roots paths are classified against.
func (c *Coordinator) Roots() []doctype.WatchedRoot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]doctype.WatchedRoot(nil), c.roots...)
}

// Start starts the watcher, the event loop and the workers
func (c *Coordinator) Start() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return errors.New("coordinator stopped")
	}
	if c.isRunning {
		c.mu.Unlock()
		return errors.New("coordinator already running")
	}
	c.isRunning = true
	c.mu.Unlock()

	if err := c.watcher.Start(); err != nil {
		return err
	}

	workers := c.cfg.Workers
	if workers < 1 {
		workers = 1
	}

	c.wg.Add(1 + workers)
	go c.processEvents()
	for i := 0; i < workers; i++ {
		go c.work()
	}

	c.logger.Info("Change coordinator started",
		zap.Int("workers", workers),
		zap.Duration("debounce", c.cfg.Debounce),
	)
	return nil
}

// Stop discards pending debounce timers and stops taking new work. In-flight
// dispatches finish when DrainInFlight is set and are cancelled otherwise.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.isRunning = false
	for path, t := range c.timers {
		t.Stop()
		delete(c.timers, path)
	}
	c.mu.Unlock()

	c.cancel()
	if !c.cfg.DrainInFlight {
		c.kill()
	}
	c.watcher.Stop()
	c.wg.Wait()
	c.kill()
	c.dropQueued()
	c.written.Flush()

	c.logger.Info("Change coordinator stopped")
}

// processEvents moves watcher events onto debounce timers
func (c *Coordinator) processEvents() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		case event, ok := <-c.watcher.Events():
			if !ok {
				return
			}
			c.HandleEvent(event)
		}
	}
}

// HandleEvent records a change event. It never blocks on a dispatch: created
// and modified records only (re)arm the path's debounce timer.
func (c *Coordinator) HandleEvent(event ChangeEvent) {
	c.metrics.RecordEvent(string(event.Kind))

	switch event.Kind {
	case EventCreated, EventModified:
	default:
		c.logger.Debug("Ignoring change", zap.String("path", event.Path), zap.String("kind", string(event.Kind)))
		c.metrics.RecordSkip(skipIgnoredKind)
		return
	}

	if filepath.Ext(event.Path) != constants.RecordExt {
		c.metrics.RecordSkip(skipNotApplicable)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.scheduleLocked(event.Path)
}

// scheduleLocked (re)arms the debounce timer of path.
func (c *Coordinator) scheduleLocked(path string) {
	if c.stopped {
		return
	}

	if t, ok := c.timers[path]; ok && t.Stop() {
		t.Reset(c.cfg.Debounce)
		return
	}

	// Either no timer exists or the old one already fired; its callback sees
	// it was replaced and does nothing.
	var t *time.Timer
	t = time.AfterFunc(c.cfg.Debounce, func() { c.fire(path, t) })
	c.timers[path] = t
}

// fire runs when a path has been quiet for the debounce window.
func (c *Coordinator) fire(path string, t *time.Timer) {
	c.mu.Lock()
	if c.timers[path] != t {
		c.mu.Unlock()
		return
	}
	delete(c.timers, path)

	if c.inFlight[path] {
		c.dirty[path] = true
		c.mu.Unlock()
		c.logger.Debug("Dispatch in flight, will rerun", zap.String("path", path))
		return
	}
	c.inFlight[path] = true
	c.mu.Unlock()

	select {
	case c.jobs <- path:
	case <-c.ctx.Done():
		c.release(path)
	}
}

// work consumes settled paths until the coordinator stops
func (c *Coordinator) work() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		case path := <-c.jobs:
			// queued but not started work is discarded on stop
			if c.ctx.Err() != nil {
				c.release(path)
				return
			}
			c.process(path)
		}
	}
}

// dropQueued releases paths that were queued but never picked up.
func (c *Coordinator) dropQueued() {
	for {
		select {
		case path := <-c.jobs:
			c.release(path)
		default:
			return
		}
	}
}

func (c *Coordinator) process(path string) {
	defer c.release(path)

	c.metrics.InFlight.Inc()
	defer c.metrics.InFlight.Dec()

	outcome, applicable := c.dispatch(c.runCtx, path, false)
	if applicable {
		c.publish(outcome)
	}
}

// release ends the in-flight state of path and re-arms it if more changes
// arrived meanwhile.
func (c *Coordinator) release(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.inFlight, path)
	if c.dirty[path] {
		delete(c.dirty, path)
		c.scheduleLocked(path)
	}
}

func (c *Coordinator) publish(outcome bench.Outcome) {
	if err := c.broadcaster.Broadcast(c.runCtx, outcome); err != nil {
		c.logger.Warn("Outcome listener failed", zap.String("path", outcome.Path), zap.Error(err))
	}
}

// Trigger dispatches path immediately, bypassing debounce and self-write
// suppression. It honours single flight.
func (c *Coordinator) Trigger(ctx context.Context, path string) (bench.Outcome, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return bench.Outcome{}, fmt.Errorf("failed to get absolute path: %w", err)
	}

	c.mu.Lock()
	if c.inFlight[absPath] {
		c.mu.Unlock()
		return bench.Outcome{}, ErrInFlight
	}
	c.inFlight[absPath] = true
	c.mu.Unlock()
	defer c.release(absPath)

	outcome, applicable := c.dispatch(ctx, absPath, true)
	if !applicable {
		return bench.Outcome{}, fmt.Errorf("%s: %w", absPath, ErrNotApplicable)
	}
	c.publish(outcome)
	return outcome, nil
}

// dispatch runs one path through classify, patch and reload. It reports
// false when the path was filtered out before any side effect.
func (c *Coordinator) dispatch(ctx context.Context, path string, force bool) (bench.Outcome, bool) {
	ctx, span := c.tracer.StartSpan(ctx, "dispatch", attribute.String("record.path", path))

	ref, ok := doctype.Classify(path, c.Roots())
	if !ok {
		c.logger.Debug("Not a record path", zap.String("path", path))
		c.metrics.RecordSkip(skipNotApplicable)
		observability.EndSpan(span, nil)
		return bench.Outcome{}, false
	}
	span.SetAttributes(attribute.String("record.ref", ref.String()))

	if !force && c.selfInduced(path) {
		c.logger.Debug("Skipping self-induced change", zap.String("path", path))
		c.metrics.RecordSkip(skipSelfWrite)
		observability.EndSpan(span, nil)
		return bench.Outcome{}, false
	}

	log := c.logger.With(zap.String("path", path), zap.String("record", ref.String()))
	log.Info("Record changed", zap.String("app", ref.App))

	start := time.Now()
	res, err := c.patcher.Patch(path)
	if err != nil {
		log.Error("Patch failed", zap.Error(err))
		outcome := bench.Failed(ref, bench.StagePatch, err)
		outcome.Path = path
		outcome.Duration = time.Since(start)
		observability.EndSpan(span, err)
		return outcome, true
	}
	c.written.Set(path, res.Digest, cache.NoExpiration)
	log.Debug("Patched modified timestamp", zap.Time("modified", res.Modified))

	outcome := c.invoker.Reload(ctx, ref)
	outcome.Path = path
	outcome.Duration = time.Since(start)

	observability.EndSpan(span, outcome.Err)
	return outcome, true
}

// selfInduced reports whether the file still holds exactly what we last
// wrote. Once it holds anything else the entry is dropped.
func (c *Coordinator) selfInduced(path string) bool {
	v, ok := c.written.Get(path)
	if !ok {
		return false
	}
	digest, err := doctype.FileDigest(path)
	if err == nil && v.(string) == digest {
		return true
	}
	c.written.Delete(path)
	return false
}

// IsRunning returns whether the coordinator is currently running
func (c *Coordinator) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isRunning
}
