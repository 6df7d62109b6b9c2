// Package bench drives the Frappe bench CLI: it force-reloads a record and
// then clears the site cache.
package bench

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/synthlane/reload-watcher/internal/config"
	"github.com/synthlane/reload-watcher/internal/constants"
	"github.com/synthlane/reload-watcher/internal/doctype"
	"github.com/synthlane/reload-watcher/internal/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Invoker reloads a record in the running application.
type Invoker interface {
	Reload(ctx context.Context, ref doctype.RecordRef) Outcome
}

// Client is the bench-backed Invoker.
type Client struct {
	cfg       config.CommandConfig
	benchPath string
	runner    Runner
	limiter   *rate.Limiter
	logger    *zap.Logger
	metrics   *observability.Metrics
	tracer    *observability.Tracer
}

// Option customises a Client.
type Option func(*Client)

// WithRunner replaces the exec-backed runner.
func WithRunner(r Runner) Option {
	return func(c *Client) { c.runner = r }
}

// WithMetrics records command durations.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithTracer wraps each command in a span.
func WithTracer(t *observability.Tracer) Option {
	return func(c *Client) { c.tracer = t }
}

// New creates a Client running cfg.Binary inside benchPath.
func New(cfg config.CommandConfig, benchPath string, logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		cfg:       cfg,
		benchPath: benchPath,
		runner:    ExecRunner{},
		logger:    logger,
		metrics:   observability.NewMetrics(),
		tracer:    observability.NoopTracer(),
	}
	if cfg.MaxPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.MaxPerSecond), cfg.Burst)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ReloadArgs returns the arguments of the reload-doc invocation for ref.
func (c *Client) ReloadArgs(ref doctype.RecordRef) []string {
	return []string{
		constants.BenchSiteFlag, c.cfg.Site,
		constants.BenchReloadDoc, ref.Module, ref.DocType, ref.Name,
		constants.BenchForceFlag,
	}
}

// ClearCacheArgs returns the arguments of the clear-cache invocation.
func (c *Client) ClearCacheArgs() []string {
	return []string{constants.BenchSiteFlag, c.cfg.Site, constants.BenchClearCache}
}

// DocTypeCacheArgs returns the arguments that clear the cache of a single
// doctype through frappe.clear_cache.
func (c *Client) DocTypeCacheArgs(ref doctype.RecordRef) ([]string, error) {
	kwargs, err := json.Marshal(map[string]string{"doctype": doctype.DocTypeName(ref.DocType)})
	if err != nil {
		return nil, fmt.Errorf("failed to encode clear_cache kwargs: %w", err)
	}
	return []string{
		constants.BenchSiteFlag, c.cfg.Site,
		constants.BenchExecute, constants.FrappeClearCacheFunc,
		constants.BenchKwargsFlag, string(kwargs),
	}, nil
}

// Reload force-reloads ref and, only when that succeeds, clears the cache.
// Failures are reported in the Outcome; Reload never panics on them.
func (c *Client) Reload(ctx context.Context, ref doctype.RecordRef) Outcome {
	start := time.Now()
	log := c.logger.With(
		zap.String("module", ref.Module),
		zap.String("doctype", ref.DocType),
		zap.String("name", ref.Name),
	)

	res, err := c.run(ctx, constants.BenchReloadDoc, c.cfg.ReloadTimeout, c.ReloadArgs(ref))
	if err != nil {
		fields := []zap.Field{zap.Error(err)}
		var cmdErr *ExternalCommandError
		if errors.As(err, &cmdErr) {
			fields = append(fields,
				zap.Int("exit_code", cmdErr.ExitCode),
				zap.Bool("timed_out", cmdErr.TimedOut),
				zap.String("stderr", strings.TrimSpace(cmdErr.Stderr)),
				zap.String("stdout", strings.TrimSpace(cmdErr.Stdout)),
			)
		}
		log.Error("Reload failed", fields...)
		out := Failed(ref, StageReload, err)
		out.Duration = time.Since(start)
		return out
	}
	log.Info("Reloaded record", zap.String("output", strings.TrimSpace(res.Stdout)))

	if _, err := c.run(ctx, constants.BenchClearCache, c.cfg.ClearCacheTimeout, c.ClearCacheArgs()); err != nil {
		fields := []zap.Field{zap.Error(err)}
		var cmdErr *ExternalCommandError
		if errors.As(err, &cmdErr) {
			fields = append(fields, zap.String("stderr", strings.TrimSpace(cmdErr.Stderr)))
		}
		log.Warn("Cache clear failed", fields...)
		out := Failed(ref, StageClearCache, err)
		out.Output = res.Stdout
		out.Duration = time.Since(start)
		return out
	}
	log.Info("Cache cleared")

	if c.cfg.ClearDocTypeCache {
		c.clearDocTypeCache(ctx, ref, log)
	}

	return Outcome{
		Ref:      ref,
		Success:  true,
		Stage:    StageDone,
		Output:   res.Stdout,
		Duration: time.Since(start),
	}
}

// clearDocTypeCache is best effort: failures are logged and never change the
// outcome.
func (c *Client) clearDocTypeCache(ctx context.Context, ref doctype.RecordRef, log *zap.Logger) {
	args, err := c.DocTypeCacheArgs(ref)
	if err == nil {
		_, err = c.run(ctx, constants.BenchExecute, c.cfg.ClearCacheTimeout, args)
	}
	if err != nil {
		log.Warn("DocType cache clear failed", zap.Error(err))
	}
}

// run executes one bench command bounded by timeout. Any failure, including
// waiting on the throttle, comes back as an *ExternalCommandError.
func (c *Client) run(ctx context.Context, name string, timeout time.Duration, args []string) (Result, error) {
	ctx, span := c.tracer.StartSpan(ctx, "bench "+name,
		attribute.String("bench.command", name),
		attribute.StringSlice("bench.args", args),
	)

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			cmdErr := &ExternalCommandError{Command: c.cfg.Binary, Args: args, ExitCode: -1, Err: err}
			observability.EndSpan(span, cmdErr)
			return Result{}, cmdErr
		}
	}

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c.logger.Debug("Running bench command",
		zap.String("command", c.cfg.Binary),
		zap.Strings("args", args),
	)

	start := time.Now()
	res, err := c.runner.Run(cctx, c.benchPath, c.cfg.Binary, args...)
	timedOut := errors.Is(cctx.Err(), context.DeadlineExceeded)
	failed := err != nil || res.ExitCode != 0 || timedOut
	c.metrics.ObserveCommand(name, !failed, time.Since(start))

	if failed {
		cmdErr := &ExternalCommandError{
			Command:  c.cfg.Binary,
			Args:     args,
			ExitCode: res.ExitCode,
			Stdout:   res.Stdout,
			Stderr:   res.Stderr,
			TimedOut: timedOut,
			Err:      err,
		}
		span.SetAttributes(attribute.Int("bench.exit_code", res.ExitCode))
		observability.EndSpan(span, cmdErr)
		return res, cmdErr
	}

	observability.EndSpan(span, nil)
	return res, nil
}
