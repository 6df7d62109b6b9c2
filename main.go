package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/pflag"
	"github.com/synthlane/reload-watcher/internal/bench"
	"github.com/synthlane/reload-watcher/internal/config"
	"github.com/synthlane/reload-watcher/internal/constants"
	"github.com/synthlane/reload-watcher/internal/doctype"
	"github.com/synthlane/reload-watcher/internal/hotreload"
	"github.com/synthlane/reload-watcher/internal/observability"
	"github.com/synthlane/reload-watcher/internal/server"
	"go.uber.org/zap"
)

func main() {
	os.Exit(run())
}

func run() int {
	configFile := pflag.String("config", "", "Path to configuration file (YAML or JSON)")
	trigger := pflag.String("trigger", "", "Reload a single record file once and exit")

	// Bench
	benchPath := pflag.String("bench-path", constants.DefaultBenchPath, "Path to the Frappe bench")
	site := pflag.String("site", constants.DefaultSite, "Site passed to bench --site")
	apps := pflag.String("apps", "", "Comma-separated apps to watch (default frappe,erpnext,synthlane_ims)")
	binary := pflag.String("bench-binary", constants.DefaultBenchBinary, "bench executable")
	reloadTimeout := pflag.Duration("reload-timeout", constants.DefaultReloadTimeout, "Timeout for bench reload-doc")
	clearCacheTimeout := pflag.Duration("clear-cache-timeout", constants.DefaultClearCacheTimeout, "Timeout for bench clear-cache")
	clearDocTypeCache := pflag.Bool("clear-doctype-cache", false, "Also clear the cache of the reloaded doctype")

	// Watcher
	debounce := pflag.Duration("debounce", constants.DefaultDebounce, "Quiet period before a changed file is dispatched")
	workers := pflag.Int("workers", constants.DefaultWorkers, "Number of dispatch workers")
	drainInFlight := pflag.Bool("drain-in-flight", true, "Let running bench commands finish on shutdown")

	// Observability
	logLevel := pflag.String("log-level", "info", "Log level: debug, info, warn, error")
	logFormat := pflag.String("log-format", "json", "Log format: json or console")
	metricsEnabled := pflag.Bool("metrics", false, "Serve /health, /ready and /metrics")
	tracingEnabled := pflag.Bool("tracing", false, "Export traces to stdout")
	host := pflag.String("host", constants.DefaultServerHost, "Status server host")
	port := pflag.String("port", constants.DefaultServerPort, "Status server port")

	pflag.Usage = printUsage
	pflag.Parse()

	cliFlags := &config.CLIFlags{
		BenchPath:         benchPath,
		Site:              site,
		Apps:              apps,
		Binary:            binary,
		ReloadTimeout:     reloadTimeout,
		ClearCacheTimeout: clearCacheTimeout,
		ClearDocTypeCache: clearDocTypeCache,
		Debounce:          debounce,
		Workers:           workers,
		DrainInFlight:     drainInFlight,
		LogLevel:          logLevel,
		LogFormat:         logFormat,
		MetricsEnabled:    metricsEnabled,
		Host:              host,
		Port:              port,
		TracingEnabled:    tracingEnabled,
	}

	// Load configuration with precedence (CLI > Env > File > Defaults)
	cfg, err := config.LoadConfig(config.ResolveConfigFile(*configFile), cliFlags)
	if err != nil {
		log.Printf("Failed to load configuration: %v", err)
		return 1
	}

	logger, err := observability.NewLogger(cfg.Observability.Logging)
	if err != nil {
		log.Printf("Failed to initialize logger: %v", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	tracer, err := observability.NewTracer(cfg.Observability.Tracing)
	if err != nil {
		logger.Error("Failed to initialize tracer", zap.Error(err))
		return 1
	}
	defer func() { _ = tracer.Shutdown(context.Background()) }()

	metrics := observability.NewMetrics()
	if cfg.Observability.Metrics.Enabled {
		if err := metrics.Register(); err != nil {
			logger.Error("Failed to register metrics", zap.Error(err))
			return 1
		}
	}

	invoker := bench.New(cfg.Command, cfg.BenchPath, logger.Logger,
		bench.WithMetrics(metrics),
		bench.WithTracer(tracer),
	)

	manager, err := hotreload.NewManager(cfg.Watcher, doctype.NewPatcher(nil), invoker, logger.Logger,
		hotreload.WithMetrics(metrics),
		hotreload.WithTracer(tracer),
	)
	if err != nil {
		logger.Error("Failed to create change watcher", zap.Error(err))
		return 1
	}

	if _, err := manager.WatchRoots(cfg.ResolvedRoots()); err != nil {
		logger.Error("Failed to watch apps", zap.Error(err))
		manager.Stop()
		return 1
	}

	if *trigger != "" {
		return runOnce(manager, logger.Logger, *trigger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := manager.Start(); err != nil {
		logger.Error("Failed to start change watcher", zap.Error(err))
		manager.Stop()
		return 1
	}

	logger.Info("Watching for record changes",
		zap.String("bench_path", cfg.BenchPath),
		zap.String("site", cfg.Command.Site),
		zap.Duration("debounce", cfg.Watcher.Debounce),
	)

	var wg sync.WaitGroup
	if cfg.Observability.Metrics.Enabled {
		statusServer := server.New(cfg, manager, logger.Logger, metrics, tracer)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := statusServer.Start(ctx); err != nil {
				logger.Error("Status server stopped", zap.Error(err))
			}
		}()
	}

	<-ctx.Done()
	logger.Info("Shutting down...")

	// in-flight dispatches may still be running a full reload and cache clear
	grace := cfg.Server.ShutdownTimeout + cfg.Command.ReloadTimeout + cfg.Command.ClearCacheTimeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	if err := manager.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Change watcher did not stop cleanly", zap.Error(err))
	}
	wg.Wait()
	return 0
}

// runOnce dispatches a single file and reports the outcome through the exit code.
func runOnce(manager *hotreload.Manager, logger *zap.Logger, path string) int {
	defer manager.Stop()

	outcome, err := manager.Trigger(context.Background(), path)
	if err != nil {
		if errors.Is(err, hotreload.ErrNotApplicable) {
			logger.Error("File is not a watched record", zap.String("path", path))
		} else {
			logger.Error("Trigger failed", zap.Error(err))
		}
		return 1
	}
	if !outcome.Success {
		return 1
	}
	return 0
}

// printUsage prints the usage information
func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [flags]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "\nWatches Frappe app directories for record JSON changes and reloads them with bench.\n")
	fmt.Fprintf(os.Stderr, "\nFlags:\n")
	pflag.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\nEnvironment variables:\n")
	fmt.Fprintf(os.Stderr, "  RELOAD_WATCHER_BENCH_PATH, RELOAD_WATCHER_SITE, RELOAD_WATCHER_APPS\n")
	fmt.Fprintf(os.Stderr, "  RELOAD_WATCHER_BENCH_BINARY, RELOAD_WATCHER_RELOAD_TIMEOUT, RELOAD_WATCHER_CLEAR_CACHE_TIMEOUT\n")
	fmt.Fprintf(os.Stderr, "  RELOAD_WATCHER_DEBOUNCE, RELOAD_WATCHER_WORKERS\n")
	fmt.Fprintf(os.Stderr, "  RELOAD_WATCHER_LOG_LEVEL, RELOAD_WATCHER_LOG_FORMAT, RELOAD_WATCHER_METRICS_ENABLED\n")
	fmt.Fprintf(os.Stderr, "  FRAPPE_SITE, BENCH_PATH (compatibility)\n")
	fmt.Fprintf(os.Stderr, "\nConfiguration file:\n")
	fmt.Fprintf(os.Stderr, "  %s (default configuration file, or RELOAD_WATCHER_CONFIG)\n", constants.DefaultConfigFileName)
	fmt.Fprintf(os.Stderr, "\nExample usage:\n")
	fmt.Fprintf(os.Stderr, "  %s --site synthlane.localhost --apps erpnext,synthlane_ims\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  %s --trigger apps/erpnext/erpnext/accounts/onboarding_step/setup_taxes/setup_taxes.json\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  FRAPPE_SITE=dev.localhost %s --metrics --port 9091\n", os.Args[0])
}
