package constants

import "time"

// Environment variable constants
const (
	EnvBenchPath          = "RELOAD_WATCHER_BENCH_PATH"
	EnvSite               = "RELOAD_WATCHER_SITE"
	EnvApps               = "RELOAD_WATCHER_APPS"
	EnvBenchBinary        = "RELOAD_WATCHER_BENCH_BINARY"
	EnvReloadTimeout      = "RELOAD_WATCHER_RELOAD_TIMEOUT"
	EnvClearCacheTimeout  = "RELOAD_WATCHER_CLEAR_CACHE_TIMEOUT"
	EnvClearDocTypeCache  = "RELOAD_WATCHER_CLEAR_DOCTYPE_CACHE"
	EnvDebounce           = "RELOAD_WATCHER_DEBOUNCE"
	EnvWorkers            = "RELOAD_WATCHER_WORKERS"
	EnvLogLevel           = "RELOAD_WATCHER_LOG_LEVEL"
	EnvLogFormat          = "RELOAD_WATCHER_LOG_FORMAT"
	EnvMetricsEnabled     = "RELOAD_WATCHER_METRICS_ENABLED"
	EnvServerHost         = "RELOAD_WATCHER_HOST"
	EnvServerPort         = "RELOAD_WATCHER_PORT"
	EnvTracingEnabled     = "RELOAD_WATCHER_TRACING_ENABLED"
	EnvFrappeSite         = "FRAPPE_SITE"
	EnvLegacyBenchPath    = "BENCH_PATH"
	EnvDrainInFlight      = "RELOAD_WATCHER_DRAIN_IN_FLIGHT"
	EnvCommandRatePerSec  = "RELOAD_WATCHER_MAX_PER_SECOND"
	EnvCommandRateBurst   = "RELOAD_WATCHER_BURST"
	EnvDefaultConfigFile  = "RELOAD_WATCHER_CONFIG"
	DefaultConfigFileName = "reload-watcher.yaml"
)

// Bench defaults
const (
	DefaultBenchPath   = "/workspace/frappe-bench"
	DefaultSite        = "synthlane.localhost"
	DefaultBenchBinary = "bench"
)

// DefaultApps are the applications watched when none are configured.
var DefaultApps = []string{"frappe", "erpnext", "synthlane_ims"}

// Bench sub-commands and flags
const (
	BenchSiteFlag        = "--site"
	BenchReloadDoc       = "reload-doc"
	BenchForceFlag       = "--force"
	BenchClearCache      = "clear-cache"
	BenchExecute         = "execute"
	BenchKwargsFlag      = "--kwargs"
	FrappeClearCacheFunc = "frappe.clear_cache"
)

// Record file conventions
const (
	// RecordExt is the extension of reloadable record files.
	RecordExt = ".json"
	// ModifiedField is the freshness field rewritten before every reload.
	ModifiedField = "modified"
	// ModifiedLayout is the timestamp layout the record store expects.
	ModifiedLayout = "2006-01-02 15:04:05.000000"
	// RecordIndent is the indentation used when writing records back.
	RecordIndent = " "
)

// Watcher defaults
const (
	DefaultDebounce          = 500 * time.Millisecond
	DefaultWorkers           = 4
	DefaultQueueSize         = 100
	DefaultReloadTimeout     = 30 * time.Second
	DefaultClearCacheTimeout = 10 * time.Second
	DefaultCommandRate       = 4
	DefaultCommandBurst      = 8
)

// Status server defaults
const (
	DefaultServerHost      = "localhost"
	DefaultServerPort      = "9090"
	DefaultShutdownTimeout = 5 * time.Second
	PathHealth             = "/health"
	PathReady              = "/ready"
	PathMetrics            = "/metrics"
	ContentTypeJSON        = "application/json"
	HeaderContentType      = "Content-Type"
)

// Outcome listener names
const (
	ListenerLog     = "log"
	ListenerMetrics = "metrics"
)
