package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/synthlane/reload-watcher/internal/constants"
	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration with precedence:
// 1. Explicit CLI flags (highest priority)
// 2. Environment variables
// 3. Configuration file values
// 4. Default configuration values (lowest priority)
func LoadConfig(configFile string, cliFlags *CLIFlags) (*Config, error) {
	config := DefaultConfig()

	if configFile != "" {
		if err := loadFromFile(configFile, config); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	loadFromEnv(config)

	if cliFlags != nil {
		overrideWithCLI(config, cliFlags)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// CLIFlags contains CLI flag values that can override configuration.
// A value only applies when the flag was set explicitly on FlagSet, or on
// pflag.CommandLine when FlagSet is nil.
type CLIFlags struct {
	FlagSet *pflag.FlagSet

	BenchPath         *string
	Site              *string
	Apps              *string
	Binary            *string
	ReloadTimeout     *time.Duration
	ClearCacheTimeout *time.Duration
	ClearDocTypeCache *bool
	Debounce          *time.Duration
	Workers           *int
	DrainInFlight     *bool
	LogLevel          *string
	LogFormat         *string
	MetricsEnabled    *bool
	Host              *string
	Port              *string
	TracingEnabled    *bool
}

func (f *CLIFlags) changed(name string) bool {
	fs := f.FlagSet
	if fs == nil {
		fs = pflag.CommandLine
	}
	flag := fs.Lookup(name)
	return flag != nil && flag.Changed
}

// loadFromFile decodes a YAML or JSON file on top of config. Keys absent
// from the file keep their current value.
func loadFromFile(filePath string, config *Config) error {
	if !filepath.IsAbs(filePath) {
		absPath, err := filepath.Abs(filePath)
		if err != nil {
			return fmt.Errorf("failed to get absolute path for %s: %w", filePath, err)
		}
		filePath = absPath
	}

	if err := validateFilePath(filePath); err != nil {
		return fmt.Errorf("invalid config file path %s: %w", filePath, err)
	}

	data, err := os.ReadFile(filePath) // #nosec G304 - file path validated by validateFilePath()
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filePath, err)
	}

	ext := filepath.Ext(filePath)
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, config)
	case ".json":
		err = decodeJSON(data, config)
	default:
		return fmt.Errorf("unsupported config file format: %s", ext)
	}

	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filePath, err)
	}

	return nil
}

// decodeJSON decodes a JSON config through the YAML field mapping so that
// durations may be written as strings such as "500ms".
func decodeJSON(data []byte, config *Config) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	normalized, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(normalized, config)
}

// loadFromEnv loads configuration from environment variables
func loadFromEnv(config *Config) {
	// Variables understood by the bench container scripts
	if val := os.Getenv(constants.EnvLegacyBenchPath); val != "" {
		config.BenchPath = val
	}
	if val := os.Getenv(constants.EnvFrappeSite); val != "" {
		config.Command.Site = val
	}

	if val := os.Getenv(constants.EnvBenchPath); val != "" {
		config.BenchPath = val
	}
	if val := os.Getenv(constants.EnvSite); val != "" {
		config.Command.Site = val
	}
	if val := os.Getenv(constants.EnvApps); val != "" {
		if apps := ParseApps(val); len(apps) > 0 {
			config.Apps = apps
		}
	}
	if val := os.Getenv(constants.EnvBenchBinary); val != "" {
		config.Command.Binary = val
	}
	if val := os.Getenv(constants.EnvReloadTimeout); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			config.Command.ReloadTimeout = duration
		}
	}
	if val := os.Getenv(constants.EnvClearCacheTimeout); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			config.Command.ClearCacheTimeout = duration
		}
	}
	if val := os.Getenv(constants.EnvClearDocTypeCache); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			config.Command.ClearDocTypeCache = enabled
		}
	}
	if val := os.Getenv(constants.EnvCommandRatePerSec); val != "" {
		if rate, err := strconv.ParseFloat(val, 64); err == nil {
			config.Command.MaxPerSecond = rate
		}
	}
	if val := os.Getenv(constants.EnvCommandRateBurst); val != "" {
		if burst, err := strconv.Atoi(val); err == nil {
			config.Command.Burst = burst
		}
	}
	if val := os.Getenv(constants.EnvDebounce); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			config.Watcher.Debounce = duration
		}
	}
	if val := os.Getenv(constants.EnvWorkers); val != "" {
		if workers, err := strconv.Atoi(val); err == nil {
			config.Watcher.Workers = workers
		}
	}
	if val := os.Getenv(constants.EnvDrainInFlight); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			config.Watcher.DrainInFlight = enabled
		}
	}
	if val := os.Getenv(constants.EnvLogLevel); val != "" {
		config.Observability.Logging.Level = val
	}
	if val := os.Getenv(constants.EnvLogFormat); val != "" {
		config.Observability.Logging.Format = val
	}
	if val := os.Getenv(constants.EnvMetricsEnabled); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			config.Observability.Metrics.Enabled = enabled
		}
	}
	if val := os.Getenv(constants.EnvTracingEnabled); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			config.Observability.Tracing.Enabled = enabled
		}
	}
	if val := os.Getenv(constants.EnvServerHost); val != "" {
		config.Server.Host = val
	}
	if val := os.Getenv(constants.EnvServerPort); val != "" {
		config.Server.Port = val
	}
}

// overrideWithCLI overrides configuration with CLI flag values
// Only explicitly set CLI flags override other configuration sources
func overrideWithCLI(config *Config, flags *CLIFlags) {
	if flags == nil {
		return
	}

	if flags.BenchPath != nil && flags.changed("bench-path") {
		config.BenchPath = *flags.BenchPath
	}
	if flags.Site != nil && flags.changed("site") {
		config.Command.Site = *flags.Site
	}
	if flags.Apps != nil && flags.changed("apps") {
		config.Apps = ParseApps(*flags.Apps)
	}
	if flags.Binary != nil && flags.changed("bench-binary") {
		config.Command.Binary = *flags.Binary
	}
	if flags.ReloadTimeout != nil && flags.changed("reload-timeout") {
		config.Command.ReloadTimeout = *flags.ReloadTimeout
	}
	if flags.ClearCacheTimeout != nil && flags.changed("clear-cache-timeout") {
		config.Command.ClearCacheTimeout = *flags.ClearCacheTimeout
	}
	if flags.ClearDocTypeCache != nil && flags.changed("clear-doctype-cache") {
		config.Command.ClearDocTypeCache = *flags.ClearDocTypeCache
	}

	if flags.Debounce != nil && flags.changed("debounce") {
		config.Watcher.Debounce = *flags.Debounce
	}
	if flags.Workers != nil && flags.changed("workers") {
		config.Watcher.Workers = *flags.Workers
	}
	if flags.DrainInFlight != nil && flags.changed("drain-in-flight") {
		config.Watcher.DrainInFlight = *flags.DrainInFlight
	}

	if flags.LogLevel != nil && flags.changed("log-level") {
		config.Observability.Logging.Level = *flags.LogLevel
	}
	if flags.LogFormat != nil && flags.changed("log-format") {
		config.Observability.Logging.Format = *flags.LogFormat
	}
	if flags.MetricsEnabled != nil && flags.changed("metrics") {
		config.Observability.Metrics.Enabled = *flags.MetricsEnabled
	}
	if flags.TracingEnabled != nil && flags.changed("tracing") {
		config.Observability.Tracing.Enabled = *flags.TracingEnabled
	}
	if flags.Host != nil && flags.changed("host") {
		config.Server.Host = *flags.Host
	}
	if flags.Port != nil && flags.changed("port") {
		config.Server.Port = *flags.Port
	}
}

// validateFilePath checks if the file path is safe to read
func validateFilePath(filePath string) error {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}

	cleanPath := filepath.Clean(absPath)
	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("path contains directory traversal attempts")
	}

	return nil
}

// ResolveConfigFile picks the configuration file: the explicit path, then
// RELOAD_WATCHER_CONFIG, then reload-watcher.yaml in the working directory
// if present. An empty result means defaults only.
func ResolveConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv(constants.EnvDefaultConfigFile); env != "" {
		return env
	}
	if info, err := os.Stat(constants.DefaultConfigFileName); err == nil && !info.IsDir() {
		return constants.DefaultConfigFileName
	}
	return ""
}
