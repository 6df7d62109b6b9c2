package config

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/synthlane/reload-watcher/internal/constants"
	"github.com/synthlane/reload-watcher/internal/doctype"
)

// Config represents the unified configuration structure
type Config struct {
	BenchPath     string              `json:"bench_path" yaml:"bench_path"`
	Apps          []AppConfig         `json:"apps" yaml:"apps"`
	Command       CommandConfig       `json:"command" yaml:"command"`
	Watcher       WatcherConfig       `json:"watcher" yaml:"watcher"`
	Observability ObservabilityConfig `json:"observability" yaml:"observability"`
	Server        ServerConfig        `json:"server" yaml:"server"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		BenchPath:     constants.DefaultBenchPath,
		Apps:          DefaultApps(),
		Command:       DefaultCommandConfig(),
		Watcher:       DefaultWatcherConfig(),
		Observability: DefaultObservabilityConfig(),
		Server:        DefaultServerConfig(),
	}
}

// Validate validates the entire configuration
func (c *Config) Validate() error {
	var errs []error

	if c.BenchPath == "" {
		errs = append(errs, errors.New("bench_path cannot be empty"))
	}
	if len(c.Apps) == 0 {
		errs = append(errs, errors.New("at least one app must be configured"))
	}
	seen := make(map[string]bool, len(c.Apps))
	for i, app := range c.Apps {
		if err := app.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("apps[%d]: %w", i, err))
			continue
		}
		if seen[app.Name] {
			errs = append(errs, fmt.Errorf("apps[%d]: duplicate app %q", i, app.Name))
		}
		seen[app.Name] = true
	}
	if err := c.Command.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("command: %w", err))
	}
	if err := c.Watcher.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("watcher: %w", err))
	}
	if err := c.Observability.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("observability: %w", err))
	}
	if c.Observability.Metrics.Enabled {
		if err := c.Server.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("server: %w", err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ResolvedRoots returns the watched roots for the configured apps. Apps
// without an explicit path live under <bench_path>/apps/<name>.
func (c *Config) ResolvedRoots() []doctype.WatchedRoot {
	roots := make([]doctype.WatchedRoot, 0, len(c.Apps))
	for _, app := range c.Apps {
		dir := app.Path
		if dir == "" {
			dir = filepath.Join(c.BenchPath, "apps", app.Name)
		}
		if abs, err := filepath.Abs(dir); err == nil {
			dir = abs
		}
		roots = append(roots, doctype.WatchedRoot{
			App:       app.Name,
			Dir:       dir,
			Recursive: app.IsRecursive(),
		})
	}
	return roots
}
