package config

import (
	"errors"
	"strings"
	"time"

	"github.com/synthlane/reload-watcher/internal/constants"
)

// AppConfig names an application whose records are watched
type AppConfig struct {
	Name      string `json:"name" yaml:"name"`
	Path      string `json:"path,omitempty" yaml:"path,omitempty"`
	Recursive *bool  `json:"recursive,omitempty" yaml:"recursive,omitempty"`
}

// IsRecursive reports whether the app directory is watched recursively.
// Apps are recursive unless explicitly disabled.
func (a AppConfig) IsRecursive() bool {
	return a.Recursive == nil || *a.Recursive
}

// Validate validates the app configuration
func (a AppConfig) Validate() error {
	if a.Name == "" {
		return errors.New("name cannot be empty")
	}
	if strings.ContainsAny(a.Name, `/\`) {
		return errors.New("name cannot contain path separators")
	}
	return nil
}

// DefaultApps returns the apps watched when none are configured
func DefaultApps() []AppConfig {
	apps := make([]AppConfig, 0, len(constants.DefaultApps))
	for _, name := range constants.DefaultApps {
		apps = append(apps, AppConfig{Name: name})
	}
	return apps
}

// ParseApps parses a comma separated list of app names
func ParseApps(list string) []AppConfig {
	var apps []AppConfig
	for _, name := range strings.Split(list, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		apps = append(apps, AppConfig{Name: name})
	}
	return apps
}

// CommandConfig configures the bench management command
type CommandConfig struct {
	Binary            string        `json:"binary" yaml:"binary"`
	Site              string        `json:"site" yaml:"site"`
	ReloadTimeout     time.Duration `json:"reload_timeout" yaml:"reload_timeout"`
	ClearCacheTimeout time.Duration `json:"clear_cache_timeout" yaml:"clear_cache_timeout"`
	ClearDocTypeCache bool          `json:"clear_doctype_cache" yaml:"clear_doctype_cache"`
	MaxPerSecond      float64       `json:"max_per_second" yaml:"max_per_second"`
	Burst             int           `json:"burst" yaml:"burst"`
}

// DefaultCommandConfig returns default command configuration
func DefaultCommandConfig() CommandConfig {
	return CommandConfig{
		Binary:            constants.DefaultBenchBinary,
		Site:              constants.DefaultSite,
		ReloadTimeout:     constants.DefaultReloadTimeout,
		ClearCacheTimeout: constants.DefaultClearCacheTimeout,
		ClearDocTypeCache: false,
		MaxPerSecond:      constants.DefaultCommandRate,
		Burst:             constants.DefaultCommandBurst,
	}
}

// Validate validates the command configuration
func (c CommandConfig) Validate() error {
	var errs []error
	if c.Binary == "" {
		errs = append(errs, errors.New("binary cannot be empty"))
	}
	if c.Site == "" {
		errs = append(errs, errors.New("site cannot be empty"))
	}
	if c.ReloadTimeout <= 0 {
		errs = append(errs, errors.New("reload_timeout must be positive"))
	}
	if c.ClearCacheTimeout <= 0 {
		errs = append(errs, errors.New("clear_cache_timeout must be positive"))
	}
	if c.MaxPerSecond < 0 {
		errs = append(errs, errors.New("max_per_second must be non-negative"))
	}
	if c.MaxPerSecond > 0 && c.Burst < 1 {
		errs = append(errs, errors.New("burst must be at least 1 when max_per_second is set"))
	}
	return errors.Join(errs...)
}
