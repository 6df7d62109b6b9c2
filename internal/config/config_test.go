package config

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/synthlane/reload-watcher/internal/doctype"
)

func boolPtr(b bool) *bool { return &b }

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}
	if cfg.BenchPath != "/workspace/frappe-bench" {
		t.Errorf("BenchPath got %s, want /workspace/frappe-bench", cfg.BenchPath)
	}
	if len(cfg.Apps) != 3 {
		t.Errorf("Apps got %d entries, want 3", len(cfg.Apps))
	}
	if cfg.Observability.Metrics.Enabled {
		t.Error("metrics must be disabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() = %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "Valid Config", mutate: func(*Config) {}},
		{
			name:    "Empty bench path",
			mutate:  func(c *Config) { c.BenchPath = "" },
			wantErr: "bench_path",
		},
		{
			name:    "No apps",
			mutate:  func(c *Config) { c.Apps = nil },
			wantErr: "at least one app",
		},
		{
			name:    "Duplicate app",
			mutate:  func(c *Config) { c.Apps = append(c.Apps, AppConfig{Name: "frappe"}) },
			wantErr: "duplicate app",
		},
		{
			name:    "App with separator",
			mutate:  func(c *Config) { c.Apps = []AppConfig{{Name: "a/b"}} },
			wantErr: "path separators",
		},
		{
			name:    "Invalid command",
			mutate:  func(c *Config) { c.Command.ReloadTimeout = 0 },
			wantErr: "reload_timeout",
		},
		{
			name:    "Invalid watcher",
			mutate:  func(c *Config) { c.Watcher.Debounce = -1 },
			wantErr: "debounce",
		},
		{
			name: "Server ignored when metrics disabled",
			mutate: func(c *Config) {
				c.Server.Port = "nope"
			},
		},
		{
			name: "Server validated when metrics enabled",
			mutate: func(c *Config) {
				c.Observability.Metrics.Enabled = true
				c.Server.Port = "nope"
			},
			wantErr: "server",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.True(t, strings.Contains(err.Error(), tt.wantErr), "error %q should mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ResolvedRoots(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BenchPath = "/srv/bench"
	cfg.Apps = []AppConfig{
		{Name: "frappe"},
		{Name: "erpnext", Path: "/opt/erpnext", Recursive: boolPtr(false)},
	}

	roots := cfg.ResolvedRoots()
	assert.Equal(t, []doctype.WatchedRoot{
		{App: "frappe", Dir: filepath.Join("/srv/bench", "apps", "frappe"), Recursive: true},
		{App: "erpnext", Dir: "/opt/erpnext", Recursive: false},
	}, roots)
}

func TestCommandConfig_Validate(t *testing.T) {
	cfg := DefaultCommandConfig()
	assert.NoError(t, cfg.Validate())

	cfg.MaxPerSecond = 0
	cfg.Burst = 0
	assert.NoError(t, cfg.Validate(), "throttle disabled needs no burst")

	cfg.MaxPerSecond = 2
	assert.Error(t, cfg.Validate())

	cfg = DefaultCommandConfig()
	cfg.Site = ""
	cfg.Binary = ""
	err := cfg.Validate()
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "site")
		assert.Contains(t, err.Error(), "binary")
	}
}

func TestParseApps(t *testing.T) {
	assert.Equal(t, []AppConfig{{Name: "a"}, {Name: "b"}}, ParseApps(" a ,b,"))
	assert.Empty(t, ParseApps(""))
}
