package config

import (
	"testing"
)

func TestDefaultObservabilityConfig(t *testing.T) {
	cfg := DefaultObservabilityConfig()

	if cfg.Logging.Level != "info" {
		t.Errorf("DefaultLoggingConfig Level got %s, want info", cfg.Logging.Level)
	}
	if cfg.Metrics.Enabled {
		t.Errorf("DefaultMetricsConfig Enabled got %v, want false", cfg.Metrics.Enabled)
	}
	if cfg.Tracing.Enabled {
		t.Errorf("DefaultTracingConfig Enabled got %v, want false", cfg.Tracing.Enabled)
	}
	if cfg.Tracing.ServiceName != "reload-watcher" {
		t.Errorf("DefaultTracingConfig ServiceName got %s, want reload-watcher", cfg.Tracing.ServiceName)
	}
}

func TestLoggingConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  LoggingConfig
		wantErr bool
	}{
		{
			name:    "Valid Logging Config",
			config:  DefaultLoggingConfig(),
			wantErr: false,
		},
		{
			name: "Console format",
			config: LoggingConfig{
				Level:  "DEBUG",
				Format: "console",
				Output: "stderr",
			},
			wantErr: false,
		},
		{
			name: "Invalid Level",
			config: LoggingConfig{
				Level:  "invalid",
				Format: "json",
				Output: "stdout",
			},
			wantErr: true,
		},
		{
			name: "Invalid Format",
			config: LoggingConfig{
				Level:  "info",
				Format: "invalid",
				Output: "stdout",
			},
			wantErr: true,
		},
		{
			name: "Empty Output",
			config: LoggingConfig{
				Level:  "info",
				Format: "json",
				Output: "",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("LoggingConfig.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMetricsConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  MetricsConfig
		wantErr bool
	}{
		{name: "Disabled", config: MetricsConfig{Enabled: false, Path: ""}, wantErr: false},
		{name: "Enabled", config: MetricsConfig{Enabled: true, Path: "/metrics"}, wantErr: false},
		{name: "Empty path", config: MetricsConfig{Enabled: true, Path: ""}, wantErr: true},
		{name: "Relative path", config: MetricsConfig{Enabled: true, Path: "metrics"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("MetricsConfig.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestObservabilityConfig_TracingServiceName(t *testing.T) {
	cfg := DefaultObservabilityConfig()
	cfg.Tracing.Enabled = true
	cfg.Tracing.ServiceName = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for empty service name with tracing enabled")
	}
}
