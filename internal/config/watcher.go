package config

import (
	"errors"
	"time"

	"github.com/synthlane/reload-watcher/internal/constants"
)

// WatcherConfig represents change watcher configuration
type WatcherConfig struct {
	Debounce      time.Duration `json:"debounce" yaml:"debounce"`
	Workers       int           `json:"workers" yaml:"workers"`
	QueueSize     int           `json:"queue_size" yaml:"queue_size"`
	DrainInFlight bool          `json:"drain_in_flight" yaml:"drain_in_flight"`
}

// DefaultWatcherConfig returns default watcher configuration
func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{
		Debounce:      constants.DefaultDebounce,
		Workers:       constants.DefaultWorkers,
		QueueSize:     constants.DefaultQueueSize,
		DrainInFlight: true,
	}
}

// Validate validates watcher configuration
func (w WatcherConfig) Validate() error {
	var errs []error
	if w.Debounce < 0 {
		errs = append(errs, errors.New("debounce must be non-negative"))
	}
	if w.Workers < 1 {
		errs = append(errs, errors.New("workers must be at least 1"))
	}
	if w.QueueSize < 1 {
		errs = append(errs, errors.New("queue_size must be at least 1"))
	}
	return errors.Join(errs...)
}
