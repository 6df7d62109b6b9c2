package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the watcher's Prometheus collectors
type Metrics struct {
	EventsTotal     *prometheus.CounterVec
	SkippedTotal    *prometheus.CounterVec
	OutcomesTotal   *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec
	InFlight        prometheus.Gauge
	HealthStatus    prometheus.Gauge

	registry *prometheus.Registry
	handler  http.Handler
}

// NewMetrics creates the collectors; call Register before serving them
func NewMetrics() *Metrics {
	return &Metrics{
		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reload_watcher_events_total",
				Help: "Filesystem events received, by kind",
			},
			[]string{"kind"},
		),
		SkippedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reload_watcher_skipped_total",
				Help: "Events dropped before reaching the bench, by reason",
			},
			[]string{"reason"},
		),
		OutcomesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reload_watcher_outcomes_total",
				Help: "Completed dispatches, by final stage and result",
			},
			[]string{"stage", "result"},
		),
		CommandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reload_watcher_command_duration_seconds",
				Help:    "Bench command duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
			},
			[]string{"command", "result"},
		),
		InFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "reload_watcher_dispatches_in_flight",
				Help: "Number of records currently being dispatched",
			},
		),
		HealthStatus: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "reload_watcher_health_status",
				Help: "Watcher health status (1 = healthy, 0 = unhealthy)",
			},
		),
	}
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// RecordEvent counts a filesystem event
func (m *Metrics) RecordEvent(kind string) {
	m.EventsTotal.WithLabelValues(kind).Inc()
}

// RecordSkip counts an event dropped for reason
func (m *Metrics) RecordSkip(reason string) {
	m.SkippedTotal.WithLabelValues(reason).Inc()
}

// RecordOutcome counts a finished dispatch
func (m *Metrics) RecordOutcome(stage string, success bool) {
	m.OutcomesTotal.WithLabelValues(stage, result(success)).Inc()
}

// ObserveCommand records the duration of a bench command
func (m *Metrics) ObserveCommand(command string, success bool, duration time.Duration) {
	m.CommandDuration.WithLabelValues(command, result(success)).Observe(duration.Seconds())
}

// SetHealthStatus sets the health gauge
func (m *Metrics) SetHealthStatus(healthy bool) {
	if healthy {
		m.HealthStatus.Set(1)
	} else {
		m.HealthStatus.Set(0)
	}
}

// Handler serves the registered collectors
func (m *Metrics) Handler() http.Handler {
	if m.handler != nil {
		return m.handler
	}
	return promhttp.Handler()
}

// Register registers all collectors with a private registry
func (m *Metrics) Register() error {
	m.registry = prometheus.NewRegistry()

	collectors := []prometheus.Collector{
		m.EventsTotal,
		m.SkippedTotal,
		m.OutcomesTotal,
		m.CommandDuration,
		m.InFlight,
		m.HealthStatus,
	}
	for _, c := range collectors {
		if err := m.registry.Register(c); err != nil {
			return err
		}
	}

	m.handler = promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return nil
}
