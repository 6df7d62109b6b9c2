package observability

import "time"

// HealthStatus is the body served by the status server's /health endpoint
type HealthStatus struct {
	Status    string          `json:"status"`
	Timestamp time.Time       `json:"timestamp"`
	Version   string          `json:"version"`
	Uptime    string          `json:"uptime"`
	Roots     []string        `json:"roots,omitempty"`
	Checks    map[string]bool `json:"checks"`
}
