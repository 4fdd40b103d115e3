// Package diagnostics aggregates menu resilience status and serves it over
// HTTP.
package diagnostics

import (
	"time"

	"github.com/vietddude/menuguard/internal/focus"
	"github.com/vietddude/menuguard/internal/recovery"
	"github.com/vietddude/menuguard/internal/resource"
)

// SystemStatus represents the overall health state of the menu.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// Report contains the full diagnostics report.
type Report struct {
	Status    SystemStatus        `json:"status"`
	Reasons   []string            `json:"reasons,omitempty"`
	Resources resource.Statistics `json:"resources"`
	Focus     focus.Statistics    `json:"focus"`
	Errors    recovery.Statistics `json:"errors"`
	CheckedAt time.Time           `json:"checked_at"`
}
