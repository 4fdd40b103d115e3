package diagnostics

import (
	"fmt"
	"sync"
	"time"

	"github.com/vietddude/menuguard/internal/core/domain"
	"github.com/vietddude/menuguard/internal/focus"
	"github.com/vietddude/menuguard/internal/recovery"
	"github.com/vietddude/menuguard/internal/resource"
)

// ResourceSource exposes lifecycle manager statistics.
type ResourceSource interface {
	Statistics() resource.Statistics
}

// FocusSource exposes focus manager statistics.
type FocusSource interface {
	Statistics() focus.Statistics
}

// ErrorSource exposes error engine statistics.
type ErrorSource interface {
	Statistics() recovery.Statistics
}

// Thresholds decide when recent error volume degrades the report.
type Thresholds struct {
	DegradedErrors int // recent errors in the engine window, default 5
	CriticalErrors int // default 20
	CacheFor       time.Duration
}

// DefaultThresholds returns the monitor defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{DegradedErrors: 5, CriticalErrors: 20, CacheFor: time.Second}
}

// Monitor aggregates status from the three managers.
type Monitor struct {
	resources  ResourceSource
	focus      FocusSource
	errors     ErrorSource
	thresholds Thresholds
	now        func() time.Time

	mu         sync.Mutex
	lastCheck  time.Time
	lastReport *Report
}

// NewMonitor creates a new diagnostics monitor.
func NewMonitor(resources ResourceSource, focus FocusSource, errors ErrorSource, th Thresholds) *Monitor {
	d := DefaultThresholds()
	if th.DegradedErrors <= 0 {
		th.DegradedErrors = d.DegradedErrors
	}
	if th.CriticalErrors <= 0 {
		th.CriticalErrors = d.CriticalErrors
	}
	if th.CacheFor <= 0 {
		th.CacheFor = d.CacheFor
	}
	return &Monitor{
		resources:  resources,
		focus:      focus,
		errors:     errors,
		thresholds: th,
		now:        time.Now,
	}
}

// CheckHealth builds a report, reusing the previous one within CacheFor.
func (m *Monitor) CheckHealth() Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if m.lastReport != nil && now.Sub(m.lastCheck) < m.thresholds.CacheFor {
		return *m.lastReport
	}

	report := Report{
		Status:    StatusHealthy,
		Resources: m.resources.Statistics(),
		Focus:     m.focus.Statistics(),
		Errors:    m.errors.Statistics(),
		CheckedAt: now,
	}
	m.evaluate(&report)

	m.lastCheck = now
	m.lastReport = &report
	return report
}

func (m *Monitor) evaluate(r *Report) {
	escalate := func(s SystemStatus, reason string) {
		r.Reasons = append(r.Reasons, reason)
		if s == StatusCritical || r.Status == StatusHealthy {
			r.Status = s
		}
	}

	switch r.Resources.PressureLevel {
	case domain.PressureCritical.String():
		escalate(StatusCritical, "memory pressure critical")
	case domain.PressureHigh.String(), domain.PressureModerate.String():
		escalate(StatusDegraded, "memory pressure "+r.Resources.PressureLevel)
	}
	if r.Resources.Degraded {
		escalate(StatusDegraded, "resource manager in degraded mode")
	}

	switch recent := r.Errors.RecentErrors; {
	case recent >= m.thresholds.CriticalErrors:
		escalate(StatusCritical, fmt.Sprintf("%d errors in the last %s", recent, r.Errors.Window))
	case recent >= m.thresholds.DegradedErrors:
		escalate(StatusDegraded, fmt.Sprintf("%d errors in the last %s", recent, r.Errors.Window))
	}

	if r.Focus.Recovering || r.Focus.RecoveryAttempts > 0 {
		escalate(StatusDegraded, fmt.Sprintf("focus deadlock recovery attempt %d", r.Focus.RecoveryAttempts))
	}
}
