package focus

import (
	"context"
	"strconv"

	"github.com/vietddude/menuguard/internal/core/domain"
	"github.com/vietddude/menuguard/internal/metrics"
)

// RecoverFromDeadlock escalates across consecutive calls: the first clears
// focus and restores the panel's own target, the second forces
// CATEGORY_PANEL with focus cleared, the third resets everything. Past the
// attempt cap focus stays cleared and false is returned. The counter
// resets AttemptReset after a successful attempt. Concurrent callers are
// rejected.
func (m *Manager) RecoverFromDeadlock(ctx context.Context) bool {
	if !m.recovering.CompareAndSwap(false, true) {
		m.log.Warn("deadlock recovery already running")
		return false
	}
	defer m.recovering.Store(false)

	attempt := int(m.attempts.Add(1))
	if attempt > m.cfg.MaxRecoveryAttempts {
		m.attempts.Store(int32(m.cfg.MaxRecoveryAttempts))
		m.log.Error("deadlock recovery attempts exhausted, focus left cleared", "max", m.cfg.MaxRecoveryAttempts)
		m.clearAll()
		metrics.DeadlockRecoveriesTotal.WithLabelValues("exhausted", "failed").Inc()
		m.notify(func(l Listener) { l.OnDeadlockRecovered(attempt, false) })
		return false
	}

	m.recoveries.Add(1)
	var ok bool
	switch attempt {
	case 1:
		ok = m.restorePanelFocus()
	case 2:
		m.forceMode(domain.ModeCategoryPanel)
		m.clearAll()
		ok = true
	default:
		m.fullReset()
		ok = true
	}

	result := "ok"
	if !ok {
		result = "failed"
	}
	metrics.DeadlockRecoveriesTotal.WithLabelValues(strconv.Itoa(attempt), result).Inc()
	m.log.Info("deadlock recovery attempt", "attempt", attempt, "ok", ok)

	if ok {
		m.scheduleAttemptReset()
	}
	m.notify(func(l Listener) { l.OnDeadlockRecovered(attempt, ok) })
	return ok
}

// restorePanelFocus clears focus, then hands it back to the target owned
// by the current mode's panel, if any.
func (m *Manager) restorePanelFocus() bool {
	owners := m.snapshotOwners()
	m.clearAll()

	source, ok := m.Current().Mode.PanelSource()
	if !ok {
		return true
	}
	target, ok := owners[source]
	if !ok || !focusable(target) {
		return true
	}

	m.mu.Lock()
	m.owners[source] = target
	m.mu.Unlock()
	return m.grant(target, source)
}

// fullReset drops all owners and timers and restarts in CATEGORY_PANEL with
// an empty history.
func (m *Manager) fullReset() {
	m.cancelTimers()
	m.clearAll()
	m.history.Clear()

	prev := m.current.Load()
	next := &State{Mode: domain.ModeCategoryPanel, Timestamp: m.now()}
	m.current.Store(next)
	m.record(*prev, *next)
	m.log.Warn("focus state fully reset")
}

func (m *Manager) scheduleAttemptReset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.resetCancel != nil {
		m.resetCancel()
	}
	m.resetCancel = m.scheduler.AfterFunc(m.cfg.AttemptReset, func() {
		m.attempts.Store(0)
		m.log.Debug("deadlock attempt counter reset")
	})
}
