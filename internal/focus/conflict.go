package focus

import (
	"context"
	"errors"

	"github.com/vietddude/menuguard/internal/core/domain"
	"github.com/vietddude/menuguard/internal/core/safe"
	"github.com/vietddude/menuguard/internal/metrics"
	"github.com/vietddude/menuguard/internal/recovery"
)

var errTransferRefused = errors.New("winner refused focus")

// HandleFocusConflict picks a single owner among the registered sources.
// In a panel mode the highest-priority source with a focusable target
// wins and the rest are dropped; in TRANSITIONING or DISABLED, or when no
// source qualifies, all focus is cleared. Calls within the cooldown are
// ignored and return false. It returns true when a winner holds focus.
func (m *Manager) HandleFocusConflict(ctx context.Context) bool {
	mode := m.Current().Mode

	m.cooldownMu.Lock()
	allowed := m.cooldown.AllowN(m.now(), 1)
	m.cooldownMu.Unlock()
	if !allowed {
		m.log.Debug("conflict resolution in cooldown")
		metrics.FocusConflictsTotal.WithLabelValues(string(mode), "cooldown").Inc()
		return false
	}
	m.conflicts.Add(1)

	owners := m.snapshotOwners()
	var winner domain.FocusSource
	err := safe.Call(func() error {
		var rerr error
		winner, rerr = m.resolve(mode, owners)
		return rerr
	})

	switch {
	case err != nil && !errors.Is(err, errTransferRefused):
		sources := sortedSources(owners)
		m.log.Error("conflict resolution failed, clearing focus", "sources", sources, "error", err)
		m.clearAll()
		metrics.FocusConflictsTotal.WithLabelValues(string(mode), "deadlock").Inc()
		m.reporter.HandleError(ctx, recovery.NewFocusDeadlock(sources...))
		return false
	case err != nil, winner == "":
		m.clearAll()
		metrics.FocusConflictsTotal.WithLabelValues(string(mode), "cleared").Inc()
		m.log.Info("conflict resolved by clearing focus", "mode", mode)
		m.notify(func(l Listener) { l.OnConflictResolved("", sortedSources(owners)) })
		return false
	}

	m.resolved.Add(1)
	metrics.FocusConflictsTotal.WithLabelValues(string(mode), "resolved").Inc()

	dropped := make([]domain.FocusSource, 0, len(owners)-1)
	for _, s := range sortedSources(owners) {
		if s != winner {
			dropped = append(dropped, s)
		}
	}
	m.log.Info("conflict resolved", "winner", winner, "dropped", dropped)
	m.notify(func(l Listener) { l.OnConflictResolved(winner, dropped) })
	return true
}

// resolve runs the arbitration. Panics from targets propagate to the
// caller.
func (m *Manager) resolve(mode domain.FocusMode, owners map[domain.FocusSource]Target) (domain.FocusSource, error) {
	order := sourcePriority(mode)
	if order == nil {
		return "", nil
	}

	var winner domain.FocusSource
	var target Target
	for _, s := range order {
		if t, ok := owners[s]; ok && t.IsFocusable() {
			winner, target = s, t
			break
		}
	}
	if target == nil {
		return "", nil
	}

	for s, t := range owners {
		if s == winner {
			continue
		}
		if t != target && t.HasFocus() {
			t.ClearFocus()
		}
		m.removeOwner(s, t)
	}

	old := m.current.Load()
	if old.Source == winner && old.Target == target {
		return winner, nil
	}
	next := &State{Target: target, Source: winner, Mode: old.Mode, Timestamp: m.now()}
	if !m.current.CompareAndSwap(old, next) {
		return "", errTransferRefused
	}
	if !target.RequestFocus() {
		m.current.CompareAndSwap(next, old)
		m.removeOwner(winner, target)
		return "", errTransferRefused
	}
	m.record(*old, *next)
	return winner, nil
}
