package resource

import (
	"context"
	"sort"
	"time"

	"github.com/vietddude/menuguard/internal/core/domain"
	"github.com/vietddude/menuguard/internal/metrics"
	"github.com/vietddude/menuguard/internal/recovery"
)

// CheckMemoryPressure returns the current pressure level. The provider is
// read at most once per PollInterval; in between, and when the provider
// fails, the last level is returned.
func (m *Manager) CheckMemoryPressure(ctx context.Context) domain.PressureLevel {
	m.pressureMu.Lock()
	defer m.pressureMu.Unlock()

	if !m.limiter.AllowN(m.now(), 1) {
		return m.level
	}
	return m.pollLocked(ctx)
}

// PressureLevel returns the last observed level without polling.
func (m *Manager) PressureLevel() domain.PressureLevel {
	m.pressureMu.Lock()
	defer m.pressureMu.Unlock()
	return m.level
}

func (m *Manager) pollLocked(ctx context.Context) domain.PressureLevel {
	info, err := m.provider.AvailableMemory(ctx)
	if err != nil {
		m.log.Debug("memory provider failed, using cached level", "level", m.level, "error", err)
		return m.level
	}

	level := m.classify(info)
	if level != m.level {
		m.log.Info("memory pressure changed",
			"from", m.level,
			"to", level,
			"available_mb", info.AvailableMB,
			"low_memory", info.LowMemory,
		)
	}
	m.level = level
	m.lastMemory = info
	m.lastPoll = m.now()
	metrics.MemoryPressureLevel.Set(float64(level))
	return level
}

func (m *Manager) classify(info MemoryInfo) domain.PressureLevel {
	var level domain.PressureLevel
	switch mb := info.AvailableMB; {
	case mb <= m.cfg.CriticalMB:
		level = domain.PressureCritical
	case mb <= m.cfg.HighMB:
		level = domain.PressureHigh
	case mb <= m.cfg.ModerateMB:
		level = domain.PressureModerate
	default:
		level = domain.PressureNormal
	}
	if info.LowMemory && level < domain.PressureHigh {
		level = domain.PressureHigh
	}
	return level
}

// HandleMemoryPressure reclaims resources the strategy selects for level
// and returns how many were released. At HIGH and above it enters degraded
// mode and re-reads memory after each release, stopping once pressure
// drops below HIGH.
func (m *Manager) HandleMemoryPressure(ctx context.Context, level domain.PressureLevel) int {
	if level == domain.PressureNormal {
		return 0
	}
	severe := level >= domain.PressureHigh
	if severe {
		m.EnterDegradedMode(ctx)
	}

	candidates := m.reclaimCandidates(level)
	m.log.Info("handling memory pressure", "level", level, "candidates", len(candidates))

	reclaimed := 0
	for _, e := range candidates {
		if err := ctx.Err(); err != nil {
			break
		}
		if err := m.cleanupEntry(ctx, e); err != nil {
			m.log.Warn("reclaim failed", "id", e.info.ID, "type", e.info.Type, "error", err)
			continue
		}
		reclaimed++
		m.reclaimed.Add(1)
		metrics.ResourcesReclaimedTotal.WithLabelValues(string(e.info.Type), level.String()).Inc()

		if severe {
			m.pressureMu.Lock()
			current := m.pollLocked(ctx)
			m.pressureMu.Unlock()
			if current < domain.PressureHigh {
				m.log.Info("memory pressure relieved", "level", current, "reclaimed", reclaimed)
				break
			}
		}
	}
	return reclaimed
}

func (m *Manager) reclaimCandidates(level domain.PressureLevel) []*entry {
	rank := rankOf(m.strategy.Order())
	rankFor := func(t domain.ResourceType) int {
		if r, ok := rank[t]; ok {
			return r
		}
		return len(rank)
	}

	type candidate struct {
		e    *entry
		info LifecycleInfo
	}

	m.mu.RLock()
	var cands []candidate
	for _, e := range m.entries {
		if e.cleaning {
			continue
		}
		info := m.snapshotLocked(e)
		if m.strategy.ShouldReclaim(info, level) {
			cands = append(cands, candidate{e: e, info: info})
		}
	}
	m.mu.RUnlock()

	sort.Slice(cands, func(i, j int) bool {
		ri, rj := rankFor(cands[i].info.Type), rankFor(cands[j].info.Type)
		if ri != rj {
			return ri < rj
		}
		return cands[i].info.LastAccess.Before(cands[j].info.LastAccess)
	})

	out := make([]*entry, len(cands))
	for i, c := range cands {
		out[i] = c.e
	}
	return out
}

// EnterDegradedMode sets the degraded flag and reports a performance
// warning. It returns false if already degraded.
func (m *Manager) EnterDegradedMode(ctx context.Context) bool {
	if !m.degraded.CompareAndSwap(false, true) {
		return false
	}
	metrics.DegradedMode.Set(1)
	level := m.PressureLevel()
	m.log.Warn("entering degraded mode", "level", level)
	m.reporter.HandleError(ctx, recovery.NewPerformanceWarning(
		"memory_pressure", float64(level), "entering degraded mode",
	))
	return true
}

// ExitDegradedMode clears the degraded flag. It returns false if not
// degraded.
func (m *Manager) ExitDegradedMode() bool {
	if !m.degraded.CompareAndSwap(true, false) {
		return false
	}
	metrics.DegradedMode.Set(0)
	m.log.Info("leaving degraded mode")
	return true
}

// IsDegraded reports whether degraded mode is active.
func (m *Manager) IsDegraded() bool {
	return m.degraded.Load()
}

// StartMonitoring polls memory every interval until ctx is done, reclaims
// under pressure and leaves degraded mode once memory is back to normal.
// Idle sweeps run on the same tick.
func (m *Manager) StartMonitoring(ctx context.Context, interval time.Duration) {
	if !m.monitoring.CompareAndSwap(false, true) {
		m.log.Warn("monitoring already running")
		return
	}
	defer m.monitoring.Store(false)

	if interval <= 0 {
		interval = m.cfg.PollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.log.Info("memory monitoring started", "interval", interval)
	for {
		m.monitorTick(ctx)
		select {
		case <-ctx.Done():
			m.log.Info("memory monitoring stopped")
			return
		case <-ticker.C:
		}
	}
}

func (m *Manager) monitorTick(ctx context.Context) {
	if n := m.SweepIdle(m.cfg.IdleAfter); n > 0 {
		m.log.Debug("idle sweep", "marked", n)
	}

	level := m.CheckMemoryPressure(ctx)
	if level > domain.PressureNormal {
		m.HandleMemoryPressure(ctx, level)
		return
	}
	m.ExitDegradedMode()
}

// IsMonitoring reports whether StartMonitoring is running.
func (m *Manager) IsMonitoring() bool {
	return m.monitoring.Load()
}
