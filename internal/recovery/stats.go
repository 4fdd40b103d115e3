package recovery

import (
	"sort"
	"time"
)

// KindCount is one entry in the most-frequent-kinds ranking.
type KindCount struct {
	Kind  ErrorKind `json:"kind"`
	Count int       `json:"count"`
}

// Statistics is a diagnostic snapshot of the engine.
type Statistics struct {
	TotalErrors  int            `json:"total_errors"`
	RecentErrors int            `json:"recent_errors"`
	Window       time.Duration  `json:"window"`
	BySeverity   map[string]int `json:"by_severity"`
	TopKinds     []KindCount    `json:"top_kinds"`
	Recovered    int            `json:"recovered"`
	Failed       int            `json:"failed"`
	LastErrorAt  time.Time      `json:"last_error_at"`
}

func (e *Engine) countError(err MenuError, at time.Time) {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()

	e.total++
	e.bySeverity[err.Severity()]++
	e.lastError = at
}

func (e *Engine) countResult(r Result) {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()

	if r.Kind == ResultFailed {
		e.failed++
	} else {
		e.recovered++
	}
}

// Statistics returns totals plus the most frequent kinds seen in the recent
// window.
func (e *Engine) Statistics() Statistics {
	e.statsMu.Lock()
	stats := Statistics{
		TotalErrors: e.total,
		Window:      e.cfg.StatsWindow,
		BySeverity:  make(map[string]int, len(e.bySeverity)),
		Recovered:   e.recovered,
		Failed:      e.failed,
		LastErrorAt: e.lastError,
	}
	for s, n := range e.bySeverity {
		stats.BySeverity[s.String()] = n
	}
	e.statsMu.Unlock()

	cutoff := e.now().Add(-e.cfg.StatsWindow)
	counts := make(map[ErrorKind]int)
	for _, rec := range e.history.All() {
		if rec.Time.Before(cutoff) {
			continue
		}
		stats.RecentErrors++
		counts[rec.Err.Kind()]++
	}

	for k, n := range counts {
		stats.TopKinds = append(stats.TopKinds, KindCount{Kind: k, Count: n})
	}
	sort.Slice(stats.TopKinds, func(i, j int) bool {
		a, b := stats.TopKinds[i], stats.TopKinds[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Kind < b.Kind
	})
	if len(stats.TopKinds) > e.cfg.TopKinds {
		stats.TopKinds = stats.TopKinds[:e.cfg.TopKinds]
	}
	return stats
}
