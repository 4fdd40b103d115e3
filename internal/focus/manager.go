// Package focus arbitrates input focus between the menu's category list,
// channel list, the surrounding screen and external callers.
package focus

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/vietddude/menuguard/internal/core/dispatch"
	"github.com/vietddude/menuguard/internal/core/domain"
	"github.com/vietddude/menuguard/internal/core/logging"
	"github.com/vietddude/menuguard/internal/core/ring"
	"github.com/vietddude/menuguard/internal/core/safe"
	"github.com/vietddude/menuguard/internal/metrics"
	"github.com/vietddude/menuguard/internal/recovery"
)

const logTag = "focus"

// Config holds focus timing and limits.
type Config struct {
	TransitionTimeout   time.Duration // default 2s
	ConflictCooldown    time.Duration // default 1s
	MaxRecoveryAttempts int           // default 3
	AttemptReset        time.Duration // default 5s
	HistorySize         int           // default 50
}

// DefaultConfig returns the focus defaults.
func DefaultConfig() Config {
	return Config{
		TransitionTimeout:   2 * time.Second,
		ConflictCooldown:    time.Second,
		MaxRecoveryAttempts: 3,
		AttemptReset:        5 * time.Second,
		HistorySize:         50,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TransitionTimeout <= 0 {
		c.TransitionTimeout = d.TransitionTimeout
	}
	if c.ConflictCooldown <= 0 {
		c.ConflictCooldown = d.ConflictCooldown
	}
	if c.MaxRecoveryAttempts <= 0 {
		c.MaxRecoveryAttempts = d.MaxRecoveryAttempts
	}
	if c.AttemptReset <= 0 {
		c.AttemptReset = d.AttemptReset
	}
	if c.HistorySize <= 0 {
		c.HistorySize = d.HistorySize
	}
	return c
}

// Manager is the single source of truth for the current focus owner.
type Manager struct {
	log       logging.Tagged
	cfg       Config
	reporter  recovery.Reporter
	scheduler dispatch.Scheduler
	now       func() time.Time

	current atomic.Pointer[State]
	history *ring.Buffer[State]

	mu               sync.Mutex
	owners           map[domain.FocusSource]Target
	listeners        []Listener
	transitionCancel dispatch.CancelFunc
	resetCancel      dispatch.CancelFunc

	transitionGen atomic.Uint64
	cooldownMu    sync.Mutex
	cooldown      *rate.Limiter

	recovering atomic.Bool
	attempts   atomic.Int32

	requests   atomic.Int64
	granted    atomic.Int64
	rejected   atomic.Int64
	conflicts  atomic.Int64
	resolved   atomic.Int64
	recoveries atomic.Int64
	timeouts   atomic.Int64
}

// Option configures a Manager.
type Option func(*Manager)

// WithScheduler sets the timer source for timeouts.
func WithScheduler(s dispatch.Scheduler) Option {
	return func(m *Manager) { m.scheduler = s }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a focus manager in DISABLED mode.
func NewManager(logger logging.Logger, reporter recovery.Reporter, cfg Config, opts ...Option) *Manager {
	cfg = cfg.withDefaults()
	m := &Manager{
		log:       logging.WithTag(logger, logTag),
		cfg:       cfg,
		reporter:  reporter,
		scheduler: dispatch.TimerScheduler{},
		now:       time.Now,
		history:   ring.New[State](cfg.HistorySize),
		owners:    make(map[domain.FocusSource]Target),
		cooldown:  rate.NewLimiter(rate.Every(cfg.ConflictCooldown), 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	initial := &State{Mode: domain.ModeDisabled, Timestamp: m.now()}
	m.current.Store(initial)
	m.history.Add(*initial)
	return m
}

// AddListener registers l for focus events.
func (m *Manager) AddListener(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// Current returns the current focus state.
func (m *Manager) Current() State {
	return *m.current.Load()
}

// History returns recent focus states, oldest first.
func (m *Manager) History() []State {
	return m.history.All()
}

// -----------------------------------------------------------------------------
// Requests
// -----------------------------------------------------------------------------

// RequestFocus asks for focus on target on behalf of source and reports
// whether it was granted. Requests are refused while deadlock recovery
// runs, while focus is DISABLED, and when source loses a conflict.
func (m *Manager) RequestFocus(ctx context.Context, target Target, source domain.FocusSource) bool {
	m.requests.Add(1)
	if target == nil {
		return m.reject(source, "nil_target")
	}
	if m.recovering.Load() {
		m.log.Debug("focus request during deadlock recovery", "source", source)
		return m.reject(source, "recovering")
	}
	if m.Current().Mode == domain.ModeDisabled {
		return m.reject(source, "disabled")
	}

	m.mu.Lock()
	m.owners[source] = target
	owners := m.ownersLocked()
	m.mu.Unlock()

	cur := m.Current()
	if cur.Source != source && countActive(owners) > 1 {
		m.log.Info("focus conflict", "requester", source, "owner", cur.Source, "owners", len(owners))
		if !m.HandleFocusConflict(ctx) {
			m.removeOwner(source, target)
			return m.reject(source, "conflict_unresolved")
		}
		after := m.Current()
		if after.Source != source || after.Target != target {
			return m.reject(source, "conflict_lost")
		}
		m.granted.Add(1)
		metrics.FocusRequestsTotal.WithLabelValues(string(source), "granted").Inc()
		return true
	}

	if !m.grant(target, source) {
		return m.reject(source, "refused")
	}
	m.granted.Add(1)
	metrics.FocusRequestsTotal.WithLabelValues(string(source), "granted").Inc()
	return true
}

func (m *Manager) reject(source domain.FocusSource, reason string) bool {
	m.rejected.Add(1)
	metrics.FocusRequestsTotal.WithLabelValues(string(source), reason).Inc()
	return false
}

// grant swaps the current state to target and transfers focus. A lost
// swap abandons the request; a refused transfer rolls back and drops the
// source's registration.
func (m *Manager) grant(target Target, source domain.FocusSource) bool {
	old := m.current.Load()
	if old.Target == target && old.Source == source {
		return true
	}

	next := &State{Target: target, Source: source, Mode: old.Mode, Timestamp: m.now()}
	if !m.current.CompareAndSwap(old, next) {
		m.log.Warn("focus changed concurrently, abandoning request", "source", source)
		return false
	}

	ok, err := safe.Bool(target.RequestFocus)
	if err != nil || !ok {
		m.current.CompareAndSwap(next, old)
		m.removeOwner(source, target)
		m.log.Warn("focus transfer refused", "source", source, "error", err)
		return false
	}

	if old.Target != nil && old.Target != target {
		m.clearTarget(old.Target)
	}
	m.record(*old, *next)
	return true
}

// ClearFocus releases focus held by source. The source is always removed
// from the active owners; focus only changes if source held it.
func (m *Manager) ClearFocus(ctx context.Context, source domain.FocusSource) bool {
	m.mu.Lock()
	delete(m.owners, source)
	m.mu.Unlock()

	for {
		old := m.current.Load()
		if old.Source != source || old.Target == nil {
			return false
		}
		next := &State{Mode: old.Mode, Timestamp: m.now()}
		if m.current.CompareAndSwap(old, next) {
			m.clearTarget(old.Target)
			m.record(*old, *next)
			return true
		}
	}
}

// -----------------------------------------------------------------------------
// Modes
// -----------------------------------------------------------------------------

// SetFocusMode changes the panel mode. Entering TRANSITIONING schedules
// the transition timeout; any other change cancels it.
func (m *Manager) SetFocusMode(ctx context.Context, mode domain.FocusMode) error {
	var old, next *State
	for {
		old = m.current.Load()
		if old.Mode == mode {
			return nil
		}
		if !CanTransition(old.Mode, mode) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, old.Mode, mode)
		}
		next = &State{Target: old.Target, Source: old.Source, Mode: mode, Timestamp: m.now()}
		if m.current.CompareAndSwap(old, next) {
			break
		}
	}

	m.log.Debug("focus mode changed", "from", old.Mode, "to", mode)
	m.armTransitionTimeout()
	m.record(*old, *next)
	return nil
}

// forceMode sets mode without validating the transition.
func (m *Manager) forceMode(mode domain.FocusMode) {
	for {
		old := m.current.Load()
		next := &State{Target: old.Target, Source: old.Source, Mode: mode, Timestamp: m.now()}
		if m.current.CompareAndSwap(old, next) {
			m.armTransitionTimeout()
			m.record(*old, *next)
			return
		}
	}
}

// armTransitionTimeout re-arms the timer from the live mode, not the mode
// the caller installed. Callers run it after every mode change, so the last
// one to take m.mu observes the final mode.
func (m *Manager) armTransitionTimeout() {
	m.mu.Lock()
	defer m.mu.Unlock()

	gen := m.transitionGen.Add(1)
	if m.transitionCancel != nil {
		m.transitionCancel()
		m.transitionCancel = nil
	}
	if m.current.Load().Mode == domain.ModeTransitioning {
		m.transitionCancel = m.scheduler.AfterFunc(m.cfg.TransitionTimeout, func() {
			m.onTransitionTimeout(gen)
		})
	}
}

func (m *Manager) onTransitionTimeout(gen uint64) {
	if m.transitionGen.Load() != gen || m.Current().Mode != domain.ModeTransitioning {
		return
	}

	forced := domain.ModeCategoryPanel
	if m.activeSource() == domain.SourceChannelList {
		forced = domain.ModeChannelPanel
	}
	m.timeouts.Add(1)
	m.log.Warn("focus transition timed out", "forced", forced, "after", m.cfg.TransitionTimeout)

	ctx := context.Background()
	if err := m.SetFocusMode(ctx, forced); err != nil {
		m.log.Error("could not leave transition", "error", err)
		return
	}
	m.reporter.HandleError(ctx, recovery.NewFocusTimeout(forced, m.cfg.TransitionTimeout))
}

// activeSource returns the source holding focus, or the highest-priority
// registered source with a focusable target.
func (m *Manager) activeSource() domain.FocusSource {
	if cur := m.Current(); cur.Target != nil {
		return cur.Source
	}
	owners := m.snapshotOwners()
	for _, s := range sourcePriority(domain.ModeCategoryPanel) {
		if t, ok := owners[s]; ok && focusable(t) {
			return s
		}
	}
	return ""
}

// Cleanup drops every owner, cancels timers and disables focus.
func (m *Manager) Cleanup(ctx context.Context) {
	m.cancelTimers()
	m.clearAll()
	m.forceMode(domain.ModeDisabled)
	m.log.Info("focus manager cleaned up")
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func (m *Manager) ownersLocked() map[domain.FocusSource]Target {
	out := make(map[domain.FocusSource]Target, len(m.owners))
	for s, t := range m.owners {
		out[s] = t
	}
	return out
}

func (m *Manager) snapshotOwners() map[domain.FocusSource]Target {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ownersLocked()
}

func (m *Manager) removeOwner(source domain.FocusSource, target Target) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owners[source] == target {
		delete(m.owners, source)
	}
}

// clearAll drops every owner and clears the current focus.
func (m *Manager) clearAll() {
	m.mu.Lock()
	owners := m.owners
	m.owners = make(map[domain.FocusSource]Target)
	m.mu.Unlock()

	var old *State
	for {
		old = m.current.Load()
		next := &State{Mode: old.Mode, Timestamp: m.now()}
		if m.current.CompareAndSwap(old, next) {
			if old.Target != nil {
				m.record(*old, *next)
			}
			break
		}
	}

	if old.Target != nil {
		m.clearTarget(old.Target)
	}
	for _, t := range owners {
		if t != old.Target {
			m.clearTarget(t)
		}
	}
}

func (m *Manager) clearTarget(t Target) {
	if err := safe.Go(t.ClearFocus); err != nil {
		m.log.Warn("target panicked while clearing focus", "error", err)
	}
}

func (m *Manager) cancelTimers() {
	m.transitionGen.Add(1)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.transitionCancel != nil {
		m.transitionCancel()
		m.transitionCancel = nil
	}
	if m.resetCancel != nil {
		m.resetCancel()
		m.resetCancel = nil
	}
}

func (m *Manager) record(prev, next State) {
	m.history.Add(next)
	m.notify(func(l Listener) { l.OnFocusChanged(prev, next) })
}

func (m *Manager) notify(call func(Listener)) {
	m.mu.Lock()
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()

	for _, l := range listeners {
		if err := safe.Go(func() { call(l) }); err != nil {
			m.log.Warn("focus listener panicked", "error", err)
		}
	}
}

func focusable(t Target) bool {
	ok, err := safe.Bool(t.IsFocusable)
	return err == nil && ok
}

func countActive(owners map[domain.FocusSource]Target) int {
	n := 0
	for _, t := range owners {
		if focusable(t) {
			n++
		}
	}
	return n
}

func sortedSources(owners map[domain.FocusSource]Target) []domain.FocusSource {
	out := make([]domain.FocusSource, 0, len(owners))
	for s := range owners {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// -----------------------------------------------------------------------------
// Statistics
// -----------------------------------------------------------------------------

// Statistics is a diagnostic snapshot of focus arbitration.
type Statistics struct {
	Mode               domain.FocusMode     `json:"mode"`
	Source             domain.FocusSource   `json:"source,omitempty"`
	Focused            bool                 `json:"focused"`
	Owners             []domain.FocusSource `json:"owners"`
	Requests           int64                `json:"requests"`
	Granted            int64                `json:"granted"`
	Rejected           int64                `json:"rejected"`
	Conflicts          int64                `json:"conflicts"`
	ConflictsResolved  int64                `json:"conflicts_resolved"`
	DeadlockRecoveries int64                `json:"deadlock_recoveries"`
	RecoveryAttempts   int                  `json:"recovery_attempts"`
	Recovering         bool                 `json:"recovering"`
	Timeouts           int64                `json:"timeouts"`
	HistorySize        int                  `json:"history_size"`
}

// Statistics returns counters and the current state.
func (m *Manager) Statistics() Statistics {
	cur := m.Current()
	return Statistics{
		Mode:               cur.Mode,
		Source:             cur.Source,
		Focused:            cur.Focused(),
		Owners:             sortedSources(m.snapshotOwners()),
		Requests:           m.requests.Load(),
		Granted:            m.granted.Load(),
		Rejected:           m.rejected.Load(),
		Conflicts:          m.conflicts.Load(),
		ConflictsResolved:  m.resolved.Load(),
		DeadlockRecoveries: m.recoveries.Load(),
		RecoveryAttempts:   int(m.attempts.Load()),
		Recovering:         m.recovering.Load(),
		Timeouts:           m.timeouts.Load(),
		HistorySize:        m.history.Len(),
	}
}
