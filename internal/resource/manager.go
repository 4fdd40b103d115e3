// Package resource tracks the lifecycle of menu resources and reclaims them
// when the device runs low on memory.
package resource

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"

	"github.com/vietddude/menuguard/internal/core/dispatch"
	"github.com/vietddude/menuguard/internal/core/domain"
	"github.com/vietddude/menuguard/internal/core/logging"
	"github.com/vietddude/menuguard/internal/core/ring"
	"github.com/vietddude/menuguard/internal/core/safe"
	"github.com/vietddude/menuguard/internal/metrics"
	"github.com/vietddude/menuguard/internal/recovery"
)

const (
	logTag = "resource"

	transitionHistorySize = 100
)

var (
	// ErrCleanupInProgress is returned when CleanupAll is already running.
	ErrCleanupInProgress = errors.New("cleanup already in progress")

	// ErrResourceNotFound is returned for ids that are not registered.
	ErrResourceNotFound = fmt.Errorf("resource %w", recovery.ErrNotFound)

	// ErrCleanupBusy is returned when another caller is already cleaning
	// the same resource.
	ErrCleanupBusy = errors.New("resource cleanup already running")
)

// Config holds thresholds and intervals.
type Config struct {
	PollInterval time.Duration // min time between provider reads, default 5s
	CriticalMB   float64       // default 10
	HighMB       float64       // default 25
	ModerateMB   float64       // default 50
	IdleAfter    time.Duration // ACTIVE resources untouched this long go IDLE, default 30s
}

// DefaultConfig returns the manager defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval: 5 * time.Second,
		CriticalMB:   10,
		HighMB:       25,
		ModerateMB:   50,
		IdleAfter:    30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.CriticalMB <= 0 {
		c.CriticalMB = d.CriticalMB
	}
	if c.HighMB <= 0 {
		c.HighMB = d.HighMB
	}
	if c.ModerateMB <= 0 {
		c.ModerateMB = d.ModerateMB
	}
	if c.IdleAfter <= 0 {
		c.IdleAfter = d.IdleAfter
	}
	return c
}

type entry struct {
	res      ManagedResource
	info     LifecycleInfo
	cleaning bool
	settled  chan struct{} // closed when the running cleanup returns
}

// Manager is the registry of managed resources.
type Manager struct {
	log        logging.Tagged
	cfg        Config
	reporter   recovery.Reporter
	dispatcher dispatch.Dispatcher
	provider   MemoryProvider
	strategy   DegradationStrategy
	now        func() time.Time

	mu          sync.RWMutex
	entries     map[string]*entry
	byType      map[domain.ResourceType]map[string]*entry
	transitions *ring.Buffer[Transition]

	cleaningAll atomic.Bool
	degraded    atomic.Bool
	monitoring  atomic.Bool

	pressureMu sync.Mutex
	limiter    *rate.Limiter
	level      domain.PressureLevel
	lastMemory MemoryInfo
	lastPoll   time.Time

	cleaned   atomic.Int64
	failures  atomic.Int64
	reclaimed atomic.Int64
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithDispatcher sets the owner dispatcher for UI-owned resource types.
func WithDispatcher(d dispatch.Dispatcher) ManagerOption {
	return func(m *Manager) { m.dispatcher = d }
}

// WithMemoryProvider sets the available-memory source.
func WithMemoryProvider(p MemoryProvider) ManagerOption {
	return func(m *Manager) { m.provider = p }
}

// WithStrategy replaces the default degradation strategy.
func WithStrategy(s DegradationStrategy) ManagerOption {
	return func(m *Manager) { m.strategy = s }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a resource manager reporting failures to reporter.
func NewManager(logger logging.Logger, reporter recovery.Reporter, cfg Config, opts ...ManagerOption) *Manager {
	cfg = cfg.withDefaults()
	m := &Manager{
		log:         logging.WithTag(logger, logTag),
		cfg:         cfg,
		reporter:    reporter,
		dispatcher:  dispatch.InlineDispatcher{},
		provider:    SysinfoProvider{LowMemoryMB: cfg.CriticalMB},
		strategy:    NewDefaultStrategy(),
		now:         time.Now,
		entries:     make(map[string]*entry),
		byType:      make(map[domain.ResourceType]map[string]*entry),
		transitions: ring.New[Transition](transitionHistorySize),
		limiter:     rate.NewLimiter(rate.Every(cfg.PollInterval), 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// -----------------------------------------------------------------------------
// Registry
// -----------------------------------------------------------------------------

// Register adds r in CREATED state. Registering a known id is a no-op.
func (m *Manager) Register(ctx context.Context, r ManagedResource) error {
	if r == nil {
		return errors.New("register: nil resource")
	}
	id := r.ID()
	if id == "" {
		return errors.New("register: empty resource id")
	}

	now := m.now()
	m.mu.Lock()
	if _, ok := m.entries[id]; ok {
		m.mu.Unlock()
		return nil
	}
	e := &entry{
		res: r,
		info: LifecycleInfo{
			ID:             id,
			Type:           r.Type(),
			State:          domain.LifecycleCreated,
			CreatedAt:      now,
			LastAccess:     now,
			EstimatedBytes: r.EstimatedBytes(),
			Reclaimable:    r.CanBeCleanedUnderPressure(),
		},
	}
	m.entries[id] = e
	if m.byType[r.Type()] == nil {
		m.byType[r.Type()] = make(map[string]*entry)
	}
	m.byType[r.Type()][id] = e
	m.mu.Unlock()

	metrics.ResourcesRegistered.WithLabelValues(string(r.Type())).Inc()
	m.log.Debug("resource registered", "id", id, "type", r.Type(), "size", humanize.IBytes(uint64(max(r.EstimatedBytes(), 0))))

	if m.monitoring.Load() {
		if level := m.CheckMemoryPressure(ctx); level > domain.PressureNormal {
			m.HandleMemoryPressure(ctx, level)
		}
	}
	return nil
}

// Unregister drops id without running its cleanup. It reports whether the
// id was registered.
func (m *Manager) Unregister(id string) bool {
	m.mu.Lock()
	e, ok := m.entries[id]
	if ok {
		m.removeLocked(e)
	}
	m.mu.Unlock()

	if ok {
		metrics.ResourcesRegistered.WithLabelValues(string(e.info.Type)).Dec()
		m.log.Debug("resource unregistered", "id", id)
	}
	return ok
}

func (m *Manager) removeLocked(e *entry) {
	delete(m.entries, e.info.ID)
	if byID := m.byType[e.info.Type]; byID != nil {
		delete(byID, e.info.ID)
		if len(byID) == 0 {
			delete(m.byType, e.info.Type)
		}
	}
}

// Touch records an access, moving CREATED or IDLE resources to ACTIVE.
func (m *Manager) Touch(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok || e.cleaning {
		return false
	}
	if e.info.State != domain.LifecycleActive {
		if err := m.transitionLocked(e, domain.LifecycleActive, "touched"); err != nil {
			return false
		}
	}
	e.info.LastAccess = m.now()
	return true
}

// MarkIdle moves a CREATED or ACTIVE resource to IDLE.
func (m *Manager) MarkIdle(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok || e.cleaning {
		return false
	}
	if e.info.State == domain.LifecycleIdle {
		return true
	}
	return m.transitionLocked(e, domain.LifecycleIdle, "marked idle") == nil
}

// SweepIdle marks ACTIVE resources not touched for after as IDLE and
// returns how many changed.
func (m *Manager) SweepIdle(after time.Duration) int {
	cutoff := m.now().Add(-after)

	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, e := range m.entries {
		if e.cleaning || e.info.State != domain.LifecycleActive || e.info.LastAccess.After(cutoff) {
			continue
		}
		if m.transitionLocked(e, domain.LifecycleIdle, "idle sweep") == nil {
			n++
		}
	}
	return n
}

func (m *Manager) transitionLocked(e *entry, to State, reason string) error {
	from := e.info.State
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	e.info.State = to
	if to == domain.LifecycleIdle {
		e.info.IdleSince = m.now()
	} else {
		e.info.IdleSince = time.Time{}
	}
	m.transitions.Add(Transition{ID: e.info.ID, From: from, To: to, Reason: reason, Timestamp: m.now()})
	m.log.Debug("lifecycle transition", "id", e.info.ID, "from", from, "to", to, "reason", reason)
	return nil
}

// Transitions returns recent lifecycle transitions, oldest first.
func (m *Manager) Transitions() []Transition {
	return m.transitions.All()
}

// GetResourceLifecycleInfo returns a snapshot for id. IdleTime is zero
// unless the resource is IDLE.
func (m *Manager) GetResourceLifecycleInfo(id string) (LifecycleInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[id]
	if !ok {
		return LifecycleInfo{}, false
	}
	return m.snapshotLocked(e), true
}

func (m *Manager) snapshotLocked(e *entry) LifecycleInfo {
	info := e.info
	if info.State == domain.LifecycleIdle {
		info.IdleTime = m.now().Sub(info.IdleSince)
	}
	return info
}

// Count returns the number of registered resources.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *Manager) entriesOfType(t domain.ResourceType) []*entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*entry, 0, len(m.byType[t]))
	for _, e := range m.byType[t] {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].info.CreatedAt.Before(out[j].info.CreatedAt)
	})
	return out
}

// -----------------------------------------------------------------------------
// Cleanup
// -----------------------------------------------------------------------------

// CleanupReport summarizes a CleanupAll sweep.
type CleanupReport struct {
	Cleaned  int
	Failed   []string
	Causes   map[string]error
	Recovery *recovery.Result // set when failures went to the engine
}

// CleanupAll releases every resource, type by type. It always completes;
// failed resources stay registered in CLEANUP_PENDING and are listed in
// the report. Resources another caller is already releasing are awaited
// and retried. Concurrent calls get ErrCleanupInProgress.
func (m *Manager) CleanupAll(ctx context.Context) (CleanupReport, error) {
	if !m.cleaningAll.CompareAndSwap(false, true) {
		m.log.Warn("cleanup all rejected, already running")
		return CleanupReport{}, ErrCleanupInProgress
	}
	defer m.cleaningAll.Store(false)

	start := m.now()
	causes := make(map[string]error)
	report := CleanupReport{}

	var busy []*entry
	for _, t := range domain.AllResourceTypes {
		for _, e := range m.entriesOfType(t) {
			err := m.cleanupEntry(ctx, e)
			switch {
			case err == nil:
				report.Cleaned++
			case errors.Is(err, ErrCleanupBusy):
				busy = append(busy, e)
			default:
				causes[e.info.ID] = err
			}
		}
	}

	// Resources another caller was releasing are settled once that
	// cleanup returns: gone, cleaned here, or reported.
	for _, e := range busy {
		err := m.awaitCleanup(ctx, e)
		switch {
		case err == nil:
			report.Cleaned++
		case errors.Is(err, ErrResourceNotFound):
		default:
			causes[e.info.ID] = err
		}
	}

	if len(causes) > 0 {
		perr := recovery.NewPartialCleanup(causes)
		report.Failed = perr.FailedIDs
		report.Causes = causes
		res := m.reporter.HandleError(ctx, perr)
		report.Recovery = &res
	}

	m.log.Info("cleanup all finished",
		"cleaned", report.Cleaned,
		"failed", len(report.Failed),
		"duration", m.now().Sub(start),
	)
	return report, nil
}

// awaitCleanup waits for a concurrent cleanup of e to return, then
// releases e if it is still registered.
func (m *Manager) awaitCleanup(ctx context.Context, e *entry) error {
	for {
		m.mu.RLock()
		cleaning, settled := e.cleaning, e.settled
		m.mu.RUnlock()

		if cleaning {
			select {
			case <-settled:
			case <-ctx.Done():
				return fmt.Errorf("cleanup %s: %w", e.info.ID, ctx.Err())
			}
		}
		err := m.cleanupEntry(ctx, e)
		if !errors.Is(err, ErrCleanupBusy) {
			return err
		}
	}
}

// CleanupByType releases every resource of type t and returns how many
// were released. Failures are logged and leave the resource pending.
func (m *Manager) CleanupByType(ctx context.Context, t domain.ResourceType) int {
	n := 0
	for _, e := range m.entriesOfType(t) {
		if err := m.cleanupEntry(ctx, e); err != nil {
			if !errors.Is(err, ErrCleanupBusy) {
				m.log.Warn("cleanup failed", "id", e.info.ID, "type", t, "error", err)
			}
			continue
		}
		n++
	}
	return n
}

// ForceCleanup releases id regardless of its reclaimable flag.
func (m *Manager) ForceCleanup(ctx context.Context, id string) error {
	m.mu.RLock()
	e, ok := m.entries[id]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrResourceNotFound, id)
	}
	return m.cleanupEntry(ctx, e)
}

// cleanupEntry moves e to CLEANUP_PENDING, runs its cleanup and purges it
// on success. No lock is held while the cleanup runs.
func (m *Manager) cleanupEntry(ctx context.Context, e *entry) error {
	m.mu.Lock()
	if _, ok := m.entries[e.info.ID]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrResourceNotFound, e.info.ID)
	}
	if e.cleaning {
		m.mu.Unlock()
		return ErrCleanupBusy
	}
	if e.info.State != domain.LifecycleCleanupPending {
		if err := m.transitionLocked(e, domain.LifecycleCleanupPending, "cleanup"); err != nil {
			m.mu.Unlock()
			return err
		}
	}
	e.cleaning = true
	e.settled = make(chan struct{})
	m.mu.Unlock()

	t := e.info.Type
	err := m.invoke(ctx, e.res)

	m.mu.Lock()
	e.cleaning = false
	close(e.settled)
	if err == nil {
		_ = m.transitionLocked(e, domain.LifecycleCleanedUp, "cleanup done")
		m.removeLocked(e)
	}
	m.mu.Unlock()

	if err != nil {
		m.failures.Add(1)
		metrics.ResourceCleanupsTotal.WithLabelValues(string(t), "failed").Inc()
		return fmt.Errorf("cleanup %s: %w", e.info.ID, err)
	}
	m.cleaned.Add(1)
	metrics.ResourceCleanupsTotal.WithLabelValues(string(t), "ok").Inc()
	metrics.ResourcesRegistered.WithLabelValues(string(t)).Dec()
	return nil
}

// invoke runs r.Cleanup with panic isolation, on the owner goroutine for
// UI-owned types.
func (m *Manager) invoke(ctx context.Context, r ManagedResource) error {
	call := func(ctx context.Context) error {
		return safe.Call(func() error { return r.Cleanup(ctx) })
	}
	if !r.Type().IsUIOwned() || m.dispatcher.IsOwner(ctx) {
		return call(ctx)
	}

	var err error
	if derr := m.dispatcher.Run(ctx, func(ctx context.Context) { err = call(ctx) }); derr != nil {
		return fmt.Errorf("dispatch to owner: %w", derr)
	}
	return err
}

// -----------------------------------------------------------------------------
// Statistics
// -----------------------------------------------------------------------------

// Statistics is a diagnostic snapshot of the registry.
type Statistics struct {
	Total          int                         `json:"total"`
	ByType         map[domain.ResourceType]int `json:"by_type"`
	ByState        map[State]int               `json:"by_state"`
	EstimatedBytes int64                       `json:"estimated_bytes"`
	EstimatedSize  string                      `json:"estimated_size"`
	Degraded       bool                        `json:"degraded"`
	PressureLevel  string                      `json:"pressure_level"`
	AvailableMB    float64                     `json:"available_mb"`
	LastPoll       time.Time                   `json:"last_poll"`
	Cleaned        int64                       `json:"cleaned"`
	Failures       int64                       `json:"failures"`
	Reclaimed      int64                       `json:"reclaimed"`
}

// Statistics returns counts by type and state plus pressure status.
func (m *Manager) Statistics() Statistics {
	stats := Statistics{
		ByType:    make(map[domain.ResourceType]int),
		ByState:   make(map[State]int),
		Degraded:  m.degraded.Load(),
		Cleaned:   m.cleaned.Load(),
		Failures:  m.failures.Load(),
		Reclaimed: m.reclaimed.Load(),
	}

	m.mu.RLock()
	for _, e := range m.entries {
		stats.Total++
		stats.ByType[e.info.Type]++
		stats.ByState[e.info.State]++
		stats.EstimatedBytes += e.info.EstimatedBytes
	}
	m.mu.RUnlock()

	m.pressureMu.Lock()
	stats.PressureLevel = m.level.String()
	stats.AvailableMB = m.lastMemory.AvailableMB
	stats.LastPoll = m.lastPoll
	m.pressureMu.Unlock()

	stats.EstimatedSize = humanize.IBytes(uint64(max(stats.EstimatedBytes, 0)))
	return stats
}
