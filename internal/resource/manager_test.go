package resource

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/menuguard/internal/core/dispatch"
	"github.com/vietddude/menuguard/internal/core/domain"
	"github.com/vietddude/menuguard/internal/core/logging"
	"github.com/vietddude/menuguard/internal/recovery"
)

// =============================================================================
// Helpers
// =============================================================================

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 10, 20, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func staticMemory(mb float64) MemoryProvider {
	return MemoryProviderFunc(func(context.Context) (MemoryInfo, error) {
		return MemoryInfo{AvailableMB: mb}, nil
	})
}

func newTestManager(t *testing.T, opts ...ManagerOption) (*Manager, *recovery.Engine) {
	t.Helper()
	engine := recovery.NewEngine(logging.Discard(), recovery.Config{})
	opts = append([]ManagerOption{WithMemoryProvider(staticMemory(512))}, opts...)
	return NewManager(logging.Discard(), engine, Config{}, opts...), engine
}

func register(t *testing.T, m *Manager, rt domain.ResourceType, id string, opts ...Option) *Resource {
	t.Helper()
	r := New(rt, nil, append([]Option{WithID(id)}, opts...)...)
	require.NoError(t, m.Register(context.Background(), r))
	return r
}

// =============================================================================
// Registry
// =============================================================================

func TestRegister_StartsCreatedWithZeroIdle(t *testing.T) {
	m, _ := newTestManager(t)
	r := register(t, m, domain.ResourceAnimation, "fade-in", WithEstimatedBytes(2048))

	info, ok := m.GetResourceLifecycleInfo(r.ID())
	require.True(t, ok)
	assert.Equal(t, domain.LifecycleCreated, info.State)
	assert.Zero(t, info.IdleTime)
	assert.Equal(t, int64(2048), info.EstimatedBytes)
	assert.True(t, info.Reclaimable)
}

func TestRegister_Idempotent(t *testing.T) {
	m, _ := newTestManager(t)
	r := register(t, m, domain.ResourceTimer, "clock")
	require.NoError(t, m.Register(context.Background(), r))
	assert.Equal(t, 1, m.Count())

	assert.True(t, m.Unregister("clock"))
	assert.False(t, m.Unregister("clock"))
	assert.Equal(t, 0, m.Count())
}

func TestRegister_RejectsInvalid(t *testing.T) {
	m, _ := newTestManager(t)
	assert.Error(t, m.Register(context.Background(), nil))
	assert.Error(t, m.Register(context.Background(), New(domain.ResourceTimer, nil, WithID(""))))
}

func TestLifecycle_TouchIdleSweep(t *testing.T) {
	clock := newFakeClock()
	m, _ := newTestManager(t, WithClock(clock.Now))
	register(t, m, domain.ResourceListener, "remote-keys")

	require.True(t, m.Touch("remote-keys"))
	info, _ := m.GetResourceLifecycleInfo("remote-keys")
	assert.Equal(t, domain.LifecycleActive, info.State)

	clock.Advance(time.Minute)
	assert.Equal(t, 1, m.SweepIdle(30*time.Second))

	clock.Advance(10 * time.Second)
	info, _ = m.GetResourceLifecycleInfo("remote-keys")
	assert.Equal(t, domain.LifecycleIdle, info.State)
	assert.Equal(t, 10*time.Second, info.IdleTime)

	require.True(t, m.Touch("remote-keys"))
	info, _ = m.GetResourceLifecycleInfo("remote-keys")
	assert.Equal(t, domain.LifecycleActive, info.State)
	assert.Zero(t, info.IdleTime)

	assert.False(t, m.Touch("missing"))
	assert.False(t, m.MarkIdle("missing"))

	var got []string
	for _, tr := range m.Transitions() {
		got = append(got, string(tr.From)+">"+string(tr.To))
	}
	assert.Equal(t, []string{
		string(domain.LifecycleCreated) + ">" + string(domain.LifecycleActive),
		string(domain.LifecycleActive) + ">" + string(domain.LifecycleIdle),
		string(domain.LifecycleIdle) + ">" + string(domain.LifecycleActive),
	}, got)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(domain.LifecycleCreated, domain.LifecycleActive))
	assert.True(t, CanTransition(domain.LifecycleActive, domain.LifecycleIdle))
	assert.True(t, CanTransition(domain.LifecycleIdle, domain.LifecycleActive))
	assert.True(t, CanTransition(domain.LifecycleCleanupPending, domain.LifecycleCleanedUp))

	assert.False(t, CanTransition(domain.LifecycleCleanedUp, domain.LifecycleActive))
	assert.False(t, CanTransition(domain.LifecycleCleanupPending, domain.LifecycleActive))
	assert.False(t, CanTransition(domain.LifecycleActive, domain.LifecycleCreated))
}

// =============================================================================
// Cleanup
// =============================================================================

func TestCleanupByType_OnlyTargetTypeRemoved(t *testing.T) {
	m, _ := newTestManager(t)
	register(t, m, domain.ResourceAnimation, "anim")
	register(t, m, domain.ResourceListAdapter, "adapter")
	register(t, m, domain.ResourceListener, "listener")
	for _, id := range []string{"anim", "adapter", "listener"} {
		require.True(t, m.Touch(id))
	}

	assert.Equal(t, 1, m.CleanupByType(context.Background(), domain.ResourceAnimation))

	_, ok := m.GetResourceLifecycleInfo("anim")
	assert.False(t, ok)
	for _, id := range []string{"adapter", "listener"} {
		info, ok := m.GetResourceLifecycleInfo(id)
		require.True(t, ok, id)
		assert.Equal(t, domain.LifecycleActive, info.State, id)
	}
}

func TestCleanupAll_EveryResourceAbsentOrReported(t *testing.T) {
	m, engine := newTestManager(t)
	ctx := context.Background()

	var mu sync.Mutex
	var order []domain.ResourceType
	track := func(rt domain.ResourceType, fail error, panics bool) func(context.Context) error {
		return func(context.Context) error {
			mu.Lock()
			order = append(order, rt)
			mu.Unlock()
			if panics {
				panic("double free")
			}
			return fail
		}
	}

	resources := []*Resource{
		New(domain.ResourceMemoryBlock, track(domain.ResourceMemoryBlock, nil, false), WithID("mem")),
		New(domain.ResourceListAdapter, track(domain.ResourceListAdapter, errors.New("adapter busy"), false), WithID("adapter")),
		New(domain.ResourceAnimation, track(domain.ResourceAnimation, nil, false), WithID("anim")),
		New(domain.ResourceBackgroundThread, track(domain.ResourceBackgroundThread, nil, true), WithID("loader")),
		New(domain.ResourceTimer, track(domain.ResourceTimer, nil, false), WithID("timer")),
		New(domain.ResourceVisualEffect, track(domain.ResourceVisualEffect, nil, false), WithID("glow")),
	}
	for _, r := range resources {
		require.NoError(t, m.Register(ctx, r))
	}

	report, err := m.CleanupAll(ctx)
	require.NoError(t, err)

	assert.Equal(t, 4, report.Cleaned)
	assert.Equal(t, []string{"adapter", "loader"}, report.Failed)
	require.NotNil(t, report.Recovery)

	failed := make(map[string]bool)
	for _, id := range report.Failed {
		failed[id] = true
	}
	for _, r := range resources {
		info, present := m.GetResourceLifecycleInfo(r.ID())
		if present {
			assert.True(t, failed[r.ID()], "%s present but not reported", r.ID())
			assert.Equal(t, domain.LifecycleCleanupPending, info.State)
		} else {
			assert.False(t, failed[r.ID()], "%s reported but absent", r.ID())
		}
	}

	assert.Equal(t, []domain.ResourceType{
		domain.ResourceBackgroundThread,
		domain.ResourceAnimation,
		domain.ResourceTimer,
		domain.ResourceVisualEffect,
		domain.ResourceListAdapter,
		domain.ResourceMemoryBlock,
	}, order)

	hist := engine.History()
	require.Len(t, hist, 1)
	assert.Equal(t, recovery.KindPartialCleanup, hist[0].Err.Kind())
}

func TestCleanupAll_FailedResourceRetriedByForceCleanup(t *testing.T) {
	m, _ := newTestManager(t)
	attempts := 0
	r := New(domain.ResourceListener, func(context.Context) error {
		attempts++
		if attempts == 1 {
			return errors.New("still attached")
		}
		return nil
	}, WithID("key-listener"))
	require.NoError(t, m.Register(context.Background(), r))

	report, err := m.CleanupAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"key-listener"}, report.Failed)

	require.NoError(t, m.ForceCleanup(context.Background(), "key-listener"))
	_, ok := m.GetResourceLifecycleInfo("key-listener")
	assert.False(t, ok)
}

func TestCleanupAll_ConcurrentCallRejected(t *testing.T) {
	m, _ := newTestManager(t)
	started := make(chan struct{})
	release := make(chan struct{})

	r := New(domain.ResourceBackgroundThread, func(context.Context) error {
		close(started)
		<-release
		return nil
	}, WithID("epg-loader"))
	require.NoError(t, m.Register(context.Background(), r))

	done := make(chan CleanupReport)
	go func() {
		report, _ := m.CleanupAll(context.Background())
		done <- report
	}()

	<-started
	_, err := m.CleanupAll(context.Background())
	assert.ErrorIs(t, err, ErrCleanupInProgress)

	close(release)
	report := <-done
	assert.Equal(t, 1, report.Cleaned)

	_, err = m.CleanupAll(context.Background())
	assert.NoError(t, err)
}

func TestCleanupAll_AwaitsConcurrentForceCleanup(t *testing.T) {
	tests := []struct {
		name    string
		fail    bool
		present bool
	}{
		{"concurrent cleanup fails", true, true},
		{"concurrent cleanup succeeds", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, engine := newTestManager(t)
			started := make(chan struct{})
			release := make(chan struct{})
			var mu sync.Mutex
			calls := 0

			r := New(domain.ResourceTimer, func(context.Context) error {
				mu.Lock()
				calls++
				first := calls == 1
				mu.Unlock()
				if first {
					close(started)
					<-release
				}
				if tt.fail {
					return errors.New("timer stuck")
				}
				return nil
			}, WithID("clock-tick"))
			require.NoError(t, m.Register(context.Background(), r))

			forced := make(chan error, 1)
			go func() { forced <- m.ForceCleanup(context.Background(), "clock-tick") }()
			<-started

			done := make(chan CleanupReport, 1)
			go func() {
				report, err := m.CleanupAll(context.Background())
				assert.NoError(t, err)
				done <- report
			}()

			time.Sleep(20 * time.Millisecond)
			close(release)
			report := <-done
			forcedErr := <-forced

			_, present := m.GetResourceLifecycleInfo("clock-tick")
			assert.Equal(t, tt.present, present)
			if !tt.fail {
				assert.NoError(t, forcedErr)
				assert.Empty(t, report.Failed)
				return
			}

			assert.Error(t, forcedErr)
			assert.Equal(t, []string{"clock-tick"}, report.Failed)
			mu.Lock()
			assert.Equal(t, 2, calls, "cleanup all retries after the concurrent attempt settles")
			mu.Unlock()
			var partial int
			for _, rec := range engine.History() {
				if rec.Err.Kind() == recovery.KindPartialCleanup {
					partial++
				}
			}
			assert.Equal(t, 1, partial)
		})
	}
}

func TestForceCleanup_AbandonedDispatchDoesNotRun(t *testing.T) {
	loop := dispatch.NewLoopDispatcher(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	loop.Start(ctx)
	defer loop.Stop()

	m, _ := newTestManager(t, WithDispatcher(loop))
	var mu sync.Mutex
	runs := 0
	require.NoError(t, m.Register(ctx, New(domain.ResourceAnimation, func(context.Context) error {
		mu.Lock()
		runs++
		mu.Unlock()
		return nil
	}, WithID("fade-in"))))

	// Occupy the owner loop.
	release := make(chan struct{})
	busy := make(chan struct{})
	go func() {
		_ = loop.Run(ctx, func(context.Context) {
			close(busy)
			<-release
		})
	}()
	<-busy

	short, cancelShort := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancelShort()
	err := m.ForceCleanup(short, "fade-in")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, loop.Run(ctx, func(context.Context) {}))
	mu.Lock()
	assert.Equal(t, 0, runs, "abandoned cleanup must not run on the owner")
	mu.Unlock()

	info, ok := m.GetResourceLifecycleInfo("fade-in")
	require.True(t, ok)
	assert.Equal(t, domain.LifecycleCleanupPending, info.State)

	require.NoError(t, m.ForceCleanup(ctx, "fade-in"))
	mu.Lock()
	assert.Equal(t, 1, runs)
	mu.Unlock()
	assert.Zero(t, m.Count())
}

func TestForceCleanup(t *testing.T) {
	m, _ := newTestManager(t)
	register(t, m, domain.ResourceListAdapter, "pinned", WithReclaimable(false))

	require.NoError(t, m.ForceCleanup(context.Background(), "pinned"))
	assert.Equal(t, 0, m.Count())

	err := m.ForceCleanup(context.Background(), "pinned")
	assert.ErrorIs(t, err, ErrResourceNotFound)
	assert.ErrorIs(t, err, recovery.ErrNotFound)
}

func TestCleanup_UIOwnedTypesRunOnOwner(t *testing.T) {
	loop := dispatch.NewLoopDispatcher(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	loop.Start(ctx)
	defer loop.Stop()

	m, _ := newTestManager(t, WithDispatcher(loop))

	owned := make(map[string]bool)
	var mu sync.Mutex
	record := func(id string) func(context.Context) error {
		return func(ctx context.Context) error {
			mu.Lock()
			owned[id] = loop.IsOwner(ctx)
			mu.Unlock()
			return nil
		}
	}
	require.NoError(t, m.Register(ctx, New(domain.ResourceAnimation, record("anim"), WithID("anim"))))
	require.NoError(t, m.Register(ctx, New(domain.ResourceTimer, record("timer"), WithID("timer"))))

	_, err := m.CleanupAll(ctx)
	require.NoError(t, err)

	assert.True(t, owned["anim"])
	assert.False(t, owned["timer"])
}

// =============================================================================
// Memory pressure
// =============================================================================

func TestClassifyThresholds(t *testing.T) {
	m, _ := newTestManager(t)
	tests := []struct {
		info MemoryInfo
		want domain.PressureLevel
	}{
		{MemoryInfo{AvailableMB: 5}, domain.PressureCritical},
		{MemoryInfo{AvailableMB: 10}, domain.PressureCritical},
		{MemoryInfo{AvailableMB: 25}, domain.PressureHigh},
		{MemoryInfo{AvailableMB: 40}, domain.PressureModerate},
		{MemoryInfo{AvailableMB: 50}, domain.PressureModerate},
		{MemoryInfo{AvailableMB: 51}, domain.PressureNormal},
		{MemoryInfo{AvailableMB: 400, LowMemory: true}, domain.PressureHigh},
		{MemoryInfo{AvailableMB: 8, LowMemory: true}, domain.PressureCritical},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%.0fMB_low=%v", tt.info.AvailableMB, tt.info.LowMemory), func(t *testing.T) {
			assert.Equal(t, tt.want, m.classify(tt.info))
		})
	}
}

func TestCheckMemoryPressure_RateLimited(t *testing.T) {
	clock := newFakeClock()
	polls := 0
	mb := 100.0
	provider := MemoryProviderFunc(func(context.Context) (MemoryInfo, error) {
		polls++
		return MemoryInfo{AvailableMB: mb}, nil
	})
	m, _ := newTestManager(t, WithClock(clock.Now), WithMemoryProvider(provider))
	ctx := context.Background()

	assert.Equal(t, domain.PressureNormal, m.CheckMemoryPressure(ctx))
	mb = 20
	assert.Equal(t, domain.PressureNormal, m.CheckMemoryPressure(ctx))
	assert.Equal(t, 1, polls)

	clock.Advance(5 * time.Second)
	assert.Equal(t, domain.PressureHigh, m.CheckMemoryPressure(ctx))
	assert.Equal(t, 2, polls)
}

func TestCheckMemoryPressure_ProviderErrorKeepsCachedLevel(t *testing.T) {
	clock := newFakeClock()
	fail := false
	provider := MemoryProviderFunc(func(context.Context) (MemoryInfo, error) {
		if fail {
			return MemoryInfo{}, errors.New("proc unreadable")
		}
		return MemoryInfo{AvailableMB: 30}, nil
	})
	m, _ := newTestManager(t, WithClock(clock.Now), WithMemoryProvider(provider))

	assert.Equal(t, domain.PressureModerate, m.CheckMemoryPressure(context.Background()))
	fail = true
	clock.Advance(10 * time.Second)
	assert.Equal(t, domain.PressureModerate, m.CheckMemoryPressure(context.Background()))
}

func TestHandleMemoryPressure_NormalIsNoop(t *testing.T) {
	m, _ := newTestManager(t)
	register(t, m, domain.ResourceVisualEffect, "blur")

	assert.Equal(t, 0, m.HandleMemoryPressure(context.Background(), domain.PressureNormal))
	assert.Equal(t, 1, m.Count())
	assert.False(t, m.IsDegraded())
}

func TestHandleMemoryPressure_ModerateOnlyCosmetic(t *testing.T) {
	m, _ := newTestManager(t)
	register(t, m, domain.ResourceVisualEffect, "blur")
	register(t, m, domain.ResourceAnimation, "slide")
	register(t, m, domain.ResourceTimer, "clock")
	register(t, m, domain.ResourceAnimation, "pinned-anim", WithReclaimable(false))

	assert.Equal(t, 2, m.HandleMemoryPressure(context.Background(), domain.PressureModerate))
	assert.False(t, m.IsDegraded())

	_, ok := m.GetResourceLifecycleInfo("clock")
	assert.True(t, ok)
	_, ok = m.GetResourceLifecycleInfo("pinned-anim")
	assert.True(t, ok)
}

func TestHandleMemoryPressure_CriticalRespectsProtectedSet(t *testing.T) {
	m, engine := newTestManager(t, WithMemoryProvider(staticMemory(4)))
	strategy := NewDefaultStrategy()

	type fixture struct {
		id          string
		rt          domain.ResourceType
		reclaimable bool
	}
	fixtures := []fixture{
		{"blur", domain.ResourceVisualEffect, true},
		{"clock", domain.ResourceTimer, false},
		{"epg", domain.ResourceBackgroundThread, true},
		{"channels", domain.ResourceListAdapter, false},
		{"categories", domain.ResourceListAdapter, true},
		{"search-box", domain.ResourceInteractiveElement, false},
		{"pinned-effect", domain.ResourceVisualEffect, false},
	}
	for _, s := range fixtures {
		register(t, m, s.rt, s.id, WithReclaimable(s.reclaimable))
	}

	reclaimed := m.HandleMemoryPressure(context.Background(), domain.PressureCritical)
	assert.Equal(t, 5, reclaimed)
	assert.True(t, m.IsDegraded())

	for _, s := range fixtures {
		_, present := m.GetResourceLifecycleInfo(s.id)
		allowed := s.reclaimable || !strategy.Protected[s.rt]
		if !present {
			assert.True(t, allowed, "%s reclaimed without qualifying", s.id)
		} else {
			assert.False(t, allowed, "%s qualified but survived", s.id)
		}
	}

	// Entering degraded mode raised exactly one low-severity warning.
	hist := engine.History()
	require.Len(t, hist, 1)
	assert.Equal(t, recovery.KindPerformanceWarning, hist[0].Err.Kind())
}

func TestHandleMemoryPressure_StopsOnceRelieved(t *testing.T) {
	var mu sync.Mutex
	mb := 20.0
	provider := MemoryProviderFunc(func(context.Context) (MemoryInfo, error) {
		mu.Lock()
		defer mu.Unlock()
		return MemoryInfo{AvailableMB: mb}, nil
	})
	clock := newFakeClock()
	m, _ := newTestManager(t, WithMemoryProvider(provider), WithClock(clock.Now))

	for i, rt := range []domain.ResourceType{domain.ResourceTimer, domain.ResourceVisualEffect, domain.ResourceAnimation} {
		id := fmt.Sprintf("r%d", i)
		r := New(rt, func(context.Context) error {
			mu.Lock()
			mb += 100
			mu.Unlock()
			return nil
		}, WithID(id))
		require.NoError(t, m.Register(context.Background(), r))
		clock.Advance(time.Second)
	}

	assert.Equal(t, 1, m.HandleMemoryPressure(context.Background(), domain.PressureHigh))

	// The visual effect goes first in the default order.
	_, ok := m.GetResourceLifecycleInfo("r1")
	assert.False(t, ok)
	assert.Equal(t, 2, m.Count())
}

func TestDegradedMode_Idempotent(t *testing.T) {
	m, engine := newTestManager(t)
	ctx := context.Background()

	assert.True(t, m.EnterDegradedMode(ctx))
	assert.False(t, m.EnterDegradedMode(ctx))
	assert.True(t, m.IsDegraded())
	assert.Len(t, engine.History(), 1)

	assert.True(t, m.ExitDegradedMode())
	assert.False(t, m.ExitDegradedMode())
	assert.False(t, m.IsDegraded())
}

func TestStartMonitoring_ReclaimsAndRecovers(t *testing.T) {
	var mu sync.Mutex
	mb := 5.0
	provider := MemoryProviderFunc(func(context.Context) (MemoryInfo, error) {
		mu.Lock()
		defer mu.Unlock()
		return MemoryInfo{AvailableMB: mb}, nil
	})
	engine := recovery.NewEngine(logging.Discard(), recovery.Config{})
	m := NewManager(logging.Discard(), engine, Config{PollInterval: time.Millisecond}, WithMemoryProvider(provider))
	register(t, m, domain.ResourceVisualEffect, "blur")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.StartMonitoring(ctx, 5*time.Millisecond)
	}()

	require.Eventually(t, func() bool { return m.Count() == 0 && m.IsDegraded() }, time.Second, 5*time.Millisecond)

	mu.Lock()
	mb = 500
	mu.Unlock()
	require.Eventually(t, func() bool { return !m.IsDegraded() }, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	assert.False(t, m.IsMonitoring())
}

func TestStatistics(t *testing.T) {
	m, _ := newTestManager(t)
	register(t, m, domain.ResourceMemoryBlock, "thumbs", WithEstimatedBytes(3<<20))
	register(t, m, domain.ResourceTimer, "clock", WithEstimatedBytes(1024))
	require.True(t, m.Touch("clock"))

	stats := m.Statistics()
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.ByType[domain.ResourceTimer])
	assert.Equal(t, 1, stats.ByState[domain.LifecycleCreated])
	assert.Equal(t, 1, stats.ByState[domain.LifecycleActive])
	assert.Equal(t, int64(3<<20+1024), stats.EstimatedBytes)
	assert.Equal(t, "3.0 MiB", stats.EstimatedSize)
	assert.Equal(t, "NORMAL", stats.PressureLevel)
}
