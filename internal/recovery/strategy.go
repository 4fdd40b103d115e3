package recovery

import (
	"context"
	"errors"
	"fmt"

	"github.com/vietddude/menuguard/internal/core/domain"
)

// Strategy decides how to respond to specific MenuError variants.
type Strategy interface {
	// Name identifies the strategy in logs and metrics.
	Name() string

	// Priority orders strategies; higher runs first.
	Priority() int

	// CanHandle reports whether the strategy claims err.
	CanHandle(err MenuError) bool

	// Recover attempts recovery. A returned error counts as CannotRecover.
	Recover(ctx context.Context, err MenuError, attempt Attempt) (StrategyResult, error)
}

// Attempt describes which try the engine is making.
type Attempt struct {
	Number     int // 1 for the first try, 2 for the single retry
	Simplified bool
}

// IsRetry reports whether this is the engine's second attempt.
func (a Attempt) IsRetry() bool { return a.Number > 1 }

// Reclaimer is the resource-side capability strategies use to free memory.
type Reclaimer interface {
	HandleMemoryPressure(ctx context.Context, level domain.PressureLevel) int
	CleanupByType(ctx context.Context, t domain.ResourceType) int
	ForceCleanup(ctx context.Context, id string) error
}

// DeadlockRecoverer is the focus-side capability used for deadlocks.
type DeadlockRecoverer interface {
	RecoverFromDeadlock(ctx context.Context) bool
}

// Strategy priorities, highest first.
const (
	PriorityMemoryPressure = 100
	PriorityFocusDeadlock  = 90
	PriorityAdapterInit    = 70
	PriorityVisualEffect   = 60
	PriorityPartialCleanup = 50
	PriorityWarning        = 10
	PriorityFallback       = 0
)

// -----------------------------------------------------------------------------
// Memory pressure
// -----------------------------------------------------------------------------

// MemoryPressureStrategy answers out-of-memory errors with critical
// reclamation.
type MemoryPressureStrategy struct {
	Reclaimer Reclaimer
}

func (s *MemoryPressureStrategy) Name() string  { return "memory_pressure" }
func (s *MemoryPressureStrategy) Priority() int { return PriorityMemoryPressure }

func (s *MemoryPressureStrategy) CanHandle(err MenuError) bool {
	return err.Kind() == KindOutOfMemory && s.Reclaimer != nil
}

func (s *MemoryPressureStrategy) Recover(ctx context.Context, _ MenuError, _ Attempt) (StrategyResult, error) {
	n := s.Reclaimer.HandleMemoryPressure(ctx, domain.PressureCritical)
	if n == 0 {
		return PartialSuccess("nothing reclaimable, continuing degraded"), nil
	}
	return Succeed(fmt.Sprintf("reclaimed %d resource(s)", n)), nil
}

// -----------------------------------------------------------------------------
// Focus deadlock
// -----------------------------------------------------------------------------

// FocusDeadlockStrategy escalates focus deadlocks to the focus manager.
type FocusDeadlockStrategy struct {
	Recoverer DeadlockRecoverer
}

func (s *FocusDeadlockStrategy) Name() string  { return "focus_deadlock" }
func (s *FocusDeadlockStrategy) Priority() int { return PriorityFocusDeadlock }

func (s *FocusDeadlockStrategy) CanHandle(err MenuError) bool {
	return err.Kind() == KindFocusDeadlock && s.Recoverer != nil
}

func (s *FocusDeadlockStrategy) Recover(ctx context.Context, _ MenuError, attempt Attempt) (StrategyResult, error) {
	if s.Recoverer.RecoverFromDeadlock(ctx) {
		return Succeed("focus restored"), nil
	}
	if !attempt.IsRetry() {
		return Retry(false), nil
	}
	return CannotRecover("focus deadlock persists"), nil
}

// -----------------------------------------------------------------------------
// Adapter init
// -----------------------------------------------------------------------------

// AdapterInitStrategy retries adapter initialization once in simplified form.
type AdapterInitStrategy struct {
	// Reinit rebuilds the adapter. Nil means the host rebuilds it lazily.
	Reinit func(ctx context.Context, adapter string, simplified bool) error
}

func (s *AdapterInitStrategy) Name() string  { return "adapter_init" }
func (s *AdapterInitStrategy) Priority() int { return PriorityAdapterInit }

func (s *AdapterInitStrategy) CanHandle(err MenuError) bool {
	return err.Kind() == KindAdapterInit
}

func (s *AdapterInitStrategy) Recover(ctx context.Context, err MenuError, attempt Attempt) (StrategyResult, error) {
	var adapterErr *AdapterInitError
	if !errors.As(err, &adapterErr) {
		return CannotRecover("unexpected error type"), nil
	}

	if s.Reinit == nil {
		if !attempt.IsRetry() {
			return Retry(true), nil
		}
		return PartialSuccess("adapter will be rebuilt in simplified mode", adapterErr.Adapter), nil
	}

	if reinitErr := s.Reinit(ctx, adapterErr.Adapter, attempt.Simplified); reinitErr != nil {
		if !attempt.IsRetry() {
			return Retry(true), nil
		}
		return StrategyResult{}, fmt.Errorf("reinit %s: %w", adapterErr.Adapter, reinitErr)
	}
	if attempt.Simplified {
		return PartialSuccess("adapter running in simplified mode", adapterErr.Adapter), nil
	}
	return Succeed("adapter reinitialized"), nil
}

// -----------------------------------------------------------------------------
// Visual effect
// -----------------------------------------------------------------------------

// VisualEffectStrategy drops every visual effect after one fails.
type VisualEffectStrategy struct {
	Reclaimer Reclaimer
}

func (s *VisualEffectStrategy) Name() string  { return "visual_effect" }
func (s *VisualEffectStrategy) Priority() int { return PriorityVisualEffect }

func (s *VisualEffectStrategy) CanHandle(err MenuError) bool {
	return err.Kind() == KindVisualEffect && s.Reclaimer != nil
}

func (s *VisualEffectStrategy) Recover(ctx context.Context, _ MenuError, _ Attempt) (StrategyResult, error) {
	n := s.Reclaimer.CleanupByType(ctx, domain.ResourceVisualEffect)
	return Succeed(fmt.Sprintf("disabled %d visual effect(s)", n)), nil
}

// -----------------------------------------------------------------------------
// Partial cleanup
// -----------------------------------------------------------------------------

// PartialCleanupStrategy force-cleans resources a sweep could not release.
type PartialCleanupStrategy struct {
	Reclaimer Reclaimer
}

func (s *PartialCleanupStrategy) Name() string  { return "partial_cleanup" }
func (s *PartialCleanupStrategy) Priority() int { return PriorityPartialCleanup }

func (s *PartialCleanupStrategy) CanHandle(err MenuError) bool {
	return err.Kind() == KindPartialCleanup && s.Reclaimer != nil
}

func (s *PartialCleanupStrategy) Recover(ctx context.Context, err MenuError, _ Attempt) (StrategyResult, error) {
	var cleanupErr *PartialCleanupError
	if !errors.As(err, &cleanupErr) {
		return CannotRecover("unexpected error type"), nil
	}

	var remaining []string
	for _, id := range cleanupErr.FailedIDs {
		if ferr := s.Reclaimer.ForceCleanup(ctx, id); ferr != nil && !errors.Is(ferr, ErrNotFound) {
			remaining = append(remaining, id)
		}
	}
	if len(remaining) == 0 {
		return Succeed(fmt.Sprintf("released %d resource(s) on retry", len(cleanupErr.FailedIDs))), nil
	}
	return PartialSuccess("some resources could not be released", remaining...), nil
}

// ErrNotFound is matched by reclaimers reporting an already-gone resource.
var ErrNotFound = errors.New("not found")

// -----------------------------------------------------------------------------
// Warnings and fallback
// -----------------------------------------------------------------------------

// WarningStrategy acknowledges low-severity warnings; nothing needs undoing.
type WarningStrategy struct{}

func (WarningStrategy) Name() string  { return "warning" }
func (WarningStrategy) Priority() int { return PriorityWarning }

func (WarningStrategy) CanHandle(err MenuError) bool {
	return err.Severity() == SeverityLow
}

func (WarningStrategy) Recover(context.Context, MenuError, Attempt) (StrategyResult, error) {
	return Succeed(""), nil
}

// FallbackStrategy matches every error so each recoverable error has a
// strategy. Its answer degrades with severity.
type FallbackStrategy struct{}

func (FallbackStrategy) Name() string  { return "fallback" }
func (FallbackStrategy) Priority() int { return PriorityFallback }

func (FallbackStrategy) CanHandle(MenuError) bool { return true }

func (FallbackStrategy) Recover(_ context.Context, err MenuError, attempt Attempt) (StrategyResult, error) {
	switch err.Severity() {
	case SeverityCritical:
		return PartialSuccess("running with minimal functionality"), nil
	case SeverityHigh:
		if !attempt.IsRetry() {
			return Retry(true), nil
		}
		return PartialSuccess("continuing after simplified retry"), nil
	default:
		return PartialSuccess("continuing in degraded state"), nil
	}
}
