package recovery

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/vietddude/menuguard/internal/core/domain"
)

// Severity ranks menu errors. Higher is worse.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// ErrorKind tags a MenuError variant.
type ErrorKind string

const (
	KindDataCorruption     ErrorKind = "data_corruption"
	KindOutOfMemory        ErrorKind = "out_of_memory"
	KindAdapterInit        ErrorKind = "adapter_init"
	KindFocusDeadlock      ErrorKind = "focus_deadlock"
	KindVisualEffect       ErrorKind = "visual_effect"
	KindPartialCleanup     ErrorKind = "partial_cleanup"
	KindFocusTimeout       ErrorKind = "focus_timeout"
	KindPerformanceWarning ErrorKind = "performance_warning"
	KindValidationWarning  ErrorKind = "validation_warning"
)

type traits struct {
	severity    Severity
	recoverable bool
}

// Severity and recoverability belong to the kind, never to an instance.
var kindTraits = map[ErrorKind]traits{
	KindDataCorruption:     {SeverityCritical, false},
	KindOutOfMemory:        {SeverityCritical, true},
	KindAdapterInit:        {SeverityHigh, true},
	KindFocusDeadlock:      {SeverityHigh, true},
	KindVisualEffect:       {SeverityMedium, true},
	KindPartialCleanup:     {SeverityMedium, true},
	KindFocusTimeout:       {SeverityMedium, true},
	KindPerformanceWarning: {SeverityLow, true},
	KindValidationWarning:  {SeverityLow, true},
}

// SeverityOf returns the fixed severity of kind k.
func SeverityOf(k ErrorKind) Severity { return kindTraits[k].severity }

// IsRecoverable returns the fixed recoverability of kind k.
func IsRecoverable(k ErrorKind) bool { return kindTraits[k].recoverable }

// MenuError is the closed set of failures the menu layer knows how to
// classify. Only types in this package implement it.
type MenuError interface {
	error
	Kind() ErrorKind
	Severity() Severity
	Recoverable() bool
	// Details returns the variant payload for logging.
	Details() map[string]any
	sealed()
}

// variant is embedded by every MenuError implementation. The tag type K
// fixes the kind, so even a zero value reports the right severity.
type variant[K tag] struct{}

type tag interface{ kind() ErrorKind }

func (variant[K]) Kind() ErrorKind {
	var k K
	return k.kind()
}

func (v variant[K]) Severity() Severity { return SeverityOf(v.Kind()) }
func (v variant[K]) Recoverable() bool  { return IsRecoverable(v.Kind()) }
func (variant[K]) sealed()              {}

type (
	dataCorruptionTag     struct{}
	outOfMemoryTag        struct{}
	adapterInitTag        struct{}
	focusDeadlockTag      struct{}
	visualEffectTag       struct{}
	partialCleanupTag     struct{}
	focusTimeoutTag       struct{}
	performanceWarningTag struct{}
	validationWarningTag  struct{}
)

func (dataCorruptionTag) kind() ErrorKind     { return KindDataCorruption }
func (outOfMemoryTag) kind() ErrorKind        { return KindOutOfMemory }
func (adapterInitTag) kind() ErrorKind        { return KindAdapterInit }
func (focusDeadlockTag) kind() ErrorKind      { return KindFocusDeadlock }
func (visualEffectTag) kind() ErrorKind       { return KindVisualEffect }
func (partialCleanupTag) kind() ErrorKind     { return KindPartialCleanup }
func (focusTimeoutTag) kind() ErrorKind       { return KindFocusTimeout }
func (performanceWarningTag) kind() ErrorKind { return KindPerformanceWarning }
func (validationWarningTag) kind() ErrorKind  { return KindValidationWarning }

// DataCorruptionError means menu data can no longer be trusted.
type DataCorruptionError struct {
	variant[dataCorruptionTag]
	Source string
	Detail string
}

// NewDataCorruption creates a DataCorruptionError.
func NewDataCorruption(source, detail string) *DataCorruptionError {
	return &DataCorruptionError{Source: source, Detail: detail}
}

func (e *DataCorruptionError) Error() string {
	return fmt.Sprintf("data corruption in %s: %s", e.Source, e.Detail)
}

func (e *DataCorruptionError) Details() map[string]any {
	return map[string]any{"source": e.Source, "detail": e.Detail}
}

// OutOfMemoryError means an allocation failed or memory ran out.
type OutOfMemoryError struct {
	variant[outOfMemoryTag]
	AvailableMB float64
	Context     string
}

// NewOutOfMemory creates an OutOfMemoryError.
func NewOutOfMemory(availableMB float64, context string) *OutOfMemoryError {
	return &OutOfMemoryError{AvailableMB: availableMB, Context: context}
}

func (e *OutOfMemoryError) Error() string {
	return fmt.Sprintf("out of memory (%.1f MB available) during %s", e.AvailableMB, e.Context)
}

func (e *OutOfMemoryError) Details() map[string]any {
	return map[string]any{"available_mb": e.AvailableMB, "context": e.Context}
}

// AdapterInitError means a list adapter failed to initialize.
type AdapterInitError struct {
	variant[adapterInitTag]
	Adapter string
	Cause   error
}

// NewAdapterInit creates an AdapterInitError.
func NewAdapterInit(adapter string, cause error) *AdapterInitError {
	return &AdapterInitError{Adapter: adapter, Cause: cause}
}

func (e *AdapterInitError) Error() string {
	return fmt.Sprintf("adapter %s failed to initialize: %v", e.Adapter, e.Cause)
}

func (e *AdapterInitError) Unwrap() error { return e.Cause }

func (e *AdapterInitError) Details() map[string]any {
	return map[string]any{"adapter": e.Adapter, "cause": errString(e.Cause)}
}

// FocusDeadlockError means conflict resolution could not restore a single
// focus owner.
type FocusDeadlockError struct {
	variant[focusDeadlockTag]
	Sources []domain.FocusSource
}

// NewFocusDeadlock creates a FocusDeadlockError.
func NewFocusDeadlock(sources ...domain.FocusSource) *FocusDeadlockError {
	return &FocusDeadlockError{Sources: sources}
}

func (e *FocusDeadlockError) Error() string {
	names := make([]string, len(e.Sources))
	for i, s := range e.Sources {
		names[i] = string(s)
	}
	return fmt.Sprintf("focus deadlock between [%s]", strings.Join(names, ", "))
}

func (e *FocusDeadlockError) Details() map[string]any {
	return map[string]any{"sources": e.Sources}
}

// VisualEffectError means a visual effect failed to render or attach.
type VisualEffectError struct {
	variant[visualEffectTag]
	Effect string
	Cause  error
}

// NewVisualEffect creates a VisualEffectError.
func NewVisualEffect(effect string, cause error) *VisualEffectError {
	return &VisualEffectError{Effect: effect, Cause: cause}
}

func (e *VisualEffectError) Error() string {
	return fmt.Sprintf("visual effect %s failed: %v", e.Effect, e.Cause)
}

func (e *VisualEffectError) Unwrap() error { return e.Cause }

func (e *VisualEffectError) Details() map[string]any {
	return map[string]any{"effect": e.Effect, "cause": errString(e.Cause)}
}

// PartialCleanupError aggregates resources whose cleanup failed.
type PartialCleanupError struct {
	variant[partialCleanupTag]
	FailedIDs []string
	Causes    map[string]error
}

// NewPartialCleanup creates a PartialCleanupError. ids are sorted.
func NewPartialCleanup(causes map[string]error) *PartialCleanupError {
	ids := make([]string, 0, len(causes))
	for id := range causes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return &PartialCleanupError{FailedIDs: ids, Causes: causes}
}

func (e *PartialCleanupError) Error() string {
	return fmt.Sprintf("cleanup failed for %d resource(s): %s", len(e.FailedIDs), strings.Join(e.FailedIDs, ", "))
}

func (e *PartialCleanupError) Unwrap() []error {
	errs := make([]error, 0, len(e.FailedIDs))
	for _, id := range e.FailedIDs {
		if c := e.Causes[id]; c != nil {
			errs = append(errs, c)
		}
	}
	return errs
}

func (e *PartialCleanupError) Details() map[string]any {
	return map[string]any{"failed_ids": e.FailedIDs, "cause": errString(errors.Join(e.Unwrap()...))}
}

// FocusTimeoutError means the menu stayed in a transition too long and a
// mode had to be forced.
type FocusTimeoutError struct {
	variant[focusTimeoutTag]
	Forced domain.FocusMode
	Waited time.Duration
}

// NewFocusTimeout creates a FocusTimeoutError.
func NewFocusTimeout(forced domain.FocusMode, waited time.Duration) *FocusTimeoutError {
	return &FocusTimeoutError{Forced: forced, Waited: waited}
}

func (e *FocusTimeoutError) Error() string {
	return fmt.Sprintf("focus transition timed out after %s, forced %s", e.Waited, e.Forced)
}

func (e *FocusTimeoutError) Details() map[string]any {
	return map[string]any{"forced_mode": e.Forced, "waited": e.Waited.String()}
}

// PerformanceWarning reports a degraded but functional condition.
type PerformanceWarning struct {
	variant[performanceWarningTag]
	Metric string
	Value  float64
	Detail string
}

// NewPerformanceWarning creates a PerformanceWarning.
func NewPerformanceWarning(metric string, value float64, detail string) *PerformanceWarning {
	return &PerformanceWarning{Metric: metric, Value: value, Detail: detail}
}

func (e *PerformanceWarning) Error() string {
	return fmt.Sprintf("performance warning %s=%.2f: %s", e.Metric, e.Value, e.Detail)
}

func (e *PerformanceWarning) Details() map[string]any {
	return map[string]any{"metric": e.Metric, "value": e.Value, "detail": e.Detail}
}

// ValidationWarning reports rejected or suspicious input.
type ValidationWarning struct {
	variant[validationWarningTag]
	Field  string
	Detail string
}

// NewValidationWarning creates a ValidationWarning.
func NewValidationWarning(field, detail string) *ValidationWarning {
	return &ValidationWarning{Field: field, Detail: detail}
}

func (e *ValidationWarning) Error() string {
	return fmt.Sprintf("validation warning on %s: %s", e.Field, e.Detail)
}

func (e *ValidationWarning) Details() map[string]any {
	return map[string]any{"field": e.Field, "detail": e.Detail}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
