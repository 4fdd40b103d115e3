package recovery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/menuguard/internal/core/logging"
	"github.com/vietddude/menuguard/internal/core/ring"
	"github.com/vietddude/menuguard/internal/core/safe"
	"github.com/vietddude/menuguard/internal/metrics"
)

const logTag = "recovery"

// Reporter is the part of the engine the managers depend on.
type Reporter interface {
	HandleError(ctx context.Context, err MenuError) Result
}

// Config tunes history and statistics.
type Config struct {
	HistorySize int           // default 100
	StatsWindow time.Duration // default 5m
	TopKinds    int           // default 5
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		HistorySize: 100,
		StatsWindow: 5 * time.Minute,
		TopKinds:    5,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.HistorySize <= 0 {
		c.HistorySize = d.HistorySize
	}
	if c.StatsWindow <= 0 {
		c.StatsWindow = d.StatsWindow
	}
	if c.TopKinds <= 0 {
		c.TopKinds = d.TopKinds
	}
	return c
}

// Record is one handled error.
type Record struct {
	ID      string
	Err     MenuError
	Context map[string]any
	Time    time.Time
	Result  *Result // nil until recovery finished
}

// Engine classifies menu errors, runs recovery strategies and keeps a
// bounded history. It is the single entry point for menu failures.
type Engine struct {
	log logging.Tagged
	cfg Config
	now func() time.Time

	mu         sync.RWMutex
	strategies []Strategy
	listeners  []Listener
	providers  map[string]func() any

	history *ring.Buffer[Record]

	statsMu    sync.Mutex
	total      int
	recovered  int
	failed     int
	bySeverity map[Severity]int
	lastError  time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine with the fallback strategy registered.
func NewEngine(logger logging.Logger, cfg Config, opts ...Option) *Engine {
	cfg = cfg.withDefaults()
	e := &Engine{
		log:        logging.WithTag(logger, logTag),
		cfg:        cfg,
		now:        time.Now,
		providers:  make(map[string]func() any),
		history:    ring.New[Record](cfg.HistorySize),
		bySeverity: make(map[Severity]int),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.RegisterStrategy(FallbackStrategy{})
	return e
}

// RegisterStrategy adds s, keeping strategies sorted by descending
// priority. Equal priorities keep registration order.
func (e *Engine) RegisterStrategy(s Strategy) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.strategies = append(e.strategies, s)
	sort.SliceStable(e.strategies, func(i, j int) bool {
		return e.strategies[i].Priority() > e.strategies[j].Priority()
	})
	e.log.Debug("strategy registered", "name", s.Name(), "priority", s.Priority())
}

// Strategies returns the registered strategies in evaluation order.
func (e *Engine) Strategies() []Strategy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]Strategy(nil), e.strategies...)
}

// RegisterListener adds l to the notification list.
func (e *Engine) RegisterListener(l Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, l)
}

// AddContextProvider registers fn to contribute key to every error's
// context snapshot.
func (e *Engine) AddContextProvider(key string, fn func() any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.providers[key] = fn
}

// CanRecover reports whether err is recoverable and a strategy claims it.
func (e *Engine) CanRecover(err MenuError) bool {
	if err == nil || !err.Recoverable() {
		return false
	}
	return e.strategyFor(err) != nil
}

// strategyFor evaluates a snapshot of the strategies without holding e.mu,
// so CanHandle may register strategies or listeners.
func (e *Engine) strategyFor(err MenuError) Strategy {
	for _, s := range e.Strategies() {
		ok, perr := safe.Bool(func() bool { return s.CanHandle(err) })
		if perr != nil {
			e.log.Warn("strategy match panicked", "strategy", s.Name(), "error", perr)
			continue
		}
		if ok {
			return s
		}
	}
	return nil
}

// HandleError logs err, records it, notifies listeners and runs recovery.
func (e *Engine) HandleError(ctx context.Context, err MenuError) Result {
	if err == nil {
		return Success()
	}

	snapshot := e.snapshot(err)
	rec := Record{
		ID:      uuid.New().String(),
		Err:     err,
		Context: snapshot,
		Time:    e.now(),
	}

	e.log.WithContext(levelFor(err.Severity()), err.Error(), snapshot)
	e.history.Add(rec)
	e.countError(err, rec.Time)
	e.notify(func(l Listener) { l.OnError(rec) })

	result := e.recover(ctx, err)

	e.history.Update(func(r *Record) bool {
		if r.ID != rec.ID {
			return false
		}
		res := result
		r.Result = &res
		return true
	})
	e.countResult(result)
	metrics.ErrorsHandledTotal.WithLabelValues(string(err.Kind()), err.Severity().String(), result.Kind.String()).Inc()

	if result.Kind == ResultFailed {
		e.log.Error("recovery failed", "kind", err.Kind(), "reason", result.Reason)
		e.notify(func(l Listener) { l.OnRecoveryFailed(err, result) })
	} else {
		e.log.Info("error handled", "kind", err.Kind(), "result", result.Kind)
		e.notify(func(l Listener) { l.OnRecoveryCompleted(err, result) })
	}
	return result
}

func (e *Engine) recover(ctx context.Context, err MenuError) Result {
	if !err.Recoverable() {
		return Failed(fmt.Sprintf("%s is not recoverable", err.Kind()))
	}
	strategy := e.strategyFor(err)
	if strategy == nil {
		return Failed("no strategy can handle " + string(err.Kind()))
	}

	attempt := Attempt{Number: 1}
	res := e.runStrategy(ctx, strategy, err, attempt)
	if res.Outcome == OutcomeRetry {
		attempt = Attempt{Number: 2, Simplified: res.Simplified}
		e.log.Info("retrying recovery", "strategy", strategy.Name(), "simplified", res.Simplified)
		res = e.runStrategy(ctx, strategy, err, attempt)
		if res.Outcome == OutcomeRetry {
			return Failed("retry limit reached in " + strategy.Name())
		}
	}

	switch res.Outcome {
	case OutcomeSuccess:
		if err.Severity() == SeverityLow {
			return Success()
		}
		msg := res.Message
		if msg == "" {
			msg = "recovered by " + strategy.Name()
		}
		return Recovered(msg)
	case OutcomePartialSuccess:
		return PartialRecovery(res.Message, res.Remaining)
	default:
		reason := res.Message
		if reason == "" {
			reason = strategy.Name() + " cannot recover"
		}
		return Failed(reason)
	}
}

func (e *Engine) runStrategy(ctx context.Context, s Strategy, err MenuError, attempt Attempt) StrategyResult {
	start := time.Now()
	defer func() {
		metrics.RecoveryLatency.WithLabelValues(s.Name()).Observe(time.Since(start).Seconds())
	}()

	var res StrategyResult
	callErr := safe.Call(func() error {
		var rerr error
		res, rerr = s.Recover(ctx, err, attempt)
		return rerr
	})
	if callErr != nil {
		e.log.Error("strategy failed", "strategy", s.Name(), "attempt", attempt.Number, "error", callErr)
		return CannotRecover(fmt.Sprintf("%s: %v", s.Name(), callErr))
	}
	return res
}

func (e *Engine) snapshot(err MenuError) map[string]any {
	e.mu.RLock()
	providers := make(map[string]func() any, len(e.providers))
	for k, fn := range e.providers {
		providers[k] = fn
	}
	e.mu.RUnlock()

	out := map[string]any{
		"kind":        string(err.Kind()),
		"severity":    err.Severity().String(),
		"recoverable": err.Recoverable(),
	}
	for k, v := range err.Details() {
		out[k] = v
	}
	for k, fn := range providers {
		var v any
		if perr := safe.Go(func() { v = fn() }); perr != nil {
			e.log.Warn("context provider panicked", "key", k, "error", perr)
			continue
		}
		out[k] = v
	}
	return out
}

func (e *Engine) notify(call func(Listener)) {
	e.mu.RLock()
	listeners := append([]Listener(nil), e.listeners...)
	e.mu.RUnlock()

	for _, l := range listeners {
		if err := safe.Go(func() { call(l) }); err != nil {
			e.log.Warn("error listener panicked", "error", err)
		}
	}
}

// History returns handled errors, oldest first.
func (e *Engine) History() []Record {
	return e.history.All()
}

func levelFor(s Severity) logging.Level {
	switch s {
	case SeverityCritical, SeverityHigh:
		return logging.LevelError
	case SeverityMedium:
		return logging.LevelWarn
	default:
		return logging.LevelInfo
	}
}

// Is reports whether err holds a MenuError of kind k.
func Is(err error, k ErrorKind) bool {
	var me MenuError
	return errors.As(err, &me) && me.Kind() == k
}
