package recovery

import "fmt"

// StrategyOutcome tags what a strategy achieved.
type StrategyOutcome int

const (
	OutcomeSuccess StrategyOutcome = iota
	OutcomePartialSuccess
	OutcomeRetry
	OutcomeCannotRecover
)

func (o StrategyOutcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomePartialSuccess:
		return "partial_success"
	case OutcomeRetry:
		return "retry"
	case OutcomeCannotRecover:
		return "cannot_recover"
	default:
		return "unknown"
	}
}

// StrategyResult is returned by Strategy.Recover.
type StrategyResult struct {
	Outcome    StrategyOutcome
	Message    string
	Remaining  []string // PartialSuccess only
	Simplified bool     // Retry only
}

// Succeed reports full recovery.
func Succeed(msg string) StrategyResult {
	return StrategyResult{Outcome: OutcomeSuccess, Message: msg}
}

// PartialSuccess reports recovery with leftovers.
func PartialSuccess(msg string, remaining ...string) StrategyResult {
	return StrategyResult{Outcome: OutcomePartialSuccess, Message: msg, Remaining: remaining}
}

// Retry asks the engine for one more attempt.
func Retry(simplified bool) StrategyResult {
	return StrategyResult{Outcome: OutcomeRetry, Simplified: simplified}
}

// CannotRecover reports that the strategy gave up.
func CannotRecover(reason string) StrategyResult {
	return StrategyResult{Outcome: OutcomeCannotRecover, Message: reason}
}

// ResultKind tags the outcome of HandleError.
type ResultKind int

const (
	ResultSuccess ResultKind = iota
	ResultRecovered
	ResultPartialRecovery
	ResultFailed
)

func (k ResultKind) String() string {
	switch k {
	case ResultSuccess:
		return "success"
	case ResultRecovered:
		return "recovered"
	case ResultPartialRecovery:
		return "partial_recovery"
	case ResultFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is what HandleError reports back to the caller.
type Result struct {
	Kind      ResultKind
	Message   string
	Remaining []string
	Reason    string
}

// Success means nothing needed recovering.
func Success() Result { return Result{Kind: ResultSuccess} }

// Recovered means a strategy fully recovered.
func Recovered(msg string) Result { return Result{Kind: ResultRecovered, Message: msg} }

// PartialRecovery means some work remains.
func PartialRecovery(msg string, remaining []string) Result {
	return Result{Kind: ResultPartialRecovery, Message: msg, Remaining: remaining}
}

// Failed means recovery was impossible.
func Failed(reason string) Result { return Result{Kind: ResultFailed, Reason: reason} }

// OK reports whether the menu can continue.
func (r Result) OK() bool { return r.Kind != ResultFailed }

func (r Result) String() string {
	switch r.Kind {
	case ResultFailed:
		return fmt.Sprintf("%s: %s", r.Kind, r.Reason)
	case ResultPartialRecovery:
		return fmt.Sprintf("%s: %s (remaining %d)", r.Kind, r.Message, len(r.Remaining))
	case ResultRecovered:
		return fmt.Sprintf("%s: %s", r.Kind, r.Message)
	default:
		return r.Kind.String()
	}
}
