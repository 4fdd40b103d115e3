package focus

import (
	"github.com/vietddude/menuguard/internal/core/domain"
)

// Listener observes focus changes. A panicking listener is logged and
// skipped.
type Listener interface {
	OnFocusChanged(prev, next State)
	OnConflictResolved(winner domain.FocusSource, dropped []domain.FocusSource)
	OnDeadlockRecovered(attempt int, ok bool)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are no-ops.
type ListenerFuncs struct {
	FocusChanged      func(prev, next State)
	ConflictResolved  func(winner domain.FocusSource, dropped []domain.FocusSource)
	DeadlockRecovered func(attempt int, ok bool)
}

func (f ListenerFuncs) OnFocusChanged(prev, next State) {
	if f.FocusChanged != nil {
		f.FocusChanged(prev, next)
	}
}

func (f ListenerFuncs) OnConflictResolved(winner domain.FocusSource, dropped []domain.FocusSource) {
	if f.ConflictResolved != nil {
		f.ConflictResolved(winner, dropped)
	}
}

func (f ListenerFuncs) OnDeadlockRecovered(attempt int, ok bool) {
	if f.DeadlockRecovered != nil {
		f.DeadlockRecovered(attempt, ok)
	}
}
