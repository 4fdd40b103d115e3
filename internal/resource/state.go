package resource

import (
	"errors"
	"slices"
	"time"

	"github.com/vietddude/menuguard/internal/core/domain"
)

// State is an alias for domain.LifecycleState for internal use.
type State = domain.LifecycleState

// ErrInvalidTransition is returned when a lifecycle change is not allowed.
var ErrInvalidTransition = errors.New("invalid lifecycle transition")

// ValidTransitions defines allowed lifecycle transitions.
// CLEANED_UP is terminal; only ACTIVE and IDLE may go back and forth.
var ValidTransitions = map[State][]State{
	domain.LifecycleCreated: {
		domain.LifecycleActive,
		domain.LifecycleIdle,
		domain.LifecycleCleanupPending,
	},
	domain.LifecycleActive:         {domain.LifecycleIdle, domain.LifecycleCleanupPending},
	domain.LifecycleIdle:           {domain.LifecycleActive, domain.LifecycleCleanupPending},
	domain.LifecycleCleanupPending: {domain.LifecycleCleanedUp},
}

// CanTransition checks if a transition from one state to another is valid.
func CanTransition(from, to State) bool {
	return slices.Contains(ValidTransitions[from], to)
}

// Transition represents a lifecycle change.
type Transition struct {
	ID        string
	From      State
	To        State
	Reason    string
	Timestamp time.Time
}
