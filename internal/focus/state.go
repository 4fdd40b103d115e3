package focus

import (
	"errors"
	"slices"
	"time"

	"github.com/vietddude/menuguard/internal/core/domain"
)

// ErrInvalidTransition is returned when a mode change is not allowed.
var ErrInvalidTransition = errors.New("invalid focus mode transition")

// ValidTransitions defines allowed mode changes. DISABLED is reachable
// from every mode.
var ValidTransitions = map[domain.FocusMode][]domain.FocusMode{
	domain.ModeDisabled:      {domain.ModeCategoryPanel, domain.ModeChannelPanel},
	domain.ModeCategoryPanel: {domain.ModeTransitioning, domain.ModeDisabled},
	domain.ModeChannelPanel:  {domain.ModeTransitioning, domain.ModeDisabled},
	domain.ModeTransitioning: {domain.ModeCategoryPanel, domain.ModeChannelPanel, domain.ModeDisabled},
}

// CanTransition checks if a mode change is valid.
func CanTransition(from, to domain.FocusMode) bool {
	return slices.Contains(ValidTransitions[from], to)
}

// Target is a focusable UI element.
type Target interface {
	RequestFocus() bool
	ClearFocus()
	HasFocus() bool
	IsFocusable() bool
}

// State is an immutable snapshot of who holds focus. Target is nil when
// nothing is focused.
type State struct {
	Target    Target             `json:"-"`
	Source    domain.FocusSource `json:"source,omitempty"`
	Mode      domain.FocusMode   `json:"mode"`
	Timestamp time.Time          `json:"timestamp"`
}

// Focused reports whether a target holds focus.
func (s State) Focused() bool { return s.Target != nil }

// sourcePriority lists sources from most to least preferred for mode.
// Modes without a panel have no order and resolve by clearing.
func sourcePriority(mode domain.FocusMode) []domain.FocusSource {
	switch mode {
	case domain.ModeCategoryPanel:
		return []domain.FocusSource{
			domain.SourceCategoryList,
			domain.SourceChannelList,
			domain.SourceExternal,
			domain.SourceScreen,
		}
	case domain.ModeChannelPanel:
		return []domain.FocusSource{
			domain.SourceChannelList,
			domain.SourceCategoryList,
			domain.SourceExternal,
			domain.SourceScreen,
		}
	default:
		return nil
	}
}
