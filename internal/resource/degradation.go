package resource

import (
	"github.com/vietddude/menuguard/internal/core/domain"
)

// DegradationStrategy decides which resources to reclaim under pressure
// and in what order.
type DegradationStrategy interface {
	// ShouldReclaim reports whether info qualifies at level.
	ShouldReclaim(info LifecycleInfo, level domain.PressureLevel) bool

	// Order lists resource types in reclaim order. Types not listed go last.
	Order() []domain.ResourceType
}

// DefaultStrategy reclaims cosmetic effects first and structural adapters
// last.
type DefaultStrategy struct {
	// Protected types survive HIGH pressure even when reclaimable, and at
	// CRITICAL only go when reclaimable.
	Protected map[domain.ResourceType]bool
	// Cosmetic types are the only ones touched at MODERATE.
	Cosmetic map[domain.ResourceType]bool
	order    []domain.ResourceType
}

// NewDefaultStrategy returns the stock degradation policy.
func NewDefaultStrategy() *DefaultStrategy {
	return &DefaultStrategy{
		Protected: map[domain.ResourceType]bool{
			domain.ResourceListAdapter:        true,
			domain.ResourceInteractiveElement: true,
		},
		Cosmetic: map[domain.ResourceType]bool{
			domain.ResourceVisualEffect: true,
			domain.ResourceAnimation:    true,
		},
		order: []domain.ResourceType{
			domain.ResourceVisualEffect,
			domain.ResourceAnimation,
			domain.ResourceTimer,
			domain.ResourceListener,
			domain.ResourceBackgroundThread,
			domain.ResourceMemoryBlock,
			domain.ResourceInteractiveElement,
			domain.ResourceListAdapter,
		},
	}
}

// ShouldReclaim implements DegradationStrategy.
func (s *DefaultStrategy) ShouldReclaim(info LifecycleInfo, level domain.PressureLevel) bool {
	switch level {
	case domain.PressureModerate:
		return info.Reclaimable && s.Cosmetic[info.Type]
	case domain.PressureHigh:
		return info.Reclaimable && !s.Protected[info.Type]
	case domain.PressureCritical:
		return info.Reclaimable || !s.Protected[info.Type]
	default:
		return false
	}
}

// Order implements DegradationStrategy.
func (s *DefaultStrategy) Order() []domain.ResourceType {
	return s.order
}

func rankOf(order []domain.ResourceType) map[domain.ResourceType]int {
	rank := make(map[domain.ResourceType]int, len(order))
	for i, t := range order {
		rank[t] = i
	}
	return rank
}
