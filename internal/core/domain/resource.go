package domain

// ResourceType classifies a managed resource.
type ResourceType string

const (
	ResourceAnimation          ResourceType = "animation"
	ResourceListener           ResourceType = "listener"
	ResourceVisualEffect       ResourceType = "visual_effect"
	ResourceListAdapter        ResourceType = "list_adapter"
	ResourceTimer              ResourceType = "timer"
	ResourceInteractiveElement ResourceType = "interactive_element"
	ResourceBackgroundThread   ResourceType = "background_thread"
	ResourceMemoryBlock        ResourceType = "memory_block"
)

// AllResourceTypes lists every resource type in bulk-cleanup order:
// threads first, raw memory last.
var AllResourceTypes = []ResourceType{
	ResourceBackgroundThread,
	ResourceAnimation,
	ResourceTimer,
	ResourceListener,
	ResourceVisualEffect,
	ResourceListAdapter,
	ResourceInteractiveElement,
	ResourceMemoryBlock,
}

// IsUIOwned reports whether resources of this type must be torn down on
// the UI-owning goroutine.
func (t ResourceType) IsUIOwned() bool {
	switch t {
	case ResourceAnimation, ResourceVisualEffect, ResourceListAdapter, ResourceInteractiveElement:
		return true
	default:
		return false
	}
}

// LifecycleState is the lifecycle position of a managed resource.
type LifecycleState string

const (
	LifecycleCreated        LifecycleState = "created"
	LifecycleActive         LifecycleState = "active"
	LifecycleIdle           LifecycleState = "idle"
	LifecycleCleanupPending LifecycleState = "cleanup_pending"
	LifecycleCleanedUp      LifecycleState = "cleaned_up"
)

// PressureLevel is the ordered memory pressure classification.
type PressureLevel int

const (
	PressureNormal PressureLevel = iota
	PressureModerate
	PressureHigh
	PressureCritical
)

func (l PressureLevel) String() string {
	switch l {
	case PressureNormal:
		return "NORMAL"
	case PressureModerate:
		return "MODERATE"
	case PressureHigh:
		return "HIGH"
	case PressureCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}
