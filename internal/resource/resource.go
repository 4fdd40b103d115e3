package resource

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/menuguard/internal/core/domain"
)

// ManagedResource is a stateful object that needs explicit teardown.
type ManagedResource interface {
	ID() string
	Type() domain.ResourceType
	EstimatedBytes() int64
	// CanBeCleanedUnderPressure reports whether the resource may be
	// reclaimed by the degradation sweep.
	CanBeCleanedUnderPressure() bool
	// Cleanup releases the resource. It may fail or panic.
	Cleanup(ctx context.Context) error
}

// Resource is a ManagedResource built from a cleanup callback.
type Resource struct {
	id          string
	typ         domain.ResourceType
	bytes       int64
	reclaimable bool
	cleanup     func(ctx context.Context) error
}

// Option configures a Resource.
type Option func(*Resource)

// WithID sets a caller-chosen id instead of a random uuid.
func WithID(id string) Option {
	return func(r *Resource) { r.id = id }
}

// WithEstimatedBytes sets the footprint estimate.
func WithEstimatedBytes(n int64) Option {
	return func(r *Resource) { r.bytes = n }
}

// WithReclaimable sets the reclaim-under-pressure flag. Default true.
func WithReclaimable(ok bool) Option {
	return func(r *Resource) { r.reclaimable = ok }
}

// New creates a Resource of type t released by cleanup.
func New(t domain.ResourceType, cleanup func(ctx context.Context) error, opts ...Option) *Resource {
	r := &Resource{
		id:          uuid.New().String(),
		typ:         t,
		reclaimable: true,
		cleanup:     cleanup,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resource) ID() string                      { return r.id }
func (r *Resource) Type() domain.ResourceType       { return r.typ }
func (r *Resource) EstimatedBytes() int64           { return r.bytes }
func (r *Resource) CanBeCleanedUnderPressure() bool { return r.reclaimable }

func (r *Resource) Cleanup(ctx context.Context) error {
	if r.cleanup == nil {
		return nil
	}
	return r.cleanup(ctx)
}

// LifecycleInfo is a snapshot of a registered resource.
type LifecycleInfo struct {
	ID             string              `json:"id"`
	Type           domain.ResourceType `json:"type"`
	State          State               `json:"state"`
	CreatedAt      time.Time           `json:"created_at"`
	LastAccess     time.Time           `json:"last_access"`
	IdleSince      time.Time           `json:"idle_since,omitempty"`
	IdleTime       time.Duration       `json:"idle_time"`
	EstimatedBytes int64               `json:"estimated_bytes"`
	Reclaimable    bool                `json:"reclaimable"`
}
