package resource

import (
	"context"
	"errors"
)

// ErrMemoryInfoUnavailable is returned by providers that cannot read
// system memory on this platform.
var ErrMemoryInfoUnavailable = errors.New("memory info unavailable")

// MemoryInfo is one reading from a MemoryProvider.
type MemoryInfo struct {
	AvailableMB float64
	LowMemory   bool
}

// MemoryProvider reports available memory.
type MemoryProvider interface {
	AvailableMemory(ctx context.Context) (MemoryInfo, error)
}

// MemoryProviderFunc adapts a function to MemoryProvider.
type MemoryProviderFunc func(ctx context.Context) (MemoryInfo, error)

// AvailableMemory implements MemoryProvider.
func (f MemoryProviderFunc) AvailableMemory(ctx context.Context) (MemoryInfo, error) {
	return f(ctx)
}
