//go:build !linux

package resource

import "context"

// SysinfoProvider is only backed by sysinfo(2) on linux.
type SysinfoProvider struct {
	LowMemoryMB float64
}

// AvailableMemory implements MemoryProvider.
func (SysinfoProvider) AvailableMemory(context.Context) (MemoryInfo, error) {
	return MemoryInfo{}, ErrMemoryInfoUnavailable
}
