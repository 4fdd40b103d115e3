//go:build linux

package resource

import (
	"context"
	"fmt"

	"golang.org/x/sys/unix"
)

// SysinfoProvider reads free memory with sysinfo(2). Buffers count as
// available since the kernel drops them on demand.
type SysinfoProvider struct {
	// LowMemoryMB raises the low-memory flag at or below this value.
	LowMemoryMB float64
}

// AvailableMemory implements MemoryProvider.
func (p SysinfoProvider) AvailableMemory(context.Context) (MemoryInfo, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return MemoryInfo{}, fmt.Errorf("sysinfo: %w", err)
	}
	unit := uint64(info.Unit)
	if unit == 0 {
		unit = 1
	}
	avail := (uint64(info.Freeram) + uint64(info.Bufferram)) * unit
	mb := float64(avail) / (1 << 20)
	return MemoryInfo{
		AvailableMB: mb,
		LowMemory:   p.LowMemoryMB > 0 && mb <= p.LowMemoryMB,
	}, nil
}
