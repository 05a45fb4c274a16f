package alloc

import "wsalloc/domain/workspace"

// SetConfig sizes the space-backed allocator set. Zero capacities are
// rejected; the caller decides budgets, not this package.
type SetConfig struct {
	PinnedCapacity uint64
	DeviceCapacity uint64
	Granularity    uint64
}

// NewSet builds the standard allocator set: Go heap for general host
// memory, capacity-bounded arenas for pinned-host and device memory.
func NewSet(cfg SetConfig) (workspace.Allocators, error) {
	pinned, err := NewArena(cfg.PinnedCapacity, cfg.Granularity)
	if err != nil {
		return workspace.Allocators{}, err
	}
	device, err := NewArena(cfg.DeviceCapacity, cfg.Granularity)
	if err != nil {
		return workspace.Allocators{}, err
	}
	return workspace.Allocators{
		Host:   &Heap{},
		Pinned: pinned,
		Device: device,
	}, nil
}

// DefaultSet serves every space from the Go heap. Useful for tests and
// for callers that do not care about capacity budgets.
func DefaultSet() workspace.Allocators {
	return workspace.Allocators{
		Host:   &Heap{},
		Pinned: &Heap{},
		Device: &Heap{},
	}
}
