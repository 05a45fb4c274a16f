package workspace

import (
	"errors"
	"fmt"
)

// ErrInvalidRequirement marks a non-zero size paired with a zero or
// non-power-of-two alignment. Checked unconditionally at the merge and
// allocation boundaries.
var ErrInvalidRequirement = errors.New("workspace: invalid memory requirement")

// ErrNoAllocator marks a non-zero requirement for a space that has no
// allocator bound.
var ErrNoAllocator = errors.New("workspace: no allocator for space")

// AllocationError reports a failed per-space allocation. By the time
// the caller sees it, every region allocated earlier in the same call
// has already been freed.
type AllocationError struct {
	Space     SpaceID
	Size      uint64
	Alignment uint64
	Err       error
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("workspace: alloc %s (size=%d align=%d): %v",
		e.Space, e.Size, e.Alignment, e.Err)
}

func (e *AllocationError) Unwrap() error { return e.Err }

// SyncError reports a failed readiness wait during release. The region
// (and any region after it in release order) was NOT freed: the engine
// is in an error state and freeing could race its last reader.
type SyncError struct {
	Space SpaceID
	Err   error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("workspace: synchronize %s before free: %v", e.Space, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }
