package workspace

// Allocator reserves and releases raw memory in one space. Free must
// be called with the same size and alignment that were passed to
// Alloc. Implementations must be safe for concurrent use if workspaces
// are allocated from multiple goroutines.
type Allocator interface {
	Alloc(size, align uint64) ([]byte, error)
	Free(buf []byte, size, align uint64)
}

// Allocators binds one Allocator per memory space. A nil entry is
// allowed as long as no non-zero requirement targets that space.
type Allocators struct {
	Host   Allocator
	Pinned Allocator
	Device Allocator
}

// Region returns the allocator for the given space.
func (a Allocators) Region(s SpaceID) Allocator {
	switch s {
	case SpaceHost:
		return a.Host
	case SpacePinned:
		return a.Pinned
	default:
		return a.Device
	}
}

// Allocate reserves a workspace sized to req and returns a Managed
// owning it. Allocation is all-or-nothing: if any space fails, every
// region allocated earlier in the same call is freed before the error
// propagates, so the caller never sees a partial allocation.
//
// Ready events start unset; operators attach them per region once they
// launch asynchronous work against that buffer. The bound release
// action closes over set and performs the wait-then-free protocol per
// region (see Release).
func Allocate(req Requirements, set Allocators) (*Managed, error) {
	if !req.Valid() {
		return nil, ErrInvalidRequirement
	}

	rel := Release(set)

	var ws Workspace
	for _, s := range Spaces {
		ws.Region(s).Req = req.Region(s)
	}

	for _, s := range Spaces {
		r := ws.Region(s)
		if r.Req.Size == 0 {
			continue
		}
		a := set.Region(s)
		if a == nil {
			// No events attached yet, the unwind cannot fail.
			_ = rel(&ws)
			return nil, &AllocationError{Space: s, Size: r.Req.Size, Alignment: r.Req.Alignment, Err: ErrNoAllocator}
		}
		buf, err := a.Alloc(r.Req.Size, r.Req.Alignment)
		if err != nil {
			_ = rel(&ws)
			return nil, &AllocationError{Space: s, Size: r.Req.Size, Alignment: r.Req.Alignment, Err: err}
		}
		r.Data = buf
	}

	return NewManaged(ws, rel), nil
}

// Release builds the standard release action over an allocator set:
// for each allocated region, wait on its Ready event if one is set,
// free the buffer with the requirement's exact size and alignment,
// then clear Data.
//
// A failed wait aborts the release with a SyncError. Neither that
// region nor the ones after it are freed: the engine reported an error
// and there is no safe point at which their last reader is known to be
// done.
func Release(set Allocators) ReleaseFunc {
	return func(ws *Workspace) error {
		for _, s := range Spaces {
			r := ws.Region(s)
			if r.Data == nil {
				continue
			}
			if r.Ready != nil {
				if err := r.Ready.Synchronize(); err != nil {
					return &SyncError{Space: s, Err: err}
				}
			}
			set.Region(s).Free(r.Data, r.Req.Size, r.Req.Alignment)
			r.Data = nil
		}
		return nil
	}
}
