package alloc

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"wsalloc/domain/workspace"
	"wsalloc/infra/memory"
)

// ErrOutOfMemory is returned when no free block in the arena can
// satisfy a request.
var ErrOutOfMemory = errors.New("alloc: arena out of memory")

// ErrAlignment is returned when a request's alignment exceeds the
// arena's granularity.
var ErrAlignment = errors.New("alloc: alignment exceeds arena granularity")

// ErrZeroSize is returned for zero-size requests. A zero-size region
// needs no backing memory; carving a real offset for it would only
// alias the next block.
var ErrZeroSize = errors.New("alloc: zero-size allocation")

// Arena is a capacity-bounded suballocator over one contiguous slab.
// It stands in for memory spaces that are expensive or impossible to
// grow on demand (pinned-host, device): the slab is reserved once and
// scratch buffers are carved out of it.
//
// Every block offset is a multiple of the arena's granularity, so any
// alignment up to the granularity is satisfied for free. Allocation is
// best-fit over a size-keyed index of free blocks; freed blocks are
// coalesced with their neighbors before reinsertion.
type Arena struct {
	mu          sync.Mutex
	slab        []byte
	granularity uint64
	capacity    uint64
	used        uint64

	free    *freeIndex
	byStart map[uint64]*block
	byEnd   map[uint64]*block
	nodes   *memory.Pool[block]
}

var _ workspace.Allocator = (*Arena)(nil)

// NewArena reserves a slab of the given capacity. granularity must be
// a power of two; capacity is rounded up to it.
func NewArena(capacity, granularity uint64) (*Arena, error) {
	if granularity == 0 || granularity&(granularity-1) != 0 {
		return nil, fmt.Errorf("alloc: granularity %d is not a power of two", granularity)
	}
	if capacity == 0 {
		return nil, errors.New("alloc: arena capacity must be non-zero")
	}
	capacity = workspace.AlignUp(capacity, granularity)

	a := &Arena{
		slab:        alignedBytes(capacity, granularity),
		granularity: granularity,
		capacity:    capacity,
		free:        newFreeIndex(),
		byStart:     make(map[uint64]*block),
		byEnd:       make(map[uint64]*block),
		nodes:       memory.NewPool(func() *block { return &block{} }),
	}
	a.insertFree(0, capacity)
	return a, nil
}

func (a *Arena) Alloc(size, align uint64) ([]byte, error) {
	if size == 0 {
		return nil, ErrZeroSize
	}
	if align > a.granularity {
		return nil, fmt.Errorf("%w: align=%d granularity=%d", ErrAlignment, align, a.granularity)
	}
	need := workspace.AlignUp(size, a.granularity)

	a.mu.Lock()
	defer a.mu.Unlock()

	class := a.free.Ceiling(need)
	if class == nil {
		return nil, fmt.Errorf("%w: need %d bytes, %d free of %d",
			ErrOutOfMemory, need, a.capacity-a.used, a.capacity)
	}

	b := class.head
	a.detach(b)
	off, blockSize := b.off, b.size
	a.nodes.Put(b)

	if blockSize > need {
		a.insertFree(off+need, blockSize-need)
	}
	a.used += need

	// Cap the slice at the padded block so the caller cannot scribble
	// past its requirement into a neighboring block.
	return a.slab[off : off+size : off+need], nil
}

func (a *Arena) Free(buf []byte, size, _ uint64) {
	if len(buf) == 0 {
		return
	}
	base := uintptr(unsafe.Pointer(&a.slab[0]))
	p := uintptr(unsafe.Pointer(&buf[0]))
	if p < base || p >= base+uintptr(a.capacity) {
		panic("alloc: Free of buffer foreign to this arena")
	}
	off := uint64(p - base)
	need := workspace.AlignUp(size, a.granularity)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.used -= need
	a.insertFree(off, need)
}

// InUse returns the bytes currently carved out of the slab, including
// per-block granularity padding.
func (a *Arena) InUse() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.used
}

// Capacity returns the slab size.
func (a *Arena) Capacity() uint64 { return a.capacity }

// LargestFree returns the size of the largest free block. A request
// bigger than this fails even when total free space would cover it.
func (a *Arena) LargestFree() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if c := a.free.Max(); c != nil {
		return c.size
	}
	return 0
}

// ---- free-list maintenance (a.mu held) ----

// insertFree adds [off, off+size) back to the index, merging with the
// free neighbors on either side first.
func (a *Arena) insertFree(off, size uint64) {
	if left := a.byEnd[off]; left != nil {
		a.detach(left)
		off = left.off
		size += left.size
		a.nodes.Put(left)
	}
	if right := a.byStart[off+size]; right != nil {
		a.detach(right)
		size += right.size
		a.nodes.Put(right)
	}

	b := a.nodes.Get()
	*b = block{off: off, size: size}
	a.free.GetOrCreate(size).enqueue(b)
	a.byStart[off] = b
	a.byEnd[off+size] = b
}

// detach removes a block from its size class and the adjacency maps,
// dropping the class when it empties.
func (a *Arena) detach(b *block) {
	class := b.class
	class.remove(b)
	if class.empty() {
		a.free.Delete(class.size)
	}
	delete(a.byStart, b.off)
	delete(a.byEnd, b.off+b.size)
}
