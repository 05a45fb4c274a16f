package alloc

import (
	"sync/atomic"
	"unsafe"

	"wsalloc/domain/workspace"
)

// Heap allocates general host memory from the Go heap, honoring the
// requested alignment by over-allocating and slicing to an aligned
// offset. Freed buffers are returned to the garbage collector; Free
// only maintains accounting.
type Heap struct {
	inUse atomic.Int64
}

var _ workspace.Allocator = (*Heap)(nil)

func (h *Heap) Alloc(size, align uint64) ([]byte, error) {
	buf := alignedBytes(size, align)
	h.inUse.Add(int64(size))
	return buf, nil
}

func (h *Heap) Free(_ []byte, size, _ uint64) {
	h.inUse.Add(-int64(size))
}

// InUse returns the bytes currently allocated and not yet freed.
func (h *Heap) InUse() int64 { return h.inUse.Load() }

// alignedBytes returns a size-byte slice whose base address is a
// multiple of align. align must be a power of two.
func alignedBytes(size, align uint64) []byte {
	if align <= 1 {
		return make([]byte, size)
	}
	raw := make([]byte, size+align)
	var off uint64
	if rem := uint64(uintptr(unsafe.Pointer(&raw[0]))) & (align - 1); rem != 0 {
		off = align - rem
	}
	return raw[off : off+size : off+size]
}

// Aligned reports whether buf's base address is a multiple of align.
func Aligned(buf []byte, align uint64) bool {
	if align <= 1 || len(buf) == 0 {
		return true
	}
	return uint64(uintptr(unsafe.Pointer(&buf[0])))&(align-1) == 0
}
