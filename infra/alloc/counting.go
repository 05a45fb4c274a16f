package alloc

import (
	"sync/atomic"

	"wsalloc/domain/workspace"
)

// Counting instruments another allocator with alloc/free accounting.
// Wrap a space with it to assert balance in tests or to feed the
// diagnostics surface.
type Counting struct {
	inner workspace.Allocator

	allocs     atomic.Int64
	frees      atomic.Int64
	bytesInUse atomic.Int64
	peakBytes  atomic.Int64
}

var _ workspace.Allocator = (*Counting)(nil)

func NewCounting(inner workspace.Allocator) *Counting {
	return &Counting{inner: inner}
}

func (c *Counting) Alloc(size, align uint64) ([]byte, error) {
	buf, err := c.inner.Alloc(size, align)
	if err != nil {
		return nil, err
	}
	c.allocs.Add(1)
	now := c.bytesInUse.Add(int64(size))
	for {
		peak := c.peakBytes.Load()
		if now <= peak || c.peakBytes.CompareAndSwap(peak, now) {
			break
		}
	}
	return buf, nil
}

func (c *Counting) Free(buf []byte, size, align uint64) {
	c.inner.Free(buf, size, align)
	c.frees.Add(1)
	c.bytesInUse.Add(-int64(size))
}

func (c *Counting) Allocs() int64     { return c.allocs.Load() }
func (c *Counting) Frees() int64      { return c.frees.Load() }
func (c *Counting) BytesInUse() int64 { return c.bytesInUse.Load() }
func (c *Counting) PeakBytes() int64  { return c.peakBytes.Load() }

// Balanced reports whether every allocation has been freed.
func (c *Counting) Balanced() bool {
	return c.allocs.Load() == c.frees.Load() && c.bytesInUse.Load() == 0
}
