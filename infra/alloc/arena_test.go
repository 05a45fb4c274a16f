package alloc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"wsalloc/domain/workspace"
)

func TestHeap_AlignmentAndAccounting(t *testing.T) {
	h := &Heap{}
	for _, align := range []uint64{1, 16, 64, 256, 4096} {
		buf, err := h.Alloc(100, align)
		require.NoError(t, err)
		require.Len(t, buf, 100)
		require.True(t, Aligned(buf, align), "align=%d", align)
		h.Free(buf, 100, align)
	}
	require.Zero(t, h.InUse())
}

func TestArena_AllocFreeRoundTrip(t *testing.T) {
	a, err := NewArena(1<<16, 256)
	require.NoError(t, err)

	buf, err := a.Alloc(300, 64)
	require.NoError(t, err)
	require.Len(t, buf, 300)
	require.True(t, Aligned(buf, 64))
	require.Equal(t, uint64(512), a.InUse(), "padded to granularity")

	a.Free(buf, 300, 64)
	require.Zero(t, a.InUse())
	require.Equal(t, a.Capacity(), a.LargestFree(), "coalesced back to one block")
}

func TestArena_BestFitPrefersSmallestBlock(t *testing.T) {
	a, err := NewArena(4096, 256)
	require.NoError(t, err)

	// Carve the slab into fragments: [a1:1024][a2:256][a3:rest]
	a1, err := a.Alloc(1024, 1)
	require.NoError(t, err)
	a2, err := a.Alloc(256, 1)
	require.NoError(t, err)
	a3, err := a.Alloc(4096-1024-256, 1)
	require.NoError(t, err)

	// Free the two non-adjacent fragments: free blocks of 1024 and 256.
	a.Free(a1, 1024, 1)
	a.Free(a3, 4096-1024-256, 1)

	// A 256-byte request must come from the 1024 block only if no
	// smaller block fits; here the 2816 block is larger, so best-fit
	// picks the 1024 one and splits it.
	buf, err := a.Alloc(256, 1)
	require.NoError(t, err)
	require.Equal(t, &a1[0], &buf[0], "best fit should reuse the smaller free block")

	a.Free(buf, 256, 1)
	a.Free(a2, 256, 1)
	require.Zero(t, a.InUse())
	require.Equal(t, a.Capacity(), a.LargestFree())
}

func TestArena_OutOfMemory(t *testing.T) {
	a, err := NewArena(1024, 256)
	require.NoError(t, err)

	buf, err := a.Alloc(1024, 1)
	require.NoError(t, err)

	_, err = a.Alloc(1, 1)
	require.ErrorIs(t, err, ErrOutOfMemory)

	a.Free(buf, 1024, 1)
	_, err = a.Alloc(1024, 1)
	require.NoError(t, err)
}

func TestArena_FragmentationLimitsLargestFit(t *testing.T) {
	a, err := NewArena(1024, 256)
	require.NoError(t, err)

	b1, _ := a.Alloc(256, 1)
	b2, _ := a.Alloc(256, 1)
	b3, _ := a.Alloc(256, 1)
	b4, _ := a.Alloc(256, 1)

	// Free alternating blocks: 512 free total but largest block is 256.
	a.Free(b1, 256, 1)
	a.Free(b3, 256, 1)
	require.Equal(t, uint64(256), a.LargestFree())

	_, err = a.Alloc(512, 1)
	require.ErrorIs(t, err, ErrOutOfMemory)

	// Freeing a neighbor coalesces and the request fits again.
	a.Free(b2, 256, 1)
	require.Equal(t, uint64(768), a.LargestFree())
	buf, err := a.Alloc(512, 1)
	require.NoError(t, err)

	a.Free(buf, 512, 1)
	a.Free(b4, 256, 1)
	require.Equal(t, a.Capacity(), a.LargestFree())
}

func TestArena_AlignmentOverGranularityRejected(t *testing.T) {
	a, err := NewArena(4096, 256)
	require.NoError(t, err)
	_, err = a.Alloc(64, 512)
	require.ErrorIs(t, err, ErrAlignment)
}

func TestArena_ZeroSizeRejected(t *testing.T) {
	a, err := NewArena(4096, 256)
	require.NoError(t, err)
	_, err = a.Alloc(0, 64)
	require.ErrorIs(t, err, ErrZeroSize)
	require.Zero(t, a.InUse(), "a rejected request must not consume the slab")
}

func TestArena_GranularityMustBePowerOfTwo(t *testing.T) {
	_, err := NewArena(4096, 300)
	require.Error(t, err)
}

func TestCounting_Balance(t *testing.T) {
	c := NewCounting(&Heap{})

	buf1, err := c.Alloc(128, 64)
	require.NoError(t, err)
	buf2, err := c.Alloc(64, 64)
	require.NoError(t, err)

	require.Equal(t, int64(2), c.Allocs())
	require.Equal(t, int64(192), c.BytesInUse())
	require.False(t, c.Balanced())

	c.Free(buf1, 128, 64)
	c.Free(buf2, 64, 64)
	require.True(t, c.Balanced())
	require.Equal(t, int64(192), c.PeakBytes())
}

func TestSet_WorkspaceAllocation(t *testing.T) {
	set, err := NewSet(SetConfig{
		PinnedCapacity: 1 << 20,
		DeviceCapacity: 1 << 20,
		Granularity:    256,
	})
	require.NoError(t, err)

	req := workspace.Requirements{
		Host:   workspace.MemRequirement{Size: 128, Alignment: 64},
		Pinned: workspace.MemRequirement{Size: 32, Alignment: 32},
		Device: workspace.MemRequirement{Size: 256, Alignment: 256},
	}
	m, err := workspace.Allocate(req, set)
	require.NoError(t, err)

	ws := m.Get()
	require.True(t, Aligned(ws.Host.Data, 64))
	require.True(t, Aligned(ws.Pinned.Data, 32))
	require.True(t, Aligned(ws.Device.Data, 256))

	require.NoError(t, m.Reset())
	require.Zero(t, set.Pinned.(*Arena).InUse())
	require.Zero(t, set.Device.(*Arena).InUse())
}

func BenchmarkArenaAllocFree(b *testing.B) {
	a, err := NewArena(1<<24, 256)
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf, err := a.Alloc(4096, 256)
		if err != nil {
			b.Fatal(err)
		}
		a.Free(buf, 4096, 256)
	}
}
