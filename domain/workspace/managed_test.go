package workspace

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestManaged_ZeroValueIsEmpty(t *testing.T) {
	var m Managed
	require.False(t, m.Owning())
	require.Equal(t, Workspace{}, m.Get())
	require.NoError(t, m.Reset())
}

func TestManaged_ResetRunsReleaseOnce(t *testing.T) {
	calls := 0
	m := NewManaged(Workspace{}, func(*Workspace) error {
		calls++
		return nil
	})
	require.True(t, m.Owning())

	require.NoError(t, m.Reset())
	require.NoError(t, m.Reset())
	require.NoError(t, m.Close())
	require.Equal(t, 1, calls)
	require.False(t, m.Owning())
}

func TestManaged_ResetClearsOwnershipBeforeFailing(t *testing.T) {
	boom := errors.New("engine down")
	calls := 0
	m := NewManaged(Workspace{}, func(*Workspace) error {
		calls++
		return boom
	})

	require.ErrorIs(t, m.Reset(), boom)
	require.False(t, m.Owning())

	// A failed release is never retried.
	require.NoError(t, m.Reset())
	require.Equal(t, 1, calls)
}

func TestManaged_NilReleaseIsEmpty(t *testing.T) {
	m := NewManaged(Workspace{Host: MemRegion{Data: []byte{1}}}, nil)
	require.False(t, m.Owning())
	require.Equal(t, Workspace{}, m.Get())
}

func TestManaged_MoveTransfersOwnership(t *testing.T) {
	var srcFrees, dstFrees int

	src := NewManaged(
		Workspace{Host: MemRegion{Req: MemRequirement{Size: 8, Alignment: 8}, Data: make([]byte, 8)}},
		func(*Workspace) error { srcFrees++; return nil },
	)
	dst := NewManaged(Workspace{}, func(*Workspace) error { dstFrees++; return nil })

	require.NoError(t, dst.MoveFrom(src))

	// Destination's previous holdings were released, not leaked.
	require.Equal(t, 1, dstFrees)

	// Source is empty; destroying it frees nothing.
	require.False(t, src.Owning())
	require.NoError(t, src.Reset())
	require.Equal(t, 0, srcFrees)

	// Destination now performs the frees originally owned by src.
	require.True(t, dst.Owning())
	require.NoError(t, dst.Reset())
	require.Equal(t, 1, srcFrees)
	require.Equal(t, 1, dstFrees)
}

func TestManaged_MoveFromSelfIsNoop(t *testing.T) {
	calls := 0
	m := NewManaged(Workspace{}, func(*Workspace) error { calls++; return nil })
	require.NoError(t, m.MoveFrom(m))
	require.True(t, m.Owning())
	require.Equal(t, 0, calls)
}

func TestManaged_MoveAdoptsEvenWhenDestReleaseFails(t *testing.T) {
	boom := errors.New("sync failed")
	src := NewManaged(Workspace{}, func(*Workspace) error { return nil })
	dst := NewManaged(Workspace{}, func(*Workspace) error { return boom })

	require.ErrorIs(t, dst.MoveFrom(src), boom)
	require.True(t, dst.Owning(), "src payload must not leak when dest release fails")
	require.False(t, src.Owning())
}
