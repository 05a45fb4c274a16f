package reclaimer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"wsalloc/domain/workspace"
	"wsalloc/infra/alloc"
)

func TestReclaimer_ReleasesSubmittedWorkspaces(t *testing.T) {
	set := alloc.DefaultSet()
	host := alloc.NewCounting(set.Host)
	set.Host = host

	req := workspace.Requirements{
		Host: workspace.MemRequirement{Size: 128, Alignment: 64},
	}

	r := New(16, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)

	for i := 0; i < 4; i++ {
		m, err := workspace.Allocate(req, set)
		require.NoError(t, err)
		require.True(t, r.Submit(m))
		require.False(t, m.Owning())
	}

	require.Eventually(t, func() bool {
		return host.BytesInUse() == 0
	}, time.Second, 5*time.Millisecond)
	require.True(t, host.Balanced())
}

func TestReclaimer_ConcurrentSubmitters(t *testing.T) {
	set := alloc.DefaultSet()
	host := alloc.NewCounting(set.Host)
	set.Host = host

	req := workspace.Requirements{
		Host: workspace.MemRequirement{Size: 64, Alignment: 8},
	}

	r := New(256, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)

	const workers = 8
	const perWorker = 16
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				m, err := workspace.Allocate(req, set)
				if err != nil {
					t.Error(err)
					return
				}
				for !r.Submit(m) {
					time.Sleep(time.Millisecond)
				}
			}
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		return host.BytesInUse() == 0
	}, 5*time.Second, 5*time.Millisecond)
	require.Equal(t, int64(workers*perWorker), host.Frees())
	require.True(t, host.Balanced())
}

func TestReclaimer_SurfacesReleaseErrors(t *testing.T) {
	set := alloc.DefaultSet()
	req := workspace.Requirements{
		Host: workspace.MemRequirement{Size: 64, Alignment: 8},
	}

	m, err := workspace.Allocate(req, set)
	require.NoError(t, err)
	m.SetReady(workspace.SpaceHost, failingEvent{})

	r := New(8, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)

	require.True(t, r.Submit(m))

	select {
	case err := <-r.Errs():
		var sync *workspace.SyncError
		require.ErrorAs(t, err, &sync)
	case <-time.After(time.Second):
		t.Fatal("no error surfaced from deferred release")
	}
}

func TestReclaimer_FullRingKeepsOwnership(t *testing.T) {
	set := alloc.DefaultSet()
	req := workspace.Requirements{
		Host: workspace.MemRequirement{Size: 32, Alignment: 8},
	}

	// Not started, so the ring never drains. Capacity 2.
	r := New(2, nil)

	var kept []*workspace.Managed
	full := 0
	for i := 0; i < 4; i++ {
		m, err := workspace.Allocate(req, set)
		require.NoError(t, err)
		if !r.Submit(m) {
			require.True(t, m.Owning())
			full++
			kept = append(kept, m)
		}
	}
	require.Equal(t, 2, full)

	for _, m := range kept {
		require.NoError(t, m.Reset())
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)
	cancel()
	time.Sleep(20 * time.Millisecond)
}

type failingEvent struct{}

func (failingEvent) Synchronize() error { return errSync }

var errSync = &timeoutErr{}

type timeoutErr struct{}

func (*timeoutErr) Error() string { return "device timeout" }
