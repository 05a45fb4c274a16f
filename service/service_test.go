package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"wsalloc/domain/workspace"
	"wsalloc/infra/alloc"
	"wsalloc/infra/engine"
	"wsalloc/infra/ledger"
	"wsalloc/infra/trace"
)

type testOp struct {
	req workspace.Requirements
	run func(ctx context.Context, ws workspace.Workspace, stream *engine.Stream) error
}

func (o *testOp) Requirements() workspace.Requirements { return o.req }

func (o *testOp) Run(ctx context.Context, ws workspace.Workspace, stream *engine.Stream) error {
	if o.run == nil {
		return nil
	}
	return o.run(ctx, ws, stream)
}

func newTestService(t *testing.T) (*WorkspaceService, string, *ledger.Ledger) {
	t.Helper()
	traceDir := t.TempDir()

	j, err := trace.Open(trace.Config{Dir: traceDir})
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	l, err := ledger.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	svc := New(Config{
		Allocators: alloc.DefaultSet(),
		Journal:    j,
		Ledger:     l,
	})
	return svc, traceDir, l
}

func TestRunAll_MergesAndReleases(t *testing.T) {
	svc, traceDir, l := newTestService(t)
	stream := engine.NewStream(16)
	defer stream.Close()

	var hostLen, deviceLen int
	opA := &testOp{
		req: workspace.Requirements{
			Host:   workspace.MemRequirement{Size: 100, Alignment: 16},
			Device: workspace.MemRequirement{Size: 256, Alignment: 256},
		},
		run: func(_ context.Context, ws workspace.Workspace, stream *engine.Stream) error {
			hostLen = len(ws.Host.Data)
			buf := ws.Device.Data
			return stream.Submit(func() error {
				for i := range buf {
					buf[i] = 1
				}
				return nil
			})
		},
	}
	opB := &testOp{
		req: workspace.Requirements{
			Host:   workspace.MemRequirement{Size: 64, Alignment: 64},
			Pinned: workspace.MemRequirement{Size: 32, Alignment: 32},
			Device: workspace.MemRequirement{Size: 100, Alignment: 64},
		},
		run: func(_ context.Context, ws workspace.Workspace, _ *engine.Stream) error {
			deviceLen = len(ws.Device.Data)
			return nil
		},
	}

	require.NoError(t, svc.RunAll(context.Background(), stream, opA, opB))

	// Merged geometry: host 128@64, pinned 32@32, device 256@256.
	require.Equal(t, 128, hostLen)
	require.Equal(t, 256, deviceLen)

	// Everything released; ledger has no live buffers.
	var live int
	require.NoError(t, l.ScanByState(ledger.StateLive, func(ledger.Record) error {
		live++
		return nil
	}))
	require.Zero(t, live)

	// The trace shows wait-before-free for every region.
	report, err := Audit(traceDir)
	require.NoError(t, err)
	require.True(t, report.Clean(), "audit found %+v", report)
}

func TestRunAll_OperatorFailureStillReleases(t *testing.T) {
	svc, traceDir, _ := newTestService(t)
	stream := engine.NewStream(16)
	defer stream.Close()

	boom := errors.New("bad operator")
	op := &testOp{
		req: workspace.Requirements{Host: workspace.MemRequirement{Size: 64, Alignment: 8}},
		run: func(context.Context, workspace.Workspace, *engine.Stream) error {
			return boom
		},
	}

	require.ErrorIs(t, svc.RunAll(context.Background(), stream, op), boom)

	report, err := Audit(traceDir)
	require.NoError(t, err)
	require.Empty(t, report.Leaked, "workspace must be released on operator failure")
}

func TestRunAll_OperatorFailureKeepsReleaseError(t *testing.T) {
	svc, _, l := newTestService(t)
	stream := engine.NewStream(16)
	defer stream.Close()

	streamErr := errors.New("device fault")
	opErr := errors.New("bad operator")
	op := &testOp{
		req: workspace.Requirements{Device: workspace.MemRequirement{Size: 256, Alignment: 256}},
		run: func(_ context.Context, _ workspace.Workspace, stream *engine.Stream) error {
			// Poison the stream, then fail the operator itself: the
			// caller must see both the operator error and the sync
			// failure that left the buffer allocated.
			if err := stream.Submit(func() error { return streamErr }); err != nil {
				return err
			}
			return opErr
		},
	}

	err := svc.RunAll(context.Background(), stream, op)
	require.ErrorIs(t, err, opErr)
	require.ErrorIs(t, err, streamErr)

	var se *workspace.SyncError
	require.ErrorAs(t, err, &se, "the swallowed release error must surface alongside the operator error")

	var failed int
	require.NoError(t, l.ScanByState(ledger.StateSyncFailed, func(ledger.Record) error {
		failed++
		return nil
	}))
	require.Equal(t, 1, failed)
}

func TestRunAll_SyncFailureMarksLedger(t *testing.T) {
	svc, traceDir, l := newTestService(t)
	stream := engine.NewStream(16)
	defer stream.Close()

	boom := errors.New("device fault")
	op := &testOp{
		req: workspace.Requirements{Device: workspace.MemRequirement{Size: 256, Alignment: 256}},
		run: func(_ context.Context, _ workspace.Workspace, stream *engine.Stream) error {
			return stream.Submit(func() error { return boom })
		},
	}

	err := svc.RunAll(context.Background(), stream, op)
	require.ErrorIs(t, err, boom)

	var se *workspace.SyncError
	require.ErrorAs(t, err, &se)

	var failed []ledger.Record
	require.NoError(t, l.ScanByState(ledger.StateSyncFailed, func(r ledger.Record) error {
		failed = append(failed, r)
		return nil
	}))
	require.Len(t, failed, 1)
	require.Equal(t, workspace.SpaceDevice, failed[0].Space)

	report, err := Audit(traceDir)
	require.NoError(t, err)
	require.Len(t, report.SyncFailures, 1)
	require.Len(t, report.Leaked, 1, "a buffer that cannot be freed safely stays leaked on purpose")
}

func TestHandle_ManualLifecycle(t *testing.T) {
	svc, traceDir, _ := newTestService(t)
	stream := engine.NewStream(4)
	defer stream.Close()

	h, err := svc.Allocate(workspace.Requirements{
		Pinned: workspace.MemRequirement{Size: 4096, Alignment: 4096},
	})
	require.NoError(t, err)

	buf := h.Workspace().Pinned.Data
	require.NoError(t, stream.Submit(func() error {
		copy(buf, "staging")
		return nil
	}))
	h.SetReady(workspace.SpacePinned, stream.RecordEvent())

	require.NoError(t, h.Release())
	require.NoError(t, h.Release(), "release is idempotent")

	report, err := Audit(traceDir)
	require.NoError(t, err)
	require.True(t, report.Clean())
}

func TestAudit_DetectsLeakAndUnsafeFree(t *testing.T) {
	dir := t.TempDir()
	j, err := trace.Open(trace.Config{Dir: dir})
	require.NoError(t, err)

	leaky := trace.RegionInfo{Workspace: 1, Space: workspace.SpaceDevice, Size: 64, Align: 64}
	unwaited := trace.RegionInfo{Workspace: 2, Space: workspace.SpaceHost, Size: 32, Align: 8}

	_, err = j.Append(trace.RecordAlloc, leaky)
	require.NoError(t, err)

	// Freed with a ready event attached but no wait recorded.
	_, err = j.Append(trace.RecordAlloc, unwaited)
	require.NoError(t, err)
	_, err = j.Append(trace.RecordReady, unwaited)
	require.NoError(t, err)
	_, err = j.Append(trace.RecordFree, unwaited)
	require.NoError(t, err)
	require.NoError(t, j.Close())

	report, err := Audit(dir)
	require.NoError(t, err)
	require.Equal(t, []trace.RegionInfo{leaky}, report.Leaked)
	require.Equal(t, []trace.RegionInfo{unwaited}, report.UnsafeFrees)
}

func TestUsageSnapshot_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	in := UsageSnapshot{
		Seq:     42,
		Created: time.Now(),
		Spaces: []SpaceUsage{
			{Space: "device", InUse: 1024, Capacity: 1 << 20},
		},
	}
	require.NoError(t, WriteUsageSnapshot(dir, in))

	out, err := LoadUsageSnapshot(dir)
	require.NoError(t, err)
	require.Equal(t, in.Seq, out.Seq)
	require.Equal(t, in.Spaces, out.Spaces)
}
