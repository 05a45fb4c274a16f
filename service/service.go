package service

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"wsalloc/domain/workspace"
	"wsalloc/infra/engine"
	"wsalloc/infra/ledger"
	"wsalloc/infra/trace"
)

type Config struct {
	Allocators workspace.Allocators

	// Journal and Ledger are optional; a nil field disables that sink.
	Journal *trace.Journal
	Ledger  *ledger.Ledger
	Logger  log.Logger
}

// WorkspaceService is the write entry point for workspace allocation.
// Every buffer it hands out is journaled and ledgered, and every
// release is wrapped so the ledger reflects whether the free actually
// happened or a sync failure left the buffer stranded.
type WorkspaceService struct {
	set     workspace.Allocators
	journal *trace.Journal
	ledger  *ledger.Ledger
	logger  log.Logger

	nextID atomic.Uint64
}

func New(cfg Config) *WorkspaceService {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &WorkspaceService{
		set:     cfg.Allocators,
		journal: cfg.Journal,
		ledger:  cfg.Ledger,
		logger:  logger,
	}
}

// Handle couples an owned workspace with its service-assigned id so
// readiness events and releases flow back through the journal.
type Handle struct {
	svc *WorkspaceService
	id  uint64
	m   *workspace.Managed
}

// Allocate reserves a workspace for req. The per-space allocators are
// wrapped so every alloc and free is journaled under the new
// workspace's id; the domain core's all-or-nothing rollback runs
// through the same wrappers, so rolled-back regions appear as
// alloc/free pairs in the trace.
func (s *WorkspaceService) Allocate(req workspace.Requirements) (*Handle, error) {
	id := s.nextID.Add(1)

	set := workspace.Allocators{
		Host:   s.track(id, workspace.SpaceHost, s.set.Host),
		Pinned: s.track(id, workspace.SpacePinned, s.set.Pinned),
		Device: s.track(id, workspace.SpaceDevice, s.set.Device),
	}

	m, err := workspace.Allocate(req, set)
	if err != nil {
		level.Warn(s.logger).Log("msg", "workspace allocation failed", "workspace", id, "err", err)
		return nil, err
	}

	level.Debug(s.logger).Log("msg", "workspace allocated", "workspace", id,
		"host", req.Host.Size, "pinned", req.Pinned.Size, "device", req.Device.Size)
	return &Handle{svc: s, id: id, m: m}, nil
}

// ID returns the service-assigned workspace id.
func (h *Handle) ID() uint64 { return h.id }

// Workspace borrows the underlying view; valid until Release.
func (h *Handle) Workspace() workspace.Workspace { return h.m.Get() }

// SetReady attaches ev to one region, routed through the journal so
// the wait (or its failure) is recorded before the region's free.
func (h *Handle) SetReady(space workspace.SpaceID, ev workspace.Event) {
	w := h.m.Get()
	req := w.Region(space).Req
	info := trace.RegionInfo{Workspace: h.id, Space: space, Size: req.Size, Align: req.Alignment}
	h.svc.journalEvent(trace.RecordReady, info)
	h.m.SetReady(space, &trackedEvent{svc: h.svc, info: info, inner: ev})
}

// Release synchronizes with outstanding work and frees the workspace.
// Idempotent; blocks while waiting on readiness events.
func (h *Handle) Release() error { return h.m.Reset() }

// Close makes Handle an io.Closer.
func (h *Handle) Close() error { return h.Release() }

// RunAll merges the operators' requirements, allocates one workspace,
// runs the operators in order on the given stream, then attaches a
// single completion event to every allocated region and releases. The
// release blocks until work launched by the operators has finished.
func (s *WorkspaceService) RunAll(ctx context.Context, stream *engine.Stream, ops ...Operator) error {
	if len(ops) == 0 {
		return nil
	}

	reqs := make([]workspace.Requirements, len(ops))
	for i, op := range ops {
		reqs[i] = op.Requirements()
	}
	merged, err := workspace.MergeAll(reqs...)
	if err != nil {
		return err
	}

	h, err := s.Allocate(merged)
	if err != nil {
		return err
	}

	var opErr error
	ws := h.Workspace()
	for _, op := range ops {
		if err := op.Run(ctx, ws, stream); err != nil {
			opErr = err
			break
		}
	}

	// One completion token recorded after the last launch covers all
	// regions; attach it everywhere so release waits before each free.
	ev := stream.RecordEvent()
	for _, sp := range workspace.Spaces {
		if ws.Region(sp).Data != nil {
			h.SetReady(sp, ev)
		}
	}

	// A release failure is reported even when an operator already
	// failed: a SyncError here means buffers were deliberately left
	// allocated, and the caller must learn that from the error, not
	// just from the ledger.
	return errors.Join(opErr, h.Release())
}

// ---- journal/ledger plumbing ----

// track wraps one space's allocator so traffic under this workspace id
// is journaled and ledgered. Sink errors are logged, never propagated:
// losing a trace record must not fail an allocation.
func (s *WorkspaceService) track(id uint64, space workspace.SpaceID, inner workspace.Allocator) workspace.Allocator {
	if inner == nil {
		return nil
	}
	return &trackedSpace{svc: s, id: id, space: space, inner: inner}
}

func (s *WorkspaceService) journalEvent(t trace.RecordType, info trace.RegionInfo) {
	if s.journal == nil {
		return
	}
	if _, err := s.journal.Append(t, info); err != nil {
		level.Warn(s.logger).Log("msg", "trace append failed", "type", t.String(), "err", err)
	}
}

type trackedSpace struct {
	svc   *WorkspaceService
	id    uint64
	space workspace.SpaceID
	inner workspace.Allocator
}

func (t *trackedSpace) Alloc(size, align uint64) ([]byte, error) {
	buf, err := t.inner.Alloc(size, align)
	if err != nil {
		return nil, err
	}
	info := trace.RegionInfo{Workspace: t.id, Space: t.space, Size: size, Align: align}
	t.svc.journalEvent(trace.RecordAlloc, info)
	if l := t.svc.ledger; l != nil {
		if err := l.PutLive(t.id, t.space, size, align); err != nil {
			level.Warn(t.svc.logger).Log("msg", "ledger put failed", "workspace", t.id, "err", err)
		}
	}
	return buf, nil
}

func (t *trackedSpace) Free(buf []byte, size, align uint64) {
	t.inner.Free(buf, size, align)
	info := trace.RegionInfo{Workspace: t.id, Space: t.space, Size: size, Align: align}
	t.svc.journalEvent(trace.RecordFree, info)
	if l := t.svc.ledger; l != nil {
		if err := l.Transition(t.id, t.space, ledger.StateReleased); err != nil {
			level.Warn(t.svc.logger).Log("msg", "ledger transition failed", "workspace", t.id, "err", err)
		}
	}
}

type trackedEvent struct {
	svc   *WorkspaceService
	info  trace.RegionInfo
	inner workspace.Event
}

func (e *trackedEvent) Synchronize() error {
	err := e.inner.Synchronize()
	if err != nil {
		e.svc.journalEvent(trace.RecordSyncFail, e.info)
		if l := e.svc.ledger; l != nil {
			if lerr := l.Transition(e.info.Workspace, e.info.Space, ledger.StateSyncFailed); lerr != nil {
				level.Warn(e.svc.logger).Log("msg", "ledger transition failed", "workspace", e.info.Workspace, "err", lerr)
			}
		}
		return err
	}
	e.svc.journalEvent(trace.RecordWait, e.info)
	return nil
}
