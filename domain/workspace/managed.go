package workspace

// ReleaseFunc tears down a workspace's buffers. It must wait on each
// region's Ready event (when set) before freeing that region's Data,
// and clear Data afterwards. It runs at most once per ownership.
type ReleaseFunc func(*Workspace) error

// Managed uniquely owns the allocated regions of a Workspace together
// with the release action that tears them down.
//
// A Managed is either empty (no release action bound) or owning. The
// zero value is empty. It is not safe for concurrent use; like the
// rest of this package it belongs to one goroutine at a time.
type Managed struct {
	ws  Workspace
	rel ReleaseFunc
}

// NewManaged binds a pre-populated workspace to a release action.
// A nil release action yields an empty Managed: there is nothing to own.
func NewManaged(ws Workspace, rel ReleaseFunc) *Managed {
	if rel == nil {
		return &Managed{}
	}
	return &Managed{ws: ws, rel: rel}
}

// Owning reports whether a release action is currently bound.
func (m *Managed) Owning() bool { return m.rel != nil }

// Get borrows the current payload. The returned view is valid only for
// the Managed's lifetime and never transfers ownership. When empty it
// returns the zero Workspace.
func (m *Managed) Get() Workspace { return m.ws }

// Reset releases the owned regions and empties the Managed. Calling
// Reset on an empty Managed is a no-op.
//
// Ownership is cleared before the release action runs, so a failed
// release is reported exactly once and never retried: a second Reset
// after an error will not attempt a double free.
//
// Reset blocks while waiting on any region's Ready event.
func (m *Managed) Reset() error {
	if m.rel == nil {
		return nil
	}
	rel := m.rel
	ws := m.ws
	m.rel = nil
	m.ws = Workspace{}
	return rel(&ws)
}

// Close makes Managed an io.Closer so callers can defer teardown.
func (m *Managed) Close() error { return m.Reset() }

// SetReady attaches a readiness event to one of the owned regions,
// marking it unsafe to reclaim until the event completes. Callers do
// this right after launching asynchronous work against the region's
// buffer. A later SetReady replaces the previous event; the new one
// must not signal before work covered by the old one is done.
func (m *Managed) SetReady(s SpaceID, ev Event) {
	m.ws.Region(s).Ready = ev
}

// MoveFrom transfers src's payload and release action into m, leaving
// src empty. If m was owning, its previous holdings are released first
// so they are not silently leaked. The transfer happens even when that
// release fails; the error is returned after adoption.
func (m *Managed) MoveFrom(src *Managed) error {
	if m == src {
		return nil
	}
	err := m.Reset()
	m.ws, m.rel = src.ws, src.rel
	src.ws, src.rel = Workspace{}, nil
	return err
}
