// Package reclaimer releases workspaces off the caller's hot path.
//
// Callers that cannot afford to block on device readiness hand their
// owned workspaces to a Reclaimer, which drains them on a background
// goroutine. Release errors surface on Errs; a synchronization failure
// during release leaves the affected buffers unfreed, so the error
// channel must be watched, not discarded.
package reclaimer

import (
	"context"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"wsalloc/domain/workspace"
	"wsalloc/infra/memory"
)

// Reclaimer defers workspace release to a single background worker.
type Reclaimer struct {
	// The ring is SPSC; submitMu serializes producers so Submit is
	// safe to call from any goroutine. The worker is the one consumer.
	submitMu sync.Mutex
	ring     *memory.Ring[workspace.Managed]
	errs     chan error
	logger   log.Logger
}

// New sizes the pending-release ring. size must be a power of two.
func New(size uint64, logger log.Logger) *Reclaimer {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Reclaimer{
		ring:   memory.NewRing[workspace.Managed](size),
		errs:   make(chan error, 64),
		logger: logger,
	}
}

// Submit hands the workspace's ownership to the reclaimer. The caller's
// handle is left empty. Returns false when the ring is full, in which
// case the caller retains ownership and must release synchronously.
// Safe for concurrent use.
func (r *Reclaimer) Submit(m *workspace.Managed) bool {
	if !m.Owning() {
		return true
	}
	var pending workspace.Managed
	if err := pending.MoveFrom(m); err != nil {
		// The destination was empty; MoveFrom cannot fail here.
		return false
	}

	r.submitMu.Lock()
	ok := r.ring.Enqueue(pending)
	r.submitMu.Unlock()

	if !ok {
		// Hand ownership back untouched.
		_ = m.MoveFrom(&pending)
		return false
	}
	return true
}

// Start drains the ring until ctx is cancelled. Remaining entries are
// released on shutdown so no buffer is leaked by cancellation.
func (r *Reclaimer) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				r.drain()
				close(r.errs)
				return
			case <-ticker.C:
				r.drain()
			}
		}
	}()
}

func (r *Reclaimer) drain() {
	for {
		m, ok := r.ring.Dequeue()
		if !ok {
			return
		}
		if err := m.Reset(); err != nil {
			level.Warn(r.logger).Log("msg", "deferred release failed", "err", err)
			select {
			case r.errs <- err:
			default:
			}
		}
	}
}

// Errs reports release failures from the background worker.
func (r *Reclaimer) Errs() <-chan error {
	return r.errs
}
