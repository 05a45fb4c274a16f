package engine

import (
	"errors"
	"sync"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("engine: stream closed")

// Stream is a serial asynchronous executor. Tasks run in submission
// order; a task returning an error poisons the stream: later tasks are
// skipped and every wait that completes afterwards reports the error.
// The error is sticky, the way accelerator runtimes latch a fault
// until the context is torn down.
type Stream struct {
	queue chan func()
	done  chan struct{}

	// guards the submission path against Close; the worker never
	// takes it, so a Submit blocked on a full queue cannot deadlock.
	sendMu sync.RWMutex
	closed bool

	errMu sync.Mutex
	err   error
}

// NewStream starts a stream whose queue holds up to depth pending
// tasks. Submit blocks once the queue is full.
func NewStream(depth int) *Stream {
	if depth <= 0 {
		depth = 64
	}
	s := &Stream{
		queue: make(chan func(), depth),
		done:  make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Stream) run() {
	defer close(s.done)
	for fn := range s.queue {
		fn()
	}
}

// Submit enqueues fn. It returns ErrClosed after Close; a queued fn is
// silently skipped if an earlier task has already poisoned the stream.
func (s *Stream) Submit(fn func() error) error {
	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	s.queue <- func() {
		if s.Err() != nil {
			return
		}
		if err := fn(); err != nil {
			s.setErr(err)
		}
	}
	return nil
}

// RecordEvent returns an event that completes once every task
// submitted before this call has run. On a closed stream the event is
// already complete.
func (s *Stream) RecordEvent() *Event {
	ev := &Event{stream: s, done: make(chan struct{})}

	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if s.closed {
		close(ev.done)
		return ev
	}
	// Markers run even on a poisoned stream; the error surfaces from
	// Synchronize, not from an event that never fires.
	s.queue <- func() { close(ev.done) }
	return ev
}

// Err returns the stream's sticky error, if any.
func (s *Stream) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *Stream) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// Close drains the queue, stops the worker and returns the sticky
// error. Close is idempotent.
func (s *Stream) Close() error {
	s.sendMu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.sendMu.Unlock()
	<-s.done
	return s.Err()
}
