package engine

import "wsalloc/domain/workspace"

// Event is a one-shot completion token recorded on a Stream. It
// completes monotonically: once done it stays done.
type Event struct {
	stream *Stream
	done   chan struct{}
}

var _ workspace.Event = (*Event)(nil)

// Synchronize blocks until the work recorded before this event has
// run, then reports the stream's sticky error if the engine failed.
// The block is genuine; there is no lighter-weight wait.
func (e *Event) Synchronize() error {
	<-e.done
	return e.stream.Err()
}

// Done reports completion without blocking.
func (e *Event) Done() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}
