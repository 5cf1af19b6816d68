package events

import "context"

// DefaultBufferSize bounds how many undelivered events a run may buffer
// before emission blocks on the consumer.
const DefaultBufferSize = 64

// Stream is a bounded, single-producer event channel connecting one
// orchestrator run to one transport. The producer emits events and
// closes the stream after the terminal event; the consumer ranges over
// Events() until it is closed.
type Stream struct {
	ch chan Event
}

// NewStream creates a stream with the given buffer size. Sizes below 1
// fall back to DefaultBufferSize.
func NewStream(size int) *Stream {
	if size < 1 {
		size = DefaultBufferSize
	}
	return &Stream{ch: make(chan Event, size)}
}

// Events returns the consumer side of the stream.
func (s *Stream) Events() <-chan Event {
	return s.ch
}

// Emit delivers ev to the consumer, blocking when the buffer is full.
// It returns false when ctx is done before the event could be handed
// over; the event is dropped in that case.
func (s *Stream) Emit(ctx context.Context, ev Event) bool {
	select {
	case s.ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// TryEmit delivers ev without blocking and reports whether it was
// accepted. Terminal events go through here: they must reach a consumer
// that is still reading even when the request context is already dead,
// and must not block the producer when nobody reads at all.
func (s *Stream) TryEmit(ev Event) bool {
	select {
	case s.ch <- ev:
		return true
	default:
		return false
	}
}

// Close ends the stream. Only the producer may call it, exactly once,
// after the terminal event.
func (s *Stream) Close() {
	close(s.ch)
}
