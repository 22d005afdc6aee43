package memory

import (
	"context"
	"io"
	"sync"

	"github.com/vovakirdan/wirechat-gateway/internal/backend"
)

// stream is an unbounded FIFO of events with a wake-up channel.
type stream struct {
	mu     sync.Mutex
	queue  []backend.Event
	closed bool
	notify chan struct{}
}

var _ backend.EventStream = (*stream)(nil)

func newStream() *stream {
	return &stream{notify: make(chan struct{}, 1)}
}

func (s *stream) push(ev backend.Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, ev)
	s.mu.Unlock()
	s.wake()
}

func (s *stream) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *stream) Next(ctx context.Context) (backend.Event, error) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			ev := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return ev, nil
		}
		if s.closed {
			s.mu.Unlock()
			return backend.Event{}, io.EOF
		}
		s.mu.Unlock()

		select {
		case <-s.notify:
		case <-ctx.Done():
			return backend.Event{}, ctx.Err()
		}
	}
}

// Close ends the stream; queued events are still delivered before io.EOF.
func (s *stream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wake()
	return nil
}
