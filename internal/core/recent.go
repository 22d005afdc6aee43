package core

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultRecentTTL is how long a message id stays in a recent set.
const DefaultRecentTTL = 60 * time.Second

// recentSet remembers message ids for a limited time so that the same
// message arriving through history replay, the event stream, or our own send
// is delivered to the client once.
//
// Every id owns a timer. Clear swaps in a fresh generation, so a timer only
// ever deletes from the generation it was scheduled in and can never remove
// an id inserted after the clear.
type recentSet struct {
	mu     sync.Mutex
	clock  clock.Clock
	ttl    time.Duration
	live   *recentGeneration
	closed bool
}

type recentGeneration struct {
	items map[string]*clock.Timer
}

func newRecentGeneration() *recentGeneration {
	return &recentGeneration{items: make(map[string]*clock.Timer)}
}

func newRecentSet(clk clock.Clock, ttl time.Duration) *recentSet {
	if ttl <= 0 {
		ttl = DefaultRecentTTL
	}
	return &recentSet{clock: clk, ttl: ttl, live: newRecentGeneration()}
}

// Add inserts id and reports whether it was absent. Re-adding a present id
// restarts its expiry.
func (s *recentSet) Add(id string) bool {
	if id == "" {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}

	gen := s.live
	old, present := gen.items[id]
	if present {
		old.Stop()
	}
	var timer *clock.Timer
	timer = s.clock.AfterFunc(s.ttl, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.expireLocked(gen, id, timer)
	})
	gen.items[id] = timer
	return !present
}

// Contains reports whether id is in the live generation.
func (s *recentSet) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.live.items[id]
	return ok
}

// Len returns the number of live ids.
func (s *recentSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live.items)
}

// Clear forgets every id inserted so far.
func (s *recentSet) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	stopAll(s.live)
	s.live = newRecentGeneration()
}

// Close stops all pending timers; the set stays empty afterwards.
func (s *recentSet) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	stopAll(s.live)
	s.live = newRecentGeneration()
}

func (s *recentSet) expireLocked(gen *recentGeneration, id string, timer *clock.Timer) {
	if s.live != gen {
		return
	}
	if gen.items[id] == timer {
		delete(gen.items, id)
	}
}

func stopAll(gen *recentGeneration) {
	for _, t := range gen.items {
		t.Stop()
	}
}
