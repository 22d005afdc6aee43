package http

import (
	"time"

	"github.com/benbjohnson/clock"
)

const rateWindow = time.Minute

// rateLimiter counts commands in fixed one-minute windows. It belongs to a
// single read loop and is not safe for concurrent use.
type rateLimiter struct {
	limit   int
	clock   clock.Clock
	started time.Time
	counter int
}

func newRateLimiter(limit int, clk clock.Clock) *rateLimiter {
	if limit <= 0 {
		return &rateLimiter{limit: 0}
	}
	return &rateLimiter{limit: limit, clock: clk}
}

func (r *rateLimiter) allow() bool {
	if r == nil || r.limit <= 0 {
		return true
	}
	now := r.clock.Now()
	if r.started.IsZero() || now.Sub(r.started) >= rateWindow {
		r.started = now
		r.counter = 0
	}
	r.counter++
	return r.counter <= r.limit
}
