// Package ratelimit implements the process-wide token bucket that guards the
// chat relay.
package ratelimit

import (
	"sync"
	"time"
)

// Bucket holds a fixed number of tokens that is restored to full capacity
// every interval. It never blocks: callers that find it empty are expected
// to fail fast.
type Bucket struct {
	mu       sync.Mutex
	capacity int
	interval time.Duration
	tokens   int
	resetAt  time.Time
	now      func() time.Time
}

func New(capacity int, interval time.Duration) *Bucket {
	return newWithClock(capacity, interval, time.Now)
}

func newWithClock(capacity int, interval time.Duration, now func() time.Time) *Bucket {
	if capacity < 1 {
		capacity = 1
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Bucket{
		capacity: capacity,
		interval: interval,
		tokens:   capacity,
		resetAt:  now().Add(interval),
		now:      now,
	}
}

// refill must be called with mu held.
func (b *Bucket) refill() {
	now := b.now()
	if now.Before(b.resetAt) {
		return
	}
	b.tokens = b.capacity
	// skip whole intervals that passed without traffic
	elapsed := now.Sub(b.resetAt)
	b.resetAt = b.resetAt.Add(b.interval * (elapsed/b.interval + 1))
}

// TryRemove takes n tokens and returns how many remain, or -1 if fewer than
// n were available. A failed call leaves the bucket unchanged.
func (b *Bucket) TryRemove(n int) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	if n > b.tokens {
		return -1
	}
	b.tokens -= n
	return b.tokens
}

func (b *Bucket) Allow() bool {
	return b.TryRemove(1) >= 0
}

func (b *Bucket) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	return b.tokens
}

func (b *Bucket) Capacity() int {
	return b.capacity
}

// ResetIn reports how long until the bucket is refilled.
func (b *Bucket) ResetIn() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	return b.resetAt.Sub(b.now())
}
