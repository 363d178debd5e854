package rebroadcast

import (
	"sync"
	"time"
)

// TokenBucket gates rebroadcast attempts (§3 TokenBucket, §4.I step
// "token bucket (tryRemove(1)) cannot supply a token"). Implementations
// backed by pkg/ratelimit's distributed store are equally valid; this
// local one is for single-process use.
type TokenBucket interface {
	TryRemove(n int) bool
}

// LocalTokenBucket is an in-process token bucket: tokens refill
// continuously at rate per second, capped at capacity (§3 invariant).
type LocalTokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	capacity   float64
	refillRate float64
	lastRefill time.Time
}

// NewLocalTokenBucket creates a bucket starting full.
func NewLocalTokenBucket(capacity int, refillRate float64) *LocalTokenBucket {
	return &LocalTokenBucket{
		tokens:     float64(capacity),
		capacity:   float64(capacity),
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// TryRemove refills then attempts to consume n tokens atomically.
func (b *LocalTokenBucket) TryRemove(n int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens = min(b.capacity, b.tokens+b.refillRate*elapsed)
	b.lastRefill = now

	needed := float64(n)
	if b.tokens < needed {
		return false
	}
	b.tokens -= needed
	return true
}
