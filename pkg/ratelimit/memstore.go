package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemStore is an in-process Store implementation of the §6 bucket
// protocol, for tests and single-instance deployments. A real deployment
// backs onto RedisStore so the buckets are shared across gateway
// instances (§4.J "distributed").
type MemStore struct {
	mu      sync.Mutex
	buckets map[string]*memBucket
}

type memBucket struct {
	tokens        float64
	capacity      float64
	refillRate    float64
	lastRefill    time.Time
	contentLength int64
}

// NewMemStore builds an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{buckets: make(map[string]*memBucket)}
}

func (s *MemStore) getOrInit(key string, class BucketClass) *memBucket {
	b, ok := s.buckets[key]
	if !ok {
		b = &memBucket{
			tokens:     float64(class.Capacity),
			capacity:   float64(class.Capacity),
			refillRate: class.RefillRate,
			lastRefill: time.Now(),
		}
		s.buckets[key] = b
	}
	return b
}

func (b *memBucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens = minFloat(b.capacity, b.tokens+b.refillRate*elapsed)
	b.lastRefill = now
}

func (b *memBucket) toBucket(key string) Bucket {
	return Bucket{
		Key:           key,
		Tokens:        b.tokens,
		Capacity:      int(b.capacity),
		RefillRate:    b.refillRate,
		LastRefill:    b.lastRefill,
		ContentLength: b.contentLength,
	}
}

// GetOrCreateAndConsume implements the atomic refill-then-consume
// operation (§4.J "atomic bucket get-or-create-and-consume").
func (s *MemStore) GetOrCreateAndConsume(ctx context.Context, key string, class BucketClass, needed int, contentLength int64) (Bucket, int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.getOrInit(key, class)
	b.refill(time.Now())

	if contentLength > 0 {
		b.contentLength = contentLength
	}

	if b.tokens < float64(needed) {
		return b.toBucket(key), 0, false, nil
	}
	b.tokens -= float64(needed)
	return b.toBucket(key), needed, true, nil
}

// ConsumeTokens implements the signed-delta adjustment (§4.J corrective
// phase and rollback). A bucket that doesn't exist yet is created with
// class's refill policy, full, before the delta is applied.
func (s *MemStore) ConsumeTokens(ctx context.Context, key string, class BucketClass, delta int, contentLength int64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.getOrInit(key, class)
	b.refill(time.Now())

	if contentLength > 0 {
		b.contentLength = contentLength
	}

	b.tokens = minFloat(b.capacity, maxFloat(0, b.tokens-float64(delta)))
	return b.tokens, nil
}

// GetBucket returns the current state, refilling first. It never creates
// a bucket; ok is false when key has never been consumed from.
func (s *MemStore) GetBucket(ctx context.Context, key string) (Bucket, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	if !ok {
		return Bucket{}, false, nil
	}
	b.refill(time.Now())
	return b.toBucket(key), true, nil
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
