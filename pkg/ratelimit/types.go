// Package ratelimit implements the §4.J distributed two-axis token-bucket
// rate limiter: an HTTP middleware contract backed by a pluggable atomic
// bucket store, with predictive accounting on request start and corrective
// accounting on response finish.
package ratelimit

import (
	"context"
	"time"
)

// Bucket mirrors the §3 TokenBucket data model as observed through the
// Store protocol. ContentLength is the last response size the resource
// bucket observed, used to size the next request's predictive consumption.
type Bucket struct {
	Key           string
	Tokens        float64
	Capacity      int
	RefillRate    float64
	LastRefill    time.Time
	ContentLength int64 // 0 means "unknown"
}

// BucketClass distinguishes the two bucket axes named in §4.J: each
// request consults one resource bucket and one IP bucket, with
// independent capacity/rate configuration per class.
type BucketClass struct {
	Capacity   int
	RefillRate float64 // tokens per second
	TTL        time.Duration
}

// Store is the §6 "rate-limiter bucket store protocol": three atomic
// server-side operations a shared backing store must expose.
type Store interface {
	// GetOrCreateAndConsume atomically refills the bucket per the §3
	// invariant, then attempts to consume needed tokens. consumed is the
	// number of tokens actually removed (needed on success, 0 on
	// failure). contentLength, when > 0, is recorded on the bucket for
	// future predictive sizing.
	GetOrCreateAndConsume(ctx context.Context, key string, class BucketClass, needed int, contentLength int64) (bucket Bucket, consumed int, success bool, err error)

	// ConsumeTokens applies a signed delta to an existing bucket
	// (creating it with the refill policy if absent), returning the
	// resulting token count. A negative delta implements rollback,
	// § 4.J step 3. contentLength, when > 0, updates the bucket's
	// cached observed response size.
	ConsumeTokens(ctx context.Context, key string, class BucketClass, delta int, contentLength int64) (tokensAfter float64, err error)

	// GetBucket returns the current bucket state without consuming,
	// refilling it per the read-time invariant first. ok is false when
	// no bucket has ever been created for key.
	GetBucket(ctx context.Context, key string) (bucket Bucket, ok bool, err error)
}
