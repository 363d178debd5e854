// Package attrcache implements the single-flight attribute cache from
// §4.G: an in-memory LRU of attribute records, coalescing concurrent
// lookups for the same key into a single upstream call.
package attrcache

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// Source fetches the authoritative record for id on a cache miss.
type Source[T any] func(ctx context.Context, id string) (T, error)

// MergeFunc merges partial over existing: fields set in partial override,
// fields it leaves zero are preserved from existing.
type MergeFunc[T any] func(existing, partial T) T

// Cache is a single-flight, bounded-LRU attribute cache over Source.
type Cache[T any] struct {
	lru    *lru.Cache[string, T]
	group  singleflight.Group
	source Source[T]
	merge  MergeFunc[T]
}

// New builds a Cache holding at most size entries.
func New[T any](size int, source Source[T], merge MergeFunc[T]) (*Cache[T], error) {
	l, err := lru.New[string, T](size)
	if err != nil {
		return nil, err
	}
	return &Cache[T]{lru: l, source: source, merge: merge}, nil
}

// Get returns the cached value for id, coalescing concurrent misses for
// the same id into a single call to Source (§4.G steps 1-3). A failed
// fetch is not cached and does not populate the LRU.
func (c *Cache[T]) Get(ctx context.Context, id string) (T, error) {
	if v, ok := c.lru.Get(id); ok {
		return v, nil
	}

	v, err, _ := c.group.Do(id, func() (any, error) {
		// Re-check: another goroutine may have populated the LRU between
		// our miss above and acquiring the single-flight slot.
		if v, ok := c.lru.Get(id); ok {
			return v, nil
		}
		val, err := c.source(ctx, id)
		if err != nil {
			return nil, err
		}
		c.lru.Add(id, val)
		return val, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Set merges partial over any cached value for id and stores the result,
// so a subsequent Get serves it without consulting Source.
func (c *Cache[T]) Set(id string, partial T) {
	if existing, ok := c.lru.Get(id); ok {
		c.lru.Add(id, c.merge(existing, partial))
		return
	}
	c.lru.Add(id, partial)
}

// Peek returns the cached value without triggering a fetch or affecting
// LRU recency.
func (c *Cache[T]) Peek(id string) (T, bool) {
	return c.lru.Peek(id)
}
