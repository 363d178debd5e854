// Package rebroadcast implements the §4.I rebroadcasting chunk source
// wrapper: a fire-and-forget best-effort broadcaster layered over any
// retrieval.ChunkSource.
package rebroadcast

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"

	"github.com/ar-io/gateway-dataplane/pkg/logging"
	"github.com/ar-io/gateway-dataplane/pkg/retrieval"
	"github.com/ar-io/gateway-dataplane/pkg/wireformat"
)

// Broadcaster sends a chunk payload to peers. successCount is the number
// of peers that acknowledged receipt.
type Broadcaster interface {
	Broadcast(ctx context.Context, payload []byte) (successCount int, err error)
}

// Config holds the per-wrapper tunables named in §4.I.
type Config struct {
	// AllowedSources is the configured allow-list of chunk.Source values
	// eligible for rebroadcast. "cache" is always excluded regardless of
	// this list (hard-coded exclusion).
	AllowedSources []string
	// DedupTTL and DedupCacheSize bound the dedup LRU keyed
	// dataRoot:relativeOffset.
	DedupTTL       time.Duration
	DedupCacheSize int
	// MaxConcurrent bounds the number of in-flight broadcasts.
	MaxConcurrent int
	// MinSuccessCount is the minimum successCount for the attempt to
	// count as a success.
	MinSuccessCount int
	// BroadcastTimeout bounds each background broadcast call.
	BroadcastTimeout time.Duration
}

// Wrapper wraps a retrieval.ChunkSource, rebroadcasting each fetched
// chunk in the background subject to the §4.I decision gates.
type Wrapper struct {
	wrapped     retrieval.ChunkSource
	broadcaster Broadcaster
	bucket      TokenBucket
	dedup       *expirable.LRU[string, struct{}]
	sem         chan struct{}
	allowed     map[string]struct{}
	minSuccess  int
	timeout     time.Duration
	log         zerolog.Logger

	pendingMu sync.Mutex
	pending   map[string]struct{}
	pendingWG sync.WaitGroup
}

// New builds a Wrapper. cfg zero-values sensibly: MaxConcurrent<=0 means
// 64, MinSuccessCount<=0 means 1.
func New(wrapped retrieval.ChunkSource, broadcaster Broadcaster, bucket TokenBucket, cfg Config) *Wrapper {
	allowed := make(map[string]struct{}, len(cfg.AllowedSources))
	for _, s := range cfg.AllowedSources {
		allowed[s] = struct{}{}
	}

	minSuccess := cfg.MinSuccessCount
	if minSuccess <= 0 {
		minSuccess = 1
	}

	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 64
	}

	timeout := cfg.BroadcastTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	dedupSize := cfg.DedupCacheSize
	if dedupSize <= 0 {
		dedupSize = 4096
	}
	dedupTTL := cfg.DedupTTL
	if dedupTTL <= 0 {
		dedupTTL = 5 * time.Minute
	}

	return &Wrapper{
		wrapped:     wrapped,
		broadcaster: broadcaster,
		bucket:      bucket,
		dedup:       expirable.NewLRU[string, struct{}](dedupSize, nil, dedupTTL),
		sem:         make(chan struct{}, maxConcurrent),
		allowed:     allowed,
		minSuccess:  minSuccess,
		timeout:     timeout,
		log:         logging.Component("rebroadcast"),
		pending:     make(map[string]struct{}),
	}
}

// GetChunkByAny delegates to the wrapped source, then registers a
// fire-and-forget rebroadcast attempt before returning the chunk (§4.I
// steps 1-2): the caller never waits on the broadcast.
func (w *Wrapper) GetChunkByAny(ctx context.Context, params retrieval.ChunkFetchParams) (retrieval.Chunk, error) {
	chunk, err := w.wrapped.GetChunkByAny(ctx, params)
	if err != nil {
		return retrieval.Chunk{}, err
	}
	w.scheduleRebroadcast(chunk, params)
	return chunk, nil
}

func dedupKey(dataRoot string, relativeOffset uint64) string {
	return fmt.Sprintf("%s:%d", dataRoot, relativeOffset)
}

func (w *Wrapper) scheduleRebroadcast(chunk retrieval.Chunk, params retrieval.ChunkFetchParams) {
	key := dedupKey(params.DataRoot, params.RelativeOffset)

	w.pendingMu.Lock()
	w.pending[key] = struct{}{}
	w.pendingMu.Unlock()
	w.pendingWG.Add(1)

	go func() {
		defer w.pendingWG.Done()
		defer func() {
			w.pendingMu.Lock()
			delete(w.pending, key)
			w.pendingMu.Unlock()
		}()
		defer func() {
			if r := recover(); r != nil {
				w.log.Error().Interface("panic", r).Str("key", key).Msg("rebroadcast task panicked")
			}
		}()
		w.attempt(chunk, key)
	}()
}

// attempt runs the §4.I decision gates and, on pass, the broadcast
// itself. It never returns an error: all failures are logged and
// reflected only in metrics.
func (w *Wrapper) attempt(chunk retrieval.Chunk, key string) {
	if chunk.Source == "cache" {
		w.recordSkip("cache_source")
		return
	}
	if chunk.Source == "" {
		w.recordSkip("source_absent")
		return
	}
	if _, ok := w.allowed[chunk.Source]; !ok {
		w.recordSkip("source_not_allowed")
		return
	}
	if _, ok := w.dedup.Get(key); ok {
		w.recordSkip("dedup")
		return
	}
	if !w.bucket.TryRemove(1) {
		w.recordSkip("rate_limited")
		return
	}

	w.sem <- struct{}{}
	defer func() { <-w.sem }()

	attemptsTotal.Inc()

	payload, err := wireformat.EncodeChunk(chunk)
	if err != nil {
		failuresTotal.Inc()
		w.log.Error().Err(err).Str("key", key).Msg("rebroadcast encode failed")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	successCount, err := w.broadcaster.Broadcast(ctx, payload)
	if err != nil {
		failuresTotal.Inc()
		w.log.Warn().Err(err).Str("key", key).Msg("rebroadcast failed")
		return
	}
	if successCount < w.minSuccess {
		failuresTotal.Inc()
		w.log.Debug().Str("key", key).Int("successCount", successCount).Msg("rebroadcast below minSuccessCount")
		return
	}

	successesTotal.Inc()
	w.dedup.Add(key, struct{}{})
}

func (w *Wrapper) recordSkip(reason string) {
	skippedTotal.WithLabelValues(reason).Inc()
}

// Drain blocks until all in-flight rebroadcast tasks have completed. For
// test use only: production callers never need to observe completion of
// a fire-and-forget task.
func (w *Wrapper) Drain() {
	w.pendingWG.Wait()
}

// PendingCount reports the number of rebroadcast tasks currently
// in-flight. For test use only.
func (w *Wrapper) PendingCount() int {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	return len(w.pending)
}
