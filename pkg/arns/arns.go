// Package arns implements the §4.K ArNS resolution cache: a TTL'd
// name-to-record KV with hit- and miss-debounced background refresh,
// single-flighted per name so at most one upstream refresh for a given
// name is ever in flight.
package arns

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/ar-io/gateway-dataplane/pkg/logging"
)

// Record is the §3 ResolvedName: a name plus its resolved fields.
type Record struct {
	Name       string
	ProcessID  string
	Fields     map[string]string
	ResolvedAt time.Time
	TTL        time.Duration
}

// Page is one page of a paginated upstream refresh.
type Page struct {
	Records    []Record
	NextCursor string
	HasMore    bool
}

// Upstream fetches one page of records for name, given the cursor
// returned by the previous page (empty cursor starts from the
// beginning).
type Upstream interface {
	FetchPage(ctx context.Context, name, cursor string) (Page, error)
}

// ReduceFunc combines every page's records accumulated during one
// refresh into the single record stored for name. ok is false when the
// upstream reported no record for name (a well-formed negative).
type ReduceFunc func(name string, records []Record) (Record, bool)

// Config tunes the cache's two debounce windows and retry policy.
type Config struct {
	HitDebounceTTL  time.Duration
	MissDebounceTTL time.Duration
	MaxPageAttempts int // defaults to 3
}

type entry struct {
	record      Record
	ok          bool
	lastRefresh time.Time
}

// Cache is the §4.K resolution cache.
type Cache struct {
	mu              sync.Mutex
	entries         map[string]entry
	everHydrated    map[string]bool
	refreshRunning  map[string]bool
	lastMissAttempt map[string]time.Time

	upstream Upstream
	reduce   ReduceFunc
	cfg      Config
	group    singleflight.Group
	log      zerolog.Logger
}

// New builds a Cache over upstream, using reduce to fold a refresh's
// accumulated pages into the stored record.
func New(upstream Upstream, reduce ReduceFunc, cfg Config) *Cache {
	if cfg.MaxPageAttempts <= 0 {
		cfg.MaxPageAttempts = 3
	}
	return &Cache{
		entries:         make(map[string]entry),
		everHydrated:    make(map[string]bool),
		refreshRunning:  make(map[string]bool),
		lastMissAttempt: make(map[string]time.Time),
		upstream:        upstream,
		reduce:          reduce,
		cfg:             cfg,
		log:             logging.Component("arns"),
	}
}

// Get implements the §4.K lookup decision tree.
func (c *Cache) Get(ctx context.Context, name string) (Record, bool, error) {
	c.mu.Lock()
	e, hasEntry := c.entries[name]
	hydrated := c.everHydrated[name]
	inFlight := c.refreshRunning[name]
	c.mu.Unlock()

	now := time.Now()

	if hasEntry {
		if now.Sub(e.lastRefresh) < c.cfg.HitDebounceTTL {
			return e.record, e.ok, nil
		}
		c.scheduleRefresh(name)
		return e.record, e.ok, nil
	}

	if inFlight && !hydrated {
		return c.awaitRefresh(ctx, name)
	}

	c.mu.Lock()
	lastAttempt := c.lastMissAttempt[name]
	c.mu.Unlock()

	if !hydrated || now.Sub(lastAttempt) >= c.cfg.MissDebounceTTL {
		c.mu.Lock()
		c.lastMissAttempt[name] = now
		c.mu.Unlock()
		c.scheduleRefresh(name)
		return Record{}, false, nil
	}

	return Record{}, false, nil
}

// ForceRefresh schedules a refresh regardless of debounce state; still
// single-flighted against any refresh already in flight for name.
func (c *Cache) ForceRefresh(name string) {
	c.scheduleRefresh(name)
}

// scheduleRefresh launches the refresh in the background without
// awaiting it (§4.K "do not await").
func (c *Cache) scheduleRefresh(name string) {
	c.mu.Lock()
	if c.refreshRunning[name] {
		c.mu.Unlock()
		return
	}
	c.refreshRunning[name] = true
	c.mu.Unlock()

	go func() {
		_, _, _ = c.group.Do(name, func() (interface{}, error) {
			return c.refresh(name)
		})
	}()
}

// awaitRefresh blocks until the in-flight refresh for name completes
// (§4.K "MUST await that hydration"), then reads the KV.
func (c *Cache) awaitRefresh(ctx context.Context, name string) (Record, bool, error) {
	done := make(chan struct{})
	go func() {
		_, _, _ = c.group.Do(name, func() (interface{}, error) {
			return c.refresh(name)
		})
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return Record{}, false, ctx.Err()
	}

	c.mu.Lock()
	e, ok := c.entries[name]
	c.mu.Unlock()
	return e.record, ok && e.ok, nil
}

// refresh paginates the upstream for name, retrying each page up to
// MaxPageAttempts times, then reduces the accumulated records into the
// stored entry. A persistently failing page abandons the refresh without
// touching the KV (§4.K "Refresh").
func (c *Cache) refresh(name string) (struct{}, error) {
	defer func() {
		c.mu.Lock()
		delete(c.refreshRunning, name)
		c.mu.Unlock()
	}()

	ctx := context.Background()
	var all []Record
	cursor := ""
	for {
		page, err := c.fetchPageWithRetry(ctx, name, cursor)
		if err != nil {
			c.log.Warn().Err(err).Str("name", name).Msg("arns refresh abandoned: page persistently failed")
			return struct{}{}, err
		}
		all = append(all, page.Records...)
		if !page.HasMore {
			break
		}
		cursor = page.NextCursor
	}

	record, ok := c.reduce(name, all)

	c.mu.Lock()
	c.entries[name] = entry{record: record, ok: ok, lastRefresh: time.Now()}
	c.everHydrated[name] = true
	c.mu.Unlock()

	return struct{}{}, nil
}

func (c *Cache) fetchPageWithRetry(ctx context.Context, name, cursor string) (Page, error) {
	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxPageAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(backoff(attempt))
		}
		page, err := c.upstream.FetchPage(ctx, name, cursor)
		if err == nil {
			return page, nil
		}
		lastErr = err
	}
	return Page{}, lastErr
}

func backoff(attempt int) time.Duration {
	return time.Duration(attempt*attempt) * 50 * time.Millisecond
}
