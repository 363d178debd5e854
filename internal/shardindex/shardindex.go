// Package shardindex implements the multi-file CDB64 reader described in
// §4.C: a directory (or explicit file list) of shards, opened lazily,
// probed in lexicographic order with first-match-wins semantics, and
// optionally hot-reloaded via a debounced file-system watcher.
package shardindex

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/ar-io/gateway-dataplane/pkg/cdb64"
	"github.com/ar-io/gateway-dataplane/pkg/logging"
)

// stabilityWindow is how long a shard file's size/mtime must remain
// unchanged before the watcher treats it as a complete, readable shard.
const stabilityWindow = 1 * time.Second

// shard pairs an open reader with the path it was opened from, so it can
// be identified again on removal.
type shard struct {
	path   string
	reader *cdb64.Reader
}

// Reader is a lazily-initialized, optionally hot-reloaded view over a set
// of CDB64 shard files. The zero value is not usable; construct with
// NewDir or NewFiles.
type Reader struct {
	mu sync.RWMutex

	dir      string   // non-empty when the source is a directory
	explicit []string // file paths, used when dir == ""
	watch    bool

	initialized bool
	shards      []shard // ordered, alphabetical by path

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup

	log zerolog.Logger
}

// Options configures a Reader.
type Options struct {
	// Watch enables hot reload when the source is a directory. Ignored
	// for single-file or explicit-file-list sources.
	Watch bool
}

// NewDir constructs a Reader over every *.cdb file in dir. Initialization
// (the directory scan and shard opens) is deferred to the first Get.
func NewDir(dir string, opts Options) *Reader {
	return &Reader{dir: dir, watch: opts.Watch, log: logging.Component("shardindex")}
}

// NewFiles constructs a Reader over an explicit, already-ordered list of
// shard files. A file-list source never starts a watcher.
func NewFiles(paths []string) *Reader {
	cp := make([]string, len(paths))
	copy(cp, paths)
	return &Reader{explicit: cp, log: logging.Component("shardindex")}
}

// ensureInitLocked performs the lazy directory scan (or file list exposure) and
// opens every shard, starting the watcher if requested. Called with mu
// held for writing.
func (r *Reader) ensureInitLocked() error {
	if r.initialized {
		return nil
	}
	r.initialized = true

	var paths []string
	if r.dir != "" {
		entries, err := os.ReadDir(r.dir)
		if err != nil {
			if os.IsNotExist(err) {
				return nil // nonexistent directory: no shards, not an error
			}
			return fmt.Errorf("shardindex: read dir %s: %w", r.dir, err)
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if filepath.Ext(e.Name()) == ".cdb" {
				paths = append(paths, filepath.Join(r.dir, e.Name()))
			}
		}
		sort.Strings(paths)
	} else {
		paths = r.explicit
	}

	for _, p := range paths {
		reader, err := cdb64.Open(p)
		if err != nil {
			r.log.Warn().Str("path", p).Err(err).Msg("skipping shard that failed to open")
			continue
		}
		r.shards = append(r.shards, shard{path: p, reader: reader})
	}

	if r.watch && r.dir != "" {
		if err := r.startWatch(); err != nil {
			r.log.Warn().Err(err).Msg("failed to start shard directory watcher")
		}
	}

	return nil
}

// Get probes every shard in lexicographic order and returns the first
// match. A nonexistent source (directory never created, or empty) returns
// absent, never an error.
func (r *Reader) Get(key []byte) ([]byte, bool, error) {
	r.mu.Lock()
	if err := r.ensureInitLocked(); err != nil {
		r.mu.Unlock()
		return nil, false, err
	}
	shards := make([]shard, len(r.shards))
	copy(shards, r.shards)
	r.mu.Unlock()

	for _, s := range shards {
		v, ok, err := s.reader.Get(key)
		if err != nil {
			r.log.Warn().Str("path", s.path).Err(err).Msg("shard read error, skipping")
			continue
		}
		if ok {
			return v, true, nil
		}
	}
	return nil, false, nil
}

// Close tears down the watcher (if any) and every open shard reader.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.watcher != nil {
		close(r.done)
		r.watcher.Close()
		r.wg.Wait()
		r.watcher = nil
	}

	var firstErr error
	for _, s := range r.shards {
		if err := s.reader.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.shards = nil
	return firstErr
}
