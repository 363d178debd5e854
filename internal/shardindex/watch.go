package shardindex

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ar-io/gateway-dataplane/pkg/cdb64"
)

// startWatch establishes the directory watcher. Called with mu held.
func (r *Reader) startWatch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(r.dir); err != nil {
		w.Close()
		return err
	}

	r.watcher = w
	r.done = make(chan struct{})

	r.wg.Add(1)
	go r.watchLoop()
	return nil
}

// stableEvent is posted by a debounce timer once a file has gone
// stabilityWindow without changing. watchLoop is the only goroutine that
// ever reads it, so pending can stay lock-free.
type stableEvent struct {
	path   string
	before fileSnapshot
}

// watchLoop debounces write events per file (stable for stabilityWindow
// before being treated as a complete shard) and reacts to removals
// immediately, preserving alphabetical shard order on every mutation.
// pending is owned exclusively by this goroutine: the debounce timers
// only ever post to stableCh, never touch pending themselves, so no lock
// is needed around it.
func (r *Reader) watchLoop() {
	defer r.wg.Done()

	pending := map[string]*time.Timer{}
	stableCh := make(chan stableEvent)
	defer func() {
		for _, t := range pending {
			t.Stop()
		}
	}()

	for {
		select {
		case <-r.done:
			return
		case ev, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if filepath.Ext(ev.Name) != ".cdb" {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				if t, found := pending[ev.Name]; found {
					t.Stop()
					delete(pending, ev.Name)
				}
				r.removeShard(ev.Name)

			case ev.Op&(fsnotify.Write|fsnotify.Create) != 0:
				path := ev.Name
				if t, found := pending[path]; found {
					t.Stop()
				}
				before, _ := statSnapshot(path)
				pending[path] = time.AfterFunc(stabilityWindow, func() {
					// r.done guards against leaking this goroutine if
					// watchLoop has already exited by the time the timer
					// fires (e.g. a Close() racing the debounce window).
					select {
					case stableCh <- stableEvent{path: path, before: before}:
					case <-r.done:
					}
				})
			}
		case se := <-stableCh:
			delete(pending, se.path)
			r.addShardWhenStable(se.path, se.before)
		case _, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// fileSnapshot captures the size/mtime pair used to detect whether a file
// is still being written to.
type fileSnapshot struct {
	size    int64
	modTime time.Time
}

func statSnapshot(path string) (fileSnapshot, error) {
	info, err := os.Stat(path)
	if err != nil {
		return fileSnapshot{}, err
	}
	return fileSnapshot{size: info.Size(), modTime: info.ModTime()}, nil
}

// addShardWhenStable re-checks the file hasn't changed since the debounce
// timer was armed before opening it; a still-growing file is simply
// skipped until its next write event re-arms the timer.
func (r *Reader) addShardWhenStable(path string, before fileSnapshot) {
	after, err := statSnapshot(path)
	if err != nil {
		return
	}
	if after != before {
		return // still changing; wait for the next write event to re-arm
	}

	reader, err := cdb64.Open(path)
	if err != nil {
		r.log.Warn().Str("path", path).Err(err).Msg("new shard failed to open, skipping")
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.shards {
		if s.path == path {
			reader.Close()
			return // already tracked
		}
	}

	r.shards = append(r.shards, shard{path: path, reader: reader})
	sort.Slice(r.shards, func(i, j int) bool { return r.shards[i].path < r.shards[j].path })
}

// removeShard closes and drops a shard whose file disappeared.
func (r *Reader) removeShard(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, s := range r.shards {
		if s.path == path {
			s.reader.Close()
			r.shards = append(r.shards[:i], r.shards[i+1:]...)
			return
		}
	}
}
