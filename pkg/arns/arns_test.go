package arns

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeUpstream struct {
	mu    sync.Mutex
	calls int32
	pages map[string][]Page // name -> ordered pages
	fail  map[string]bool   // name -> always fail FetchPage
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{pages: make(map[string][]Page), fail: make(map[string]bool)}
}

func (f *fakeUpstream) FetchPage(ctx context.Context, name, cursor string) (Page, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fail[name] {
		return Page{}, errors.New("upstream unavailable")
	}

	pages := f.pages[name]
	idx := 0
	if cursor != "" {
		idx, _ = strconv.Atoi(cursor)
	}
	if idx < 0 || idx >= len(pages) {
		return Page{}, nil
	}
	return pages[idx], nil
}

func lastWins(name string, records []Record) (Record, bool) {
	if len(records) == 0 {
		return Record{}, false
	}
	return records[len(records)-1], true
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

func TestGetAbsentSchedulesRefreshAndReturnsAbsentImmediately(t *testing.T) {
	up := newFakeUpstream()
	up.pages["alice"] = []Page{{Records: []Record{{Name: "alice", ProcessID: "p1"}}}}

	c := New(up, lastWins, Config{HitDebounceTTL: time.Hour, MissDebounceTTL: time.Hour})

	rec, ok, err := c.Get(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatalf("first Get on an empty cache should return absent immediately, got %+v", rec)
	}

	waitUntil(t, time.Second, func() bool {
		rec, ok, _ := c.Get(context.Background(), "alice")
		return ok && rec.ProcessID == "p1"
	})
}

func TestGetWithinHitDebounceDoesNotRefresh(t *testing.T) {
	up := newFakeUpstream()
	up.pages["bob"] = []Page{{Records: []Record{{Name: "bob", ProcessID: "p1"}}}}

	c := New(up, lastWins, Config{HitDebounceTTL: time.Hour, MissDebounceTTL: time.Hour})

	waitUntil(t, time.Second, func() bool {
		_, ok, _ := c.Get(context.Background(), "bob")
		return ok
	})
	callsAfterHydrate := atomic.LoadInt32(&up.calls)

	for i := 0; i < 5; i++ {
		rec, ok, err := c.Get(context.Background(), "bob")
		if err != nil || !ok || rec.ProcessID != "p1" {
			t.Fatalf("Get = %+v %v %v", rec, ok, err)
		}
	}

	if atomic.LoadInt32(&up.calls) != callsAfterHydrate {
		t.Fatalf("calls grew from %d to %d within the hit-debounce window", callsAfterHydrate, up.calls)
	}
}

func TestGetAfterHitDebounceExpiryReturnsCachedAndRefreshesInBackground(t *testing.T) {
	up := newFakeUpstream()
	up.pages["carol"] = []Page{{Records: []Record{{Name: "carol", ProcessID: "p1"}}}}

	c := New(up, lastWins, Config{HitDebounceTTL: 10 * time.Millisecond, MissDebounceTTL: time.Hour})

	waitUntil(t, time.Second, func() bool {
		_, ok, _ := c.Get(context.Background(), "carol")
		return ok
	})

	time.Sleep(20 * time.Millisecond)

	rec, ok, err := c.Get(context.Background(), "carol")
	if err != nil || !ok || rec.ProcessID != "p1" {
		t.Fatalf("Get after debounce expiry = %+v %v %v, want stale-but-present p1", rec, ok, err)
	}

	waitUntil(t, time.Second, func() bool {
		return atomic.LoadInt32(&up.calls) >= 2
	})
}

func TestRefreshAbandonedOnPersistentPageFailureLeavesKVUntouched(t *testing.T) {
	up := newFakeUpstream()
	up.fail["dave"] = true

	c := New(up, lastWins, Config{HitDebounceTTL: time.Hour, MissDebounceTTL: time.Hour, MaxPageAttempts: 2})

	_, ok, _ := c.Get(context.Background(), "dave")
	if ok {
		t.Fatal("absent entry should remain absent")
	}

	time.Sleep(200 * time.Millisecond)

	_, ok, _ = c.Get(context.Background(), "dave")
	if ok {
		t.Fatal("a persistently-failing refresh must not populate the KV")
	}
}

func TestForceRefreshBypassesDebounce(t *testing.T) {
	up := newFakeUpstream()
	up.pages["erin"] = []Page{{Records: []Record{{Name: "erin", ProcessID: "p1"}}}}

	c := New(up, lastWins, Config{HitDebounceTTL: time.Hour, MissDebounceTTL: time.Hour})

	waitUntil(t, time.Second, func() bool {
		_, ok, _ := c.Get(context.Background(), "erin")
		return ok
	})
	callsAfterFirst := atomic.LoadInt32(&up.calls)

	c.ForceRefresh("erin")
	waitUntil(t, time.Second, func() bool {
		return atomic.LoadInt32(&up.calls) > callsAfterFirst
	})
}

func TestMultiPageRefreshAccumulatesAllRecords(t *testing.T) {
	up := newFakeUpstream()
	up.pages["paged"] = []Page{
		{Records: []Record{{Name: "paged", ProcessID: "page1"}}, NextCursor: "1", HasMore: true},
		{Records: []Record{{Name: "paged", ProcessID: "page2"}}, HasMore: false},
	}

	var captured []Record
	reduce := func(name string, records []Record) (Record, bool) {
		captured = records
		return lastWins(name, records)
	}
	c := New(up, reduce, Config{HitDebounceTTL: time.Hour, MissDebounceTTL: time.Hour})

	waitUntil(t, time.Second, func() bool {
		_, ok, _ := c.Get(context.Background(), "paged")
		return ok
	})

	if len(captured) != 2 {
		t.Fatalf("reduce saw %d records, want 2 (both pages)", len(captured))
	}
}
