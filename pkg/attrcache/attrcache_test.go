package attrcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

type attrs struct {
	ContentType string
	Size        int64
}

func mergeAttrs(existing, partial attrs) attrs {
	merged := existing
	if partial.ContentType != "" {
		merged.ContentType = partial.ContentType
	}
	if partial.Size != 0 {
		merged.Size = partial.Size
	}
	return merged
}

func TestGetCachesAfterFirstFetch(t *testing.T) {
	var calls int32
	source := func(ctx context.Context, id string) (attrs, error) {
		atomic.AddInt32(&calls, 1)
		return attrs{ContentType: "text/plain", Size: 10}, nil
	}
	c, err := New(16, source, mergeAttrs)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for i := 0; i < 3; i++ {
		v, err := c.Get(context.Background(), "id1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if v.ContentType != "text/plain" {
			t.Fatalf("Get = %+v", v)
		}
	}
	if calls != 1 {
		t.Fatalf("source called %d times, want 1", calls)
	}
}

func TestConcurrentGetsSingleFlighted(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	source := func(ctx context.Context, id string) (attrs, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return attrs{ContentType: "a/b"}, nil
	}
	c, err := New(16, source, mergeAttrs)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Get(context.Background(), "shared")
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls != 1 {
		t.Fatalf("source invoked %d times for 10 concurrent Get calls, want 1 (single flight)", calls)
	}
}

func TestSetMergesOverExisting(t *testing.T) {
	source := func(ctx context.Context, id string) (attrs, error) {
		t.Fatal("source should not be consulted after Set")
		return attrs{}, nil
	}
	c, err := New(16, source, mergeAttrs)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	c.Set("id1", attrs{ContentType: "text/plain", Size: 100})
	c.Set("id1", attrs{ContentType: "application/json"}) // Size left zero: preserved

	v, ok := c.Peek("id1")
	if !ok {
		t.Fatal("Peek: not found after Set")
	}
	if v.ContentType != "application/json" || v.Size != 100 {
		t.Fatalf("merged = %+v, want ContentType=application/json Size=100", v)
	}

	got, err := c.Get(context.Background(), "id1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != v {
		t.Fatalf("Get after Set = %+v, want %+v", got, v)
	}
}

func TestGetPropagatesSourceError(t *testing.T) {
	wantErr := errBoom
	source := func(ctx context.Context, id string) (attrs, error) {
		return attrs{}, wantErr
	}
	c, err := New(16, source, mergeAttrs)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = c.Get(context.Background(), "id1")
	if err != wantErr {
		t.Fatalf("Get err = %v, want %v", err, wantErr)
	}
	if _, ok := c.Peek("id1"); ok {
		t.Fatal("failed fetch populated the LRU")
	}
}
