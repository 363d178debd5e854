package retrieval

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/ar-io/gateway-dataplane/pkg/chunkstore"
	"github.com/ar-io/gateway-dataplane/pkg/gwerrors"
)

type stubChunkSource struct {
	calls int
	chunk Chunk
	err   error
}

func (s *stubChunkSource) GetChunkByAny(ctx context.Context, params ChunkFetchParams) (Chunk, error) {
	s.calls++
	if s.err != nil {
		return Chunk{}, s.err
	}
	return s.chunk, nil
}

func TestRetrieveChunkCacheHit(t *testing.T) {
	dataStore := chunkstore.NewMemoryDataStore()
	metaStore := chunkstore.NewMemoryMetadataStore()

	hash := []byte{0x01}
	chunkBytes := make([]byte, 256)
	for i := range chunkBytes {
		chunkBytes[i] = 0x02
	}
	dataRoot, _ := base64.RawURLEncoding.DecodeString("wRq6f05oRupfTW_M5dcYBtwK5P8rSNYu20vC6D_o-M4")

	const absoluteOffset = uint64(51530681327863)
	dataStore.Set(hash, absoluteOffset, &chunkstore.ChunkData{Hash: hash, Chunk: chunkBytes})
	metaStore.Set(hash, absoluteOffset, &chunkstore.ChunkMetadata{
		DataRoot: dataRoot,
		DataSize: 256000,
		Offset:   0,
	})

	boundaryCalled := false
	boundary := func(ctx context.Context, offset uint64) (TxBoundary, bool, error) {
		boundaryCalled = true
		return TxBoundary{}, false, nil
	}
	chunkSrc := &stubChunkSource{}

	svc := New(dataStore, metaStore, boundary, chunkSrc)
	result, err := svc.RetrieveChunk(context.Background(), absoluteOffset)
	if err != nil {
		t.Fatalf("RetrieveChunk: %v", err)
	}
	if result.Type != ResultCacheHit {
		t.Fatalf("Type = %s, want cache_hit", result.Type)
	}
	if result.DataRoot != "wRq6f05oRupfTW_M5dcYBtwK5P8rSNYu20vC6D_o-M4" {
		t.Fatalf("DataRoot = %s", result.DataRoot)
	}
	if result.DataSize != 256000 {
		t.Fatalf("DataSize = %d, want 256000", result.DataSize)
	}
	if result.Chunk.Source != "cache" {
		t.Fatalf("Chunk.Source = %s, want cache", result.Chunk.Source)
	}
	if boundaryCalled {
		t.Fatal("boundary source was consulted on a cache hit")
	}
	if chunkSrc.calls != 0 {
		t.Fatal("chunk source was consulted on a cache hit")
	}
	if !UsedFastPath(result) {
		t.Fatal("UsedFastPath(cache_hit) = false")
	}
}

func TestRetrieveChunkBoundaryFetch(t *testing.T) {
	boundary := func(ctx context.Context, offset uint64) (TxBoundary, bool, error) {
		return TxBoundary{
			DataRoot:    "wRq6f05oRupfTW_M5dcYBtwK5P8rSNYu20vC6D_o-M4",
			ID:          "test-tx-id-12345",
			DataSize:    256000,
			WeaveOffset: 51530681583862,
		}, true, nil
	}
	chunkSrc := &stubChunkSource{chunk: Chunk{Data: []byte("mock-chunk")}}

	svc := New(nil, nil, boundary, chunkSrc)
	result, err := svc.RetrieveChunk(context.Background(), 51530681327863)
	if err != nil {
		t.Fatalf("RetrieveChunk: %v", err)
	}
	if result.Type != ResultBoundaryFetch {
		t.Fatalf("Type = %s, want boundary_fetch", result.Type)
	}
	if !HasTxID(result) {
		t.Fatal("HasTxID = false, want true")
	}
	if result.TxID != "test-tx-id-12345" {
		t.Fatalf("TxID = %s", result.TxID)
	}
	if chunkSrc.calls != 1 {
		t.Fatalf("chunk source called %d times, want 1", chunkSrc.calls)
	}
}

func TestRetrieveChunkBoundaryFailure(t *testing.T) {
	boundaryErr := errors.New("upstream boundary lookup failed")
	boundary := func(ctx context.Context, offset uint64) (TxBoundary, bool, error) {
		return TxBoundary{}, false, boundaryErr
	}
	chunkSrc := &stubChunkSource{}

	svc := New(nil, nil, boundary, chunkSrc)
	_, err := svc.RetrieveChunk(context.Background(), 123)

	var retrErr *gwerrors.RetrievalError
	if !errors.As(err, &retrErr) {
		t.Fatalf("err = %v, want *gwerrors.RetrievalError", err)
	}
	if retrErr.ErrorType != gwerrors.ErrorTypeOffsetLookupFailed {
		t.Fatalf("ErrorType = %s, want offset_lookup_failed", retrErr.ErrorType)
	}
	if chunkSrc.calls != 0 {
		t.Fatal("chunk source was consulted after a boundary failure")
	}
}

func TestRetrieveChunkTxNotFound(t *testing.T) {
	boundary := func(ctx context.Context, offset uint64) (TxBoundary, bool, error) {
		return TxBoundary{}, false, nil
	}
	svc := New(nil, nil, boundary, &stubChunkSource{})

	_, err := svc.RetrieveChunk(context.Background(), 123)
	var retrErr *gwerrors.RetrievalError
	if !errors.As(err, &retrErr) || retrErr.ErrorType != gwerrors.ErrorTypeTxNotFound {
		t.Fatalf("err = %v, want tx_not_found", err)
	}
}

func TestRetrieveChunkFetchFailed(t *testing.T) {
	boundary := func(ctx context.Context, offset uint64) (TxBoundary, bool, error) {
		return TxBoundary{DataRoot: "root", ID: "tx", DataSize: 100, WeaveOffset: 199}, true, nil
	}
	chunkSrc := &stubChunkSource{err: errors.New("fetch failed")}
	svc := New(nil, nil, boundary, chunkSrc)

	_, err := svc.RetrieveChunk(context.Background(), 150)
	var retrErr *gwerrors.RetrievalError
	if !errors.As(err, &retrErr) || retrErr.ErrorType != gwerrors.ErrorTypeFetchFailed {
		t.Fatalf("err = %v, want fetch_failed", err)
	}
}
