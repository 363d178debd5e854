package retrieval

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/ar-io/gateway-dataplane/pkg/chunkstore"
	"github.com/ar-io/gateway-dataplane/pkg/gwerrors"
	"github.com/ar-io/gateway-dataplane/pkg/logging"
)

// ChunkSource fetches the chunk itself once a boundary is known.
type ChunkSource interface {
	GetChunkByAny(ctx context.Context, params ChunkFetchParams) (Chunk, error)
}

// BoundaryLookupFunc resolves the transaction boundary covering
// absoluteOffset. It wraps a §4.E composite fallback source; ok is false
// (with a nil error) for a well-formed "not found".
type BoundaryLookupFunc func(ctx context.Context, absoluteOffset uint64) (TxBoundary, bool, error)

// Service is the stateless chunk retrieval orchestrator. Its dependencies
// (the stores, the boundary lookup, the chunk source) own all shared
// mutable state; Service itself holds no per-call state, so concurrent
// RetrieveChunk calls are independent (§4.H "Concurrency").
type Service struct {
	dataStore   chunkstore.DataStore
	metaStore   chunkstore.MetadataStore
	boundary    BoundaryLookupFunc
	chunkSource ChunkSource
	log         zerolog.Logger
}

// New builds a Service. dataStore/metaStore may be nil to disable the
// cache fast path entirely (§4.H step 1's "only if both are configured").
func New(dataStore chunkstore.DataStore, metaStore chunkstore.MetadataStore, boundary BoundaryLookupFunc, chunkSource ChunkSource) *Service {
	return &Service{
		dataStore:   dataStore,
		metaStore:   metaStore,
		boundary:    boundary,
		chunkSource: chunkSource,
		log:         logging.Component("retrieval"),
	}
}

// RetrieveChunk implements the §4.H pipeline: cache fast path, then
// boundary lookup, then chunk fetch. It returns a *gwerrors.RetrievalError
// when every tier is exhausted.
func (s *Service) RetrieveChunk(ctx context.Context, absoluteOffset uint64) (ChunkRetrievalResult, error) {
	if s.dataStore != nil && s.metaStore != nil {
		if result, ok, err := s.cacheFastPath(absoluteOffset); err != nil {
			return ChunkRetrievalResult{}, err
		} else if ok {
			return result, nil
		}
	}

	boundary, ok, err := s.boundary(ctx, absoluteOffset)
	if err != nil {
		return ChunkRetrievalResult{}, gwerrors.NewRetrievalError(gwerrors.ErrorTypeOffsetLookupFailed, err)
	}
	if !ok || boundary.DataRoot == "" || boundary.DataSize == 0 {
		return ChunkRetrievalResult{}, gwerrors.NewRetrievalError(gwerrors.ErrorTypeTxNotFound, nil)
	}

	contiguousStart := boundary.WeaveOffset - boundary.DataSize + 1
	relativeOffset := absoluteOffset - contiguousStart

	chunk, err := s.chunkSource.GetChunkByAny(ctx, ChunkFetchParams{
		TxSize:         boundary.DataSize,
		AbsoluteOffset: absoluteOffset,
		DataRoot:       boundary.DataRoot,
		RelativeOffset: relativeOffset,
	})
	if err != nil {
		return ChunkRetrievalResult{}, gwerrors.NewRetrievalError(gwerrors.ErrorTypeFetchFailed, err)
	}

	result := ChunkRetrievalResult{
		Type:                         ResultBoundaryFetch,
		Chunk:                        chunk,
		DataRoot:                     boundary.DataRoot,
		DataSize:                     boundary.DataSize,
		WeaveOffset:                  boundary.WeaveOffset,
		RelativeOffset:               relativeOffset,
		ContiguousDataStartDelimiter: contiguousStart,
	}
	if boundary.ID != "" {
		result.TxID = boundary.ID
		result.hasTxID = true
	}
	return result, nil
}

// cacheFastPath implements §4.H step 1. ok is false when the stores
// don't agree on a hit (falls through to boundary lookup).
func (s *Service) cacheFastPath(absoluteOffset uint64) (ChunkRetrievalResult, bool, error) {
	data, dataOK, err := s.dataStore.GetByAbsoluteOffset(absoluteOffset)
	if err != nil {
		return ChunkRetrievalResult{}, false, err
	}
	meta, metaOK, err := s.metaStore.GetByAbsoluteOffset(absoluteOffset)
	if err != nil {
		return ChunkRetrievalResult{}, false, err
	}
	if !dataOK || !metaOK {
		return ChunkRetrievalResult{}, false, nil
	}

	weaveOffset := absoluteOffset + (meta.DataSize - 1 - meta.Offset)
	contiguousStart := absoluteOffset - meta.Offset

	chunk := Chunk{
		Data:     data.Chunk,
		Hash:     data.Hash,
		DataRoot: meta.DataRoot,
		DataSize: meta.DataSize,
		DataPath: meta.DataPath,
		Offset:   meta.Offset,
		TxPath:   meta.TxPath,
		Source:   "cache",
	}

	return ChunkRetrievalResult{
		Type:                         ResultCacheHit,
		Chunk:                        chunk,
		DataRoot:                     b64url(meta.DataRoot),
		DataSize:                     meta.DataSize,
		WeaveOffset:                  weaveOffset,
		RelativeOffset:               meta.Offset,
		ContiguousDataStartDelimiter: contiguousStart,
	}, true, nil
}
