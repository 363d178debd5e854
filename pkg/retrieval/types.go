// Package retrieval implements the Chunk Retrieval Service orchestrator
// described in §4.H: a cache-first, then boundary-lookup-then-fetch
// pipeline producing a tagged-union result.
package retrieval

// Chunk is the §3 data model: bytes plus the Merkle-proof fields needed
// to place them in the weave.
type Chunk struct {
	Data       []byte
	DataRoot   []byte // 32 B binary
	DataSize   uint64
	DataPath   []byte
	Offset     uint64 // relative offset, 0-indexed into the transaction
	Hash       []byte // 32 B SHA-256 content hash
	TxPath     []byte
	Source     string // "cache", "peer", or a named remote
	SourceHost string
}

// TxBoundary locates a transaction in the weave (§3). ID may be empty
// when the boundary was established by tx_path validation of
// peer-supplied data rather than a direct lookup.
type TxBoundary struct {
	DataRoot    string // b64url
	ID          string
	DataSize    uint64
	WeaveOffset uint64
}

// ResultType tags the variant of a ChunkRetrievalResult (§3).
// BoundaryFetch and Fallback are synonyms for the same variant — see
// DESIGN.md's Open Question decisions.
type ResultType string

const (
	ResultCacheHit        ResultType = "cache_hit"
	ResultTxPathValidated ResultType = "tx_path_validated"
	ResultBoundaryFetch   ResultType = "boundary_fetch"
)

// ChunkRetrievalResult is the tagged union §3 describes. Only non-cache
// variants may carry a TxID.
type ChunkRetrievalResult struct {
	Type                         ResultType
	Chunk                        Chunk
	DataRoot                     string
	DataSize                     uint64
	WeaveOffset                  uint64
	RelativeOffset               uint64
	ContiguousDataStartDelimiter uint64
	TxID                         string
	hasTxID                      bool
}

// HasTxID narrows safely: true exactly when Type is boundary_fetch and a
// TxID was actually present on the boundary result.
func HasTxID(r ChunkRetrievalResult) bool {
	return (r.Type == ResultBoundaryFetch) && r.hasTxID
}

// UsedFastPath is true for cache_hit and tx_path_validated.
func UsedFastPath(r ChunkRetrievalResult) bool {
	return r.Type == ResultCacheHit || r.Type == ResultTxPathValidated
}

// ChunkFetchParams is passed to a ChunkSource once the boundary is known.
type ChunkFetchParams struct {
	TxSize         uint64
	AbsoluteOffset uint64
	DataRoot       string
	RelativeOffset uint64
}
