package roottx

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/ar-io/gateway-dataplane/internal/shardindex"
)

// Index serves root-transaction lookups over a built shard set, using
// the §4.C sharded reader for the lazy-open/alphabetical-probe/hot-reload
// machinery and decoding each hit as a Record.
type Index struct {
	shards *shardindex.Reader
}

// OpenDir constructs an Index over every *.cdb shard in dir.
func OpenDir(dir string, opts shardindex.Options) *Index {
	return &Index{shards: shardindex.NewDir(dir, opts)}
}

// OpenFiles constructs an Index over an explicit, ordered shard list.
func OpenFiles(paths []string) *Index {
	return &Index{shards: shardindex.NewFiles(paths)}
}

// Lookup returns the decoded Record for key, or (zero, false, nil) when
// absent from every shard.
func (idx *Index) Lookup(key []byte) (Record, bool, error) {
	v, ok, err := idx.shards.Get(key)
	if err != nil {
		return Record{}, false, err
	}
	if !ok {
		return Record{}, false, nil
	}

	var rec Record
	if err := msgpack.Unmarshal(v, &rec); err != nil {
		return Record{}, false, fmt.Errorf("roottx: decode record: %w", err)
	}
	return rec, true, nil
}

// Close tears down the underlying shard reader (and its watcher, if any).
func (idx *Index) Close() error {
	return idx.shards.Close()
}
