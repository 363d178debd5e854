package main

import (
	"fmt"
	"os"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/ar-io/gateway-dataplane/pkg/roottx"
)

// inputRecord is the on-disk MessagePack shape accepted by `build`: one
// entry per root-transaction lookup key, keyed by the Arweave data root
// (or whatever key space the caller's index uses).
type inputRecord struct {
	Key                []byte  `msgpack:"key"`
	RootTxID           []byte  `msgpack:"rootTxId"`
	RootDataItemOffset *uint64 `msgpack:"rootDataItemOffset,omitempty"`
	RootDataOffset     *uint64 `msgpack:"rootDataOffset,omitempty"`
}

type buildRecord struct {
	key    []byte
	record roottx.Record
}

// readRecordsFile decodes a MessagePack-encoded array of inputRecord from
// path into the (key, Record) pairs Builder.Add expects.
func readRecordsFile(path string) ([]buildRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read records file: %w", err)
	}

	var inputs []inputRecord
	if err := msgpack.Unmarshal(data, &inputs); err != nil {
		return nil, fmt.Errorf("decode records file: %w", err)
	}

	out := make([]buildRecord, 0, len(inputs))
	for _, in := range inputs {
		if len(in.Key) == 0 {
			return nil, fmt.Errorf("record with empty key")
		}
		var rec roottx.Record
		if in.RootDataItemOffset != nil && in.RootDataOffset != nil {
			rec = roottx.NewCompleteRecord(in.RootTxID, *in.RootDataItemOffset, *in.RootDataOffset)
		} else {
			rec = roottx.NewSimpleRecord(in.RootTxID)
		}
		out = append(out, buildRecord{key: in.Key, record: rec})
	}
	return out, nil
}
