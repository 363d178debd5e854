// Package roottx builds and serves the root-transaction index named in
// §2's flow line ("Indices … are served by C over A+B"): a CDB64 shard
// set partitioned by 2-hex-char key prefix, whose values are the
// MessagePack-encoded §6 record shapes.
package roottx

// Record is the CDB64 value encoding for a root-transaction lookup (§6).
// The simple shape carries only the root transaction id; the complete
// shape adds the offsets needed to locate the data item within a nested
// bundle. Compact one-letter field names match the wire format exactly.
type Record struct {
	RootTxID           []byte  `msgpack:"r"`
	RootDataItemOffset *uint64 `msgpack:"i,omitempty"`
	RootDataOffset     *uint64 `msgpack:"d,omitempty"`
}

// NewSimpleRecord builds the simple `{r}` shape.
func NewSimpleRecord(rootTxID []byte) Record {
	return Record{RootTxID: rootTxID}
}

// NewCompleteRecord builds the complete `{r, i, d}` shape.
func NewCompleteRecord(rootTxID []byte, rootDataItemOffset, rootDataOffset uint64) Record {
	return Record{
		RootTxID:           rootTxID,
		RootDataItemOffset: &rootDataItemOffset,
		RootDataOffset:     &rootDataOffset,
	}
}

// IsComplete reports whether both offset fields were present on decode.
func (r Record) IsComplete() bool {
	return r.RootDataItemOffset != nil && r.RootDataOffset != nil
}
