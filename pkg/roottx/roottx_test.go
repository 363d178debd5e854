package roottx

import (
	"bytes"
	"testing"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/ar-io/gateway-dataplane/internal/shardindex"
)

func TestRecordEncodingShapes(t *testing.T) {
	simple := NewSimpleRecord([]byte("root-tx-id-32-bytes-padded......"))
	data, err := msgpack.Marshal(simple)
	if err != nil {
		t.Fatalf("Marshal simple: %v", err)
	}
	var back Record
	if err := msgpack.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal simple: %v", err)
	}
	if back.IsComplete() {
		t.Fatal("simple record decoded as complete")
	}
	if !bytes.Equal(back.RootTxID, simple.RootTxID) {
		t.Fatalf("RootTxID mismatch")
	}

	complete := NewCompleteRecord([]byte("root"), 100, 200)
	data, err = msgpack.Marshal(complete)
	if err != nil {
		t.Fatalf("Marshal complete: %v", err)
	}
	if err := msgpack.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal complete: %v", err)
	}
	if !back.IsComplete() {
		t.Fatal("complete record did not decode as complete")
	}
	if *back.RootDataItemOffset != 100 || *back.RootDataOffset != 200 {
		t.Fatalf("offsets = %d, %d; want 100, 200", *back.RootDataItemOffset, *back.RootDataOffset)
	}
}

func TestBuilderAndIndexRoundTrip(t *testing.T) {
	dir := t.TempDir()
	b := NewBuilder(dir)

	keys := [][]byte{
		{0x00, 1}, {0x01, 2}, {0xFF, 3},
	}
	for i, k := range keys {
		if err := b.Add(k, NewCompleteRecord([]byte{byte(i)}, uint64(i), uint64(i*10))); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	manifest, err := b.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if manifest.TotalRecords != 3 {
		t.Fatalf("TotalRecords = %d, want 3", manifest.TotalRecords)
	}
	if len(manifest.Partitions) != 3 {
		t.Fatalf("Partitions = %d, want 3 (one per distinct prefix)", len(manifest.Partitions))
	}

	idx := OpenDir(dir, shardindex.Options{})
	defer idx.Close()

	for i, k := range keys {
		rec, ok, err := idx.Lookup(k)
		if err != nil || !ok {
			t.Fatalf("Lookup(%v): ok=%v err=%v", k, ok, err)
		}
		if !rec.IsComplete() {
			t.Fatalf("Lookup(%v) not complete", k)
		}
		if *rec.RootDataItemOffset != uint64(i) {
			t.Fatalf("RootDataItemOffset = %d, want %d", *rec.RootDataItemOffset, i)
		}
	}

	_, ok, err := idx.Lookup([]byte{0x42, 9})
	if err != nil {
		t.Fatalf("Lookup(missing): %v", err)
	}
	if ok {
		t.Fatal("Lookup(missing) = found")
	}
}
