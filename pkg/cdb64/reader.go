package cdb64

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/ar-io/gateway-dataplane/pkg/gwerrors"
)

// Reader provides random-access Get and ordered Entries iteration over a
// single CDB64 file. It holds the file handle open for the life of the
// reader and reads from it with ReadAt; Close releases it.
type Reader struct {
	f      *os.File
	header [numTables]headerSlot
	// recordsEnd is the byte offset where the record stream ends and the
	// first hash table begins; tables are always written contiguously
	// starting right after the records, so header[0].tableOffset gives it.
	recordsEnd uint64
}

// Open opens path and loads its header. A missing file is returned as a
// plain *os.PathError so callers (notably the sharded index, §4.C) can
// distinguish "no such shard" from a corrupt one.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, HeaderSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		f.Close()
		return nil, gwerrors.NewCorruptError("cdb64", fmt.Sprintf("short header in %s: %v", path, err))
	}

	r := &Reader{f: f}
	for i := 0; i < numTables; i++ {
		r.header[i] = decodeHeaderSlot(buf[i*headerSlotSize : (i+1)*headerSlotSize])
	}
	r.recordsEnd = r.header[0].tableOffset

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, gwerrors.NewCorruptError("cdb64", fmt.Sprintf("stat %s: %v", path, err))
	}
	size := uint64(info.Size())
	for i, slot := range r.header {
		if slot.tableOffset > size {
			f.Close()
			return nil, gwerrors.NewCorruptError("cdb64", fmt.Sprintf("%s: table %d offset %d exceeds file size %d", path, i, slot.tableOffset, size))
		}
		if slot.tableLen == 0 {
			continue
		}
		end := slot.tableOffset + slot.tableLen*hashTableSlotSize
		if end > size {
			f.Close()
			return nil, gwerrors.NewCorruptError("cdb64", fmt.Sprintf("%s: table %d extends past end of file", path, i))
		}
	}

	return r, nil
}

// Get returns the value for key, or (nil, false) if absent. When the key
// was inserted more than once, the first insertion's value wins.
func (r *Reader) Get(key []byte) ([]byte, bool, error) {
	h := cdbHash(key)
	idx := tableIndex(h)
	slot := r.header[idx]
	if slot.tableLen == 0 {
		return nil, false, nil
	}

	start := probeStart(h, slot.tableLen)
	slotBuf := make([]byte, hashTableSlotSize)

	for i := uint64(0); i < slot.tableLen; i++ {
		pos := (start + i) % slot.tableLen
		if _, err := r.f.ReadAt(slotBuf, int64(slot.tableOffset+pos*hashTableSlotSize)); err != nil {
			return nil, false, fmt.Errorf("cdb64: read hash slot: %w", err)
		}
		entry := decodeHashSlot(slotBuf)
		if entry.recordOffset == 0 {
			return nil, false, nil
		}
		if entry.hash != h {
			continue
		}
		rk, rv, err := r.readRecord(entry.recordOffset)
		if err != nil {
			return nil, false, err
		}
		if bytes.Equal(rk, key) {
			return rv, true, nil
		}
	}

	return nil, false, nil
}

// readRecord reads the key/value record at a given file offset.
func (r *Reader) readRecord(offset uint64) (key, value []byte, err error) {
	prefix := make([]byte, recordHeaderSize)
	if _, err := r.f.ReadAt(prefix, int64(offset)); err != nil {
		return nil, nil, fmt.Errorf("cdb64: read record header: %w", err)
	}
	keyLen := binary.LittleEndian.Uint64(prefix[0:8])
	valueLen := binary.LittleEndian.Uint64(prefix[8:16])

	rest := make([]byte, keyLen+valueLen)
	if len(rest) > 0 {
		if _, err := r.f.ReadAt(rest, int64(offset+recordHeaderSize)); err != nil {
			return nil, nil, fmt.Errorf("cdb64: read record body: %w", err)
		}
	}
	return rest[:keyLen], rest[keyLen:], nil
}

// Entry is one (key, value) pair yielded by Entries, in physical record
// order. Duplicate keys are yielded as separate entries.
type Entry struct {
	Key   []byte
	Value []byte
}

// Entries returns every record in the file in physical (insertion) order,
// including duplicates.
func (r *Reader) Entries() ([]Entry, error) {
	var entries []Entry
	offset := uint64(HeaderSize)
	for offset < r.recordsEnd {
		key, value, err := r.readRecord(offset)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Key: key, Value: value})
		offset += recordHeaderSize + uint64(len(key)) + uint64(len(value))
	}
	return entries, nil
}

// Close releases the underlying file handle.
func (r *Reader) Close() error {
	return r.f.Close()
}
