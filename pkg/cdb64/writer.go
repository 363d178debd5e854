package cdb64

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
)

// Writer builds a CDB64 file. Records are streamed to a temporary file as
// they are added; the 256 per-bucket slot lists are accumulated in memory
// as (hash, recordOffset) pairs and expanded into hash tables only at
// Finalize, so that a writer that is never finalized leaves nothing but an
// orphaned temp file behind (§4.A: "failure before finalize leaves only the
// temp file").
type Writer struct {
	path    string
	tmpPath string
	f       *os.File
	w       *bufio.Writer
	offset  uint64

	slots [numTables][]hashSlot

	finalized bool
}

// Create opens a Writer that will atomically produce path on Finalize.
func Create(path string) (*Writer, error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("cdb64: open temp file: %w", err)
	}

	w := &Writer{
		path:    path,
		tmpPath: tmp.Name(),
		f:       tmp,
		w:       bufio.NewWriter(tmp),
	}

	// Reserve space for the header; it is patched in place right before
	// the atomic rename.
	if _, err := w.w.Write(make([]byte, HeaderSize)); err != nil {
		w.abort()
		return nil, fmt.Errorf("cdb64: reserve header: %w", err)
	}
	w.offset = HeaderSize

	return w, nil
}

// Add appends a key/value record. Duplicate keys are permitted; the first
// insertion wins on Get, and iteration yields every insertion.
func (w *Writer) Add(key, value []byte) error {
	if w.finalized {
		return fmt.Errorf("cdb64: writer already finalized")
	}

	recordOffset := w.offset

	var lenPrefix [recordHeaderSize]byte
	binary.LittleEndian.PutUint64(lenPrefix[0:8], uint64(len(key)))
	binary.LittleEndian.PutUint64(lenPrefix[8:16], uint64(len(value)))

	if _, err := w.w.Write(lenPrefix[:]); err != nil {
		return fmt.Errorf("cdb64: write record header: %w", err)
	}
	if _, err := w.w.Write(key); err != nil {
		return fmt.Errorf("cdb64: write key: %w", err)
	}
	if _, err := w.w.Write(value); err != nil {
		return fmt.Errorf("cdb64: write value: %w", err)
	}
	w.offset += recordHeaderSize + uint64(len(key)) + uint64(len(value))

	h := cdbHash(key)
	idx := tableIndex(h)
	w.slots[idx] = append(w.slots[idx], hashSlot{hash: h, recordOffset: recordOffset})

	return nil
}

// Finalize expands each bucket's slot list into an open-addressed hash
// table, writes the 256 tables contiguously, patches the header in place,
// and atomically moves the result to the writer's target path. Finalize is
// crash-safe: a partially written table is never observable under the
// final name because the rename only happens after every byte has been
// flushed and fsynced.
func (w *Writer) Finalize() error {
	if w.finalized {
		return fmt.Errorf("cdb64: writer already finalized")
	}
	w.finalized = true

	var header [numTables]headerSlot

	for i := 0; i < numTables; i++ {
		entries := w.slots[i]
		tableLen := uint64(1)
		if n := uint64(len(entries)); n > 0 {
			tableLen = n * 2
			if tableLen < 1 {
				tableLen = 1
			}
		}

		table := make([]hashSlot, tableLen)
		for _, e := range entries {
			pos := probeStart(e.hash, tableLen)
			for table[pos].recordOffset != 0 {
				pos = (pos + 1) % tableLen
			}
			table[pos] = e
		}

		header[i] = headerSlot{tableOffset: w.offset, tableLen: tableLen}

		buf := make([]byte, tableLen*hashTableSlotSize)
		for j, slot := range table {
			slot.encode(buf[j*hashTableSlotSize : (j+1)*hashTableSlotSize])
		}
		if _, err := w.w.Write(buf); err != nil {
			w.abort()
			return fmt.Errorf("cdb64: write hash table %d: %w", i, err)
		}
		w.offset += uint64(len(buf))
	}

	if err := w.w.Flush(); err != nil {
		w.abort()
		return fmt.Errorf("cdb64: flush: %w", err)
	}

	headerBuf := make([]byte, HeaderSize)
	for i, slot := range header {
		slot.encode(headerBuf[i*headerSlotSize : (i+1)*headerSlotSize])
	}
	if _, err := w.f.WriteAt(headerBuf, 0); err != nil {
		w.abort()
		return fmt.Errorf("cdb64: patch header: %w", err)
	}

	if err := w.f.Sync(); err != nil {
		w.abort()
		return fmt.Errorf("cdb64: sync: %w", err)
	}
	if err := w.f.Close(); err != nil {
		os.Remove(w.tmpPath)
		return fmt.Errorf("cdb64: close: %w", err)
	}

	if err := os.Rename(w.tmpPath, w.path); err != nil {
		os.Remove(w.tmpPath)
		return fmt.Errorf("cdb64: rename into place: %w", err)
	}

	return nil
}

// abort discards the temp file after an unrecoverable write error.
func (w *Writer) abort() {
	w.f.Close()
	os.Remove(w.tmpPath)
}
