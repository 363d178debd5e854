// Package cdb64 implements the 64-bit constant-database (CDB) on-disk
// immutable hash table format described in §3/§4.A/§6: a 256-way header of
// (tableOffset, tableLen) pairs, a record stream, and 256 open-addressed
// hash tables. The format is byte-identical to the established 64-bit CDB
// variant so files round-trip across independent readers/writers.
package cdb64

import "encoding/binary"

const (
	// numTables is the fixed fan-out by first hash byte.
	numTables = 256

	// headerSlotSize is the size in bytes of one (tableOffset, tableLen)
	// header entry.
	headerSlotSize = 16

	// HeaderSize is the total size of the 256-slot header.
	HeaderSize = numTables * headerSlotSize

	// hashTableSlotSize is the size in bytes of one (hash, recordOffset)
	// hash table slot.
	hashTableSlotSize = 16
)

// headerSlot is one entry of the 256-slot header: the byte offset and
// slot count of the hash table for a given first-hash-byte bucket.
type headerSlot struct {
	tableOffset uint64
	tableLen    uint64
}

func (s headerSlot) encode(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:8], s.tableOffset)
	binary.LittleEndian.PutUint64(buf[8:16], s.tableLen)
}

func decodeHeaderSlot(buf []byte) headerSlot {
	return headerSlot{
		tableOffset: binary.LittleEndian.Uint64(buf[0:8]),
		tableLen:    binary.LittleEndian.Uint64(buf[8:16]),
	}
}

// hashSlot is one entry of a per-bucket open-addressed hash table. An empty
// slot is marked by recordOffset == 0, which is safe because record offset
// 0 always falls inside the header and can never be a real record start.
type hashSlot struct {
	hash         uint64
	recordOffset uint64
}

func (s hashSlot) encode(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:8], s.hash)
	binary.LittleEndian.PutUint64(buf[8:16], s.recordOffset)
}

func decodeHashSlot(buf []byte) hashSlot {
	return hashSlot{
		hash:         binary.LittleEndian.Uint64(buf[0:8]),
		recordOffset: binary.LittleEndian.Uint64(buf[8:16]),
	}
}

// recordHeaderSize is the size of the (keyLen, valueLen) prefix preceding
// every record's key and value bytes.
const recordHeaderSize = 16
