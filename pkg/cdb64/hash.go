package cdb64

// cdbHash computes the classic djb constant-database hash, xor variant:
// h = 5381; h = ((h<<5)+h) ^ b for every key byte, taken mod 2^64. Go's
// uint64 arithmetic wraps on overflow, which is exactly the mod-2^64
// behavior the format requires.
func cdbHash(key []byte) uint64 {
	var h uint64 = 5381
	for _, b := range key {
		h = ((h << 5) + h) ^ uint64(b)
	}
	return h
}

// tableIndex returns which of the 256 header slots a key's hash routes to.
func tableIndex(h uint64) int {
	return int(h & 0xFF)
}

// probeStart returns the first slot to examine within a key's hash table.
func probeStart(h uint64, tableLen uint64) uint64 {
	if tableLen == 0 {
		return 0
	}
	return (h >> 8) % tableLen
}
