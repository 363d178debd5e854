package roottx

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/ar-io/gateway-dataplane/pkg/cdb64"
)

// Builder accumulates (key, Record) pairs and partitions them into one
// CDB64 shard per 2-hex-char key prefix, producing a manifest describing
// the resulting shard set (§4.A/§4.B).
type Builder struct {
	dir     string
	writers map[string]*cdb64.Writer
	counts  map[string]int
}

// NewBuilder prepares a Builder writing shards under dir. The directory
// must already exist.
func NewBuilder(dir string) *Builder {
	return &Builder{
		dir:     dir,
		writers: make(map[string]*cdb64.Writer),
		counts:  make(map[string]int),
	}
}

// Add encodes rec as MessagePack and appends it to the shard for key's
// partition prefix, opening that shard's writer on first use.
func (b *Builder) Add(key []byte, rec Record) error {
	prefix := cdb64.GetPartitionPrefix(key)

	w, ok := b.writers[prefix]
	if !ok {
		path := filepath.Join(b.dir, prefix+".cdb")
		var err error
		w, err = cdb64.Create(path)
		if err != nil {
			return fmt.Errorf("roottx: open shard %s: %w", prefix, err)
		}
		b.writers[prefix] = w
	}

	val, err := msgpack.Marshal(rec)
	if err != nil {
		return fmt.Errorf("roottx: marshal record: %w", err)
	}

	if err := w.Add(key, val); err != nil {
		return fmt.Errorf("roottx: add to shard %s: %w", prefix, err)
	}
	b.counts[prefix]++
	return nil
}

// Finalize finalizes every open shard writer and returns the resulting
// manifest. It does not write manifest.json to disk; call
// cdb64.SerializeManifest and write it where the caller wants it.
func (b *Builder) Finalize() (*cdb64.Manifest, error) {
	prefixes := make([]string, 0, len(b.writers))
	for p := range b.writers {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)

	m := cdb64.CreateEmptyManifest(nil)
	m.CreatedAt = time.Now().UTC().Format(time.RFC3339)

	for _, prefix := range prefixes {
		w := b.writers[prefix]
		if err := w.Finalize(); err != nil {
			return nil, fmt.Errorf("roottx: finalize shard %s: %w", prefix, err)
		}

		path := filepath.Join(b.dir, prefix+".cdb")
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("roottx: stat shard %s: %w", prefix, err)
		}

		checksum, err := fileSHA256(path)
		if err != nil {
			return nil, fmt.Errorf("roottx: checksum shard %s: %w", prefix, err)
		}

		count := b.counts[prefix]
		m.Partitions = append(m.Partitions, cdb64.Partition{
			Prefix: prefix,
			Location: cdb64.Location{
				Type:     cdb64.LocationFile,
				Filename: prefix + ".cdb",
			},
			RecordCount: count,
			Size:        info.Size(),
			SHA256:      checksum,
		})
		m.TotalRecords += count
	}

	if !cdb64.ValidateManifest(m) {
		return nil, fmt.Errorf("roottx: built an invalid manifest")
	}
	return m, nil
}

// fileSHA256 returns the lowercase-hex SHA-256 digest of the file at path,
// streaming it rather than loading the whole shard into memory.
func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
