// Package datacache implements the read-through data cache described in
// §4.F: a streaming cache that serves from a content-addressed store on a
// hit, and on a miss tees the upstream stream to both the caller and a
// streaming SHA-256 fingerprint so the bytes become the store's own key.
package datacache

import (
	"context"
	"crypto/sha256"
	"hash"
	"io"

	"github.com/rs/zerolog"

	"github.com/ar-io/gateway-dataplane/pkg/logging"
)

// Attributes describes what is known about a cached item. Verified is set
// only when the value was actually served from the store (a cache hit).
type Attributes struct {
	Hash        []byte
	DataSize    uint64
	ContentType string
	Verified    bool
}

// AttributeSource looks up and records attributes by id, external to this
// cache (e.g. a database or remote index).
type AttributeSource interface {
	GetAttributes(ctx context.Context, id string) (Attributes, bool, error)
	SetAttributes(ctx context.Context, id string, attrs Attributes) error
}

// DataSource is the upstream, consulted only on a cache miss.
type DataSource interface {
	GetData(ctx context.Context, id string) (io.ReadCloser, error)
}

// WriteHandle stages a cache write. Finalize commits it under hash as the
// content-addressed key; Discard abandons a partially written entry so it
// never becomes visible under any key.
type WriteHandle interface {
	io.Writer
	Finalize(hash []byte) error
	Discard() error
}

// Store is the content-addressed backing store.
type Store interface {
	Get(hash []byte) (io.ReadCloser, bool, error)
	NewWriteHandle() (WriteHandle, error)
}

// Cache wires an AttributeSource, a DataSource, and a Store into the §4.F
// read-through pattern.
type Cache struct {
	attrs AttributeSource
	data  DataSource
	store Store
	log   zerolog.Logger
}

// New constructs a Cache.
func New(attrs AttributeSource, data DataSource, store Store) *Cache {
	return &Cache{attrs: attrs, data: data, store: store, log: logging.Component("datacache")}
}

// GetData implements §4.F's getData(id). On a store hit it returns the
// cached bytes with Verified set. On a miss it returns the upstream
// stream immediately; the cache write (store + fingerprint + attribute
// persist) happens on a detached background goroutine tee'd off that same
// stream, so the consumer never blocks on the cache write completing.
func (c *Cache) GetData(ctx context.Context, id string) (io.ReadCloser, Attributes, error) {
	attrs, ok, err := c.attrs.GetAttributes(ctx, id)
	if err != nil {
		return nil, Attributes{}, err
	}

	if ok && len(attrs.Hash) > 0 {
		rc, found, err := c.store.Get(attrs.Hash)
		if err != nil {
			return nil, Attributes{}, err
		}
		if found {
			attrs.Verified = true
			return rc, attrs, nil
		}
	}

	source, err := c.data.GetData(ctx, id)
	if err != nil {
		return nil, Attributes{}, err
	}

	wh, err := c.store.NewWriteHandle()
	if err != nil {
		source.Close()
		return nil, Attributes{}, err
	}

	pr, pw := io.Pipe()
	hasher := sha256.New()
	contentType := attrs.ContentType

	go c.writeback(source, wh, pw, hasher, id, contentType)

	return pr, Attributes{ContentType: contentType}, nil
}

// writeback performs the tee'd copy and, on success, persists the new
// attribute record keyed by the computed digest. It runs detached from
// any caller context: a caller's cancellation must not truncate the
// cache write or corrupt the persisted entry (§5 "background tasks are
// not cancelled by caller abort").
func (c *Cache) writeback(source io.ReadCloser, wh WriteHandle, pw *io.PipeWriter, hasher hash.Hash, id, contentType string) {
	defer source.Close()

	n, err := io.Copy(io.MultiWriter(pw, wh, hasher), source)
	if err != nil {
		wh.Discard()
		pw.CloseWithError(err)
		c.log.Warn().Str("id", id).Err(err).Msg("read-through cache source stream failed, discarding partial write")
		return
	}
	pw.Close()

	digest := hasher.Sum(nil)
	if err := wh.Finalize(digest); err != nil {
		c.log.Warn().Str("id", id).Err(err).Msg("read-through cache store finalize failed")
		return
	}

	newAttrs := Attributes{Hash: digest, DataSize: uint64(n), ContentType: contentType}
	if err := c.attrs.SetAttributes(context.Background(), id, newAttrs); err != nil {
		c.log.Warn().Str("id", id).Err(err).Msg("read-through cache attribute persist failed")
	}
}
