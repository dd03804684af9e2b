// Package indexcache is a persistent, on-disk cache of full-scanned
// directory trees, so that a resource-loading pipeline which reopens
// the same large archive across process runs can skip re-parsing its
// directory structure. It is purely an optimization: a cache miss (or
// no cache at all) produces identical behavior, just slower.
package indexcache

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/pebble/v2"

	"github.com/ds-sloth/mbediso/internal/isofs"
)

// sampleSize is how much of the archive's head is hashed into the cache
// key, alongside its path, size, and modification time. It is not a
// security boundary, only a defense against silently serving a stale
// tree for a path that got truncated or replaced with different
// content of the same size and mtime.
const sampleSize = 4096

// Cache wraps a pebble key-value store holding gob-encoded directory
// snapshots.
type Cache struct {
	db *pebble.DB
}

// Open opens (creating if necessary) a persistent cache rooted at dir.
func Open(dir string) (*Cache, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("indexcache: open %s: %w", dir, err)
	}
	return &Cache{db: db}, nil
}

// Close closes the underlying store.
func (c *Cache) Close() error { return c.db.Close() }

// Fingerprint computes the cache key for archivePath: an xxhash of the
// path string, the file's current size, its modification time, and an
// xxhash of its leading sampleSize bytes, concatenated as four big-endian
// 64-bit values, so a reused path whose content has since changed does
// not hit a stale entry.
func Fingerprint(archivePath string) ([]byte, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	sample := make([]byte, sampleSize)
	n, err := io.ReadFull(f, sample)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	sample = sample[:n]

	pathDigest := xxhash.Sum64String(archivePath)
	sampleDigest := xxhash.Sum64(sample)

	key := make([]byte, 0, 32)
	key = binary.BigEndian.AppendUint64(key, pathDigest)
	key = binary.BigEndian.AppendUint64(key, uint64(info.Size()))
	key = binary.BigEndian.AppendUint64(key, uint64(info.ModTime().UnixNano()))
	key = binary.BigEndian.AppendUint64(key, sampleDigest)
	return key, nil
}

// entry is the gob-encoded value stored per key.
type entry struct {
	Root  isofs.Location
	Dirs  []isofs.Snapshot
}

// Load looks up a previously saved tree for key.
func (c *Cache) Load(key []byte) (root isofs.Location, snaps []isofs.Snapshot, ok bool, err error) {
	val, closer, err := c.db.Get(key)
	if err == pebble.ErrNotFound {
		return isofs.Location{}, nil, false, nil
	}
	if err != nil {
		return isofs.Location{}, nil, false, fmt.Errorf("indexcache: get: %w", err)
	}
	defer closer.Close()

	var e entry
	if err := gob.NewDecoder(bytes.NewReader(val)).Decode(&e); err != nil {
		return isofs.Location{}, nil, false, fmt.Errorf("indexcache: decode: %w", err)
	}
	return e.Root, e.Dirs, true, nil
}

// Save stores a full-scanned tree under key.
func (c *Cache) Save(key []byte, root isofs.Location, snaps []isofs.Snapshot) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entry{Root: root, Dirs: snaps}); err != nil {
		return fmt.Errorf("indexcache: encode: %w", err)
	}
	if err := c.db.Set(key, buf.Bytes(), pebble.Sync); err != nil {
		return fmt.Errorf("indexcache: set: %w", err)
	}
	return nil
}
