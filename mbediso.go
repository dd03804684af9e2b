// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package mbediso reads ISO 9660 discs with Joliet extensions as a
// read-only filesystem, transparently unwrapping the optional
// LZ4-block-indexed container format used to ship them inside resource
// pipelines. See FS for the entry point.
package mbediso

import (
	"log/slog"

	"github.com/ds-sloth/mbediso/internal/isofs"
	"github.com/ds-sloth/mbediso/internal/mbedisoerr"
)

// Sentinel errors. Use errors.Is to test for these; Open/Stat/ReadDir
// wrap them in *fs.PathError per the io/fs convention.
var (
	ErrMalformed    = mbedisoerr.ErrMalformed
	ErrNotFound     = mbedisoerr.ErrNotFound
	ErrNotDirectory = mbedisoerr.ErrNotDirectory
	ErrClosed       = mbedisoerr.ErrClosed
)

// Option configures OpenFS.
type Option func(*options)

type options struct {
	fullScan       bool
	logger         *slog.Logger
	indexCacheDir  string
}

// WithFullScan eagerly reads and promotes the whole directory tree
// during OpenFS, instead of resolving directories lazily on first
// lookup. Pair with WithIndexCache to amortize the scan across process
// runs against the same archive.
func WithFullScan() Option {
	return func(o *options) { o.fullScan = true }
}

// WithLogger overrides the default (slog.Default()) logger used for
// non-fatal warnings: subtrees skipped during a full scan because they
// are unreadable or nest deeper than the supported bound, and directories
// a lookup failed to load before continuing on disk. Re-sorting a
// directory found unsorted on disc is not logged.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithIndexCache enables a persistent, on-disk cache (rooted at dir) of
// full-scanned directory trees, keyed by archive path, size, mtime, and
// a content sample. Only takes effect together with WithFullScan.
func WithIndexCache(dir string) Option {
	return func(o *options) { o.indexCacheDir = dir }
}

func resolveOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

func isofsOptions(o options) isofs.Options {
	return isofs.Options{FullScan: o.fullScan, Logger: o.logger}
}
