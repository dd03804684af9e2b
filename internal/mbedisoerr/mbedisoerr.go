// Package mbedisoerr declares the sentinel errors shared across the
// internal packages and re-exported at the public boundary, so that a
// caller can errors.Is against one identity regardless of which layer
// (container parsing, directory reading, path resolution) raised it.
package mbedisoerr

import "errors"

var (
	// ErrMalformed means the archive (or its LZ4 sidecar) violates the
	// container or ISO 9660/Joliet format in a way that cannot be
	// tolerated.
	ErrMalformed = errors.New("mbediso: malformed archive")

	// ErrNotFound means a path segment does not exist in its parent
	// directory.
	ErrNotFound = errors.New("mbediso: no such file or directory")

	// ErrNotDirectory means a path segment that must be a directory
	// (because more segments follow it) is a plain file.
	ErrNotDirectory = errors.New("mbediso: not a directory")

	// ErrClosed means an operation was attempted on a handle that has
	// already been closed.
	ErrClosed = errors.New("mbediso: handle is closed")
)
