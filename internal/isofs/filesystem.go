package isofs

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/ds-sloth/mbediso/internal/ioadapter"
	"github.com/ds-sloth/mbediso/internal/lz4header"
	"github.com/ds-sloth/mbediso/internal/mbedisoerr"
)

// ErrNotFound and ErrNotDirectory, surfaced by Lookup, are aliases of
// the shared sentinels so callers can errors.Is against one identity
// regardless of which layer raised the failure.
var (
	ErrNotFound     = mbedisoerr.ErrNotFound
	ErrNotDirectory = mbedisoerr.ErrNotDirectory
)

// maxPathSegments bounds both path resolution and full-scan recursion
// depth, mirroring the fixed-size stack frames the original C reader
// uses for both.
const maxPathSegments = 16

// Options configures a Filesystem at construction time.
type Options struct {
	FullScan bool
	Logger   *slog.Logger
}

// Filesystem is the open archive: the on-disk/in-memory directory array,
// a pool of I/O handles, and the Joliet root location.
type Filesystem struct {
	archivePath string
	header      *lz4header.Header
	logger      *slog.Logger

	ioMu   sync.Mutex
	ioPool []ioadapter.IO

	lookupMu     sync.Mutex
	directories  []*Directory
	root         Location
	fullyScanned bool
}

// Open opens the archive at path, detects the optional LZ4 container
// (lz4header.Load returns nil, nil for a plain ISO image), and locates
// the Joliet root directory. If opts.FullScan is set the entire tree is
// read and promoted before Open returns.
func Open(path string, opts Options) (*Filesystem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	header, err := lz4header.Load(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("isofs: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	fsys := &Filesystem{archivePath: path, header: header, logger: logger}
	fsys.releaseIO(ioadapter.Open(f, header))

	root, err := fsys.withIO(func(ioh ioadapter.IO) (Location, error) {
		return findJolietRoot(ioh)
	})
	if err != nil {
		fsys.Close()
		return nil, err
	}
	fsys.root = root

	if opts.FullScan {
		if err := fsys.FullScan(); err != nil {
			fsys.Close()
			return nil, err
		}
	}

	return fsys, nil
}

// Close releases every pooled I/O handle. Handles still reserved at the
// time of the call (by a File, Lookup or FullScan) are not closed; one
// returned afterwards goes back into the pool and stays open.
func (fsys *Filesystem) Close() error {
	fsys.ioMu.Lock()
	defer fsys.ioMu.Unlock()
	var firstErr error
	for _, h := range fsys.ioPool {
		if err := h.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	fsys.ioPool = nil
	return firstErr
}

// Root returns the filesystem's root Location.
func (fsys *Filesystem) Root() Location { return fsys.root }

// OpenFromSnapshot reopens path the way Open does (detecting the LZ4
// sidecar, establishing the I/O pool) but seeds the directory tree from
// a previously captured Snapshot array instead of scanning the disc,
// for the persistent index cache.
func OpenFromSnapshot(path string, opts Options, root Location, snaps []Snapshot) (*Filesystem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	header, err := lz4header.Load(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("isofs: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	fsys := &Filesystem{archivePath: path, header: header, logger: logger}
	fsys.releaseIO(ioadapter.Open(f, header))

	fsys.directories = make([]*Directory, len(snaps))
	for i, s := range snaps {
		fsys.directories[i] = FromSnapshot(s)
	}
	fsys.root = root
	fsys.fullyScanned = true

	return fsys, nil
}

// EnsureDirectoryLoaded returns the Directory for loc, loading and
// registering it first if it is still an on-disk extent. Used by
// callers (the public Dir handle) that were handed a Location directly
// rather than via Lookup.
func (fsys *Filesystem) EnsureDirectoryLoaded(loc Location) (*Directory, error) {
	fsys.lookupMu.Lock()
	if loc.Loaded() {
		d := fsys.directories[loc.Sector]
		fsys.lookupMu.Unlock()
		return d, nil
	}
	fsys.lookupMu.Unlock()

	ioh, err := fsys.reserveIO()
	if err != nil {
		return nil, err
	}
	defer fsys.releaseIO(ioh)

	dir, err := LoadDirectory(ioh, loc)
	if err != nil {
		return nil, err
	}

	fsys.lookupMu.Lock()
	fsys.directories = append(fsys.directories, dir)
	fsys.lookupMu.Unlock()
	return dir, nil
}

// Snapshot captures every loaded directory for the persistent index
// cache. It is only meaningful after FullScan has completed (otherwise
// some Locations in the tree are still on-disk extents, and the
// snapshot would not eliminate a re-read on the next open).
func (fsys *Filesystem) Snapshot() (root Location, snaps []Snapshot) {
	fsys.lookupMu.Lock()
	defer fsys.lookupMu.Unlock()
	snaps = make([]Snapshot, len(fsys.directories))
	for i, d := range fsys.directories {
		snaps[i] = d.Snapshot()
	}
	return fsys.root, snaps
}

// Directory returns the loaded directory at index idx (loc.Sector for a
// Loaded Location).
func (fsys *Filesystem) Directory(idx int) *Directory {
	fsys.lookupMu.Lock()
	defer fsys.lookupMu.Unlock()
	return fsys.directories[idx]
}

// ReserveIO and ReleaseIO expose the I/O pool to callers (the public
// File handle) that need to read file content directly.
func (fsys *Filesystem) ReserveIO() (ioadapter.IO, error) { return fsys.reserveIO() }
func (fsys *Filesystem) ReleaseIO(h ioadapter.IO)         { fsys.releaseIO(h) }

func (fsys *Filesystem) reserveIO() (ioadapter.IO, error) {
	fsys.ioMu.Lock()
	if n := len(fsys.ioPool); n > 0 {
		h := fsys.ioPool[n-1]
		fsys.ioPool = fsys.ioPool[:n-1]
		fsys.ioMu.Unlock()
		return h, nil
	}
	fsys.ioMu.Unlock()
	return fsys.openIO()
}

func (fsys *Filesystem) releaseIO(h ioadapter.IO) {
	fsys.ioMu.Lock()
	fsys.ioPool = append(fsys.ioPool, h)
	fsys.ioMu.Unlock()
}

func (fsys *Filesystem) openIO() (ioadapter.IO, error) {
	f, err := os.Open(fsys.archivePath)
	if err != nil {
		return nil, fmt.Errorf("isofs: open additional handle: %w", err)
	}
	return ioadapter.Open(f, fsys.header), nil
}

func (fsys *Filesystem) withIO(fn func(ioadapter.IO) (Location, error)) (Location, error) {
	ioh, err := fsys.reserveIO()
	if err != nil {
		return Location{}, err
	}
	defer fsys.releaseIO(ioh)
	return fn(ioh)
}

// normalizePath splits a slash-separated path into resolved segments,
// collapsing "." and cancelling the preceding segment on "..". A path
// that cancels past its own root, or that holds more than maxPathSegments
// components at any point while it is being resolved (before a later ".."
// cancels any of them), is rejected.
func normalizePath(path string) ([]string, error) {
	var segs []string
	for _, s := range strings.Split(path, "/") {
		switch s {
		case "", ".":
			continue
		case "..":
			if len(segs) == 0 {
				return nil, fmt.Errorf("isofs: %q: path escapes root", path)
			}
			segs = segs[:len(segs)-1]
		default:
			if len(segs) >= maxPathSegments {
				return nil, fmt.Errorf("isofs: %q: exceeds %d path segments", path, maxPathSegments)
			}
			segs = append(segs, s)
		}
	}
	return segs, nil
}

// ensureLoaded promotes *loc to a loaded directory if it isn't already,
// recording the new Directory in the filesystem's array.
func (fsys *Filesystem) ensureLoaded(ioh ioadapter.IO, loc *Location) (*Directory, error) {
	if loc.Loaded() {
		return fsys.directories[loc.Sector], nil
	}
	dir, err := LoadDirectory(ioh, *loc)
	if err != nil {
		return nil, err
	}
	idx := len(fsys.directories)
	fsys.directories = append(fsys.directories, dir)
	*loc = Location{Sector: uint32(idx), Directory: true}
	return dir, nil
}

// Lookup resolves path against the filesystem, promoting unloaded
// directories to loaded ones as it descends. Every promotion is written
// back into whatever referenced the promoted Location (the parent
// directory's child slot, or fsys.root for the root itself), so repeated
// lookups under the same subtree reuse the promoted Directory instead of
// re-reading and re-promoting it from disk each time. Once loading some
// directory fails, the remainder of the path resolves directly against
// disk without further promotion attempts. A lookup that has to read the
// disc and cannot reserve an I/O handle fails.
func (fsys *Filesystem) Lookup(path string) (Location, error) {
	segs, err := normalizePath(path)
	if err != nil {
		return Location{}, err
	}

	fsys.lookupMu.Lock()
	defer fsys.lookupMu.Unlock()

	cur := fsys.root
	writeBack := func(loc Location) { fsys.root = loc }

	var ioh ioadapter.IO
	diskMode := false
	defer func() {
		if ioh != nil {
			fsys.releaseIO(ioh)
		}
	}()

	// promote loads loc (which must describe cur) into a Directory,
	// records it, persists the promotion via writeBack, and advances cur.
	promote := func(loc Location) (*Directory, error) {
		dir, err := LoadDirectory(ioh, loc)
		if err != nil {
			return nil, err
		}
		idx := len(fsys.directories)
		fsys.directories = append(fsys.directories, dir)
		promoted := Location{Sector: uint32(idx), Directory: true}
		writeBack(promoted)
		cur = promoted
		return dir, nil
	}

	for _, seg := range segs {
		name := []byte(seg)

		if cur.Loaded() {
			d := fsys.directories[cur.Sector]
			idx, found := d.Lookup(name)
			if !found {
				return Location{}, fmt.Errorf("isofs: %q: %w", path, ErrNotFound)
			}
			cur = d.Location(idx)
			writeBack = func(loc Location) { d.locs[idx] = loc }
			continue
		}

		if !cur.Directory {
			return Location{}, fmt.Errorf("isofs: %q: %w", path, ErrNotDirectory)
		}

		if !diskMode {
			if ioh == nil {
				h, err := fsys.reserveIO()
				if err != nil {
					diskMode = true
				} else {
					ioh = h
				}
			}
		}

		if !diskMode {
			dir, err := promote(cur)
			if err != nil {
				fsys.logger.Warn("lookup: promoting directory failed, continuing on disk", "path", path, "error", err)
				diskMode = true
			} else {
				idx, ok := dir.Lookup(name)
				if !ok {
					return Location{}, fmt.Errorf("isofs: %q: %w", path, ErrNotFound)
				}
				cur = dir.Location(idx)
				writeBack = func(loc Location) { dir.locs[idx] = loc }
				continue
			}
		}

		if ioh == nil {
			h, err := fsys.reserveIO()
			if err != nil {
				return Location{}, fmt.Errorf("isofs: %q: no io handle available: %w", path, err)
			}
			ioh = h
		}
		next, found, err := LookupOnDisk(ioh, cur, name)
		if err != nil {
			return Location{}, fmt.Errorf("isofs: %q: %w", path, err)
		}
		if !found {
			return Location{}, fmt.Errorf("isofs: %q: %w", path, ErrNotFound)
		}
		cur = next
		// Disk-mode results aren't attached to any materialized Directory,
		// so a later promotion of cur has nowhere to write back to.
		writeBack = func(Location) {}
	}

	if !cur.Loaded() && cur.Directory {
		if ioh == nil {
			ioh, _ = fsys.reserveIO() // best effort: leave cur unloaded on failure
		}
		if ioh != nil {
			promote(cur) //nolint:errcheck // best effort: leave cur unloaded on failure
		}
	}

	return cur, nil
}

// scanFrame is one level of FullScan's explicit DFS stack.
type scanFrame struct {
	loc       Location
	childIdx  int
}

// FullScan loads every directory in the tree, promoting every directory
// Location it encounters so subsequent lookups never touch disk again.
// Recursion is iterative with a bound of maxPathSegments levels; a
// subtree deeper than that, or one that fails to load, is logged and
// skipped rather than aborting the whole scan.
func (fsys *Filesystem) FullScan() error {
	fsys.lookupMu.Lock()
	defer fsys.lookupMu.Unlock()

	ioh, err := fsys.reserveIO()
	if err != nil {
		return err
	}
	defer fsys.releaseIO(ioh)

	rootDir, err := fsys.ensureLoaded(ioh, &fsys.root)
	if err != nil {
		return fmt.Errorf("isofs: full scan: loading root: %w", err)
	}

	stack := []scanFrame{{loc: fsys.root}}
	_ = rootDir

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		d := fsys.directories[top.loc.Sector]

		if top.childIdx >= d.Len() {
			stack = stack[:len(stack)-1]
			continue
		}

		childIdx := top.childIdx
		top.childIdx++

		childLoc := d.Location(childIdx)
		if !childLoc.Directory {
			continue
		}

		if len(stack) >= maxPathSegments {
			fsys.logger.Warn("full scan: directory nesting too deep, skipping subtree", "depth", len(stack))
			continue
		}

		if childLoc.Loaded() {
			stack = append(stack, scanFrame{loc: childLoc})
			continue
		}

		child, err := LoadDirectory(ioh, childLoc)
		if err != nil {
			fsys.logger.Warn("full scan: skipping unreadable subtree", "error", err)
			continue
		}

		newIdx := len(fsys.directories)
		fsys.directories = append(fsys.directories, child)
		newLoc := Location{Sector: uint32(newIdx), Directory: true}
		d.locs[childIdx] = newLoc

		stack = append(stack, scanFrame{loc: newLoc})
	}

	fsys.fullyScanned = true
	return nil
}

// FullyScanned reports whether FullScan has completed successfully.
func (fsys *Filesystem) FullyScanned() bool {
	fsys.lookupMu.Lock()
	defer fsys.lookupMu.Unlock()
	return fsys.fullyScanned
}
