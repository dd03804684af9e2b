package mbediso

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/ds-sloth/mbediso/internal/indexcache"
	"github.com/ds-sloth/mbediso/internal/isofs"
)

// mirrorPath strips a leading "/" so the opendir()/fopen()/exists() mirror
// accepts root-relative absolute paths per spec (e.g. "/HELLO.TXT"), unlike
// the stricter io/fs.FS methods, which require fs.ValidPath's slash-free
// form and are left alone.
func mirrorPath(name string) string {
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return "."
	}
	return name
}

// FS is an open archive. It implements io/fs.FS, io/fs.ReadDirFS, and
// io/fs.StatFS, and additionally exposes the handle-oriented API
// (OpenDir/OpenFile/Exists) that mirrors the original open/opendir/
// fopen/exists family.
type FS struct {
	engine *isofs.Filesystem
	cache  *indexcache.Cache
	dev    uint64
}

// Kind classifies what a path names, the way exists() does: zero value
// means the path does not exist.
type Kind int

const (
	KindNone Kind = iota
	KindRegular
	KindDirectory
)

// OpenFS opens the archive at archivePath, detecting the optional
// LZ4-wrapped container automatically, and locates its Joliet root.
func OpenFS(archivePath string, opts ...Option) (*FS, error) {
	o := resolveOptions(opts)

	var cache *indexcache.Cache
	var cacheKey []byte
	var engine *isofs.Filesystem

	if o.fullScan && o.indexCacheDir != "" {
		c, err := indexcache.Open(o.indexCacheDir)
		if err != nil {
			o.logger.Warn("mbediso: index cache unavailable", "dir", o.indexCacheDir, "error", err)
		} else {
			cache = c
			if key, err := indexcache.Fingerprint(archivePath); err != nil {
				o.logger.Warn("mbediso: index cache fingerprint failed", "error", err)
			} else {
				cacheKey = key
				if root, snaps, ok, err := cache.Load(key); err != nil {
					o.logger.Warn("mbediso: index cache load failed", "error", err)
				} else if ok {
					if e, err := isofs.OpenFromSnapshot(archivePath, isofsOptions(o), root, snaps); err == nil {
						engine = e
					} else {
						o.logger.Warn("mbediso: index cache snapshot rejected", "error", err)
					}
				}
			}
		}
	}

	if engine == nil {
		e, err := isofs.Open(archivePath, isofsOptions(o))
		if err != nil {
			if cache != nil {
				cache.Close()
			}
			return nil, err
		}
		engine = e

		if cache != nil && cacheKey != nil {
			root, snaps := engine.Snapshot()
			if err := cache.Save(cacheKey, root, snaps); err != nil {
				o.logger.Warn("mbediso: index cache save failed", "error", err)
			}
		}
	}

	dev, _ := deviceID(archivePath)
	return &FS{engine: engine, cache: cache, dev: dev}, nil
}

// Close releases every I/O handle and, if enabled, the index cache.
func (fsys *FS) Close() error {
	err := fsys.engine.Close()
	if fsys.cache != nil {
		if cerr := fsys.cache.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func (fsys *FS) stat(name string) (fileInfo, error) {
	loc, err := fsys.engine.Lookup(name)
	if err != nil {
		return fileInfo{}, translate(err)
	}
	return fileInfo{name: path.Base(name), loc: loc, dev: fsys.dev}, nil
}

// translate maps the isofs-layer sentinel errors onto fs.ErrNotExist /
// fs.ErrInvalid, so callers of the io/fs surface get the errors that
// surface expects in addition to errors.Is(err, mbediso.ErrNotFound).
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return fmt.Errorf("%w: %w", fs.ErrNotExist, err)
	case errors.Is(err, ErrNotDirectory):
		return fmt.Errorf("%w: %w", fs.ErrInvalid, err)
	default:
		return err
	}
}

// Open implements io/fs.FS.
func (fsys *FS) Open(name string) (f fs.File, err error) {
	defer func() {
		if err != nil {
			err = &fs.PathError{Op: "open", Path: name, Err: err}
		}
	}()

	if !fs.ValidPath(name) {
		return nil, fs.ErrInvalid
	}

	fi, err := fsys.stat(name)
	if err != nil {
		return nil, err
	}

	if fi.IsDir() {
		return newDir(fsys, name, fi)
	}
	return newFile(fsys, fi)
}

// Stat implements io/fs.StatFS.
func (fsys *FS) Stat(name string) (fi fs.FileInfo, err error) {
	defer func() {
		if err != nil {
			err = &fs.PathError{Op: "stat", Path: name, Err: err}
		}
	}()

	if !fs.ValidPath(name) {
		return nil, fs.ErrInvalid
	}
	return fsys.stat(name)
}

// ReadDir implements io/fs.ReadDirFS.
func (fsys *FS) ReadDir(name string) ([]fs.DirEntry, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrInvalid}
	}
	d, err := fsys.OpenDir(name)
	if err != nil {
		return nil, err
	}
	defer d.Close()
	return d.ReadDir(-1)
}

// OpenDir opens name as a directory handle, mirroring opendir().
func (fsys *FS) OpenDir(name string) (d *Dir, err error) {
	defer func() {
		if err != nil {
			err = &fs.PathError{Op: "opendir", Path: name, Err: err}
		}
	}()

	clean := mirrorPath(name)
	if !fs.ValidPath(clean) {
		return nil, fs.ErrInvalid
	}

	fi, err := fsys.stat(clean)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, ErrNotDirectory
	}
	return newDir(fsys, clean, fi)
}

// OpenFile opens name as a regular-file handle, mirroring fopen().
func (fsys *FS) OpenFile(name string) (file *File, err error) {
	defer func() {
		if err != nil {
			err = &fs.PathError{Op: "fopen", Path: name, Err: err}
		}
	}()

	clean := mirrorPath(name)
	if !fs.ValidPath(clean) {
		return nil, fs.ErrInvalid
	}

	fi, err := fsys.stat(clean)
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("mbediso: %s: is a directory", name)
	}
	return newFile(fsys, fi)
}

// Exists classifies what name names, without returning an error for a
// missing path (mirroring exists()).
func (fsys *FS) Exists(name string) Kind {
	clean := mirrorPath(name)
	if !fs.ValidPath(clean) {
		return KindNone
	}
	fi, err := fsys.stat(clean)
	if err != nil {
		return KindNone
	}
	if fi.IsDir() {
		return KindDirectory
	}
	return KindRegular
}
