package mbediso

import (
	"io"
	"io/fs"

	"github.com/ds-sloth/mbediso/internal/isofs"
)

// Dir is an open directory handle, mirroring opendir()/readdir()/
// closedir(). It also implements fs.ReadDirFile so *FS.Open can return
// it directly for a directory path.
type Dir struct {
	fsys   *FS
	name   string
	fi     fileInfo
	dir    *isofs.Directory
	cursor int
}

func newDir(fsys *FS, name string, fi fileInfo) (*Dir, error) {
	dir, err := fsys.engine.EnsureDirectoryLoaded(fi.loc)
	if err != nil {
		return nil, err
	}
	return &Dir{fsys: fsys, name: name, fi: fi, dir: dir}, nil
}

func (d *Dir) Stat() (fs.FileInfo, error) { return d.fi, nil }
func (d *Dir) Close() error               { return nil }
func (d *Dir) Read([]byte) (int, error)   { return 0, &fs.PathError{Op: "read", Path: d.name, Err: fs.ErrInvalid} }

// Next returns the next entry (name and kind), or (nil, false, nil) at
// the end of the directory, mirroring readdir()'s null-at-end return.
func (d *Dir) Next() (entry *DirEntry, ok bool, err error) {
	if d.cursor >= d.dir.Len() {
		return nil, false, nil
	}
	i := d.cursor
	d.cursor++

	name, err := d.dir.Name(i)
	if err != nil {
		return nil, false, err
	}
	loc := d.dir.Location(i)

	kind := KindRegular
	if loc.Directory {
		kind = KindDirectory
	}
	return &DirEntry{Name: name, Kind: kind}, true, nil
}

// DirEntry is one child returned by Dir.Next.
type DirEntry struct {
	Name string
	Kind Kind
}

// ReadDir implements fs.ReadDirFile. n <= 0 reads every remaining entry;
// n > 0 reads at most n and returns io.EOF once exhausted, per the
// fs.ReadDirFile contract.
func (d *Dir) ReadDir(n int) ([]fs.DirEntry, error) {
	var out []fs.DirEntry
	for n <= 0 || len(out) < n {
		e, ok, err := d.Next()
		if err != nil {
			return out, err
		}
		if !ok {
			if n > 0 {
				return out, io.EOF
			}
			return out, nil
		}
		loc := d.dir.Location(d.cursor - 1)
		out = append(out, dirEntry{fileInfo{name: e.Name, loc: loc, dev: d.fsys.dev}})
	}
	return out, nil
}
