package mbediso

import (
	"io/fs"
	"time"

	"github.com/ds-sloth/mbediso/internal/isofs"
)

// Sys is the value FileInfo.Sys() returns: the device number of the file
// holding the archive and the entry's sector, following the teacher's
// device+inode convention for files backed by something other than a
// real inode. Entries of archives stored on the same device, or of one
// archive opened twice, can carry equal Sys values.
type Sys struct {
	Device uint64 // 0 if unavailable (non-unix, or stat failed)
	Sector uint32
}

// fileInfo implements fs.FileInfo for one directory entry. Timestamps
// are not surfaced (ISO 9660 recording dates are not modeled); ModTime
// always reports the zero time.
type fileInfo struct {
	name string
	loc  isofs.Location
	dev  uint64
}

func (fi fileInfo) Name() string { return fi.name }
func (fi fileInfo) Size() int64  { return int64(fi.loc.Length) }
func (fi fileInfo) Mode() fs.FileMode {
	if fi.loc.Directory {
		return fs.ModeDir | 0o555
	}
	return 0o444
}
func (fi fileInfo) ModTime() time.Time { return time.Time{} }
func (fi fileInfo) IsDir() bool        { return fi.loc.Directory }
func (fi fileInfo) Sys() any           { return Sys{Device: fi.dev, Sector: fi.loc.Sector} }

// dirEntry implements fs.DirEntry over the same fields as fileInfo.
type dirEntry struct{ fi fileInfo }

func (e dirEntry) Name() string               { return e.fi.name }
func (e dirEntry) IsDir() bool                { return e.fi.IsDir() }
func (e dirEntry) Type() fs.FileMode          { return e.fi.Mode().Type() }
func (e dirEntry) Info() (fs.FileInfo, error) { return e.fi, nil }
