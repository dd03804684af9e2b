package mbediso

import (
	"fmt"
	"io"
	"io/fs"

	"github.com/ds-sloth/mbediso/internal/ioadapter"
)

const sectorBytes = 2048

// File is an open regular-file handle, mirroring fopen()/fread()/
// fseek()/fsize()/fclose(). It also implements io.ReaderAt and
// io.Seeker so it composes with the wider io ecosystem, and fs.File so
// *FS.Open can return it directly.
type File struct {
	fsys   *FS
	fi     fileInfo
	ioh    ioadapter.IO
	start  uint64
	size   int64
	offset int64
	closed bool
}

func newFile(fsys *FS, fi fileInfo) (*File, error) {
	ioh, err := fsys.engine.ReserveIO()
	if err != nil {
		return nil, err
	}
	return &File{
		fsys:  fsys,
		fi:    fi,
		ioh:   ioh,
		start: uint64(fi.loc.Sector) * sectorBytes,
		size:  int64(fi.loc.Length),
	}, nil
}

func (f *File) Stat() (fs.FileInfo, error) { return f.fi, nil }

// Size returns the file's byte length, mirroring fsize().
func (f *File) Size() int64 { return f.size }

func (f *File) Close() error {
	if f.closed {
		return ErrClosed
	}
	f.closed = true
	f.fsys.engine.ReleaseIO(f.ioh)
	return nil
}

func (f *File) Read(p []byte) (int, error) {
	n, err := f.ReadAt(p, f.offset)
	f.offset += int64(n)
	return n, err
}

// ReadAt implements io.ReaderAt, clamped to the file's extent the way
// fread() clamps its requested byte count to end-(start+offset).
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	if f.closed {
		return 0, ErrClosed
	}
	if off < 0 {
		return 0, fmt.Errorf("mbediso: negative ReadAt offset")
	}
	if off >= f.size {
		return 0, io.EOF
	}

	want := p
	if remaining := f.size - off; int64(len(want)) > remaining {
		want = want[:remaining]
	}
	if len(want) == 0 {
		return 0, nil
	}

	n, err := f.ioh.ReadDirect(want, f.start+uint64(off))
	if err != nil {
		return n, err
	}
	if n < len(want) {
		return n, io.ErrUnexpectedEOF
	}
	return n, nil
}

// Seek implements io.Seeker, validating the resulting absolute offset
// against [0, Size()] for all three origins, mirroring fseek().
func (f *File) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = f.offset + offset
	case io.SeekEnd:
		abs = f.size + offset
	default:
		return 0, fmt.Errorf("mbediso: invalid whence %d", whence)
	}
	if abs < 0 || abs > f.size {
		return 0, fmt.Errorf("mbediso: seek offset %d out of range [0,%d]", abs, f.size)
	}
	f.offset = abs
	return abs, nil
}
