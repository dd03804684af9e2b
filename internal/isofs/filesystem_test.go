package isofs

import (
	"os"
	"testing"
)

func TestNormalizePath(t *testing.T) {
	cases := []struct {
		in      string
		want    []string
		wantErr bool
	}{
		{"", nil, false},
		{".", nil, false},
		{"a/b/c", []string{"a", "b", "c"}, false},
		{"a/./b", []string{"a", "b"}, false},
		{"a/b/../c", []string{"a", "c"}, false},
		{"../a", nil, true},
		{"a/../../b", nil, true},
	}
	for _, c := range cases {
		got, err := normalizePath(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("normalizePath(%q): expected error, got %v", c.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("normalizePath(%q): unexpected error: %v", c.in, err)
			continue
		}
		if len(got) != len(c.want) {
			t.Errorf("normalizePath(%q) = %v, want %v", c.in, got, c.want)
			continue
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Errorf("normalizePath(%q) = %v, want %v", c.in, got, c.want)
				break
			}
		}
	}
}

func TestNormalizePathTooManySegments(t *testing.T) {
	path := ""
	for i := 0; i < maxPathSegments+1; i++ {
		path += "a/"
	}
	if _, err := normalizePath(path); err == nil {
		t.Fatalf("expected error for path exceeding %d segments", maxPathSegments)
	}
}

// buildTestImage writes a minimal uncompressed ISO image (no LZ4 sidecar) to
// a temp file: a Joliet SVD at sector 16 whose root (sector 20) contains one
// file and one subdirectory "sub" (sector 21), which in turn contains one
// file "inner.txt".
func buildTestImage(t *testing.T) string {
	t.Helper()

	root := dotRecord(0x00)
	setExtentLen(root, 20, sectorSize)
	root[25] = flagDirectory

	img := make([]byte, 22*sectorSize)
	copy(img[16*sectorSize:], buildJolietSVD(root))

	term := make([]byte, sectorSize)
	term[0] = 255
	copy(term[1:6], "CD001")
	copy(img[17*sectorSize:], term)

	rootSector := packSector(
		dotRecord(0x00),
		dotRecord(0x01),
		buildRecord("top.txt", false, 50, 123),
		buildRecord("sub", true, 21, sectorSize),
	)
	copy(img[20*sectorSize:], rootSector)

	subSector := packSector(
		dotRecord(0x00),
		dotRecord(0x01),
		buildRecord("inner.txt", false, 60, 77),
	)
	copy(img[21*sectorSize:], subSector)

	f, err := os.CreateTemp(t.TempDir(), "image-*.iso")
	if err != nil {
		t.Fatalf("create temp image: %v", err)
	}
	defer f.Close()
	if _, err := f.Write(img); err != nil {
		t.Fatalf("write temp image: %v", err)
	}
	return f.Name()
}

func setExtentLen(rec []byte, extent, length uint32) {
	putLE32(rec[2:6], extent)
	putLE32(rec[10:14], length)
}

func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func TestFilesystemOpenLookupAndFullScan(t *testing.T) {
	path := buildTestImage(t)

	fsys, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer fsys.Close()

	loc, err := fsys.Lookup("top.txt")
	if err != nil {
		t.Fatalf("Lookup(top.txt): %v", err)
	}
	if loc.Sector != 50 || loc.Length != 123 {
		t.Fatalf("unexpected location for top.txt: %+v", loc)
	}

	loc, err = fsys.Lookup("sub/inner.txt")
	if err != nil {
		t.Fatalf("Lookup(sub/inner.txt): %v", err)
	}
	if loc.Sector != 60 || loc.Length != 77 {
		t.Fatalf("unexpected location for sub/inner.txt: %+v", loc)
	}

	if _, err := fsys.Lookup("sub/missing.txt"); err == nil {
		t.Fatalf("expected error looking up missing file")
	}

	if fsys.FullyScanned() {
		t.Fatalf("expected FullyScanned() to be false before FullScan")
	}
	if err := fsys.FullScan(); err != nil {
		t.Fatalf("FullScan: %v", err)
	}
	if !fsys.FullyScanned() {
		t.Fatalf("expected FullyScanned() to be true after FullScan")
	}

	root, snaps := fsys.Snapshot()
	if !root.Loaded() {
		t.Fatalf("expected root to be promoted after FullScan")
	}
	if len(snaps) < 2 {
		t.Fatalf("expected at least root+sub snapshots, got %d", len(snaps))
	}
}

func TestFilesystemOpenFromSnapshot(t *testing.T) {
	path := buildTestImage(t)

	orig, err := Open(path, Options{FullScan: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	root, snaps := orig.Snapshot()
	orig.Close()

	fsys, err := OpenFromSnapshot(path, Options{}, root, snaps)
	if err != nil {
		t.Fatalf("OpenFromSnapshot: %v", err)
	}
	defer fsys.Close()

	loc, err := fsys.Lookup("sub/inner.txt")
	if err != nil {
		t.Fatalf("Lookup(sub/inner.txt): %v", err)
	}
	if loc.Sector != 60 || loc.Length != 77 {
		t.Fatalf("unexpected location for sub/inner.txt: %+v", loc)
	}
}
