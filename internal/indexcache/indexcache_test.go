package indexcache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ds-sloth/mbediso/internal/isofs"
)

func writeSampleFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestFingerprintDeterministic(t *testing.T) {
	path := writeSampleFile(t, "a.iso", []byte("some archive bytes"))

	k1, err := Fingerprint(path)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	k2, err := Fingerprint(path)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	if string(k1) != string(k2) {
		t.Fatalf("Fingerprint not deterministic for the same unmodified file")
	}
}

func TestFingerprintDiffersOnContent(t *testing.T) {
	pathA := writeSampleFile(t, "a.iso", []byte("archive contents one"))
	pathB := writeSampleFile(t, "b.iso", []byte("archive contents two, different"))

	kA, err := Fingerprint(pathA)
	if err != nil {
		t.Fatalf("Fingerprint(A): %v", err)
	}
	kB, err := Fingerprint(pathB)
	if err != nil {
		t.Fatalf("Fingerprint(B): %v", err)
	}
	if string(kA) == string(kB) {
		t.Fatalf("expected different fingerprints for different paths/contents")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	cache, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer cache.Close()

	key := []byte("test-key")
	root := isofs.Location{Sector: 0, Directory: true}
	snaps := []isofs.Snapshot{
		{
			Names:       []uint64{1, 2, 3},
			Locs:        []isofs.Location{{Sector: 10, Length: 2048}},
			StringTable: []byte("hello"),
		},
	}

	if err := cache.Save(key, root, snaps); err != nil {
		t.Fatalf("Save: %v", err)
	}

	gotRoot, gotSnaps, ok, err := cache.Load(key)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !ok {
		t.Fatalf("expected a cache hit")
	}
	if gotRoot != root {
		t.Fatalf("got root %+v, want %+v", gotRoot, root)
	}
	if len(gotSnaps) != 1 || len(gotSnaps[0].Names) != 3 || string(gotSnaps[0].StringTable) != "hello" {
		t.Fatalf("unexpected snapshots: %+v", gotSnaps)
	}
}

func TestLoadMiss(t *testing.T) {
	cache, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer cache.Close()

	_, _, ok, err := cache.Load([]byte("no-such-key"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ok {
		t.Fatalf("expected a cache miss")
	}
}
