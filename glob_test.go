package mbediso

import "testing"

func TestGlob(t *testing.T) {
	path := buildTestArchive(t)
	fsys, err := OpenFS(path)
	if err != nil {
		t.Fatalf("OpenFS: %v", err)
	}
	defer fsys.Close()

	matches, err := Glob(fsys, "*.txt")
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	if len(matches) != 1 || matches[0] != "hello.txt" {
		t.Fatalf("got %v, want [hello.txt]", matches)
	}

	matches, err = Glob(fsys, "**/*.txt")
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("got %v, want 2 matches", matches)
	}
}
