package isoutil

import "testing"

func TestFirstPow2(t *testing.T) {
	cases := []struct {
		in, want int
	}{
		{0, 1},
		{1, 1},
		{2, 2},
		{3, 4},
		{17, 32},
		{1 << 24, 1 << 24},
		{1<<24 + 1, 1<<24 + 1},
	}
	for _, c := range cases {
		if got := FirstPow2(c.in); got != c.want {
			t.Errorf("FirstPow2(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func be16(s string) []byte {
	out := make([]byte, 0, len(s)*2)
	for _, r := range s {
		out = append(out, byte(r>>8), byte(r))
	}
	return out
}

func TestUTF16BEToUTF8Ascii(t *testing.T) {
	got, err := UTF16BEToUTF8(be16("hello.txt"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "hello.txt" {
		t.Fatalf("got %q, want %q", got, "hello.txt")
	}
}

func TestUTF16BEToUTF8SurrogatePair(t *testing.T) {
	// U+1F600 GRINNING FACE, surrogate pair D83D DE00.
	src := []byte{0xD8, 0x3D, 0xDE, 0x00}
	got, err := UTF16BEToUTF8(src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "\U0001F600"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestUTF16BEToUTF8Rejects(t *testing.T) {
	cases := map[string][]byte{
		"odd length":             {0x00},
		"orphan low surrogate":   {0xDC, 0x00},
		"orphan high surrogate":  {0xD8, 0x00, 0x00, 0x41},
		"truncated surrogate":    {0xD8, 0x00},
	}
	for name, src := range cases {
		if _, err := UTF16BEToUTF8(src); err == nil {
			t.Errorf("%s: expected error, got none", name)
		}
	}
}
