package mbediso

import "github.com/bmatcuk/doublestar/v4"

// Glob returns every path in fsys matching pattern, supporting "**" for
// arbitrary-depth recursion. The original exists()/opendir()/readdir()
// API has no pattern matching at all; this is additive.
func Glob(fsys *FS, pattern string) ([]string, error) {
	return doublestar.Glob(fsys, pattern)
}
