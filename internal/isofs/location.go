// Package isofs implements the directory store (component E) and the
// filesystem engine (component F): parsing raw ISO 9660/Joliet directory
// records, maintaining the in-memory directory array, and resolving paths
// against it, promoting unloaded directories to loaded ones as it goes.
package isofs

// Location identifies either an on-disk extent or an already-loaded
// in-memory directory. A Location with Length == 0 and Directory == true
// is the loaded-directory overload: Sector is then an index into the
// filesystem's directories array, not a disc sector number.
type Location struct {
	Sector    uint32
	Length    uint32
	Directory bool
}

// Loaded reports whether loc already refers to an in-memory Directory
// rather than an on-disk extent still needing to be read.
func (loc Location) Loaded() bool {
	return loc.Directory && loc.Length == 0
}
