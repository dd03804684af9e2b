//go:build unix

package mbediso

import "golang.org/x/sys/unix"

// deviceID returns the archive file's device number, so Sys values
// synthesized from archives stored on different devices don't collide on
// Sector alone.
func deviceID(archivePath string) (uint64, bool) {
	var st unix.Stat_t
	if err := unix.Stat(archivePath, &st); err != nil {
		return 0, false
	}
	return uint64(st.Dev), true
}
