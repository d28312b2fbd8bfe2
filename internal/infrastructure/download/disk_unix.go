//go:build linux || darwin

package download

import (
	"path/filepath"

	"golang.org/x/sys/unix"
)

// StatfsChecker reports free space using statfs(2)
type StatfsChecker struct{}

// FreeSpace returns the bytes available to unprivileged users on the volume holding path.
// It walks up to the nearest existing directory.
func (StatfsChecker) FreeSpace(path string) (int64, bool) {
	dir := filepath.Dir(path)
	for {
		var st unix.Statfs_t
		if err := unix.Statfs(dir, &st); err == nil {
			return int64(st.Bavail) * int64(st.Bsize), true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return 0, false
		}
		dir = parent
	}
}
