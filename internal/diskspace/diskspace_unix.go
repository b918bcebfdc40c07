//go:build !windows

package diskspace

import (
	"golang.org/x/sys/unix"
)

// availableBytes returns free space for non-root users on the filesystem
// containing dir, or 0 when statfs fails.
func availableBytes(dir string) int64 {
	var stat unix.Statfs_t
	if err := unix.Statfs(dir, &stat); err != nil {
		return 0
	}
	return int64(stat.Bavail) * int64(stat.Bsize)
}
