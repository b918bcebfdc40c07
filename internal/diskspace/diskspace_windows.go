//go:build windows

package diskspace

import (
	"golang.org/x/sys/windows"
)

// availableBytes returns the bytes available to the calling user on the
// volume containing dir, or 0 when the query fails.
func availableBytes(dir string) int64 {
	var freeBytesAvailable, totalBytes, totalFreeBytes uint64

	pathPtr, err := windows.UTF16PtrFromString(dir)
	if err != nil {
		return 0
	}
	if err := windows.GetDiskFreeSpaceEx(pathPtr, &freeBytesAvailable, &totalBytes, &totalFreeBytes); err != nil {
		return 0
	}
	return int64(freeBytesAvailable)
}
