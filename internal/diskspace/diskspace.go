// Package diskspace reports available space on the volume backing a path.
// The result is a point-in-time estimate: concurrent writers can invalidate
// it between the check and the transfer, so callers treat it as advisory.
package diskspace

import (
	"fmt"
	"path/filepath"
)

// InsufficientSpaceError indicates that the destination volume cannot hold
// the requested transfer, including the configured safety margin.
type InsufficientSpaceError struct {
	Path           string
	RequiredBytes  int64
	AvailableBytes int64
}

func (e *InsufficientSpaceError) Error() string {
	requiredMB := float64(e.RequiredBytes) / (1024 * 1024)
	availableMB := float64(e.AvailableBytes) / (1024 * 1024)
	return fmt.Sprintf("insufficient disk space for %s: need %.2f MB, have %.2f MB available",
		e.Path, requiredMB, availableMB)
}

// AvailableBytes returns the free space on the volume containing path.
// Returns 0 when the volume cannot be queried (network mounts, virtual
// filesystems); callers must not treat 0 as "full".
func AvailableBytes(path string) int64 {
	return availableBytes(filepath.Dir(path))
}

// Check verifies that available bytes can hold requiredBytes plus the safety
// margin (a fraction, e.g. 0.05 for 5%). available is the caller's snapshot
// of the destination volume, usually from AvailableBytes; 0 means the volume
// could not be queried and passes the check rather than blocking the
// transfer. Returns an *InsufficientSpaceError when the data does not fit.
func Check(targetPath string, available, requiredBytes int64, safetyMargin float64) error {
	if available == 0 {
		// Unqueryable volume: let the transfer proceed and fail naturally.
		return nil
	}

	required := int64(float64(requiredBytes) * (1 + safetyMargin))
	if available < required {
		return &InsufficientSpaceError{
			Path:           targetPath,
			RequiredBytes:  required,
			AvailableBytes: available,
		}
	}
	return nil
}
