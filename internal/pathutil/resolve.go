// Package pathutil provides path resolution shared by every frontend, so a
// path typed into the CLI resolves the same way a path picked in a dialog
// would.
package pathutil

import (
	"os"
	"path/filepath"
	"strings"
)

// ResolveAbsolute expands ~, absolutizes, and resolves symlinks/junctions in
// the existing portion of the path, then appends any components that do not
// exist yet. User folders are often junction points while the target
// subdirectory has not been created; resolving only the existing prefix
// handles both.
func ResolveAbsolute(path string) (string, error) {
	if path == "" {
		return os.Getwd()
	}

	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = home + path[1:]
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	// Fast path: the whole thing exists.
	if resolved, err := filepath.EvalSymlinks(absPath); err == nil {
		return resolved, nil
	}

	// Walk up to the deepest existing ancestor, resolve that, and re-append
	// the missing remainder.
	current := absPath
	var remainder []string
	for {
		if _, err := os.Stat(current); err == nil {
			resolved, err := filepath.EvalSymlinks(current)
			if err != nil {
				resolved = current
			}
			for i := len(remainder) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, remainder[i])
			}
			return resolved, nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			return absPath, nil
		}
		remainder = append(remainder, filepath.Base(current))
		current = parent
	}
}

// ContainsPath reports whether child is parent or lives underneath parent.
// Both arguments must already be absolute and cleaned. Comparison is
// case-preserving; callers on case-insensitive filesystems should fold
// before calling.
func ContainsPath(parent, child string) bool {
	parent = filepath.Clean(parent)
	child = filepath.Clean(child)
	if parent == child {
		return true
	}
	sep := string(filepath.Separator)
	if !strings.HasSuffix(parent, sep) {
		parent += sep
	}
	return strings.HasPrefix(child, parent)
}
