//go:build !windows

package progress

import "os"

// Unix terminals handle ANSI natively.
func enableANSIOnWindows(f *os.File) {}
