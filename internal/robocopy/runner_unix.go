//go:build !windows

package robocopy

import (
	"os/exec"

	"golang.org/x/sys/unix"
)

func configureProcAttrs(cmd *exec.Cmd) {}

// terminateProcess asks the child to exit cleanly. The supervisor escalates
// to Kill after the grace period.
func terminateProcess(cmd *exec.Cmd) error {
	return cmd.Process.Signal(unix.SIGTERM)
}
