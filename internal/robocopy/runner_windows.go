//go:build windows

package robocopy

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/windows"
)

// The child gets its own process group so CTRL_BREAK reaches it without
// taking down our own console session.
func configureProcAttrs(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: windows.CREATE_NEW_PROCESS_GROUP,
	}
}

func terminateProcess(cmd *exec.Cmd) error {
	return windows.GenerateConsoleCtrlEvent(windows.CTRL_BREAK_EVENT, uint32(cmd.Process.Pid))
}
