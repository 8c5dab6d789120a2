//go:build windows

package process

import (
	"os/exec"
	"syscall"
)

// Windows creation flags
const (
	CREATE_NEW_PROCESS_GROUP = 0x00000200
)

// configureSysProcAttr sets platform-specific attributes for Windows.
func configureSysProcAttr(cmd *exec.Cmd, spec Spec) {
	if !spec.ProcessGroup {
		return
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: CREATE_NEW_PROCESS_GROUP}
}
