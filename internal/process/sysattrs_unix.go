//go:build !windows

package process

import (
	"os/exec"
	"syscall"
)

// configureSysProcAttr sets platform-specific attributes for Unix-like systems.
// With ProcessGroup the child gets its own process group, so terminal signals
// sent to the launcher do not reach it.
func configureSysProcAttr(cmd *exec.Cmd, spec Spec) {
	if !spec.ProcessGroup {
		return
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
