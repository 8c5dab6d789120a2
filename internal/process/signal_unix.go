//go:build !windows

package process

import (
	"os"
	"syscall"
)

// terminateProcess sends SIGTERM so the engine can clean up partial output.
func terminateProcess(p *os.Process) error {
	return p.Signal(syscall.SIGTERM)
}
