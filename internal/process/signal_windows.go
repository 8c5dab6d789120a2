//go:build windows

package process

import "os"

// terminateProcess kills the process; Windows has no SIGTERM equivalent for
// console programs started without a console of their own.
func terminateProcess(p *os.Process) error {
	return p.Kill()
}
