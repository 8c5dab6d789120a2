package process

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"
)

// Handle is the caller-owned reference to a started engine process.
// The launcher keeps no reference to it; the handle reaps its own child.
type Handle struct {
	spec    Spec
	cmd     *exec.Cmd
	mu      sync.Mutex
	status  Status
	closers []io.Closer
	done    chan struct{} // closed once cmd.Wait returns
}

// Start launches the spec without waiting for it to finish. A failure to
// create the child process is returned unchanged so callers can inspect it
// with errors.Is / errors.As.
func Start(spec Spec) (*Handle, error) {
	cmd := spec.BuildCommand()
	h := &Handle{spec: spec, cmd: cmd, done: make(chan struct{})}

	outW, errW, err := spec.Log.ProcessWriters(logName(spec))
	if err != nil {
		return nil, err
	}
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if outW != nil {
		cmd.Stdout = outW
		h.closers = append(h.closers, outW)
	}
	if errW != nil {
		cmd.Stderr = errW
		h.closers = append(h.closers, errW)
	}

	if err := cmd.Start(); err != nil {
		h.closeWriters()
		return nil, err
	}
	h.status = Status{
		Name:      spec.Name,
		PID:       cmd.Process.Pid,
		Running:   true,
		StartedAt: time.Now(),
		ExitCode:  -1,
	}
	go h.reap()
	return h, nil
}

func logName(spec Spec) string {
	if spec.LogName != "" {
		return spec.LogName
	}
	if spec.Name != "" {
		return spec.Name
	}
	return "engine"
}

func (h *Handle) reap() {
	err := h.cmd.Wait()
	h.closeWriters()

	h.mu.Lock()
	h.status.Running = false
	h.status.ExitedAt = time.Now()
	if h.cmd.ProcessState != nil {
		h.status.ExitCode = h.cmd.ProcessState.ExitCode()
	}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		h.status.Err = err
		h.status.Error = err.Error()
	}
	h.mu.Unlock()
	close(h.done)
}

func (h *Handle) closeWriters() {
	for _, c := range h.closers {
		_ = c.Close()
	}
	h.closers = nil
}

// PID returns the operating-system process id of the child.
func (h *Handle) PID() int { return h.cmd.Process.Pid }

// Spec returns the spec the process was started from.
func (h *Handle) Spec() Spec { return h.spec }

// Done returns a channel that is closed when the process has exited.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the process exits and returns its final status.
func (h *Handle) Wait() Status {
	<-h.done
	return h.Status()
}

// WaitContext is Wait bounded by ctx. The process keeps running when ctx ends.
func (h *Handle) WaitContext(ctx context.Context) (Status, error) {
	select {
	case <-h.done:
		return h.Status(), nil
	case <-ctx.Done():
		return h.Status(), ctx.Err()
	}
}

// Status returns a snapshot of the current state.
func (h *Handle) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// ExitCode returns the exit code, or -1 while the process is still running.
func (h *Handle) ExitCode() int {
	return h.Status().ExitCode
}

// Running reports whether the process has not exited yet.
func (h *Handle) Running() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Signal delivers sig to the process.
func (h *Handle) Signal(sig os.Signal) error {
	if !h.Running() {
		return os.ErrProcessDone
	}
	return h.cmd.Process.Signal(sig)
}

// Terminate asks the process to stop (SIGTERM on unix, kill on windows).
func (h *Handle) Terminate() error {
	if !h.Running() {
		return os.ErrProcessDone
	}
	return terminateProcess(h.cmd.Process)
}

// Kill stops the process immediately.
func (h *Handle) Kill() error {
	if !h.Running() {
		return os.ErrProcessDone
	}
	return h.cmd.Process.Kill()
}
