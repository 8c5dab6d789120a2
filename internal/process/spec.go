package process

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/loykin/upscalr/internal/logger"
)

// Spec describes one engine invocation.
type Spec struct {
	Name         string        `json:"name"`          // label used in diagnostics
	LogName      string        `json:"log_name"`      // stdout/stderr log file stem; Name when empty
	Path         string        `json:"path"`          // executable to run (argv[0])
	Args         []string      `json:"args"`          // argv[1:]
	WorkDir      string        `json:"work_dir"`      // working directory of the child only; the parent's cwd is never changed
	Env          []string      `json:"env"`           // extra KEY=VALUE pairs appended to the parent environment
	ProcessGroup bool          `json:"process_group"` // start the child in its own process group
	Log          logger.Config `json:"log"`           // optional stdout/stderr redirection; inherited when unset
}

// BuildCommand constructs an *exec.Cmd for the spec. No shell is involved and
// the working directory is applied to the child through cmd.Dir.
func (s *Spec) BuildCommand() *exec.Cmd {
	// ok: the executable and its arguments come from operator configuration
	// #nosec G204
	cmd := exec.Command(s.Path, s.Args...)
	cmd.Dir = s.WorkDir
	if len(s.Env) > 0 {
		cmd.Env = append(os.Environ(), s.Env...)
	}
	configureSysProcAttr(cmd, *s)
	return cmd
}

// Argv returns the full argument vector, executable first.
func (s *Spec) Argv() []string {
	argv := make([]string, 0, len(s.Args)+1)
	argv = append(argv, s.Path)
	return append(argv, s.Args...)
}

// CommandLine joins the argument vector with spaces for human inspection.
// It performs no shell quoting and is not meant to be re-executed.
func (s *Spec) CommandLine() string {
	return strings.Join(s.Argv(), " ")
}

// ExecutableDir returns the directory that holds the executable at path, made
// absolute so that it does not depend on the caller's current directory.
// A bare command name (no directory part) yields "", meaning "inherit".
func ExecutableDir(path string) string {
	if path == "" || filepath.Base(path) == path {
		return ""
	}
	dir := filepath.Dir(path)
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return dir
}

// ResolveExecutable makes a path with a directory component absolute, so it
// keeps pointing at the same file once the child starts in another directory.
// Bare command names are left for PATH lookup.
func ResolveExecutable(path string) string {
	if path == "" || filepath.Base(path) == path || filepath.IsAbs(path) {
		return path
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
