// Package driver turns waifu2x-ncnn-vulkan settings into engine invocations.
//
// A Driver owns one ordered set of engine options. Each call to Upscale writes
// the job's input and output into those options, snapshots them, translates the
// snapshot into an argument vector and starts the engine as a child process
// whose working directory is the engine's own directory. The returned handle
// belongs to the caller; the driver never waits on it.
package driver

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/loykin/upscalr/internal/logger"
	"github.com/loykin/upscalr/internal/process"
)

// Name identifies the engine in logs, metrics and config sections.
const Name = "waifu2x_ncnn_vulkan"

var (
	// ErrNoEnginePath is returned when the settings carry no engine executable.
	ErrNoEnginePath = errors.New("engine path is not configured")
	// ErrInvalidArgument is wrapped by every front-end validation failure.
	ErrInvalidArgument = errors.New("invalid engine argument")
)

// Upscaler carries the caller-side settings the driver derives options from.
type Upscaler struct {
	Processes  int `json:"processes" mapstructure:"processes"`
	ScaleRatio int `json:"scale_ratio" mapstructure:"scale_ratio"`
}

// StartFunc starts a prepared engine invocation.
type StartFunc func(process.Spec) (*process.Handle, error)

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets where launch diagnostics go.
func WithLogger(l DebugLogger) Option {
	return func(d *Driver) { d.guard = NewPrintGuard(l) }
}

// WithGOOS overrides the host platform used for platform-specific rules.
func WithGOOS(goos string) Option {
	return func(d *Driver) { d.goos = goos }
}

// WithProcessLog redirects engine stdout/stderr to rotating files.
func WithProcessLog(c logger.Config) Option {
	return func(d *Driver) { d.procLog = c }
}

// WithEnv sets extra KEY=VALUE pairs for the engine's environment.
func WithEnv(env []string) Option {
	return func(d *Driver) { d.env = append([]string(nil), env...) }
}

// WithStarter replaces process.Start.
func WithStarter(fn StartFunc) Option {
	return func(d *Driver) { d.start = fn }
}

// Driver launches waifu2x-ncnn-vulkan jobs. It is safe for concurrent use.
type Driver struct {
	mu       sync.Mutex // guards settings
	settings *Settings
	guard    *PrintGuard
	goos     string
	procLog  logger.Config
	env      []string
	start    StartFunc
	launches atomic.Uint64
}

// New creates a driver over a private copy of settings, which must name the
// engine executable under "path".
func New(settings *Settings, opts ...Option) (*Driver, error) {
	if settings == nil || settings.Path() == "" {
		return nil, ErrNoEnginePath
	}
	d := &Driver{
		settings: settings.Clone(),
		guard:    NewPrintGuard(nil),
		goos:     runtime.GOOS,
		start:    process.Start,
	}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// LoadConfigurations derives engine options from the upscaler settings:
// the load/proc/save thread spec becomes "p:p:p" for p worker processes.
func (d *Driver) LoadConfigurations(u Upscaler) {
	p := u.Processes
	d.Set(KeyThreads, String(fmt.Sprintf("%d:%d:%d", p, p, p)))
}

// SetScaleRatio sets the engine's scale ratio.
func (d *Driver) SetScaleRatio(ratio int) {
	d.Set(KeyScale, Int(ratio))
}

// Set assigns one engine option.
func (d *Driver) Set(key string, v Value) {
	d.mu.Lock()
	d.settings.Set(key, v)
	d.mu.Unlock()
}

// Settings returns a copy of the current options.
func (d *Driver) Settings() *Settings {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.settings.Clone()
}

// Prepare resolves everything Upscale needs without starting anything: the
// working directory, the job's input/output written into the options, and the
// translated argument vector.
func (d *Driver) Prepare(input, output string) (process.Spec, []string, error) {
	input, output = absPath(input), absPath(output)

	d.mu.Lock()
	path := d.settings.Path()
	if path == "" {
		d.mu.Unlock()
		return process.Spec{}, nil, ErrNoEnginePath
	}
	// The engine loads its shared libraries from its own directory.
	workDir := process.ExecutableDir(path)

	d.settings.Set(KeyInput, String(input))
	d.settings.Set(KeyOutput, String(output))

	// On Windows the engine looks for models under the working directory unless
	// -m is given, so the directory must be the engine's own.
	if d.modelsRelativeToWorkDir() {
		workDir = process.ExecutableDir(path)
	}
	snapshot := d.settings.Clone()
	d.mu.Unlock()

	argv := BuildArgs(snapshot)
	// Concurrent jobs must not share a rotating log file.
	seq := d.launches.Add(1)
	spec := process.Spec{
		Name:    Name,
		LogName: fmt.Sprintf("%s-%d-%d", Name, os.Getpid(), seq),
		Path:    process.ResolveExecutable(argv[0]),
		Args:    argv[1:],
		WorkDir: workDir,
		Env:     d.env,
		Log:     d.procLog,
	}
	return spec, argv, nil
}

// modelsRelativeToWorkDir must be called with d.mu held.
func (d *Driver) modelsRelativeToWorkDir() bool {
	m, _ := d.settings.Get(KeyModel)
	return m.IsNull() && d.goos == "windows"
}

// Upscale starts the engine on one input/output pair and returns as soon as
// the child exists. A start failure is returned wrapping the native error;
// the engine's exit status is only visible through the handle.
func (d *Driver) Upscale(input, output string) (*process.Handle, error) {
	spec, argv, err := d.Prepare(input, output)
	if err != nil {
		return nil, err
	}
	d.guard.Debug(fmt.Sprintf("[upscaler] Subprocess %d executing: %s", os.Getpid(), strings.Join(argv, " ")))

	h, err := d.start(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", spec.Path, err)
	}
	return h, nil
}

func absPath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
