package logger

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation constants
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// Config describes the application logger and the optional file destinations
// used for the application log and for engine stdout/stderr.
type Config struct {
	Level  string     `json:"level" mapstructure:"level"`   // debug, info, warn, error (default info)
	Format string     `json:"format" mapstructure:"format"` // text or json (default text)
	Color  bool       `json:"color" mapstructure:"color"`   // colored level prefix for text output
	File   FileConfig `json:"file" mapstructure:"file"`
}

// FileConfig holds rotating file destinations.
// If StdoutPath/StderrPath are empty and Dir is set, engine output goes to
// Dir/<name>.stdout.log and Dir/<name>.stderr.log.
// Rotation parameters follow lumberjack semantics.
type FileConfig struct {
	Dir        string `json:"dir" mapstructure:"dir"`
	Path       string `json:"path" mapstructure:"path"`               // application log file
	StdoutPath string `json:"stdout_path" mapstructure:"stdout_path"` // explicit engine stdout path overrides Dir
	StderrPath string `json:"stderr_path" mapstructure:"stderr_path"` // explicit engine stderr path overrides Dir
	MaxSizeMB  int    `json:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `json:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `json:"compress" mapstructure:"compress"`
}

// New builds a slog.Logger from the config. When File.Path is set the log is
// written to a rotating file, otherwise to fallback.
func New(c Config, fallback io.Writer) *slog.Logger {
	w := fallback
	if c.File.Path != "" {
		w = c.File.rotating(c.File.Path)
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(c.Level)}

	var h slog.Handler
	switch {
	case strings.EqualFold(c.Format, "json"):
		h = slog.NewJSONHandler(w, opts)
	case c.Color && c.File.Path == "":
		h = NewColorTextHandler(w, opts, true)
	default:
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h)
}

// ParseLevel converts a level name to slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ProcessWriters returns rotating writers for an engine's stdout and stderr.
// name may include a job suffix (e.g., upscale-3f2a). Nil writers mean the
// stream is inherited from the parent. Writers for the same file share one
// lumberjack logger until the last of them is closed.
func (c Config) ProcessWriters(name string) (io.WriteCloser, io.WriteCloser, error) {
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return nil, nil, fmt.Errorf("invalid log name %q", name)
	}
	stdout := c.File.StdoutPath
	stderr := c.File.StderrPath
	if stdout == "" && c.File.Dir != "" {
		stdout = filepath.Join(c.File.Dir, fmt.Sprintf("%s.stdout.log", name))
	}
	if stderr == "" && c.File.Dir != "" {
		stderr = filepath.Join(c.File.Dir, fmt.Sprintf("%s.stderr.log", name))
	}
	var outW io.WriteCloser
	var errW io.WriteCloser
	if stdout != "" {
		outW = c.File.open(stdout)
	}
	if stderr != "" {
		errW = c.File.open(stderr)
	}
	return outW, errW, nil
}

var (
	openMu    sync.Mutex
	openFiles = map[string]*sharedFile{}
)

// sharedFile is the single lumberjack logger behind one path. lumberjack
// tracks size and rotates per instance, so a path must never have two.
type sharedFile struct {
	lj   *lj.Logger
	refs int
}

// FileWriter is one reference to a shared rotating file.
type FileWriter struct {
	key    string
	f      *sharedFile
	closed sync.Once
}

// Logger exposes the underlying lumberjack logger.
func (w *FileWriter) Logger() *lj.Logger { return w.f.lj }

func (w *FileWriter) Write(p []byte) (int, error) { return w.f.lj.Write(p) }

// Close drops this reference and closes the file once no writer is left.
func (w *FileWriter) Close() error {
	var err error
	w.closed.Do(func() {
		openMu.Lock()
		defer openMu.Unlock()
		w.f.refs--
		if w.f.refs == 0 {
			delete(openFiles, w.key)
			err = w.f.lj.Close()
		}
	})
	return err
}

// open returns a writer for path, reusing the logger already open on it.
// Rotation settings of the first opener win.
func (f FileConfig) open(path string) *FileWriter {
	key := path
	if abs, err := filepath.Abs(path); err == nil {
		key = abs
	}
	openMu.Lock()
	defer openMu.Unlock()
	sf, ok := openFiles[key]
	if !ok {
		sf = &sharedFile{lj: f.rotating(path)}
		openFiles[key] = sf
	}
	sf.refs++
	return &FileWriter{key: key, f: sf}
}

func (f FileConfig) rotating(path string) *lj.Logger {
	return &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(f.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(f.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(f.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   f.Compress,
	}
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
