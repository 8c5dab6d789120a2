package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/loykin/upscalr/internal/config"
	"github.com/loykin/upscalr/internal/driver"
	"github.com/loykin/upscalr/internal/logger"
)

// errEngineHelp means engine usage was printed and the command should stop.
var errEngineHelp = errors.New("engine help shown")

// command carries what every subcommand needs.
type command struct {
	global *GlobalFlags
	stdout io.Writer
	stderr io.Writer
}

// session is a loaded config plus a driver ready to launch.
type session struct {
	cfg    *config.Config
	log    *slog.Logger
	driver *driver.Driver
	// input and output given as engine flags (-- -i x -o y)
	input  string
	output string
}

// open loads the config, applies global flag overrides and builds the driver.
// Engine flags after "--" win over both the config table and the derived
// upscaler settings. Absent switches never turn a configured switch off.
func (c command) open(engineArgs []string) (*session, error) {
	var overrides *driver.Settings
	if len(engineArgs) > 0 {
		var err error
		overrides, err = driver.ParseArguments(engineArgs)
		if errors.Is(err, pflag.ErrHelp) {
			_, _ = fmt.Fprint(c.stdout, driver.ArgumentUsage())
			return nil, errEngineHelp
		}
		if err != nil {
			return nil, err
		}
	}

	cfg, err := config.Load(c.global.ConfigPath)
	if err != nil {
		return nil, err
	}
	if c.global.LogLevel != "" {
		cfg.Log.Level = c.global.LogLevel
	}
	if c.global.EnginePath != "" {
		if cfg.Engine == nil {
			cfg.Engine = map[string]any{}
		}
		cfg.Engine[driver.KeyPath] = c.global.EnginePath
	}
	settings, err := cfg.EngineSettings()
	if err != nil {
		return nil, err
	}
	// The launch diagnostic is a debug line; -v makes it visible.
	if c.global.LogLevel == "" && (switchOn(settings, driver.KeyVerbose) || switchOn(overrides, driver.KeyVerbose)) {
		cfg.Log.Level = "debug"
	}
	log := logger.New(cfg.Log, c.stderr)
	env, err := cfg.LoadGlobalEnv()
	if err != nil {
		return nil, fmt.Errorf("load engine environment: %w", err)
	}
	d, err := driver.New(settings,
		driver.WithLogger(log),
		driver.WithEnv(env),
		driver.WithProcessLog(cfg.Log),
	)
	if err != nil {
		return nil, err
	}
	if cfg.Upscaler.Processes > 0 {
		d.LoadConfigurations(cfg.Upscaler)
	}
	if cfg.Upscaler.ScaleRatio > 0 {
		d.SetScaleRatio(cfg.Upscaler.ScaleRatio)
	}

	s := &session{cfg: cfg, log: log, driver: d}
	if overrides != nil {
		for _, e := range overrides.Entries() {
			switch {
			case e.Value.Omitted():
			case e.Key == driver.KeyInput:
				s.input = e.Value.String()
			case e.Key == driver.KeyOutput:
				s.output = e.Value.String()
			default:
				d.Set(e.Key, e.Value)
			}
		}
	}
	return s, nil
}

func switchOn(s *driver.Settings, key string) bool {
	if s == nil {
		return false
	}
	v, _ := s.Get(key)
	return v.IsTrue()
}

// engineArgs returns what follows "--" on the command line.
func engineArgs(dash int, args []string) []string {
	if dash < 0 {
		return args
	}
	return args[dash:]
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
