// Package config loads upscalr settings from a TOML file and the environment.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/loykin/upscalr/internal/auth"
	"github.com/loykin/upscalr/internal/cron"
	"github.com/loykin/upscalr/internal/driver"
	"github.com/loykin/upscalr/internal/env"
	"github.com/loykin/upscalr/internal/logger"
	"github.com/loykin/upscalr/internal/tls"
)

// EnvPrefix is prepended to environment overrides, e.g. UPSCALR_SERVER_LISTEN.
const EnvPrefix = "UPSCALR"

// Config represents the top-level TOML structure.
type Config struct {
	// Engine holds the raw [waifu2x_ncnn_vulkan] table; see EngineSettings.
	Engine   map[string]any  `mapstructure:"waifu2x_ncnn_vulkan"`
	Upscaler driver.Upscaler `mapstructure:"upscaler"`
	Env      []string        `mapstructure:"env"`
	EnvFiles []string        `mapstructure:"env_files"`
	UseOSEnv bool            `mapstructure:"use_os_env"`
	Log      logger.Config   `mapstructure:"log"`
	Metrics  MetricsConfig   `mapstructure:"metrics"`
	History  HistoryConfig   `mapstructure:"history"`
	Server   ServerConfig    `mapstructure:"server"`
	Auth     auth.Config     `mapstructure:"auth"`
	// Schedules are [[schedule]] tables run by "upscalr serve".
	Schedules []ScheduleConfig `mapstructure:"schedule"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"` // separate listener; empty serves /metrics on the API server
}

type HistoryConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	DSN     string   `mapstructure:"dsn"`
	DSNs    []string `mapstructure:"dsns"` // additional sinks
}

// Targets returns every configured DSN, or nil when history is disabled.
func (h HistoryConfig) Targets() []string {
	if !h.Enabled {
		return nil
	}
	var out []string
	for _, d := range append([]string{h.DSN}, h.DSNs...) {
		if strings.TrimSpace(d) != "" {
			out = append(out, d)
		}
	}
	return out
}

type ServerConfig struct {
	Listen   string     `mapstructure:"listen"`
	BasePath string     `mapstructure:"base_path"`
	Router   string     `mapstructure:"router"` // gin or echo
	TLS      tls.Config `mapstructure:"tls"`
}

// ScheduleConfig upscales new images of a directory on a cron schedule.
type ScheduleConfig struct {
	Name       string   `mapstructure:"name"`
	Cron       string   `mapstructure:"cron"`
	TimeZone   string   `mapstructure:"time_zone"`
	Suspend    bool     `mapstructure:"suspend"`
	InputDir   string   `mapstructure:"input_dir"`
	OutputDir  string   `mapstructure:"output_dir"`
	Jobs       int      `mapstructure:"jobs"`
	Format     string   `mapstructure:"format"`
	Extensions []string `mapstructure:"extensions"`
}

var engineKeys = map[string]driver.Kind{
	driver.KeyPath:    driver.KindString,
	driver.KeyVerbose: driver.KindBool,
	driver.KeyInput:   driver.KindString,
	driver.KeyOutput:  driver.KindString,
	driver.KeyNoise:   driver.KindInt,
	driver.KeyScale:   driver.KindInt,
	driver.KeyTile:    driver.KindInt,
	driver.KeyModel:   driver.KindString,
	driver.KeyGPU:     driver.KindInt,
	driver.KeyThreads: driver.KindString,
	driver.KeyTTA:     driver.KindBool,
	driver.KeyFormat:  driver.KindString,
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.base_path", "/api")
	v.SetDefault("server.router", "gin")
	v.SetDefault("upscaler.processes", 0)
	v.SetDefault("upscaler.scale_ratio", 0)

	// AutomaticEnv only reaches keys viper already knows about.
	for _, k := range []string{
		"log.level", "log.format", "log.color", "log.file.path", "log.file.dir",
		"metrics.enabled", "metrics.listen",
		"history.enabled", "history.dsn",
		"server.listen", "server.base_path", "server.router",
		"server.tls.enabled", "server.tls.cert_file", "server.tls.key_file", "server.tls.dir",
		"auth.enabled", "auth.jwt_secret", "auth.token_ttl",
		"upscaler.processes", "upscaler.scale_ratio",
	} {
		_ = v.BindEnv(k)
	}
	for k := range engineKeys {
		_ = v.BindEnv(driver.Name + "." + k)
	}
	return v
}

// Load reads path (optional) and applies environment overrides.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(filepath.Clean(path))
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	// env-only engine keys are invisible to Unmarshal
	for k := range engineKeys {
		full := driver.Name + "." + k
		if v.IsSet(full) {
			if c.Engine == nil {
				c.Engine = map[string]any{}
			}
			if _, ok := c.Engine[k]; !ok {
				c.Engine[k] = v.Get(full)
			}
		}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the non-engine sections.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Server.Router) {
	case "", "gin", "echo":
	default:
		return fmt.Errorf("server.router must be gin or echo, got %q", c.Server.Router)
	}
	if c.Upscaler.Processes < 0 {
		return fmt.Errorf("upscaler.processes must not be negative, got %d", c.Upscaler.Processes)
	}
	if c.Upscaler.ScaleRatio < 0 {
		return fmt.Errorf("upscaler.scale_ratio must not be negative, got %d", c.Upscaler.ScaleRatio)
	}
	if c.History.Enabled && len(c.History.Targets()) == 0 {
		return errors.New("history.enabled requires history.dsn")
	}
	if err := c.Server.TLS.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	seen := make(map[string]bool, len(c.Schedules))
	for i, sc := range c.Schedules {
		if sc.Name == "" {
			return fmt.Errorf("schedule[%d]: name is required", i)
		}
		if seen[sc.Name] {
			return fmt.Errorf("schedule %s: duplicate name", sc.Name)
		}
		seen[sc.Name] = true
		if sc.InputDir == "" || sc.OutputDir == "" {
			return fmt.Errorf("schedule %s: input_dir and output_dir are required", sc.Name)
		}
		if sc.Jobs < 0 {
			return fmt.Errorf("schedule %s: jobs must not be negative", sc.Name)
		}
		if _, err := cron.ParseSchedule(sc.Cron, sc.TimeZone); err != nil {
			return fmt.Errorf("schedule %s: %w", sc.Name, err)
		}
	}
	return nil
}

// EngineSettings converts the [waifu2x_ncnn_vulkan] table into driver
// settings in canonical option order and validates the values.
func (c *Config) EngineSettings() (*driver.Settings, error) {
	m := make(map[string]driver.Value, len(c.Engine))
	keys := make([]string, 0, len(c.Engine))
	for k := range c.Engine {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		val, err := engineValue(k, c.Engine[k])
		if err != nil {
			return nil, err
		}
		m[k] = val
	}
	s := driver.FromMap(m)
	if s.Path() == "" {
		return nil, fmt.Errorf("%s.path: %w", driver.Name, driver.ErrNoEnginePath)
	}
	if err := driver.Validate(s); err != nil {
		return nil, err
	}
	return s, nil
}

func engineValue(key string, raw any) (driver.Value, error) {
	if raw == nil {
		return driver.Null(), nil
	}
	kind, known := engineKeys[key]
	if !known {
		switch x := raw.(type) {
		case bool:
			return driver.Bool(x), nil
		case string:
			return driver.String(x), nil
		}
		kind = driver.KindInt
	}
	var err error
	switch kind {
	case driver.KindBool:
		var b bool
		if b, err = cast.ToBoolE(raw); err == nil {
			return driver.Bool(b), nil
		}
	case driver.KindInt:
		var i int
		if i, err = cast.ToIntE(raw); err == nil {
			return driver.Int(i), nil
		}
	default:
		var s string
		if s, err = cast.ToStringE(raw); err == nil {
			return driver.String(s), nil
		}
	}
	return driver.Value{}, fmt.Errorf("%s.%s: %w: %v", driver.Name, key, driver.ErrInvalidArgument, err)
}

// LoadGlobalEnv merges the engine environment: OS env when use_os_env is set,
// then env_files in order, then the env list. ${VAR} references are expanded.
func (c *Config) LoadGlobalEnv() ([]string, error) {
	e := env.New()
	if c.UseOSEnv {
		e.FromOS()
	}
	for _, p := range c.EnvFiles {
		if err := e.LoadFile(p); err != nil {
			return nil, err
		}
	}
	e.SetPairs(c.Env)
	if e.Len() == 0 {
		return nil, nil
	}
	return e.Pairs(), nil
}
