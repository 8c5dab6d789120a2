// Package template writes starter upscalr.toml files for common setups.
package template

import (
	"fmt"
	"sort"

	"github.com/pelletier/go-toml/v2"
)

// Preset names a starter configuration.
type Preset string

const (
	PresetBasic     Preset = "basic"
	PresetAnime     Preset = "anime"
	PresetPhoto     Preset = "photo"
	PresetCPU       Preset = "cpu"
	PresetServer    Preset = "server"
	PresetScheduled Preset = "scheduled"
)

// File mirrors the sections of upscalr.toml a template fills in.
type File struct {
	Engine   map[string]any `toml:"waifu2x_ncnn_vulkan"`
	Upscaler *Upscaler      `toml:"upscaler,omitempty"`
	Log      *Log           `toml:"log,omitempty"`
	Server   *Server        `toml:"server,omitempty"`
	Metrics  *Metrics       `toml:"metrics,omitempty"`
	History  *History       `toml:"history,omitempty"`
	Schedule []Schedule     `toml:"schedule,omitempty"`
}

type Upscaler struct {
	Processes  int `toml:"processes"`
	ScaleRatio int `toml:"scale_ratio"`
}

type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type Server struct {
	Listen   string `toml:"listen"`
	BasePath string `toml:"base_path"`
	Router   string `toml:"router"`
}

type Metrics struct {
	Enabled bool `toml:"enabled"`
}

type History struct {
	Enabled bool   `toml:"enabled"`
	DSN     string `toml:"dsn"`
}

type Schedule struct {
	Name      string `toml:"name"`
	Cron      string `toml:"cron"`
	InputDir  string `toml:"input_dir"`
	OutputDir string `toml:"output_dir"`
	Jobs      int    `toml:"jobs"`
	Format    string `toml:"format,omitempty"`
}

// Options fill in the machine specific parts of a template.
type Options struct {
	EnginePath string // default "waifu2x-ncnn-vulkan" (PATH lookup)
	DataDir    string // history database and schedule directories; default "."
}

func (o Options) withDefaults() Options {
	if o.EnginePath == "" {
		o.EnginePath = "waifu2x-ncnn-vulkan"
	}
	if o.DataDir == "" {
		o.DataDir = "."
	}
	return o
}

type Generator struct{}

func NewGenerator() *Generator { return &Generator{} }

// Generate builds the sections of a preset.
func (g *Generator) Generate(p Preset, opts Options) (*File, error) {
	opts = opts.withDefaults()
	f := &File{
		Engine: map[string]any{"path": opts.EnginePath, "n": 1, "s": 2},
		Log:    &Log{Level: "info", Format: "text"},
	}
	switch p {
	case PresetBasic:
	case PresetAnime:
		f.Engine["n"] = 2
		f.Engine["m"] = "models-cunet"
		f.Engine["x"] = true
	case PresetPhoto:
		f.Engine["n"] = 0
		f.Engine["m"] = "models-upconv_7_photo"
		f.Engine["f"] = "jpg"
	case PresetCPU:
		f.Engine["g"] = -1
		f.Upscaler = &Upscaler{Processes: 2}
	case PresetServer, PresetScheduled:
		f.Upscaler = &Upscaler{Processes: 2, ScaleRatio: 2}
		f.Server = &Server{Listen: ":8080", BasePath: "/api", Router: "gin"}
		f.Metrics = &Metrics{Enabled: true}
		f.History = &History{Enabled: true, DSN: "sqlite://" + opts.DataDir + "/history.db"}
		if p == PresetScheduled {
			f.Schedule = []Schedule{{
				Name:      "nightly",
				Cron:      "0 3 * * *",
				InputDir:  opts.DataDir + "/inbox",
				OutputDir: opts.DataDir + "/upscaled",
				Jobs:      2,
			}}
		}
	default:
		return nil, fmt.Errorf("unknown preset %q (supported: %v)", p, g.SupportedPresets())
	}
	return f, nil
}

// GenerateTOML renders a preset as an upscalr.toml document.
func (g *Generator) GenerateTOML(p Preset, opts Options) ([]byte, error) {
	f, err := g.Generate(p, opts)
	if err != nil {
		return nil, err
	}
	b, err := toml.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("marshal template: %w", err)
	}
	header := fmt.Sprintf("# upscalr %s preset\n\n", p)
	return append([]byte(header), b...), nil
}

func (g *Generator) SupportedPresets() []string {
	out := []string{
		string(PresetBasic), string(PresetAnime), string(PresetPhoto),
		string(PresetCPU), string(PresetServer), string(PresetScheduled),
	}
	sort.Strings(out)
	return out
}
