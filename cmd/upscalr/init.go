package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/loykin/upscalr/pkg/template"
)

func createInitCommand(c command, flags *InitFlags) *cobra.Command {
	gen := template.NewGenerator()
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter upscalr.toml",
		Long: fmt.Sprintf(`Write a starter configuration file for one of the presets: %s.

Examples:
  upscalr init
  upscalr init --preset anime --engine /opt/w2x/waifu2x-ncnn-vulkan
  upscalr init --preset scheduled --data-dir /srv/upscalr -o /etc/upscalr.toml`,
			strings.Join(gen.SupportedPresets(), ", ")),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Init(gen, *flags)
		},
	}
	cmd.Flags().StringVar(&flags.Preset, "preset", string(template.PresetBasic), "starter preset")
	cmd.Flags().StringVarP(&flags.Output, "output", "o", "upscalr.toml", "file to write")
	cmd.Flags().StringVar(&flags.DataDir, "data-dir", "", "directory for the history database and scheduled folders")
	cmd.Flags().BoolVar(&flags.Force, "force", false, "overwrite an existing file")
	return cmd
}

// Init writes the preset. The global --engine flag sets the engine path.
func (c command) Init(gen *template.Generator, f InitFlags) error {
	if _, err := os.Stat(f.Output); err == nil && !f.Force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", f.Output)
	}
	b, err := gen.GenerateTOML(template.Preset(f.Preset), template.Options{
		EnginePath: c.global.EnginePath,
		DataDir:    f.DataDir,
	})
	if err != nil {
		return err
	}
	if err := os.WriteFile(f.Output, b, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", f.Output, err)
	}
	_, _ = fmt.Fprintf(c.stdout, "wrote %s (%s preset)\n", f.Output, f.Preset)
	return nil
}
