package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot(os.Stdout, os.Stderr)
	if err := root.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// exitError carries the engine's exit code out of a command.
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("engine exited with code %d", e.code) }

// buildRoot creates the root command and its subcommands.
func buildRoot(stdout, stderr io.Writer) *cobra.Command {
	globalFlags := &GlobalFlags{}
	c := command{global: globalFlags, stdout: stdout, stderr: stderr}

	root := createRootCommand(globalFlags)
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.AddCommand(
		createUpscaleCommand(c, &UpscaleFlags{}),
		createBatchCommand(c, &BatchFlags{}),
		createServeCommand(c, &ServeFlags{}),
		createArgsCommand(c, &ArgsFlags{}),
		createHashPasswordCommand(c, &HashPasswordFlags{}),
		createRemoteCommand(c),
		createInitCommand(c, &InitFlags{}),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "upscalr",
		Short: "Run waifu2x-ncnn-vulkan jobs",
		Long: `Upscalr launches waifu2x-ncnn-vulkan on single images, whole directories,
or jobs submitted over HTTP.

Engine options come from the [waifu2x_ncnn_vulkan] table of the config file
and can be overridden with engine flags after "--".

Examples:
  upscalr upscale -i in.png -o out.png --config upscalr.toml
  upscalr upscale -i in.png -o out.png --engine ./waifu2x-ncnn-vulkan -- -n 2 -s 2 -x
  upscalr batch --input-dir ./in --output-dir ./out --jobs 2
  upscalr serve --config upscalr.toml
  upscalr args --engine ./waifu2x-ncnn-vulkan -- -n 1 -j 1:2:2`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	root.PersistentFlags().StringVar(&flags.EnginePath, "engine", "", "waifu2x-ncnn-vulkan executable (overrides config)")
	root.PersistentFlags().StringVar(&flags.LogLevel, "log-level", "", "log level: debug, info, warn, error")
	return root
}
