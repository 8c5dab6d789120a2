package main

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/loykin/upscalr/internal/batch"
	"github.com/loykin/upscalr/pkg/client"
)

func createRemoteCommand(c command) *cobra.Command {
	flags := &RemoteFlags{}
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Drive jobs on a running upscalr serve instance",
	}
	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.Server, "server", client.DefaultConfig().BaseURL, "API base URL including the base path")
	pf.StringVar(&flags.Username, "username", "", "basic auth username")
	pf.StringVar(&flags.Password, "password", "", "basic auth password")
	pf.StringVar(&flags.Token, "token", "", "bearer token")
	pf.StringVar(&flags.CACert, "ca-cert", "", "CA certificate for a TLS server")
	pf.BoolVar(&flags.Insecure, "insecure", false, "skip TLS verification")
	pf.DurationVar(&flags.Timeout, "timeout", client.DefaultConfig().Timeout, "per request timeout")

	submit := &RemoteSubmitFlags{}
	submitCmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit one image; paths are resolved on this machine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.RemoteSubmit(cmd.Context(), *flags, *submit)
		},
	}
	submitCmd.Flags().StringVarP(&submit.Input, "input", "i", "", "input image")
	submitCmd.Flags().StringVarP(&submit.Output, "output", "o", "", "output image")
	submitCmd.Flags().BoolVar(&submit.Wait, "wait", false, "wait for the job to finish")
	submitCmd.Flags().DurationVar(&submit.Interval, "interval", 0, "poll interval with --wait")

	var phase string
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.RemoteJobs(cmd.Context(), *flags, batch.Phase(phase))
		},
	}
	jobsCmd.Flags().StringVar(&phase, "phase", "", "only jobs in this phase (Running, Succeeded, ...)")

	getCmd := &cobra.Command{
		Use:   "get ID",
		Short: "Show one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.RemoteGet(cmd.Context(), *flags, args[0])
		},
	}
	cancelCmd := &cobra.Command{
		Use:   "cancel ID",
		Short: "Kill a running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.RemoteCancel(cmd.Context(), *flags, args[0])
		},
	}

	cmd.AddCommand(submitCmd, jobsCmd, getCmd, cancelCmd)
	return cmd
}

func (c command) remoteClient(f RemoteFlags) (*client.Client, error) {
	cfg := client.Config{
		BaseURL:  f.Server,
		Timeout:  f.Timeout,
		Insecure: f.Insecure,
		Username: f.Username,
		Password: f.Password,
		Token:    f.Token,
	}
	if f.CACert != "" {
		cfg.TLS = &client.TLSClientConfig{CACert: f.CACert}
	}
	return client.New(cfg)
}

func (c command) printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(c.stdout, string(b))
	return nil
}

// RemoteSubmit sends a job with absolute paths. With --wait the exit code
// follows the engine's, like upscale.
func (c command) RemoteSubmit(ctx context.Context, f RemoteFlags, s RemoteSubmitFlags) error {
	if s.Input == "" || s.Output == "" {
		return fmt.Errorf("both -i and -o are required")
	}
	in, err := filepath.Abs(s.Input)
	if err != nil {
		return err
	}
	out, err := filepath.Abs(s.Output)
	if err != nil {
		return err
	}
	cl, err := c.remoteClient(f)
	if err != nil {
		return err
	}
	ctx = contextOr(ctx)
	id, err := cl.Submit(ctx, client.Job{Input: in, Output: out})
	if err != nil {
		return err
	}
	if !s.Wait {
		_, _ = fmt.Fprintln(c.stdout, id)
		return nil
	}
	st, err := cl.Wait(ctx, id, s.Interval)
	if err != nil {
		return err
	}
	if err := c.printJSON(st); err != nil {
		return err
	}
	if st.Phase != batch.PhaseSucceeded {
		code := st.ExitCode
		if code <= 0 {
			code = 1
		}
		return &exitError{code: code}
	}
	return nil
}

func (c command) RemoteJobs(ctx context.Context, f RemoteFlags, phase batch.Phase) error {
	cl, err := c.remoteClient(f)
	if err != nil {
		return err
	}
	jobs, err := cl.List(contextOr(ctx), phase)
	if err != nil {
		return err
	}
	return c.printJSON(jobs)
}

func (c command) RemoteGet(ctx context.Context, f RemoteFlags, id string) error {
	cl, err := c.remoteClient(f)
	if err != nil {
		return err
	}
	st, err := cl.Get(contextOr(ctx), id)
	if err != nil {
		return err
	}
	return c.printJSON(st)
}

func (c command) RemoteCancel(ctx context.Context, f RemoteFlags, id string) error {
	cl, err := c.remoteClient(f)
	if err != nil {
		return err
	}
	if err := cl.Cancel(contextOr(ctx), id); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.stdout, "cancelled %s\n", id)
	return nil
}
