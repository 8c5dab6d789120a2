package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/loykin/upscalr/internal/auth"
	"github.com/loykin/upscalr/internal/batch"
	"github.com/loykin/upscalr/internal/cron"
	"github.com/loykin/upscalr/internal/driver"
	"github.com/loykin/upscalr/internal/history"
	"github.com/loykin/upscalr/internal/history/factory"
	"github.com/loykin/upscalr/internal/metrics"
	"github.com/loykin/upscalr/internal/server"
	itls "github.com/loykin/upscalr/internal/tls"
)

func createUpscaleCommand(c command, flags *UpscaleFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upscale -i INPUT -o OUTPUT [-- engine flags]",
		Short: "Upscale one image and exit with the engine's code",
		Long: `Launch the engine once, wait for it and exit with its exit code.
The engine command line is logged at debug level; the engine's -v switch
also lowers the log level to debug unless --log-level is given.

Examples:
  upscalr upscale -i in.png -o out.png --config upscalr.toml
  upscalr upscale -i in.png -o out.png -- -n 3 -s 2 -x
  upscalr upscale --engine ./waifu2x-ncnn-vulkan -- -i in.png -o out.png`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Upscale(cmd.Context(), *flags, engineArgs(cmd.ArgsLenAtDash(), args))
		},
	}
	cmd.Flags().StringVarP(&flags.Input, "input", "i", "", "input image")
	cmd.Flags().StringVarP(&flags.Output, "output", "o", "", "output image")
	return cmd
}

func createBatchCommand(c command, flags *BatchFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch --input-dir DIR --output-dir DIR [-- engine flags]",
		Short: "Upscale every image in a directory",
		Long: `Launch one engine per image found directly inside --input-dir, at most
--jobs at a time, and print a summary. Failed jobs are reported, never retried.

Examples:
  upscalr batch --input-dir ./in --output-dir ./out
  upscalr batch --input-dir ./in --output-dir ./out --jobs 2 --format webp -- -n 1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Batch(cmd.Context(), *flags, engineArgs(cmd.ArgsLenAtDash(), args))
		},
	}
	cmd.Flags().StringVar(&flags.InputDir, "input-dir", "", "directory with input images (required)")
	cmd.Flags().StringVar(&flags.OutputDir, "output-dir", "", "directory for output images (required)")
	cmd.Flags().IntVarP(&flags.Jobs, "jobs", "J", 1, "engines running at the same time (0 = no limit)")
	cmd.Flags().StringVar(&flags.Format, "format", "", "output extension (jpg, png, webp); defaults to the engine's -f")
	cmd.Flags().StringSliceVar(&flags.Extensions, "ext", nil, "input extensions to pick up (default jpg,jpeg,png,webp)")
	cmd.Flags().DurationVar(&flags.Sample, "sample", 0, "sample engine CPU and memory at this interval (0 = off)")

	if err := cmd.MarkFlagRequired("input-dir"); err != nil {
		panic(err)
	}
	if err := cmd.MarkFlagRequired("output-dir"); err != nil {
		panic(err)
	}
	return cmd
}

func createServeCommand(c command, flags *ServeFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the job API over HTTP",
		Long: `Start the HTTP API. Jobs submitted to POST {base}/upscale run in the
background; GET {base}/jobs lists them.

Examples:
  upscalr serve --config upscalr.toml
  upscalr serve --listen :9090 --router echo --engine ./waifu2x-ncnn-vulkan`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(contextOr(cmd.Context()), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return c.Serve(ctx, *flags)
		},
	}
	cmd.Flags().StringVar(&flags.Listen, "listen", "", "listen address (overrides server.listen)")
	cmd.Flags().StringVar(&flags.BasePath, "base-path", "", "API base path (overrides server.base_path)")
	cmd.Flags().StringVar(&flags.Router, "router", "", "HTTP framework: gin or echo (overrides server.router)")
	cmd.Flags().DurationVar(&flags.Sample, "sample", 5*time.Second, "sample engine CPU and memory at this interval (0 = off)")
	return cmd
}

func createArgsCommand(c command, flags *ArgsFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "args [-- engine flags]",
		Short: "Print the engine command line without running it",
		Long: `Resolve the config and engine flags and print the argument vector that
upscale would execute, followed by the engine's working directory.

Examples:
  upscalr args --config upscalr.toml
  upscalr args -i in.png -o out.png -- -n 2 -s 2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Args(*flags, engineArgs(cmd.ArgsLenAtDash(), args))
		},
	}
	cmd.Flags().StringVarP(&flags.Input, "input", "i", "", "input image")
	cmd.Flags().StringVarP(&flags.Output, "output", "o", "", "output image")
	return cmd
}

// Upscale runs one job in the foreground. Interrupts are forwarded to the engine.
func (c command) Upscale(ctx context.Context, flags UpscaleFlags, eargs []string) error {
	s, err := c.open(eargs)
	if errors.Is(err, errEngineHelp) {
		return nil
	}
	if err != nil {
		return err
	}
	in := firstNonEmpty(flags.Input, s.input)
	out := firstNonEmpty(flags.Output, s.output)
	if in == "" || out == "" {
		return errors.New("both --input and --output are required")
	}

	h, err := s.driver.Upscale(in, out)
	if err != nil {
		return err
	}
	s.log.Info("engine started", "pid", h.PID(), "input", in, "output", out)

	ctx, stop := signal.NotifyContext(contextOr(ctx), os.Interrupt, syscall.SIGTERM)
	defer stop()
	st, err := h.WaitContext(ctx)
	if err != nil {
		_ = h.Terminate()
		st = h.Wait()
	}
	if st.Succeeded() {
		s.log.Info("engine finished", "pid", st.PID, "duration", st.Duration())
		return nil
	}
	code := st.ExitCode
	if code <= 0 {
		code = 1
	}
	s.log.Error("engine failed", "pid", st.PID, "exit_code", st.ExitCode, "error", st.Error)
	return &exitError{code: code}
}

// Batch upscales a directory and renders the summary.
func (c command) Batch(ctx context.Context, flags BatchFlags, eargs []string) error {
	s, err := c.open(eargs)
	if errors.Is(err, errEngineHelp) {
		return nil
	}
	if err != nil {
		return err
	}
	if flags.Jobs < 0 {
		return fmt.Errorf("--jobs must not be negative, got %d", flags.Jobs)
	}
	jobs, err := batch.ExpandDir(flags.InputDir, flags.OutputDir, flags.Extensions, s.outputFormat(flags.Format))
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		_, _ = fmt.Fprintf(c.stdout, "no images found in %s\n", flags.InputDir)
		return nil
	}

	sinks, err := openHistory(s)
	if err != nil {
		return err
	}
	defer func() { _ = sinks.Close() }()

	opts := []batch.Option{
		batch.WithLogger(s.log),
		batch.WithEngineName(driver.Name),
		batch.WithUsageInterval(flags.Sample),
	}
	if len(sinks) > 0 {
		opts = append(opts, batch.WithHistory(sinks))
	}
	runner := batch.New(s.driver, opts...)

	ctx, stop := signal.NotifyContext(contextOr(ctx), os.Interrupt, syscall.SIGTERM)
	defer stop()
	sum, runErr := runner.Run(ctx, jobs, flags.Jobs)
	renderSummary(c.stdout, sum)
	if runErr != nil {
		return runErr
	}
	if !sum.OK() {
		return &exitError{code: 1}
	}
	return nil
}

// Serve runs the HTTP API until ctx ends, then kills any running engine.
func (c command) Serve(ctx context.Context, flags ServeFlags) error {
	s, err := c.open(nil)
	if err != nil {
		return err
	}
	cfg := s.cfg
	listen := firstNonEmpty(flags.Listen, cfg.Server.Listen)
	base := firstNonEmpty(flags.BasePath, cfg.Server.BasePath)
	kind := strings.ToLower(firstNonEmpty(flags.Router, cfg.Server.Router, "gin"))
	if kind != "gin" && kind != "echo" {
		return fmt.Errorf("router must be gin or echo, got %q", kind)
	}

	if cfg.Metrics.Enabled {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
	}
	sinks, err := openHistory(s)
	if err != nil {
		return err
	}
	defer func() { _ = sinks.Close() }()

	opts := []batch.Option{
		batch.WithLogger(s.log),
		batch.WithEngineName(driver.Name),
		batch.WithUsageInterval(flags.Sample),
	}
	if len(sinks) > 0 {
		opts = append(opts, batch.WithHistory(sinks))
	}
	runner := batch.New(s.driver, opts...)

	var authSvc *auth.Service
	if cfg.Auth.Enabled {
		if authSvc, err = auth.NewService(cfg.Auth); err != nil {
			return err
		}
	}
	tlsCfg, err := itls.Setup(cfg.Server.TLS)
	if err != nil {
		return err
	}

	r := server.NewRouter(runner, base).
		WithMetrics(cfg.Metrics.Enabled && cfg.Metrics.Listen == "").
		WithAuth(authSvc)
	srv := server.NewServer(listen, r)
	srv.TLSConfig = tlsCfg
	if kind == "echo" {
		e := echo.New()
		e.HideBanner = true
		e.HidePort = true
		server.MountEcho(e, r)
		srv.Handler = e
	}
	servers := []*http.Server{srv}
	if cfg.Metrics.Enabled && cfg.Metrics.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		servers = append(servers, &http.Server{Addr: cfg.Metrics.Listen, Handler: mux, ReadHeaderTimeout: 10 * time.Second})
	}

	sched, err := s.schedules(runner)
	if err != nil {
		return err
	}
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	errCh := make(chan error, len(servers))
	for _, hs := range servers {
		s.log.Info("listening", "addr", hs.Addr, "router", kind, "base_path", r.BasePath(),
			"tls", hs.TLSConfig != nil, "auth", authSvc != nil)
		go func(hs *http.Server) {
			var err error
			if hs.TLSConfig != nil {
				err = hs.ListenAndServeTLS("", "")
			} else {
				err = hs.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("listen %s: %w", hs.Addr, err)
			}
		}(hs)
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, hs := range servers {
		_ = hs.Shutdown(shutdownCtx)
	}
	for _, st := range runner.List() {
		if !st.Phase.Finished() {
			_ = runner.Cancel(st.ID)
		}
	}
	s.log.Info("server stopped")
	return serveErr
}

// Args prints the command line a launch would use.
func (c command) Args(flags ArgsFlags, eargs []string) error {
	s, err := c.open(eargs)
	if errors.Is(err, errEngineHelp) {
		return nil
	}
	if err != nil {
		return err
	}
	in := firstNonEmpty(flags.Input, s.input)
	out := firstNonEmpty(flags.Output, s.output)
	if in == "" && out == "" {
		settings := s.driver.Settings()
		_, _ = fmt.Fprintln(c.stdout, strings.Join(driver.BuildArgs(settings), " "))
		return nil
	}
	spec, argv, err := s.driver.Prepare(in, out)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(c.stdout, strings.Join(argv, " "))
	if spec.WorkDir != "" {
		_, _ = fmt.Fprintf(c.stdout, "cwd: %s\n", spec.WorkDir)
	}
	return nil
}

// schedules builds a scheduler running each [[schedule]] as a directory
// batch over images that have no output yet.
func (s *session) schedules(runner *batch.Runner) (*cron.Scheduler, error) {
	sched := cron.NewScheduler(s.log)
	for _, sc := range s.cfg.Schedules {
		sc := sc
		format := s.outputFormat(sc.Format)
		err := sched.Add(cron.Job{
			Name:     sc.Name,
			Schedule: sc.Cron,
			TimeZone: sc.TimeZone,
			Suspend:  sc.Suspend,
			Run: func(ctx context.Context) error {
				jobs, err := batch.ExpandDir(sc.InputDir, sc.OutputDir, sc.Extensions, format)
				if err != nil {
					return err
				}
				jobs = batch.SkipExisting(jobs)
				if len(jobs) == 0 {
					return nil
				}
				sum, err := runner.Run(ctx, jobs, sc.Jobs)
				if err != nil {
					return err
				}
				if !sum.OK() {
					return fmt.Errorf("%d of %d jobs did not succeed", sum.Failed+sum.Cancelled, sum.Total)
				}
				return nil
			},
		})
		if err != nil {
			return nil, err
		}
	}
	return sched, nil
}

// outputFormat falls back to the engine's -f option.
func (s *session) outputFormat(format string) string {
	if format != "" {
		return format
	}
	if f, ok := s.driver.Settings().Get(driver.KeyFormat); ok {
		format, _ = f.Str()
	}
	return format
}

func openHistory(s *session) (history.Multi, error) {
	targets := s.cfg.History.Targets()
	if len(targets) == 0 {
		return nil, nil
	}
	sinks, err := factory.NewSinks(targets)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	s.log.Info("history enabled", "sinks", len(sinks))
	return sinks, nil
}

func contextOr(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func createHashPasswordCommand(c command, flags *HashPasswordFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Print a bcrypt hash for an [[auth.accounts]] password_hash",
		Long: `Hash a password for the [auth] section. The password is read from
--password or, when omitted, from the first line of standard input.

Examples:
  upscalr hash-password --password 's3cret'
  echo 's3cret' | upscalr hash-password`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.HashPassword(cmd.InOrStdin(), *flags)
		},
	}
	cmd.Flags().StringVar(&flags.Password, "password", "", "password to hash (default: read stdin)")
	cmd.Flags().IntVar(&flags.Cost, "cost", 0, "bcrypt cost (default 10)")
	return cmd
}

// HashPassword prints the bcrypt hash of the given or piped password.
func (c command) HashPassword(in io.Reader, flags HashPasswordFlags) error {
	pw := flags.Password
	if pw == "" {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read password: %w", err)
		}
		pw = strings.TrimRight(line, "\r\n")
	}
	h, err := auth.HashPassword(pw, flags.Cost)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(c.stdout, h)
	return nil
}
