// Package upscalr is the public facade over the engine driver, the batch
// runner and the HTTP API, for programs that embed upscalr instead of
// running the CLI.
package upscalr

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/upscalr/internal/batch"
	cfg "github.com/loykin/upscalr/internal/config"
	"github.com/loykin/upscalr/internal/driver"
	"github.com/loykin/upscalr/internal/history"
	"github.com/loykin/upscalr/internal/history/factory"
	"github.com/loykin/upscalr/internal/metrics"
	"github.com/loykin/upscalr/internal/process"
	iapi "github.com/loykin/upscalr/internal/server"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Settings = driver.Settings

type Entry = driver.Entry

type Value = driver.Value

type Upscaler = driver.Upscaler

type Driver = driver.Driver

type DriverOption = driver.Option

type Handle = process.Handle

type Status = process.Status

type Config = cfg.Config

type Job = batch.Job

type JobStatus = batch.JobStatus

type Summary = batch.Summary

type Runner = batch.Runner

type RunnerOption = batch.Option

type HistorySink = history.Sink

var (
	Null   = driver.Null
	Bool   = driver.Bool
	Int    = driver.Int
	String = driver.String

	NewSettings    = driver.NewSettings
	ParseArguments = driver.ParseArguments
	BuildArgs      = driver.BuildArgs

	WithLogger  = driver.WithLogger
	WithEnv     = driver.WithEnv
	WithGOOS    = driver.WithGOOS
	WithHistory = batch.WithHistory
)

// NewDriver creates a driver over a copy of settings.
func NewDriver(s *Settings, opts ...DriverOption) (*Driver, error) { return driver.New(s, opts...) }

func NewRunner(l batch.Launcher, opts ...RunnerOption) *Runner { return batch.New(l, opts...) }

// ExpandDir builds one job per image in dir in, writing under out.
func ExpandDir(in, out, format string) ([]Job, error) {
	return batch.ExpandDir(in, out, nil, format)
}

func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

// NewHistorySink opens a sink from a DSN such as sqlite:///var/lib/upscalr.db.
func NewHistorySink(dsn string) (HistorySink, error) { return factory.NewSinkFromDSN(dsn) }

// NewHTTPServer returns (without starting) a server exposing the job API for runner.
func NewHTTPServer(addr, basePath string, r *Runner) *http.Server {
	return iapi.NewServer(addr, iapi.NewRouter(r, basePath))
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// MetricsHandler serves the default registry.
func MetricsHandler() http.Handler { return metrics.Handler() }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the default registry.
// It runs in the caller goroutine.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
