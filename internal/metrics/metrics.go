package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	launches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "upscalr",
			Subsystem: "engine",
			Name:      "launches_total",
			Help:      "Number of engine processes started.",
		}, []string{"engine"},
	)
	launchFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "upscalr",
			Subsystem: "engine",
			Name:      "launch_failures_total",
			Help:      "Number of engine processes that could not be started.",
		}, []string{"engine"},
	)
	exits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "upscalr",
			Subsystem: "engine",
			Name:      "exits_total",
			Help:      "Number of engine exits by exit code.",
		}, []string{"engine", "code"},
	)
	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "upscalr",
			Subsystem: "engine",
			Name:      "job_duration_seconds",
			Help:      "Wall time from engine start to exit.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"engine"},
	)
	activeJobs = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "upscalr",
			Subsystem: "engine",
			Name:      "active_jobs",
			Help:      "Engine processes currently running.",
		}, []string{"engine"},
	)
	cpuPercent = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "upscalr",
			Subsystem: "engine",
			Name:      "cpu_percent",
			Help:      "Last sampled CPU usage of a running engine job.",
		}, []string{"job"},
	)
	memoryRSS = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "upscalr",
			Subsystem: "engine",
			Name:      "memory_rss_bytes",
			Help:      "Last sampled resident memory of a running engine job.",
		}, []string{"job"},
	)
	scheduledRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "upscalr",
			Subsystem: "schedule",
			Name:      "runs_total",
			Help:      "Scheduled directory batches by result (ok, failed, skipped).",
		}, []string{"schedule", "result"},
	)
	nextRun = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "upscalr",
			Subsystem: "schedule",
			Name:      "next_run_timestamp_seconds",
			Help:      "Unix time of the next scheduled batch.",
		}, []string{"schedule"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{launches, launchFailures, exits, jobDuration, activeJobs, cpuPercent, memoryRSS, scheduledRuns, nextRun}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// already registered with this registerer; keep the existing one
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// The helpers below no-op until Register succeeds.

func IncLaunch(engine string) {
	if regOK.Load() {
		launches.WithLabelValues(engine).Inc()
		activeJobs.WithLabelValues(engine).Inc()
	}
}

func IncLaunchFailure(engine string) {
	if regOK.Load() {
		launchFailures.WithLabelValues(engine).Inc()
	}
}

// ObserveExit records a finished engine process and decrements active_jobs.
func ObserveExit(engine string, code int, seconds float64) {
	if regOK.Load() {
		exits.WithLabelValues(engine, strconv.Itoa(code)).Inc()
		jobDuration.WithLabelValues(engine).Observe(seconds)
		activeJobs.WithLabelValues(engine).Dec()
	}
}

func SetUsage(job string, cpu float64, rss uint64) {
	if regOK.Load() {
		cpuPercent.WithLabelValues(job).Set(cpu)
		memoryRSS.WithLabelValues(job).Set(float64(rss))
	}
}

// ForgetJob drops the per-job usage series once the job is gone.
func ForgetJob(job string) {
	if regOK.Load() {
		cpuPercent.DeleteLabelValues(job)
		memoryRSS.DeleteLabelValues(job)
	}
}

func IncScheduledRun(schedule, result string) {
	if regOK.Load() {
		scheduledRuns.WithLabelValues(schedule, result).Inc()
	}
}

func SetNextRun(schedule string, unix float64) {
	if regOK.Load() {
		nextRun.WithLabelValues(schedule).Set(unix)
	}
}
