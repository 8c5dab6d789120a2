// Package cron runs directory batches on cron schedules.
package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"

	"github.com/loykin/upscalr/internal/metrics"
)

var (
	ErrJobNotFound = errors.New("no such cron job")
	ErrRunning     = errors.New("cron job is already running")
)

// RunFunc performs one scheduled run. ctx ends when the scheduler stops.
type RunFunc func(ctx context.Context) error

// Job is one named schedule. Schedule accepts standard five-field cron
// expressions and descriptors such as "@hourly" or "@every 10m".
// A tick that fires while the previous run is still going is skipped.
type Job struct {
	Name     string
	Schedule string
	TimeZone string // IANA name; empty means local time
	Suspend  bool   // registered but never fired
	Run      RunFunc
}

func (j Job) validate() error {
	if j.Name == "" {
		return errors.New("cron job requires a name")
	}
	if j.Schedule == "" {
		return fmt.Errorf("cron job %s requires a schedule", j.Name)
	}
	if j.Run == nil {
		return fmt.Errorf("cron job %s has nothing to run", j.Name)
	}
	return nil
}

// ParseSchedule validates a schedule expression in the given time zone.
func ParseSchedule(expr, tz string) (rcron.Schedule, error) {
	if tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return nil, fmt.Errorf("invalid time zone %q: %w", tz, err)
		}
		expr = "CRON_TZ=" + tz + " " + expr
	}
	s, err := rcron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	return s, nil
}

// Stats counts the outcomes of one job's runs.
type Stats struct {
	Runs    int       `json:"runs"`
	Failed  int       `json:"failed"`
	Skipped int       `json:"skipped"`
	LastRun time.Time `json:"last_run"`
	NextRun time.Time `json:"next_run"`
	Running bool      `json:"running"`
}

type entry struct {
	job     Job
	id      rcron.EntryID
	running bool
	stats   Stats
}

// Scheduler runs cron jobs until Stop.
type Scheduler struct {
	c      *rcron.Cron
	log    *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	entries map[string]*entry
	started bool
}

func NewScheduler(log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		c:       rcron.New(),
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]*entry),
	}
}

// Add registers a job. Names must be unique.
func (s *Scheduler) Add(j Job) error {
	if err := j.validate(); err != nil {
		return err
	}
	sched, err := ParseSchedule(j.Schedule, j.TimeZone)
	if err != nil {
		return fmt.Errorf("cron job %s: %w", j.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.entries[j.Name]; dup {
		return fmt.Errorf("cron job %s already exists", j.Name)
	}
	e := &entry{job: j}
	s.entries[j.Name] = e
	if j.Suspend {
		s.log.Info("cron job suspended", "name", j.Name)
		return nil
	}
	e.id = s.c.Schedule(sched, rcron.FuncJob(func() { _ = s.fire(e) }))
	return nil
}

// Start begins firing jobs.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("scheduler already started")
	}
	s.started = true
	s.c.Start()
	for name, e := range s.entries {
		if e.job.Suspend {
			continue
		}
		next := s.c.Entry(e.id).Next
		e.stats.NextRun = next
		metrics.SetNextRun(name, float64(next.Unix()))
		s.log.Info("cron job scheduled", "name", name, "schedule", e.job.Schedule, "next", next)
	}
	return nil
}

// Stop stops scheduling, cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.c.Stop().Done()
}

// Stats returns the counters of a job.
func (s *Scheduler) Stats(name string) (Stats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok {
		return Stats{}, false
	}
	st := e.stats
	st.Running = e.running
	return st, true
}

// Trigger runs a job now in the calling goroutine, suspended or not.
// A tick of the same job that arrives meanwhile is skipped.
func (s *Scheduler) Trigger(name string) error {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("cron job %s: %w", name, ErrJobNotFound)
	}
	return s.fire(e)
}

func (s *Scheduler) fire(e *entry) error {
	s.mu.Lock()
	name := e.job.Name
	if e.running {
		e.stats.Skipped++
		s.mu.Unlock()
		metrics.IncScheduledRun(name, "skipped")
		s.log.Info("cron job still running, tick skipped", "name", name)
		return ErrRunning
	}
	e.running = true
	e.stats.LastRun = time.Now()
	s.mu.Unlock()

	err := e.job.Run(s.ctx)

	s.mu.Lock()
	e.running = false
	e.stats.Runs++
	if err != nil {
		e.stats.Failed++
	}
	var next time.Time
	if !e.job.Suspend {
		next = s.c.Entry(e.id).Next
		e.stats.NextRun = next
	}
	s.mu.Unlock()

	if !next.IsZero() {
		metrics.SetNextRun(name, float64(next.Unix()))
	}
	if err != nil {
		metrics.IncScheduledRun(name, "failed")
		s.log.Warn("cron job failed", "name", name, "error", err)
		return err
	}
	metrics.IncScheduledRun(name, "ok")
	s.log.Info("cron job finished", "name", name, "next", next)
	return nil
}
