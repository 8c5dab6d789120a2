// Package batch runs many engine jobs with bounded concurrency and tracks
// them by id for the CLI and the HTTP API.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/loykin/upscalr/internal/history"
	"github.com/loykin/upscalr/internal/metrics"
	"github.com/loykin/upscalr/internal/process"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrJobFinished = errors.New("job already finished")
)

// Launcher starts one engine invocation. *driver.Driver implements it.
type Launcher interface {
	Upscale(input, output string) (*process.Handle, error)
}

// Option configures a Runner.
type Option func(*Runner)

// WithHistory exports launch, exit and failure events to sink.
func WithHistory(sink history.Sink) Option {
	return func(r *Runner) { r.sink = sink }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.log = l }
}

// WithEngineName sets the engine label used in metrics.
func WithEngineName(name string) Option {
	return func(r *Runner) { r.engine = name }
}

// WithUsageInterval samples CPU and memory of running jobs every d.
// Zero disables sampling.
func WithUsageInterval(d time.Duration) Option {
	return func(r *Runner) { r.usageEvery = d }
}

// Runner launches jobs through a Launcher and remembers their outcome.
// Non-zero exits are reported, never retried.
type Runner struct {
	launcher   Launcher
	sink       history.Sink
	log        *slog.Logger
	engine     string
	usageEvery time.Duration

	mu    sync.RWMutex
	jobs  map[string]*entry
	order []string
}

type entry struct {
	mu        sync.Mutex
	status    JobStatus
	handle    *process.Handle
	cancelled bool
	done      chan struct{}
}

func (e *entry) snapshot() JobStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

func New(l Launcher, opts ...Option) *Runner {
	r := &Runner{
		launcher: l,
		log:      slog.Default(),
		engine:   "engine",
		jobs:     make(map[string]*entry),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Submit launches one job and returns its id without waiting for the engine.
// A launch failure is returned and the job is kept in the Failed phase.
func (r *Runner) Submit(job Job) (string, error) {
	e := &entry{
		status: JobStatus{
			ID:          uuid.NewString(),
			Input:       job.Input,
			Output:      job.Output,
			Phase:       PhasePending,
			ExitCode:    -1,
			SubmittedAt: time.Now(),
		},
		done: make(chan struct{}),
	}
	r.mu.Lock()
	r.jobs[e.status.ID] = e
	r.order = append(r.order, e.status.ID)
	r.mu.Unlock()

	return e.status.ID, r.start(e)
}

func (r *Runner) start(e *entry) error {
	id := e.status.ID
	h, err := r.launcher.Upscale(e.status.Input, e.status.Output)
	if err != nil {
		now := time.Now()
		e.mu.Lock()
		e.status.Phase = PhaseFailed
		e.status.Error = err.Error()
		e.status.FinishedAt = &now
		st := e.status
		e.mu.Unlock()

		metrics.IncLaunchFailure(r.engine)
		r.record(history.EventFailure, st)
		r.log.Error("engine launch failed", "job", id, "input", st.Input, "error", err)
		close(e.done)
		return err
	}

	ps := h.Status()
	spec := h.Spec()
	e.mu.Lock()
	e.handle = h
	e.status.Phase = PhaseRunning
	e.status.PID = ps.PID
	e.status.CommandLine = spec.CommandLine()
	e.status.StartedAt = &ps.StartedAt
	st := e.status
	e.mu.Unlock()

	metrics.IncLaunch(r.engine)
	r.record(history.EventLaunch, st)
	r.log.Info("engine started", "job", id, "pid", st.PID, "input", st.Input)

	go r.watch(e)
	return nil
}

func (r *Runner) watch(e *entry) {
	h := e.handle
	var tick <-chan time.Time
	if r.usageEvery > 0 {
		t := time.NewTicker(r.usageEvery)
		defer t.Stop()
		tick = t.C
	}
wait:
	for {
		select {
		case <-h.Done():
			break wait
		case <-tick:
			r.sampleUsage(e)
		}
	}

	ps := h.Wait()
	e.mu.Lock()
	exited := ps.ExitedAt
	e.status.FinishedAt = &exited
	e.status.ExitCode = ps.ExitCode
	e.status.Error = ps.Error
	// A clean exit wins over a cancel that raced with it.
	switch {
	case ps.Succeeded():
		e.status.Phase = PhaseSucceeded
	case e.cancelled:
		e.status.Phase = PhaseCancelled
	default:
		e.status.Phase = PhaseFailed
		if e.status.Error == "" {
			e.status.Error = fmt.Sprintf("exit status %d", ps.ExitCode)
		}
	}
	st := e.status
	e.mu.Unlock()

	metrics.ObserveExit(r.engine, ps.ExitCode, ps.Duration().Seconds())
	metrics.ForgetJob(st.ID)
	r.record(history.EventExit, st)
	if st.Phase == PhaseSucceeded {
		r.log.Info("engine finished", "job", st.ID, "pid", st.PID, "duration", st.Duration())
	} else {
		r.log.Warn("engine finished", "job", st.ID, "pid", st.PID, "phase", st.Phase, "exit_code", st.ExitCode, "error", st.Error)
	}
	close(e.done)
}

func (r *Runner) sampleUsage(e *entry) {
	u, err := e.handle.Usage()
	if err != nil {
		return
	}
	e.mu.Lock()
	e.status.CPUPercent = u.CPUPercent
	e.status.MemoryMB = u.MemoryMB
	id := e.status.ID
	e.mu.Unlock()
	metrics.SetUsage(id, u.CPUPercent, u.MemoryRSS)
}

func (r *Runner) record(t history.EventType, st JobStatus) {
	if r.sink == nil {
		return
	}
	ev := history.Event{
		Type:       t,
		OccurredAt: time.Now().UTC(),
		Record: history.Record{
			JobID:       st.ID,
			PID:         st.PID,
			Input:       st.Input,
			Output:      st.Output,
			CommandLine: st.CommandLine,
			ExitCode:    st.ExitCode,
			Error:       st.Error,
		},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.sink.Send(ctx, ev); err != nil {
		r.log.Warn("history export failed", "job", st.ID, "event", t, "error", err)
	}
}

// Run launches jobs with at most limit engines at a time (limit <= 0 means
// no limit) and waits for all of them. Cancelling ctx kills running engines
// and skips jobs that have not started; Run then returns ctx.Err().
func (r *Runner) Run(ctx context.Context, jobs []Job, limit int) (Summary, error) {
	began := time.Now()
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}

	ids := make([]string, len(jobs))
	for i, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			id, err := r.Submit(job)
			ids[i] = id
			if err != nil {
				return nil
			}
			r.wait(ctx, id)
			return nil
		})
	}
	_ = g.Wait()

	statuses := make([]JobStatus, 0, len(jobs))
	skipped := 0
	for _, id := range ids {
		if id == "" {
			skipped++
			continue
		}
		if st, ok := r.Get(id); ok {
			statuses = append(statuses, st)
		}
	}
	sum := summarize(statuses, time.Since(began))
	sum.Total += skipped
	sum.Cancelled += skipped
	return sum, ctx.Err()
}

// wait blocks until the job finishes, cancelling it when ctx ends first.
func (r *Runner) wait(ctx context.Context, id string) {
	e := r.entry(id)
	if e == nil {
		return
	}
	select {
	case <-e.done:
	case <-ctx.Done():
		_ = r.Cancel(id)
		<-e.done
	}
}

// Wait blocks until the job finishes or ctx ends and returns its last status.
func (r *Runner) Wait(ctx context.Context, id string) (JobStatus, error) {
	e := r.entry(id)
	if e == nil {
		return JobStatus{}, ErrJobNotFound
	}
	select {
	case <-e.done:
		return e.snapshot(), nil
	case <-ctx.Done():
		return e.snapshot(), ctx.Err()
	}
}

func (r *Runner) entry(id string) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.jobs[id]
}

// Get returns the status of a job.
func (r *Runner) Get(id string) (JobStatus, bool) {
	e := r.entry(id)
	if e == nil {
		return JobStatus{}, false
	}
	return e.snapshot(), true
}

// List returns every job in submission order.
func (r *Runner) List() []JobStatus {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.order))
	for _, id := range r.order {
		entries = append(entries, r.jobs[id])
	}
	r.mu.RUnlock()

	out := make([]JobStatus, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.snapshot())
	}
	return out
}

// Cancel kills a running job's engine through its handle.
func (r *Runner) Cancel(id string) error {
	e := r.entry(id)
	if e == nil {
		return ErrJobNotFound
	}
	e.mu.Lock()
	if e.status.Phase.Finished() || e.handle == nil {
		e.mu.Unlock()
		return ErrJobFinished
	}
	e.cancelled = true
	h := e.handle
	e.mu.Unlock()

	if err := h.Kill(); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			// exited on its own; watch has not recorded it yet
			e.mu.Lock()
			e.cancelled = false
			e.mu.Unlock()
			return ErrJobFinished
		}
		return fmt.Errorf("cancel job %s: %w", id, err)
	}
	r.log.Info("engine cancelled", "job", id)
	return nil
}
