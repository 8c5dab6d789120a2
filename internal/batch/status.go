package batch

import "time"

// Phase is the lifecycle phase of one engine job.
type Phase string

const (
	PhasePending   Phase = "Pending"
	PhaseRunning   Phase = "Running"
	PhaseSucceeded Phase = "Succeeded"
	PhaseFailed    Phase = "Failed"
	PhaseCancelled Phase = "Cancelled"
)

// Finished reports whether the phase is terminal.
func (p Phase) Finished() bool {
	return p == PhaseSucceeded || p == PhaseFailed || p == PhaseCancelled
}

// Job is one input/output pair handed to the engine.
type Job struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// JobStatus is a snapshot of a submitted job.
type JobStatus struct {
	ID          string     `json:"id"`
	Input       string     `json:"input"`
	Output      string     `json:"output"`
	Phase       Phase      `json:"phase"`
	PID         int        `json:"pid,omitempty"`
	CommandLine string     `json:"command_line,omitempty"`
	ExitCode    int        `json:"exit_code"`
	Error       string     `json:"error,omitempty"`
	SubmittedAt time.Time  `json:"submitted_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	CPUPercent  float64    `json:"cpu_percent,omitempty"`
	MemoryMB    float64    `json:"memory_mb,omitempty"`
}

// Duration is the engine's run time, zero until the job has started.
func (s JobStatus) Duration() time.Duration {
	if s.StartedAt == nil {
		return 0
	}
	end := time.Now()
	if s.FinishedAt != nil {
		end = *s.FinishedAt
	}
	return end.Sub(*s.StartedAt)
}
