package process

import "time"

// Status is a point-in-time view of an engine process.
type Status struct {
	Name      string    `json:"name"`
	PID       int       `json:"pid"`
	Running   bool      `json:"running"`
	StartedAt time.Time `json:"started_at"`
	ExitedAt  time.Time `json:"exited_at"`
	ExitCode  int       `json:"exit_code"`       // -1 while running or when killed by a signal
	Err       error     `json:"-"`               // wait failure other than a non-zero exit
	Error     string    `json:"error,omitempty"` // Err rendered for JSON
}

// Succeeded reports a clean exit with code 0.
func (s Status) Succeeded() bool {
	return !s.Running && s.ExitCode == 0 && s.Err == nil
}

// Duration is the wall time between start and exit (or now, while running).
func (s Status) Duration() time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	if s.Running || s.ExitedAt.IsZero() {
		return time.Since(s.StartedAt)
	}
	return s.ExitedAt.Sub(s.StartedAt)
}
