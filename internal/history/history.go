// Package history exports engine job lifecycle events to external stores.
package history

import (
	"context"
	"errors"
	"time"
)

// EventType defines the kind of job event.
type EventType string

const (
	EventLaunch  EventType = "launch"
	EventExit    EventType = "exit"
	EventFailure EventType = "failure"
)

// Record describes one engine invocation.
type Record struct {
	JobID       string `json:"job_id"`
	PID         int    `json:"pid"`
	Input       string `json:"input"`
	Output      string `json:"output"`
	CommandLine string `json:"command_line"`
	ExitCode    int    `json:"exit_code"`
	Error       string `json:"error,omitempty"`
}

// Event is a job event to be exported.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Record     Record    `json:"record"`
}

// Sink is a destination for history events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Multi fans an event out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Send(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Send(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink that can be closed.
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if c, ok := s.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
