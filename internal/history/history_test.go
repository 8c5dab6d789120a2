package history

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type memSink struct {
	mu     sync.Mutex
	events []Event
	err    error
	closed bool
}

func (m *memSink) Send(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return m.err
}

func (m *memSink) Close() error { m.closed = true; return nil }

func TestMulti_FansOutAndJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	a, b := &memSink{}, &memSink{err: boom}
	m := Multi{a, nil, b}

	e := Event{Type: EventLaunch, OccurredAt: time.Now(), Record: Record{JobID: "j1", PID: 7}}
	err := m.Send(context.Background(), e)
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if len(a.events) != 1 || len(b.events) != 1 {
		t.Fatalf("every sink should see the event: %d %d", len(a.events), len(b.events))
	}
	if a.events[0].Record.JobID != "j1" {
		t.Fatalf("unexpected record: %+v", a.events[0].Record)
	}

	if err := m.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !a.closed || !b.closed {
		t.Fatal("sinks not closed")
	}
}

func TestMulti_Empty(t *testing.T) {
	if err := (Multi{}).Send(context.Background(), Event{}); err != nil {
		t.Fatalf("empty multi: %v", err)
	}
}
