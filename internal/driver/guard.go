package driver

import (
	"log/slog"
	"sync"
)

// DebugLogger is the only logging capability the driver needs.
type DebugLogger interface {
	Debug(msg string, args ...any)
}

// PrintGuard serializes diagnostic lines from concurrent launches. The lock
// is held for exactly one emission and never across a process start.
type PrintGuard struct {
	mu  sync.Mutex
	out DebugLogger
}

// NewPrintGuard wraps out; a nil out falls back to slog.Default().
func NewPrintGuard(out DebugLogger) *PrintGuard {
	if out == nil {
		out = slog.Default()
	}
	return &PrintGuard{out: out}
}

// Debug emits one debug line while holding the guard.
func (g *PrintGuard) Debug(msg string, args ...any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.out.Debug(msg, args...)
}
