package process

import (
	"fmt"
	"log/slog"
	"runtime"
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// Usage is a resource sample of a running engine process.
type Usage struct {
	PID        int32     `json:"pid"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryRSS  uint64    `json:"memory_rss"`
	MemoryMB   float64   `json:"memory_mb"`
	NumThreads int32     `json:"num_threads"`
	NumFDs     int32     `json:"num_fds"`
	Timestamp  time.Time `json:"timestamp"`
}

// Usage samples CPU and memory of the child. It is meant for progress
// displays; the engine reports no progress of its own through the CLI.
func (h *Handle) Usage() (Usage, error) {
	if !h.Running() {
		return Usage{}, fmt.Errorf("process %d has exited", h.PID())
	}
	pid := int32(h.PID())
	proc, err := gopsproc.NewProcess(pid)
	if err != nil {
		return Usage{}, fmt.Errorf("failed to create process handle: %w", err)
	}

	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		slog.Debug("Failed to get CPU percent", "pid", pid, "error", err)
		cpuPercent = 0
	}
	memInfo, err := proc.MemoryInfo()
	if err != nil {
		return Usage{}, fmt.Errorf("failed to get memory info: %w", err)
	}
	numThreads, err := proc.NumThreads()
	if err != nil {
		slog.Debug("Failed to get thread count", "pid", pid, "error", err)
		numThreads = 0
	}

	u := Usage{
		PID:        pid,
		CPUPercent: cpuPercent,
		MemoryRSS:  memInfo.RSS,
		MemoryMB:   float64(memInfo.RSS) / 1024 / 1024,
		NumThreads: numThreads,
		Timestamp:  time.Now(),
	}
	if runtime.GOOS != "windows" {
		if numFDs, err := proc.NumFDs(); err == nil {
			u.NumFDs = numFDs
		}
	}
	return u, nil
}
