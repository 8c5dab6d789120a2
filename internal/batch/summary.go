package batch

import (
	"time"

	"github.com/influxdata/tdigest"
)

// Summary aggregates the outcome of a batch.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	Cancelled int
	Wall      time.Duration
	P50       time.Duration
	P95       time.Duration
	P99       time.Duration
	Max       time.Duration
	Failures  []JobStatus
}

// summarize builds a Summary from finished job snapshots.
func summarize(statuses []JobStatus, wall time.Duration) Summary {
	s := Summary{Total: len(statuses), Wall: wall}
	td := tdigest.NewWithCompression(100)
	var samples int
	for _, st := range statuses {
		switch st.Phase {
		case PhaseSucceeded:
			s.Succeeded++
		case PhaseCancelled:
			s.Cancelled++
		default:
			s.Failed++
			s.Failures = append(s.Failures, st)
		}
		if d := st.Duration(); st.StartedAt != nil {
			td.Add(d.Seconds(), 1)
			samples++
			if d > s.Max {
				s.Max = d
			}
		}
	}
	if samples > 0 {
		s.P50 = seconds(td.Quantile(0.50))
		s.P95 = seconds(td.Quantile(0.95))
		s.P99 = seconds(td.Quantile(0.99))
	}
	return s
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}

// OK reports whether every job succeeded.
func (s Summary) OK() bool { return s.Failed == 0 && s.Cancelled == 0 }
