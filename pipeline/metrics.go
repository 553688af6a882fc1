package pipeline

import (
	"sync"
	"time"

	"github.com/sparesparrow/ai-servis/intent"
)

// Metrics tracks pipeline-wide execution counters and a rolling average
// execution time (spec.md §4.5).
type Metrics struct {
	mu sync.Mutex

	TotalCommands int
	Successes     int
	Failures      int
	Timeouts      int
	Cancellations int
	PerIntent     map[intent.Intent]int

	avgExecutionTime time.Duration
}

// NewMetrics constructs an empty Metrics.
func NewMetrics() *Metrics {
	return &Metrics{PerIntent: make(map[intent.Intent]int)}
}

// RecordResult updates counters from a terminal CommandResult exactly once
// per command (spec.md §4.5 "Metrics are updated exactly once per
// command").
func (m *Metrics) RecordResult(r CommandResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TotalCommands++
	if r.Intent != "" {
		m.PerIntent[r.Intent]++
	}
	switch r.State {
	case StateCompleted:
		m.Successes++
	case StateFailed:
		m.Failures++
	case StateTimeout:
		m.Timeouts++
	case StateCancelled:
		m.Cancellations++
	}
	if d := r.Duration(); d > 0 {
		// Incremental mean: avg += (sample - avg) / n.
		n := time.Duration(m.TotalCommands)
		m.avgExecutionTime += (d - m.avgExecutionTime) / n
	}
}

// Snapshot is an immutable copy of the current metrics, safe to serialize.
type Snapshot struct {
	TotalCommands      int                     `json:"total_commands"`
	Successes          int                     `json:"successes"`
	Failures           int                     `json:"failures"`
	Timeouts           int                     `json:"timeouts"`
	Cancellations      int                     `json:"cancellations"`
	PerIntent          map[intent.Intent]int   `json:"per_intent"`
	AvgExecutionTimeMs float64                 `json:"avg_execution_time_ms"`
}

// Snapshot returns a copy of the current counters.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	perIntent := make(map[intent.Intent]int, len(m.PerIntent))
	for k, v := range m.PerIntent {
		perIntent[k] = v
	}
	return Snapshot{
		TotalCommands:      m.TotalCommands,
		Successes:          m.Successes,
		Failures:           m.Failures,
		Timeouts:           m.Timeouts,
		Cancellations:      m.Cancellations,
		PerIntent:          perIntent,
		AvgExecutionTimeMs: float64(m.avgExecutionTime) / float64(time.Millisecond),
	}
}

// Reset zeroes every counter (spec.md §4.5 "metrics-reset check").
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TotalCommands = 0
	m.Successes = 0
	m.Failures = 0
	m.Timeouts = 0
	m.Cancellations = 0
	m.PerIntent = make(map[intent.Intent]int)
	m.avgExecutionTime = 0
}

// Total returns the current total command count without locking semantics
// leaking to the caller.
func (m *Metrics) Total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.TotalCommands
}
