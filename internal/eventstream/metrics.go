package eventstream

import (
	"sync"
	"time"
)

// AwaitSnapshot summarises observed replay-handle await durations.
type AwaitSnapshot struct {
	Samples int
	Average time.Duration
	Max     time.Duration
	Last    time.Duration
}

// AwaitMonitor accumulates timing statistics for how long the replay
// awaiter spent waiting on each transaction's completion handle, the same
// shape the teacher's simulation tick monitor used for frame timings,
// repurposed here to flag consumers drifting towards ConsumerHangDetected.
type AwaitMonitor struct {
	mu      sync.Mutex
	samples int
	total   time.Duration
	max     time.Duration
	last    time.Duration
}

// NewAwaitMonitor constructs an empty monitor.
func NewAwaitMonitor() *AwaitMonitor {
	return &AwaitMonitor{}
}

// Observe records the duration a single transaction's handle took to
// resolve (successfully or not).
func (m *AwaitMonitor) Observe(duration time.Duration) {
	if m == nil || duration <= 0 {
		return
	}
	m.mu.Lock()
	m.samples++
	m.total += duration
	if duration > m.max {
		m.max = duration
	}
	m.last = duration
	m.mu.Unlock()
}

// Snapshot returns a copy of the aggregated statistics.
func (m *AwaitMonitor) Snapshot() AwaitSnapshot {
	if m == nil {
		return AwaitSnapshot{}
	}
	m.mu.Lock()
	samples, total, max, last := m.samples, m.total, m.max, m.last
	m.mu.Unlock()

	average := time.Duration(0)
	if samples > 0 {
		average = total / time.Duration(samples)
	}
	return AwaitSnapshot{Samples: samples, Average: average, Max: max, Last: last}
}
