package scan

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// FailureMonitor watches fetch outcomes over a sliding window and decides
// when the orchestrator should fall back to sequential scanning. A degraded
// upstream handles one slow connection far better than a worker pool's
// worth of them.
type FailureMonitor struct {
	mu        sync.Mutex
	window    []bool
	size      int
	next      int
	filled    bool
	threshold float64
	degraded  bool
}

// NewFailureMonitor builds a monitor over the last windowSize outcomes.
// threshold is the failure fraction that flips fallback on.
func NewFailureMonitor(windowSize int, threshold float64) *FailureMonitor {
	if windowSize <= 0 {
		windowSize = 20
	}
	if threshold <= 0 || threshold > 1 {
		threshold = 0.5
	}
	return &FailureMonitor{
		window:    make([]bool, windowSize),
		size:      windowSize,
		threshold: threshold,
	}
}

// Record registers one fetch outcome. Timeouts count as failures.
func (m *FailureMonitor) Record(failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.window[m.next] = failed
	m.next = (m.next + 1) % m.size
	if m.next == 0 {
		m.filled = true
	}

	n := m.size
	if !m.filled {
		n = m.next
	}
	if n == 0 {
		return
	}
	var failures int
	for i := 0; i < n; i++ {
		if m.window[i] {
			failures++
		}
	}
	rate := float64(failures) / float64(n)

	wasDegraded := m.degraded
	// Full window of data required before flipping on; recovery needs the
	// rate back under half the trip threshold.
	switch {
	case !wasDegraded && m.filled && rate >= m.threshold:
		m.degraded = true
	case wasDegraded && rate < m.threshold/2:
		m.degraded = false
	}
	if m.degraded != wasDegraded {
		log.Warn().
			Float64("failure_rate", rate).
			Bool("degraded", m.degraded).
			Msg("Scan fallback mode changed")
	}
}

// Degraded reports whether the orchestrator should scan sequentially.
func (m *FailureMonitor) Degraded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.degraded
}
