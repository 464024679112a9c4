package scan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFailureMonitor_StaysHealthyBelowThreshold(t *testing.T) {
	m := NewFailureMonitor(10, 0.5)

	for i := 0; i < 20; i++ {
		m.Record(i%4 == 0) // 25% failures
	}
	assert.False(t, m.Degraded())
}

func TestFailureMonitor_DegradesAtThreshold(t *testing.T) {
	m := NewFailureMonitor(10, 0.5)

	for i := 0; i < 10; i++ {
		m.Record(i%2 == 0) // 50% failures
	}
	assert.True(t, m.Degraded())
}

func TestFailureMonitor_RequiresFullWindowBeforeDegrading(t *testing.T) {
	m := NewFailureMonitor(10, 0.5)

	// Five straight failures is 100% but the window is only half full.
	for i := 0; i < 5; i++ {
		m.Record(true)
	}
	assert.False(t, m.Degraded())

	for i := 0; i < 5; i++ {
		m.Record(true)
	}
	assert.True(t, m.Degraded())
}

func TestFailureMonitor_RecoversBelowHalfThreshold(t *testing.T) {
	m := NewFailureMonitor(10, 0.5)

	for i := 0; i < 10; i++ {
		m.Record(true)
	}
	assert.True(t, m.Degraded())

	// Successes push the rate down; recovery waits for rate < 0.25.
	for i := 0; i < 7; i++ {
		m.Record(false)
	}
	assert.True(t, m.Degraded()) // 3/10 failures still >= 0.25

	m.Record(false)
	assert.False(t, m.Degraded()) // 2/10 < 0.25
}
