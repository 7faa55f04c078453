package metrics

import (
	"sync"
	"time"
)

// TriageMetrics tracks the health of the background write path. Since triage
// reports nothing to callers, these counters are the only way to see drops
// and dead-letters short of reading logs.
type TriageMetrics struct {
	mu sync.RWMutex

	// Queue metrics
	Submitted int64
	Dropped   int64

	// Decision metrics
	Remembered      int64
	Skipped         int64
	FailedDecisions int64
	DecideTime      time.Duration

	// Persistence metrics
	RecordsPersisted int64
	DeadLetters      int64
	SaveTime         time.Duration
}

// NewTriageMetrics creates a new TriageMetrics instance
func NewTriageMetrics() *TriageMetrics {
	return &TriageMetrics{}
}

// RecordSubmit records one enqueue attempt
func (m *TriageMetrics) RecordSubmit(accepted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Submitted++
	if !accepted {
		m.Dropped++
	}
}

// RecordDecision records a completed triage verdict
func (m *TriageMetrics) RecordDecision(remembered bool, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if remembered {
		m.Remembered++
	} else {
		m.Skipped++
	}
	m.DecideTime += elapsed
}

// RecordDecisionFailure records a verdict that never materialized
func (m *TriageMetrics) RecordDecisionFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailedDecisions++
}

// RecordPersisted records records written to at least one store
func (m *TriageMetrics) RecordPersisted(count int, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.RecordsPersisted += int64(count)
	m.SaveTime += elapsed
}

// RecordDeadLetter records a record that no store accepted
func (m *TriageMetrics) RecordDeadLetter() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeadLetters++
}

// Snapshot returns a copy safe to read without holding the lock
func (m *TriageMetrics) Snapshot() TriageMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return TriageMetrics{
		Submitted:        m.Submitted,
		Dropped:          m.Dropped,
		Remembered:       m.Remembered,
		Skipped:          m.Skipped,
		FailedDecisions:  m.FailedDecisions,
		DecideTime:       m.DecideTime,
		RecordsPersisted: m.RecordsPersisted,
		DeadLetters:      m.DeadLetters,
		SaveTime:         m.SaveTime,
	}
}

// AverageDecideTime returns the mean verdict latency
func (m *TriageMetrics) AverageDecideTime() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	decided := m.Remembered + m.Skipped
	if decided == 0 {
		return 0
	}
	return m.DecideTime / time.Duration(decided)
}
