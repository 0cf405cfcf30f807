package infra

import (
	"sync/atomic"
	"time"
)

// Metrics counts order lifecycle outcomes for operational visibility.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Counters
	ordersPlaced      atomic.Uint64
	ordersRejected    atomic.Uint64
	ordersCancelled   atomic.Uint64
	cancelsRejected   atomic.Uint64
	matchesFilled     atomic.Uint64
	matchesNoCounter  atomic.Uint64
	matchesSkipped    atomic.Uint64 // trigger no longer OPEN
	matchFailures     atomic.Uint64
	integrityFailures atomic.Uint64
	dispatchFailures  atomic.Uint64

	// Latency tracking of match attempts
	latencySumNs atomic.Int64
	latencyCount atomic.Uint64

	// Gauges
	activeConnections atomic.Int32 // websocket subscribers
	busyWorkers       atomic.Int32
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

func (m *Metrics) RecordOrderPlaced() { m.ordersPlaced.Add(1) }
func (m *Metrics) RecordOrderRejected() { m.ordersRejected.Add(1) }
func (m *Metrics) RecordOrderCancelled() { m.ordersCancelled.Add(1) }
func (m *Metrics) RecordCancelRejected() { m.cancelsRejected.Add(1) }
func (m *Metrics) RecordIntegrityFailure() { m.integrityFailures.Add(1) }
func (m *Metrics) RecordDispatchFailure() { m.dispatchFailures.Add(1) }

// MatchResult labels the outcome of one match attempt.
type MatchResult int

const (
	MatchFilled MatchResult = iota + 1
	MatchNoCounter
	MatchNotOpen
	MatchFailed
)

// RecordMatch records one match attempt with its latency.
func (m *Metrics) RecordMatch(result MatchResult, latency time.Duration) {
	switch result {
	case MatchFilled:
		m.matchesFilled.Add(1)
	case MatchNoCounter:
		m.matchesNoCounter.Add(1)
	case MatchNotOpen:
		m.matchesSkipped.Add(1)
	case MatchFailed:
		m.matchFailures.Add(1)
	}
	m.latencySumNs.Add(latency.Nanoseconds())
	m.latencyCount.Add(1)
}

// IncrementConnections increments active connections by 1.
func (m *Metrics) IncrementConnections() {
	m.activeConnections.Add(1)
}

// DecrementConnections decrements active connections by 1.
func (m *Metrics) DecrementConnections() {
	m.activeConnections.Add(-1)
}

// WorkerBusy marks a dispatch worker as running (true) or idle (false).
func (m *Metrics) WorkerBusy(busy bool) {
	if busy {
		m.busyWorkers.Add(1)
	} else {
		m.busyWorkers.Add(-1)
	}
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	OrdersPlaced      uint64
	OrdersRejected    uint64
	OrdersCancelled   uint64
	CancelsRejected   uint64
	MatchesFilled     uint64
	MatchesNoCounter  uint64
	MatchesSkipped    uint64
	MatchFailures     uint64
	IntegrityFailures uint64
	DispatchFailures  uint64
	MatchAttempts     uint64
	AvgMatchLatencyNs int64
	ActiveConnections int32
	BusyWorkers       int32
	Timestamp         time.Time
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avgLatency int64
	count := m.latencyCount.Load()
	if count > 0 {
		avgLatency = m.latencySumNs.Load() / int64(count)
	}

	return MetricsSnapshot{
		OrdersPlaced:      m.ordersPlaced.Load(),
		OrdersRejected:    m.ordersRejected.Load(),
		OrdersCancelled:   m.ordersCancelled.Load(),
		CancelsRejected:   m.cancelsRejected.Load(),
		MatchesFilled:     m.matchesFilled.Load(),
		MatchesNoCounter:  m.matchesNoCounter.Load(),
		MatchesSkipped:    m.matchesSkipped.Load(),
		MatchFailures:     m.matchFailures.Load(),
		IntegrityFailures: m.integrityFailures.Load(),
		DispatchFailures:  m.dispatchFailures.Load(),
		MatchAttempts:     count,
		AvgMatchLatencyNs: avgLatency,
		ActiveConnections: m.activeConnections.Load(),
		BusyWorkers:       m.busyWorkers.Load(),
		Timestamp:         time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.ordersPlaced.Store(0)
	m.ordersRejected.Store(0)
	m.ordersCancelled.Store(0)
	m.cancelsRejected.Store(0)
	m.matchesFilled.Store(0)
	m.matchesNoCounter.Store(0)
	m.matchesSkipped.Store(0)
	m.matchFailures.Store(0)
	m.integrityFailures.Store(0)
	m.dispatchFailures.Store(0)
	m.latencySumNs.Store(0)
	m.latencyCount.Store(0)
	m.activeConnections.Store(0)
	m.busyWorkers.Store(0)
}
