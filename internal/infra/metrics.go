package infra

import (
	"sync/atomic"
	"time"

	"cryptoverse/internal/domain"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Counters
	fetchesTotal   atomic.Uint64
	networkErrors  atomic.Uint64
	upstreamErrors atomic.Uint64
	otherErrors    atomic.Uint64
	staleDiscarded atomic.Uint64
	sharedFetches  atomic.Uint64

	// Latency tracking
	latencySumNs atomic.Int64
	latencyCount atomic.Uint64

	// Gauges
	activeConnections atomic.Int32
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordFetch records a completed upstream call with its latency.
func (m *Metrics) RecordFetch(latencyNs int64) {
	m.fetchesTotal.Add(1)
	m.latencySumNs.Add(latencyNs)
	m.latencyCount.Add(1)
}

// RecordFailure records a failed upstream call by kind.
func (m *Metrics) RecordFailure(err error) {
	switch domain.FailureKind(err) {
	case domain.KindNetwork:
		m.networkErrors.Add(1)
	case domain.KindUpstream:
		m.upstreamErrors.Add(1)
	default:
		m.otherErrors.Add(1)
	}
}

// RecordStale records a response that lost to a newer one.
func (m *Metrics) RecordStale() {
	m.staleDiscarded.Add(1)
}

// RecordShared records a caller that joined an in-flight fetch.
func (m *Metrics) RecordShared() {
	m.sharedFetches.Add(1)
}

// IncrementConnections increments active connections by 1.
func (m *Metrics) IncrementConnections() {
	m.activeConnections.Add(1)
}

// DecrementConnections decrements active connections by 1.
func (m *Metrics) DecrementConnections() {
	m.activeConnections.Add(-1)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	FetchesTotal      uint64    `json:"fetches_total"`
	NetworkErrors     uint64    `json:"network_errors"`
	UpstreamErrors    uint64    `json:"upstream_errors"`
	OtherErrors       uint64    `json:"other_errors"`
	StaleDiscarded    uint64    `json:"stale_discarded"`
	SharedFetches     uint64    `json:"shared_fetches"`
	AvgLatencyNs      int64     `json:"avg_latency_ns"`
	ActiveConnections int32     `json:"active_connections"`
	Timestamp         time.Time `json:"timestamp"`
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avgLatency int64
	count := m.latencyCount.Load()
	if count > 0 {
		avgLatency = m.latencySumNs.Load() / int64(count)
	}

	return MetricsSnapshot{
		FetchesTotal:      m.fetchesTotal.Load(),
		NetworkErrors:     m.networkErrors.Load(),
		UpstreamErrors:    m.upstreamErrors.Load(),
		OtherErrors:       m.otherErrors.Load(),
		StaleDiscarded:    m.staleDiscarded.Load(),
		SharedFetches:     m.sharedFetches.Load(),
		AvgLatencyNs:      avgLatency,
		ActiveConnections: m.activeConnections.Load(),
		Timestamp:         time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.fetchesTotal.Store(0)
	m.networkErrors.Store(0)
	m.upstreamErrors.Store(0)
	m.otherErrors.Store(0)
	m.staleDiscarded.Store(0)
	m.sharedFetches.Store(0)
	m.latencySumNs.Store(0)
	m.latencyCount.Store(0)
	m.activeConnections.Store(0)
}
