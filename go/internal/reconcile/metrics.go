package reconcile

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines the interface for collecting poll metrics
type MetricsCollector interface {
	RecordPoll(kind string, success bool, duration time.Duration)
	RecordStale(kind string)
	RecordReload(kind string, reason string)
}

// NoOpMetricsCollector is a no-op implementation for when metrics aren't needed
type NoOpMetricsCollector struct{}

func (NoOpMetricsCollector) RecordPoll(kind string, success bool, duration time.Duration) {}
func (NoOpMetricsCollector) RecordStale(kind string)                                      {}
func (NoOpMetricsCollector) RecordReload(kind string, reason string)                      {}

// CountingMetrics keeps process-wide counters for the health endpoint.
type CountingMetrics struct {
	polls   atomic.Uint64
	failed  atomic.Uint64
	stale   atomic.Uint64
	reloads atomic.Uint64
}

func (m *CountingMetrics) RecordPoll(kind string, success bool, duration time.Duration) {
	m.polls.Add(1)
	if !success {
		m.failed.Add(1)
	}
}

func (m *CountingMetrics) RecordStale(kind string) {
	m.stale.Add(1)
}

func (m *CountingMetrics) RecordReload(kind string, reason string) {
	m.reloads.Add(1)
}

// Snapshot returns the counters keyed by name.
func (m *CountingMetrics) Snapshot() map[string]uint64 {
	return map[string]uint64{
		"polls":         m.polls.Load(),
		"polls_failed":  m.failed.Load(),
		"stale_results": m.stale.Load(),
		"reloads":       m.reloads.Load(),
	}
}
