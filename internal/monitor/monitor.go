// Package monitor keeps fetch statistics in memory and exports them as Prometheus metrics.
package monitor

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// MaxRecentEvents limits the in-memory event cache.
const MaxRecentEvents = 100

// Fetch outcomes.
const (
	OutcomeOK          = "ok"
	OutcomeAbsent      = "absent"
	OutcomeRateLimited = "rate_limited"
	OutcomeSkipped     = "skipped"
	OutcomeError       = "error"
)

// FetchEvent describes one upstream data call.
type FetchEvent struct {
	ID         string `json:"id"`
	Timestamp  int64  `json:"timestamp"`
	Twin       string `json:"twin"`
	Source     string `json:"source"`
	Status     int    `json:"status,omitempty"`
	Outcome    string `json:"outcome"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// Stats aggregates fetch outcomes since start or the last Clear.
type Stats struct {
	TotalRequests int64 `json:"total_requests"`
	SuccessCount  int64 `json:"success_count"`
	ErrorCount    int64 `json:"error_count"`
	SkippedCount  int64 `json:"skipped_count"`
}

// FetchMonitor records upstream data calls. A nil *FetchMonitor is valid and records nothing
// locally, but still feeds the Prometheus collectors.
type FetchMonitor struct {
	recent []FetchEvent
	mu     sync.RWMutex

	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	skippedCount  atomic.Int64
}

func NewFetchMonitor() *FetchMonitor {
	return &FetchMonitor{recent: make([]FetchEvent, 0, MaxRecentEvents)}
}

// Record stores ev and updates counters.
func (m *FetchMonitor) Record(ev FetchEvent) {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().UnixMilli()
	}
	if ev.Outcome == OutcomeSkipped {
		RecordLimiterRejection()
	}
	recordFetch(ev)

	if m == nil {
		return
	}

	m.totalRequests.Add(1)
	switch ev.Outcome {
	case OutcomeOK:
		m.successCount.Add(1)
	case OutcomeSkipped:
		m.skippedCount.Add(1)
	default:
		m.errorCount.Add(1)
	}

	m.mu.Lock()
	m.recent = append([]FetchEvent{ev}, m.recent...)
	if len(m.recent) > MaxRecentEvents {
		m.recent = m.recent[:MaxRecentEvents]
	}
	m.mu.Unlock()
}

// Recent returns up to limit events, newest first.
func (m *FetchMonitor) Recent(limit int) []FetchEvent {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > len(m.recent) {
		limit = len(m.recent)
	}
	out := make([]FetchEvent, limit)
	copy(out, m.recent[:limit])
	return out
}

func (m *FetchMonitor) Stats() Stats {
	if m == nil {
		return Stats{}
	}
	return Stats{
		TotalRequests: m.totalRequests.Load(),
		SuccessCount:  m.successCount.Load(),
		ErrorCount:    m.errorCount.Load(),
		SkippedCount:  m.skippedCount.Load(),
	}
}

// Clear drops cached events and resets counters. Prometheus collectors are not reset.
func (m *FetchMonitor) Clear() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.recent = m.recent[:0]
	m.mu.Unlock()

	m.totalRequests.Store(0)
	m.successCount.Store(0)
	m.errorCount.Store(0)
	m.skippedCount.Store(0)
}

