package domain

import (
	"sync"
	"sync/atomic"
	"time"
)

type MetricsSnapshot struct {
	RequestsAnalyzed  int64
	ThreatsDetected   int64
	EventsLogged      int64
	ResponsesExecuted int64
	ActionsFailed     int64
	BlockedSubjects   int64
	QueueDepth        int
	Uptime            time.Duration
	StartTime         time.Time
}

// MonitorMetrics collects process-wide counters for the security monitor.
// Counters are atomics; the snapshot is the read surface for metrics
// adapters and the CLI.
type MonitorMetrics struct {
	requestsAnalyzed  atomic.Int64
	threatsDetected   atomic.Int64
	eventsLogged      atomic.Int64
	responsesExecuted atomic.Int64
	actionsFailed     atomic.Int64
	blockedSubjects   atomic.Int64

	QueueDepth int
	StartTime  time.Time

	mu sync.RWMutex
}

func NewMonitorMetrics() *MonitorMetrics {
	return &MonitorMetrics{StartTime: time.Now()}
}

func (m *MonitorMetrics) IncrementRequests()  { m.requestsAnalyzed.Add(1) }
func (m *MonitorMetrics) IncrementThreats()   { m.threatsDetected.Add(1) }
func (m *MonitorMetrics) IncrementEvents()    { m.eventsLogged.Add(1) }
func (m *MonitorMetrics) IncrementResponses() { m.responsesExecuted.Add(1) }
func (m *MonitorMetrics) IncrementFailures()  { m.actionsFailed.Add(1) }

func (m *MonitorMetrics) SetBlockedSubjects(n int64) { m.blockedSubjects.Store(n) }

func (m *MonitorMetrics) SetQueueDepth(depth int) {
	m.mu.Lock()
	m.QueueDepth = depth
	m.mu.Unlock()
}

func (m *MonitorMetrics) RequestsAnalyzed() int64 { return m.requestsAnalyzed.Load() }
func (m *MonitorMetrics) ThreatsDetected() int64  { return m.threatsDetected.Load() }

func (m *MonitorMetrics) GetSnapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return MetricsSnapshot{
		RequestsAnalyzed:  m.requestsAnalyzed.Load(),
		ThreatsDetected:   m.threatsDetected.Load(),
		EventsLogged:      m.eventsLogged.Load(),
		ResponsesExecuted: m.responsesExecuted.Load(),
		ActionsFailed:     m.actionsFailed.Load(),
		BlockedSubjects:   m.blockedSubjects.Load(),
		QueueDepth:        m.QueueDepth,
		Uptime:            time.Since(m.StartTime),
		StartTime:         m.StartTime,
	}
}
