package app

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigilsec/vigil/internal/domain"
)

type captureSink struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
	fail    bool
}

func (s *captureSink) Write(_ context.Context, entry domain.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return fmt.Errorf("sink unavailable")
	}
	s.entries = append(s.entries, entry)
	return nil
}

func (s *captureSink) Flush() error { return nil }
func (s *captureSink) Close() error { return nil }

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func TestEventLogAppendEvictsOldest(t *testing.T) {
	l := NewSecurityEventLog(EventLogConfig{Capacity: 3}, nil)
	defer l.Close()

	var ids []string
	for i := 0; i < 5; i++ {
		e := domain.NewSecurityEvent(domain.EventSuspiciousPattern, "10.0.0.1", "", map[string]string{
			"seq": fmt.Sprintf("%d", i),
		})
		ids = append(ids, l.Append(context.Background(), e))
	}

	assert.Equal(t, 3, l.Len())

	events := l.Query(domain.EventFilter{})
	require.Len(t, events, 3)
	// Newest first; the two oldest were evicted.
	assert.Equal(t, ids[4], events[0].ID)
	assert.Equal(t, ids[2], events[2].ID)
}

func TestEventLogQueryFilters(t *testing.T) {
	l := NewSecurityEventLog(EventLogConfig{Capacity: 100}, nil)
	defer l.Close()
	ctx := context.Background()

	l.Append(ctx, domain.NewSecurityEvent(domain.EventSQLInjection, "203.0.113.5", "", nil))
	l.Append(ctx, domain.NewSecurityEvent(domain.EventLoginFailure, "203.0.113.5", "alice", nil))
	l.Append(ctx, domain.NewSecurityEvent(domain.EventXSS, "198.51.100.9", "", nil))
	l.Append(ctx, domain.NewSecurityEvent(domain.EventLoginFailure, "198.51.100.9", "bob", nil))

	byType := l.Query(domain.EventFilter{Type: domain.EventLoginFailure})
	require.Len(t, byType, 2)
	assert.Equal(t, "bob", byType[0].UserID)

	byIP := l.Query(domain.EventFilter{IP: "203.0.113.5"})
	assert.Len(t, byIP, 2)

	byUser := l.Query(domain.EventFilter{UserID: "alice"})
	require.Len(t, byUser, 1)

	// sql injection is HIGH, xss MEDIUM, plain login failures LOW
	atLeastMedium := l.Query(domain.EventFilter{MinLevel: domain.ThreatLevelMedium})
	assert.Len(t, atLeastMedium, 2)

	assert.Equal(t, 2, l.Count(domain.EventFilter{Type: domain.EventLoginFailure}))
	assert.Equal(t, 4, l.Count(domain.EventFilter{}))
}

func TestEventLogQueryLimitOffset(t *testing.T) {
	l := NewSecurityEventLog(EventLogConfig{Capacity: 100}, nil)
	defer l.Close()

	for i := 0; i < 10; i++ {
		l.Append(context.Background(), domain.NewSecurityEvent(domain.EventSuspiciousPattern, "10.0.0.1", "", map[string]string{
			"seq": fmt.Sprintf("%d", i),
		}))
	}

	page := l.Query(domain.EventFilter{Limit: 3})
	require.Len(t, page, 3)
	assert.Equal(t, "9", page[0].Details["seq"])

	page = l.Query(domain.EventFilter{Limit: 3, Offset: 3})
	require.Len(t, page, 3)
	assert.Equal(t, "6", page[0].Details["seq"])

	page = l.Query(domain.EventFilter{Offset: 8})
	assert.Len(t, page, 2)
}

func TestEventLogMirrorsToSink(t *testing.T) {
	sink := &captureSink{}
	l := NewSecurityEventLog(EventLogConfig{Capacity: 100}, sink)
	defer l.Close()

	e := domain.NewSecurityEvent(domain.EventSQLInjection, "203.0.113.5", "", map[string]string{"endpoint": "/api"})
	l.Append(context.Background(), e)

	require.Eventually(t, func() bool { return sink.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, string(domain.EventSQLInjection), sink.entries[0].EventType)
	assert.Equal(t, "203.0.113.5", sink.entries[0].IP)
}

func TestEventLogSinkFailureKeepsEvent(t *testing.T) {
	sink := &captureSink{fail: true}
	l := NewSecurityEventLog(EventLogConfig{Capacity: 100}, sink)
	defer l.Close()

	id := l.Append(context.Background(), domain.NewSecurityEvent(domain.EventXSS, "10.0.0.1", "", nil))

	// The in-memory record survives regardless of the mirror outcome.
	assert.NotEmpty(t, id)
	assert.Equal(t, 1, l.Len())
}

func BenchmarkEventLogAppend(b *testing.B) {
	l := NewSecurityEventLog(EventLogConfig{Capacity: 10000}, nil)
	defer l.Close()
	e := domain.NewSecurityEvent(domain.EventSuspiciousPattern, "10.0.0.1", "", nil)

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		l.Append(context.Background(), e)
	}
}
