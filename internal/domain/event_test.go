package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelForScore(t *testing.T) {
	tests := []struct {
		score float64
		want  ThreatLevel
	}{
		{0, ThreatLevelLow},
		{19.9, ThreatLevelLow},
		{20, ThreatLevelMedium},
		{49.9, ThreatLevelMedium},
		{50, ThreatLevelHigh},
		{99.9, ThreatLevelHigh},
		{100, ThreatLevelCritical},
		{150, ThreatLevelCritical},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.want, LevelForScore(tc.score), "score %.1f", tc.score)
	}
}

func TestThreatLevelAtLeast(t *testing.T) {
	assert.True(t, ThreatLevelCritical.AtLeast(ThreatLevelLow))
	assert.True(t, ThreatLevelMedium.AtLeast(ThreatLevelMedium))
	assert.False(t, ThreatLevelLow.AtLeast(ThreatLevelHigh))
}

func TestNewSecurityEventIDIsDeterministicPerContent(t *testing.T) {
	a := NewSecurityEvent(EventSQLInjection, "203.0.113.7", "alice", map[string]string{"endpoint": "/api"})
	b := NewSecurityEvent(EventSQLInjection, "203.0.113.7", "bob", map[string]string{"endpoint": "/api"})

	require.NotEmpty(t, a.ID)
	require.NotEmpty(t, b.ID)
	assert.NotEqual(t, a.ID, b.ID)

	// Replaying the hash over the same fields reproduces the same ID.
	clone := &SecurityEvent{
		Type:      a.Type,
		IP:        a.IP,
		UserID:    a.UserID,
		Details:   a.Details,
		Timestamp: a.Timestamp,
	}
	assert.Equal(t, a.ID, clone.contentHash())
}

func TestSecurityEventSubject(t *testing.T) {
	withUser := NewSecurityEvent(EventLoginFailure, "10.0.0.1", "alice", nil)
	assert.Equal(t, "alice", withUser.Subject())

	anonymous := NewSecurityEvent(EventRateLimitExceeded, "10.0.0.1", "", nil)
	assert.Equal(t, "10.0.0.1", anonymous.Subject())
}

func TestLevelForEvent(t *testing.T) {
	tests := []struct {
		name    string
		typ     EventType
		details map[string]string
		want    ThreatLevel
	}{
		{"intrusion is critical", EventIntrusionDetected, nil, ThreatLevelCritical},
		{"sql injection is high", EventSQLInjection, nil, ThreatLevelHigh},
		{"xss is medium", EventXSS, nil, ThreatLevelMedium},
		{"plain login failure is low", EventLoginFailure, nil, ThreatLevelLow},
		{"brute force escalates login failure", EventLoginFailure, map[string]string{"brute_force": "true"}, ThreatLevelHigh},
		{"severity detail escalates to critical", EventXSS, map[string]string{"severity": "critical"}, ThreatLevelCritical},
		{"severity detail never demotes", EventIntrusionDetected, map[string]string{"severity": "critical"}, ThreatLevelCritical},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, LevelForEvent(tc.typ, tc.details))
		})
	}
}

func TestEventFilterMatches(t *testing.T) {
	event := NewSecurityEvent(EventSQLInjection, "203.0.113.7", "alice", nil)

	assert.True(t, EventFilter{}.Matches(event))
	assert.True(t, EventFilter{Type: EventSQLInjection}.Matches(event))
	assert.False(t, EventFilter{Type: EventXSS}.Matches(event))
	assert.True(t, EventFilter{IP: "203.0.113.7", UserID: "alice"}.Matches(event))
	assert.False(t, EventFilter{UserID: "bob"}.Matches(event))
	assert.True(t, EventFilter{MinLevel: ThreatLevelMedium}.Matches(event))
	assert.False(t, EventFilter{MinLevel: ThreatLevelCritical}.Matches(event))

	assert.False(t, EventFilter{Start: event.Timestamp.Add(time.Minute)}.Matches(event))
	assert.False(t, EventFilter{End: event.Timestamp.Add(-time.Minute)}.Matches(event))
	assert.True(t, EventFilter{
		Start: event.Timestamp.Add(-time.Minute),
		End:   event.Timestamp.Add(time.Minute),
	}.Matches(event))
}

func TestAuditEntryFor(t *testing.T) {
	event := NewSecurityEvent(EventCommandInjection, "203.0.113.7", "alice", map[string]string{"endpoint": "/api"})
	entry := AuditEntryFor(event)

	assert.Equal(t, string(event.Type), entry.EventType)
	assert.Equal(t, event.IP, entry.IP)
	assert.Equal(t, event.UserID, entry.UserID)
	assert.Equal(t, string(event.Level), entry.Level)
	assert.Equal(t, event.Timestamp, entry.Timestamp)
}
