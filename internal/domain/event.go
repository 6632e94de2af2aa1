package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

type ThreatLevel string

const (
	ThreatLevelLow      ThreatLevel = "LOW"
	ThreatLevelMedium   ThreatLevel = "MEDIUM"
	ThreatLevelHigh     ThreatLevel = "HIGH"
	ThreatLevelCritical ThreatLevel = "CRITICAL"
)

// Rank orders threat levels so callers can compare severities.
func (l ThreatLevel) Rank() int {
	switch l {
	case ThreatLevelCritical:
		return 3
	case ThreatLevelHigh:
		return 2
	case ThreatLevelMedium:
		return 1
	default:
		return 0
	}
}

func (l ThreatLevel) AtLeast(other ThreatLevel) bool {
	return l.Rank() >= other.Rank()
}

// LevelForScore maps a numeric threat score to a discrete level.
// Cutoffs: >=100 CRITICAL, >=50 HIGH, >=20 MEDIUM, else LOW.
func LevelForScore(score float64) ThreatLevel {
	switch {
	case score >= 100:
		return ThreatLevelCritical
	case score >= 50:
		return ThreatLevelHigh
	case score >= 20:
		return ThreatLevelMedium
	default:
		return ThreatLevelLow
	}
}

type EventType string

const (
	EventLoginFailure        EventType = "login_failure"
	EventSQLInjection        EventType = "sql_injection_attempt"
	EventXSS                 EventType = "xss_attempt"
	EventPathTraversal       EventType = "path_traversal_attempt"
	EventCommandInjection    EventType = "command_injection_attempt"
	EventRateLimitExceeded   EventType = "rate_limit_exceeded"
	EventSuspiciousPattern   EventType = "suspicious_pattern"
	EventIntrusionDetected   EventType = "intrusion_detected"
	EventEndpointScan        EventType = "endpoint_scan"
	EventBotActivity         EventType = "bot_activity"
	EventAccountLocked       EventType = "account_locked"
	EventIPBlocked           EventType = "ip_blocked"
	EventEmergencyMode       EventType = "emergency_mode_enabled"
	EventPasswordResetForced EventType = "password_reset_forced"
	EventResponseExecuted    EventType = "response_executed"
)

// SecurityEvent is an immutable classified event. Its Level is fixed at
// creation from the event type and details and is never recomputed.
type SecurityEvent struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"event_type"`
	Timestamp time.Time         `json:"timestamp"`
	UserID    string            `json:"user_id,omitempty"`
	IP        string            `json:"ip_address,omitempty"`
	Level     ThreatLevel       `json:"threat_level"`
	Details   map[string]string `json:"details,omitempty"`
}

// NewSecurityEvent builds an event with a content-hash ID and a level
// derived from the type and details. A missing IP defaults to "unknown"
// so analysis never fails on incomplete request metadata.
func NewSecurityEvent(t EventType, ip, userID string, details map[string]string) *SecurityEvent {
	if ip == "" {
		ip = "unknown"
	}
	if details == nil {
		details = map[string]string{}
	}
	now := time.Now().UTC()
	e := &SecurityEvent{
		Type:      t,
		Timestamp: now,
		UserID:    userID,
		IP:        ip,
		Level:     LevelForEvent(t, details),
		Details:   details,
	}
	e.ID = e.contentHash()
	return e
}

// LevelForEvent classifies an event type at creation time. Detail overrides
// allow the producer to escalate (e.g. a signature match with a very high
// severity), never to downgrade.
func LevelForEvent(t EventType, details map[string]string) ThreatLevel {
	base := baseLevel(t)
	if details["severity"] == "critical" && base.Rank() < ThreatLevelCritical.Rank() {
		return ThreatLevelCritical
	}
	if t == EventLoginFailure && details["brute_force"] == "true" && base.Rank() < ThreatLevelHigh.Rank() {
		return ThreatLevelHigh
	}
	return base
}

func baseLevel(t EventType) ThreatLevel {
	switch t {
	case EventIntrusionDetected, EventEmergencyMode:
		return ThreatLevelCritical
	case EventSQLInjection, EventCommandInjection, EventPathTraversal:
		return ThreatLevelHigh
	case EventXSS, EventRateLimitExceeded, EventEndpointScan, EventBotActivity,
		EventAccountLocked, EventIPBlocked, EventPasswordResetForced:
		return ThreatLevelMedium
	default:
		return ThreatLevelLow
	}
}

// Subject returns the identifier an event pertains to: the user when known,
// the source IP otherwise.
func (e *SecurityEvent) Subject() string {
	if e.UserID != "" {
		return e.UserID
	}
	return e.IP
}

func (e *SecurityEvent) contentHash() string {
	var b strings.Builder
	b.WriteString(string(e.Type))
	b.WriteByte('|')
	b.WriteString(e.IP)
	b.WriteByte('|')
	b.WriteString(e.UserID)
	b.WriteByte('|')
	b.WriteString(e.Timestamp.Format(time.RFC3339Nano))

	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(e.Details[k])
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:16])
}

// EventFilter selects events from the log. Zero values mean "any".
type EventFilter struct {
	Start    time.Time
	End      time.Time
	Type     EventType
	UserID   string
	IP       string
	MinLevel ThreatLevel
	Limit    int
	Offset   int
}

// Matches reports whether an event passes the filter, ignoring
// Limit/Offset which are applied by the log itself.
func (f EventFilter) Matches(e *SecurityEvent) bool {
	if !f.Start.IsZero() && e.Timestamp.Before(f.Start) {
		return false
	}
	if !f.End.IsZero() && e.Timestamp.After(f.End) {
		return false
	}
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.IP != "" && e.IP != f.IP {
		return false
	}
	if f.MinLevel != "" && !e.Level.AtLeast(f.MinLevel) {
		return false
	}
	return true
}

// AuditEntry is the wire shape forwarded to the external audit collaborator.
type AuditEntry struct {
	EventType string            `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	IP        string            `json:"ip_address,omitempty"`
	Level     string            `json:"threat_level,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// AuditEntryFor flattens a security event into its audit mirror form.
func AuditEntryFor(e *SecurityEvent) AuditEntry {
	return AuditEntry{
		EventType: string(e.Type),
		UserID:    e.UserID,
		IP:        e.IP,
		Level:     string(e.Level),
		Details:   e.Details,
		Timestamp: e.Timestamp,
	}
}
