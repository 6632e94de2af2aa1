package domain

import "time"

type IndicatorType string

const (
	IndicatorSignatureSQLInjection     IndicatorType = "signature_sql_injection"
	IndicatorSignatureXSS              IndicatorType = "signature_xss"
	IndicatorSignaturePathTraversal    IndicatorType = "signature_path_traversal"
	IndicatorSignatureCommandInjection IndicatorType = "signature_command_injection"
	IndicatorBruteForce                IndicatorType = "behavior_brute_force"
	IndicatorRapidRequests             IndicatorType = "behavior_rapid_requests"
	IndicatorEndpointScan              IndicatorType = "behavior_endpoint_scan"
	IndicatorBotActivity               IndicatorType = "bot_activity"
	IndicatorBlockedSubject            IndicatorType = "blocked_subject"
)

// ThreatIndicator is a transient per-analysis finding. Indicators are
// aggregated into an Assessment and discarded after the response decision;
// they are never persisted standalone.
type ThreatIndicator struct {
	Type       IndicatorType     `json:"indicator_type"`
	Confidence float64           `json:"confidence"`
	Details    map[string]string `json:"details,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

type RecommendedAction string

const (
	ActionAllow     RecommendedAction = "allow"
	ActionMonitor   RecommendedAction = "monitor"
	ActionChallenge RecommendedAction = "challenge"
	ActionBlock     RecommendedAction = "block"
)

// Assessment is the synchronous result returned to the request-admission
// path. Score is clamped to [0,100] and Level derives from it via
// LevelForScore.
type Assessment struct {
	ThreatDetected bool              `json:"threat_detected"`
	AttackType     string            `json:"attack_type,omitempty"`
	Score          float64           `json:"threat_score"`
	Level          ThreatLevel       `json:"threat_level"`
	Indicators     []ThreatIndicator `json:"indicators,omitempty"`
	Blocked        bool              `json:"blocked"`
	Recommended    RecommendedAction `json:"recommended_action"`
}

// RecommendationFor maps a threat level to the admission recommendation
// handed back to the caller.
func RecommendationFor(level ThreatLevel) RecommendedAction {
	switch level {
	case ThreatLevelCritical:
		return ActionBlock
	case ThreatLevelHigh:
		return ActionChallenge
	case ThreatLevelMedium:
		return ActionMonitor
	default:
		return ActionAllow
	}
}
