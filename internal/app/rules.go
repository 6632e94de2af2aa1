package app

import (
	"time"

	"github.com/vigilsec/vigil/internal/domain"
)

// DefaultRules is the built-in response rule table. Conditions look only
// at the event; thresholds that need history (brute force counts, request
// rates) are already folded into the event's type and level by the scorer.
func DefaultRules() []ResponseRule {
	return []ResponseRule{
		{
			Name:  "brute_force_lockout",
			Level: domain.ThreatLevelHigh,
			Condition: func(e *domain.SecurityEvent) bool {
				return e.Type == domain.EventLoginFailure &&
					e.Details["brute_force"] == "true" &&
					e.UserID != ""
			},
			Actions: []domain.Action{
				{Kind: domain.ActionLockAccount, Duration: 30 * time.Minute, Reason: "brute force lockout"},
				{Kind: domain.ActionEnableCaptcha, Duration: 1 * time.Hour, Reason: "brute force lockout"},
			},
			Cooldown: 15 * time.Minute,
		},
		{
			Name:  "injection_ip_block",
			Level: domain.ThreatLevelHigh,
			Condition: func(e *domain.SecurityEvent) bool {
				switch e.Type {
				case domain.EventSQLInjection, domain.EventCommandInjection, domain.EventPathTraversal:
					return e.Level.AtLeast(domain.ThreatLevelHigh)
				}
				return false
			},
			Actions: []domain.Action{
				{Kind: domain.ActionBlockIP, Duration: 1 * time.Hour, Reason: "injection attack"},
				{Kind: domain.ActionQuarantineRequest, Reason: "injection attack"},
				{Kind: domain.ActionNotifyAdmins, Reason: "injection attack blocked"},
			},
			Cooldown: 5 * time.Minute,
		},
		{
			Name:  "scanner_throttle",
			Level: domain.ThreatLevelMedium,
			Condition: func(e *domain.SecurityEvent) bool {
				return e.Type == domain.EventEndpointScan ||
					e.Type == domain.EventRateLimitExceeded
			},
			Actions: []domain.Action{
				{Kind: domain.ActionEnableCaptcha, Duration: 30 * time.Minute, Reason: "scanning behavior"},
				{Kind: domain.ActionReduceRateLimits, Factor: 0.5, Duration: 30 * time.Minute, Reason: "scanning behavior"},
			},
			Cooldown: 10 * time.Minute,
		},
		{
			Name:  "critical_intrusion",
			Level: domain.ThreatLevelCritical,
			Condition: func(e *domain.SecurityEvent) bool {
				return e.Type == domain.EventIntrusionDetected &&
					e.Level == domain.ThreatLevelCritical
			},
			Actions: []domain.Action{
				{Kind: domain.ActionBlockIP, Duration: 24 * time.Hour, Reason: "critical intrusion"},
				{Kind: domain.ActionQuarantineRequest, Reason: "critical intrusion"},
				{Kind: domain.ActionNotifyAdmins, Reason: "critical intrusion detected"},
			},
			Cooldown: 1 * time.Minute,
		},
		{
			Name:  "distributed_attack_emergency",
			Level: domain.ThreatLevelCritical,
			Condition: func(e *domain.SecurityEvent) bool {
				return e.Type == domain.EventIntrusionDetected &&
					e.Details["distributed"] == "true"
			},
			Actions: []domain.Action{
				{Kind: domain.ActionEnableEmergency, Reason: "distributed attack in progress"},
			},
			Cooldown: 30 * time.Minute,
		},
	}
}
