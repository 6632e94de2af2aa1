package domain

import (
	"fmt"
	"time"
)

// ActionKind enumerates the remediation actions the response engine can
// execute. Dispatch is an explicit switch over the kind; an unknown kind is
// rejected at rule-registration time, not at runtime per event.
type ActionKind string

const (
	ActionBlockIP            ActionKind = "block_ip"
	ActionTerminateSessions  ActionKind = "terminate_sessions"
	ActionLockAccount        ActionKind = "lock_account"
	ActionEnableCaptcha      ActionKind = "enable_captcha"
	ActionReduceRateLimits   ActionKind = "reduce_rate_limits"
	ActionEnableEmergency    ActionKind = "enable_emergency_mode"
	ActionQuarantineRequest  ActionKind = "quarantine_request"
	ActionForcePasswordReset ActionKind = "force_password_reset"
	ActionNotifyAdmins       ActionKind = "notify_admins"
)

var knownActionKinds = map[ActionKind]struct{}{
	ActionBlockIP:            {},
	ActionTerminateSessions:  {},
	ActionLockAccount:        {},
	ActionEnableCaptcha:      {},
	ActionReduceRateLimits:   {},
	ActionEnableEmergency:    {},
	ActionQuarantineRequest:  {},
	ActionForcePasswordReset: {},
	ActionNotifyAdmins:       {},
}

// Action is one remediation step in a response rule. Duration applies to
// the TTL-bearing kinds (block_ip, enable_captcha, lock_account,
// reduce_rate_limits); Factor applies to reduce_rate_limits only.
type Action struct {
	Kind     ActionKind    `json:"kind"`
	Duration time.Duration `json:"duration,omitempty"`
	Factor   float64       `json:"factor,omitempty"`
	Reason   string        `json:"reason,omitempty"`
}

// Validate checks an action at rule-registration time. Malformed actions
// are programmer error and must fail startup, not per-event handling.
func (a Action) Validate() error {
	if _, ok := knownActionKinds[a.Kind]; !ok {
		return fmt.Errorf("unknown action kind %q", a.Kind)
	}
	switch a.Kind {
	case ActionBlockIP, ActionEnableCaptcha, ActionLockAccount:
		if a.Duration <= 0 {
			return fmt.Errorf("action %s requires a positive duration", a.Kind)
		}
	case ActionReduceRateLimits:
		if a.Factor <= 0 || a.Factor > 1 {
			return fmt.Errorf("action %s requires a factor in (0,1], got %v", a.Kind, a.Factor)
		}
	}
	return nil
}

// ActionResult records the outcome of one executed action. Failures are
// captured here and never abort the remaining actions of the same rule.
type ActionResult struct {
	Kind    ActionKind `json:"kind"`
	Success bool       `json:"success"`
	Err     string     `json:"error,omitempty"`
}

// ResponseRecord is the durable trace of one rule firing: which rule, for
// which event and subject, and how each action fared.
type ResponseRecord struct {
	ID        string         `json:"id"`
	Rule      string         `json:"rule"`
	EventID   string         `json:"event_id"`
	Subject   string         `json:"subject"`
	Results   []ActionResult `json:"results"`
	Timestamp time.Time      `json:"timestamp"`
}

// Succeeded reports whether every action in the record ran without error.
func (r *ResponseRecord) Succeeded() bool {
	for _, res := range r.Results {
		if !res.Success {
			return false
		}
	}
	return true
}
