package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vigilsec/vigil/internal/domain"
	"github.com/vigilsec/vigil/internal/ports"
)

const (
	keyAccountLocked   = "account_locked:"
	keyCaptchaRequired = "captcha_required:"
	keyPasswordReset   = "password_reset_required:"
	keyRateMultiplier  = "rate_limit_multiplier"
	keyEmergencyMode   = "emergency_mode"

	emergencyMultiplier = 0.1
	emergencyTTL        = 1 * time.Hour
)

var errNoUser = errors.New("event has no user id")

// ActionExecutor carries out individual response actions against the
// external collaborators. Each Execute call handles exactly one action;
// failures are returned, never panicked, so the engine can record them
// and continue with the rest of the rule.
type ActionExecutor struct {
	blocks     ports.BlockStore
	sessions   ports.SessionManager
	kv         ports.KVCache
	quarantine ports.QuarantineStore
	notifier   ports.AdminNotifier

	rateMultiplier atomic.Uint64
	emergency      atomic.Bool
}

func NewActionExecutor(
	blocks ports.BlockStore,
	sessions ports.SessionManager,
	kv ports.KVCache,
	quarantine ports.QuarantineStore,
	notifier ports.AdminNotifier,
) *ActionExecutor {
	e := &ActionExecutor{
		blocks:     blocks,
		sessions:   sessions,
		kv:         kv,
		quarantine: quarantine,
		notifier:   notifier,
	}
	e.rateMultiplier.Store(math.Float64bits(1.0))
	return e
}

func (e *ActionExecutor) Execute(ctx context.Context, action domain.Action, event *domain.SecurityEvent) error {
	switch action.Kind {
	case domain.ActionBlockIP:
		return e.blockIP(ctx, action, event)
	case domain.ActionTerminateSessions:
		return e.terminateSessions(ctx, action, event)
	case domain.ActionLockAccount:
		return e.lockAccount(ctx, action, event)
	case domain.ActionEnableCaptcha:
		return e.enableCaptcha(ctx, action, event)
	case domain.ActionReduceRateLimits:
		return e.reduceRateLimits(ctx, action)
	case domain.ActionEnableEmergency:
		return e.enableEmergencyMode(ctx, action, event)
	case domain.ActionQuarantineRequest:
		return e.quarantineRequest(ctx, action, event)
	case domain.ActionForcePasswordReset:
		return e.forcePasswordReset(ctx, action, event)
	case domain.ActionNotifyAdmins:
		return e.notifyAdmins(ctx, action, event)
	default:
		// Unreachable for registered rules; Validate rejects unknown kinds.
		return fmt.Errorf("unknown action kind %q", action.Kind)
	}
}

func (e *ActionExecutor) blockIP(ctx context.Context, action domain.Action, event *domain.SecurityEvent) error {
	if event.IP == "" || event.IP == "unknown" {
		return errors.New("event has no usable ip")
	}
	reason := action.Reason
	if reason == "" {
		reason = string(event.Type)
	}
	return e.blocks.Block(ctx, event.IP, reason, action.Duration)
}

func (e *ActionExecutor) terminateSessions(ctx context.Context, action domain.Action, event *domain.SecurityEvent) error {
	if event.UserID == "" {
		return errNoUser
	}
	if e.sessions == nil {
		return errors.New("no session manager configured")
	}
	return e.sessions.TerminateSessions(ctx, event.UserID, action.Reason)
}

func (e *ActionExecutor) lockAccount(ctx context.Context, action domain.Action, event *domain.SecurityEvent) error {
	if event.UserID == "" {
		return errNoUser
	}
	if err := e.kv.Set(ctx, keyAccountLocked+event.UserID, action.Reason, action.Duration); err != nil {
		return fmt.Errorf("lock account %s: %w", event.UserID, err)
	}
	// Locking without revoking live sessions would leave the attacker
	// logged in; revocation failure still counts as a failed action.
	if e.sessions != nil {
		if err := e.sessions.TerminateSessions(ctx, event.UserID, action.Reason); err != nil {
			return fmt.Errorf("terminate sessions for locked account: %w", err)
		}
	}
	return nil
}

func (e *ActionExecutor) enableCaptcha(ctx context.Context, action domain.Action, event *domain.SecurityEvent) error {
	subject := event.Subject()
	if err := e.kv.Set(ctx, keyCaptchaRequired+subject, "1", action.Duration); err != nil {
		return fmt.Errorf("enable captcha for %s: %w", subject, err)
	}
	return nil
}

func (e *ActionExecutor) reduceRateLimits(ctx context.Context, action domain.Action) error {
	current := e.RateMultiplier()
	next := action.Factor
	if next >= current {
		// Multipliers only tighten; a later, milder rule firing must not
		// relax a stricter multiplier already in force.
		next = current
	}
	e.rateMultiplier.Store(math.Float64bits(next))

	ttl := action.Duration
	if ttl <= 0 {
		ttl = emergencyTTL
	}
	if err := e.kv.Set(ctx, keyRateMultiplier, strconv.FormatFloat(next, 'f', -1, 64), ttl); err != nil {
		return fmt.Errorf("mirror rate multiplier: %w", err)
	}
	return nil
}

func (e *ActionExecutor) enableEmergencyMode(ctx context.Context, action domain.Action, event *domain.SecurityEvent) error {
	e.emergency.Store(true)
	e.rateMultiplier.Store(math.Float64bits(emergencyMultiplier))

	var firstErr error
	if err := e.kv.Set(ctx, keyEmergencyMode, "1", emergencyTTL); err != nil {
		firstErr = fmt.Errorf("mirror emergency flag: %w", err)
	}
	if err := e.kv.Set(ctx, keyRateMultiplier, strconv.FormatFloat(emergencyMultiplier, 'f', -1, 64), emergencyTTL); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("mirror emergency multiplier: %w", err)
	}

	// Emergency mode always pages operators, even when the rule does not
	// carry an explicit notify action.
	if e.notifier != nil {
		msg := fmt.Sprintf("emergency mode enabled: %s (subject %s)", action.Reason, event.Subject())
		if err := e.notifier.Notify(ctx, "EMERGENCY MODE", msg); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("notify admins: %w", err)
		}
	}

	log.Warn().Str("subject", event.Subject()).Str("reason", action.Reason).Msg("Emergency mode enabled")
	return firstErr
}

func (e *ActionExecutor) quarantineRequest(ctx context.Context, action domain.Action, event *domain.SecurityEvent) error {
	if e.quarantine == nil {
		return errors.New("no quarantine store configured")
	}
	reason := action.Reason
	if reason == "" {
		reason = string(event.Type)
	}
	rec := &domain.QuarantineRecord{
		EventID:   event.ID,
		Subject:   event.Subject(),
		Endpoint:  event.Details["endpoint"],
		Method:    event.Details["method"],
		Body:      event.Details["payload"],
		UserAgent: event.Details["user_agent"],
		Reason:    reason,
		Timestamp: event.Timestamp,
	}
	return e.quarantine.Save(ctx, rec)
}

func (e *ActionExecutor) forcePasswordReset(ctx context.Context, action domain.Action, event *domain.SecurityEvent) error {
	if event.UserID == "" {
		return errNoUser
	}
	if err := e.kv.Set(ctx, keyPasswordReset+event.UserID, "1", 0); err != nil {
		return fmt.Errorf("flag password reset for %s: %w", event.UserID, err)
	}
	if e.sessions != nil {
		if err := e.sessions.TerminateSessions(ctx, event.UserID, action.Reason); err != nil {
			return fmt.Errorf("terminate sessions for password reset: %w", err)
		}
	}
	return nil
}

func (e *ActionExecutor) notifyAdmins(ctx context.Context, action domain.Action, event *domain.SecurityEvent) error {
	if e.notifier == nil {
		return errors.New("no admin notifier configured")
	}
	subject := fmt.Sprintf("%s threat: %s", event.Level, event.Type)
	msg := action.Reason
	if msg == "" {
		msg = fmt.Sprintf("subject %s triggered %s", event.Subject(), event.Type)
	}
	return e.notifier.Notify(ctx, subject, msg)
}

// RateMultiplier returns the current global rate-limit multiplier in (0,1].
func (e *ActionExecutor) RateMultiplier() float64 {
	return math.Float64frombits(e.rateMultiplier.Load())
}

func (e *ActionExecutor) EmergencyMode() bool {
	return e.emergency.Load()
}

// ResetEmergency clears emergency mode and restores the multiplier.
// Operator-driven; never called automatically.
func (e *ActionExecutor) ResetEmergency(ctx context.Context) error {
	e.emergency.Store(false)
	e.rateMultiplier.Store(math.Float64bits(1.0))
	if err := e.kv.Del(ctx, keyEmergencyMode); err != nil {
		return err
	}
	return e.kv.Del(ctx, keyRateMultiplier)
}

// NopSessionManager satisfies ports.SessionManager for deployments without
// a session collaborator. Termination requests are logged and succeed.
type NopSessionManager struct{}

func (NopSessionManager) TerminateSessions(_ context.Context, userID, reason string) error {
	log.Info().Str("user_id", userID).Str("reason", reason).Msg("Session termination requested (no session manager wired)")
	return nil
}
