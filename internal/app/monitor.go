// Package app wires the detection and response components into the
// security monitor: the event log, the response engine, and the Monitor
// registry object that the request path talks to.
package app

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vigilsec/vigil/internal/domain"
	"github.com/vigilsec/vigil/internal/ports"
)

const payloadDetailLimit = 2048

// BehaviorRecorder is the slice of the behavior tracker the monitor
// drives: recording and periodic pruning.
type BehaviorRecorder interface {
	RecordRequest(ip, userID, endpoint, userAgent string, ts time.Time, failedLogin bool)
	FailedLoginsByUser(userID string, window time.Duration, now time.Time) int
	Cleanup(idleFor time.Duration, now time.Time)
}

// BlockState extends the block store with the maintenance operations the
// cleanup loop needs.
type BlockState interface {
	ports.BlockStore
	Reload(ctx context.Context) error
	Count() int
}

// Monitor is the explicit registry for one monitoring instance. All
// collaborators are injected at construction; there is no package-level
// state, so tests and multi-tenant embedders can run several monitors
// side by side.
type Monitor struct {
	scorer    ports.ThreatScorer
	tracker   BehaviorRecorder
	eventLog  ports.EventLog
	responder ports.ResponseHandler
	blocks    BlockState
	metrics   ports.MetricsCollector
	internal  *domain.MonitorMetrics

	cfg MonitorConfig

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopChan chan struct{}
}

type MonitorConfig struct {
	CleanupInterval     time.Duration
	TrackerIdleTimeout  time.Duration
	BruteForceThreshold int
	BruteForceWindow    time.Duration

	// ForwardLevel is the minimum event level handed to the responder.
	ForwardLevel domain.ThreatLevel
}

func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		CleanupInterval:     5 * time.Minute,
		TrackerIdleTimeout:  30 * time.Minute,
		BruteForceThreshold: 5,
		BruteForceWindow:    10 * time.Minute,
		ForwardLevel:        domain.ThreatLevelMedium,
	}
}

func NewMonitor(
	cfg MonitorConfig,
	scorer ports.ThreatScorer,
	tracker BehaviorRecorder,
	eventLog ports.EventLog,
	responder ports.ResponseHandler,
	blocks BlockState,
	metrics ports.MetricsCollector,
	internal *domain.MonitorMetrics,
) *Monitor {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}
	if cfg.TrackerIdleTimeout <= 0 {
		cfg.TrackerIdleTimeout = 30 * time.Minute
	}
	if cfg.BruteForceThreshold <= 0 {
		cfg.BruteForceThreshold = 5
	}
	if cfg.BruteForceWindow <= 0 {
		cfg.BruteForceWindow = 10 * time.Minute
	}
	if cfg.ForwardLevel == "" {
		cfg.ForwardLevel = domain.ThreatLevelMedium
	}
	return &Monitor{
		scorer:    scorer,
		tracker:   tracker,
		eventLog:  eventLog,
		responder: responder,
		blocks:    blocks,
		metrics:   metrics,
		internal:  internal,
		cfg:       cfg,
		stopChan:  make(chan struct{}),
	}
}

// Start launches the background cleanup loop. Analysis itself is
// caller-driven; Start is only needed for long-running deployments.
func (m *Monitor) Start(ctx context.Context) {
	m.wg.Add(1)
	go m.cleanupLoop(ctx)
}

// AnalyzeRequest scores one request and reacts to the result. It never
// returns an error: every internal failure degrades to an allow verdict
// with a logged cause, because the admission path must not stall on its
// own defenses.
func (m *Monitor) AnalyzeRequest(ctx context.Context, req *domain.RequestContext) *domain.Assessment {
	started := time.Now()
	req.Normalize()

	m.tracker.RecordRequest(req.IP, req.UserID, req.Endpoint, req.UserAgent, req.Timestamp, false)

	assessment := m.scorer.Assess(ctx, req)

	if m.internal != nil {
		m.internal.IncrementRequests()
		for range assessment.Indicators {
			m.internal.IncrementThreats()
		}
	}
	if m.metrics != nil {
		m.metrics.IncrementRequests()
		m.metrics.ObserveAnalysisTime(time.Since(started).Seconds())
		for _, ind := range assessment.Indicators {
			m.metrics.IncrementThreats(ind.Type)
		}
	}

	if len(assessment.Indicators) > 0 {
		m.recordThreat(ctx, req, assessment)
	}

	return assessment
}

// recordThreat turns an assessment with indicators into a logged security
// event and, above the forwarding threshold, a response engine input.
func (m *Monitor) recordThreat(ctx context.Context, req *domain.RequestContext, a *domain.Assessment) {
	strongest := strongestIndicator(a.Indicators)

	details := map[string]string{
		"endpoint":    req.Endpoint,
		"method":      req.Method,
		"score":       strconv.FormatFloat(a.Score, 'f', 1, 64),
		"recommended": string(a.Recommended),
	}
	if req.UserAgent != "" {
		details["user_agent"] = req.UserAgent
	}
	if req.Body != "" {
		payload := req.Body
		if len(payload) > payloadDetailLimit {
			payload = payload[:payloadDetailLimit]
		}
		details["payload"] = payload
	}
	for k, v := range strongest.Details {
		details[k] = v
	}
	if a.Level == domain.ThreatLevelCritical {
		details["severity"] = "critical"
	}

	event := domain.NewSecurityEvent(eventTypeForIndicator(strongest.Type), req.IP, req.UserID, details)
	m.eventLog.Append(ctx, event)
	if m.internal != nil {
		m.internal.IncrementEvents()
	}
	if m.metrics != nil {
		m.metrics.RecordEvent(event)
	}

	log.Debug().
		Str("event_id", event.ID).
		Str("type", string(event.Type)).
		Str("subject", event.Subject()).
		Float64("score", a.Score).
		Msg("Threat indicators recorded")

	if event.Level.AtLeast(m.cfg.ForwardLevel) && m.responder != nil {
		m.responder.HandleEvent(event)
	}
}

// RecordLoginFailure feeds an authentication failure into the tracker and
// logs a login_failure event. Crossing the brute force threshold marks the
// event so the lockout rule fires.
func (m *Monitor) RecordLoginFailure(ctx context.Context, userID, ip string) {
	now := time.Now().UTC()
	m.tracker.RecordRequest(ip, userID, "/login", "", now, true)

	details := map[string]string{}
	if userID != "" {
		failures := m.tracker.FailedLoginsByUser(userID, m.cfg.BruteForceWindow, now)
		details["failed_count"] = strconv.Itoa(failures)
		if failures >= m.cfg.BruteForceThreshold {
			details["brute_force"] = "true"
		}
	}

	event := domain.NewSecurityEvent(domain.EventLoginFailure, ip, userID, details)
	m.eventLog.Append(ctx, event)
	if m.internal != nil {
		m.internal.IncrementEvents()
	}
	if m.metrics != nil {
		m.metrics.RecordEvent(event)
	}

	if event.Level.AtLeast(m.cfg.ForwardLevel) && m.responder != nil {
		m.responder.HandleEvent(event)
	}
}

func (m *Monitor) cleanupLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopChan:
			return
		case <-ticker.C:
			now := time.Now()
			m.tracker.Cleanup(m.cfg.TrackerIdleTimeout, now)

			if m.blocks != nil {
				// Picks up blocks placed by other processes and drops
				// entries the cache has expired.
				if err := m.blocks.Reload(ctx); err != nil {
					log.Warn().Err(err).Msg("Block store reload failed")
				}
				blocked := m.blocks.Count()
				if m.internal != nil {
					m.internal.SetBlockedSubjects(int64(blocked))
				}
				if m.metrics != nil {
					m.metrics.SetBlockedCount(blocked)
				}
			}

			log.Debug().Dur("took", time.Since(now)).Msg("Cleanup pass finished")
		}
	}
}

func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopChan) })
	m.wg.Wait()
}

// Snapshot returns the process-wide counters for the CLI status output.
func (m *Monitor) Snapshot() domain.MetricsSnapshot {
	if m.internal == nil {
		return domain.MetricsSnapshot{}
	}
	return m.internal.GetSnapshot()
}

// strongestIndicator picks the indicator with the highest confidence;
// ties keep the earliest, matching signature-before-behavior ordering.
func strongestIndicator(indicators []domain.ThreatIndicator) domain.ThreatIndicator {
	strongest := indicators[0]
	for _, ind := range indicators[1:] {
		if ind.Confidence > strongest.Confidence {
			strongest = ind
		}
	}
	return strongest
}

func eventTypeForIndicator(t domain.IndicatorType) domain.EventType {
	switch t {
	case domain.IndicatorSignatureSQLInjection:
		return domain.EventSQLInjection
	case domain.IndicatorSignatureXSS:
		return domain.EventXSS
	case domain.IndicatorSignaturePathTraversal:
		return domain.EventPathTraversal
	case domain.IndicatorSignatureCommandInjection:
		return domain.EventCommandInjection
	case domain.IndicatorBruteForce:
		return domain.EventSuspiciousPattern
	case domain.IndicatorRapidRequests:
		return domain.EventRateLimitExceeded
	case domain.IndicatorEndpointScan:
		return domain.EventEndpointScan
	case domain.IndicatorBotActivity:
		return domain.EventBotActivity
	case domain.IndicatorBlockedSubject:
		return domain.EventIntrusionDetected
	default:
		return domain.EventSuspiciousPattern
	}
}
