package detection

import (
	"context"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/vigilsec/vigil/internal/domain"
	"github.com/vigilsec/vigil/internal/ports"
)

// ScorerConfig holds the tunable weights and thresholds. The numeric
// weights are heuristic, so they live in configuration rather than code;
// defaults match the deployed values.
type ScorerConfig struct {
	PathSignatureWeight   float64
	QuerySignatureWeight  float64
	BodySignatureWeight   float64
	HeaderSignatureWeight float64

	BruteForceWeight   float64
	RapidRequestWeight float64
	EndpointScanWeight float64
	BotUserAgentWeight float64
	BotTimingWeight    float64

	BlockedScore float64

	BruteForceThreshold   int
	BruteForceWindow      time.Duration
	RateLimitPerMinute    float64
	RateWindow            time.Duration
	ScanEndpointThreshold int
	ScanSampleSize        int
	RegularityThreshold   float64
}

func DefaultScorerConfig() ScorerConfig {
	return ScorerConfig{
		PathSignatureWeight:   20,
		QuerySignatureWeight:  15,
		BodySignatureWeight:   25,
		HeaderSignatureWeight: 15,

		BruteForceWeight:   30,
		RapidRequestWeight: 25,
		EndpointScanWeight: 25,
		BotUserAgentWeight: 10,
		BotTimingWeight:    10,

		BlockedScore: 100,

		BruteForceThreshold:   5,
		BruteForceWindow:      10 * time.Minute,
		RateLimitPerMinute:    60,
		RateWindow:            time.Minute,
		ScanEndpointThreshold: 20,
		ScanSampleSize:        50,
		RegularityThreshold:   0.8,
	}
}

// botUAKeywords flags user agents belonging to scripted clients and
// attack tooling. Matching is case-insensitive substring.
var botUAKeywords = []string{
	"bot", "crawler", "spider", "scraper", "scanner",
	"curl", "wget", "python-requests", "python-urllib", "go-http-client",
	"sqlmap", "nikto", "nmap", "masscan", "dirbuster", "gobuster",
	"hydra", "metasploit", "burp", "zgrab",
}

// Scorer aggregates signature, behavioral, and block-state signals into a
// single assessment. Assess is read-only: recording history and reacting
// to the result are the caller's responsibility.
//
// Config is swapped atomically so hot reloads never require a lock on the
// scoring path.
type Scorer struct {
	matcher *SignatureMatcher
	tracker *BehaviorTracker
	blocks  ports.BlockChecker
	config  atomic.Pointer[ScorerConfig]
}

func NewScorer(matcher *SignatureMatcher, tracker *BehaviorTracker, blocks ports.BlockChecker, cfg ScorerConfig) *Scorer {
	s := &Scorer{
		matcher: matcher,
		tracker: tracker,
		blocks:  blocks,
	}
	s.config.Store(&cfg)
	return s
}

// SetConfig replaces the weight configuration. In-flight assessments keep
// the config they started with.
func (s *Scorer) SetConfig(cfg ScorerConfig) {
	s.config.Store(&cfg)
}

func (s *Scorer) Config() ScorerConfig {
	return *s.config.Load()
}

// Assess scores a request. The score is the clamped sum of all weighted
// signals; a subject with an active block contributes a flat BlockedScore,
// forcing CRITICAL regardless of other signals.
func (s *Scorer) Assess(ctx context.Context, req *domain.RequestContext) *domain.Assessment {
	cfg := s.config.Load()
	now := req.Timestamp
	if now.IsZero() {
		now = time.Now().UTC()
	}

	assessment := &domain.Assessment{}
	var score float64

	score += s.scoreSignatures(req, cfg, assessment, now)
	score += s.scoreBehavior(req, cfg, assessment, now)
	score += s.scoreBot(req, cfg, assessment, now)

	if s.blocks != nil && s.blocks.IsBlocked(ctx, req.Subject()) {
		score += cfg.BlockedScore
		assessment.Blocked = true
		assessment.Indicators = append(assessment.Indicators, domain.ThreatIndicator{
			Type:       domain.IndicatorBlockedSubject,
			Confidence: 1,
			Details:    map[string]string{"subject": req.Subject()},
			Timestamp:  now,
		})
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	assessment.Score = score
	assessment.Level = domain.LevelForScore(score)
	assessment.ThreatDetected = len(assessment.Indicators) > 0
	assessment.Recommended = domain.RecommendationFor(assessment.Level)
	return assessment
}

// scoreSignatures runs the pattern matcher over each request surface with
// its own weight: path, each query parameter, headers, and body.
func (s *Scorer) scoreSignatures(req *domain.RequestContext, cfg *ScorerConfig, a *domain.Assessment, now time.Time) float64 {
	var score float64

	add := func(matches []SignatureMatch, weight float64, surface string) {
		for _, m := range matches {
			score += weight
			if a.AttackType == "" || m.Severity == domain.ThreatLevelCritical {
				a.AttackType = m.Category
			}
			a.Indicators = append(a.Indicators, domain.ThreatIndicator{
				Type:       categoryIndicator(m.Category),
				Confidence: severityConfidence(m.Severity),
				Details: map[string]string{
					"surface": surface,
					"pattern": m.Name,
				},
				Timestamp: now,
			})
		}
	}

	add(s.matcher.Match(req.Endpoint), cfg.PathSignatureWeight, "path")

	for name, value := range req.Query {
		matches := s.matcher.Match(value)
		for i := range matches {
			matches[i].Name = matches[i].Name + " (param " + name + ")"
		}
		add(matches, cfg.QuerySignatureWeight, "query")
	}

	var headerSurface strings.Builder
	for _, v := range req.Headers {
		headerSurface.WriteString(v)
		headerSurface.WriteByte(' ')
	}
	add(s.matcher.Match(headerSurface.String()), cfg.HeaderSignatureWeight, "header")

	if req.Body != "" {
		add(s.matcher.Match(req.Body), cfg.BodySignatureWeight, "body")
	}

	return score
}

// scoreBehavior derives brute-force, rate, and scanning indicators from
// the tracker's windowed history.
func (s *Scorer) scoreBehavior(req *domain.RequestContext, cfg *ScorerConfig, a *domain.Assessment, now time.Time) float64 {
	if s.tracker == nil {
		return 0
	}

	var score float64

	failures := 0
	if req.UserID != "" {
		failures = s.tracker.FailedLoginsByUser(req.UserID, cfg.BruteForceWindow, now)
	}
	if ipFailures := s.tracker.FailedLoginsByIP(req.IP, cfg.BruteForceWindow, now); ipFailures > failures {
		failures = ipFailures
	}
	if failures >= cfg.BruteForceThreshold {
		score += cfg.BruteForceWeight
		if a.AttackType == "" {
			a.AttackType = "brute_force"
		}
		a.Indicators = append(a.Indicators, domain.ThreatIndicator{
			Type:       domain.IndicatorBruteForce,
			Confidence: 0.9,
			Details: map[string]string{
				"failed_logins": strconv.Itoa(failures),
				"window":        cfg.BruteForceWindow.String(),
			},
			Timestamp: now,
		})
	}

	rate := s.tracker.RequestRate(req.IP, cfg.RateWindow, now)
	if rate > cfg.RateLimitPerMinute {
		score += cfg.RapidRequestWeight
		a.Indicators = append(a.Indicators, domain.ThreatIndicator{
			Type:       domain.IndicatorRapidRequests,
			Confidence: 0.8,
			Details: map[string]string{
				"requests_per_minute": strconv.FormatFloat(rate, 'f', 1, 64),
				"limit":               strconv.FormatFloat(cfg.RateLimitPerMinute, 'f', 0, 64),
			},
			Timestamp: now,
		})
	}

	endpoints := s.tracker.DistinctEndpoints(req.IP, cfg.ScanSampleSize)
	if endpoints > cfg.ScanEndpointThreshold {
		score += cfg.EndpointScanWeight
		a.Indicators = append(a.Indicators, domain.ThreatIndicator{
			Type:       domain.IndicatorEndpointScan,
			Confidence: 0.7,
			Details: map[string]string{
				"distinct_endpoints": strconv.Itoa(endpoints),
				"sample_size":        strconv.Itoa(cfg.ScanSampleSize),
			},
			Timestamp: now,
		})
	}

	return score
}

// scoreBot combines the user-agent keyword heuristic with inter-request
// timing regularity. Each contributes incrementally; both firing marks
// high-confidence automation.
func (s *Scorer) scoreBot(req *domain.RequestContext, cfg *ScorerConfig, a *domain.Assessment, now time.Time) float64 {
	var score float64
	details := map[string]string{}

	uaMatch := false
	if req.UserAgent != "" {
		lower := strings.ToLower(req.UserAgent)
		for _, kw := range botUAKeywords {
			if strings.Contains(lower, kw) {
				uaMatch = true
				details["ua_keyword"] = kw
				break
			}
		}
	}
	if uaMatch {
		score += cfg.BotUserAgentWeight
	}

	regular := false
	if s.tracker != nil {
		regularity := s.tracker.IntervalRegularity(req.IP, cfg.ScanSampleSize)
		if regularity >= cfg.RegularityThreshold {
			regular = true
			details["interval_regularity"] = strconv.FormatFloat(regularity, 'f', 2, 64)
			score += cfg.BotTimingWeight
		}
	}

	if uaMatch || regular {
		confidence := 0.5
		if uaMatch && regular {
			confidence = 0.9
		}
		a.Indicators = append(a.Indicators, domain.ThreatIndicator{
			Type:       domain.IndicatorBotActivity,
			Confidence: confidence,
			Details:    details,
			Timestamp:  now,
		})
	}

	return score
}

func categoryIndicator(category string) domain.IndicatorType {
	switch category {
	case CategorySQLInjection:
		return domain.IndicatorSignatureSQLInjection
	case CategoryXSS:
		return domain.IndicatorSignatureXSS
	case CategoryPathTraversal:
		return domain.IndicatorSignaturePathTraversal
	case CategoryCommandInjection:
		return domain.IndicatorSignatureCommandInjection
	default:
		return domain.IndicatorType(category)
	}
}

// EventTypeForCategory maps a signature category to the event type logged
// when the category dominates an assessment.
func EventTypeForCategory(category string) domain.EventType {
	switch category {
	case CategorySQLInjection:
		return domain.EventSQLInjection
	case CategoryXSS:
		return domain.EventXSS
	case CategoryPathTraversal:
		return domain.EventPathTraversal
	case CategoryCommandInjection:
		return domain.EventCommandInjection
	default:
		return domain.EventSuspiciousPattern
	}
}

func severityConfidence(level domain.ThreatLevel) float64 {
	switch level {
	case domain.ThreatLevelCritical:
		return 0.9
	case domain.ThreatLevelHigh:
		return 0.75
	default:
		return 0.5
	}
}
