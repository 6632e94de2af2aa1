package detection

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigilsec/vigil/internal/domain"
)

type fakeBlocks struct {
	blocked map[string]bool
}

func (f *fakeBlocks) IsBlocked(_ context.Context, identifier string) bool {
	return f.blocked[identifier]
}

func newTestScorer() (*Scorer, *BehaviorTracker, *fakeBlocks) {
	tracker := NewBehaviorTracker(DefaultBehaviorConfig())
	blocks := &fakeBlocks{blocked: map[string]bool{}}
	scorer := NewScorer(NewSignatureMatcher(nil), tracker, blocks, DefaultScorerConfig())
	return scorer, tracker, blocks
}

func TestScorer_CleanRequest(t *testing.T) {
	scorer, _, _ := newTestScorer()

	req := &domain.RequestContext{
		IP:        "10.0.0.1",
		Endpoint:  "/api/orders",
		Method:    "GET",
		UserAgent: "Mozilla/5.0 (X11; Linux x86_64)",
		Timestamp: time.Now(),
	}
	req.Normalize()

	a := scorer.Assess(context.Background(), req)

	assert.False(t, a.ThreatDetected)
	assert.Equal(t, 0.0, a.Score)
	assert.Equal(t, domain.ThreatLevelLow, a.Level)
	assert.Equal(t, domain.ActionAllow, a.Recommended)
}

func TestScorer_SQLInjectionBody(t *testing.T) {
	scorer, _, _ := newTestScorer()

	req := &domain.RequestContext{
		IP:        "10.0.0.2",
		Endpoint:  "/api/search",
		Method:    "POST",
		Body:      "'; DROP TABLE users; --",
		Timestamp: time.Now(),
	}
	req.Normalize()

	a := scorer.Assess(context.Background(), req)

	require.True(t, a.ThreatDetected)
	assert.Equal(t, CategorySQLInjection, a.AttackType)
	assert.True(t, a.Level.AtLeast(domain.ThreatLevelHigh))
	recommended := a.Recommended == domain.ActionBlock || a.Recommended == domain.ActionChallenge
	assert.True(t, recommended, "got %s", a.Recommended)
}

func TestScorer_QueryParamWeight(t *testing.T) {
	scorer, _, _ := newTestScorer()

	req := &domain.RequestContext{
		IP:       "10.0.0.3",
		Endpoint: "/profile",
		Query:    map[string]string{"name": "<script>alert(1)</script>"},
	}
	req.Normalize()

	a := scorer.Assess(context.Background(), req)

	require.True(t, a.ThreatDetected)
	assert.Equal(t, CategoryXSS, a.AttackType)
	// Script tag and alert( both match: two query hits at 15 each.
	assert.Equal(t, 30.0, a.Score)
	assert.Equal(t, domain.ThreatLevelMedium, a.Level)
}

func TestScorer_BruteForce(t *testing.T) {
	scorer, tracker, _ := newTestScorer()
	now := time.Now()

	for i := 0; i < 5; i++ {
		tracker.RecordRequest("10.0.0.4", "alice", "/login", "", now.Add(-time.Duration(i)*time.Minute), true)
	}

	req := &domain.RequestContext{
		IP:        "10.0.0.4",
		UserID:    "alice",
		Endpoint:  "/login",
		Method:    "POST",
		Timestamp: now,
	}
	req.Normalize()

	a := scorer.Assess(context.Background(), req)

	require.True(t, a.ThreatDetected)
	found := false
	for _, ind := range a.Indicators {
		if ind.Type == domain.IndicatorBruteForce {
			found = true
			assert.Greater(t, ind.Confidence, 0.0)
		}
	}
	assert.True(t, found, "expected brute force indicator in %v", a.Indicators)
	assert.True(t, a.Level.AtLeast(domain.ThreatLevelMedium))
}

func TestScorer_RapidRequests(t *testing.T) {
	scorer, tracker, _ := newTestScorer()
	now := time.Now()

	for i := 0; i < 61; i++ {
		tracker.RecordRequest("10.0.0.5", "", "/api/data", "", now.Add(-time.Duration(i)*900*time.Millisecond), false)
	}

	req := &domain.RequestContext{
		IP:        "10.0.0.5",
		Endpoint:  "/api/data",
		Timestamp: now,
	}
	req.Normalize()

	a := scorer.Assess(context.Background(), req)

	found := false
	for _, ind := range a.Indicators {
		if ind.Type == domain.IndicatorRapidRequests {
			found = true
		}
	}
	assert.True(t, found, "expected rapid request indicator")
	assert.True(t, a.Level.AtLeast(domain.ThreatLevelMedium))
}

func TestScorer_EndpointScan(t *testing.T) {
	scorer, tracker, _ := newTestScorer()
	now := time.Now()

	for i := 0; i < 25; i++ {
		tracker.RecordRequest("10.0.0.6", "", fmt.Sprintf("/enum/%d", i), "", now, false)
	}

	req := &domain.RequestContext{IP: "10.0.0.6", Endpoint: "/enum/25", Timestamp: now}
	req.Normalize()

	a := scorer.Assess(context.Background(), req)

	found := false
	for _, ind := range a.Indicators {
		if ind.Type == domain.IndicatorEndpointScan {
			found = true
		}
	}
	assert.True(t, found, "expected endpoint scan indicator")
}

func TestScorer_BlockedSubjectForcesCritical(t *testing.T) {
	scorer, _, blocks := newTestScorer()
	blocks.blocked["10.0.0.7"] = true

	req := &domain.RequestContext{IP: "10.0.0.7", Endpoint: "/", Timestamp: time.Now()}
	req.Normalize()

	a := scorer.Assess(context.Background(), req)

	assert.True(t, a.Blocked)
	assert.Equal(t, 100.0, a.Score)
	assert.Equal(t, domain.ThreatLevelCritical, a.Level)
	assert.Equal(t, domain.ActionBlock, a.Recommended)
}

func TestScorer_BotHeuristic(t *testing.T) {
	scorer, tracker, _ := newTestScorer()
	now := time.Now()

	// Scripted client with metronome timing.
	for i := 0; i < 20; i++ {
		tracker.RecordRequest("10.0.0.8", "", "/", "sqlmap/1.7", now.Add(-time.Duration(20-i)*time.Second), false)
	}

	req := &domain.RequestContext{
		IP:        "10.0.0.8",
		Endpoint:  "/",
		UserAgent: "sqlmap/1.7",
		Timestamp: now,
	}
	req.Normalize()

	a := scorer.Assess(context.Background(), req)

	var bot *domain.ThreatIndicator
	for i := range a.Indicators {
		if a.Indicators[i].Type == domain.IndicatorBotActivity {
			bot = &a.Indicators[i]
		}
	}
	require.NotNil(t, bot, "expected bot indicator")
	assert.Equal(t, 0.9, bot.Confidence, "keyword plus regular timing is high confidence")
	assert.True(t, a.Level.AtLeast(domain.ThreatLevelMedium))
}

func TestScorer_ConfigSwap(t *testing.T) {
	scorer, _, _ := newTestScorer()

	cfg := DefaultScorerConfig()
	cfg.BodySignatureWeight = 60
	scorer.SetConfig(cfg)

	req := &domain.RequestContext{
		IP:        "10.0.0.9",
		Endpoint:  "/x",
		Body:      "<script>alert(1)</script>",
		Timestamp: time.Now(),
	}
	req.Normalize()

	a := scorer.Assess(context.Background(), req)
	assert.Equal(t, 100.0, a.Score, "two body matches at the raised weight, clamped")
	assert.Equal(t, domain.ThreatLevelCritical, a.Level)
}
