package detection

import (
	"regexp"
	"strings"

	"github.com/vigilsec/vigil/internal/domain"
	"github.com/vigilsec/vigil/pkg/ahocorasick"
)

// SignaturePattern is one compiled attack signature.
type SignaturePattern struct {
	Name     string
	Category string
	Regex    *regexp.Regexp
	Severity domain.ThreatLevel
}

// SignatureMatch reports a single pattern hit. A scan returns every hit,
// not just the first; the same text can match several categories.
type SignatureMatch struct {
	Category string
	Name     string
	Pattern  string
	Severity domain.ThreatLevel
}

// Pattern categories. These become the attack_type of the resulting
// assessment and select the matching indicator type.
const (
	CategorySQLInjection     = "sql_injection"
	CategoryXSS              = "xss"
	CategoryPathTraversal    = "path_traversal"
	CategoryCommandInjection = "command_injection"
)

// SignatureMatcher runs a fixed ordered pattern list against request text.
// Stateless after construction; safe for concurrent use.
type SignatureMatcher struct {
	patterns  []*SignaturePattern
	preFilter *ahocorasick.Matcher
}

func DefaultPatterns() []*SignaturePattern {
	return []*SignaturePattern{
		{
			Name:     "SQL Injection - UNION",
			Regex:    regexp.MustCompile(`(?i)(union\s+(all\s+)?select)`),
			Category: CategorySQLInjection,
			Severity: domain.ThreatLevelCritical,
		},
		{
			Name:     "SQL Injection - SELECT/SLEEP",
			Regex:    regexp.MustCompile(`(?i)(select\s+.+\s+from|sleep\s*\(|benchmark\s*\()`),
			Category: CategorySQLInjection,
			Severity: domain.ThreatLevelCritical,
		},
		{
			Name:     "SQL Injection - OR 1=1",
			Regex:    regexp.MustCompile(`(?i)(\bor\b\s+\d+\s*=\s*\d+|\bor\b\s*'[^']*'\s*=\s*'[^']*')`),
			Category: CategorySQLInjection,
			Severity: domain.ThreatLevelCritical,
		},
		{
			Name:     "SQL Injection - DROP/DELETE",
			Regex:    regexp.MustCompile(`(?i)(drop\s+table|delete\s+from|truncate\s+table)`),
			Category: CategorySQLInjection,
			Severity: domain.ThreatLevelCritical,
		},
		{
			Name:     "SQL Injection - Comment",
			Regex:    regexp.MustCompile(`(?i)('\s*--|--\s*$|/\*.*\*/|'\s*#)`),
			Category: CategorySQLInjection,
			Severity: domain.ThreatLevelHigh,
		},
		{
			Name:     "XSS - Script Tag",
			Regex:    regexp.MustCompile(`(?i)(<script[^>]*>|</script>)`),
			Category: CategoryXSS,
			Severity: domain.ThreatLevelCritical,
		},
		{
			Name:     "XSS - JavaScript Protocol",
			Regex:    regexp.MustCompile(`(?i)(javascript\s*:|vbscript\s*:)`),
			Category: CategoryXSS,
			Severity: domain.ThreatLevelCritical,
		},
		{
			Name:     "XSS - Event Handler",
			Regex:    regexp.MustCompile(`(?i)(on(error|load|click|mouse|key|focus|blur|change|submit)\s*=)`),
			Category: CategoryXSS,
			Severity: domain.ThreatLevelCritical,
		},
		{
			Name:     "XSS - Alert/Eval",
			Regex:    regexp.MustCompile(`(?i)(alert\s*\(|eval\s*\(|document\.cookie)`),
			Category: CategoryXSS,
			Severity: domain.ThreatLevelHigh,
		},
		{
			Name:     "Path Traversal - Dot-Dot-Slash",
			Regex:    regexp.MustCompile(`(\.\./)+|\.\.\\`),
			Category: CategoryPathTraversal,
			Severity: domain.ThreatLevelCritical,
		},
		{
			Name:     "Path Traversal - Sensitive Files",
			Regex:    regexp.MustCompile(`(?i)(/etc/passwd|/etc/shadow|/etc/hosts|boot\.ini)`),
			Category: CategoryPathTraversal,
			Severity: domain.ThreatLevelCritical,
		},
		{
			Name:     "Path Traversal - Windows Paths",
			Regex:    regexp.MustCompile(`(?i)(c:\\windows|c:\\boot\.ini|c:\\inetpub)`),
			Category: CategoryPathTraversal,
			Severity: domain.ThreatLevelCritical,
		},
		{
			Name:     "Path Traversal - Config Files",
			Regex:    regexp.MustCompile(`(?i)(\.env\b|\.git/|\.svn/|config\.php|wp-config\.php)`),
			Category: CategoryPathTraversal,
			Severity: domain.ThreatLevelHigh,
		},
		{
			Name:     "Command Injection - Chaining",
			Regex:    regexp.MustCompile(`(?i)(;|\||\|\||&&)\s*(cat|ls|id|whoami|uname|pwd|curl|wget|nc|netcat|bash|sh|python|perl|ruby|php)\b`),
			Category: CategoryCommandInjection,
			Severity: domain.ThreatLevelCritical,
		},
		{
			Name:     "Command Injection - Subshell",
			Regex:    regexp.MustCompile("`[^`]+`|\\$\\([^)]+\\)"),
			Category: CategoryCommandInjection,
			Severity: domain.ThreatLevelCritical,
		},
		{
			Name:     "Command Injection - Shellshock",
			Regex:    regexp.MustCompile(`\(\)\s*\{`),
			Category: CategoryCommandInjection,
			Severity: domain.ThreatLevelCritical,
		},
		{
			Name:     "Command Injection - Null Byte",
			Regex:    regexp.MustCompile(`%00|\\x00`),
			Category: CategoryCommandInjection,
			Severity: domain.ThreatLevelHigh,
		},
	}
}

func NewSignatureMatcher(patterns []*SignaturePattern) *SignatureMatcher {
	if len(patterns) == 0 {
		patterns = DefaultPatterns()
	}

	attackKeywords := []string{
		"union", "select", "from", "drop", "delete", "truncate",
		"insert", "update", "sleep", "benchmark", "1=1", "or 1",
		"--", "/*", "*/", "'",
		"script", "javascript", "vbscript", "onerror", "onload", "onclick",
		"onmouse", "onfocus", "onblur", "onchange", "onsubmit", "onkey",
		"alert", "eval", "document.", "cookie",
		"../", "..\\", "/etc/", "passwd", "shadow", "boot.ini", "windows",
		"inetpub", ".git", ".env", ".svn", "config.php", "wp-config",
		"`", "$(", "()", ";", "|", "&&", "%00",
	}

	return &SignatureMatcher{
		patterns:  patterns,
		preFilter: ahocorasick.New(attackKeywords),
	}
}

// Match scans text for every attack signature and returns all hits.
// Deterministic, no I/O, no side effects.
func (m *SignatureMatcher) Match(text string) []SignatureMatch {
	if text == "" {
		return nil
	}

	normalized := normalizeForMatching(text)

	if m.preFilter != nil && !m.preFilter.Match(normalized) {
		return nil
	}

	var matches []SignatureMatch
	for _, p := range m.patterns {
		if p.Regex.MatchString(normalized) {
			matches = append(matches, SignatureMatch{
				Category: p.Category,
				Name:     p.Name,
				Pattern:  p.Regex.String(),
				Severity: p.Severity,
			})
		}
	}
	return matches
}

// MatchCategories returns the distinct categories matched in text,
// preserving pattern order.
func (m *SignatureMatcher) MatchCategories(text string) []string {
	seen := make(map[string]struct{})
	var cats []string
	for _, match := range m.Match(text) {
		if _, ok := seen[match.Category]; !ok {
			seen[match.Category] = struct{}{}
			cats = append(cats, match.Category)
		}
	}
	return cats
}

func (m *SignatureMatcher) AddPattern(name, category, pattern string, severity domain.ThreatLevel) error {
	regex, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	m.patterns = append(m.patterns, &SignaturePattern{
		Name:     name,
		Category: category,
		Regex:    regex,
		Severity: severity,
	})
	return nil
}

func (m *SignatureMatcher) PatternCount() int {
	return len(m.patterns)
}

// normalizeForMatching defeats common encoding evasions before the
// patterns run: null-byte stripping, bounded multi-pass percent
// decoding, and full-width/quote unicode folding.
func normalizeForMatching(s string) string {
	if s == "" {
		return s
	}
	s = removeNullBytes(s)
	s = urlDecodeMultiPass(s, 5)
	s = normalizeUnicode(s)
	return s
}

func removeNullBytes(s string) string {
	if !strings.ContainsAny(s, "\x00") {
		return s
	}
	return strings.ReplaceAll(s, "\x00", "")
}

func urlDecodeMultiPass(s string, maxPasses int) string {
	decoded := s
	for i := 0; i < maxPasses; i++ {
		if !strings.Contains(decoded, "%") {
			break
		}
		next := percentDecode(decoded)
		if next == decoded {
			break
		}
		decoded = next
	}
	return decoded
}

func percentDecode(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}

	var result strings.Builder
	result.Grow(len(s))

	i := 0
	for i < len(s) {
		if s[i] == '%' && i+2 < len(s) {
			high := hexVal(s[i+1])
			low := hexVal(s[i+2])
			if high >= 0 && low >= 0 {
				decoded := byte(high<<4 | low)
				if decoded != 0 {
					result.WriteByte(decoded)
				}
				i += 3
				continue
			}
		}
		result.WriteByte(s[i])
		i++
	}

	return result.String()
}

var unicodeReplacer = strings.NewReplacer(
	"＜", "<", "＞", ">", "＆", "&", "＂", "\"", "＇", "'",
	"（", "(", "）", ")", "／", "/", "＼", "\\",
	"ｕ", "u", "ｎ", "n", "ｉ", "i", "ｏ", "o", "ｓ", "s",
	"ｅ", "e", "ｌ", "l", "ｃ", "c", "ｔ", "t",
	"Ｕ", "U", "Ｎ", "N", "Ｉ", "I", "Ｏ", "O", "Ｓ", "S",
	"Ｅ", "E", "Ｌ", "L", "Ｃ", "C", "Ｔ", "T",
	"ʼ", "'", "ʻ", "'", "′", "'", "‵", "'",
	"‹", "<", "›", ">",
	"«", "<", "»", ">",
)

func normalizeUnicode(s string) string {
	hasUnicode := false
	for i := 0; i < len(s); i++ {
		if s[i] > 127 {
			hasUnicode = true
			break
		}
	}
	if !hasUnicode {
		return s
	}
	return unicodeReplacer.Replace(s)
}

func hexVal(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c - 'a' + 10)
	case c >= 'A' && c <= 'F':
		return int(c - 'A' + 10)
	default:
		return -1
	}
}
