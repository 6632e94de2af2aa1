// Package sanitize neutralizes attacker-controlled strings before they are
// written to audit records, structured logs, or admin notifications. Event
// payloads come straight from hostile requests, so anything that could smuggle
// terminal escapes or log-injection newlines is stripped or tagged.
package sanitize

import (
	"net"
	"strings"
	"unicode"
)

const DefaultMaxFieldLength = 256

// Field sanitizes a free-form value and truncates it to maxLen bytes.
// A maxLen of 0 or less disables truncation.
func Field(s string, maxLen int) string {
	out := stripControl(s)
	if maxLen > 0 && len(out) > maxLen {
		if maxLen > 3 {
			return out[:maxLen-3] + "..."
		}
		return out[:maxLen]
	}
	return out
}

// stripControl replaces control bytes and ANSI escape sequences with
// visible markers. Clean strings are returned unchanged without allocation.
func stripControl(s string) string {
	if s == "" {
		return s
	}

	dirty := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < 0x20 || c == 0x7F || c == 0x1B {
			dirty = true
			break
		}
	}
	if !dirty {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))

	i := 0
	for i < len(s) {
		c := s[i]

		if c == 0x1B && i+1 < len(s) {
			i++
			if i < len(s) && s[i] == '[' {
				i++
				for i < len(s) && !isCSITerminator(s[i]) {
					i++
				}
				if i < len(s) {
					i++
				}
			}
			b.WriteString("[ESC]")
			continue
		}

		switch {
		case c == '\t', c == '\n':
			b.WriteByte(' ')
		case c == '\r':
			b.WriteString("[CR]")
		case c < 0x20:
			b.WriteString("[CTRL]")
		case c == 0x7F:
			b.WriteString("[DEL]")
		default:
			b.WriteByte(c)
		}
		i++
	}

	return b.String()
}

func isCSITerminator(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || c == '@' || c == '`'
}

// IP keeps only characters valid in IPv4 or IPv6 literals, then requires
// the remainder to parse as an address. Anything unparseable yields
// "[INVALID]" rather than a partially cleaned fragment.
func IP(ip string) string {
	var b strings.Builder
	b.Grow(len(ip))

	for _, r := range ip {
		if unicode.IsDigit(r) || r == '.' || r == ':' ||
			(r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F') {
			b.WriteRune(r)
		}
	}

	out := b.String()
	if net.ParseIP(out) == nil {
		return "[INVALID]"
	}
	return out
}

// Identifier sanitizes a user or account identifier for audit output.
// Identifiers longer than 128 bytes are truncated.
func Identifier(id string) string {
	return Field(id, 128)
}

// Endpoint sanitizes a request path for audit output.
func Endpoint(path string, maxLen int) string {
	return Field(path, maxLen)
}

// UserAgent sanitizes a User-Agent header for audit output.
func UserAgent(ua string, maxLen int) string {
	return Field(ua, maxLen)
}

// Details sanitizes every value in an event detail map, returning a new
// map. Keys are assumed to be produced by the monitor itself and are left
// untouched.
func Details(details map[string]string) map[string]string {
	if details == nil {
		return nil
	}
	out := make(map[string]string, len(details))
	for k, v := range details {
		out[k] = Field(v, DefaultMaxFieldLength)
	}
	return out
}
