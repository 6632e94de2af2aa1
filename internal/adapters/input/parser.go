// Package input feeds request metadata into the monitor: an NDJSON file
// tailer for middleware-exported request logs and a synthetic generator
// for demos and load tests.
package input

import (
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/vigilsec/vigil/internal/domain"
)

var ErrInvalidRequestFormat = errors.New("invalid request format")

// requestLine is the wire shape middleware writes, one JSON object per
// line. Only ip_address and endpoint are required.
type requestLine struct {
	Timestamp string            `json:"timestamp"`
	IP        string            `json:"ip_address"`
	UserID    string            `json:"user_id,omitempty"`
	Endpoint  string            `json:"endpoint"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers,omitempty"`
	Query     map[string]string `json:"query_params,omitempty"`
	Body      string            `json:"body,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
}

type NDJSONParser struct {
	maxLineLength int
}

func NewNDJSONParser() *NDJSONParser {
	return &NDJSONParser{maxLineLength: domain.MaxLineLength}
}

func (p *NDJSONParser) Parse(line string) (*domain.RequestContext, error) {
	truncated := false
	if len(line) > p.maxLineLength {
		line = line[:p.maxLineLength]
		truncated = true
	}

	line = strings.TrimSpace(line)
	if len(line) < 2 || line[0] != '{' {
		return nil, ErrInvalidRequestFormat
	}

	var raw requestLine
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return nil, ErrInvalidRequestFormat
	}
	if raw.Endpoint == "" {
		return nil, ErrInvalidRequestFormat
	}

	req := &domain.RequestContext{
		IP:        raw.IP,
		UserID:    raw.UserID,
		Endpoint:  raw.Endpoint,
		Method:    raw.Method,
		Headers:   lowercaseHeaders(raw.Headers),
		Query:     raw.Query,
		Body:      raw.Body,
		UserAgent: raw.UserAgent,
		Truncated: truncated,
	}

	if raw.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339, raw.Timestamp); err == nil {
			req.Timestamp = ts
		}
	}

	// Middleware that logs the raw URI leaves the query string inline.
	if req.Query == nil {
		if idx := strings.Index(req.Endpoint, "?"); idx >= 0 {
			req.Query = parseQueryString(req.Endpoint[idx+1:])
			req.Endpoint = req.Endpoint[:idx]
		}
	}

	if req.UserAgent == "" {
		req.UserAgent = req.Headers["user-agent"]
	}

	req.Normalize()
	return req, nil
}

func (p *NDJSONParser) Format() string {
	return "ndjson"
}

func (p *NDJSONParser) Validate(line string) bool {
	line = strings.TrimSpace(line)
	return len(line) > 2 && line[0] == '{' && line[len(line)-1] == '}'
}

func lowercaseHeaders(headers map[string]string) map[string]string {
	if len(headers) == 0 {
		return headers
	}
	out := make(map[string]string, len(headers))
	count := 0
	for k, v := range headers {
		if count >= domain.MaxHeaderCount {
			break
		}
		out[strings.ToLower(k)] = v
		count++
	}
	return out
}

func parseQueryString(query string) map[string]string {
	values, err := url.ParseQuery(query)
	if err != nil || len(values) == 0 {
		return nil
	}

	out := make(map[string]string, len(values))
	count := 0
	for k, v := range values {
		if count >= 20 {
			break
		}
		if len(v) > 0 {
			out[k] = v[0]
		}
		count++
	}
	return out
}
