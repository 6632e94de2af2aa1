package domain

import (
	"strings"
	"time"
)

const (
	MaxBodySize        = 32768
	MaxHeaderValueSize = 4096
	MaxHeaderCount     = 50
	MaxLineLength      = 65536
)

// RequestContext is the structured request metadata handed in by the
// request-handling middleware. Optional fields may be empty; analysis
// defaults them rather than failing.
type RequestContext struct {
	IP        string            `json:"ip_address"`
	UserID    string            `json:"user_id,omitempty"`
	Endpoint  string            `json:"endpoint"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers,omitempty"`
	Query     map[string]string `json:"query_params,omitempty"`
	Body      string            `json:"body,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	Timestamp time.Time         `json:"timestamp,omitempty"`
	Truncated bool              `json:"truncated,omitempty"`
}

// Normalize fills defaults for missing optional context so downstream
// analysis never has to handle absent fields.
func (r *RequestContext) Normalize() {
	if r.IP == "" {
		r.IP = "unknown"
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	if len(r.Body) > MaxBodySize {
		r.Body = r.Body[:MaxBodySize]
		r.Truncated = true
	}
	for k, v := range r.Headers {
		if len(v) > MaxHeaderValueSize {
			r.Headers[k] = v[:MaxHeaderValueSize]
			r.Truncated = true
		}
	}
}

// Subject returns the identifier the request is attributed to.
func (r *RequestContext) Subject() string {
	if r.UserID != "" {
		return r.UserID
	}
	return r.IP
}

// Surface concatenates the attacker-controlled request surface scanned by
// the signature matcher: path, query values, header values and body.
func (r *RequestContext) Surface() string {
	var b strings.Builder
	b.Grow(len(r.Endpoint) + len(r.Body) + 64)
	b.WriteString(r.Endpoint)
	for _, v := range r.Query {
		b.WriteByte(' ')
		b.WriteString(v)
	}
	for _, v := range r.Headers {
		b.WriteByte(' ')
		b.WriteString(v)
	}
	if r.Body != "" {
		b.WriteByte(' ')
		b.WriteString(r.Body)
	}
	return b.String()
}

func (r *RequestContext) GetHeader(name string) string {
	if r.Headers == nil {
		return ""
	}
	return r.Headers[strings.ToLower(name)]
}
