package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestContextNormalize(t *testing.T) {
	req := &RequestContext{Endpoint: "/api"}
	req.Normalize()

	assert.Equal(t, "unknown", req.IP)
	assert.False(t, req.Timestamp.IsZero())

	oversized := &RequestContext{
		IP:       "10.0.0.1",
		Endpoint: "/upload",
		Body:     strings.Repeat("a", MaxBodySize+100),
	}
	oversized.Normalize()
	assert.Len(t, oversized.Body, MaxBodySize)
	assert.True(t, oversized.Truncated)
}

func TestRequestContextSubject(t *testing.T) {
	assert.Equal(t, "alice", (&RequestContext{IP: "10.0.0.1", UserID: "alice"}).Subject())
	assert.Equal(t, "10.0.0.1", (&RequestContext{IP: "10.0.0.1"}).Subject())
}

func TestRequestContextSurface(t *testing.T) {
	req := &RequestContext{
		Endpoint: "/search",
		Query:    map[string]string{"q": "union select"},
		Headers:  map[string]string{"referer": "evil.example"},
		Body:     `{"x":1}`,
	}
	surface := req.Surface()

	assert.Contains(t, surface, "/search")
	assert.Contains(t, surface, "union select")
	assert.Contains(t, surface, "evil.example")
	assert.Contains(t, surface, `{"x":1}`)
}

func TestRequestContextGetHeader(t *testing.T) {
	req := &RequestContext{Headers: map[string]string{"user-agent": "curl/8.0"}}
	assert.Equal(t, "curl/8.0", req.GetHeader("User-Agent"))
	assert.Equal(t, "", req.GetHeader("authorization"))
	assert.Equal(t, "", (&RequestContext{}).GetHeader("user-agent"))
}
