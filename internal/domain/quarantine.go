package domain

import "time"

// QuarantineRecord preserves an offending request for offline review
// after a quarantine_request action fires.
type QuarantineRecord struct {
	ID        string            `json:"id"`
	EventID   string            `json:"event_id"`
	Subject   string            `json:"subject"`
	Endpoint  string            `json:"endpoint"`
	Method    string            `json:"method"`
	Query     map[string]string `json:"query_params,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	Body      string            `json:"body,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	Reason    string            `json:"reason"`
	Timestamp time.Time         `json:"timestamp"`
}
