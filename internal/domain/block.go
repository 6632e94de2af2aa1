package domain

import "time"

// BlockEntry describes a currently blocked identifier. The external cache's
// TTL is the source of truth for expiry; ExpiresAt mirrors it for local
// fast-path checks.
type BlockEntry struct {
	Identifier string    `json:"identifier"`
	Reason     string    `json:"reason"`
	BlockedAt  time.Time `json:"blocked_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

func (b *BlockEntry) Expired(now time.Time) bool {
	return !b.ExpiresAt.IsZero() && now.After(b.ExpiresAt)
}
