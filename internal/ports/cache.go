// Package ports defines the interfaces between the monitoring core and its
// external collaborators (cache, audit log, session store, request feed).
//
// Dependencies flow inward: the core depends on these interfaces, adapters
// in internal/adapters/ provide the implementations.
package ports

import (
	"context"
	"time"
)

// KVCache is the external TTL-capable cache collaborator. It backs block
// state, account flags and cross-process cooldowns.
//
// Implementations must treat a missing key as (value="", ok=false, err=nil);
// errors are reserved for the cache being unreachable. Callers degrade to
// safe defaults on error (treat-as-unblocked, local-only cooldown).
type KVCache interface {
	// Get returns the value for key, ok=false when absent or expired.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key with the given TTL (0 = no expiry).
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// SetNX stores value only when key is absent. Returns true when the
	// write happened. Used for cross-process cooldown assertions.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Del removes key. Deleting an absent key is not an error.
	Del(ctx context.Context, key string) error

	// Keys lists keys with the given prefix. Used at startup to reload
	// block state; not a hot-path operation.
	Keys(ctx context.Context, prefix string) ([]string, error)
}
