// Package ports defines the interfaces between the monitor core and its
// adapters: detection, caching, auditing, and external collaborators.
package ports

import (
	"context"
	"time"

	"github.com/vigilsec/vigil/internal/domain"
)

// ThreatScorer assesses a request for threat indicators.
//
// Thread Safety: implementations MUST be safe for concurrent Assess calls;
// the monitor invokes it from many request goroutines simultaneously.
type ThreatScorer interface {
	// Assess analyzes a request and returns the aggregated assessment.
	//
	// Contract:
	//   - MUST NOT modify the request
	//   - MUST NOT return an error; degraded collaborators reduce signal,
	//     they never fail the analysis
	//   - SHOULD respect context cancellation for collaborator lookups
	Assess(ctx context.Context, req *domain.RequestContext) *domain.Assessment
}

// BlockChecker is the read side of the block store, consulted on the
// scoring hot path.
//
// Thread Safety: implementations MUST be safe for concurrent access.
type BlockChecker interface {
	// IsBlocked reports whether the identifier (IP or user id) currently
	// has an active block. Cache errors degrade to unblocked.
	IsBlocked(ctx context.Context, identifier string) bool
}

// BlockStore manages TTL-bounded blocks keyed by IP or user id.
type BlockStore interface {
	BlockChecker

	// Block records a block for the identifier lasting for duration.
	Block(ctx context.Context, identifier, reason string, duration time.Duration) error

	// Unblock removes any active block for the identifier.
	Unblock(ctx context.Context, identifier string) error

	// Entry returns the active block entry for an identifier, if any.
	Entry(ctx context.Context, identifier string) (*domain.BlockEntry, bool)
}

// EventLog stores security events in arrival order with bounded memory.
type EventLog interface {
	// Append stores an event and returns its id. Never blocks on
	// capacity; the oldest event is evicted instead.
	Append(ctx context.Context, event *domain.SecurityEvent) string

	// Query returns events matching the filter, newest first.
	Query(filter domain.EventFilter) []*domain.SecurityEvent

	// Count returns the number of events matching the filter.
	Count(filter domain.EventFilter) int
}

// ResponseHandler consumes security events and executes matching
// response rules.
type ResponseHandler interface {
	// HandleEvent evaluates the event against all rules and queues any
	// triggered action sets. Returns immediately; execution is async.
	HandleEvent(event *domain.SecurityEvent)
}
