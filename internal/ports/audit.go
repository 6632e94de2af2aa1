package ports

import (
	"context"

	"github.com/vigilsec/vigil/internal/domain"
)

// AuditSink receives the mirror copy of every security event and response
// record. Mirroring is fire-and-forget: a sink error never propagates to
// the request path.
//
// Thread safety: implementations must support concurrent Write calls.
type AuditSink interface {
	Write(ctx context.Context, entry domain.AuditEntry) error

	// Flush forces buffered entries out; called during shutdown.
	Flush() error

	Close() error
}

// AdminNotifier pushes urgent notifications to operators. Emergency-mode
// activation always notifies regardless of other configuration.
type AdminNotifier interface {
	Notify(ctx context.Context, subject, message string) error
}
