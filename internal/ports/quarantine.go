package ports

import (
	"context"

	"github.com/vigilsec/vigil/internal/domain"
)

// QuarantineStore persists offending request payloads for offline review.
// Save failures are recorded in the response record like any other action
// failure; they never abort the remaining actions.
type QuarantineStore interface {
	Save(ctx context.Context, rec *domain.QuarantineRecord) error
	Get(ctx context.Context, id string) (*domain.QuarantineRecord, error)
	Recent(ctx context.Context, n int) ([]*domain.QuarantineRecord, error)
	Close() error
}
