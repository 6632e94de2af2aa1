package ports

import (
	"context"

	"github.com/vigilsec/vigil/internal/domain"
)

type RequestReader interface {
	Start(ctx context.Context) (<-chan *domain.RequestContext, <-chan error)
	Stop() error
}

type RequestParser interface {
	Parse(line string) (*domain.RequestContext, error)
	Format() string
}
