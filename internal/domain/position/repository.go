package position

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the interface for position data access
type Repository interface {
	Create(ctx context.Context, p *Position) error
	Update(ctx context.Context, p *Position) error
	GetByEventID(ctx context.Context, eventID uuid.UUID) (*Position, error)
	ListOpen(ctx context.Context) ([]*Position, error)
}

// MetricsRepository stores evaluation records of closed positions
type MetricsRepository interface {
	Insert(ctx context.Context, m Metrics) error
}
