package event

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the durable journal of events and their lifecycle
type Repository interface {
	Create(ctx context.Context, e *Event) error
	UpdateState(ctx context.Context, e *Event) error
	GetByID(ctx context.Context, id uuid.UUID) (*Event, error)
	ListByState(ctx context.Context, state State, limit int) ([]*Event, error)
}
