package confirmation

import (
	"context"

	"github.com/google/uuid"
)

// Token identifies one pending confirmation request
type Token string

// Status of a pending confirmation request
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
)

// Device is the confirmation capability: ask once, then poll
type Device interface {
	RequestConfirmation(ctx context.Context, eventID uuid.UUID) (Token, error)
	Poll(ctx context.Context, token Token) (Status, error)
}

// Releaser is implemented by devices that keep per-request state
type Releaser interface {
	Release(token Token)
}

// Notifier is told about every new request, e.g. to prompt a human
type Notifier interface {
	NotifyPending(ctx context.Context, eventID uuid.UUID, token Token) error
}
