package confirmation

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"eventsim/pkg/errors"
	"eventsim/pkg/logger"
)

type pending struct {
	eventID uuid.UUID
	status  Status
	ignored bool
}

// Registry is the in-process Device. Confirmations arrive from the HTTP API,
// Kafka or Telegram and are matched to pending requests by event ID.
type Registry struct {
	mu        sync.Mutex
	byToken   map[Token]*pending
	byEvent   map[uuid.UUID]Token
	notifiers []Notifier
	log       *logger.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		byToken: make(map[Token]*pending),
		byEvent: make(map[uuid.UUID]Token),
		log:     log.With("component", "confirmation_registry"),
	}
}

// AddNotifier registers a prompt channel. Not safe to call after start.
func (r *Registry) AddNotifier(n Notifier) {
	r.notifiers = append(r.notifiers, n)
}

// RequestConfirmation implements Device
func (r *Registry) RequestConfirmation(ctx context.Context, eventID uuid.UUID) (Token, error) {
	r.mu.Lock()
	if _, exists := r.byEvent[eventID]; exists {
		r.mu.Unlock()
		return "", errors.Wrapf(errors.ErrAlreadyExists, "confirmation already pending for event %s", eventID)
	}
	token := Token(uuid.NewString())
	r.byToken[token] = &pending{eventID: eventID, status: StatusPending}
	r.byEvent[eventID] = token
	r.mu.Unlock()

	for _, n := range r.notifiers {
		if err := n.NotifyPending(ctx, eventID, token); err != nil {
			r.log.Warnw("confirmation prompt failed", "event_id", eventID, "error", err)
		}
	}
	return token, nil
}

// Poll implements Device
func (r *Registry) Poll(_ context.Context, token Token) (Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byToken[token]
	if !ok {
		return "", errors.Wrapf(errors.ErrNotFound, "confirmation token %s", token)
	}
	return p.status, nil
}

// Release implements Releaser
func (r *Registry) Release(token Token) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.byToken[token]; ok {
		delete(r.byEvent, p.eventID)
		delete(r.byToken, token)
	}
}

// Confirm marks the pending request for eventID as confirmed
func (r *Registry) Confirm(eventID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.lookup(eventID)
	if err != nil {
		return err
	}
	p.status = StatusConfirmed
	r.log.Infow("event confirmed", "event_id", eventID)
	return nil
}

// Ignore acknowledges an explicit "ignore" from a human. The request stays
// pending and resolves by timeout.
func (r *Registry) Ignore(eventID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.lookup(eventID)
	if err != nil {
		return err
	}
	p.ignored = true
	r.log.Infow("event ignored, waiting for timeout", "event_id", eventID)
	return nil
}

// Pending reports whether eventID has an open request
func (r *Registry) Pending(eventID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.byEvent[eventID]
	return ok
}

func (r *Registry) lookup(eventID uuid.UUID) (*pending, error) {
	token, ok := r.byEvent[eventID]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNoPendingConfirmation, "event %s", eventID)
	}
	return r.byToken[token], nil
}
