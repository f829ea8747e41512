package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"eventsim/internal/domain/event"
	"eventsim/pkg/errors"
)

// Compile-time check
var _ event.Repository = (*EventRepository)(nil)

// EventRepository implements event.Repository using sqlx
type EventRepository struct {
	db DBTX
}

// NewEventRepository creates a new event repository
func NewEventRepository(db DBTX) *EventRepository {
	return &EventRepository{db: db}
}

// eventRow adds the array column Event keeps out of sqlx mapping
type eventRow struct {
	event.Event
	Entities pq.StringArray `db:"entities"`
}

func (r eventRow) toEvent() *event.Event {
	e := r.Event
	e.Entities = []string(r.Entities)
	if e.Entities == nil {
		e.Entities = []string{}
	}
	return &e
}

const eventColumns = `id, event_type, confidence, source, entities, symbol, detected_at,
	fingerprint, state, reject_reason, received_at, updated_at`

// Create inserts a newly registered event
func (r *EventRepository) Create(ctx context.Context, e *event.Event) error {
	query := `
		INSERT INTO events (` + eventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.Type, e.Confidence, e.Source, pq.StringArray(e.Entities), e.Symbol, e.Timestamp,
		e.Fingerprint, e.State, e.RejectReason, e.ReceivedAt, e.UpdatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "insert event %s", e.ID)
	}
	return nil
}

// UpdateState persists the event's current state and reject reason
func (r *EventRepository) UpdateState(ctx context.Context, e *event.Event) error {
	query := `
		UPDATE events SET
			state = :state,
			reject_reason = :reject_reason,
			updated_at = :updated_at
		WHERE id = :id`

	res, err := r.db.NamedExecContext(ctx, query, e)
	if err != nil {
		return errors.Wrapf(err, "update event %s", e.ID)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return errors.Wrapf(errors.ErrNotFound, "event %s", e.ID)
	}
	return nil
}

// GetByID retrieves an event by ID
func (r *EventRepository) GetByID(ctx context.Context, id uuid.UUID) (*event.Event, error) {
	var row eventRow
	err := r.db.GetContext(ctx, &row, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrNotFound, "event %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get event %s", id)
	}
	return row.toEvent(), nil
}

// ListByState returns the oldest events in a state
func (r *EventRepository) ListByState(ctx context.Context, state event.State, limit int) ([]*event.Event, error) {
	var rows []eventRow

	query := `
		SELECT ` + eventColumns + `
		FROM events
		WHERE state = $1
		ORDER BY received_at ASC
		LIMIT $2`

	if err := r.db.SelectContext(ctx, &rows, query, state, limit); err != nil {
		return nil, errors.Wrapf(err, "list events in %s", state)
	}

	events := make([]*event.Event, 0, len(rows))
	for _, row := range rows {
		events = append(events, row.toEvent())
	}
	return events, nil
}
