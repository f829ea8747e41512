package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"eventsim/internal/domain/position"
	"eventsim/pkg/errors"
)

// Compile-time check
var _ position.Repository = (*PositionRepository)(nil)

// PositionRepository implements position.Repository using sqlx
type PositionRepository struct {
	db DBTX
}

// NewPositionRepository creates a new position repository
func NewPositionRepository(db DBTX) *PositionRepository {
	return &PositionRepository{db: db}
}

// Create inserts a newly opened position
func (r *PositionRepository) Create(ctx context.Context, p *position.Position) error {
	query := `
		INSERT INTO positions (
			id, event_id, symbol,
			entry_price, entry_timestamp,
			take_profit, stop_loss, max_duration_ns,
			exit_price, exit_timestamp, exit_reason,
			mfe, mae, status, updated_at
		) VALUES (
			:id, :event_id, :symbol,
			:entry_price, :entry_timestamp,
			:take_profit, :stop_loss, :max_duration_ns,
			:exit_price, :exit_timestamp, :exit_reason,
			:mfe, :mae, :status, :updated_at
		)`

	if _, err := r.db.NamedExecContext(ctx, query, p); err != nil {
		return errors.Wrapf(err, "insert position for event %s", p.EventID)
	}
	return nil
}

// Update persists exit fields and excursions
func (r *PositionRepository) Update(ctx context.Context, p *position.Position) error {
	query := `
		UPDATE positions SET
			exit_price = :exit_price,
			exit_timestamp = :exit_timestamp,
			exit_reason = :exit_reason,
			mfe = :mfe,
			mae = :mae,
			status = :status,
			updated_at = :updated_at
		WHERE id = :id`

	res, err := r.db.NamedExecContext(ctx, query, p)
	if err != nil {
		return errors.Wrapf(err, "update position %s", p.ID)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return errors.Wrapf(errors.ErrNotFound, "position %s", p.ID)
	}
	return nil
}

// GetByEventID retrieves the position opened for an event
func (r *PositionRepository) GetByEventID(ctx context.Context, eventID uuid.UUID) (*position.Position, error) {
	var p position.Position
	err := r.db.GetContext(ctx, &p, `SELECT * FROM positions WHERE event_id = $1`, eventID)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrNotFound, "position for event %s", eventID)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get position for event %s", eventID)
	}
	return &p, nil
}

// ListOpen retrieves all open positions, oldest first
func (r *PositionRepository) ListOpen(ctx context.Context) ([]*position.Position, error) {
	var positions []*position.Position

	query := `
		SELECT * FROM positions
		WHERE status = 'open'
		ORDER BY entry_timestamp ASC`

	if err := r.db.SelectContext(ctx, &positions, query); err != nil {
		return nil, errors.Wrap(err, "list open positions")
	}
	return positions, nil
}
