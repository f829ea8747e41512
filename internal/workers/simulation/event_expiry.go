package simulation

import (
	"context"
	"time"

	"eventsim/internal/workers"
	"eventsim/pkg/logger"
)

// Lifecycle is the part of the lifecycle manager the expiry worker drives
type Lifecycle interface {
	ExpireOverdue(ctx context.Context, now time.Time) int
	Prune(now time.Time) int
}

// PositionPruner drops closed positions from memory
type PositionPruner interface {
	Prune(now time.Time, retention time.Duration) int
}

// Evictor drops dedup fingerprints past the retention horizon
type Evictor interface {
	Evict(now time.Time) int
}

// EventExpiry expires events past their lifetime, then prunes terminal events,
// closed positions and stale fingerprints that are older than retention.
type EventExpiry struct {
	*workers.BaseWorker
	lifecycle Lifecycle
	positions PositionPruner
	dedup     Evictor
	retention time.Duration
	now       func() time.Time
	log       *logger.Logger
}

// NewEventExpiry creates the worker
func NewEventExpiry(lifecycle Lifecycle, positions PositionPruner, dedup Evictor, retention, interval time.Duration, log *logger.Logger) *EventExpiry {
	return &EventExpiry{
		BaseWorker: workers.NewBaseWorker("event_expiry", interval, true),
		lifecycle:  lifecycle,
		positions:  positions,
		dedup:      dedup,
		retention:  retention,
		now:        time.Now,
		log:        log.With("worker", "event_expiry"),
	}
}

// Run performs one sweep
func (w *EventExpiry) Run(ctx context.Context) error {
	now := w.now()

	expired := w.lifecycle.ExpireOverdue(ctx, now)
	evicted := w.dedup.Evict(now)
	pruned := w.lifecycle.Prune(now)
	prunedPositions := w.positions.Prune(now, w.retention)

	if expired+evicted+pruned+prunedPositions > 0 {
		w.log.Infow("Sweep finished",
			"expired", expired,
			"fingerprints_evicted", evicted,
			"events_pruned", pruned,
			"positions_pruned", prunedPositions,
		)
	}
	return nil
}
