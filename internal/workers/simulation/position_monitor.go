package simulation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"eventsim/internal/domain/position"
	"eventsim/internal/domain/price"
	"eventsim/internal/workers"
	"eventsim/pkg/errors"
	"eventsim/pkg/logger"
)

// Positions is the part of the simulator the monitor drives
type Positions interface {
	OpenPositions() []*position.Position
	Evaluate(ctx context.Context, eventID uuid.UUID, price decimal.Decimal, now time.Time) (*position.Position, error)
}

// PositionMonitor feeds the latest price of each open position's symbol into the simulator.
// A position without a usable price is skipped and retried on the next tick.
type PositionMonitor struct {
	*workers.BaseWorker
	positions Positions
	prices    price.Source
	now       func() time.Time
	log       *logger.Logger
}

// NewPositionMonitor creates the worker
func NewPositionMonitor(positions Positions, prices price.Source, interval time.Duration, log *logger.Logger) *PositionMonitor {
	return &PositionMonitor{
		BaseWorker: workers.NewBaseWorker("position_monitor", interval, true),
		positions:  positions,
		prices:     prices,
		now:        time.Now,
		log:        log.With("worker", "position_monitor"),
	}
}

// Run evaluates every open position once
func (w *PositionMonitor) Run(ctx context.Context) error {
	open := w.positions.OpenPositions()
	if len(open) == 0 {
		return nil
	}

	var evaluated, closed, skipped int
	for _, pos := range open {
		if ctx.Err() != nil {
			return nil
		}

		quote, err := w.prices.LastPrice(ctx, price.NormalizeSymbol(pos.Symbol))
		if err != nil {
			skipped++
			w.log.Debugw("No price for open position", "event_id", pos.EventID, "symbol", pos.Symbol, "error", err)
			continue
		}

		updated, err := w.positions.Evaluate(ctx, pos.EventID, quote.Price, w.now())
		if errors.Is(err, errors.ErrNotFound) {
			continue // pruned between listing and evaluation
		}
		if err != nil {
			return errors.Wrapf(err, "evaluate position for event %s", pos.EventID)
		}
		evaluated++
		if !updated.Status.IsOpen() {
			closed++
		}
	}

	w.log.Debugw("Positions evaluated",
		"open", len(open),
		"evaluated", evaluated,
		"closed", closed,
		"skipped", skipped,
	)
	if skipped == len(open) {
		return errors.Wrapf(errors.ErrPriceUnavailable, "no price for any of %d open positions", len(open))
	}
	return nil
}
