package position

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"eventsim/pkg/errors"
)

// New builds an open position. Thresholds must satisfy stop_loss < entry < take_profit.
func New(eventID uuid.UUID, symbol string, entry, takeProfit, stopLoss decimal.Decimal, maxDuration time.Duration, now time.Time) (*Position, error) {
	if !entry.IsPositive() {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "entry price must be positive, got %s", entry)
	}
	if !stopLoss.LessThan(entry) || !entry.LessThan(takeProfit) {
		return nil, errors.Wrapf(errors.ErrInvalidInput,
			"thresholds must satisfy stop_loss < entry < take_profit, got %s < %s < %s", stopLoss, entry, takeProfit)
	}
	if maxDuration <= 0 {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "max duration must be positive, got %s", maxDuration)
	}

	return &Position{
		ID:             uuid.New(),
		EventID:        eventID,
		Symbol:         symbol,
		EntryPrice:     entry,
		EntryTimestamp: now,
		TakeProfit:     takeProfit,
		StopLoss:       stopLoss,
		MaxDuration:    maxDuration,
		Excursion:      Excursion{MFE: decimal.Zero, MAE: decimal.Zero},
		Status:         StatusOpen,
		UpdatedAt:      now,
	}, nil
}

// Evaluate applies one price observation. The excursion is updated first, then
// exit rules are checked in priority order TP, SL, TIME. Returns true when
// this observation closed the position. Closed positions are left untouched.
func (p *Position) Evaluate(price decimal.Decimal, now time.Time) bool {
	if !p.Status.IsOpen() {
		return false
	}

	p.Excursion.Observe(p.EntryPrice, price)
	p.UpdatedAt = now

	reason, hit := p.exitReason(price, now)
	if !hit {
		return false
	}

	p.close(price, now, reason)
	return true
}

func (p *Position) exitReason(price decimal.Decimal, now time.Time) (ExitReason, bool) {
	switch {
	case price.GreaterThanOrEqual(p.TakeProfit):
		return ExitTakeProfit, true
	case price.LessThanOrEqual(p.StopLoss):
		return ExitStopLoss, true
	case now.Sub(p.EntryTimestamp) >= p.MaxDuration:
		return ExitTime, true
	}
	return "", false
}

func (p *Position) close(price decimal.Decimal, now time.Time, reason ExitReason) {
	p.ExitPrice = price
	p.ExitTimestamp = &now
	p.ExitReason = reason
	p.Status = StatusClosed
}

// Metrics is the evaluation record emitted once per closed position
type Metrics struct {
	EventID        uuid.UUID       `json:"event_id" ch:"event_id"`
	Symbol         string          `json:"symbol" ch:"symbol"`
	EntryTimestamp time.Time       `json:"entry_timestamp" ch:"entry_timestamp"`
	ExitTimestamp  time.Time       `json:"exit_timestamp" ch:"exit_timestamp"`
	EntryPrice     decimal.Decimal `json:"entry_price" ch:"entry_price"`
	ExitPrice      decimal.Decimal `json:"exit_price" ch:"exit_price"`
	ExitReason     ExitReason      `json:"exit_reason" ch:"exit_reason"`
	MFE            decimal.Decimal `json:"mfe" ch:"mfe"`
	MAE            decimal.Decimal `json:"mae" ch:"mae"`
	MFEPct         decimal.Decimal `json:"mfe_pct" ch:"mfe_pct"`
	MAEPct         decimal.Decimal `json:"mae_pct" ch:"mae_pct"`
}

// Metrics builds the evaluation record. Only valid for closed positions.
func (p *Position) Metrics() (Metrics, error) {
	if p.Status.IsOpen() || p.ExitTimestamp == nil {
		return Metrics{}, errors.Wrapf(errors.ErrInvalidInput, "position %s is still open", p.ID)
	}
	return Metrics{
		EventID:        p.EventID,
		Symbol:         p.Symbol,
		EntryTimestamp: p.EntryTimestamp,
		ExitTimestamp:  *p.ExitTimestamp,
		EntryPrice:     p.EntryPrice,
		ExitPrice:      p.ExitPrice,
		ExitReason:     p.ExitReason,
		MFE:            p.MFE,
		MAE:            p.MAE,
		MFEPct:         Pct(p.MFE, p.EntryPrice),
		MAEPct:         Pct(p.MAE, p.EntryPrice),
	}, nil
}

// Duration is how long the position stayed open
func (m Metrics) Duration() time.Duration {
	return m.ExitTimestamp.Sub(m.EntryTimestamp)
}
