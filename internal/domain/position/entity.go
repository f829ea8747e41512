package position

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Position is a simulated long position opened in response to a confirmed event.
// It refers to its event by identifier only and never owns it.
type Position struct {
	ID      uuid.UUID `db:"id" json:"id"`
	EventID uuid.UUID `db:"event_id" json:"event_id"`
	Symbol  string    `db:"symbol" json:"symbol"`

	EntryPrice     decimal.Decimal `db:"entry_price" json:"entry_price"`
	EntryTimestamp time.Time       `db:"entry_timestamp" json:"entry_timestamp"`

	// Exit rules
	TakeProfit  decimal.Decimal `db:"take_profit" json:"take_profit"`
	StopLoss    decimal.Decimal `db:"stop_loss" json:"stop_loss"`
	MaxDuration time.Duration   `db:"max_duration_ns" json:"max_duration"`

	// Set once on close
	ExitPrice     decimal.Decimal `db:"exit_price" json:"exit_price"`
	ExitTimestamp *time.Time      `db:"exit_timestamp" json:"exit_timestamp,omitempty"`
	ExitReason    ExitReason      `db:"exit_reason" json:"exit_reason,omitempty"`

	Excursion

	Status    Status    `db:"status" json:"status"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Clone returns a copy safe to hand out of the simulator's side table
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	c := *p
	if p.ExitTimestamp != nil {
		ts := *p.ExitTimestamp
		c.ExitTimestamp = &ts
	}
	return &c
}

// ExitReason records which rule closed the position
type ExitReason string

const (
	ExitTakeProfit ExitReason = "TP"
	ExitStopLoss   ExitReason = "SL"
	ExitTime       ExitReason = "TIME"
)

// Valid checks if exit reason is known
func (r ExitReason) Valid() bool {
	switch r {
	case ExitTakeProfit, ExitStopLoss, ExitTime:
		return true
	}
	return false
}

func (r ExitReason) String() string {
	return string(r)
}

// Status defines position lifecycle status
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// IsOpen returns true if position is open
func (s Status) IsOpen() bool {
	return s == StatusOpen
}

func (s Status) String() string {
	return string(s)
}
