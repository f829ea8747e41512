package simulator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"eventsim/internal/domain/event"
	"eventsim/internal/domain/position"
	"eventsim/internal/metrics"
	"eventsim/pkg/errors"
	"eventsim/pkg/logger"
)

// OpenRequest carries everything needed to open one simulated position
type OpenRequest struct {
	EventID     uuid.UUID
	EventState  event.State
	Confirmed   bool
	Symbol      string
	EntryPrice  decimal.Decimal
	TakeProfit  decimal.Decimal
	StopLoss    decimal.Decimal
	MaxDuration time.Duration
}

// CloseHandler is called once per position, after it closed
type CloseHandler func(ctx context.Context, p *position.Position)

// OpenHandler is called once per position, after it was opened
type OpenHandler func(ctx context.Context, p *position.Position)

type entry struct {
	mu  sync.Mutex
	pos *position.Position
}

// Simulator owns all simulated positions, keyed by the event that caused them.
// Evaluations of one position are serialized; different positions run in parallel.
type Simulator struct {
	mu    sync.RWMutex
	table map[uuid.UUID]*entry

	repo     position.Repository
	handlers []CloseHandler
	openers  []OpenHandler
	now      func() time.Time
	log      *logger.Logger
}

// New creates a simulator. repo may be nil.
func New(repo position.Repository, log *logger.Logger) *Simulator {
	return &Simulator{
		table: make(map[uuid.UUID]*entry),
		repo:  repo,
		now:   time.Now,
		log:   log.With("component", "simulator"),
	}
}

// WithClock overrides the time source used for entry timestamps. Used by tests.
func (s *Simulator) WithClock(now func() time.Time) *Simulator {
	s.now = now
	return s
}

// OnClose registers a handler. Not safe to call after start.
func (s *Simulator) OnClose(h CloseHandler) {
	s.handlers = append(s.handlers, h)
}

// OnOpen registers a handler. Not safe to call after start.
func (s *Simulator) OnOpen(h OpenHandler) {
	s.openers = append(s.openers, h)
}

// Open creates the single position for a confirmed, validated event.
// Entry price and time are fixed at call time.
func (s *Simulator) Open(ctx context.Context, req OpenRequest) (*position.Position, error) {
	if req.EventState != event.StateValidated || !req.Confirmed {
		return nil, errors.Wrapf(errors.ErrNotConfirmed, "event %s in state %s, confirmed=%t", req.EventID, req.EventState, req.Confirmed)
	}

	pos, err := position.New(req.EventID, req.Symbol, req.EntryPrice, req.TakeProfit, req.StopLoss, req.MaxDuration, s.now())
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if _, exists := s.table[req.EventID]; exists {
		s.mu.Unlock()
		return nil, errors.Wrapf(errors.ErrPositionExists, "event %s", req.EventID)
	}
	s.table[req.EventID] = &entry{pos: pos}
	snapshot := pos.Clone()
	s.mu.Unlock()

	metrics.PositionsOpened.WithLabelValues(pos.Symbol).Inc()
	s.log.Infow("position opened",
		"event_id", pos.EventID,
		"symbol", pos.Symbol,
		"entry", pos.EntryPrice,
		"take_profit", pos.TakeProfit,
		"stop_loss", pos.StopLoss,
		"max_duration", pos.MaxDuration,
	)

	if s.repo != nil {
		if err := s.repo.Create(ctx, snapshot); err != nil {
			s.log.Errorw("failed to journal position", "event_id", pos.EventID, "error", err)
		}
	}
	for _, h := range s.openers {
		h(ctx, snapshot.Clone())
	}
	return snapshot.Clone(), nil
}

// Evaluate applies one price observation to the event's position.
// A closed position is returned unchanged.
func (s *Simulator) Evaluate(ctx context.Context, eventID uuid.UUID, price decimal.Decimal, now time.Time) (*position.Position, error) {
	e, ok := s.entry(eventID)
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "position for event %s", eventID)
	}

	e.mu.Lock()
	closed := e.pos.Evaluate(price, now)
	snapshot := e.pos.Clone()
	e.mu.Unlock()

	if closed {
		s.closed(ctx, snapshot)
	}
	return snapshot, nil
}

func (s *Simulator) closed(ctx context.Context, p *position.Position) {
	metrics.PositionsClosed.WithLabelValues(p.Symbol, p.ExitReason.String()).Inc()
	s.log.Infow("position closed",
		"event_id", p.EventID,
		"symbol", p.Symbol,
		"exit_reason", p.ExitReason,
		"exit", p.ExitPrice,
		"mfe", p.MFE,
		"mae", p.MAE,
	)

	if s.repo != nil {
		if err := s.repo.Update(ctx, p); err != nil {
			s.log.Errorw("failed to journal position close", "event_id", p.EventID, "error", err)
		}
	}
	for _, h := range s.handlers {
		h(ctx, p.Clone())
	}
}

// Get returns a snapshot of the event's position
func (s *Simulator) Get(eventID uuid.UUID) (*position.Position, bool) {
	e, ok := s.entry(eventID)
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pos.Clone(), true
}

// OpenPositions returns snapshots of every open position
func (s *Simulator) OpenPositions() []*position.Position {
	var out []*position.Position
	for _, e := range s.entries() {
		e.mu.Lock()
		if e.pos.Status.IsOpen() {
			out = append(out, e.pos.Clone())
		}
		e.mu.Unlock()
	}
	return out
}

// OpenCount returns the number of open positions
func (s *Simulator) OpenCount() int {
	return len(s.OpenPositions())
}

// Prune drops closed positions that exited longer than retention ago
func (s *Simulator) Prune(now time.Time, retention time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	pruned := 0
	for id, e := range s.table {
		e.mu.Lock()
		drop := !e.pos.Status.IsOpen() && e.pos.ExitTimestamp != nil && now.Sub(*e.pos.ExitTimestamp) >= retention
		e.mu.Unlock()
		if drop {
			delete(s.table, id)
			pruned++
		}
	}
	return pruned
}

func (s *Simulator) entry(eventID uuid.UUID) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.table[eventID]
	return e, ok
}

func (s *Simulator) entries() []*entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*entry, 0, len(s.table))
	for _, e := range s.table {
		out = append(out, e)
	}
	return out
}
