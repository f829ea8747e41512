package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"eventsim/internal/domain/event"
	"eventsim/internal/metrics"
	"eventsim/pkg/errors"
	"eventsim/pkg/logger"
)

// Recorder journals lifecycle changes. Failures are logged, the in-memory
// arena stays authoritative.
type Recorder interface {
	Create(ctx context.Context, e *event.Event) error
	UpdateState(ctx context.Context, e *event.Event) error
}

type slot struct {
	mu sync.Mutex
	ev *event.Event
}

// Manager owns every event's state. Each event has its own lock, so
// independent events never contend.
type Manager struct {
	mu    sync.RWMutex
	arena map[uuid.UUID]*slot

	maxLifetime time.Duration
	retention   time.Duration
	recorder    Recorder
	now         func() time.Time
	log         *logger.Logger
}

// Config holds lifecycle timing
type Config struct {
	MaxLifetime time.Duration
	Retention   time.Duration
}

// NewManager creates an empty arena. recorder may be nil.
func NewManager(cfg Config, recorder Recorder, log *logger.Logger) *Manager {
	return &Manager{
		arena:       make(map[uuid.UUID]*slot),
		maxLifetime: cfg.MaxLifetime,
		retention:   cfg.Retention,
		recorder:    recorder,
		now:         time.Now,
		log:         log.With("component", "lifecycle"),
	}
}

// WithClock overrides the time source. Used by tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Register stores a freshly validated payload as DETECTED and starts its lifetime
func (m *Manager) Register(ctx context.Context, ev *event.Event) (*event.Event, error) {
	if ev == nil {
		return nil, errors.Wrap(errors.ErrInvalidInput, "nil event")
	}

	now := m.now()
	stored := ev.Clone()
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	stored.State = event.StateDetected
	stored.RejectReason = event.ReasonNone
	stored.ReceivedAt = now
	stored.UpdatedAt = now

	m.mu.Lock()
	if _, exists := m.arena[stored.ID]; exists {
		m.mu.Unlock()
		return nil, errors.Wrapf(errors.ErrAlreadyExists, "event %s", stored.ID)
	}
	snapshot := stored.Clone()
	m.arena[stored.ID] = &slot{ev: stored}
	m.mu.Unlock()

	metrics.EventTransitions.WithLabelValues(event.StateDetected.String()).Inc()
	m.record(ctx, snapshot, true)
	return snapshot.Clone(), nil
}

// Transition moves an event along a legal edge
func (m *Manager) Transition(ctx context.Context, id uuid.UUID, to event.State, reason event.RejectReason) (*event.Event, error) {
	return m.TransitionWith(ctx, id, to, reason, nil)
}

// Reject moves a live event to REJECTED with a reason
func (m *Manager) Reject(ctx context.Context, id uuid.UUID, reason event.RejectReason) (*event.Event, error) {
	return m.Transition(ctx, id, event.StateRejected, reason)
}

// TransitionWith runs fn under the event's lock and applies the transition only if fn succeeds.
// fn sees a snapshot taken before the transition.
func (m *Manager) TransitionWith(ctx context.Context, id uuid.UUID, to event.State, reason event.RejectReason, fn func(snapshot *event.Event) error) (*event.Event, error) {
	s, err := m.slot(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	from := s.ev.State
	if !event.CanTransition(from, to) {
		return nil, errors.Wrapf(errors.ErrInvalidTransition, "event %s: %s -> %s", id, from, to)
	}

	if fn != nil {
		if err := fn(s.ev.Clone()); err != nil {
			return nil, err
		}
	}

	m.apply(ctx, s.ev, to, reason)
	return s.ev.Clone(), nil
}

// Expire moves a SIGNAL_GENERATED event to EXPIRED. Expiring an EXPIRED event is a no-op.
func (m *Manager) Expire(ctx context.Context, id uuid.UUID) error {
	s, err := m.slot(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.ev.State {
	case event.StateExpired:
		return nil
	case event.StateSignalGenerated:
		m.apply(ctx, s.ev, event.StateExpired, event.ReasonNone)
		return nil
	}
	return errors.Wrapf(errors.ErrInvalidTransition, "event %s: %s -> %s", id, s.ev.State, event.StateExpired)
}

// ExpireOverdue expires every SIGNAL_GENERATED event whose lifetime has elapsed
func (m *Manager) ExpireOverdue(ctx context.Context, now time.Time) int {
	expired := 0
	for _, s := range m.slots() {
		s.mu.Lock()
		if s.ev.State == event.StateSignalGenerated && !now.Before(s.ev.ExpiresAt(m.maxLifetime)) {
			m.apply(ctx, s.ev, event.StateExpired, event.ReasonNone)
			expired++
		}
		s.mu.Unlock()
	}
	if expired > 0 {
		m.log.Infow("expired overdue events", "count", expired)
	}
	return expired
}

// Prune drops terminal events last touched longer than the retention horizon ago
func (m *Manager) Prune(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	pruned := 0
	for id, s := range m.arena {
		s.mu.Lock()
		drop := s.ev.State.Terminal() && now.Sub(s.ev.UpdatedAt) >= m.retention
		s.mu.Unlock()
		if drop {
			delete(m.arena, id)
			pruned++
		}
	}
	return pruned
}

// Get returns a snapshot of the event
func (m *Manager) Get(id uuid.UUID) (*event.Event, bool) {
	s, err := m.slot(id)
	if err != nil {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ev.Clone(), true
}

// IsTerminal reports whether the event can no longer change. Unknown events count as terminal.
func (m *Manager) IsTerminal(id uuid.UUID) bool {
	ev, ok := m.Get(id)
	return !ok || ev.State.Terminal()
}

// Deadline is the end of the event's lifetime
func (m *Manager) Deadline(ev *event.Event) time.Time {
	return ev.ExpiresAt(m.maxLifetime)
}

// CountByState reports arena occupancy
func (m *Manager) CountByState() map[string]int {
	counts := make(map[string]int)
	for _, s := range m.slots() {
		s.mu.Lock()
		counts[s.ev.State.String()]++
		s.mu.Unlock()
	}
	return counts
}

func (m *Manager) apply(ctx context.Context, ev *event.Event, to event.State, reason event.RejectReason) {
	from := ev.State
	ev.State = to
	if to == event.StateRejected {
		ev.RejectReason = reason
	}
	ev.UpdatedAt = m.now()

	metrics.EventTransitions.WithLabelValues(to.String()).Inc()
	m.log.Infow("event transition",
		"event_id", ev.ID,
		"from", from,
		"to", to,
		"reason", ev.RejectReason,
	)
	m.record(ctx, ev.Clone(), false)
}

func (m *Manager) record(ctx context.Context, ev *event.Event, create bool) {
	if m.recorder == nil {
		return
	}
	var err error
	if create {
		err = m.recorder.Create(ctx, ev)
	} else {
		err = m.recorder.UpdateState(ctx, ev)
	}
	if err != nil {
		m.log.Errorw("failed to journal event", "event_id", ev.ID, "state", ev.State, "error", err)
	}
}

func (m *Manager) slot(id uuid.UUID) (*slot, error) {
	m.mu.RLock()
	s, ok := m.arena[id]
	m.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "event %s", id)
	}
	return s, nil
}

func (m *Manager) slots() []*slot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*slot, 0, len(m.arena))
	for _, s := range m.arena {
		out = append(out, s)
	}
	return out
}
