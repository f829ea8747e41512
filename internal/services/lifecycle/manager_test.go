package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"eventsim/internal/domain/event"
	"eventsim/pkg/errors"
	"eventsim/pkg/logger"
)

type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) Create(ctx context.Context, e *event.Event) error {
	return m.Called(ctx, e).Error(0)
}

func (m *MockRecorder) UpdateState(ctx context.Context, e *event.Event) error {
	return m.Called(ctx, e).Error(0)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestManager(rec Recorder) (*Manager, *clock) {
	clk := &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	m := NewManager(Config{MaxLifetime: time.Hour, Retention: 2 * time.Hour}, rec, logger.NewNop()).WithClock(clk.Now)
	return m, clk
}

func register(t *testing.T, m *Manager) *event.Event {
	t.Helper()
	ev, err := m.Register(context.Background(), &event.Event{Type: event.TypeMacroShock, Confidence: event.ConfidenceHigh})
	require.NoError(t, err)
	return ev
}

func TestRegister(t *testing.T) {
	m, clk := newTestManager(nil)

	ev := register(t, m)
	assert.NotEqual(t, uuid.Nil, ev.ID)
	assert.Equal(t, event.StateDetected, ev.State)
	assert.Equal(t, clk.Now(), ev.ReceivedAt)
	assert.Equal(t, clk.Now().Add(time.Hour), m.Deadline(ev))

	_, err := m.Register(context.Background(), ev)
	assert.True(t, errors.Is(err, errors.ErrAlreadyExists))
}

func TestTransition_HappyPath(t *testing.T) {
	m, _ := newTestManager(nil)
	ctx := context.Background()
	ev := register(t, m)

	_, err := m.Transition(ctx, ev.ID, event.StateValidated, event.ReasonNone)
	require.NoError(t, err)
	_, err = m.Transition(ctx, ev.ID, event.StateSignalGenerated, event.ReasonNone)
	require.NoError(t, err)
	require.NoError(t, m.Expire(ctx, ev.ID))

	got, ok := m.Get(ev.ID)
	require.True(t, ok)
	assert.Equal(t, event.StateExpired, got.State)
	assert.True(t, m.IsTerminal(ev.ID))
}

func TestTransition_Illegal(t *testing.T) {
	m, _ := newTestManager(nil)
	ctx := context.Background()
	ev := register(t, m)

	_, err := m.Transition(ctx, ev.ID, event.StateSignalGenerated, event.ReasonNone)
	assert.True(t, errors.Is(err, errors.ErrInvalidTransition))
	assert.True(t, errors.Is(err, errors.ErrInvariantViolation))

	_, err = m.Reject(ctx, ev.ID, event.ReasonDuplicate)
	require.NoError(t, err)

	_, err = m.Transition(ctx, ev.ID, event.StateValidated, event.ReasonNone)
	assert.True(t, errors.Is(err, errors.ErrInvalidTransition))

	got, _ := m.Get(ev.ID)
	assert.Equal(t, event.StateRejected, got.State)
	assert.Equal(t, event.ReasonDuplicate, got.RejectReason)
}

func TestTransition_UnknownEvent(t *testing.T) {
	m, _ := newTestManager(nil)

	_, err := m.Transition(context.Background(), uuid.New(), event.StateValidated, event.ReasonNone)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
	assert.True(t, m.IsTerminal(uuid.New()))
}

func TestExpire_Idempotent(t *testing.T) {
	m, _ := newTestManager(nil)
	ctx := context.Background()
	ev := register(t, m)

	err := m.Expire(ctx, ev.ID)
	assert.True(t, errors.Is(err, errors.ErrInvalidTransition), "DETECTED cannot expire")

	_, _ = m.Transition(ctx, ev.ID, event.StateValidated, event.ReasonNone)
	_, _ = m.Transition(ctx, ev.ID, event.StateSignalGenerated, event.ReasonNone)

	require.NoError(t, m.Expire(ctx, ev.ID))
	require.NoError(t, m.Expire(ctx, ev.ID))
}

func TestTransitionWith_FailureKeepsState(t *testing.T) {
	m, _ := newTestManager(nil)
	ctx := context.Background()
	ev := register(t, m)
	_, _ = m.Transition(ctx, ev.ID, event.StateValidated, event.ReasonNone)

	_, err := m.TransitionWith(ctx, ev.ID, event.StateSignalGenerated, event.ReasonNone, func(snap *event.Event) error {
		assert.Equal(t, event.StateValidated, snap.State)
		return errors.ErrPositionExists
	})
	assert.True(t, errors.Is(err, errors.ErrPositionExists))

	got, _ := m.Get(ev.ID)
	assert.Equal(t, event.StateValidated, got.State)
}

func TestTransitionWith_OneSignalPerEvent(t *testing.T) {
	m, _ := newTestManager(nil)
	ctx := context.Background()
	ev := register(t, m)
	_, _ = m.Transition(ctx, ev.ID, event.StateValidated, event.ReasonNone)

	var calls int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.TransitionWith(ctx, ev.ID, event.StateSignalGenerated, event.ReasonNone, func(*event.Event) error {
				mu.Lock()
				calls++
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, calls)
}

func TestExpireOverdue(t *testing.T) {
	m, clk := newTestManager(nil)
	ctx := context.Background()

	signalled := register(t, m)
	_, _ = m.Transition(ctx, signalled.ID, event.StateValidated, event.ReasonNone)
	_, _ = m.Transition(ctx, signalled.ID, event.StateSignalGenerated, event.ReasonNone)

	validated := register(t, m)
	_, _ = m.Transition(ctx, validated.ID, event.StateValidated, event.ReasonNone)

	assert.Equal(t, 0, m.ExpireOverdue(ctx, clk.Now().Add(59*time.Minute)))
	assert.Equal(t, 1, m.ExpireOverdue(ctx, clk.Now().Add(time.Hour)))

	got, _ := m.Get(signalled.ID)
	assert.Equal(t, event.StateExpired, got.State)
	got, _ = m.Get(validated.ID)
	assert.Equal(t, event.StateValidated, got.State)
}

func TestPrune(t *testing.T) {
	m, clk := newTestManager(nil)
	ctx := context.Background()

	rejected := register(t, m)
	_, _ = m.Reject(ctx, rejected.ID, event.ReasonLowConfidence)
	live := register(t, m)

	assert.Equal(t, 0, m.Prune(clk.Now().Add(time.Hour)))
	assert.Equal(t, 1, m.Prune(clk.Now().Add(2*time.Hour)))

	_, ok := m.Get(rejected.ID)
	assert.False(t, ok)
	_, ok = m.Get(live.ID)
	assert.True(t, ok)
	assert.Equal(t, map[string]int{"DETECTED": 1}, m.CountByState())
}

func TestRecorder_Journals(t *testing.T) {
	rec := new(MockRecorder)
	rec.On("Create", mock.Anything, mock.MatchedBy(func(e *event.Event) bool {
		return e.State == event.StateDetected
	})).Return(nil).Once()
	rec.On("UpdateState", mock.Anything, mock.MatchedBy(func(e *event.Event) bool {
		return e.State == event.StateRejected && e.RejectReason == event.ReasonLowConfidence
	})).Return(errors.ErrUnavailable).Once()

	m, _ := newTestManager(rec)
	ev := register(t, m)
	_, err := m.Reject(context.Background(), ev.ID, event.ReasonLowConfidence)
	require.NoError(t, err, "journal failures do not fail the transition")

	rec.AssertExpectations(t)
}
