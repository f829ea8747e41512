package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"eventsim/internal/adapters/pricefeed"
	"eventsim/internal/domain/event"
	"eventsim/internal/domain/position"
	"eventsim/internal/domain/price"
	"eventsim/internal/services/confirmation"
	"eventsim/internal/services/dedup"
	"eventsim/internal/services/gate"
	"eventsim/internal/services/lifecycle"
	"eventsim/internal/services/simulator"
	"eventsim/pkg/errors"
	"eventsim/pkg/logger"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishAccepted(ctx context.Context, ev *event.Event) error {
	return m.Called(ctx, ev).Error(0)
}

type failingStore struct{}

func (failingStore) Insert(context.Context, string, uuid.UUID, time.Time) (bool, error) {
	return false, errors.ErrUnavailable
}

type harness struct {
	engine    *Engine
	lifecycle *lifecycle.Manager
	sim       *simulator.Simulator
	registry  *confirmation.Registry
	modes     *confirmation.ModeSource
	prices    *pricefeed.Cache
	publisher *MockPublisher
}

func newHarness(t *testing.T, mode confirmation.Mode, store dedup.Store) *harness {
	t.Helper()
	log := logger.NewNop()

	lc := lifecycle.NewManager(lifecycle.Config{MaxLifetime: time.Hour, Retention: 2 * time.Hour}, nil, log)
	if store == nil {
		store = dedup.NewMemoryStore(2*time.Hour, lc.IsTerminal)
	}
	sim := simulator.New(nil, log)
	sim.OnClose(func(ctx context.Context, p *position.Position) {
		_ = lc.Expire(ctx, p.EventID)
	})
	registry := confirmation.NewRegistry(log)
	modes := confirmation.NewModeSource(mode)
	prices := pricefeed.NewCache(0)
	prices.SetPrice("BTCUSDT", decimal.NewFromInt(100))
	pub := new(MockPublisher)
	pub.On("PublishAccepted", mock.Anything, mock.Anything).Return(nil).Maybe()

	engine := NewEngine(Deps{
		Validator:    event.MustValidator(),
		Lifecycle:    lc,
		Deduplicator: dedup.New(store, log),
		Gate:         gate.NewConfidenceGate([]string{"reuters"}),
		Confirmation: confirmation.NewGate(registry, 100*time.Millisecond, 5*time.Millisecond, log),
		Modes:        modes,
		Simulator:    sim,
		Prices:       prices,
		Symbols:      price.NewSymbolResolver("USDT", []string{"BTCUSDT"}),
		Publisher:    pub,
	}, Config{
		TakeProfitPct: decimal.NewFromInt(10),
		StopLossPct:   decimal.NewFromInt(5),
		MaxDuration:   time.Hour,
	}, log)
	t.Cleanup(func() { _ = engine.Shutdown(context.Background()) })

	return &harness{
		engine:    engine,
		lifecycle: lc,
		sim:       sim,
		registry:  registry,
		modes:     modes,
		prices:    prices,
		publisher: pub,
	}
}

func payload(confidence string, entities ...string) []byte {
	quoted := ""
	for i, e := range entities {
		if i > 0 {
			quoted += ","
		}
		quoted += fmt.Sprintf("%q", e)
	}
	return []byte(fmt.Sprintf(`{"event_type":"MACRO_SHOCK","confidence":%q,"source":"reuters","entities":[%s],"timestamp":"2024-05-01T12:00:00Z"}`, confidence, quoted))
}

func TestSubmit_SchemaErrorReturned(t *testing.T) {
	h := newHarness(t, confirmation.ModeAuto, nil)

	res, err := h.engine.Submit(context.Background(), []byte(`{"event_type":"MACRO_SHOCK"}`))
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, errors.ErrSchema))
	assert.Empty(t, h.lifecycle.CountByState(), "nothing registered")
}

func TestSubmit_AutoOpensPosition(t *testing.T) {
	h := newHarness(t, confirmation.ModeAuto, nil)

	res, err := h.engine.Submit(context.Background(), payload("HIGH", "btc"))
	require.NoError(t, err)

	assert.Equal(t, event.StateSignalGenerated, res.State)
	require.NotNil(t, res.Projection)
	assert.Equal(t, event.Projection{EventType: event.TypeMacroShock, Confidence: event.ConfidenceHigh, Symbol: "BTCUSDT"}, *res.Projection)

	p, ok := h.sim.Get(res.EventID)
	require.True(t, ok)
	assert.True(t, p.EntryPrice.Equal(decimal.NewFromInt(100)))
	assert.True(t, p.TakeProfit.Equal(decimal.NewFromInt(110)))
	assert.True(t, p.StopLoss.Equal(decimal.NewFromInt(95)))
	h.publisher.AssertCalled(t, "PublishAccepted", mock.Anything, mock.Anything)
}

func TestSubmit_DuplicateMacroShock(t *testing.T) {
	h := newHarness(t, confirmation.ModeAuto, nil)
	ctx := context.Background()

	first, err := h.engine.Submit(ctx, payload("HIGH", "btc"))
	require.NoError(t, err)
	assert.Equal(t, event.StateSignalGenerated, first.State)

	second, err := h.engine.Submit(ctx, payload("HIGH", "btc"))
	require.NoError(t, err)
	assert.Equal(t, event.StateRejected, second.State)
	assert.Equal(t, event.ReasonDuplicate, second.RejectReason)

	_, ok := h.sim.Get(second.EventID)
	assert.False(t, ok)
	assert.Equal(t, 1, h.sim.OpenCount())
}

func TestSubmit_LowConfidenceNeverReachesSimulator(t *testing.T) {
	h := newHarness(t, confirmation.ModeAuto, nil)

	res, err := h.engine.Submit(context.Background(), payload("LOW", "btc"))
	require.NoError(t, err)
	assert.Equal(t, event.StateRejected, res.State)
	assert.Equal(t, event.ReasonLowConfidence, res.RejectReason)
	assert.Equal(t, 0, h.sim.OpenCount())
	h.publisher.AssertNotCalled(t, "PublishAccepted", mock.Anything, mock.Anything)
}

func TestSubmit_DedupStoreFailure(t *testing.T) {
	h := newHarness(t, confirmation.ModeAuto, failingStore{})

	res, err := h.engine.Submit(context.Background(), payload("HIGH", "btc"))
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, event.StateRejected, res.State)
	assert.Equal(t, event.ReasonDedupUnavailable, res.RejectReason)
}

func TestSubmit_NoSymbolRejectsPriceUnavailable(t *testing.T) {
	h := newHarness(t, confirmation.ModeAuto, nil)

	res, err := h.engine.Submit(context.Background(), payload("MEDIUM", "fed", "rates"))
	require.NoError(t, err)
	assert.Equal(t, event.StateRejected, res.State)
	assert.Equal(t, event.ReasonPriceUnavailable, res.RejectReason)
	assert.Equal(t, event.UnknownSymbol, res.Projection.Symbol)
}

func TestSubmit_MissingQuoteReturnsPriceUnavailable(t *testing.T) {
	h := newHarness(t, confirmation.ModeAuto, nil)
	h.engine.Prices = pricefeed.NewCache(0)

	res, err := h.engine.Submit(context.Background(), payload("HIGH", "btc"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrPriceUnavailable))
	require.NotNil(t, res)
	assert.Equal(t, event.StateRejected, res.State)
	assert.Equal(t, event.ReasonPriceUnavailable, res.RejectReason)
	assert.Equal(t, 0, h.sim.OpenCount())
}

func TestSubmit_ManualTimeoutRejectsWithoutPosition(t *testing.T) {
	h := newHarness(t, confirmation.ModeManual, nil)

	res, err := h.engine.Submit(context.Background(), payload("HIGH", "btc"))
	require.NoError(t, err)
	assert.True(t, res.Pending)
	assert.Equal(t, event.StateValidated, res.State)

	assert.Eventually(t, func() bool {
		ev, _ := h.lifecycle.Get(res.EventID)
		return ev.State == event.StateRejected
	}, 2*time.Second, 10*time.Millisecond)

	ev, _ := h.lifecycle.Get(res.EventID)
	assert.Equal(t, event.ReasonConfirmationTimeout, ev.RejectReason)
	_, ok := h.sim.Get(res.EventID)
	assert.False(t, ok)
}

func TestSubmit_ManualConfirmed(t *testing.T) {
	h := newHarness(t, confirmation.ModeManual, nil)

	res, err := h.engine.Submit(context.Background(), payload("HIGH", "btc"))
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return h.registry.Confirm(res.EventID) == nil }, time.Second, time.Millisecond)
	assert.Eventually(t, func() bool {
		ev, _ := h.lifecycle.Get(res.EventID)
		return ev.State == event.StateSignalGenerated
	}, 2*time.Second, 10*time.Millisecond)

	_, ok := h.sim.Get(res.EventID)
	assert.True(t, ok)
}

func TestSubmit_ModeReadOncePerEvent(t *testing.T) {
	h := newHarness(t, confirmation.ModeManual, nil)

	res, err := h.engine.Submit(context.Background(), payload("HIGH", "btc"))
	require.NoError(t, err)
	require.True(t, res.Pending)

	h.modes.Set(confirmation.ModeAuto)

	assert.Eventually(t, func() bool {
		ev, _ := h.lifecycle.Get(res.EventID)
		return ev.State == event.StateRejected
	}, 2*time.Second, 10*time.Millisecond, "switching to AUTO does not confirm an event already waiting")
}

func TestSubmit_PositionCloseExpiresEvent(t *testing.T) {
	h := newHarness(t, confirmation.ModeAuto, nil)
	ctx := context.Background()

	res, err := h.engine.Submit(ctx, payload("HIGH", "btc"))
	require.NoError(t, err)

	p, err := h.sim.Evaluate(ctx, res.EventID, decimal.NewFromInt(111), time.Now())
	require.NoError(t, err)
	assert.Equal(t, position.ExitTakeProfit, p.ExitReason)

	ev, _ := h.lifecycle.Get(res.EventID)
	assert.Equal(t, event.StateExpired, ev.State)
}

func TestSubmit_ConcurrentDuplicatesOpenOnePosition(t *testing.T) {
	h := newHarness(t, confirmation.ModeAuto, nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = h.engine.Submit(context.Background(), payload("HIGH", "btc"))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, h.sim.OpenCount())
	counts := h.lifecycle.CountByState()
	assert.Equal(t, 1, counts[event.StateSignalGenerated.String()])
	assert.Equal(t, 15, counts[event.StateRejected.String()])
}

func TestShutdown_AbortsPendingWaits(t *testing.T) {
	h := newHarness(t, confirmation.ModeManual, nil)
	h.engine.Confirmation = confirmation.NewGate(h.registry, time.Hour, 5*time.Millisecond, logger.NewNop())

	res, err := h.engine.Submit(context.Background(), payload("HIGH", "btc"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.engine.Shutdown(ctx))

	ev, _ := h.lifecycle.Get(res.EventID)
	assert.Equal(t, event.StateRejected, ev.State)
	assert.Equal(t, event.ReasonAborted, ev.RejectReason)
}

func TestSubmit_AfterShutdownRejectsManualWait(t *testing.T) {
	h := newHarness(t, confirmation.ModeManual, nil)
	require.NoError(t, h.engine.Shutdown(context.Background()))

	res, err := h.engine.Submit(context.Background(), payload("HIGH", "btc"))
	assert.True(t, errors.Is(err, errors.ErrUnavailable))
	require.NotNil(t, res)
	assert.False(t, res.Pending)
	assert.Equal(t, event.StateRejected, res.State)
	assert.Equal(t, event.ReasonAborted, res.RejectReason)
	assert.False(t, h.registry.Pending(res.EventID))
}

func TestSubmit_RacingShutdown(t *testing.T) {
	h := newHarness(t, confirmation.ModeManual, nil)
	h.engine.Confirmation = confirmation.NewGate(h.registry, time.Hour, 5*time.Millisecond, logger.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = h.engine.Submit(context.Background(), payload("HIGH", fmt.Sprintf("asset-%d", i)))
		}(i)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.engine.Shutdown(ctx))
	wg.Wait()

	counts := h.lifecycle.CountByState()
	assert.Equal(t, 16, counts[event.StateRejected.String()], "every event ends rejected, none left waiting")
}
