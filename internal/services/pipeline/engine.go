package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"eventsim/internal/domain/event"
	"eventsim/internal/domain/price"
	"eventsim/internal/metrics"
	"eventsim/internal/services/confirmation"
	"eventsim/internal/services/dedup"
	"eventsim/internal/services/gate"
	"eventsim/internal/services/lifecycle"
	"eventsim/internal/services/simulator"
	"eventsim/pkg/errors"
	"eventsim/pkg/logger"
)

// Publisher announces accepted events downstream
type Publisher interface {
	PublishAccepted(ctx context.Context, ev *event.Event) error
}

// Config holds the thresholds used when a signal opens a position
type Config struct {
	TakeProfitPct decimal.Decimal
	StopLossPct   decimal.Decimal
	MaxDuration   time.Duration
}

// Deps bundles the engine's collaborators
type Deps struct {
	Validator    *event.Validator
	Lifecycle    *lifecycle.Manager
	Deduplicator *dedup.Deduplicator
	Gate         *gate.ConfidenceGate
	Confirmation *confirmation.Gate
	Modes        *confirmation.ModeSource
	Simulator    *simulator.Simulator
	Prices       price.Source
	Symbols      *price.SymbolResolver
	Publisher    Publisher // optional
}

// Result describes where a submitted payload ended up when Submit returned
type Result struct {
	EventID      uuid.UUID          `json:"event_id"`
	State        event.State        `json:"state"`
	RejectReason event.RejectReason `json:"reject_reason,omitempty"`
	Projection   *event.Projection  `json:"projection,omitempty"`
	Pending      bool               `json:"pending_confirmation"`
}

// Engine runs payloads through validation, dedup, confidence, confirmation and simulation
type Engine struct {
	Deps
	cfg Config

	// waits outlive the request that started them and end on Shutdown
	waitCtx    context.Context
	cancelWait context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.Mutex // guards closed and wg.Add
	closed     bool

	log *logger.Logger
}

// NewEngine creates the pipeline
func NewEngine(deps Deps, cfg Config, log *logger.Logger) *Engine {
	waitCtx, cancel := context.WithCancel(context.Background())
	return &Engine{
		Deps:       deps,
		cfg:        cfg,
		waitCtx:    waitCtx,
		cancelWait: cancel,
		log:        log.With("component", "pipeline"),
	}
}

// Submit validates a raw payload and drives it as far as it can go without blocking.
// Schema errors are returned to the caller. MANUAL confirmation continues in the background.
func (e *Engine) Submit(ctx context.Context, raw []byte) (*Result, error) {
	ev, err := e.Validator.Validate(raw)
	if err != nil {
		return nil, err
	}
	if ev.Symbol == "" && e.Symbols != nil {
		ev.Symbol = e.Symbols.Resolve(ev.Entities)
	}

	registered, err := e.Lifecycle.Register(ctx, ev)
	if err != nil {
		return nil, errors.Wrap(err, "register event")
	}
	log := e.log.With("event_id", registered.ID, "event_type", registered.Type, "source", registered.Source)

	admitted, err := e.Deduplicator.Admit(ctx, registered)
	if err != nil {
		res := e.reject(ctx, registered, event.ReasonDedupUnavailable)
		log.Errorw("dedup store failed", "error", err)
		return res, errors.Wrap(err, "deduplicate")
	}
	if !admitted {
		return e.reject(ctx, registered, event.ReasonDuplicate), nil
	}

	if !e.Gate.Filter(registered) {
		return e.reject(ctx, registered, event.ReasonLowConfidence), nil
	}

	validated, err := e.Lifecycle.Transition(ctx, registered.ID, event.StateValidated, event.ReasonNone)
	if err != nil {
		return nil, e.abort(ctx, registered, err)
	}
	projection := validated.Project()
	log.Infow("event accepted",
		"confidence", validated.Confidence,
		"symbol", projection.Symbol,
		"first_class", e.Gate.IsFirstClass(validated.Source),
	)

	if e.Publisher != nil {
		if err := e.Publisher.PublishAccepted(ctx, validated); err != nil {
			log.Warnw("failed to publish accepted event", "error", err)
		}
	}

	mode := e.Modes.Get()
	if mode == confirmation.ModeManual {
		if !e.startWait() {
			final := e.rejectIfLive(context.WithoutCancel(ctx), validated.ID, event.ReasonAborted)
			res := resultOf(final)
			res.Projection = &projection
			return res, errors.Wrap(errors.ErrUnavailable, "pipeline shutting down")
		}
		go e.awaitInBackground(validated, mode)
		return &Result{
			EventID:    validated.ID,
			State:      validated.State,
			Projection: &projection,
			Pending:    true,
		}, nil
	}

	final, err := e.confirmAndOpen(ctx, validated, mode)
	if final == nil {
		final, _ = e.Lifecycle.Get(validated.ID)
	}
	res := resultOf(final)
	res.Projection = &projection
	return res, err
}

// startWait registers a background wait unless Shutdown has begun
func (e *Engine) startWait() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.wg.Add(1)
	return true
}

func (e *Engine) awaitInBackground(ev *event.Event, mode confirmation.Mode) {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			err := errors.Wrapf(errors.ErrInternal, "panic in confirmation wait: %v", r)
			e.log.Errorw("confirmation wait panicked", "event_id", ev.ID, "error", err)
			e.rejectIfLive(context.Background(), ev.ID, event.ReasonAborted)
		}
	}()

	if _, err := e.confirmAndOpen(e.waitCtx, ev, mode); err != nil {
		e.log.Warnw("event did not reach a signal", "event_id", ev.ID, "error", err)
	}
}

// confirmAndOpen waits for confirmation, fetches the entry price and opens the position
func (e *Engine) confirmAndOpen(ctx context.Context, ev *event.Event, mode confirmation.Mode) (*event.Event, error) {
	start := time.Now()
	outcome, err := e.Confirmation.Await(ctx, ev.ID, mode, e.Lifecycle.Deadline(ev))
	if err != nil {
		metrics.ConfirmationWait.WithLabelValues(mode.String(), "aborted").Observe(time.Since(start).Seconds())
		// shutdown must not block on the journal
		return e.rejectIfLive(context.WithoutCancel(ctx), ev.ID, event.ReasonAborted), errors.Wrap(err, "await confirmation")
	}
	metrics.ConfirmationWait.WithLabelValues(mode.String(), string(outcome)).Observe(time.Since(start).Seconds())

	if outcome != confirmation.OutcomeConfirmed {
		return e.rejectIfLive(ctx, ev.ID, event.ReasonConfirmationTimeout), nil
	}

	return e.open(ctx, ev)
}

func (e *Engine) open(ctx context.Context, ev *event.Event) (*event.Event, error) {
	log := e.log.With("event_id", ev.ID, "symbol", ev.Symbol)

	if ev.Symbol == "" {
		log.Infow("no symbol for event, cannot price signal")
		return e.rejectIfLive(ctx, ev.ID, event.ReasonPriceUnavailable), nil
	}
	quote, err := e.Prices.LastPrice(ctx, price.NormalizeSymbol(ev.Symbol))
	if err != nil {
		log.Warnw("no entry price", "error", err)
		return e.rejectIfLive(ctx, ev.ID, event.ReasonPriceUnavailable),
			errors.Wrapf(errors.ErrPriceUnavailable, "entry price for %s: %v", ev.Symbol, err)
	}

	req := simulator.OpenRequest{
		EventID:     ev.ID,
		Confirmed:   true,
		Symbol:      price.NormalizeSymbol(ev.Symbol),
		EntryPrice:  quote.Price,
		TakeProfit:  e.takeProfit(quote.Price),
		StopLoss:    e.stopLoss(quote.Price),
		MaxDuration: e.cfg.MaxDuration,
	}

	signalled, err := e.Lifecycle.TransitionWith(ctx, ev.ID, event.StateSignalGenerated, event.ReasonNone, func(snapshot *event.Event) error {
		req.EventState = snapshot.State
		_, err := e.Simulator.Open(ctx, req)
		return err
	})
	if err != nil {
		return nil, e.abort(ctx, ev, err)
	}

	log.Infow("signal generated", "entry", req.EntryPrice, "take_profit", req.TakeProfit, "stop_loss", req.StopLoss)
	return signalled, nil
}

var hundred = decimal.NewFromInt(100)

func (e *Engine) takeProfit(entry decimal.Decimal) decimal.Decimal {
	return entry.Mul(hundred.Add(e.cfg.TakeProfitPct)).Div(hundred)
}

func (e *Engine) stopLoss(entry decimal.Decimal) decimal.Decimal {
	return entry.Mul(hundred.Sub(e.cfg.StopLossPct)).Div(hundred)
}

func (e *Engine) reject(ctx context.Context, ev *event.Event, reason event.RejectReason) *Result {
	metrics.EventsRejected.WithLabelValues(reason.String(), e.Gate.SourceClass(ev.Source)).Inc()
	rejected, err := e.Lifecycle.Reject(ctx, ev.ID, reason)
	if err != nil {
		e.log.Errorw("reject failed", "event_id", ev.ID, "reason", reason, "error", err)
		return &Result{EventID: ev.ID, State: ev.State}
	}
	return resultOf(rejected)
}

// rejectIfLive rejects a VALIDATED event and returns its final snapshot
func (e *Engine) rejectIfLive(ctx context.Context, id uuid.UUID, reason event.RejectReason) *event.Event {
	current, ok := e.Lifecycle.Get(id)
	if !ok {
		return nil
	}
	if current.State.Terminal() {
		return current
	}
	metrics.EventsRejected.WithLabelValues(reason.String(), e.Gate.SourceClass(current.Source)).Inc()
	rejected, err := e.Lifecycle.Reject(ctx, id, reason)
	if err != nil {
		e.log.Errorw("reject failed", "event_id", id, "reason", reason, "error", err)
		return current
	}
	return rejected
}

// abort handles invariant violations: the offending event is rejected, everything else continues
func (e *Engine) abort(ctx context.Context, ev *event.Event, err error) error {
	if errors.Is(err, errors.ErrInvariantViolation) {
		e.log.ErrorWithContext(ctx, err, map[string]string{
			"component": "pipeline",
			"event_id":  ev.ID.String(),
		})
	} else {
		e.log.Errorw("event aborted", "event_id", ev.ID, "error", err)
	}
	e.rejectIfLive(ctx, ev.ID, event.ReasonAborted)
	return errors.Wrapf(err, "event %s", ev.ID)
}

// Shutdown stops pending confirmation waits and waits for their goroutines.
// Pending events end REJECTED with reason aborted.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.cancelWait()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pipeline shutdown: %w", ctx.Err())
	}
}

func resultOf(ev *event.Event) *Result {
	if ev == nil {
		return &Result{}
	}
	return &Result{
		EventID:      ev.ID,
		State:        ev.State,
		RejectReason: ev.RejectReason,
	}
}
