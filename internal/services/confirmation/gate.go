package confirmation

import (
	"context"
	"time"

	"github.com/google/uuid"

	"eventsim/pkg/errors"
	"eventsim/pkg/logger"
)

// Outcome of a confirmation wait
type Outcome string

const (
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeTimedOut  Outcome = "timed-out"
)

// Gate suspends an event until confirmation or timeout
type Gate struct {
	device       Device
	timeout      time.Duration
	pollInterval time.Duration
	now          func() time.Time
	log          *logger.Logger
}

// NewGate creates a confirmation gate
func NewGate(device Device, timeout, pollInterval time.Duration, log *logger.Logger) *Gate {
	return &Gate{
		device:       device,
		timeout:      timeout,
		pollInterval: pollInterval,
		now:          time.Now,
		log:          log.With("component", "confirmation_gate"),
	}
}

// WithClock overrides the time source. Used by tests.
func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	return g
}

// Await returns immediately in AUTO mode. In MANUAL mode it polls the device until
// the request is confirmed or min(timeout, deadline - now) elapses, measured from the
// call. Time spent prompting the operator counts against the wait.
// Cancelling ctx ends the wait with ctx.Err().
func (g *Gate) Await(ctx context.Context, eventID uuid.UUID, mode Mode, deadline time.Time) (Outcome, error) {
	switch mode {
	case ModeAuto:
		return OutcomeConfirmed, nil
	case ModeManual:
	default:
		return "", errors.Wrapf(errors.ErrInvalidInput, "unknown confirmation mode %q", mode)
	}

	start := g.now()
	expiry := start.Add(g.timeout)
	if deadline.Before(expiry) {
		expiry = deadline
	}
	if !expiry.After(start) {
		return OutcomeTimedOut, nil
	}

	token, err := g.device.RequestConfirmation(ctx, eventID)
	if err != nil {
		return "", errors.Wrap(err, "request confirmation")
	}
	if rel, ok := g.device.(Releaser); ok {
		defer rel.Release(token)
	}

	log := g.log.With("event_id", eventID, "token", token)

	// a slow prompt may have used up the whole window; whatever arrived meanwhile is late
	remaining := expiry.Sub(g.now())
	if remaining <= 0 {
		log.Infow("confirmation timed out while prompting", "overrun", -remaining)
		return OutcomeTimedOut, nil
	}
	log.Infow("awaiting confirmation", "timeout", remaining)

	timer := time.NewTimer(remaining)
	defer timer.Stop()
	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
			// one last look so a confirmation racing the deadline is not lost
			if g.confirmed(ctx, log, token) {
				return OutcomeConfirmed, nil
			}
			log.Infow("confirmation timed out")
			return OutcomeTimedOut, nil
		case <-ticker.C:
			if g.confirmed(ctx, log, token) {
				return OutcomeConfirmed, nil
			}
		}
	}
}

func (g *Gate) confirmed(ctx context.Context, log *logger.Logger, token Token) bool {
	status, err := g.device.Poll(ctx, token)
	if err != nil {
		log.Warnw("confirmation poll failed", "error", err)
		return false
	}
	return status == StatusConfirmed
}
