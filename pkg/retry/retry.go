package retry

import (
	"context"
	"math"
	"net"
	"strings"
	"time"

	"eventsim/pkg/errors"
)

// Strategy defines the retry strategy
type Strategy string

const (
	StrategyExponential Strategy = "exponential"
	StrategyLinear      Strategy = "linear"
	StrategyFixed       Strategy = "fixed"
)

// Config contains retry configuration
type Config struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Strategy     Strategy
	Multiplier   float64 // exponential only

	// Retryable decides whether an error is worth another attempt. Defaults to IsTransient.
	Retryable func(err error) bool
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() Config {
	return Config{
		MaxRetries:   3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Strategy:     StrategyExponential,
		Multiplier:   2.0,
	}
}

// Retrier runs a function until it succeeds, fails permanently or runs out of attempts
type Retrier struct {
	config Config
}

// New creates a retrier. Zero fields fall back to DefaultConfig.
func New(config Config) *Retrier {
	def := DefaultConfig()
	if config.MaxRetries <= 0 {
		config.MaxRetries = def.MaxRetries
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = def.InitialDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = def.MaxDelay
	}
	if config.Multiplier <= 0 {
		config.Multiplier = def.Multiplier
	}
	if config.Strategy == "" {
		config.Strategy = def.Strategy
	}
	if config.Retryable == nil {
		config.Retryable = IsTransient
	}
	return &Retrier{config: config}
}

// Do executes fn with retries
func (r *Retrier) Do(ctx context.Context, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !r.config.Retryable(err) {
			return err
		}
		if attempt == r.config.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "retry cancelled")
		case <-time.After(r.Delay(attempt)):
		}
	}

	return errors.Wrapf(lastErr, "max retries (%d) exceeded", r.config.MaxRetries)
}

// Delay is the pause after the given zero-based attempt
func (r *Retrier) Delay(attempt int) time.Duration {
	var delay time.Duration

	switch r.config.Strategy {
	case StrategyExponential:
		delay = time.Duration(float64(r.config.InitialDelay) * math.Pow(r.config.Multiplier, float64(attempt)))
	case StrategyLinear:
		delay = r.config.InitialDelay * time.Duration(1+attempt)
	default:
		delay = r.config.InitialDelay
	}

	if delay > r.config.MaxDelay {
		delay = r.config.MaxDelay
	}
	return delay
}

var transientMessages = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"timeout",
	"temporary failure",
	"too many requests",
	"rate limit",
}

// IsTransient reports network-level failures. Context errors are never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, m := range transientMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
