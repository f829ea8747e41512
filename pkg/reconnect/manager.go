package reconnect

import (
	"context"
	"sync"
	"time"

	"eventsim/pkg/errors"
	"eventsim/pkg/logger"
)

// ErrCircuitOpen is returned while the breaker refuses reconnect attempts
var ErrCircuitOpen = errors.New("circuit breaker open")

// Manager paces reconnect attempts with exponential backoff and a circuit breaker.
// After MaxRetries consecutive failures it refuses attempts for CircuitResetAfter.
type Manager struct {
	minBackoff        time.Duration
	maxBackoff        time.Duration
	multiplier        float64
	maxRetries        int
	circuitResetAfter time.Duration

	mu                  sync.Mutex
	currentBackoff      time.Duration
	consecutiveFailures int
	totalReconnects     int
	circuitOpenedAt     time.Time

	now    func() time.Time
	logger *logger.Logger
}

// Config configures the reconnect manager. Zero values get defaults.
type Config struct {
	MinBackoff        time.Duration // default 1s
	MaxBackoff        time.Duration // default 1m
	BackoffMultiplier float64       // default 2
	MaxRetries        int           // default 10
	CircuitResetAfter time.Duration // default 5m
}

// NewManager creates a new reconnect manager
func NewManager(cfg Config, log *logger.Logger) *Manager {
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = time.Second
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = time.Minute
	}
	if cfg.BackoffMultiplier < 1 {
		cfg.BackoffMultiplier = 2
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 10
	}
	if cfg.CircuitResetAfter <= 0 {
		cfg.CircuitResetAfter = 5 * time.Minute
	}

	return &Manager{
		minBackoff:        cfg.MinBackoff,
		maxBackoff:        cfg.MaxBackoff,
		multiplier:        cfg.BackoffMultiplier,
		maxRetries:        cfg.MaxRetries,
		circuitResetAfter: cfg.CircuitResetAfter,
		currentBackoff:    cfg.MinBackoff,
		now:               time.Now,
		logger:            log,
	}
}

// Backoff returns the wait before the next attempt
func (m *Manager) Backoff() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentBackoff
}

// CircuitOpen reports whether attempts are currently refused
func (m *Manager) CircuitOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.circuitOpenLocked()
}

func (m *Manager) circuitOpenLocked() bool {
	if m.circuitOpenedAt.IsZero() {
		return false
	}
	return m.now().Sub(m.circuitOpenedAt) < m.circuitResetAfter
}

// RecordFailure grows the backoff and opens the circuit after too many failures
func (m *Manager) RecordFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.consecutiveFailures++
	next := time.Duration(float64(m.currentBackoff) * m.multiplier)
	if next > m.maxBackoff {
		next = m.maxBackoff
	}
	m.currentBackoff = next

	if m.consecutiveFailures >= m.maxRetries && m.circuitOpenedAt.IsZero() {
		m.circuitOpenedAt = m.now()
		m.logger.Errorw("circuit breaker opened",
			"consecutive_failures", m.consecutiveFailures,
			"reset_after", m.circuitResetAfter,
		)
	}
}

// RecordSuccess resets backoff and closes the circuit
func (m *Manager) RecordSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.consecutiveFailures > 0 {
		m.logger.Infow("reconnected", "after_failures", m.consecutiveFailures)
	}
	m.currentBackoff = m.minBackoff
	m.consecutiveFailures = 0
	m.circuitOpenedAt = time.Time{}
	m.totalReconnects++
}

// Failures returns the consecutive failure count
func (m *Manager) Failures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.consecutiveFailures
}

// Attempt waits the current backoff, then runs fn and records the result.
// A half-open circuit allows exactly one probe once the reset period has passed.
func (m *Manager) Attempt(ctx context.Context, fn func(context.Context) error) error {
	m.mu.Lock()
	if m.circuitOpenLocked() {
		m.mu.Unlock()
		return ErrCircuitOpen
	}
	if !m.circuitOpenedAt.IsZero() {
		// reset period elapsed: allow a probe, reopen on failure
		m.circuitOpenedAt = time.Time{}
		m.consecutiveFailures = m.maxRetries - 1
	}
	backoff := m.currentBackoff
	m.mu.Unlock()

	timer := time.NewTimer(backoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	if err := fn(ctx); err != nil {
		m.RecordFailure()
		return errors.Wrap(err, "reconnect attempt failed")
	}
	m.RecordSuccess()
	return nil
}
