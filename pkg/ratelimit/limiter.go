package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"eventsim/pkg/errors"
)

// Limiter is a named token bucket
type Limiter struct {
	limiter *rate.Limiter
	name    string
}

// NewLimiter allows perSecond events on average with bursts up to burst
func NewLimiter(name string, perSecond float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
		name:    name,
	}
}

// Wait blocks until the limiter allows one event or ctx ends
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return errors.Wrapf(err, "rate limiter %s", l.name)
	}
	return nil
}

// Allow reports whether one event may happen now
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// KeyedLimiter keeps one bucket per key (client address, source name).
// Buckets are created on first use with the same rate and burst.
type KeyedLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*Limiter
	name      string
	perSecond float64
	burst     int
	maxKeys   int
}

// NewKeyedLimiter creates a keyed limiter. When maxKeys buckets exist the map is reset.
func NewKeyedLimiter(name string, perSecond float64, burst, maxKeys int) *KeyedLimiter {
	if maxKeys <= 0 {
		maxKeys = 10_000
	}
	return &KeyedLimiter{
		limiters:  make(map[string]*Limiter),
		name:      name,
		perSecond: perSecond,
		burst:     burst,
		maxKeys:   maxKeys,
	}
}

// Allow reports whether key may proceed now
func (k *KeyedLimiter) Allow(key string) bool {
	return k.get(key).Allow()
}

// Len returns the number of live buckets
func (k *KeyedLimiter) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.limiters)
}

func (k *KeyedLimiter) get(key string) *Limiter {
	k.mu.Lock()
	defer k.mu.Unlock()

	if l, ok := k.limiters[key]; ok {
		return l
	}
	if len(k.limiters) >= k.maxKeys {
		k.limiters = make(map[string]*Limiter)
	}
	l := NewLimiter(k.name+":"+key, k.perSecond, k.burst)
	k.limiters[key] = l
	return l
}
