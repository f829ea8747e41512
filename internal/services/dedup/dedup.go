package dedup

import (
	"context"
	"time"

	"eventsim/internal/domain/event"
	"eventsim/pkg/logger"
)

// Deduplicator rejects events whose fingerprint was seen within the retention horizon
type Deduplicator struct {
	store Store
	now   func() time.Time
	log   *logger.Logger
}

// New creates a deduplicator over the given store
func New(store Store, log *logger.Logger) *Deduplicator {
	return &Deduplicator{
		store: store,
		now:   time.Now,
		log:   log.With("component", "deduplicator"),
	}
}

// WithClock overrides the time source. Used by tests.
func (d *Deduplicator) WithClock(now func() time.Time) *Deduplicator {
	d.now = now
	return d
}

// Admit returns true for the first occurrence of the event's fingerprint.
// A repeat returns false without error.
func (d *Deduplicator) Admit(ctx context.Context, ev *event.Event) (bool, error) {
	fp := ev.Fingerprint
	if fp == "" {
		fp = event.Fingerprint(ev.Source, ev.Timestamp, ev.Entities)
		ev.Fingerprint = fp
	}

	ok, err := d.store.Insert(ctx, fp, ev.ID, d.now())
	if err != nil {
		return false, err
	}
	if !ok {
		d.log.Debugw("duplicate fingerprint", "event_id", ev.ID, "fingerprint", fp)
	}
	return ok, nil
}

// Evict runs store eviction when the store needs it and returns the number of dropped fingerprints
func (d *Deduplicator) Evict(now time.Time) int {
	if ev, ok := d.store.(Evictor); ok {
		return ev.Evict(now)
	}
	return 0
}
