package dedup

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store records fingerprints. Insert is an atomic check-and-insert:
// it returns false when the fingerprint is already held.
type Store interface {
	Insert(ctx context.Context, fingerprint string, owner uuid.UUID, now time.Time) (bool, error)
}

// Evictor is implemented by stores that need explicit eviction
type Evictor interface {
	Evict(now time.Time) int
}

// TerminalFunc reports whether the event owning a fingerprint can no longer change state.
// Unknown owners count as terminal.
type TerminalFunc func(owner uuid.UUID) bool

type entry struct {
	owner  uuid.UUID
	seenAt time.Time
}

// MemoryStore keeps fingerprints in a mutex-guarded map
type MemoryStore struct {
	mu        sync.Mutex
	entries   map[string]entry
	retention time.Duration
	terminal  TerminalFunc
}

// NewMemoryStore creates an in-process store. terminal may be nil.
func NewMemoryStore(retention time.Duration, terminal TerminalFunc) *MemoryStore {
	if terminal == nil {
		terminal = func(uuid.UUID) bool { return true }
	}
	return &MemoryStore{
		entries:   make(map[string]entry),
		retention: retention,
		terminal:  terminal,
	}
}

// Insert implements Store. An entry past the horizon still blocks while its owner is live.
func (s *MemoryStore) Insert(_ context.Context, fingerprint string, owner uuid.UUID, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[fingerprint]; ok {
		if now.Sub(e.seenAt) < s.retention || !s.terminal(e.owner) {
			return false, nil
		}
	}

	s.entries[fingerprint] = entry{owner: owner, seenAt: now}
	return true, nil
}

// Evict drops entries older than the horizon whose owner is terminal
func (s *MemoryStore) Evict(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for fp, e := range s.entries {
		if now.Sub(e.seenAt) >= s.retention && s.terminal(e.owner) {
			delete(s.entries, fp)
			evicted++
		}
	}
	return evicted
}

// Len returns the number of held fingerprints
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
