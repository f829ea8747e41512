package dedup

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventsim/internal/adapters/redis"
	"eventsim/internal/domain/event"
	"eventsim/internal/testsupport"
	"eventsim/pkg/logger"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newEvent(source string) *event.Event {
	ev := &event.Event{
		ID:        uuid.New(),
		Source:    source,
		Timestamp: t0,
		Entities:  []string{"fed"},
	}
	ev.Fingerprint = event.Fingerprint(ev.Source, ev.Timestamp, ev.Entities)
	return ev
}

func TestDeduplicator_SecondOccurrenceRejected(t *testing.T) {
	d := New(NewMemoryStore(time.Hour, nil), logger.NewNop())
	ctx := context.Background()

	ok, err := d.Admit(ctx, newEvent("reuters"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = d.Admit(ctx, newEvent("reuters"))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = d.Admit(ctx, newEvent("ap"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDeduplicator_ComputesMissingFingerprint(t *testing.T) {
	d := New(NewMemoryStore(time.Hour, nil), logger.NewNop())
	ev := newEvent("reuters")
	ev.Fingerprint = ""

	ok, err := d.Admit(context.Background(), ev)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotEmpty(t, ev.Fingerprint)
}

func TestMemoryStore_Retention(t *testing.T) {
	live := map[uuid.UUID]bool{}
	var mu sync.Mutex
	terminal := func(id uuid.UUID) bool {
		mu.Lock()
		defer mu.Unlock()
		return !live[id]
	}

	store := NewMemoryStore(time.Hour, terminal)
	ctx := context.Background()
	owner := uuid.New()
	live[owner] = true

	ok, _ := store.Insert(ctx, "fp", owner, t0)
	require.True(t, ok)

	t.Run("within horizon", func(t *testing.T) {
		ok, _ := store.Insert(ctx, "fp", uuid.New(), t0.Add(59*time.Minute))
		assert.False(t, ok)
	})

	t.Run("past horizon but owner live", func(t *testing.T) {
		ok, _ := store.Insert(ctx, "fp", uuid.New(), t0.Add(2*time.Hour))
		assert.False(t, ok)
		assert.Equal(t, 0, store.Evict(t0.Add(2*time.Hour)))
		assert.Equal(t, 1, store.Len())
	})

	mu.Lock()
	live[owner] = false
	mu.Unlock()

	t.Run("past horizon and owner terminal", func(t *testing.T) {
		assert.Equal(t, 1, store.Evict(t0.Add(2*time.Hour)))
		assert.Equal(t, 0, store.Len())

		ok, _ := store.Insert(ctx, "fp", uuid.New(), t0.Add(2*time.Hour))
		assert.True(t, ok)
	})
}

func TestMemoryStore_ConcurrentInsertAdmitsOnce(t *testing.T) {
	store := NewMemoryStore(time.Hour, nil)
	var admitted int32
	var wg sync.WaitGroup

	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.Insert(context.Background(), "same", uuid.New(), t0)
			if err == nil && ok {
				atomic.AddInt32(&admitted, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), admitted)
}

func TestRedisStore_Integration(t *testing.T) {
	cfg := testsupport.RedisConfigFromEnv(t)
	rdb := testsupport.NewRedisClient(t, cfg)
	store := NewRedisStore(redis.NewFromClient(rdb), cfg.KeyPrefix, time.Minute)
	ctx := context.Background()

	ok, err := store.Insert(ctx, "fp", uuid.New(), t0)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Insert(ctx, "fp", uuid.New(), t0)
	require.NoError(t, err)
	assert.False(t, ok)

	ttl, err := rdb.TTL(ctx, cfg.KeyPrefix+"fp").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}
