package dedup

import (
	"context"
	"time"

	"github.com/google/uuid"

	"eventsim/internal/adapters/redis"
	"eventsim/pkg/errors"
)

// RedisStore keeps fingerprints in Redis with SET NX and a TTL equal to the retention horizon.
// Redis expires keys itself, so no Evictor is needed.
type RedisStore struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
}

// NewRedisStore creates a shared fingerprint store
func NewRedisStore(client *redis.Client, prefix string, retention time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, retention: retention}
}

// Insert implements Store
func (s *RedisStore) Insert(ctx context.Context, fingerprint string, owner uuid.UUID, _ time.Time) (bool, error) {
	ok, err := s.client.SetIfAbsent(ctx, s.prefix+fingerprint, owner.String(), s.retention)
	if err != nil {
		return false, errors.Wrapf(errors.ErrUnavailable, "redis setnx %s: %v", fingerprint, err)
	}
	return ok, nil
}
