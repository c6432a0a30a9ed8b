// Package idempotency keeps Idempotency-Key state for create-booking in
// Redis.  A key is first claimed with SET NX holding a pending marker, then
// completed with the id of the booking it produced.
package idempotency

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const pending = "pending"

// RedisStore implements service.IdempotencyStore on Redis.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore returns a store writing keys under prefix with the given
// TTL.  It returns nil when rdb is nil; callers must then leave the
// service's IdempotencyStore unset rather than wrap the nil pointer.
func NewRedisStore(rdb *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if rdb == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(k string) string { return s.prefix + ":" + k }

// Claim reserves key for the caller.  When the key already exists the
// stored booking id is returned, or 0 while it is still pending.
func (s *RedisStore) Claim(ctx context.Context, key string) (uint64, bool, error) {
	ok, err := s.rdb.SetNX(ctx, s.key(key), pending, s.ttl).Result()
	if err != nil {
		return 0, false, err
	}
	if ok {
		return 0, true, nil
	}
	v, err := s.rdb.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET; report as in flight and let the client retry
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return parseBookingID(v), false, nil
}

// Complete binds key to bookingID for the rest of the TTL.
func (s *RedisStore) Complete(ctx context.Context, key string, bookingID uint64) error {
	return s.rdb.Set(ctx, s.key(key), strconv.FormatUint(bookingID, 10), s.ttl).Err()
}

// Release drops a claim so the request can be retried.
func (s *RedisStore) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, s.key(key)).Err()
}

func parseBookingID(v string) uint64 {
	if v == pending {
		return 0
	}
	id, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0
	}
	return id
}
