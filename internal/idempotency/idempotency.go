// Package idempotency remembers checkout Idempotency-Key headers so a retried
// checkout returns the order created by the first attempt.
package idempotency

import (
	"context"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
)

// ErrInProgress is returned while another request holds the key.
var ErrInProgress = errors.New("request with this idempotency key is in progress")

const pending = "pending"

// Config configures the key store.
type Config struct {
	TTL     time.Duration `default:"24h" usage:"How long checkout idempotency keys are remembered"`
	LockTTL time.Duration `default:"30s" usage:"How long an unfinished checkout holds its key"`
}

// Store keeps keys in Redis. A key is first claimed with a short-lived
// pending marker and then bound to the created order id.
type Store struct {
	client  redis.UniversalClient
	ttl     time.Duration
	lockTTL time.Duration
}

// New creates a Store.
func New(client redis.UniversalClient, cfg Config) *Store {
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	return &Store{client: client, ttl: cfg.TTL, lockTTL: cfg.LockTTL}
}

// Claim reserves key for scope. If the key already completed, the stored
// order id is returned with claimed=false.
func (s *Store) Claim(ctx context.Context, scope, key string) (orderID int64, claimed bool, err error) {
	k := redisKey(scope, key)
	ok, err := s.client.SetNX(ctx, k, pending, s.lockTTL).Result()
	if err != nil {
		return 0, false, errors.Wrap(err, "claim idempotency key")
	}
	if ok {
		return 0, true, nil
	}

	v, err := s.client.Get(ctx, k).Result()
	switch {
	case errors.Is(err, redis.Nil):
		// Expired between SETNX and GET; try once more.
		ok, err := s.client.SetNX(ctx, k, pending, s.lockTTL).Result()
		if err != nil {
			return 0, false, errors.Wrap(err, "claim idempotency key")
		}
		if ok {
			return 0, true, nil
		}
		return 0, false, ErrInProgress
	case err != nil:
		return 0, false, errors.Wrap(err, "read idempotency key")
	case v == pending:
		return 0, false, ErrInProgress
	}

	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false, errors.Wrapf(err, "corrupt idempotency key %q", k)
	}
	return id, false, nil
}

// Complete binds a claimed key to the created order.
func (s *Store) Complete(ctx context.Context, scope, key string, orderID int64) error {
	if err := s.client.Set(ctx, redisKey(scope, key), strconv.FormatInt(orderID, 10), s.ttl).Err(); err != nil {
		return errors.Wrap(err, "complete idempotency key")
	}
	return nil
}

// Release drops a claim after a failed attempt so the client can retry.
func (s *Store) Release(ctx context.Context, scope, key string) error {
	if err := s.client.Del(ctx, redisKey(scope, key)).Err(); err != nil {
		return errors.Wrap(err, "release idempotency key")
	}
	return nil
}

// Ping checks the Redis connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func redisKey(scope, key string) string {
	return "orderflow:idem:" + scope + ":" + key
}
