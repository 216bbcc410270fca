package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/container-inventory/internal/logger"
	"github.com/rl1809/container-inventory/internal/port"
)

var _ port.Locker = (*RedisLocker)(nil)

const lockKeyPrefix = "lock:"

// ErrNotObtained is returned when a key stays held past the retry budget.
var ErrNotObtained = errors.New("lock not obtained")

// RedisLocker leases keys in Redis so that several processes avoid racing on the
// same container. A lease can expire under a slow holder; store guards still decide.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
	retry  func() redislock.RetryStrategy
	log    *logger.Logger
}

func NewRedisLocker(client redis.UniversalClient, ttl, retryInterval time.Duration, retryLimit int, log *logger.Logger) *RedisLocker {
	return &RedisLocker{
		client: redislock.New(client),
		ttl:    ttl,
		retry: func() redislock.RetryStrategy {
			return redislock.LimitRetry(redislock.LinearBackoff(retryInterval), retryLimit)
		},
		log: log.Component("redis-locker"),
	}
}

func (r *RedisLocker) Lock(ctx context.Context, keys ...string) (func(), error) {
	ordered := orderKeys(keys)
	held := make([]*redislock.Lock, 0, len(ordered))
	for _, k := range ordered {
		l, err := r.client.Obtain(ctx, lockKeyPrefix+k, r.ttl, &redislock.Options{RetryStrategy: r.retry()})
		if err != nil {
			r.release(held)
			if errors.Is(err, redislock.ErrNotObtained) {
				return nil, fmt.Errorf("%w: %s", ErrNotObtained, k)
			}
			return nil, fmt.Errorf("obtain lock %s: %w", k, err)
		}
		held = append(held, l)
	}
	return func() { r.release(held) }, nil
}

func (r *RedisLocker) release(held []*redislock.Lock) {
	for i := len(held) - 1; i >= 0; i-- {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		if err := held[i].Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			r.log.Warn().Err(err).Str("key", held[i].Key()).Msg("release lock")
		}
		cancel()
	}
}
