package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Harsh-BH/Sentinel/judge/internal/domain"
	"github.com/Harsh-BH/Sentinel/judge/internal/repository"
)

var _ repository.IdempotencyStore = (*redisIdempotency)(nil)

const lockKeyPrefix = "judge:lock:"

type redisIdempotency struct {
	client goredis.Cmdable
	ttl    time.Duration
}

// NewRedisIdempotencyStore creates a Redis-backed idempotency store using SETNX.
func NewRedisIdempotencyStore(client goredis.Cmdable, ttl time.Duration) repository.IdempotencyStore {
	return &redisIdempotency{client: client, ttl: ttl}
}

// AcquireLock uses Redis SETNX to atomically acquire a processing lock.
func (r *redisIdempotency) AcquireLock(ctx context.Context, id domain.SubmissionID) (bool, error) {
	ok, err := r.client.SetNX(ctx, lockKey(id), time.Now().Unix(), r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: acquire lock: %w", err)
	}
	return ok, nil
}

// ReleaseLock deletes the lock so a later job with the same id is judged again.
// The TTL only matters when a worker dies while holding the lock.
func (r *redisIdempotency) ReleaseLock(ctx context.Context, id domain.SubmissionID) error {
	if err := r.client.Del(ctx, lockKey(id)).Err(); err != nil {
		return fmt.Errorf("redis: release lock: %w", err)
	}
	return nil
}

func lockKey(id domain.SubmissionID) string {
	return lockKeyPrefix + id.String()
}
