package redis

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Harsh-BH/Sentinel/judge/internal/domain"
	"github.com/Harsh-BH/Sentinel/judge/internal/repository"
)

var _ repository.DeadLetterStore = (*redisDeadLetters)(nil)

type redisDeadLetters struct {
	client goredis.Cmdable
	list   string
}

// NewRedisDeadLetterStore pushes undeliverable reports onto a redis list,
// where an operator or replay job can LPOP them.
func NewRedisDeadLetterStore(client goredis.Cmdable, list string) repository.DeadLetterStore {
	return &redisDeadLetters{client: client, list: list}
}

func (r *redisDeadLetters) Put(ctx context.Context, letter *domain.DeadLetter) error {
	payload, err := json.Marshal(letter)
	if err != nil {
		return fmt.Errorf("redis: encode dead letter: %w", err)
	}
	if err := r.client.RPush(ctx, r.list, payload).Err(); err != nil {
		return fmt.Errorf("redis: push dead letter: %w", err)
	}
	return nil
}
