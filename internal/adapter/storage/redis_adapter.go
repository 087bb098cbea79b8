package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/order-service/internal/core/domain"
)

const defaultIdempotencyTTL = 24 * time.Hour

// releaseScript deletes the key only while it still holds the caller's token,
// so a release arriving after the TTL never frees a key claimed again since.
var releaseScript = redis.NewScript(`
local key = KEYS[1]
local token = ARGV[1]

if redis.call('GET', key) == token then
	return redis.call('DEL', key)
end

return 0
`)

type RedisIdempotencyGuard struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisIdempotencyGuard(client *redis.Client, ttl time.Duration) *RedisIdempotencyGuard {
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}

	return &RedisIdempotencyGuard{
		client: client,
		ttl:    ttl,
	}
}

// Acquire claims key with a fresh token, one per acquisition.
func (r *RedisIdempotencyGuard) Acquire(ctx context.Context, key string) (string, bool, error) {
	token := uuid.NewString()

	ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("%w: redis setnx: %w", domain.ErrUnavailable, err)
	}
	if !ok {
		return "", false, nil
	}

	return token, true, nil
}

func (r *RedisIdempotencyGuard) Release(ctx context.Context, key, token string) error {
	if err := releaseScript.Run(ctx, r.client, []string{key}, token).Err(); err != nil {
		return fmt.Errorf("%w: redis release: %w", domain.ErrUnavailable, err)
	}

	return nil
}
