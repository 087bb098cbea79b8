package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryClaim struct {
	token     string
	expiresAt time.Time
}

// MemoryIdempotencyGuard is the in-process counterpart of the Redis guard.
type MemoryIdempotencyGuard struct {
	mu   sync.Mutex
	keys map[string]memoryClaim
	ttl  time.Duration
	now  func() time.Time
}

func NewMemoryIdempotencyGuard(ttl time.Duration) *MemoryIdempotencyGuard {
	return &MemoryIdempotencyGuard{
		keys: make(map[string]memoryClaim),
		ttl:  ttl,
		now:  time.Now,
	}
}

func (g *MemoryIdempotencyGuard) Acquire(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if claim, ok := g.keys[key]; ok && (g.ttl <= 0 || now.Before(claim.expiresAt)) {
		return "", false, nil
	}

	token := uuid.NewString()
	g.keys[key] = memoryClaim{token: token, expiresAt: now.Add(g.ttl)}
	return token, true, nil
}

func (g *MemoryIdempotencyGuard) Release(_ context.Context, key, token string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if claim, ok := g.keys[key]; ok && claim.token == token {
		delete(g.keys, key)
	}
	return nil
}
