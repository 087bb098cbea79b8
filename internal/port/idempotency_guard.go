package port

import "context"

type IdempotencyGuard interface {
	// Acquire claims key and returns the token proving ownership of this claim,
	// ok is false if key is already claimed
	Acquire(ctx context.Context, key string) (token string, ok bool, err error)

	// Release frees key if it is still held under token, so a failed request can be retried
	Release(ctx context.Context, key, token string) error
}
