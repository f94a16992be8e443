package port

import (
	"context"
	"time"
)

type CacheRepository interface {
	// Get returns the cached value, ok is false on a miss
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Set stores value under key for ttl
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete evicts key; deleting a missing key is not an error
	Delete(ctx context.Context, key string) error
}

type IdempotencyRepository interface {
	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ReleaseIdempotency removes the key so the request can be retried
	ReleaseIdempotency(ctx context.Context, key string) error
}
