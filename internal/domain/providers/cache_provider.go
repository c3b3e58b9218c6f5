package providers

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned by Get when the key does not exist
var ErrCacheMiss = errors.New("cache miss")

// ErrLockNotAcquired is returned when another run holds a provider lock
var ErrLockNotAcquired = errors.New("lock not acquired")

// CacheProvider defines the interface for caching operations
type CacheProvider interface {
	// Get retrieves a value from cache, ErrCacheMiss when absent
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with expiration; zero keeps it forever
	Set(ctx context.Context, key string, value []byte, expirationSeconds int) error

	// Delete removes a value from cache
	Delete(ctx context.Context, key string) error

	// Exists checks if a key exists in cache
	Exists(ctx context.Context, key string) (bool, error)
}

// LockProvider hands out short-lived exclusive locks
type LockProvider interface {
	// Acquire takes the lock or returns ErrLockNotAcquired
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

// Lock is a held lock
type Lock interface {
	Release(ctx context.Context) error
}
