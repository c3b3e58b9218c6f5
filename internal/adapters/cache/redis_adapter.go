package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zatekoja/medisync/internal/domain/providers"
	"github.com/zatekoja/medisync/internal/infrastructure/observability"
)

// RedisAdapter implements the CacheProvider interface using Redis
type RedisAdapter struct {
	client  redis.Cmdable
	metrics *observability.Metrics
}

// NewRedisAdapter creates a new Redis cache adapter. metrics may be nil.
func NewRedisAdapter(client redis.Cmdable, metrics *observability.Metrics) *RedisAdapter {
	return &RedisAdapter{
		client:  client,
		metrics: metrics,
	}
}

// Get retrieves a value from cache
func (a *RedisAdapter) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := a.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		observability.RecordCacheMiss(ctx, a.metrics, key)
		return nil, providers.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get from cache: %w", err)
	}
	observability.RecordCacheHit(ctx, a.metrics, key)
	return result, nil
}

// Set stores a value in cache with expiration
func (a *RedisAdapter) Set(ctx context.Context, key string, value []byte, expirationSeconds int) error {
	expiration := time.Duration(expirationSeconds) * time.Second
	if err := a.client.Set(ctx, key, value, expiration).Err(); err != nil {
		return fmt.Errorf("failed to set in cache: %w", err)
	}
	return nil
}

// Delete removes a value from cache
func (a *RedisAdapter) Delete(ctx context.Context, key string) error {
	if err := a.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete from cache: %w", err)
	}
	return nil
}

// Exists checks if a key exists in cache
func (a *RedisAdapter) Exists(ctx context.Context, key string) (bool, error) {
	result, err := a.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check existence in cache: %w", err)
	}
	return result > 0, nil
}
