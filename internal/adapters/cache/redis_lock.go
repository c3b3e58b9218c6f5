package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/zatekoja/medisync/internal/domain/providers"
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker hands out SET NX PX locks.
type RedisLocker struct {
	client redis.Cmdable
}

// NewRedisLocker creates a locker on the given client.
func NewRedisLocker(client redis.Cmdable) *RedisLocker {
	return &RedisLocker{client: client}
}

// Acquire takes key for ttl or returns providers.ErrLockNotAcquired.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (providers.Lock, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, providers.ErrLockNotAcquired
	}
	return &redisLock{client: l.client, key: key, token: token}, nil
}

type redisLock struct {
	client redis.Cmdable
	key    string
	token  string
}

// Release drops the lock unless it already expired and was taken by someone else.
func (l *redisLock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("failed to release lock %s: %w", l.key, err)
	}
	return nil
}
