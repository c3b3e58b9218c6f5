package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zatekoja/medisync/internal/infrastructure/observability"
	"github.com/zatekoja/medisync/pkg/config"
	"github.com/zatekoja/medisync/pkg/retry"
)

// Client holds the connection used for the response cache, sync state and run locks.
type Client struct {
	client *redis.Client
}

// NewClient connects and pings with a short backoff. Redis is optional for the
// pipelines, so callers get an error quickly instead of a minute of retries.
func NewClient(ctx context.Context, cfg *config.RedisConfig) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	logger := observability.GetLogger()
	err := retry.DoWithLog(ctx, retry.QuickConfig(), "Redis",
		func() error {
			pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			return client.Ping(pingCtx).Err()
		},
		func(attempt int, err error, nextDelay time.Duration) {
			logger.Warn().Err(err).Int("attempt", attempt).Dur("next_delay", nextDelay).Msg("Redis not reachable, retrying")
		},
	)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.RedisAddr(), err)
	}

	logger.Info().Str("addr", cfg.RedisAddr()).Int("db", cfg.DB).Msg("connected to Redis")
	return &Client{client: client}, nil
}

// Client returns the underlying client
func (c *Client) Client() *redis.Client {
	return c.client
}

// Close closes the connection
func (c *Client) Close() error {
	return c.client.Close()
}
