package cache

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"platform-core/internal/config"
)

// ErrMiss is returned by Get when the key is absent (or the cache is disabled).
var ErrMiss = errors.New("cache miss")

// Cache wraps the process-wide Redis client. All methods are safe to call on
// a nil *Cache: reads miss, writes and publishes are dropped. That keeps the
// service functional when Redis is unconfigured or down.
type Cache struct {
	client *redis.Client
}

// New connects to Redis and verifies the connection with a ping.
func New(ctx context.Context, cfg config.RedisConfig) (*Cache, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Cache{client: client}, nil
}

// Close releases the underlying connection pool.
func (c *Cache) Close() {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Close(); err != nil {
		log.Printf("ERROR: close redis client: %v", err)
	}
}

// Get returns the cached string value for key, or ErrMiss.
func (c *Cache) Get(ctx context.Context, key string) (string, error) {
	if c == nil || c.client == nil {
		return "", ErrMiss
	}
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrMiss
	}
	if err != nil {
		return "", fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, nil
}

// Set stores value under key. A zero ttl means no expiry.
func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if c == nil || c.client == nil {
		return nil
	}
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Missing keys are not an error.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if c == nil || c.client == nil || len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Publish sends message on channel for any live subscribers.
func (c *Cache) Publish(ctx context.Context, channel, message string) error {
	if c == nil || c.client == nil {
		return nil
	}
	if err := c.client.Publish(ctx, channel, message).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", channel, err)
	}
	return nil
}

// Enabled reports whether a Redis connection is configured.
func (c *Cache) Enabled() bool {
	return c != nil && c.client != nil
}

// Healthy reports whether the Redis connection answers a ping.
func (c *Cache) Healthy(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("redis disabled")
	}
	return c.client.Ping(ctx).Err()
}
