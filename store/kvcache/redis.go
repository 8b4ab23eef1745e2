// Package kvcache provides the redis-backed key-value cache with TTL used
// for instant-match result caching.
package kvcache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/refind-ai/refind/internal/profile"
)

// Client is a thin wrapper around a redis connection. A missing key is not
// an error: Get returns found=false.
type Client struct {
	rdb *redis.Client
}

// New creates a redis cache client from the profile. The connection is
// lazy; use Ping to verify reachability.
func New(p *profile.Profile) *Client {
	return &Client{
		rdb: redis.NewClient(&redis.Options{
			Addr:         p.RedisAddr,
			Password:     p.RedisPassword,
			DB:           p.RedisDB,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
		}),
	}
}

// Get returns the value stored under key.
func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "redis get failed for key %s", key)
	}
	return value, true, nil
}

// SetWithTTL stores value under key with the given expiration. A
// non-positive ttl disables caching for the write.
func (c *Client) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return errors.Wrapf(err, "redis set failed for key %s", key)
	}
	return nil
}

// Delete removes key.
func (c *Client) Delete(ctx context.Context, key string) error {
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		return errors.Wrapf(err, "redis delete failed for key %s", key)
	}
	return nil
}

// Ping tests connectivity to redis.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, "redis ping failed")
	}
	return nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}
