// Package cache holds shared cache backends.
package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kilianp07/kurir/core/dedup"
)

// RedisConfig configures the Redis connection used for message dedup.
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Prefix   string `json:"prefix"`
}

// RedisDedup records message ids with SET NX so several bot processes share
// one dedup window.
type RedisDedup struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

// DefaultPrefix namespaces message ids when no prefix is configured.
const DefaultPrefix = "kurir:dedup:"

var _ dedup.Cache = (*RedisDedup)(nil)

// NewRedisDedup wraps an existing client.
func NewRedisDedup(rdb *redis.Client, prefix string, ttl time.Duration) *RedisDedup {
	if ttl <= 0 {
		ttl = dedup.DefaultTTL
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RedisDedup{rdb: rdb, ttl: ttl, prefix: prefix}
}

// DialRedisDedup connects using cfg and checks the connection.
func DialRedisDedup(ctx context.Context, cfg RedisConfig, ttl time.Duration) (*RedisDedup, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return NewRedisDedup(rdb, cfg.Prefix, ttl), nil
}

// Seen implements dedup.Cache.
func (c *RedisDedup) Seen(ctx context.Context, id string) (bool, error) {
	set, err := c.rdb.SetNX(ctx, c.prefix+id, 1, c.ttl).Result()
	if err != nil {
		return false, err
	}
	return !set, nil
}

// Close closes the client.
func (c *RedisDedup) Close() error { return c.rdb.Close() }
