// Package seencache remembers accepted content hashes in Redis across runs.
package seencache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"FeedIngestor/internal/ports"
)

const (
	defaultPrefix = "feedingestor:seen:"
	defaultTTL    = 72 * time.Hour
	pingTimeout   = 5 * time.Second
)

// client is the subset of redis.Cmdable the cache uses.
type client interface {
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// Config addresses the Redis instance.
type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

// RedisCache stores one TTL'd key per content hash.
type RedisCache struct {
	client client
	prefix string
	ttl    time.Duration
}

var _ ports.SeenCache = (*RedisCache)(nil)

// Dial connects to Redis and verifies it with a ping. The returned closer releases the pool.
func Dial(ctx context.Context, cfg Config) (*RedisCache, func() error, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("connect to redis at %s: %w", cfg.Addr, err)
	}
	return newRedisCache(rdb, cfg.KeyPrefix, cfg.TTL), rdb.Close, nil
}

func newRedisCache(c client, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = defaultPrefix
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisCache{client: c, prefix: prefix, ttl: ttl}
}

// Seen reports whether the hash was marked within the TTL.
func (c *RedisCache) Seen(ctx context.Context, hash string) (bool, error) {
	n, err := c.client.Exists(ctx, c.prefix+hash).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// MarkSeen sets the hash key with the configured TTL.
func (c *RedisCache) MarkSeen(ctx context.Context, hash string) error {
	if err := c.client.Set(ctx, c.prefix+hash, 1, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
