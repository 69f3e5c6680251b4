package narrative

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"

	"github.com/cbc-interpretation-server/internal/domain"
)

// Cache stores generated narratives keyed by report fingerprint.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, narrative string) error
}

// MemoryCache is an in-process LRU with per-entry expiry.
type MemoryCache struct {
	lru *expirable.LRU[string, string]
}

// NewMemoryCache creates a memory cache holding at most size entries for ttl each.
func NewMemoryCache(size int, ttl time.Duration) (*MemoryCache, error) {
	if size <= 0 {
		return nil, domain.NewValidationError("cache.size", "must be positive", size)
	}
	return &MemoryCache{lru: expirable.NewLRU[string, string](size, nil, ttl)}, nil
}

func (c *MemoryCache) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := c.lru.Get(key)
	return v, ok, nil
}

func (c *MemoryCache) Set(_ context.Context, key, narrative string) error {
	c.lru.Add(key, narrative)
	return nil
}

// Len returns the number of live entries.
func (c *MemoryCache) Len() int {
	return c.lru.Len()
}

// RedisCache shares narratives between server instances.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache connects to the configured Redis URL and verifies the connection.
func NewRedisCache(ctx context.Context, config domain.CacheConfig) (*RedisCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	if config.PoolTimeout > 0 {
		opts.PoolTimeout = config.PoolTimeout
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{client: client, prefix: config.KeyPrefix, ttl: config.DefaultTTL}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get narrative cache: %w", err)
	}
	return val, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key, narrative string) error {
	return c.client.Set(ctx, c.prefix+key, narrative, c.ttl).Err()
}

// Close releases the connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// TieredCache reads the memory tier first and backfills it from the shared tier.
type TieredCache struct {
	memory *MemoryCache
	shared Cache
}

// NewTieredCache combines a memory cache with an optional shared cache.
func NewTieredCache(memory *MemoryCache, shared Cache) *TieredCache {
	return &TieredCache{memory: memory, shared: shared}
}

func (c *TieredCache) Get(ctx context.Context, key string) (string, bool, error) {
	if v, ok, _ := c.memory.Get(ctx, key); ok {
		return v, true, nil
	}
	if c.shared == nil {
		return "", false, nil
	}
	v, ok, err := c.shared.Get(ctx, key)
	if err != nil || !ok {
		return "", false, err
	}
	_ = c.memory.Set(ctx, key, v)
	return v, true, nil
}

func (c *TieredCache) Set(ctx context.Context, key, narrative string) error {
	_ = c.memory.Set(ctx, key, narrative)
	if c.shared == nil {
		return nil
	}
	return c.shared.Set(ctx, key, narrative)
}
