package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/graphloom/graphloom/kg"
)

// RedisConfig configures the Redis-backed extraction cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// TTL bounds how long cached LLM results live. Zero means no
	// expiry.
	TTL time.Duration
}

// RedisCache is a kg.ExtractionCache backed by Redis, for deployments
// that share one cache across engine instances.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache connects a Redis extraction cache. The connection is
// lazy; errors surface on first use.
func NewRedisCache(cfg RedisConfig) *RedisCache {
	return &RedisCache{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		ttl: cfg.TTL,
	}
}

// cacheKey namespaces entries the same way the SQLite cache's primary
// key does.
func cacheKey(projectID, cacheType, contentHash string) string {
	return fmt.Sprintf("graphloom:cache:%s:%s:%s", projectID, cacheType, contentHash)
}

// cachedValue is the JSON payload stored per key.
type cachedValue struct {
	Result     string `json:"result"`
	ChunkID    string `json:"chunk_id,omitempty"`
	TokensUsed int    `json:"tokens_used,omitempty"`
}

// Get looks up a memoised LLM result.
func (c *RedisCache) Get(ctx context.Context, projectID, cacheType, contentHash string) (string, bool, error) {
	data, err := c.client.Get(ctx, cacheKey(projectID, cacheType, contentHash)).Bytes()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis cache get: %w", err)
	}

	var v cachedValue
	if err := json.Unmarshal(data, &v); err != nil {
		return "", false, fmt.Errorf("decoding cached value: %w", err)
	}
	return v.Result, true, nil
}

// Store upserts a memoised LLM result. Concurrent writers of the same
// key converge on the last SET.
func (c *RedisCache) Store(ctx context.Context, entry kg.CacheEntry) error {
	data, err := json.Marshal(cachedValue{
		Result:     entry.Result,
		ChunkID:    entry.ChunkID,
		TokensUsed: entry.TokensUsed,
	})
	if err != nil {
		return err
	}
	key := cacheKey(entry.ProjectID, entry.CacheType, entry.ContentHash)
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis cache set: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
