package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/briangormanly/momento/model"
)

// SearchCache is an optional, process-external read-through cache of text
// search results (C10), adapted from the teacher's Redis-backed
// CacheRepository. It is a performance aid only - a miss or a disabled
// cache always falls through to the entity repository, never blocking a
// search.
type SearchCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSearchCache connects to Redis at url and returns a cache with the given
// result TTL.
func NewSearchCache(url string, ttl time.Duration) (*SearchCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &SearchCache{client: client, ttl: ttl}, nil
}

func cacheKey(query string, limit int) string {
	return fmt.Sprintf("search:%d:%s", limit, query)
}

// Get returns the cached entities for (query, limit), or false on a miss.
func (c *SearchCache) Get(ctx context.Context, query string, limit int) ([]model.Entity, bool) {
	data, err := c.client.Get(ctx, cacheKey(query, limit)).Bytes()
	if err != nil {
		return nil, false
	}
	var entities []model.Entity
	if err := json.Unmarshal(data, &entities); err != nil {
		return nil, false
	}
	return entities, true
}

// Set stores entities under (query, limit) for the cache's configured TTL.
func (c *SearchCache) Set(ctx context.Context, query string, limit int, entities []model.Entity) error {
	data, err := json.Marshal(entities)
	if err != nil {
		return fmt.Errorf("failed to marshal search results: %w", err)
	}
	return c.client.Set(ctx, cacheKey(query, limit), data, c.ttl).Err()
}

// Close releases the underlying Redis connection.
func (c *SearchCache) Close() error {
	return c.client.Close()
}
