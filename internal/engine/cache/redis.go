package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/fastsearch/fastsearch/internal/engine/index"
	pkgredis "github.com/fastsearch/fastsearch/pkg/redis"
)

// RedisStore is a cache backend on a shared Redis instance, letting several
// read-only server processes share one result cache. Backend failures
// degrade to cache misses; they never fail a search.
type RedisStore struct {
	client *pkgredis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisStore creates a RedisStore with the given entry TTL.
func NewRedisStore(client *pkgredis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		ttl:    ttl,
		logger: slog.Default().With("component", "redis-cache"),
	}
}

// Get returns the cached results for key. Note that numeric field values
// round-trip through JSON and come back as float64.
func (s *RedisStore) Get(ctx context.Context, key string) ([]index.SearchResult, bool) {
	data, err := s.client.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			s.logger.Error("cache get failed", "key", key, "error", err)
		}
		return nil, false
	}
	var results []index.SearchResult
	if err := json.Unmarshal([]byte(data), &results); err != nil {
		s.logger.Error("cache unmarshal failed", "key", key, "error", err)
		return nil, false
	}
	return results, true
}

// Set stores results under key with the configured TTL.
func (s *RedisStore) Set(ctx context.Context, key string, results []index.SearchResult) {
	data, err := json.Marshal(results)
	if err != nil {
		s.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := s.client.Set(ctx, key, data, s.ttl); err != nil {
		s.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// DeleteByPrefix removes every key starting with prefix.
func (s *RedisStore) DeleteByPrefix(ctx context.Context, prefix string) int64 {
	deleted, err := s.client.FlushByPattern(ctx, prefix+"*")
	if err != nil {
		s.logger.Error("cache invalidation failed", "prefix", prefix, "error", err)
	}
	return deleted
}

// Clear removes every search cache entry.
func (s *RedisStore) Clear(ctx context.Context) {
	if _, err := s.client.FlushByPattern(ctx, keyPrefix+"*"); err != nil {
		s.logger.Error("cache clear failed", "error", err)
	}
}
