// Package cache memoizes ranked search results keyed by a canonical form of
// (index, query, filters, limit). Mutating an index purges every entry for
// that index; caching never changes results, only latency.
package cache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fastsearch/fastsearch/internal/engine/index"
	"github.com/fastsearch/fastsearch/internal/engine/tokenizer"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "search:"

// Store is a cache backend. Implementations must be safe for concurrent use,
// and Get must return results the caller may retain and modify without
// affecting the stored entry.
type Store interface {
	Get(ctx context.Context, key string) ([]index.SearchResult, bool)
	Set(ctx context.Context, key string, results []index.SearchResult)
	DeleteByPrefix(ctx context.Context, prefix string) int64
	Clear(ctx context.Context)
}

// ResultCache wraps a Store with canonical key construction, hit/miss
// counters, and singleflight collapsing of concurrent identical misses.
//
// Each index carries an invalidation generation. A compute captures the
// generation before it runs and its results are stored only if no
// invalidation happened in between, so a search racing a mutation can never
// resurrect pre-mutation results after the mutating call returned.
type ResultCache struct {
	store  Store
	group  singleflight.Group
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64

	genMu sync.Mutex
	gens  map[string]uint64
}

// New creates a ResultCache over the given backend.
func New(store Store) *ResultCache {
	return &ResultCache{
		store:  store,
		logger: slog.Default().With("component", "result-cache"),
		gens:   make(map[string]uint64),
	}
}

// GetOrCompute returns the cached results for the canonical key, or invokes
// compute on a miss, stores the outcome, and returns it. The boolean reports
// whether the call was served from cache. Errors from compute are returned
// without being cached.
func (c *ResultCache) GetOrCompute(
	ctx context.Context,
	indexName, query string,
	filters []index.Filter,
	limit int,
	compute func() ([]index.SearchResult, error),
) ([]index.SearchResult, bool, error) {
	key := Key(indexName, query, filters, limit)
	if results, ok := c.store.Get(ctx, key); ok {
		c.hits.Add(1)
		c.logger.Debug("cache hit", "index", indexName, "key", key)
		return results, true, nil
	}
	c.misses.Add(1)

	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		if results, ok := c.store.Get(ctx, key); ok {
			return results, nil
		}
		gen := c.generation(indexName)
		results, err := compute()
		if err != nil {
			return nil, err
		}
		c.setIfCurrent(ctx, indexName, key, gen, results)
		return results, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.([]index.SearchResult), false, nil
}

// Invalidate purges every cache entry belonging to the given index. The
// generation is advanced before the purge so an in-flight compute that began
// against the old index state cannot store its results afterwards.
func (c *ResultCache) Invalidate(ctx context.Context, indexName string) {
	c.genMu.Lock()
	c.gens[indexName]++
	c.genMu.Unlock()

	deleted := c.store.DeleteByPrefix(ctx, indexKeyPrefix(indexName))
	if deleted > 0 {
		c.logger.Debug("cache invalidated", "index", indexName, "keys_deleted", deleted)
	}
}

// Clear purges every entry across all indices.
func (c *ResultCache) Clear(ctx context.Context) {
	c.store.Clear(ctx)
	c.logger.Info("cache cleared")
}

// generation returns the current invalidation generation for an index.
func (c *ResultCache) generation(indexName string) uint64 {
	c.genMu.Lock()
	defer c.genMu.Unlock()
	return c.gens[indexName]
}

// setIfCurrent stores results only if the index has not been invalidated
// since gen was captured. The lock is held across the store call so an
// invalidation cannot slip between the check and the write.
func (c *ResultCache) setIfCurrent(ctx context.Context, indexName, key string, gen uint64, results []index.SearchResult) {
	c.genMu.Lock()
	defer c.genMu.Unlock()
	if c.gens[indexName] != gen {
		c.logger.Debug("discarding stale compute", "index", indexName, "key", key)
		return
	}
	c.store.Set(ctx, key, results)
}

// Stats returns cumulative hit and miss counts.
func (c *ResultCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Key builds the canonical cache key for a search. Query terms are
// tokenized and sorted, filters are sorted by field, so semantically
// identical queries share an entry regardless of incidental formatting.
func Key(indexName, query string, filters []index.Filter, limit int) string {
	terms := tokenizer.Tokenize(query)
	sort.Strings(terms)

	filterParts := make([]string, 0, len(filters))
	for _, f := range filters {
		switch {
		case f.Exact != nil:
			filterParts = append(filterParts, fmt.Sprintf("%s=%v", f.Field, f.Exact))
		default:
			filterParts = append(filterParts, fmt.Sprintf("%s=[%v..%v]", f.Field, f.Min, f.Max))
		}
	}
	sort.Strings(filterParts)

	raw := fmt.Sprintf("%s|%s|limit=%d",
		strings.Join(terms, ","),
		strings.Join(filterParts, "&"),
		limit,
	)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", indexKeyPrefix(indexName), hash[:16])
}

func indexKeyPrefix(indexName string) string {
	return keyPrefix + indexName + ":"
}
