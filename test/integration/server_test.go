// Package integration verifies the fully wired HTTP surface: real handlers,
// middleware chain, health endpoints, and the result cache, with external
// dependencies (Redis) skipped when unavailable.
//
// Run with:
//
//	go test -v ./test/integration/...
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/fastsearch/fastsearch/internal/engine"
	"github.com/fastsearch/fastsearch/internal/engine/cache"
	"github.com/fastsearch/fastsearch/internal/server"
	"github.com/fastsearch/fastsearch/pkg/config"
	"github.com/fastsearch/fastsearch/pkg/health"
	"github.com/fastsearch/fastsearch/pkg/middleware"
	pkgredis "github.com/fastsearch/fastsearch/pkg/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newPlatformServer assembles the same handler, middleware, and health
// wiring searchd uses, over an engine with an in-memory result cache.
func newPlatformServer(t *testing.T) *httptest.Server {
	t.Helper()
	eng, err := engine.New(config.EngineConfig{
		DataDir:      t.TempDir(),
		DefaultLimit: 10,
		MaxResults:   100,
	}, engine.WithCache(cache.New(cache.NewMemoryStore(64, time.Minute))))
	require.NoError(t, err)

	checker := health.NewChecker()
	checker.Register("engine", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{Status: health.StatusUp}
	})

	mux := http.NewServeMux()
	server.New(eng).Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(5 * time.Second)(chain)
	chain = middleware.RequestID(chain)

	srv := httptest.NewServer(chain)
	t.Cleanup(srv.Close)
	return srv
}

// skipIfNoRedis skips the test when Redis is unavailable.
func skipIfNoRedis(t *testing.T) *pkgredis.Client {
	t.Helper()
	client, err := pkgredis.NewClient(config.RedisConfig{
		Addr: envOrDefault("TEST_REDIS_ADDR", "localhost:6379"),
		DB:   15,
	})
	if err != nil {
		t.Skipf("skipping integration test: redis unavailable: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func TestEndToEndSearchFlow(t *testing.T) {
	srv := newPlatformServer(t)
	client := srv.Client()

	put := func(t *testing.T, path string, body any) *http.Response {
		t.Helper()
		data, err := json.Marshal(body)
		require.NoError(t, err)
		req, err := http.NewRequest(http.MethodPut, srv.URL+path, bytes.NewReader(data))
		require.NoError(t, err)
		resp, err := client.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	resp := put(t, "/api/v1/indices/articles", map[string]any{
		"mapping": map[string]string{
			"title":     "text",
			"body":      "text",
			"category":  "keyword",
			"published": "date",
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	articles := []struct {
		id     string
		fields map[string]any
	}{
		{"a1", map[string]any{"title": "Search engines explained", "body": "ranking and retrieval", "category": "tech", "published": "2024-01-10"}},
		{"a2", map[string]any{"title": "Cooking for engineers", "body": "recipes and retrieval of flavor", "category": "food", "published": "2024-05-20"}},
		{"a3", map[string]any{"title": "Engine maintenance", "body": "keep your search engine healthy", "category": "tech", "published": "2024-08-01"}},
	}
	for _, a := range articles {
		resp := put(t, "/api/v1/indices/articles/documents/"+a.id, a.fields)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	t.Run("ranked query with filter", func(t *testing.T) {
		resp, err := client.Get(srv.URL + "/api/v1/indices/articles/search?q=search+engine&filter=category:tech")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body struct {
			Total   int `json:"total"`
			Results []struct {
				DocID string  `json:"doc_id"`
				Score float64 `json:"score"`
			} `json:"results"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		require.Equal(t, 2, body.Total)
		for _, r := range body.Results {
			assert.Positive(t, r.Score)
		}
	})

	t.Run("date range filter", func(t *testing.T) {
		resp, err := client.Get(srv.URL + "/api/v1/indices/articles/search?q=engine&filter=published:2024-04-01..2024-12-31")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body struct {
			Total int `json:"total"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, 2, body.Total)
	})

	t.Run("responses carry a request ID", func(t *testing.T) {
		resp, err := client.Get(srv.URL + "/api/v1/indices")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	})

	t.Run("request IDs are honored when supplied", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/indices", nil)
		require.NoError(t, err)
		req.Header.Set("X-Request-ID", "test-request-42")
		resp, err := client.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, "test-request-42", resp.Header.Get("X-Request-ID"))
	})

	t.Run("health endpoints report up", func(t *testing.T) {
		for _, path := range []string{"/health/live", "/health/ready"} {
			resp, err := client.Get(srv.URL + path)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		}
	})
}

func TestRedisBackedResultCache(t *testing.T) {
	client := skipIfNoRedis(t)
	ctx := context.Background()

	eng, err := engine.New(config.EngineConfig{
		DataDir:      t.TempDir(),
		DefaultLimit: 10,
		MaxResults:   100,
	}, engine.WithCache(cache.New(cache.NewRedisStore(client, time.Minute))))
	require.NoError(t, err)

	indexName := fmt.Sprintf("it-%d", time.Now().UnixNano())
	require.NoError(t, eng.CreateIndex(indexName, map[string]string{"name": "text"}))
	t.Cleanup(func() { eng.DeleteIndex(ctx, indexName) })

	require.NoError(t, eng.IndexDocument(ctx, indexName, "d1", map[string]any{"name": "cached result"}))

	first, err := eng.Search(ctx, indexName, "cached", nil, 10)
	require.NoError(t, err)
	second, err := eng.Search(ctx, indexName, "cached", nil, 10)
	require.NoError(t, err)

	require.Len(t, second, 1)
	assert.Equal(t, first[0].DocID, second[0].DocID)
	assert.Equal(t, first[0].Score, second[0].Score)

	hits, _ := eng.CacheStats()
	assert.Equal(t, int64(1), hits)

	t.Run("mutation purges redis entries", func(t *testing.T) {
		require.NoError(t, eng.IndexDocument(ctx, indexName, "d2", map[string]any{"name": "cached twice"}))
		results, err := eng.Search(ctx, indexName, "cached", nil, 10)
		require.NoError(t, err)
		assert.Len(t, results, 2)
	})
}
