package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fastsearch/fastsearch/internal/engine"
	"github.com/fastsearch/fastsearch/internal/engine/cache"
	"github.com/fastsearch/fastsearch/internal/ingest"
	"github.com/fastsearch/fastsearch/internal/loader"
	"github.com/fastsearch/fastsearch/internal/server"
	"github.com/fastsearch/fastsearch/pkg/config"
	"github.com/fastsearch/fastsearch/pkg/health"
	"github.com/fastsearch/fastsearch/pkg/kafka"
	"github.com/fastsearch/fastsearch/pkg/logger"
	"github.com/fastsearch/fastsearch/pkg/metrics"
	"github.com/fastsearch/fastsearch/pkg/middleware"
	"github.com/fastsearch/fastsearch/pkg/postgres"
	pkgredis "github.com/fastsearch/fastsearch/pkg/redis"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults apply when empty)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting searchd", "port", cfg.Server.Port, "data_dir", cfg.Engine.DataDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	resultCache, redisClient := buildCache(cfg)
	if redisClient != nil {
		defer redisClient.Close()
	}

	opts := make([]engine.Option, 0, 2)
	if resultCache != nil {
		opts = append(opts, engine.WithCache(resultCache))
	}
	if m != nil {
		opts = append(opts, engine.WithMetrics(m))
	}
	eng, err := engine.New(cfg.Engine, opts...)
	if err != nil {
		slog.Error("failed to create engine", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := eng.Close(); err != nil {
			slog.Error("engine close failed", "error", err)
		}
	}()

	var pgClient *postgres.Client
	if cfg.Loader.Enabled {
		pgClient, err = postgres.New(cfg.Postgres)
		if err != nil {
			slog.Error("postgres unavailable, skipping warm load", "error", err)
		} else {
			defer pgClient.Close()
			count, err := loader.New(pgClient, eng).Load(ctx, cfg.Loader.Index, cfg.Loader.Query)
			if err != nil {
				slog.Error("warm load failed", "index", cfg.Loader.Index, "loaded", count, "error", err)
			} else {
				slog.Info("warm load complete", "index", cfg.Loader.Index, "documents", count)
			}
		}
	}

	if cfg.Kafka.Enabled {
		consumer := ingest.New(kafka.NewConsumer(cfg.Kafka, cfg.Kafka.DocumentTopic, ingest.HandleEvent(eng)))
		defer consumer.Close()
		go func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("ingest consumer error", "error", err)
			}
		}()
		slog.Info("kafka ingest enabled", "topic", cfg.Kafka.DocumentTopic)
	}

	checker := health.NewChecker()
	checker.Register("engine", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d indices", len(eng.ListIndices())),
		}
	})
	if redisClient != nil {
		checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
			if err := redisClient.Ping(ctx); err != nil {
				return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
			}
			return health.ComponentHealth{Status: health.StatusUp}
		})
	}

	mux := http.NewServeMux()
	server.New(eng).Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	if m != nil {
		chain = middleware.Metrics(m)(chain)
	}
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.RequestID(chain)

	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("searchd listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("searchd stopped")
}

// buildCache wires the configured result cache backend. A missing Redis is
// downgraded to the in-memory backend so the server still starts.
func buildCache(cfg *config.Config) (*cache.ResultCache, *pkgredis.Client) {
	if !cfg.Cache.Enabled {
		return nil, nil
	}
	if cfg.Cache.Backend == config.CacheBackendRedis {
		client, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, falling back to memory cache", "error", err)
		} else {
			slog.Info("redis result cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Cache.TTL)
			return cache.New(cache.NewRedisStore(client, cfg.Cache.TTL)), client
		}
	}
	slog.Info("memory result cache enabled", "max_entries", cfg.Cache.MaxEntries, "ttl", cfg.Cache.TTL)
	return cache.New(cache.NewMemoryStore(cfg.Cache.MaxEntries, cfg.Cache.TTL)), nil
}
