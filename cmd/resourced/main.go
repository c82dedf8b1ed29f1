package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	httpadapter "github.com/reliefmap/disaster-resource-service/internal/adapter/http"
	kafkaadapter "github.com/reliefmap/disaster-resource-service/internal/adapter/kafka"
	"github.com/reliefmap/disaster-resource-service/internal/adapter/overpass"
	"github.com/reliefmap/disaster-resource-service/internal/adapter/postgres"
	"github.com/reliefmap/disaster-resource-service/internal/adapter/rediscache"
	"github.com/reliefmap/disaster-resource-service/internal/config"
	"github.com/reliefmap/disaster-resource-service/internal/domain"
	"github.com/reliefmap/disaster-resource-service/internal/observability"
	"github.com/reliefmap/disaster-resource-service/internal/pipeline"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	store, err := postgres.Connect(cfg.DatabaseURL, strings.EqualFold(cfg.LogLevel, "debug"))
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	var cache domain.ResourceCache
	var redisCache *rediscache.Cache
	switch cfg.CacheBackend {
	case config.CacheBackendRedis:
		redisCache = rediscache.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(context.Background()); err != nil {
			logger.Error("failed to connect to redis", "error", err, "addr", cfg.RedisAddr)
			os.Exit(1)
		}
		cache = redisCache
		logger.Info("cache backend: redis", "addr", cfg.RedisAddr)
	default:
		cache = postgres.NewCache(store, nil)
		logger.Info("cache backend: postgres")
	}

	querier := overpass.NewClient(cfg.OverpassURL, cfg.OverpassTimeout, metrics, logger)

	reader := kafkaadapter.NewReader(cfg, logger)
	writer := kafkaadapter.NewWriter(cfg, logger)

	p := pipeline.New(store, cache, querier, writer, nil, logger, metrics, cfg.CacheTTL, cfg.RadiusMeters)
	worker := pipeline.NewWorker(reader, p)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, worker, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start approval worker.
	go func() {
		if err := worker.Run(ctx); err != nil {
			logger.Error("worker error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}
	if redisCache != nil {
		if err := redisCache.Close(); err != nil {
			logger.Error("redis close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
