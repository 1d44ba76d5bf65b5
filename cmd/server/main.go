package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"fuelshift/backend/internal/cache"
	"fuelshift/backend/internal/config"
	"fuelshift/backend/internal/httpapi"
	"fuelshift/backend/internal/logger"
	"fuelshift/backend/internal/observability"
	"fuelshift/backend/internal/scheduler"
	"fuelshift/backend/internal/service"
	"fuelshift/backend/internal/store"
	filestore "fuelshift/backend/internal/store/file"
	"fuelshift/backend/internal/store/memory"
	mongostore "fuelshift/backend/internal/store/mongodb"
	pgstore "fuelshift/backend/internal/store/postgres"
	redisstore "fuelshift/backend/internal/store/redis"
	"fuelshift/backend/internal/summarizer"
)

func main() {
	cfg, err := config.Load(os.Getenv("ENV_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.Must(logger.New(cfg.LogFormat))
	defer func() { _ = log.Sync() }()

	loc, err := cfg.Location()
	if err != nil {
		log.Fatal("invalid timezone", zap.String("timezone", cfg.Timezone), zap.Error(err))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	closers := make([]func() error, 0, 3)

	backend, closeBackend, err := openBackend(ctx, cfg)
	if err != nil {
		log.Fatal("document backend unavailable", zap.String("backend", cfg.StorageBackend), zap.Error(err))
	}
	if closeBackend != nil {
		closers = append(closers, closeBackend)
	}
	log.Info("document backend selected", zap.String("backend", cfg.StorageBackend))

	metrics := observability.NewMetrics()
	docs := store.NewDocuments(backend, logger.Named(log, "store.documents"))
	summaries := buildSummarizer(ctx, cfg, log, &closers)

	svc := service.New(docs, summaries, logger.Named(log, "svc.shift"), metrics, loc)
	if err := svc.Load(ctx); err != nil {
		log.Fatal("failed to load documents", zap.Error(err))
	}

	digest := scheduler.New(cfg.DigestCron, svc, metrics, loc, logger.Named(log, "scheduler"))
	if err := digest.Start(); err != nil {
		log.Fatal("failed to start scheduler", zap.Error(err))
	}

	api := httpapi.New(svc, httpapi.Options{
		AllowedOrigin:    cfg.AllowedOrigin,
		Production:       cfg.IsProduction(),
		SummaryRateLimit: cfg.SummaryRateLimit,
		Metrics:          metrics,
		Logger:           logger.Named(log, "http"),
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.SummaryTimeout + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("fuel shift backend listening", zap.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown error", zap.Error(err))
	}
	digest.Stop()

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Warn("close error", zap.Error(err))
		}
	}

	log.Info("server stopped")
}

// openBackend connects the configured document backend. A configured
// backend that cannot be reached is fatal; there is no silent fallback to
// memory.
func openBackend(ctx context.Context, cfg config.Config) (store.Backend, func() error, error) {
	switch cfg.StorageBackend {
	case config.BackendMemory:
		return memory.New(), nil, nil
	case config.BackendFile:
		fs, err := filestore.New(cfg.DataDir)
		if err != nil {
			return nil, nil, err
		}
		return fs, nil, nil
	case config.BackendRedis:
		rs := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisPrefix)
		if err := rs.Ping(ctx); err != nil {
			_ = rs.Close()
			return nil, nil, err
		}
		return rs, rs.Close, nil
	case config.BackendPostgres:
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return pg, pg.Close, nil
	case config.BackendMongoDB:
		ms, err := mongostore.New(ctx, cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			return nil, nil, err
		}
		return ms, func() error {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return ms.Close(closeCtx)
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// buildSummarizer returns a no-op summarizer when no API key is set. The
// redis summary cache is optional and falls back to no caching.
func buildSummarizer(ctx context.Context, cfg config.Config, log *zap.Logger, closers *[]func() error) summarizer.Summarizer {
	if cfg.AnthropicKey == "" {
		log.Info("ai summaries disabled: ANTHROPIC_API_KEY not set")
		return summarizer.Noop{}
	}

	cacheStore := cache.SummaryCache(cache.NoopSummaryCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisSummaryCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisPrefix)
		if err := redisCache.Ping(ctx); err != nil {
			log.Warn("redis unavailable, summary cache disabled", zap.Error(err))
			_ = redisCache.Close()
		} else {
			cacheStore = redisCache
			*closers = append(*closers, redisCache.Close)
			log.Info("summary cache: redis")
		}
	}

	client := summarizer.NewAnthropicClient(cfg.AnthropicKey, cfg.AnthropicBaseURL, cfg.AnthropicModel, cfg.SummaryTimeout)
	return summarizer.NewEngine(client, cacheStore, cfg.SummaryCacheTTL, cfg.SummaryTimeout, logger.Named(log, "summarizer"))
}
