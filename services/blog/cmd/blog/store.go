package main

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/example/blog-platform/internal/platform/config"
	"github.com/example/blog-platform/internal/platform/db"
	"github.com/example/blog-platform/internal/platform/run"
	"github.com/example/blog-platform/services/blog/internal/cache"
	"github.com/example/blog-platform/services/blog/internal/comments"
	"github.com/example/blog-platform/services/blog/internal/docstore"
)

// initStore selects the document store backend.
// In production (APP_ENV=production) it requires a working Postgres connection
// and terminates the process otherwise.
func initStore(cfg config.AppConfig, log *zap.Logger, runner *run.Runner) docstore.Store {
	fail := func(msg string, fields ...zap.Field) docstore.Store {
		if cfg.IsProduction() {
			log.Error(msg, fields...)
			_ = log.Sync()
			os.Exit(1)
		}
		log.Warn(msg+", using in-memory store (development only)", fields...)
		return docstore.NewMemoryStore()
	}

	if cfg.Store.DatabaseURL == "" {
		return fail("DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pool, err := db.Open(ctx, cfg.Store.DatabaseURL, db.PoolOptions{})
	if err != nil {
		return fail("postgres unavailable", zap.Error(err))
	}
	pg := docstore.NewPostgresStore(pool)
	if err := pg.Migrate(ctx); err != nil {
		pool.Close()
		return fail("schema migration failed", zap.Error(err))
	}
	runner.OnShutdown("postgres", func(context.Context) error {
		pool.Close()
		return nil
	})

	log.Info("document store: postgres")
	return docstore.NewResilient(pg, docstore.ResilientOptions{
		Timeout:    cfg.Store.Timeout,
		MaxRetries: cfg.Store.MaxRetries,
		Logger:     log.Named("docstore"),
	})
}

// initCache picks Redis when REDIS_URL is set, otherwise a process-local
// cache. A dead Redis is not fatal: thread reads just go to the store.
func initCache(cfg config.AppConfig, log *zap.Logger, runner *run.Runner) comments.Cache {
	if cfg.RedisURL == "" {
		return cache.NewMemory(cfg.CacheTTL)
	}
	rc, err := cache.NewRedis(cfg.RedisURL, cfg.CacheTTL)
	if err != nil {
		log.Warn("invalid REDIS_URL, using in-memory thread cache", zap.Error(err))
		return cache.NewMemory(cfg.CacheTTL)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rc.Ping(ctx); err != nil {
		log.Warn("redis ping failed, using in-memory thread cache", zap.Error(err))
		_ = rc.Close()
		return cache.NewMemory(cfg.CacheTTL)
	}
	runner.OnShutdown("redis", func(context.Context) error { return rc.Close() })
	log.Info("thread cache: redis")
	return rc
}
