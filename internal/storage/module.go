package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/latticefi/dexcore/internal/architecture/fx/resilience"
	"github.com/latticefi/dexcore/internal/architecture/fx/workerpool"
	"github.com/latticefi/dexcore/internal/config"
	"github.com/latticefi/dexcore/internal/storage/cold"
	"github.com/latticefi/dexcore/internal/storage/hot"
	"github.com/latticefi/dexcore/internal/storage/warm"
)

// Module wires the tiered storage substrate for fx-based assembly in
// cmd/coreengine, reusing the teacher's worker pool and circuit breaker
// factories as dependencies rather than standalone singletons.
var Module = fx.Options(
	workerpool.Module,
	resilience.Module,
	fx.Provide(
		newRedisClient,
		newPostgresDB,
		newHotStore,
		newWarmRepository,
		newColdArchive,
		newOrchestrator,
	),
	fx.Invoke(registerArchivalTicker),
)

func newRedisClient(cfg *config.Config) *redis.Client {
	if cfg.Storage.Redis.Host == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Storage.Redis.Host, cfg.Storage.Redis.Port),
		Password: cfg.Storage.Redis.Password,
		DB:       cfg.Storage.Redis.DB,
	})
}

func newPostgresDB(cfg *config.Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.Storage.Postgres.Host, cfg.Storage.Postgres.Port, cfg.Storage.Postgres.User,
		cfg.Storage.Postgres.Password, cfg.Storage.Postgres.Database)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("storage: opening postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.Storage.Postgres.Max)
	return db, nil
}

func newHotStore(cfg *config.Config, redisClient *redis.Client, logger *zap.Logger) *hot.Store {
	ttl := time.Duration(cfg.Storage.HotTTLSeconds) * time.Second
	return hot.New(ttl, redisClient, logger)
}

func newWarmRepository(db *gorm.DB, logger *zap.Logger) (*warm.Repository, error) {
	return warm.New(db, logger)
}

func newColdArchive(logger *zap.Logger) (*cold.Archive, error) {
	return cold.New(cold.NewMemBlockstore(), logger)
}

func newOrchestrator(
	hotStore *hot.Store,
	warmRepo *warm.Repository,
	coldArchive *cold.Archive,
	cb *resilience.CircuitBreakerFactory,
	pool *workerpool.WorkerPoolFactory,
	cfg *config.Config,
	logger *zap.Logger,
) *Orchestrator {
	threshold := time.Duration(cfg.Storage.Archival.ThresholdDays) * 24 * time.Hour
	return New(hotStore, warmRepo, coldArchive, cb, pool, threshold, cfg.Storage.Archival.BatchSize, logger)
}

// registerArchivalTicker runs the archival and reconciliation sweeps on a
// fixed interval for the life of the process, grounded on the teacher's
// fx.Lifecycle OnStart/OnStop hook idiom (see resilience/module.go).
func registerArchivalTicker(lc fx.Lifecycle, orch *Orchestrator, logger *zap.Logger) {
	stop := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				ticker := time.NewTicker(1 * time.Hour)
				defer ticker.Stop()
				for {
					select {
					case <-stop:
						return
					case <-ticker.C:
						if err := orch.RunArchivalSweep(context.Background()); err != nil {
							logger.Warn("storage: archival sweep dispatch failed", zap.Error(err))
						}
						if err := orch.Reconcile(context.Background()); err != nil {
							logger.Warn("storage: reconcile dispatch failed", zap.Error(err))
						}
					}
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			close(stop)
			return nil
		},
	})
}
