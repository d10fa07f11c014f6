package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/salesops/basket-engine/internal/cron"
	"github.com/salesops/basket-engine/internal/engine"
	"github.com/salesops/basket-engine/internal/ops"
	"github.com/salesops/basket-engine/pkg/config"
	"github.com/salesops/basket-engine/pkg/db"
	"github.com/salesops/basket-engine/pkg/logger"
	"github.com/salesops/basket-engine/pkg/metrics"
	"github.com/salesops/basket-engine/pkg/migrate"
	"github.com/salesops/basket-engine/pkg/outbox"
	"github.com/salesops/basket-engine/pkg/redis"
)

const lockName = "cron-worker"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.FromConfig("cron-worker", cfg.App, nil)

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	eng, err := engine.New(context.Background(), engine.Params{
		Config:     cfg,
		Logger:     logg,
		DB:         dbClient,
		Redis:      redisClient,
		Registerer: prometheus.DefaultRegisterer,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build routing engine", err)
		os.Exit(1)
	}

	agingJob, err := cron.NewBasketAgingJob(cron.BasketAgingJobParams{
		Logger:  logg,
		Sweeper: eng.Sweeper,
		DryRun:  cfg.FeatureFlags.AgingDryRun,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create basket aging job", err)
		os.Exit(1)
	}
	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:          logg,
		DB:              dbClient,
		Repository:      outbox.NewRepository(dbClient.DB()),
		Retention:       cfg.Outbox.RetentionDays,
		ParkedRetention: cfg.Outbox.ParkedRetentionDays,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockScope(cfg.App.Env), lockName), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	registry, err := cron.NewRegistry(agingJob, retentionJob)
	if err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return ops.Serve(gctx, cfg.Ops.Addr, ops.NewRouter(ops.Params{
			Env:          cfg.App.Env,
			Service:      cfg.Service.Kind,
			Logger:       logg,
			ReadyTimeout: cfg.Ops.ReadyTimeout,
			Checks: map[string]ops.Check{
				"database": dbClient.Ping,
				"redis":    redisClient.Ping,
			},
		}), logg)
	})
	group.Go(func() error {
		return service.Run(gctx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

// lockScope keeps environments sharing one Redis from blocking each other.
func lockScope(env string) string {
	if env == "" {
		return "local"
	}
	return env
}
