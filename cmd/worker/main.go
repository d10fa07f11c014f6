package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/salesops/basket-engine/internal/consumers/orderevents"
	"github.com/salesops/basket-engine/internal/engine"
	"github.com/salesops/basket-engine/internal/ops"
	"github.com/salesops/basket-engine/pkg/config"
	"github.com/salesops/basket-engine/pkg/db"
	"github.com/salesops/basket-engine/pkg/idempotency"
	"github.com/salesops/basket-engine/pkg/logger"
	"github.com/salesops/basket-engine/pkg/migrate"
	"github.com/salesops/basket-engine/pkg/pubsub"
	"github.com/salesops/basket-engine/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "worker"

	logg = logger.FromConfig("worker", cfg.App, nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub", err)
		}
	}()

	eng, err := engine.New(ctx, engine.Params{
		Config:     cfg,
		Logger:     logg,
		DB:         dbClient,
		Redis:      redisClient,
		Registerer: prometheus.DefaultRegisterer,
	})
	if err != nil {
		logg.Error(ctx, "failed to build routing engine", err)
		os.Exit(1)
	}

	guard, err := idempotency.NewGuard(redisClient, idempotency.DefaultTTL)
	if err != nil {
		logg.Error(ctx, "failed to create idempotency guard", err)
		os.Exit(1)
	}

	subscription := pubsubClient.OrderEventsSubscriber()
	if subscription == nil {
		logg.Error(ctx, "order events subscription not configured", errors.New(config.EnvOrderEventsSubscription+" is empty"))
		os.Exit(1)
	}

	consumer, err := orderevents.NewConsumer(orderevents.Params{
		Subscription: subscription,
		Router:       eng.Router,
		Assigner:     eng.Assigner,
		Dedup:        guard,
		Logger:       logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create order events consumer", err)
		os.Exit(1)
	}

	checks := map[string]ops.Check{
		"database": dbClient.Ping,
		"redis":    redisClient.Ping,
		"pubsub":   pubsubClient.Ping,
	}

	service, err := NewService(ServiceParams{
		Logger:   logg,
		Checks:   checks,
		Consumer: consumer,
	})
	if err != nil {
		logg.Error(ctx, "failed to create worker service", err)
		os.Exit(1)
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting worker")

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return ops.Serve(gctx, cfg.Ops.Addr, ops.NewRouter(ops.Params{
			Env:          cfg.App.Env,
			Service:      cfg.Service.Kind,
			Logger:       logg,
			ReadyTimeout: cfg.Ops.ReadyTimeout,
			Checks:       checks,
		}), logg)
	})
	group.Go(func() error {
		return service.Run(gctx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "worker shutting down gracefully")
}
