package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/salesops/basket-engine/internal/ops"
	"github.com/salesops/basket-engine/internal/relay"
	"github.com/salesops/basket-engine/pkg/config"
	"github.com/salesops/basket-engine/pkg/db"
	"github.com/salesops/basket-engine/pkg/logger"
	"github.com/salesops/basket-engine/pkg/metrics"
	"github.com/salesops/basket-engine/pkg/migrate"
	"github.com/salesops/basket-engine/pkg/outbox"
	"github.com/salesops/basket-engine/pkg/outbox/registry"
	"github.com/salesops/basket-engine/pkg/pubsub"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "outbox-publisher"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "outbox-publisher"

	logg = logger.FromConfig("outbox-publisher", cfg.App, nil)

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

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub client", err)
		}
	}()

	eventRegistry, err := registry.New(cfg.PubSub)
	if err != nil {
		logg.Error(ctx, "failed to build event registry", err)
		os.Exit(1)
	}

	sink := relay.NewPubSubSink(pubsubClient)
	defer sink.Stop()

	publisher, err := relay.New(relay.Params{
		Config:   cfg.Outbox,
		Store:    outbox.NewRepository(dbClient.DB()),
		DB:       dbClient,
		Registry: eventRegistry,
		Sink:     sink,
		Metrics:  metrics.NewOutboxMetrics(prometheus.DefaultRegisterer),
		Logger:   logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create outbox relay", err)
		os.Exit(1)
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting outbox publisher")

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return ops.Serve(gctx, cfg.Ops.Addr, ops.NewRouter(ops.Params{
			Env:          cfg.App.Env,
			Service:      cfg.Service.Kind,
			Logger:       logg,
			ReadyTimeout: cfg.Ops.ReadyTimeout,
			Checks: map[string]ops.Check{
				"database": dbClient.Ping,
				"pubsub":   pubsubClient.Ping,
			},
		}), logg)
	})
	group.Go(func() error {
		return publisher.Run(gctx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox publisher stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "outbox publisher shutting down gracefully")
}
