package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/salesops/basket-engine/internal/engine"
	"github.com/salesops/basket-engine/pkg/config"
	"github.com/salesops/basket-engine/pkg/db"
	"github.com/salesops/basket-engine/pkg/logger"
	"github.com/salesops/basket-engine/pkg/outbox"
	"github.com/salesops/basket-engine/pkg/redis"
)

// errPartial marks a run that finished but failed for some customers.
var errPartial = errors.New("completed with customer failures")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCommand(&app{}).ExecuteContext(ctx)
	stop()
	switch {
	case err == nil:
	case errors.Is(err, errPartial):
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	default:
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app holds what PersistentPreRunE opened for the chosen subcommand.
type app struct {
	noCache bool

	logg    *logger.Logger
	eng     *engine.Engine
	outbox  *outbox.Repository
	closers []func() error
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:               "basketctl",
		Short:             "Operate the customer basket engine",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.open,
		PersistentPostRun: func(*cobra.Command, []string) { a.close() },
	}
	root.PersistentFlags().BoolVar(&a.noCache, "no-cache", false, "read the basket catalog from the database only")

	root.AddCommand(
		sweepCommand(a),
		releaseCommand(a),
		distributeCommand(a),
		reclaimCommand(a),
		catalogCommand(a),
		historyCommand(a),
		dlqCommand(a),
	)
	return root
}

func (a *app) open(cmd *cobra.Command, _ []string) error {
	if a.eng != nil {
		return nil
	}
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.Service.Kind = "basketctl"
	a.logg = logger.FromConfig("basketctl", cfg.App, os.Stderr)
	ctx := cmd.Context()

	dbClient, err := db.New(ctx, cfg.DB, a.logg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	a.closers = append(a.closers, dbClient.Close)
	a.outbox = outbox.NewRepository(dbClient.DB())

	var redisClient *redis.Client
	if !a.noCache && cfg.FeatureFlags.CatalogCaching {
		redisClient, err = redis.New(ctx, cfg.Redis, a.logg)
		if err != nil {
			a.logg.Warn(ctx, "redis unavailable, reading catalog from database: "+err.Error())
			redisClient = nil
		} else {
			a.closers = append(a.closers, redisClient.Close)
		}
	}

	a.eng, err = engine.New(ctx, engine.Params{
		Config: cfg,
		Logger: a.logg,
		DB:     dbClient,
		Redis:  redisClient,
	})
	if err != nil {
		a.close()
		return fmt.Errorf("build routing engine: %w", err)
	}
	return nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && a.logg != nil {
			a.logg.Error(context.Background(), "close failed", err)
		}
	}
	a.closers = nil
}
