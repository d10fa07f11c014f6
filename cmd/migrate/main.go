package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/salesops/basket-engine/pkg/config"
	"github.com/salesops/basket-engine/pkg/db"
	"github.com/salesops/basket-engine/pkg/logger"
	"github.com/salesops/basket-engine/pkg/migrate"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type options struct {
	dir string
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Manage the basket engine schema",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.dir, "dir", "", "read migrations from this directory instead of the embedded set")

	root.AddCommand(
		dbCommand(opts, "up", "Apply all pending migrations", cobra.NoArgs,
			func(ctx context.Context, r *migrate.Runner, _ []string) error { return r.Up(ctx) }),
		dbCommand(opts, "down", "Roll back the newest migration", cobra.NoArgs,
			func(ctx context.Context, r *migrate.Runner, _ []string) error { return r.Down(ctx) }),
		dbCommand(opts, "to VERSION", "Migrate up or down to VERSION (YYYYMMDDHHMMSS)", cobra.ExactArgs(1),
			func(ctx context.Context, r *migrate.Runner, args []string) error { return r.To(ctx, args[0]) }),
		dbCommand(opts, "status", "List migrations and whether they are applied", cobra.NoArgs, printStatus),
		createCommand(),
		validateCommand(opts),
	)
	return root
}

type runnerFunc func(ctx context.Context, r *migrate.Runner, args []string) error

// dbCommand wraps fn with config loading and a database connection.
func dbCommand(opts *options, use, short string, args cobra.PositionalArgs, fn runnerFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logg := logger.FromConfig("migrate", cfg.App, os.Stderr)
			ctx := logg.WithFields(cmd.Context(), map[string]any{
				"env": cfg.App.Env,
				"cmd": cmd.Name(),
			})

			client, err := db.New(ctx, cfg.DB, logg)
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			defer client.Close()
			sqlDB, err := client.DB().DB()
			if err != nil {
				return fmt.Errorf("unwrap sql.DB: %w", err)
			}

			runner, err := migrate.NewRunner(sqlDB, migrate.Source(opts.dir), logg)
			if err != nil {
				return err
			}
			return fn(ctx, runner, args)
		},
	}
}

func printStatus(ctx context.Context, r *migrate.Runner, _ []string) error {
	states, err := r.Status(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tAPPLIED\tFILE")
	for _, st := range states {
		fmt.Fprintf(w, "%d\t%t\t%s\n", st.Version, st.Applied, st.File)
	}
	return w.Flush()
}

func createCommand() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Write an empty migration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := migrate.Create(dir, args[0], time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "created", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "out", migrate.DefaultDir, "directory to write the migration into")
	return cmd
}

func validateCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check migration names and goose annotations without a database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := migrate.Validate(migrate.Source(opts.dir)); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations ok")
			return nil
		},
	}
}
