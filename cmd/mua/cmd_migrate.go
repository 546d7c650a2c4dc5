package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/muahq/mua/internal/config"
	"github.com/muahq/mua/internal/db"
	"github.com/muahq/mua/internal/db/migrations"
	"github.com/muahq/mua/internal/dbpool"
)

const cliMaxConns = 4

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(cmd.Context(), func(ctx context.Context, cfg *config.Config, pool *dbpool.Pool) error {
				return db.RunMigrations(ctx, pool, newLogger(cfg.LogLevel, cfg.LogFormat), migrations.FS)
			})
		},
	}
	cmd.AddCommand(migrateStatusCmd())
	return cmd
}

func migrateStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the applied and latest schema versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(cmd.Context(), func(ctx context.Context, _ *config.Config, pool *dbpool.Pool) error {
				current, latest, err := db.MigrationStatus(ctx, pool, migrations.FS)
				if err != nil {
					return err
				}
				output(map[string]int64{"current": current, "latest": latest}, fmt.Sprintf("%d", current))
				return nil
			})
		},
	}
}

// withPool loads config and runs fn with a small pool.
func withPool(ctx context.Context, fn func(context.Context, *config.Config, *dbpool.Pool) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	pool, err := dbpool.NewPool(ctx, cfg.DatabaseURL.Value(), cliMaxConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	return fn(ctx, cfg, pool)
}
