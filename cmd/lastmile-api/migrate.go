package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"lastmile/internal/infra"
	"lastmile/internal/infra/logger"
	"lastmile/internal/migrations"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded schema to the configured database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			log := logger.New("migrate")
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			db, err := infra.NewDB(ctx, cfg.DB.DSN, cfg.DB.MaxConns)
			if err != nil {
				return err
			}
			defer db.Close()
			return applyMigrations(ctx, db, log)
		},
	}
}

func applyMigrations(ctx context.Context, db *pgxpool.Pool, log logger.Logger) error {
	files, err := migrations.Files()
	if err != nil {
		return err
	}
	if err := migrations.Apply(ctx, db); err != nil {
		return err
	}
	log.Infof("applied %d migration files", len(files))
	return nil
}
