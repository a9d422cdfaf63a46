package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dexloan-indexer/internal/storage/migrations"
	pgstore "dexloan-indexer/internal/storage/postgres"
)

func (cli *CLI) migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger := cli.config, cli.logger

			if cfg.Storage.UseMemory {
				logger.Info("in-memory storage, no postgres migrations to apply")
			} else {
				pool, err := pgstore.NewPool(ctx, cfg.Postgres.DSN)
				if err != nil {
					return err
				}
				defer pool.Close()

				applied, err := migrations.RunPostgresMigrations(ctx, pool, logger)
				if err != nil {
					return err
				}
				logger.Info("postgres migrations complete", zap.Strings("applied", applied))
			}

			if cfg.Clickhouse.DSN != "" {
				conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Clickhouse.DSN, logger)
				if err != nil {
					return err
				}
				defer conn.Close()
				logger.Info("clickhouse migrations complete")
			}
			return nil
		},
	}
}
