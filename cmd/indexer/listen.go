package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"dexloan-indexer/internal/ledger"
	"dexloan-indexer/internal/listen"
)

func (cli *CLI) listenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Index live program activity over a websocket subscription",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger := cli.config, cli.logger
			if cfg.Solana.WSURL == "" {
				return errors.New("solana.ws_url is required for listen")
			}

			d, err := buildDeps(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer d.cleanup()

			wsConfig := ledger.DefaultWSConfig()
			wsConfig.Commitment = cfg.Solana.Commitment
			ws, err := ledger.DialWS(ctx, cfg.Solana.WSURL, &wsConfig, logger)
			if err != nil {
				return fmt.Errorf("dial websocket: %w", err)
			}
			defer ws.Close()

			runner := listen.NewRunner(listen.RunnerOptions{
				Subscriber:  ws,
				Source:      d.client,
				Handler:     d.pipeline(logger),
				Program:     cfg.Solana.ProgramID,
				MaxAttempts: cfg.Fetch.MaxAttempts,
				RetryDelay:  cfg.Fetch.RetryDelay,
				MaxDelay:    cfg.Fetch.MaxDelay,
				Logger:      logger,
			})
			runCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			g, gctx := errgroup.WithContext(runCtx)
			g.Go(func() error {
				// the replay loop lives only as long as the listener
				defer cancel()
				return runner.Run(gctx)
			})
			if cfg.Reconcile.ReplayInterval > 0 {
				r := d.reconciler(cfg, logger)
				g.Go(func() error {
					return runPeriodic(gctx, "skip replay", cfg.Reconcile.ReplayInterval, replaySkips(r), logger)
				})
			}
			err = g.Wait()
			stats := runner.Stats()
			logger.Info("listener stopped",
				zap.Int("notifications", stats.Notifications),
				zap.Int("processed", stats.Processed),
				zap.Int("failed", stats.Failed),
				zap.Int("unfetched", stats.Unfetched))
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
}
