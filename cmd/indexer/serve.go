package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"dexloan-indexer/internal/ingress"
	"dexloan-indexer/internal/reconcile"
)

func (cli *CLI) serveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook endpoint and read API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.serve(cmd.Context())
		},
	}
	cmd.Flags().String("addr", "", "HTTP listen address")
	cli.bind("http.addr", cmd.Flags().Lookup("addr"))
	return cmd
}

func (cli *CLI) serve(ctx context.Context) error {
	cfg, logger := cli.config, cli.logger

	d, err := buildDeps(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer d.cleanup()

	server := ingress.NewServer(ingress.Config{
		WebhookPath:  cfg.HTTP.WebhookPath,
		AuthToken:    cfg.HTTP.AuthToken,
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
	}, d.pipeline(logger), d.mirror, d.skips, logger)

	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		logger.Info("shutting down http server")
		return httpServer.Shutdown(shutdownCtx)
	})
	r := d.reconciler(cfg, logger)
	if cfg.Reconcile.Interval > 0 {
		g.Go(func() error {
			return runPeriodic(gctx, "reconcile", cfg.Reconcile.Interval, func(ctx context.Context) error {
				_, err := r.Run(ctx, reconcile.SweepOptions{})
				return err
			}, logger)
		})
	}
	if cfg.Reconcile.ReplayInterval > 0 {
		g.Go(func() error {
			return runPeriodic(gctx, "skip replay", cfg.Reconcile.ReplayInterval, replaySkips(r), logger)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

// runPeriodic calls run every interval until ctx is done. A failed run is
// logged and retried at the next tick.
func runPeriodic(ctx context.Context, name string, interval time.Duration, run func(context.Context) error, logger *zap.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("periodic run failed", zap.String("task", name), zap.Error(err))
			}
		}
	}
}

func replaySkips(r *reconcile.Reconciler) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := r.ReplaySkips(ctx)
		return err
	}
}
