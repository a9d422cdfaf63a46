package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"dexloan-indexer/internal/accounts"
	"dexloan-indexer/internal/config"
	"dexloan-indexer/internal/decoder"
	"dexloan-indexer/internal/idl"
	"dexloan-indexer/internal/ingress"
	"dexloan-indexer/internal/ledger"
	"dexloan-indexer/internal/materializer"
	"dexloan-indexer/internal/reconcile"
	"dexloan-indexer/internal/router"
	"dexloan-indexer/internal/storage"
	chstore "dexloan-indexer/internal/storage/clickhouse"
	"dexloan-indexer/internal/storage/memory"
	pgstore "dexloan-indexer/internal/storage/postgres"
)

// deps holds the wired components shared by every command.
type deps struct {
	schema       *idl.Schema
	client       *ledger.Client
	fetcher      *accounts.Fetcher
	materializer *materializer.Materializer
	decoder      *decoder.Decoder
	mirror       storage.Mirror
	skips        storage.SkipStore
	instructions storage.InstructionLogStore // nil when ClickHouse is not configured

	cleanup func()
}

// buildDeps connects storage and wires the ingest components.
func buildDeps(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*deps, error) {
	schema, err := idl.Load()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	if err := router.Validate(schema); err != nil {
		return nil, fmt.Errorf("routing table: %w", err)
	}

	d := &deps{schema: schema, cleanup: func() {}}
	if err := d.connect(ctx, cfg, logger); err != nil {
		return nil, err
	}

	program := cfg.Program()
	d.client = ledger.NewClient(cfg.Solana.RPCURL, logger, ledger.WithCommitment(cfg.Solana.Commitment))
	d.fetcher = accounts.NewFetcher(d.client, program, accounts.FetcherConfig{
		MaxAttempts:    cfg.Fetch.MaxAttempts,
		RetryDelay:     cfg.Fetch.RetryDelay,
		MaxDelay:       cfg.Fetch.MaxDelay,
		AbsentRechecks: cfg.Fetch.AbsentRechecks,
	}, logger)
	d.materializer = materializer.New(d.fetcher, d.mirror, logger)
	d.decoder = decoder.New(schema, program, logger)
	return d, nil
}

func (d *deps) connect(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if cfg.Storage.UseMemory {
		logger.Warn("using in-memory storage; the mirror is lost on exit")
		d.mirror = memory.NewMirror()
		d.skips = memory.NewSkipStore()
	} else {
		pool, err := pgstore.NewPool(ctx, cfg.Postgres.DSN)
		if err != nil {
			return err
		}
		d.mirror = pgstore.NewMirror(pool)
		d.skips = pgstore.NewSkipStore(pool)
		d.cleanup = pool.Close
	}

	if cfg.Clickhouse.DSN == "" {
		return nil
	}
	conn, err := chstore.NewConn(ctx, cfg.Clickhouse.DSN)
	if err != nil {
		d.cleanup()
		return fmt.Errorf("connect to clickhouse: %w", err)
	}
	d.instructions = chstore.NewInstructionLogStore(conn)
	closePool := d.cleanup
	d.cleanup = func() {
		_ = conn.Close()
		closePool()
	}
	return nil
}

func (d *deps) pipeline(logger *zap.Logger) *ingress.Pipeline {
	var opts []ingress.PipelineOption
	if d.instructions != nil {
		opts = append(opts, ingress.WithInstructionLog(d.instructions))
	}
	return ingress.NewPipeline(d.decoder, d.materializer, d.skips, logger, opts...)
}

func (d *deps) reconciler(cfg *config.Config, logger *zap.Logger) *reconcile.Reconciler {
	rc := reconcile.DefaultConfig()
	rc.BatchSize = cfg.Reconcile.BatchSize
	rc.Concurrency = cfg.Reconcile.Concurrency
	rc.AbsentGrace = cfg.Reconcile.AbsentGrace
	return reconcile.New(d.client, d.fetcher, d.materializer, d.skips, d.schema, rc, logger)
}
