// Package listen feeds live program activity into the ingest pipeline. It
// subscribes to program logs, fetches every successful transaction and
// hands it over as a one-transaction batch.
package listen

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"dexloan-indexer/internal/ingress"
	"dexloan-indexer/internal/ledger"
	"dexloan-indexer/internal/observability"
)

// ErrStreamClosed is returned when the subscription ends without cancellation.
var ErrStreamClosed = errors.New("log stream closed")

// TransactionSource fetches confirmed transactions by signature.
type TransactionSource interface {
	GetTransaction(ctx context.Context, signature string) (*ledger.Transaction, error)
}

// BatchHandler processes a batch of transactions.
type BatchHandler interface {
	HandleBatch(ctx context.Context, txs []ledger.Transaction) *ingress.BatchResult
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	Subscriber ledger.LogsSubscriber
	Source     TransactionSource
	Handler    BatchHandler
	Program    string
	// MaxAttempts bounds getTransaction calls per signature. Default: 5.
	MaxAttempts int
	// RetryDelay is the initial backoff between attempts. Default: 500ms.
	RetryDelay time.Duration
	// MaxDelay caps the backoff. Default: 5s.
	MaxDelay time.Duration
	Logger   *zap.Logger
}

// Stats counts what a Runner has seen.
type Stats struct {
	Notifications int
	Failed        int // failed on chain, ignored
	Unfetched     int // getTransaction gave up
	Processed     int
}

// Runner drives live ingestion.
type Runner struct {
	subscriber  ledger.LogsSubscriber
	source      TransactionSource
	handler     BatchHandler
	program     string
	maxAttempts int
	retryDelay  time.Duration
	maxDelay    time.Duration
	logger      *zap.Logger

	stats Stats
}

// NewRunner creates a new live runner.
func NewRunner(opts RunnerOptions) *Runner {
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	retryDelay := opts.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 500 * time.Millisecond
	}
	maxDelay := opts.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Runner{
		subscriber:  opts.Subscriber,
		source:      opts.Source,
		handler:     opts.Handler,
		program:     opts.Program,
		maxAttempts: maxAttempts,
		retryDelay:  retryDelay,
		maxDelay:    maxDelay,
		logger:      logger.Named("listen"),
	}
}

// Run subscribes and processes notifications until ctx is cancelled or the
// stream closes. Notifications are handled one at a time, in arrival order.
func (r *Runner) Run(ctx context.Context) error {
	ch, err := r.subscriber.SubscribeLogs(ctx, ledger.LogsFilter{Mentions: []string{r.program}})
	if err != nil {
		return fmt.Errorf("subscribe logs: %w", err)
	}
	r.logger.Info("listening", zap.String("program", r.program))

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("listener stopping",
				zap.Int("notifications", r.stats.Notifications),
				zap.Int("processed", r.stats.Processed))
			return ctx.Err()

		case n, ok := <-ch:
			if !ok {
				return ErrStreamClosed
			}
			r.handle(ctx, n)
		}
	}
}

// Stats returns counters. Not safe to call concurrently with Run.
func (r *Runner) Stats() Stats {
	return r.stats
}

func (r *Runner) handle(ctx context.Context, n ledger.LogNotification) {
	observability.RecordWSNotification()
	r.stats.Notifications++

	if n.Failed() {
		r.stats.Failed++
		return
	}

	tx, err := r.fetch(ctx, n.Signature)
	if err != nil {
		r.stats.Unfetched++
		r.logger.Warn("transaction unavailable",
			zap.String("signature", n.Signature),
			zap.Uint64("slot", n.Slot),
			zap.Error(err))
		return
	}

	r.handler.HandleBatch(ctx, []ledger.Transaction{*tx})
	r.stats.Processed++
}

// fetch retries not-found as well as transport errors: a notified
// transaction can lag behind on the RPC node.
func (r *Runner) fetch(ctx context.Context, signature string) (*ledger.Transaction, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.retryDelay
	policy.MaxInterval = r.maxDelay

	return backoff.Retry(ctx, func() (*ledger.Transaction, error) {
		tx, err := r.source.GetTransaction(ctx, signature)
		if err != nil && ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		return tx, err
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(r.maxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			r.logger.Debug("retrying getTransaction",
				zap.String("signature", signature),
				zap.Duration("next", next),
				zap.Error(err))
		}),
	)
}
