// Package reconcile repairs the mirror offline: it replays journaled skips
// and refreshes every program account from canonical state.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"dexloan-indexer/internal/accounts"
	"dexloan-indexer/internal/domain"
	"dexloan-indexer/internal/idl"
	"dexloan-indexer/internal/ingress"
	"dexloan-indexer/internal/ledger"
	"dexloan-indexer/internal/materializer"
	"dexloan-indexer/internal/observability"
	"dexloan-indexer/internal/router"
	"dexloan-indexer/internal/storage"
)

// Scanner lists program accounts.
type Scanner interface {
	GetProgramAccounts(ctx context.Context, program solana.PublicKey, filters []ledger.MemcmpFilter) ([]solana.PublicKey, error)
}

// Fetcher reads accounts in bulk.
type Fetcher interface {
	FetchMany(ctx context.Context, kind domain.EntityKind, addresses []solana.PublicKey) ([]accounts.State, error)
	Program() solana.PublicKey
}

// Materializer applies operations and writes fetched accounts.
type Materializer interface {
	Apply(ctx context.Context, op router.Op) (materializer.Outcome, error)
	Write(ctx context.Context, address solana.PublicKey, state accounts.State) error
}

// Config holds reconciliation parameters.
type Config struct {
	BatchSize   int // accounts per getMultipleAccounts call, at most 100
	Concurrency int // kinds swept in parallel after collections
	SkipLimit   int // journal entries replayed per run
	// AbsentGrace is how long an ACCOUNT_ABSENT skip may stay absent before
	// the account is taken as closed and the skip resolved.
	AbsentGrace time.Duration
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		BatchSize:   100,
		Concurrency: 4,
		SkipLimit:   1000,
		AbsentGrace: time.Minute,
	}
}

// ownerFields names the field each kind is filtered on by SweepOptions.Owner.
var ownerFields = map[domain.EntityKind]string{
	domain.KindCollection:    "authority",
	domain.KindLoan:          "borrower",
	domain.KindLoanOffer:     "lender",
	domain.KindCallOption:    "seller",
	domain.KindCallOptionBid: "buyer",
	domain.KindRental:        "lender",
}

// Report summarizes one run.
type Report struct {
	SkipsReplayed int
	SkipsResolved int
	SkipsClosed   int // resolved because the account stayed absent past the grace period
	Refreshed     map[domain.EntityKind]int
	WriteFailures int
}

// SweepOptions narrows a sweep.
type SweepOptions struct {
	Kinds []domain.EntityKind // empty means all kinds
	Owner *solana.PublicKey
}

// Reconciler replays skips and sweeps program accounts.
type Reconciler struct {
	scanner      Scanner
	fetcher      Fetcher
	materializer Materializer
	skips        storage.SkipStore
	schema       *idl.Schema
	config       Config
	clock        func() time.Time
	logger       *zap.Logger

	mu       sync.Mutex // serializes runs
	reportMu sync.Mutex
}

// New creates a reconciler.
func New(scanner Scanner, fetcher Fetcher, m Materializer, skips storage.SkipStore, schema *idl.Schema, cfg Config, logger *zap.Logger) *Reconciler {
	if cfg.BatchSize <= 0 || cfg.BatchSize > 100 {
		cfg.BatchSize = 100
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.SkipLimit <= 0 {
		cfg.SkipLimit = DefaultConfig().SkipLimit
	}
	if cfg.AbsentGrace <= 0 {
		cfg.AbsentGrace = DefaultConfig().AbsentGrace
	}
	return &Reconciler{
		scanner:      scanner,
		fetcher:      fetcher,
		materializer: m,
		skips:        skips,
		schema:       schema,
		config:       cfg,
		clock:        time.Now,
		logger:       logger.Named("reconcile"),
	}
}

// Run replays unresolved skips, then sweeps every kind.
func (r *Reconciler) Run(ctx context.Context, opts SweepOptions) (*Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	report := &Report{Refreshed: make(map[domain.EntityKind]int)}

	if err := r.replaySkips(ctx, report); err != nil {
		observability.RecordReconcileRun("failed", time.Since(start))
		return report, err
	}
	if err := r.sweep(ctx, opts, report); err != nil {
		observability.RecordReconcileRun("failed", time.Since(start))
		return report, err
	}

	observability.RecordReconcileRun("ok", time.Since(start))
	r.logger.Info("reconcile complete",
		zap.Int("skips_replayed", report.SkipsReplayed),
		zap.Int("skips_resolved", report.SkipsResolved),
		zap.Int("skips_closed", report.SkipsClosed),
		zap.Any("refreshed", report.Refreshed),
		zap.Int("write_failures", report.WriteFailures),
		zap.Duration("duration", time.Since(start)))
	return report, nil
}

// ReplaySkips re-applies journaled operations whose failure may have been
// transient.
func (r *Reconciler) ReplaySkips(ctx context.Context) (*Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	report := &Report{Refreshed: make(map[domain.EntityKind]int)}
	return report, r.replaySkips(ctx, report)
}

// Sweep refreshes program accounts without touching the journal.
func (r *Reconciler) Sweep(ctx context.Context, opts SweepOptions) (*Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	report := &Report{Refreshed: make(map[domain.EntityKind]int)}
	return report, r.sweep(ctx, opts, report)
}

func (r *Reconciler) replaySkips(ctx context.Context, report *Report) error {
	pending, err := r.skips.ListUnresolved(ctx, r.config.SkipLimit)
	if err != nil {
		return fmt.Errorf("list unresolved skips: %w", err)
	}

	for _, rec := range pending {
		if !rec.Reason.Replayable() {
			continue
		}
		op, err := ingress.OpFromSkip(rec)
		if err != nil {
			r.logger.Warn("skip cannot be replayed", zap.String("skip_id", rec.SkipID), zap.Error(err))
			continue
		}

		report.SkipsReplayed++
		if _, err := r.materializer.Apply(ctx, op); err != nil {
			if r.closedForGood(rec, err) {
				r.logger.Info("absent account taken as closed",
					zap.String("skip_id", rec.SkipID),
					zap.String("kind", string(op.Kind)),
					zap.String("address", rec.Address))
				if err := r.resolve(ctx, rec.SkipID); err != nil {
					return err
				}
				report.SkipsClosed++
				continue
			}
			r.logger.Debug("replay failed",
				zap.String("skip_id", rec.SkipID),
				zap.String("kind", string(op.Kind)),
				zap.String("address", rec.Address),
				zap.Error(err))
			if err := r.skips.IncrementAttempts(ctx, rec.SkipID, err.Error()); err != nil {
				return fmt.Errorf("increment attempts %s: %w", rec.SkipID, err)
			}
			continue
		}

		if err := r.resolve(ctx, rec.SkipID); err != nil {
			return err
		}
		report.SkipsResolved++
	}

	unresolved, err := r.skips.CountUnresolved(ctx)
	if err != nil {
		return fmt.Errorf("count unresolved skips: %w", err)
	}
	observability.UpdateUnresolvedSkips(unresolved)
	return nil
}

// closedForGood reports whether a replay that still finds no account has
// outlived the grace period. Create and close in quick succession leave
// nothing to mirror, so the skip is settled rather than retried forever.
func (r *Reconciler) closedForGood(rec *domain.SkipRecord, err error) bool {
	if !errors.Is(err, materializer.ErrAccountAbsent) {
		return false
	}
	age := r.clock().Sub(time.UnixMilli(rec.CreatedAt))
	return age >= r.config.AbsentGrace
}

func (r *Reconciler) resolve(ctx context.Context, skipID string) error {
	if err := r.skips.MarkResolved(ctx, skipID, r.clock().UnixMilli()); err != nil {
		return fmt.Errorf("mark resolved %s: %w", skipID, err)
	}
	observability.RecordSkipResolved()
	return nil
}

func (r *Reconciler) sweep(ctx context.Context, opts SweepOptions, report *Report) error {
	kinds := opts.Kinds
	if len(kinds) == 0 {
		kinds = domain.AllKinds
	}

	var rest []domain.EntityKind
	for _, kind := range kinds {
		if kind == domain.KindCollection {
			// parents first
			if err := r.sweepKind(ctx, kind, opts.Owner, report); err != nil {
				return err
			}
			continue
		}
		rest = append(rest, kind)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.Concurrency)
	for _, kind := range rest {
		g.Go(func() error {
			return r.sweepKind(gctx, kind, opts.Owner, report)
		})
	}
	return g.Wait()
}

func (r *Reconciler) sweepKind(ctx context.Context, kind domain.EntityKind, owner *solana.PublicKey, report *Report) error {
	filters, err := r.filters(kind, owner)
	if err != nil {
		return err
	}
	addresses, err := r.scanner.GetProgramAccounts(ctx, r.fetcher.Program(), filters)
	if err != nil {
		return fmt.Errorf("list %s accounts: %w", kind, err)
	}

	refreshed, failures := 0, 0
	for start := 0; start < len(addresses); start += r.config.BatchSize {
		chunk := addresses[start:min(start+r.config.BatchSize, len(addresses))]
		states, err := r.fetcher.FetchMany(ctx, kind, chunk)
		if err != nil {
			return fmt.Errorf("fetch %s accounts: %w", kind, err)
		}
		for i, state := range states {
			if state == nil {
				continue
			}
			if err := r.materializer.Write(ctx, chunk[i], state); err != nil {
				failures++
				r.logger.Warn("refresh failed",
					zap.String("kind", string(kind)),
					zap.String("address", chunk[i].String()),
					zap.Error(err))
				continue
			}
			refreshed++
		}
	}

	observability.RecordReconcileRefreshed(string(kind), refreshed)
	r.logger.Debug("kind swept",
		zap.String("kind", string(kind)),
		zap.Int("accounts", len(addresses)),
		zap.Int("refreshed", refreshed))

	r.reportMu.Lock()
	report.Refreshed[kind] += refreshed
	report.WriteFailures += failures
	r.reportMu.Unlock()
	return nil
}

// filters builds the discriminator filter and, when owner is set, a filter
// on the kind's owner field at its schema offset.
func (r *Reconciler) filters(kind domain.EntityKind, owner *solana.PublicKey) ([]ledger.MemcmpFilter, error) {
	filters := []ledger.MemcmpFilter{{Offset: 0, Bytes: accounts.Discriminator(kind).Bytes()}}
	if owner == nil {
		return filters, nil
	}
	offset, err := r.schema.FieldOffset(kind.AccountName(), ownerFields[kind])
	if err != nil {
		return nil, fmt.Errorf("owner filter for %s: %w", kind, err)
	}
	return append(filters, ledger.MemcmpFilter{Offset: uint64(offset), Bytes: owner.Bytes()}), nil
}
