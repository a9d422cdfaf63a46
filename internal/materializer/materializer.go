// Package materializer keeps mirror rows equal to the canonical state of
// program accounts. Every operation re-reads the account, so applying an
// operation twice, or out of order, converges on the same rows.
package materializer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"dexloan-indexer/internal/accounts"
	"dexloan-indexer/internal/domain"
	"dexloan-indexer/internal/router"
	"dexloan-indexer/internal/storage"
)

var (
	// ErrUnsupportedOp is returned for an action the kind does not take.
	ErrUnsupportedOp = errors.New("unsupported operation")
	// ErrMissingParent is returned when the entity's collection is not mirrored.
	ErrMissingParent = errors.New("parent collection not mirrored")
	// ErrAccountAbsent is returned when an upsert or create finds no account.
	// The account may not be visible yet, or may already be closed.
	ErrAccountAbsent = errors.New("account absent")
)

// Outcome describes what an applied operation did to the mirror.
type Outcome string

const (
	OutcomeWritten  Outcome = "written"
	OutcomeDeleted  Outcome = "deleted"
	OutcomeDisabled Outcome = "disabled"
	// OutcomeAbsent means a disable found neither account nor row.
	OutcomeAbsent Outcome = "absent"
)

// Fetcher reads canonical account state.
type Fetcher interface {
	FetchAccount(ctx context.Context, kind domain.EntityKind, address solana.PublicKey) (accounts.State, error)
	FetchAuxiliary(ctx context.Context, mint solana.PublicKey) (*accounts.Metadata, error)
	Program() solana.PublicKey
}

var supported = map[domain.EntityKind][]router.Action{
	domain.KindCollection:    {router.ActionUpsert, router.ActionDisable},
	domain.KindLoan:          {router.ActionUpsert, router.ActionRemove},
	domain.KindLoanOffer:     {router.ActionCreate, router.ActionDelete},
	domain.KindCallOption:    {router.ActionUpsert, router.ActionRemove},
	domain.KindCallOptionBid: {router.ActionCreate, router.ActionDelete},
	domain.KindRental:        {router.ActionUpsert, router.ActionRemove},
}

// Materializer applies router operations to the mirror stores.
type Materializer struct {
	fetcher Fetcher
	stores  storage.Mirror
	clock   func() time.Time
	logger  *zap.Logger
}

// Option configures Materializer.
type Option func(*Materializer)

// WithClock sets the time source for updated_at.
func WithClock(clock func() time.Time) Option {
	return func(m *Materializer) {
		m.clock = clock
	}
}

// New creates a materializer writing to stores.
func New(fetcher Fetcher, stores storage.Mirror, logger *zap.Logger, opts ...Option) *Materializer {
	m := &Materializer{
		fetcher: fetcher,
		stores:  stores,
		clock:   time.Now,
		logger:  logger.Named("materializer"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Apply re-reads the account named by op and reconciles its row.
//
//   - upsert, create: absent account returns ErrAccountAbsent, otherwise the row is written
//   - remove, delete: absent account deletes the row, otherwise it is written
//   - disable: absent account flags the row disabled, otherwise it is written
func (m *Materializer) Apply(ctx context.Context, op router.Op) (Outcome, error) {
	if !Supports(op.Action, op.Kind) {
		return "", fmt.Errorf("%w: %s %s", ErrUnsupportedOp, op.Action, op.Kind)
	}

	state, err := m.fetcher.FetchAccount(ctx, op.Kind, op.Address)
	absent := errors.Is(err, accounts.ErrAccountNotFound)
	if err != nil && !absent {
		return "", fmt.Errorf("fetch %s %s: %w", op.Kind, op.Address, err)
	}

	if !absent {
		if err := m.write(ctx, op.Address, state, parentHint{collection: op.CollectionHint, mint: op.MintHint}); err != nil {
			return "", err
		}
		return OutcomeWritten, nil
	}

	address := op.Address.String()
	switch op.Action {
	case router.ActionRemove, router.ActionDelete:
		if err := m.delete(ctx, op.Kind, address); err != nil {
			return "", fmt.Errorf("delete %s %s: %w", op.Kind, address, err)
		}
		return OutcomeDeleted, nil
	case router.ActionDisable:
		err := m.stores.Collections.SetDisabled(ctx, address, true, m.now())
		if errors.Is(err, storage.ErrNotFound) {
			return OutcomeAbsent, nil
		}
		if err != nil {
			return "", fmt.Errorf("disable collection %s: %w", address, err)
		}
		return OutcomeDisabled, nil
	default:
		return "", fmt.Errorf("%w: %s %s", ErrAccountAbsent, op.Kind, address)
	}
}

// Write stores an already fetched account at address. It resolves the parent
// the same way Apply does, without an instruction hint.
func (m *Materializer) Write(ctx context.Context, address solana.PublicKey, state accounts.State) error {
	return m.write(ctx, address, state, parentHint{})
}

// Supports reports whether action applies to kind.
func Supports(action router.Action, kind domain.EntityKind) bool {
	for _, a := range supported[kind] {
		if a == action {
			return true
		}
	}
	return false
}

func (m *Materializer) write(ctx context.Context, address solana.PublicKey, state accounts.State, hint parentHint) error {
	var err error
	switch s := state.(type) {
	case *accounts.Collection:
		err = m.writeCollection(ctx, address, s)
	case *accounts.Loan:
		err = m.writeLoan(ctx, address, s, hint)
	case *accounts.LoanOffer:
		err = m.writeLoanOffer(ctx, address, s)
	case *accounts.CallOption:
		err = m.writeCallOption(ctx, address, s, hint)
	case *accounts.CallOptionBid:
		err = m.writeCallOptionBid(ctx, address, s)
	case *accounts.Rental:
		err = m.writeRental(ctx, address, s, hint)
	default:
		return fmt.Errorf("%w: state %T", ErrUnsupportedOp, state)
	}
	if errors.Is(err, storage.ErrParentMissing) {
		return fmt.Errorf("%w: %s %s: %v", ErrMissingParent, state.Kind(), address, err)
	}
	if err != nil {
		return fmt.Errorf("write %s %s: %w", state.Kind(), address, err)
	}
	return nil
}

func (m *Materializer) delete(ctx context.Context, kind domain.EntityKind, address string) error {
	switch kind {
	case domain.KindLoan:
		return m.stores.Loans.Delete(ctx, address)
	case domain.KindLoanOffer:
		return m.stores.LoanOffers.Delete(ctx, address)
	case domain.KindCallOption:
		return m.stores.CallOptions.Delete(ctx, address)
	case domain.KindCallOptionBid:
		return m.stores.CallOptionBids.Delete(ctx, address)
	case domain.KindRental:
		return m.stores.Rentals.Delete(ctx, address)
	default:
		return fmt.Errorf("%w: delete %s", ErrUnsupportedOp, kind)
	}
}

func (m *Materializer) now() int64 {
	return m.clock().UnixMilli()
}
