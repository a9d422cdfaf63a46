package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"dexloan-indexer/internal/domain"
	"dexloan-indexer/internal/ledger"
	"dexloan-indexer/internal/observability"
)

var (
	// ErrAccountNotFound means the account does not exist at the read
	// commitment. It is a definitive answer, not a failure.
	ErrAccountNotFound = errors.New("account does not exist")
	// ErrFetchFailed means the account state could not be determined.
	ErrFetchFailed = errors.New("account fetch failed")
)

// AccountReader reads raw account state from the ledger.
type AccountReader interface {
	GetAccount(ctx context.Context, address solana.PublicKey) (*ledger.Account, error)
	GetMultipleAccounts(ctx context.Context, addresses []solana.PublicKey) ([]*ledger.Account, error)
}

// FetcherConfig bounds fetch retries.
type FetcherConfig struct {
	// MaxAttempts is the total number of reads per fetch, first one included.
	MaxAttempts int
	RetryDelay  time.Duration
	MaxDelay    time.Duration
	// AbsentRechecks is how many extra reads confirm an absent account
	// before reporting it absent.
	AbsentRechecks int
}

// DefaultFetcherConfig returns the default retry bounds.
func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		MaxAttempts:    4,
		RetryDelay:     250 * time.Millisecond,
		MaxDelay:       2 * time.Second,
		AbsentRechecks: 1,
	}
}

// Fetcher reads and decodes program accounts.
type Fetcher struct {
	reader  AccountReader
	program solana.PublicKey
	config  FetcherConfig
	logger  *zap.Logger
}

// NewFetcher creates a fetcher for accounts owned by program.
func NewFetcher(reader AccountReader, program solana.PublicKey, config FetcherConfig, logger *zap.Logger) *Fetcher {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	if config.AbsentRechecks < 0 {
		config.AbsentRechecks = 0
	}
	return &Fetcher{
		reader:  reader,
		program: program,
		config:  config,
		logger:  logger.Named("fetcher"),
	}
}

// Program returns the program whose accounts are fetched.
func (f *Fetcher) Program() solana.PublicKey {
	return f.program
}

// FetchAccount reads and decodes the account of kind at address.
// Returns ErrAccountNotFound if it does not exist, ErrFetchFailed if its state
// could not be determined and ErrInvalidAccountData if it does not decode as kind.
func (f *Fetcher) FetchAccount(ctx context.Context, kind domain.EntityKind, address solana.PublicKey) (State, error) {
	acc, err := f.read(ctx, string(kind), address)
	if err != nil {
		return nil, err
	}
	if !acc.Owner.Equals(f.program) {
		observability.RecordFetch(string(kind), "invalid")
		return nil, fmt.Errorf("%w: %s owned by %s", ErrInvalidAccountData, address, acc.Owner)
	}
	state, err := Decode(kind, acc.Data)
	if err != nil {
		observability.RecordFetch(string(kind), "invalid")
		return nil, fmt.Errorf("%s: %w", address, err)
	}
	return state, nil
}

// FetchCollection reads a collection account.
func (f *Fetcher) FetchCollection(ctx context.Context, address solana.PublicKey) (*Collection, error) {
	state, err := f.FetchAccount(ctx, domain.KindCollection, address)
	if err != nil {
		return nil, err
	}
	return state.(*Collection), nil
}

// FetchLoan reads a loan account.
func (f *Fetcher) FetchLoan(ctx context.Context, address solana.PublicKey) (*Loan, error) {
	state, err := f.FetchAccount(ctx, domain.KindLoan, address)
	if err != nil {
		return nil, err
	}
	return state.(*Loan), nil
}

// FetchLoanOffer reads a loan offer account.
func (f *Fetcher) FetchLoanOffer(ctx context.Context, address solana.PublicKey) (*LoanOffer, error) {
	state, err := f.FetchAccount(ctx, domain.KindLoanOffer, address)
	if err != nil {
		return nil, err
	}
	return state.(*LoanOffer), nil
}

// FetchCallOption reads a call option account.
func (f *Fetcher) FetchCallOption(ctx context.Context, address solana.PublicKey) (*CallOption, error) {
	state, err := f.FetchAccount(ctx, domain.KindCallOption, address)
	if err != nil {
		return nil, err
	}
	return state.(*CallOption), nil
}

// FetchCallOptionBid reads a call option bid account.
func (f *Fetcher) FetchCallOptionBid(ctx context.Context, address solana.PublicKey) (*CallOptionBid, error) {
	state, err := f.FetchAccount(ctx, domain.KindCallOptionBid, address)
	if err != nil {
		return nil, err
	}
	return state.(*CallOptionBid), nil
}

// FetchRental reads a rental account.
func (f *Fetcher) FetchRental(ctx context.Context, address solana.PublicKey) (*Rental, error) {
	state, err := f.FetchAccount(ctx, domain.KindRental, address)
	if err != nil {
		return nil, err
	}
	return state.(*Rental), nil
}

// FetchAuxiliary reads the Metaplex metadata of mint.
// Returns (nil, nil) when the mint has no metadata account.
func (f *Fetcher) FetchAuxiliary(ctx context.Context, mint solana.PublicKey) (*Metadata, error) {
	address, err := ledger.MetadataAddress(mint)
	if err != nil {
		return nil, fmt.Errorf("derive metadata address: %w", err)
	}

	acc, err := f.read(ctx, "metadata", address)
	if errors.Is(err, ErrAccountNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !acc.Owner.Equals(ledger.MetadataProgramID) {
		return nil, fmt.Errorf("%w: metadata %s owned by %s", ErrInvalidAccountData, address, acc.Owner)
	}
	return ParseMetadata(acc.Data)
}

// FetchMany reads accounts of one kind in bulk. The result is aligned with
// addresses; entries are nil when the account is absent or does not decode.
func (f *Fetcher) FetchMany(ctx context.Context, kind domain.EntityKind, addresses []solana.PublicKey) ([]State, error) {
	if len(addresses) == 0 {
		return nil, nil
	}

	raw, err := backoff.Retry(ctx, func() ([]*ledger.Account, error) {
		accs, err := f.reader.GetMultipleAccounts(ctx, addresses)
		if err != nil && ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		return accs, err
	}, f.retryOptions(string(kind))...)
	if err != nil {
		observability.RecordFetch(string(kind), "failed")
		return nil, fmt.Errorf("%w: %d %s accounts: %v", ErrFetchFailed, len(addresses), kind, err)
	}

	out := make([]State, len(addresses))
	for i, acc := range raw {
		if acc == nil {
			continue
		}
		if !acc.Owner.Equals(f.program) {
			f.logger.Warn("skipping account with foreign owner",
				zap.String("address", addresses[i].String()),
				zap.String("owner", acc.Owner.String()))
			continue
		}
		state, err := Decode(kind, acc.Data)
		if err != nil {
			f.logger.Warn("skipping undecodable account",
				zap.String("address", addresses[i].String()),
				zap.Error(err))
			continue
		}
		out[i] = state
	}
	observability.RecordFetch(string(kind), "bulk")
	return out, nil
}

// read fetches one raw account. Transient errors are retried with
// exponential backoff; absence is confirmed AbsentRechecks times.
func (f *Fetcher) read(ctx context.Context, label string, address solana.PublicKey) (*ledger.Account, error) {
	absentLeft := f.config.AbsentRechecks
	attempts := 0

	acc, err := backoff.Retry(ctx, func() (*ledger.Account, error) {
		attempts++
		acc, err := f.reader.GetAccount(ctx, address)
		switch {
		case err == nil:
			return acc, nil
		case errors.Is(err, ledger.ErrAccountNotFound):
			if absentLeft > 0 {
				absentLeft--
				return nil, err
			}
			return nil, backoff.Permanent(ErrAccountNotFound)
		case ctx.Err() != nil:
			return nil, backoff.Permanent(err)
		default:
			return nil, err
		}
	}, f.retryOptions(label)...)

	switch {
	case err == nil:
		observability.RecordFetch(label, "found")
		return acc, nil
	case errors.Is(err, ErrAccountNotFound), errors.Is(err, ledger.ErrAccountNotFound):
		observability.RecordFetch(label, "absent")
		return nil, ErrAccountNotFound
	default:
		observability.RecordFetch(label, "failed")
		return nil, fmt.Errorf("%w: %s after %d attempts: %v", ErrFetchFailed, address, attempts, err)
	}
}

func (f *Fetcher) retryOptions(label string) []backoff.RetryOption {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = f.config.RetryDelay
	if f.config.MaxDelay > 0 {
		policy.MaxInterval = f.config.MaxDelay
	}

	return []backoff.RetryOption{
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(f.config.MaxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			observability.RecordFetchRetry()
			f.logger.Debug("retrying account read",
				zap.String("kind", label),
				zap.Duration("next", next),
				zap.Error(err))
		}),
	}
}
