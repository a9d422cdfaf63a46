package storage

import (
	"context"

	"dexloan-indexer/internal/domain"
)

// CollectionStore provides access to collections storage.
type CollectionStore interface {
	// Upsert creates or replaces the row keyed by address.
	Upsert(ctx context.Context, c *domain.Collection) error

	// Get retrieves a collection by address. Returns ErrNotFound if not exists.
	Get(ctx context.Context, address string) (*domain.Collection, error)

	// SetDisabled flips the disabled flag. Returns ErrNotFound if not exists.
	SetDisabled(ctx context.Context, address string, disabled bool, updatedAt int64) error

	// Count returns the number of mirrored collections.
	Count(ctx context.Context) (int64, error)
}

// LoanStore provides access to loans storage.
type LoanStore interface {
	// Upsert creates or replaces the row keyed by address.
	// Returns ErrParentMissing if the collection is not mirrored.
	Upsert(ctx context.Context, l *domain.Loan) error

	// Get retrieves a loan by address. Returns ErrNotFound if not exists.
	Get(ctx context.Context, address string) (*domain.Loan, error)

	// Delete removes the row. Deleting an absent row is not an error.
	Delete(ctx context.Context, address string) error

	// ListByBorrower retrieves loans of a borrower, ordered by address.
	ListByBorrower(ctx context.Context, borrower string) ([]*domain.Loan, error)

	// ListByLender retrieves loans funded by a lender, ordered by address.
	ListByLender(ctx context.Context, lender string) ([]*domain.Loan, error)
}

// LoanOfferStore provides access to loan_offers storage.
type LoanOfferStore interface {
	// Upsert creates or replaces the offer at its address. Returns
	// ErrDuplicateKey if another address holds the same (offer_id, lender)
	// and ErrParentMissing if the collection is not mirrored.
	Upsert(ctx context.Context, o *domain.LoanOffer) error

	// Get retrieves an offer by address. Returns ErrNotFound if not exists.
	Get(ctx context.Context, address string) (*domain.LoanOffer, error)

	// Delete removes the row. Deleting an absent row is not an error.
	Delete(ctx context.Context, address string) error
}

// CallOptionStore provides access to call_options storage.
type CallOptionStore interface {
	// Upsert creates or replaces the row keyed by address.
	// Returns ErrParentMissing if the collection is not mirrored.
	Upsert(ctx context.Context, o *domain.CallOption) error

	// Get retrieves a call option by address. Returns ErrNotFound if not exists.
	Get(ctx context.Context, address string) (*domain.CallOption, error)

	// Delete removes the row. Deleting an absent row is not an error.
	Delete(ctx context.Context, address string) error
}

// CallOptionBidStore provides access to call_option_bids storage.
type CallOptionBidStore interface {
	// Upsert creates or replaces the bid at its address. Returns
	// ErrDuplicateKey if another address holds the same (bid_id, buyer)
	// and ErrParentMissing if the collection is not mirrored.
	Upsert(ctx context.Context, b *domain.CallOptionBid) error

	// Get retrieves a bid by address. Returns ErrNotFound if not exists.
	Get(ctx context.Context, address string) (*domain.CallOptionBid, error)

	// Delete removes the row. Deleting an absent row is not an error.
	Delete(ctx context.Context, address string) error
}

// RentalStore provides access to rentals storage.
type RentalStore interface {
	// Upsert creates or replaces the row keyed by address.
	// Returns ErrParentMissing if the collection is not mirrored.
	Upsert(ctx context.Context, r *domain.Rental) error

	// Get retrieves a rental by address. Returns ErrNotFound if not exists.
	Get(ctx context.Context, address string) (*domain.Rental, error)

	// Delete removes the row. Deleting an absent row is not an error.
	Delete(ctx context.Context, address string) error
}

// SkipStore provides access to the index_skips journal.
type SkipStore interface {
	// Record journals a skip. Recording an existing skip_id reopens it,
	// bumps its attempts and replaces the error text.
	Record(ctx context.Context, s *domain.SkipRecord) error

	// Get retrieves a skip by ID. Returns ErrNotFound if not exists.
	Get(ctx context.Context, skipID string) (*domain.SkipRecord, error)

	// ListUnresolved retrieves up to limit unresolved skips, oldest first.
	ListUnresolved(ctx context.Context, limit int) ([]*domain.SkipRecord, error)

	// MarkResolved sets resolved_at. Returns ErrNotFound if not exists.
	MarkResolved(ctx context.Context, skipID string, resolvedAt int64) error

	// IncrementAttempts bumps attempts and replaces the error text.
	// Returns ErrNotFound if not exists.
	IncrementAttempts(ctx context.Context, skipID string, errText string) error

	// CountUnresolved returns the number of unresolved skips.
	CountUnresolved(ctx context.Context) (int64, error)
}

// InstructionLogStore provides access to the instruction_log audit table.
type InstructionLogStore interface {
	// InsertBulk appends entries. The log is append-only.
	InsertBulk(ctx context.Context, entries []*domain.InstructionLogEntry) error

	// GetBySignature retrieves entries for a transaction, ordered by instruction index.
	GetBySignature(ctx context.Context, signature string) ([]*domain.InstructionLogEntry, error)
}

// Mirror groups the entity stores written by the materializer.
type Mirror struct {
	Collections    CollectionStore
	Loans          LoanStore
	LoanOffers     LoanOfferStore
	CallOptions    CallOptionStore
	CallOptionBids CallOptionBidStore
	Rentals        RentalStore
}
