package postgres

import (
	"context"
	"fmt"
	"time"

	"dexloan-indexer/internal/domain"
	"dexloan-indexer/internal/storage"
)

// RentalStore implements storage.RentalStore using PostgreSQL.
type RentalStore struct {
	pool *Pool
}

// NewRentalStore creates a new RentalStore.
func NewRentalStore(pool *Pool) *RentalStore {
	return &RentalStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RentalStore = (*RentalStore)(nil)

// Upsert creates or replaces the row keyed by address.
func (s *RentalStore) Upsert(ctx context.Context, r *domain.Rental) (err error) {
	defer observe("rental_upsert", time.Now(), &err)

	query := `
		INSERT INTO rentals (
			address, state, lender, borrower, amount, expiry,
			current_start, current_expiry, escrow_balance,
			mint, uri, collection, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (address) DO UPDATE SET
			state = EXCLUDED.state,
			lender = EXCLUDED.lender,
			borrower = EXCLUDED.borrower,
			amount = EXCLUDED.amount,
			expiry = EXCLUDED.expiry,
			current_start = EXCLUDED.current_start,
			current_expiry = EXCLUDED.current_expiry,
			escrow_balance = EXCLUDED.escrow_balance,
			mint = EXCLUDED.mint,
			uri = EXCLUDED.uri,
			collection = EXCLUDED.collection,
			updated_at = EXCLUDED.updated_at
	`

	_, err = s.pool.Exec(ctx, query,
		r.Address,
		string(r.State),
		r.Lender,
		r.Borrower,
		r.Amount,
		r.Expiry,
		r.CurrentStart,
		r.CurrentExpiry,
		r.EscrowBalance,
		r.Mint,
		r.URI,
		r.Collection,
		r.UpdatedAt,
	)
	return writeError("upsert rental", err)
}

// Get retrieves a rental by address. Returns ErrNotFound if not exists.
func (s *RentalStore) Get(ctx context.Context, address string) (*domain.Rental, error) {
	query := `
		SELECT address, state, lender, borrower, amount, expiry,
			current_start, current_expiry, escrow_balance,
			mint, uri, collection, updated_at
		FROM rentals
		WHERE address = $1
	`

	var r domain.Rental
	var state string
	err := s.pool.QueryRow(ctx, query, address).Scan(
		&r.Address,
		&state,
		&r.Lender,
		&r.Borrower,
		&r.Amount,
		&r.Expiry,
		&r.CurrentStart,
		&r.CurrentExpiry,
		&r.EscrowBalance,
		&r.Mint,
		&r.URI,
		&r.Collection,
		&r.UpdatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get rental: %w", err)
	}
	r.State = domain.RentalState(state)
	return &r, nil
}

// Delete removes the row. Deleting an absent row is not an error.
func (s *RentalStore) Delete(ctx context.Context, address string) (err error) {
	defer observe("rental_delete", time.Now(), &err)

	if _, err = s.pool.Exec(ctx, `DELETE FROM rentals WHERE address = $1`, address); err != nil {
		return fmt.Errorf("delete rental: %w", err)
	}
	return nil
}
