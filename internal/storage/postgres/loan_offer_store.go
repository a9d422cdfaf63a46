package postgres

import (
	"context"
	"fmt"
	"time"

	"dexloan-indexer/internal/domain"
	"dexloan-indexer/internal/storage"
)

// LoanOfferStore implements storage.LoanOfferStore using PostgreSQL.
type LoanOfferStore struct {
	pool *Pool
}

// NewLoanOfferStore creates a new LoanOfferStore.
func NewLoanOfferStore(pool *Pool) *LoanOfferStore {
	return &LoanOfferStore{pool: pool}
}

// Compile-time interface check.
var _ storage.LoanOfferStore = (*LoanOfferStore)(nil)

// Upsert creates or replaces the offer at its address. Returns
// ErrDuplicateKey if another address holds the same (offer_id, lender).
func (s *LoanOfferStore) Upsert(ctx context.Context, o *domain.LoanOffer) (err error) {
	defer observe("loan_offer_upsert", time.Now(), &err)

	query := `
		INSERT INTO loan_offers (
			address, offer_id, lender, amount, basis_points, duration,
			ltv, threshold, collection, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (address) DO UPDATE SET
			offer_id = EXCLUDED.offer_id,
			lender = EXCLUDED.lender,
			amount = EXCLUDED.amount,
			basis_points = EXCLUDED.basis_points,
			duration = EXCLUDED.duration,
			ltv = EXCLUDED.ltv,
			threshold = EXCLUDED.threshold,
			collection = EXCLUDED.collection,
			updated_at = EXCLUDED.updated_at
	`

	_, err = s.pool.Exec(ctx, query,
		o.Address,
		o.OfferID,
		o.Lender,
		o.Amount,
		o.BasisPoints,
		o.Duration,
		o.LTV,
		o.Threshold,
		o.Collection,
		o.UpdatedAt,
	)
	return writeError("upsert loan offer", err)
}

// Get retrieves an offer by address. Returns ErrNotFound if not exists.
func (s *LoanOfferStore) Get(ctx context.Context, address string) (*domain.LoanOffer, error) {
	query := `
		SELECT address, offer_id, lender, amount, basis_points, duration,
			ltv, threshold, collection, updated_at
		FROM loan_offers
		WHERE address = $1
	`

	var o domain.LoanOffer
	err := s.pool.QueryRow(ctx, query, address).Scan(
		&o.Address,
		&o.OfferID,
		&o.Lender,
		&o.Amount,
		&o.BasisPoints,
		&o.Duration,
		&o.LTV,
		&o.Threshold,
		&o.Collection,
		&o.UpdatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get loan offer: %w", err)
	}
	return &o, nil
}

// Delete removes the row. Deleting an absent row is not an error.
func (s *LoanOfferStore) Delete(ctx context.Context, address string) (err error) {
	defer observe("loan_offer_delete", time.Now(), &err)

	if _, err = s.pool.Exec(ctx, `DELETE FROM loan_offers WHERE address = $1`, address); err != nil {
		return fmt.Errorf("delete loan offer: %w", err)
	}
	return nil
}
