package postgres

import (
	"context"
	"fmt"
	"time"

	"dexloan-indexer/internal/domain"
	"dexloan-indexer/internal/storage"
)

// CallOptionStore implements storage.CallOptionStore using PostgreSQL.
type CallOptionStore struct {
	pool *Pool
}

// NewCallOptionStore creates a new CallOptionStore.
func NewCallOptionStore(pool *Pool) *CallOptionStore {
	return &CallOptionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CallOptionStore = (*CallOptionStore)(nil)

// Upsert creates or replaces the row keyed by address.
func (s *CallOptionStore) Upsert(ctx context.Context, o *domain.CallOption) (err error) {
	defer observe("call_option_upsert", time.Now(), &err)

	query := `
		INSERT INTO call_options (
			address, state, seller, buyer, strike_price, cost, expiry,
			mint, uri, collection, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (address) DO UPDATE SET
			state = EXCLUDED.state,
			seller = EXCLUDED.seller,
			buyer = EXCLUDED.buyer,
			strike_price = EXCLUDED.strike_price,
			cost = EXCLUDED.cost,
			expiry = EXCLUDED.expiry,
			mint = EXCLUDED.mint,
			uri = EXCLUDED.uri,
			collection = EXCLUDED.collection,
			updated_at = EXCLUDED.updated_at
	`

	_, err = s.pool.Exec(ctx, query,
		o.Address,
		string(o.State),
		o.Seller,
		o.Buyer,
		o.StrikePrice,
		o.Cost,
		o.Expiry,
		o.Mint,
		o.URI,
		o.Collection,
		o.UpdatedAt,
	)
	return writeError("upsert call option", err)
}

// Get retrieves a call option by address. Returns ErrNotFound if not exists.
func (s *CallOptionStore) Get(ctx context.Context, address string) (*domain.CallOption, error) {
	query := `
		SELECT address, state, seller, buyer, strike_price, cost, expiry,
			mint, uri, collection, updated_at
		FROM call_options
		WHERE address = $1
	`

	var o domain.CallOption
	var state string
	err := s.pool.QueryRow(ctx, query, address).Scan(
		&o.Address,
		&state,
		&o.Seller,
		&o.Buyer,
		&o.StrikePrice,
		&o.Cost,
		&o.Expiry,
		&o.Mint,
		&o.URI,
		&o.Collection,
		&o.UpdatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get call option: %w", err)
	}
	o.State = domain.CallOptionState(state)
	return &o, nil
}

// Delete removes the row. Deleting an absent row is not an error.
func (s *CallOptionStore) Delete(ctx context.Context, address string) (err error) {
	defer observe("call_option_delete", time.Now(), &err)

	if _, err = s.pool.Exec(ctx, `DELETE FROM call_options WHERE address = $1`, address); err != nil {
		return fmt.Errorf("delete call option: %w", err)
	}
	return nil
}
