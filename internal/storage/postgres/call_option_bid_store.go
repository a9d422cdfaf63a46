package postgres

import (
	"context"
	"fmt"
	"time"

	"dexloan-indexer/internal/domain"
	"dexloan-indexer/internal/storage"
)

// CallOptionBidStore implements storage.CallOptionBidStore using PostgreSQL.
type CallOptionBidStore struct {
	pool *Pool
}

// NewCallOptionBidStore creates a new CallOptionBidStore.
func NewCallOptionBidStore(pool *Pool) *CallOptionBidStore {
	return &CallOptionBidStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CallOptionBidStore = (*CallOptionBidStore)(nil)

// Upsert creates or replaces the bid at its address. Returns
// ErrDuplicateKey if another address holds the same (bid_id, buyer).
func (s *CallOptionBidStore) Upsert(ctx context.Context, b *domain.CallOptionBid) (err error) {
	defer observe("call_option_bid_upsert", time.Now(), &err)

	query := `
		INSERT INTO call_option_bids (
			address, bid_id, buyer, strike_price, cost, expiry, collection, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (address) DO UPDATE SET
			bid_id = EXCLUDED.bid_id,
			buyer = EXCLUDED.buyer,
			strike_price = EXCLUDED.strike_price,
			cost = EXCLUDED.cost,
			expiry = EXCLUDED.expiry,
			collection = EXCLUDED.collection,
			updated_at = EXCLUDED.updated_at
	`

	_, err = s.pool.Exec(ctx, query,
		b.Address,
		b.BidID,
		b.Buyer,
		b.StrikePrice,
		b.Cost,
		b.Expiry,
		b.Collection,
		b.UpdatedAt,
	)
	return writeError("upsert call option bid", err)
}

// Get retrieves a bid by address. Returns ErrNotFound if not exists.
func (s *CallOptionBidStore) Get(ctx context.Context, address string) (*domain.CallOptionBid, error) {
	query := `
		SELECT address, bid_id, buyer, strike_price, cost, expiry, collection, updated_at
		FROM call_option_bids
		WHERE address = $1
	`

	var b domain.CallOptionBid
	err := s.pool.QueryRow(ctx, query, address).Scan(
		&b.Address,
		&b.BidID,
		&b.Buyer,
		&b.StrikePrice,
		&b.Cost,
		&b.Expiry,
		&b.Collection,
		&b.UpdatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get call option bid: %w", err)
	}
	return &b, nil
}

// Delete removes the row. Deleting an absent row is not an error.
func (s *CallOptionBidStore) Delete(ctx context.Context, address string) (err error) {
	defer observe("call_option_bid_delete", time.Now(), &err)

	if _, err = s.pool.Exec(ctx, `DELETE FROM call_option_bids WHERE address = $1`, address); err != nil {
		return fmt.Errorf("delete call option bid: %w", err)
	}
	return nil
}
