package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"dexloan-indexer/internal/domain"
	"dexloan-indexer/internal/storage"
)

// CollectionStore implements storage.CollectionStore using PostgreSQL.
type CollectionStore struct {
	pool *Pool
}

// NewCollectionStore creates a new CollectionStore.
func NewCollectionStore(pool *Pool) *CollectionStore {
	return &CollectionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CollectionStore = (*CollectionStore)(nil)

// Upsert creates or replaces the row keyed by address.
func (s *CollectionStore) Upsert(ctx context.Context, c *domain.Collection) (err error) {
	defer observe("collection_upsert", time.Now(), &err)

	query := `
		INSERT INTO collections (
			address, mint, authority,
			loan_enabled, loan_basis_points, option_enabled, option_basis_points,
			rental_enabled, rental_basis_points,
			name, symbol, uri, disabled, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (address) DO UPDATE SET
			mint = EXCLUDED.mint,
			authority = EXCLUDED.authority,
			loan_enabled = EXCLUDED.loan_enabled,
			loan_basis_points = EXCLUDED.loan_basis_points,
			option_enabled = EXCLUDED.option_enabled,
			option_basis_points = EXCLUDED.option_basis_points,
			rental_enabled = EXCLUDED.rental_enabled,
			rental_basis_points = EXCLUDED.rental_basis_points,
			name = EXCLUDED.name,
			symbol = EXCLUDED.symbol,
			uri = EXCLUDED.uri,
			disabled = EXCLUDED.disabled,
			updated_at = EXCLUDED.updated_at
	`

	_, err = s.pool.Exec(ctx, query,
		c.Address,
		c.Mint,
		c.Authority,
		c.LoanEnabled,
		c.LoanBasisPoints,
		c.OptionEnabled,
		c.OptionBasisPoints,
		c.RentalEnabled,
		c.RentalBasisPoints,
		c.Name,
		c.Symbol,
		c.URI,
		c.Disabled,
		c.UpdatedAt,
	)
	return writeError("upsert collection", err)
}

// Get retrieves a collection by address. Returns ErrNotFound if not exists.
func (s *CollectionStore) Get(ctx context.Context, address string) (*domain.Collection, error) {
	query := `
		SELECT address, mint, authority,
			loan_enabled, loan_basis_points, option_enabled, option_basis_points,
			rental_enabled, rental_basis_points,
			name, symbol, uri, disabled, updated_at
		FROM collections
		WHERE address = $1
	`

	c, err := scanCollection(s.pool.QueryRow(ctx, query, address))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get collection: %w", err)
	}
	return c, nil
}

// SetDisabled flips the disabled flag. Returns ErrNotFound if not exists.
func (s *CollectionStore) SetDisabled(ctx context.Context, address string, disabled bool, updatedAt int64) (err error) {
	defer observe("collection_disable", time.Now(), &err)

	tag, err := s.pool.Exec(ctx,
		`UPDATE collections SET disabled = $2, updated_at = $3 WHERE address = $1`,
		address, disabled, updatedAt,
	)
	if err != nil {
		return fmt.Errorf("set collection disabled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Count returns the number of mirrored collections.
func (s *CollectionStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM collections`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count collections: %w", err)
	}
	return n, nil
}

func scanCollection(row pgx.Row) (*domain.Collection, error) {
	var c domain.Collection
	err := row.Scan(
		&c.Address,
		&c.Mint,
		&c.Authority,
		&c.LoanEnabled,
		&c.LoanBasisPoints,
		&c.OptionEnabled,
		&c.OptionBasisPoints,
		&c.RentalEnabled,
		&c.RentalBasisPoints,
		&c.Name,
		&c.Symbol,
		&c.URI,
		&c.Disabled,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
