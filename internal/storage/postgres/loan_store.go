package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"dexloan-indexer/internal/domain"
	"dexloan-indexer/internal/storage"
)

// LoanStore implements storage.LoanStore using PostgreSQL.
type LoanStore struct {
	pool *Pool
}

// NewLoanStore creates a new LoanStore.
func NewLoanStore(pool *Pool) *LoanStore {
	return &LoanStore{pool: pool}
}

// Compile-time interface check.
var _ storage.LoanStore = (*LoanStore)(nil)

const loanColumns = `address, state, borrower, lender, amount, basis_points, duration,
	start_date, mint, uri, collection, updated_at`

// Upsert creates or replaces the row keyed by address.
func (s *LoanStore) Upsert(ctx context.Context, l *domain.Loan) (err error) {
	defer observe("loan_upsert", time.Now(), &err)

	query := `
		INSERT INTO loans (` + loanColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (address) DO UPDATE SET
			state = EXCLUDED.state,
			borrower = EXCLUDED.borrower,
			lender = EXCLUDED.lender,
			amount = EXCLUDED.amount,
			basis_points = EXCLUDED.basis_points,
			duration = EXCLUDED.duration,
			start_date = EXCLUDED.start_date,
			mint = EXCLUDED.mint,
			uri = EXCLUDED.uri,
			collection = EXCLUDED.collection,
			updated_at = EXCLUDED.updated_at
	`

	_, err = s.pool.Exec(ctx, query,
		l.Address,
		string(l.State),
		l.Borrower,
		l.Lender,
		l.Amount,
		l.BasisPoints,
		l.Duration,
		l.StartDate,
		l.Mint,
		l.URI,
		l.Collection,
		l.UpdatedAt,
	)
	return writeError("upsert loan", err)
}

// Get retrieves a loan by address. Returns ErrNotFound if not exists.
func (s *LoanStore) Get(ctx context.Context, address string) (*domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE address = $1`

	l, err := scanLoan(s.pool.QueryRow(ctx, query, address))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get loan: %w", err)
	}
	return l, nil
}

// Delete removes the row. Deleting an absent row is not an error.
func (s *LoanStore) Delete(ctx context.Context, address string) (err error) {
	defer observe("loan_delete", time.Now(), &err)

	if _, err = s.pool.Exec(ctx, `DELETE FROM loans WHERE address = $1`, address); err != nil {
		return fmt.Errorf("delete loan: %w", err)
	}
	return nil
}

// ListByBorrower retrieves loans of a borrower, ordered by address.
func (s *LoanStore) ListByBorrower(ctx context.Context, borrower string) ([]*domain.Loan, error) {
	return s.list(ctx, `SELECT `+loanColumns+` FROM loans WHERE borrower = $1 ORDER BY address ASC`, borrower)
}

// ListByLender retrieves loans funded by a lender, ordered by address.
func (s *LoanStore) ListByLender(ctx context.Context, lender string) ([]*domain.Loan, error) {
	return s.list(ctx, `SELECT `+loanColumns+` FROM loans WHERE lender = $1 ORDER BY address ASC`, lender)
}

func (s *LoanStore) list(ctx context.Context, query string, arg string) ([]*domain.Loan, error) {
	rows, err := s.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list loans: %w", err)
	}
	defer rows.Close()

	var loans []*domain.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan loan row: %w", err)
		}
		loans = append(loans, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate loan rows: %w", err)
	}
	return loans, nil
}

func scanLoan(row pgx.Row) (*domain.Loan, error) {
	var l domain.Loan
	var state string

	err := row.Scan(
		&l.Address,
		&state,
		&l.Borrower,
		&l.Lender,
		&l.Amount,
		&l.BasisPoints,
		&l.Duration,
		&l.StartDate,
		&l.Mint,
		&l.URI,
		&l.Collection,
		&l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	l.State = domain.LoanState(state)
	return &l, nil
}
