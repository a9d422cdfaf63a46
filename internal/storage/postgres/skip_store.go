package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"dexloan-indexer/internal/domain"
	"dexloan-indexer/internal/storage"
)

// SkipStore implements storage.SkipStore using PostgreSQL.
type SkipStore struct {
	pool *Pool
}

// NewSkipStore creates a new SkipStore.
func NewSkipStore(pool *Pool) *SkipStore {
	return &SkipStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SkipStore = (*SkipStore)(nil)

const skipColumns = `skip_id, signature, instruction_index, instruction_name, action, kind,
	address, collection_hint, mint_hint, reason, error, attempts, created_at, resolved_at`

// Record journals a skip. An existing skip_id is reopened with attempts bumped.
func (s *SkipStore) Record(ctx context.Context, rec *domain.SkipRecord) (err error) {
	if rec == nil || rec.SkipID == "" {
		return storage.ErrInvalidInput
	}
	defer observe("skip_record", time.Now(), &err)

	query := `
		INSERT INTO index_skips (` + skipColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NULL)
		ON CONFLICT (skip_id) DO UPDATE SET
			reason = EXCLUDED.reason,
			error = EXCLUDED.error,
			attempts = index_skips.attempts + 1,
			resolved_at = NULL
	`

	attempts := rec.Attempts
	if attempts < 1 {
		attempts = 1
	}

	_, err = s.pool.Exec(ctx, query,
		rec.SkipID,
		rec.Signature,
		rec.InstructionIndex,
		rec.InstructionName,
		rec.Action,
		string(rec.Kind),
		rec.Address,
		rec.CollectionHint,
		rec.MintHint,
		string(rec.Reason),
		rec.Error,
		attempts,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record skip: %w", err)
	}
	return nil
}

// Get retrieves a skip by ID. Returns ErrNotFound if not exists.
func (s *SkipStore) Get(ctx context.Context, skipID string) (*domain.SkipRecord, error) {
	query := `SELECT ` + skipColumns + ` FROM index_skips WHERE skip_id = $1`

	rec, err := scanSkip(s.pool.QueryRow(ctx, query, skipID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get skip: %w", err)
	}
	return rec, nil
}

// ListUnresolved retrieves up to limit unresolved skips, oldest first.
func (s *SkipStore) ListUnresolved(ctx context.Context, limit int) ([]*domain.SkipRecord, error) {
	if limit <= 0 {
		limit = 1000
	}
	query := `
		SELECT ` + skipColumns + `
		FROM index_skips
		WHERE resolved_at IS NULL
		ORDER BY created_at ASC, skip_id ASC
		LIMIT $1
	`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list unresolved skips: %w", err)
	}
	defer rows.Close()

	var result []*domain.SkipRecord
	for rows.Next() {
		rec, err := scanSkip(rows)
		if err != nil {
			return nil, fmt.Errorf("scan skip row: %w", err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate skip rows: %w", err)
	}
	return result, nil
}

// MarkResolved sets resolved_at. Returns ErrNotFound if not exists.
func (s *SkipStore) MarkResolved(ctx context.Context, skipID string, resolvedAt int64) error {
	tag, err := s.pool.Exec(ctx, `UPDATE index_skips SET resolved_at = $2 WHERE skip_id = $1`, skipID, resolvedAt)
	if err != nil {
		return fmt.Errorf("mark skip resolved: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// IncrementAttempts bumps attempts and replaces the error text.
func (s *SkipStore) IncrementAttempts(ctx context.Context, skipID string, errText string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE index_skips SET attempts = attempts + 1, error = $2 WHERE skip_id = $1`,
		skipID, errText,
	)
	if err != nil {
		return fmt.Errorf("increment skip attempts: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// CountUnresolved returns the number of unresolved skips.
func (s *SkipStore) CountUnresolved(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM index_skips WHERE resolved_at IS NULL`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count unresolved skips: %w", err)
	}
	return n, nil
}

func scanSkip(row pgx.Row) (*domain.SkipRecord, error) {
	var rec domain.SkipRecord
	var kind, reason string

	err := row.Scan(
		&rec.SkipID,
		&rec.Signature,
		&rec.InstructionIndex,
		&rec.InstructionName,
		&rec.Action,
		&kind,
		&rec.Address,
		&rec.CollectionHint,
		&rec.MintHint,
		&reason,
		&rec.Error,
		&rec.Attempts,
		&rec.CreatedAt,
		&rec.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Kind = domain.EntityKind(kind)
	rec.Reason = domain.SkipReason(reason)
	return &rec, nil
}
