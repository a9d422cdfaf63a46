package clickhouse

import (
	"context"
	"fmt"
	"time"

	"dexloan-indexer/internal/domain"
	"dexloan-indexer/internal/observability"
	"dexloan-indexer/internal/storage"
)

// InstructionLogStore implements storage.InstructionLogStore using ClickHouse.
type InstructionLogStore struct {
	conn *Conn
}

// NewInstructionLogStore creates a new InstructionLogStore.
func NewInstructionLogStore(conn *Conn) *InstructionLogStore {
	return &InstructionLogStore{conn: conn}
}

// Compile-time interface check.
var _ storage.InstructionLogStore = (*InstructionLogStore)(nil)

// InsertBulk appends entries in one batch.
func (s *InstructionLogStore) InsertBulk(ctx context.Context, entries []*domain.InstructionLogEntry) (err error) {
	if len(entries) == 0 {
		return nil
	}
	for _, e := range entries {
		if e == nil || e.Signature == "" {
			return storage.ErrInvalidInput
		}
	}

	start := time.Now()
	defer func() {
		observability.RecordDBQuery("clickhouse", "instruction_log_insert", time.Since(start).Seconds(), err)
	}()

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO instruction_log (
			batch_id, signature, slot, instruction_index, instruction_name,
			operations, applied, skipped, processed_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range entries {
		err = batch.Append(
			e.BatchID,
			e.Signature,
			uint64(e.Slot),
			uint32(e.InstructionIndex),
			e.InstructionName,
			uint16(e.Operations),
			uint16(e.Applied),
			uint16(e.Skipped),
			time.UnixMilli(e.ProcessedAt).UTC(),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err = batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetBySignature retrieves entries for a transaction, ordered by instruction index.
func (s *InstructionLogStore) GetBySignature(ctx context.Context, signature string) ([]*domain.InstructionLogEntry, error) {
	query := `
		SELECT batch_id, signature, slot, instruction_index, instruction_name,
			operations, applied, skipped, processed_at
		FROM instruction_log
		WHERE signature = ?
		ORDER BY instruction_index ASC, processed_at ASC
	`

	rows, err := s.conn.Query(ctx, query, signature)
	if err != nil {
		return nil, fmt.Errorf("query instruction log: %w", err)
	}
	defer rows.Close()

	var result []*domain.InstructionLogEntry
	for rows.Next() {
		var (
			e                            domain.InstructionLogEntry
			slot                         uint64
			index                        uint32
			operations, applied, skipped uint16
			processedAt                  time.Time
		)
		if err := rows.Scan(
			&e.BatchID,
			&e.Signature,
			&slot,
			&index,
			&e.InstructionName,
			&operations,
			&applied,
			&skipped,
			&processedAt,
		); err != nil {
			return nil, fmt.Errorf("scan instruction log row: %w", err)
		}
		e.Slot = int64(slot)
		e.InstructionIndex = int(index)
		e.Operations = int(operations)
		e.Applied = int(applied)
		e.Skipped = int(skipped)
		e.ProcessedAt = processedAt.UnixMilli()
		result = append(result, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate instruction log rows: %w", err)
	}
	return result, nil
}
