package memory

import (
	"context"
	"sort"
	"sync"

	"dexloan-indexer/internal/domain"
	"dexloan-indexer/internal/storage"
)

// SkipStore is an in-memory implementation of storage.SkipStore.
type SkipStore struct {
	mu   sync.RWMutex
	data map[string]*domain.SkipRecord // keyed by skip_id
}

// NewSkipStore creates a new in-memory skip journal.
func NewSkipStore() *SkipStore {
	return &SkipStore{
		data: make(map[string]*domain.SkipRecord),
	}
}

var _ storage.SkipStore = (*SkipStore)(nil)

// Record journals a skip. An existing skip_id is reopened with attempts bumped.
func (s *SkipStore) Record(_ context.Context, rec *domain.SkipRecord) error {
	if rec == nil || rec.SkipID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.data[rec.SkipID]; ok {
		existing.Attempts++
		existing.Error = rec.Error
		existing.Reason = rec.Reason
		existing.ResolvedAt = nil
		return nil
	}

	row := *rec
	if row.Attempts < 1 {
		row.Attempts = 1
	}
	s.data[rec.SkipID] = &row
	return nil
}

// Get retrieves a skip by ID. Returns ErrNotFound if not exists.
func (s *SkipStore) Get(_ context.Context, skipID string) (*domain.SkipRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.data[skipID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	row := *rec
	return &row, nil
}

// ListUnresolved retrieves up to limit unresolved skips, oldest first.
func (s *SkipStore) ListUnresolved(_ context.Context, limit int) ([]*domain.SkipRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SkipRecord
	for _, rec := range s.data {
		if rec.ResolvedAt == nil {
			row := *rec
			result = append(result, &row)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt < result[j].CreatedAt
		}
		return result[i].SkipID < result[j].SkipID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// MarkResolved sets resolved_at. Returns ErrNotFound if not exists.
func (s *SkipStore) MarkResolved(_ context.Context, skipID string, resolvedAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.data[skipID]
	if !ok {
		return storage.ErrNotFound
	}
	rec.ResolvedAt = &resolvedAt
	return nil
}

// IncrementAttempts bumps attempts and replaces the error text.
func (s *SkipStore) IncrementAttempts(_ context.Context, skipID string, errText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.data[skipID]
	if !ok {
		return storage.ErrNotFound
	}
	rec.Attempts++
	rec.Error = errText
	return nil
}

// CountUnresolved returns the number of unresolved skips.
func (s *SkipStore) CountUnresolved(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, rec := range s.data {
		if rec.ResolvedAt == nil {
			n++
		}
	}
	return n, nil
}
