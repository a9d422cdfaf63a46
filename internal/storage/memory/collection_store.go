package memory

import (
	"context"
	"sync"

	"dexloan-indexer/internal/domain"
	"dexloan-indexer/internal/storage"
)

// CollectionStore is an in-memory implementation of storage.CollectionStore.
type CollectionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Collection // keyed by address
}

// NewCollectionStore creates a new in-memory collection store.
func NewCollectionStore() *CollectionStore {
	return &CollectionStore{
		data: make(map[string]*domain.Collection),
	}
}

var _ storage.CollectionStore = (*CollectionStore)(nil)

// Upsert creates or replaces the row keyed by address.
func (s *CollectionStore) Upsert(_ context.Context, c *domain.Collection) error {
	if c == nil || c.Address == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	row := *c
	s.data[c.Address] = &row
	return nil
}

// Get retrieves a collection by address. Returns ErrNotFound if not exists.
func (s *CollectionStore) Get(_ context.Context, address string) (*domain.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.data[address]
	if !ok {
		return nil, storage.ErrNotFound
	}
	row := *c
	return &row, nil
}

// SetDisabled flips the disabled flag. Returns ErrNotFound if not exists.
func (s *CollectionStore) SetDisabled(_ context.Context, address string, disabled bool, updatedAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.data[address]
	if !ok {
		return storage.ErrNotFound
	}
	c.Disabled = disabled
	c.UpdatedAt = updatedAt
	return nil
}

// Count returns the number of mirrored collections.
func (s *CollectionStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.data)), nil
}

// exists reports whether a collection row is present. Child stores use it
// in place of a foreign key.
func (s *CollectionStore) exists(address string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[address]
	return ok
}
