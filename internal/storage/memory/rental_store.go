package memory

import (
	"context"
	"sync"

	"dexloan-indexer/internal/domain"
	"dexloan-indexer/internal/storage"
)

// RentalStore is an in-memory implementation of storage.RentalStore.
type RentalStore struct {
	mu          sync.RWMutex
	data        map[string]*domain.Rental // keyed by address
	collections *CollectionStore
}

// NewRentalStore creates a new in-memory rental store.
func NewRentalStore(collections *CollectionStore) *RentalStore {
	return &RentalStore{
		data:        make(map[string]*domain.Rental),
		collections: collections,
	}
}

var _ storage.RentalStore = (*RentalStore)(nil)

// Upsert creates or replaces the row keyed by address.
func (s *RentalStore) Upsert(_ context.Context, r *domain.Rental) error {
	if r == nil || r.Address == "" {
		return storage.ErrInvalidInput
	}
	if !s.collections.exists(r.Collection) {
		return storage.ErrParentMissing
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	row := *r
	s.data[r.Address] = &row
	return nil
}

// Get retrieves a rental by address. Returns ErrNotFound if not exists.
func (s *RentalStore) Get(_ context.Context, address string) (*domain.Rental, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.data[address]
	if !ok {
		return nil, storage.ErrNotFound
	}
	row := *r
	return &row, nil
}

// Delete removes the row. Deleting an absent row is not an error.
func (s *RentalStore) Delete(_ context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, address)
	return nil
}
