package memory

import (
	"context"
	"sync"

	"dexloan-indexer/internal/domain"
	"dexloan-indexer/internal/storage"
)

// CallOptionStore is an in-memory implementation of storage.CallOptionStore.
type CallOptionStore struct {
	mu          sync.RWMutex
	data        map[string]*domain.CallOption // keyed by address
	collections *CollectionStore
}

// NewCallOptionStore creates a new in-memory call option store.
func NewCallOptionStore(collections *CollectionStore) *CallOptionStore {
	return &CallOptionStore{
		data:        make(map[string]*domain.CallOption),
		collections: collections,
	}
}

var _ storage.CallOptionStore = (*CallOptionStore)(nil)

// Upsert creates or replaces the row keyed by address.
func (s *CallOptionStore) Upsert(_ context.Context, o *domain.CallOption) error {
	if o == nil || o.Address == "" {
		return storage.ErrInvalidInput
	}
	if !s.collections.exists(o.Collection) {
		return storage.ErrParentMissing
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	row := *o
	s.data[o.Address] = &row
	return nil
}

// Get retrieves a call option by address. Returns ErrNotFound if not exists.
func (s *CallOptionStore) Get(_ context.Context, address string) (*domain.CallOption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.data[address]
	if !ok {
		return nil, storage.ErrNotFound
	}
	row := *o
	return &row, nil
}

// Delete removes the row. Deleting an absent row is not an error.
func (s *CallOptionStore) Delete(_ context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, address)
	return nil
}
