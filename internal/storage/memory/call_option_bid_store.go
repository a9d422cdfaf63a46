package memory

import (
	"context"
	"sync"

	"dexloan-indexer/internal/domain"
	"dexloan-indexer/internal/storage"
)

// CallOptionBidStore is an in-memory implementation of storage.CallOptionBidStore.
type CallOptionBidStore struct {
	mu          sync.RWMutex
	data        map[string]*domain.CallOptionBid // keyed by address
	collections *CollectionStore
}

// NewCallOptionBidStore creates a new in-memory bid store.
func NewCallOptionBidStore(collections *CollectionStore) *CallOptionBidStore {
	return &CallOptionBidStore{
		data:        make(map[string]*domain.CallOptionBid),
		collections: collections,
	}
}

var _ storage.CallOptionBidStore = (*CallOptionBidStore)(nil)

// Upsert creates or replaces the bid at its address. Returns
// ErrDuplicateKey if another address holds the same (bid_id, buyer).
func (s *CallOptionBidStore) Upsert(_ context.Context, b *domain.CallOptionBid) error {
	if b == nil || b.Address == "" {
		return storage.ErrInvalidInput
	}
	if !s.collections.exists(b.Collection) {
		return storage.ErrParentMissing
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for address, existing := range s.data {
		if address != b.Address && existing.BidID == b.BidID && existing.Buyer == b.Buyer {
			return storage.ErrDuplicateKey
		}
	}

	row := *b
	s.data[b.Address] = &row
	return nil
}

// Get retrieves a bid by address. Returns ErrNotFound if not exists.
func (s *CallOptionBidStore) Get(_ context.Context, address string) (*domain.CallOptionBid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.data[address]
	if !ok {
		return nil, storage.ErrNotFound
	}
	row := *b
	return &row, nil
}

// Delete removes the row. Deleting an absent row is not an error.
func (s *CallOptionBidStore) Delete(_ context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, address)
	return nil
}
