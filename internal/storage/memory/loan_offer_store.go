package memory

import (
	"context"
	"sync"

	"dexloan-indexer/internal/domain"
	"dexloan-indexer/internal/storage"
)

// LoanOfferStore is an in-memory implementation of storage.LoanOfferStore.
type LoanOfferStore struct {
	mu          sync.RWMutex
	data        map[string]*domain.LoanOffer // keyed by address
	collections *CollectionStore
}

// NewLoanOfferStore creates a new in-memory loan offer store.
func NewLoanOfferStore(collections *CollectionStore) *LoanOfferStore {
	return &LoanOfferStore{
		data:        make(map[string]*domain.LoanOffer),
		collections: collections,
	}
}

var _ storage.LoanOfferStore = (*LoanOfferStore)(nil)

// Upsert creates or replaces the offer at its address. Returns
// ErrDuplicateKey if another address holds the same (offer_id, lender).
func (s *LoanOfferStore) Upsert(_ context.Context, o *domain.LoanOffer) error {
	if o == nil || o.Address == "" {
		return storage.ErrInvalidInput
	}
	if !s.collections.exists(o.Collection) {
		return storage.ErrParentMissing
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for address, existing := range s.data {
		if address != o.Address && existing.OfferID == o.OfferID && existing.Lender == o.Lender {
			return storage.ErrDuplicateKey
		}
	}

	row := *o
	s.data[o.Address] = &row
	return nil
}

// Get retrieves an offer by address. Returns ErrNotFound if not exists.
func (s *LoanOfferStore) Get(_ context.Context, address string) (*domain.LoanOffer, error) {
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
func (s *LoanOfferStore) Delete(_ context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, address)
	return nil
}
