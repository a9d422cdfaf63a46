package memory

import (
	"context"
	"sort"
	"sync"

	"dexloan-indexer/internal/domain"
	"dexloan-indexer/internal/storage"
)

// LoanStore is an in-memory implementation of storage.LoanStore.
type LoanStore struct {
	mu          sync.RWMutex
	data        map[string]*domain.Loan // keyed by address
	collections *CollectionStore
}

// NewLoanStore creates a new in-memory loan store whose rows reference collections.
func NewLoanStore(collections *CollectionStore) *LoanStore {
	return &LoanStore{
		data:        make(map[string]*domain.Loan),
		collections: collections,
	}
}

var _ storage.LoanStore = (*LoanStore)(nil)

// Upsert creates or replaces the row keyed by address.
func (s *LoanStore) Upsert(_ context.Context, l *domain.Loan) error {
	if l == nil || l.Address == "" {
		return storage.ErrInvalidInput
	}
	if !s.collections.exists(l.Collection) {
		return storage.ErrParentMissing
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	row := *l
	s.data[l.Address] = &row
	return nil
}

// Get retrieves a loan by address. Returns ErrNotFound if not exists.
func (s *LoanStore) Get(_ context.Context, address string) (*domain.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.data[address]
	if !ok {
		return nil, storage.ErrNotFound
	}
	row := *l
	return &row, nil
}

// Delete removes the row. Deleting an absent row is not an error.
func (s *LoanStore) Delete(_ context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, address)
	return nil
}

// ListByBorrower retrieves loans of a borrower, ordered by address.
func (s *LoanStore) ListByBorrower(_ context.Context, borrower string) ([]*domain.Loan, error) {
	return s.filter(func(l *domain.Loan) bool { return l.Borrower == borrower }), nil
}

// ListByLender retrieves loans funded by a lender, ordered by address.
func (s *LoanStore) ListByLender(_ context.Context, lender string) ([]*domain.Loan, error) {
	return s.filter(func(l *domain.Loan) bool { return l.Lender != nil && *l.Lender == lender }), nil
}

func (s *LoanStore) filter(match func(*domain.Loan) bool) []*domain.Loan {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Loan
	for _, l := range s.data {
		if match(l) {
			row := *l
			result = append(result, &row)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Address < result[j].Address
	})
	return result
}
