package memory

import (
	"context"
	"sort"
	"sync"

	"dexloan-indexer/internal/domain"
	"dexloan-indexer/internal/storage"
)

// InstructionLogStore is an in-memory implementation of storage.InstructionLogStore.
type InstructionLogStore struct {
	mu      sync.RWMutex
	entries []*domain.InstructionLogEntry
}

// NewInstructionLogStore creates a new in-memory instruction log.
func NewInstructionLogStore() *InstructionLogStore {
	return &InstructionLogStore{}
}

var _ storage.InstructionLogStore = (*InstructionLogStore)(nil)

// InsertBulk appends entries.
func (s *InstructionLogStore) InsertBulk(_ context.Context, entries []*domain.InstructionLogEntry) error {
	for _, e := range entries {
		if e == nil || e.Signature == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		row := *e
		s.entries = append(s.entries, &row)
	}
	return nil
}

// GetBySignature retrieves entries for a transaction, ordered by instruction index.
func (s *InstructionLogStore) GetBySignature(_ context.Context, signature string) ([]*domain.InstructionLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.InstructionLogEntry
	for _, e := range s.entries {
		if e.Signature == signature {
			row := *e
			result = append(result, &row)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].InstructionIndex < result[j].InstructionIndex
	})
	return result, nil
}

// Len returns the number of entries.
func (s *InstructionLogStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
