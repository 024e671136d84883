package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/openpredict/marketd/internal/domain"
)

type allocationKey struct {
	marketID    string
	userID      string
	optionIndex int
}

// AllocationStore implements domain.AllocationStore in memory.
type AllocationStore struct {
	mu     sync.RWMutex
	allocs map[allocationKey]domain.Allocation
}

// NewAllocationStore creates an empty AllocationStore.
func NewAllocationStore() *AllocationStore {
	return &AllocationStore{allocs: make(map[allocationKey]domain.Allocation)}
}

// Get returns the staged allocation, or domain.ErrNotFound.
func (s *AllocationStore) Get(_ context.Context, marketID, userID string, optionIndex int) (domain.Allocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	alloc, ok := s.allocs[allocationKey{marketID, userID, optionIndex}]
	if !ok {
		return domain.Allocation{}, fmt.Errorf("memory: allocation %s/%s opt %d: %w",
			marketID, userID, optionIndex, domain.ErrNotFound)
	}
	return alloc, nil
}

// Put creates or replaces the staged allocation.
func (s *AllocationStore) Put(_ context.Context, alloc domain.Allocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.allocs[allocationKey{alloc.MarketID, alloc.UserID, alloc.OptionIndex}] = alloc
	return nil
}

// Delete removes the staged allocation. Absent entries are a no-op.
func (s *AllocationStore) Delete(_ context.Context, marketID, userID string, optionIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.allocs, allocationKey{marketID, userID, optionIndex})
	return nil
}

// ListByUser returns the user's staged allocations ordered by option index.
func (s *AllocationStore) ListByUser(_ context.Context, marketID, userID string) ([]domain.Allocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Allocation
	for key, alloc := range s.allocs {
		if key.marketID == marketID && key.userID == userID {
			out = append(out, alloc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OptionIndex < out[j].OptionIndex })
	return out, nil
}

var _ domain.AllocationStore = (*AllocationStore)(nil)
