package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/openpredict/marketd/internal/domain"
)

type balanceKey struct {
	marketID string
	userID   string
}

// BalanceStore implements domain.BalanceStore in memory.
type BalanceStore struct {
	mu       sync.RWMutex
	balances map[balanceKey]float64
}

// NewBalanceStore creates an empty BalanceStore.
func NewBalanceStore() *BalanceStore {
	return &BalanceStore{balances: make(map[balanceKey]float64)}
}

// Get returns the trading balance, 0 when nothing has been deposited.
func (s *BalanceStore) Get(_ context.Context, marketID, userID string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.balances[balanceKey{marketID, userID}], nil
}

// Add atomically applies delta and returns the new balance. A delta that
// would take the balance negative is rejected without being applied.
func (s *BalanceStore) Add(_ context.Context, marketID, userID string, delta float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := balanceKey{marketID, userID}
	next := s.balances[key] + delta
	if next < 0 {
		return s.balances[key], fmt.Errorf("memory: balance %s/%s would go negative: %w",
			marketID, userID, domain.ErrExceedsAvailableBalance)
	}
	s.balances[key] = next
	return next, nil
}

var _ domain.BalanceStore = (*BalanceStore)(nil)
