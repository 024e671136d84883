package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/openpredict/marketd/internal/domain"
)

// TransactionStore implements domain.TransactionStore in memory. Entries are
// kept in insertion order; list queries walk backwards for most-recent-first.
type TransactionStore struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]domain.Transaction
	byRef map[string]string // settlement ref -> transaction ID
}

// NewTransactionStore creates an empty TransactionStore.
func NewTransactionStore() *TransactionStore {
	return &TransactionStore{
		byID:  make(map[string]domain.Transaction),
		byRef: make(map[string]string),
	}
}

// Insert appends a transaction. Duplicate IDs and duplicate non-empty
// settlement references are rejected with domain.ErrAlreadyExists.
func (s *TransactionStore) Insert(_ context.Context, tx domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[tx.ID]; ok {
		return fmt.Errorf("memory: transaction %s: %w", tx.ID, domain.ErrAlreadyExists)
	}
	if tx.SettlementRef != "" {
		if _, ok := s.byRef[tx.SettlementRef]; ok {
			return fmt.Errorf("memory: settlement ref %s: %w", tx.SettlementRef, domain.ErrAlreadyExists)
		}
		s.byRef[tx.SettlementRef] = tx.ID
	}
	s.byID[tx.ID] = tx
	s.order = append(s.order, tx.ID)
	return nil
}

// Get returns the transaction by ID, or domain.ErrNotFound.
func (s *TransactionStore) Get(_ context.Context, id string) (domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.byID[id]
	if !ok {
		return domain.Transaction{}, fmt.Errorf("memory: transaction %s: %w", id, domain.ErrNotFound)
	}
	return tx, nil
}

// GetBySettlementRef returns the transaction carrying ref, or domain.ErrNotFound.
func (s *TransactionStore) GetBySettlementRef(_ context.Context, ref string) (domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byRef[ref]
	if !ok {
		return domain.Transaction{}, fmt.Errorf("memory: settlement ref %s: %w", ref, domain.ErrNotFound)
	}
	return s.byID[id], nil
}

// UpdateStatus sets the status without transition checks.
func (s *TransactionStore) UpdateStatus(_ context.Context, id string, status domain.TxStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("memory: transaction %s: %w", id, domain.ErrNotFound)
	}
	tx.Status = status
	s.byID[id] = tx
	return nil
}

// ListByMarket returns entries for a market, most recent first.
func (s *TransactionStore) ListByMarket(_ context.Context, marketID string, opts domain.ListOpts) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.filter(opts, func(tx domain.Transaction) bool { return tx.MarketID == marketID }), nil
}

// ListByUser returns entries for a user, most recent first.
func (s *TransactionStore) ListByUser(_ context.Context, userID string, opts domain.ListOpts) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.filter(opts, func(tx domain.Transaction) bool { return tx.UserID == userID }), nil
}

// ListCompletedBefore returns completed entries created before cutoff,
// oldest first.
func (s *TransactionStore) ListCompletedBefore(_ context.Context, cutoff time.Time) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Transaction
	for _, id := range s.order {
		tx := s.byID[id]
		if tx.Status == domain.TxStatusCompleted && tx.CreatedAt.Before(cutoff) {
			out = append(out, tx)
		}
	}
	return out, nil
}

// filter walks insertion order backwards, applying pagination. Callers must
// hold the read lock.
func (s *TransactionStore) filter(opts domain.ListOpts, keep func(domain.Transaction) bool) []domain.Transaction {
	var out []domain.Transaction
	skipped := 0
	for i := len(s.order) - 1; i >= 0; i-- {
		tx := s.byID[s.order[i]]
		if !keep(tx) {
			continue
		}
		if skipped < opts.Offset {
			skipped++
			continue
		}
		out = append(out, tx)
		if opts.Limit > 0 && len(out) >= opts.Limit {
			break
		}
	}
	return out
}

var _ domain.TransactionStore = (*TransactionStore)(nil)
