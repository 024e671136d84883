// Package memory implements the domain store interfaces with in-process
// maps. It backs tests and embedded single-process deployments; the
// postgres package is the durable counterpart.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/openpredict/marketd/internal/domain"
)

type positionKey struct {
	marketID    string
	userID      string
	optionIndex int
	side        domain.Side
}

// PositionStore implements domain.PositionStore in memory.
type PositionStore struct {
	mu        sync.RWMutex
	positions map[positionKey]domain.Position
}

// NewPositionStore creates an empty PositionStore.
func NewPositionStore() *PositionStore {
	return &PositionStore{positions: make(map[positionKey]domain.Position)}
}

// Get returns the position, or domain.ErrNotFound.
func (s *PositionStore) Get(_ context.Context, marketID, userID string, optionIndex int, side domain.Side) (domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, ok := s.positions[positionKey{marketID, userID, optionIndex, side}]
	if !ok {
		return domain.Position{}, fmt.Errorf("memory: position %s/%s opt %d %s: %w",
			marketID, userID, optionIndex, side, domain.ErrNotFound)
	}
	return pos, nil
}

// Upsert creates or replaces the position.
func (s *PositionStore) Upsert(_ context.Context, pos domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.positions[positionKey{pos.MarketID, pos.UserID, pos.OptionIndex, pos.Side}] = pos
	return nil
}

// Delete removes the position. Absent entries are a no-op.
func (s *PositionStore) Delete(_ context.Context, marketID, userID string, optionIndex int, side domain.Side) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.positions, positionKey{marketID, userID, optionIndex, side})
	return nil
}

// ListByUser returns the user's positions in a market ordered by option
// index, yes before no.
func (s *PositionStore) ListByUser(_ context.Context, marketID, userID string) ([]domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Position
	for key, pos := range s.positions {
		if key.marketID == marketID && key.userID == userID {
			out = append(out, pos)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OptionIndex != out[j].OptionIndex {
			return out[i].OptionIndex < out[j].OptionIndex
		}
		return out[i].Side == domain.SideYes && out[j].Side != domain.SideYes
	})
	return out, nil
}

var _ domain.PositionStore = (*PositionStore)(nil)
