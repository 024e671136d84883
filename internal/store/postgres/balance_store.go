package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openpredict/marketd/internal/domain"
)

// BalanceStore implements domain.BalanceStore using PostgreSQL.
type BalanceStore struct {
	pool *pgxpool.Pool
}

// NewBalanceStore creates a new BalanceStore backed by the given connection pool.
func NewBalanceStore(pool *pgxpool.Pool) *BalanceStore {
	return &BalanceStore{pool: pool}
}

// Get returns the trading balance, defaulting to 0 when no row exists.
func (s *BalanceStore) Get(ctx context.Context, marketID, userID string) (float64, error) {
	var balance float64
	err := s.pool.QueryRow(ctx,
		`SELECT balance FROM balances WHERE market_id = $1 AND user_id = $2`,
		marketID, userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: get balance %s/%s: %w", marketID, userID, err)
	}
	return balance, nil
}

// Add atomically applies delta and returns the new balance. The CHECK
// constraint on the balance column rejects any delta that would take it
// negative, leaving the row unchanged.
func (s *BalanceStore) Add(ctx context.Context, marketID, userID string, delta float64) (float64, error) {
	const query = `
		INSERT INTO balances (market_id, user_id, balance, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (market_id, user_id) DO UPDATE SET
			balance    = balances.balance + EXCLUDED.balance,
			updated_at = NOW()
		RETURNING balance`

	var balance float64
	if err := s.pool.QueryRow(ctx, query, marketID, userID, delta).Scan(&balance); err != nil {
		return 0, fmt.Errorf("postgres: add %v to balance %s/%s: %w", delta, marketID, userID, err)
	}
	return balance, nil
}

// Compile-time interface check.
var _ domain.BalanceStore = (*BalanceStore)(nil)
