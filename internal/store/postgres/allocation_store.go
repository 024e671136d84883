package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openpredict/marketd/internal/domain"
)

// AllocationStore implements domain.AllocationStore using PostgreSQL, for
// deployments that want staged intents to survive a full restart rather
// than living in Redis.
type AllocationStore struct {
	pool *pgxpool.Pool
}

// NewAllocationStore creates a new AllocationStore backed by the given connection pool.
func NewAllocationStore(pool *pgxpool.Pool) *AllocationStore {
	return &AllocationStore{pool: pool}
}

const allocSelectCols = `market_id, user_id, option_index, side, amount, mode, placed, updated_at`

func scanAllocation(row pgx.Row) (domain.Allocation, error) {
	var a domain.Allocation
	var side, mode string
	err := row.Scan(&a.MarketID, &a.UserID, &a.OptionIndex, &side, &a.Amount, &mode, &a.Placed, &a.UpdatedAt)
	if err != nil {
		return domain.Allocation{}, err
	}
	a.Side = domain.Side(side)
	a.Mode = domain.Mode(mode)
	return a, nil
}

// Get returns the staged allocation for one option, or domain.ErrNotFound.
func (s *AllocationStore) Get(ctx context.Context, marketID, userID string, optionIndex int) (domain.Allocation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+allocSelectCols+` FROM allocations
		 WHERE market_id = $1 AND user_id = $2 AND option_index = $3`,
		marketID, userID, optionIndex)

	a, err := scanAllocation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Allocation{}, domain.ErrNotFound
		}
		return domain.Allocation{}, fmt.Errorf("postgres: get allocation %s/%s/%d: %w", marketID, userID, optionIndex, err)
	}
	return a, nil
}

// Put stores or replaces the staged allocation for its option.
func (s *AllocationStore) Put(ctx context.Context, a domain.Allocation) error {
	const query = `
		INSERT INTO allocations (market_id, user_id, option_index, side, amount, mode, placed, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (market_id, user_id, option_index) DO UPDATE SET
			side       = EXCLUDED.side,
			amount     = EXCLUDED.amount,
			mode       = EXCLUDED.mode,
			placed     = EXCLUDED.placed,
			updated_at = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query,
		a.MarketID, a.UserID, a.OptionIndex, string(a.Side), a.Amount, string(a.Mode), a.Placed, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: put allocation %s/%s/%d: %w", a.MarketID, a.UserID, a.OptionIndex, err)
	}
	return nil
}

// Delete removes the staged allocation. Deleting an absent entry is a no-op.
func (s *AllocationStore) Delete(ctx context.Context, marketID, userID string, optionIndex int) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM allocations
		 WHERE market_id = $1 AND user_id = $2 AND option_index = $3`,
		marketID, userID, optionIndex)
	if err != nil {
		return fmt.Errorf("postgres: delete allocation %s/%s/%d: %w", marketID, userID, optionIndex, err)
	}
	return nil
}

// ListByUser returns the user's staged allocations in a market, ordered by
// option index.
func (s *AllocationStore) ListByUser(ctx context.Context, marketID, userID string) ([]domain.Allocation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+allocSelectCols+` FROM allocations
		 WHERE market_id = $1 AND user_id = $2
		 ORDER BY option_index`,
		marketID, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list allocations %s/%s: %w", marketID, userID, err)
	}
	defer rows.Close()

	var allocs []domain.Allocation
	for rows.Next() {
		a, err := scanAllocation(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan allocation: %w", err)
		}
		allocs = append(allocs, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list allocations %s/%s: %w", marketID, userID, err)
	}
	return allocs, nil
}

// Compile-time interface check.
var _ domain.AllocationStore = (*AllocationStore)(nil)
