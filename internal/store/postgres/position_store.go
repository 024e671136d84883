package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openpredict/marketd/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `market_id, user_id, option_index, side, quantity, opened_at, updated_at`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var side string
	err := row.Scan(&p.MarketID, &p.UserID, &p.OptionIndex, &side, &p.Quantity, &p.OpenedAt, &p.UpdatedAt)
	if err != nil {
		return domain.Position{}, err
	}
	p.Side = domain.Side(side)
	return p, nil
}

// Get returns the position for one (option, side), or domain.ErrNotFound.
func (s *PositionStore) Get(ctx context.Context, marketID, userID string, optionIndex int, side domain.Side) (domain.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE market_id = $1 AND user_id = $2 AND option_index = $3 AND side = $4`,
		marketID, userID, optionIndex, string(side))

	p, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s/%s/%d/%s: %w", marketID, userID, optionIndex, side, err)
	}
	return p, nil
}

// Upsert creates or replaces the position.
func (s *PositionStore) Upsert(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (market_id, user_id, option_index, side, quantity, opened_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (market_id, user_id, option_index, side) DO UPDATE SET
			quantity   = EXCLUDED.quantity,
			updated_at = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query,
		p.MarketID, p.UserID, p.OptionIndex, string(p.Side), p.Quantity, p.OpenedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: upsert position %s/%s/%d/%s: %w", p.MarketID, p.UserID, p.OptionIndex, p.Side, err)
	}
	return nil
}

// Delete removes the position. Deleting an absent entry is a no-op.
func (s *PositionStore) Delete(ctx context.Context, marketID, userID string, optionIndex int, side domain.Side) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM positions
		 WHERE market_id = $1 AND user_id = $2 AND option_index = $3 AND side = $4`,
		marketID, userID, optionIndex, string(side))
	if err != nil {
		return fmt.Errorf("postgres: delete position %s/%s/%d/%s: %w", marketID, userID, optionIndex, side, err)
	}
	return nil
}

// ListByUser returns all positions a user holds in a market, ordered by
// option index then side.
func (s *PositionStore) ListByUser(ctx context.Context, marketID, userID string) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE market_id = $1 AND user_id = $2
		 ORDER BY option_index, side`,
		marketID, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions %s/%s: %w", marketID, userID, err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list positions %s/%s: %w", marketID, userID, err)
	}
	return positions, nil
}

// Compile-time interface check.
var _ domain.PositionStore = (*PositionStore)(nil)
