// Package ledger tracks the quantities a user owns per market, option, and
// side. It is the single authority over position mutation: credits come from
// accepted buys, debits from accepted sells, and a debit can never take a
// position negative.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openpredict/marketd/internal/domain"
)

// Ledger implements position bookkeeping over a domain.PositionStore.
type Ledger struct {
	positions domain.PositionStore
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a Ledger backed by the given store.
func New(positions domain.PositionStore, logger *slog.Logger) *Ledger {
	return &Ledger{
		positions: positions,
		logger:    logger.With(slog.String("component", "ledger")),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// OwnedQuantity returns the quantity owned on one side of an option,
// defaulting to 0 when no position exists.
func (l *Ledger) OwnedQuantity(ctx context.Context, marketID, userID string, optionIndex int, side domain.Side) (float64, error) {
	pos, err := l.positions.Get(ctx, marketID, userID, optionIndex, side)
	if errors.Is(err, domain.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ledger: get position: %w", err)
	}
	return pos.Quantity, nil
}

// Positions returns every position the user holds in the market.
func (l *Ledger) Positions(ctx context.Context, marketID, userID string) ([]domain.Position, error) {
	positions, err := l.positions.ListByUser(ctx, marketID, userID)
	if err != nil {
		return nil, fmt.Errorf("ledger: list positions: %w", err)
	}
	return positions, nil
}

// Credit increases the owned quantity, creating the position on first buy.
// The amount must be strictly positive.
func (l *Ledger) Credit(ctx context.Context, marketID, userID string, optionIndex int, side domain.Side, amount float64) error {
	if !side.Valid() {
		return &domain.ValidationError{
			Err:    domain.ErrInvalidSide,
			Intent: domain.Intent{MarketID: marketID, UserID: userID, OptionIndex: optionIndex, Side: side, Amount: amount},
		}
	}
	if amount <= 0 {
		return &domain.ValidationError{
			Err:    domain.ErrInvalidAmount,
			Intent: domain.Intent{MarketID: marketID, UserID: userID, OptionIndex: optionIndex, Side: side, Amount: amount},
		}
	}

	now := l.now()
	pos, err := l.positions.Get(ctx, marketID, userID, optionIndex, side)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		pos = domain.Position{
			MarketID:    marketID,
			UserID:      userID,
			OptionIndex: optionIndex,
			Side:        side,
			Quantity:    amount,
			OpenedAt:    now,
		}
	case err != nil:
		return fmt.Errorf("ledger: get position for credit: %w", err)
	default:
		pos.Quantity += amount
	}
	pos.UpdatedAt = now

	if err := l.positions.Upsert(ctx, pos); err != nil {
		return fmt.Errorf("ledger: credit position: %w", err)
	}

	l.logger.DebugContext(ctx, "position credited",
		slog.String("market", marketID),
		slog.String("user", userID),
		slog.Int("option", optionIndex),
		slog.String("side", string(side)),
		slog.Float64("amount", amount),
		slog.Float64("quantity", pos.Quantity),
	)
	return nil
}

// Debit decreases the owned quantity. Debiting more than owned fails with
// domain.ErrInsufficientPosition, and a debit to exactly 0 removes the entry.
func (l *Ledger) Debit(ctx context.Context, marketID, userID string, optionIndex int, side domain.Side, amount float64) error {
	intent := domain.Intent{MarketID: marketID, UserID: userID, OptionIndex: optionIndex, Side: side, Amount: amount}
	if !side.Valid() {
		return &domain.ValidationError{Err: domain.ErrInvalidSide, Intent: intent}
	}
	if amount <= 0 {
		return &domain.ValidationError{Err: domain.ErrInvalidAmount, Intent: intent}
	}

	pos, err := l.positions.Get(ctx, marketID, userID, optionIndex, side)
	if errors.Is(err, domain.ErrNotFound) {
		return &domain.StateError{Err: domain.ErrInsufficientPosition, Intent: intent}
	}
	if err != nil {
		return fmt.Errorf("ledger: get position for debit: %w", err)
	}
	if amount > pos.Quantity {
		return &domain.StateError{Err: domain.ErrInsufficientPosition, Intent: intent}
	}

	remaining := pos.Quantity - amount
	if remaining == 0 {
		if err := l.positions.Delete(ctx, marketID, userID, optionIndex, side); err != nil {
			return fmt.Errorf("ledger: remove emptied position: %w", err)
		}
	} else {
		pos.Quantity = remaining
		pos.UpdatedAt = l.now()
		if err := l.positions.Upsert(ctx, pos); err != nil {
			return fmt.Errorf("ledger: debit position: %w", err)
		}
	}

	l.logger.DebugContext(ctx, "position debited",
		slog.String("market", marketID),
		slog.String("user", userID),
		slog.Int("option", optionIndex),
		slog.String("side", string(side)),
		slog.Float64("amount", amount),
		slog.Float64("remaining", remaining),
	)
	return nil
}
