package engine

import (
	"context"
	"log/slog"
	"math"

	"github.com/openpredict/marketd/internal/domain"
)

// SelectSide chooses (or toggles) a side for one option. The rules mirror
// the invariants the commit path enforces:
//
//   - In buy mode, choosing a side while the other side holds a nonzero
//     staged amount clears that amount. The trading balance is shared
//     between the two sides of an option, so amounts never sum across
//     sides; the staged amount restarts at 0.
//   - Choosing the currently selected side again with the same mode
//     deselects it.
//   - In sell mode, a side with no owned position cannot be selected, and a
//     carried-over amount is clamped to the owned quantity.
//
// Every change clears the placed mark, forcing a fresh commit.
func (e *Engine) SelectSide(ctx context.Context, marketID, userID string, optionIndex int, side domain.Side, mode domain.Mode) (domain.Allocation, error) {
	intent := domain.Intent{MarketID: marketID, UserID: userID, OptionIndex: optionIndex, Side: side}
	if !side.Valid() {
		return domain.Allocation{}, &domain.ValidationError{Err: domain.ErrInvalidSide, Intent: intent}
	}
	if !mode.Valid() {
		return domain.Allocation{}, &domain.ValidationError{Err: domain.ErrInvalidMode, Intent: intent}
	}
	if _, err := e.market(ctx, marketID, optionIndex); err != nil {
		return domain.Allocation{}, err
	}

	mu := e.session(marketID, userID)
	mu.Lock()
	defer mu.Unlock()

	alloc, err := e.allocation(ctx, marketID, userID, optionIndex)
	if err != nil {
		return domain.Allocation{}, err
	}

	var owned float64
	if mode == domain.ModeSell {
		owned, err = e.ledger.OwnedQuantity(ctx, marketID, userID, optionIndex, side)
		if err != nil {
			return domain.Allocation{}, err
		}
		if owned == 0 {
			return domain.Allocation{}, &domain.ValidationError{Err: domain.ErrExceedsOwnedPosition, Intent: intent}
		}
	}

	switch {
	case alloc.Side == side && alloc.Mode == mode:
		// Toggle off.
		alloc.Side = domain.SideNone
		alloc.Amount = 0
	case mode == domain.ModeSell:
		alloc.Side = side
		alloc.Amount = math.Min(alloc.Amount, owned)
	default:
		// Buy selections always restart at 0, including side switches away
		// from a staged amount on the opposite side.
		alloc.Side = side
		alloc.Amount = 0
	}
	alloc.Mode = mode
	alloc.Placed = false
	alloc.UpdatedAt = e.now()

	if err := e.allocs.Put(ctx, alloc); err != nil {
		return domain.Allocation{}, err
	}

	e.logger.DebugContext(ctx, "side selected",
		slog.String("market", marketID),
		slog.String("user", userID),
		slog.Int("option", optionIndex),
		slog.String("side", string(alloc.Side)),
		slog.String("mode", string(mode)),
	)
	return alloc, nil
}

// Stage sets the amount (and side/mode) of an in-flight allocation after
// validating it against the mode's bound:
//
//	buy:  amount <= TradingBalance − amountStagedOnTheOtherSideOfThisOption
//	sell: amount <= ownedQuantity(optionIndex, side)
//
// Staging replaces the previous amount, so re-staging a smaller or equal
// value is always legal for buys. A successful stage clears any placed
// mark; the option must be committed again.
func (e *Engine) Stage(ctx context.Context, marketID, userID string, optionIndex int, side domain.Side, amount float64, mode domain.Mode) (domain.Allocation, error) {
	intent := domain.Intent{MarketID: marketID, UserID: userID, OptionIndex: optionIndex, Side: side, Amount: amount}
	if !side.Valid() {
		return domain.Allocation{}, &domain.ValidationError{Err: domain.ErrInvalidSide, Intent: intent}
	}
	if !mode.Valid() {
		return domain.Allocation{}, &domain.ValidationError{Err: domain.ErrInvalidMode, Intent: intent}
	}
	if amount < 0 {
		return domain.Allocation{}, &domain.ValidationError{Err: domain.ErrInvalidAmount, Intent: intent}
	}
	if _, err := e.market(ctx, marketID, optionIndex); err != nil {
		return domain.Allocation{}, err
	}

	mu := e.session(marketID, userID)
	mu.Lock()
	defer mu.Unlock()

	alloc, err := e.allocation(ctx, marketID, userID, optionIndex)
	if err != nil {
		return domain.Allocation{}, err
	}

	if err := e.checkBounds(ctx, alloc, side, amount, mode, intent); err != nil {
		return domain.Allocation{}, err
	}

	alloc.Side = side
	alloc.Amount = amount
	alloc.Mode = mode
	alloc.Placed = false
	alloc.UpdatedAt = e.now()

	if err := e.allocs.Put(ctx, alloc); err != nil {
		return domain.Allocation{}, err
	}

	e.logger.DebugContext(ctx, "amount staged",
		slog.String("market", marketID),
		slog.String("user", userID),
		slog.Int("option", optionIndex),
		slog.String("side", string(side)),
		slog.Float64("amount", amount),
		slog.String("mode", string(mode)),
	)
	return alloc, nil
}

// Clear removes the staged allocation for one option.
func (e *Engine) Clear(ctx context.Context, marketID, userID string, optionIndex int) error {
	if _, err := e.market(ctx, marketID, optionIndex); err != nil {
		return err
	}

	mu := e.session(marketID, userID)
	mu.Lock()
	defer mu.Unlock()

	return e.allocs.Delete(ctx, marketID, userID, optionIndex)
}

// checkBounds validates a proposed (side, amount, mode) against the shared
// per-option balance ceiling or the owned position. Used both at staging
// and again at commit, when balances may have moved.
func (e *Engine) checkBounds(ctx context.Context, current domain.Allocation, side domain.Side, amount float64, mode domain.Mode, intent domain.Intent) error {
	switch mode {
	case domain.ModeBuy:
		bal, err := e.balances.Get(ctx, current.MarketID, current.UserID)
		if err != nil {
			return err
		}
		otherSide := 0.0
		if current.Side.Valid() && current.Side != side {
			otherSide = current.Amount
		}
		if amount > bal-otherSide {
			return &domain.ValidationError{Err: domain.ErrExceedsAvailableBalance, Intent: intent}
		}
	case domain.ModeSell:
		owned, err := e.ledger.OwnedQuantity(ctx, current.MarketID, current.UserID, current.OptionIndex, side)
		if err != nil {
			return err
		}
		if amount > owned {
			return &domain.ValidationError{Err: domain.ErrExceedsOwnedPosition, Intent: intent}
		}
	}
	return nil
}
