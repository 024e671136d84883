package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/openpredict/marketd/internal/domain"
)

// CommitResult is the outcome of one option's commit inside CommitAll.
type CommitResult struct {
	OptionIndex int
	Tx          domain.Transaction
	Err         error
}

// Commit executes the staged allocation for one option. It re-validates the
// staged amount against current bounds, obtains the external settlement
// reference, records the completed journal entry, applies the ledger and
// aggregate-stake mutations, and marks the allocation placed.
//
// Any failure before the journal append leaves every balance and position
// exactly as it was; a settlement failure in particular is a no-op the
// caller may retry.
func (e *Engine) Commit(ctx context.Context, marketID, userID string, optionIndex int) (domain.Transaction, error) {
	if err := e.gate(ctx, userID); err != nil {
		return domain.Transaction{}, err
	}
	m, err := e.market(ctx, marketID, optionIndex)
	if err != nil {
		return domain.Transaction{}, err
	}

	mu := e.session(marketID, userID)
	mu.Lock()
	defer mu.Unlock()

	unlock, err := e.acquireCommitLock(ctx, marketID, userID)
	if err != nil {
		return domain.Transaction{}, err
	}
	defer unlock()

	return e.commitLocked(ctx, m, userID, optionIndex)
}

// CommitAll commits every eligible option (side chosen, amount staged, not
// yet placed) in option order. Commits run sequentially so one external
// settlement request is in flight at a time; a failure on one option is
// recorded in its result and does not block the rest.
func (e *Engine) CommitAll(ctx context.Context, marketID, userID string) ([]CommitResult, error) {
	if err := e.gate(ctx, userID); err != nil {
		return nil, err
	}
	m, err := e.catalog.Get(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("engine: market %s: %w", marketID, err)
	}

	mu := e.session(marketID, userID)
	mu.Lock()
	defer mu.Unlock()

	unlock, err := e.acquireCommitLock(ctx, marketID, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	allocs, err := e.allocs.ListByUser(ctx, marketID, userID)
	if err != nil {
		return nil, fmt.Errorf("engine: list allocations: %w", err)
	}

	var results []CommitResult
	for _, alloc := range allocs {
		if !alloc.Eligible() {
			continue
		}
		tx, err := e.commitLocked(ctx, m, userID, alloc.OptionIndex)
		results = append(results, CommitResult{OptionIndex: alloc.OptionIndex, Tx: tx, Err: err})
		if err != nil {
			e.logger.WarnContext(ctx, "commit failed, continuing with remaining options",
				slog.String("market", marketID),
				slog.String("user", userID),
				slog.Int("option", alloc.OptionIndex),
				slog.String("error", err.Error()),
			)
		}
	}
	return results, nil
}

// commitLocked performs the commit for one option. The session mutex (and
// distributed lock, when configured) must be held.
func (e *Engine) commitLocked(ctx context.Context, m domain.Market, userID string, optionIndex int) (domain.Transaction, error) {
	marketID := m.ID

	alloc, err := e.allocation(ctx, marketID, userID, optionIndex)
	if err != nil {
		return domain.Transaction{}, err
	}
	intent := domain.Intent{
		MarketID:    marketID,
		UserID:      userID,
		OptionIndex: optionIndex,
		Side:        alloc.Side,
		Amount:      alloc.Amount,
	}
	if !alloc.Side.Valid() || alloc.Amount <= 0 {
		return domain.Transaction{}, &domain.ValidationError{Err: domain.ErrNothingStaged, Intent: intent}
	}
	if alloc.Placed {
		return domain.Transaction{}, &domain.StateError{Err: domain.ErrAlreadyExists, Intent: intent}
	}

	// Balances and positions may have moved since staging.
	if err := e.checkBounds(ctx, alloc, alloc.Side, alloc.Amount, alloc.Mode, intent); err != nil {
		return domain.Transaction{}, err
	}

	txType := domain.TxTypeBuy
	if alloc.Mode == domain.ModeSell {
		txType = domain.TxTypeSell
	}

	ref, err := e.settle(ctx, domain.SettlementIntent{
		UserID:      userID,
		MarketID:    marketID,
		Type:        txType,
		OptionIndex: optionIndex,
		OptionName:  m.OptionName(optionIndex),
		Side:        alloc.Side,
		Amount:      alloc.Amount,
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	tx, err := e.journal.Append(ctx, domain.Transaction{
		Type:          txType,
		MarketID:      marketID,
		UserID:        userID,
		OptionIndex:   optionIndex,
		OptionName:    m.OptionName(optionIndex),
		Side:          alloc.Side,
		Amount:        alloc.Amount,
		Status:        domain.TxStatusCompleted,
		SettlementRef: ref,
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	// Buys and sells move capital between available and positioned within
	// the same trading balance; the balance itself only changes on deposit.
	switch alloc.Mode {
	case domain.ModeBuy:
		if err := e.ledger.Credit(ctx, marketID, userID, optionIndex, alloc.Side, alloc.Amount); err != nil {
			return domain.Transaction{}, err
		}
		if err := e.catalog.AdjustStake(ctx, marketID, optionIndex, alloc.Amount); err != nil {
			return domain.Transaction{}, err
		}
	case domain.ModeSell:
		if err := e.ledger.Debit(ctx, marketID, userID, optionIndex, alloc.Side, alloc.Amount); err != nil {
			return domain.Transaction{}, err
		}
		if err := e.catalog.AdjustStake(ctx, marketID, optionIndex, -alloc.Amount); err != nil {
			return domain.Transaction{}, err
		}
	}

	alloc.Placed = true
	alloc.UpdatedAt = e.now()
	if err := e.allocs.Put(ctx, alloc); err != nil {
		return domain.Transaction{}, fmt.Errorf("engine: mark placed: %w", err)
	}

	e.logger.InfoContext(ctx, "allocation committed",
		slog.String("market", marketID),
		slog.String("user", userID),
		slog.Int("option", optionIndex),
		slog.String("side", string(alloc.Side)),
		slog.String("mode", string(alloc.Mode)),
		slog.Float64("amount", alloc.Amount),
		slog.String("settlement_ref", ref),
	)
	return tx, nil
}
