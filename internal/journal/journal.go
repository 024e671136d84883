// Package journal keeps the append-only log of executed actions. Every
// accepted deposit, buy, or sell lands here exactly once, tagged with the
// settlement reference the external executor returned. The reference doubles
// as the idempotency key: replaying an append with a ref the journal already
// holds returns the existing entry instead of duplicating it.
package journal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/openpredict/marketd/internal/domain"
)

// Journal provides append, query, and status transition over a
// domain.TransactionStore.
type Journal struct {
	store  domain.TransactionStore
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Journal backed by the given store.
func New(store domain.TransactionStore, logger *slog.Logger) *Journal {
	return &Journal{
		store:  store,
		logger: logger.With(slog.String("component", "journal")),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Append assigns an ID and timestamp and inserts the transaction. When the
// transaction carries a settlement reference the journal already knows, the
// existing entry is returned unchanged (idempotent replay).
func (j *Journal) Append(ctx context.Context, tx domain.Transaction) (domain.Transaction, error) {
	if tx.SettlementRef != "" {
		existing, err := j.store.GetBySettlementRef(ctx, tx.SettlementRef)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return domain.Transaction{}, fmt.Errorf("journal: lookup settlement ref: %w", err)
		}
	}

	tx.ID = uuid.New().String()
	tx.CreatedAt = j.now()
	if tx.Status == "" {
		tx.Status = domain.TxStatusPending
	}

	if err := j.store.Insert(ctx, tx); err != nil {
		// A concurrent append with the same ref can win the race between the
		// lookup above and this insert; resolve to the stored entry.
		if tx.SettlementRef != "" && errors.Is(err, domain.ErrAlreadyExists) {
			existing, lookupErr := j.store.GetBySettlementRef(ctx, tx.SettlementRef)
			if lookupErr == nil {
				return existing, nil
			}
		}
		return domain.Transaction{}, fmt.Errorf("journal: append: %w", err)
	}

	j.logger.InfoContext(ctx, "transaction recorded",
		slog.String("tx_id", tx.ID),
		slog.String("type", string(tx.Type)),
		slog.String("market", tx.MarketID),
		slog.String("user", tx.UserID),
		slog.Float64("amount", tx.Amount),
		slog.String("status", string(tx.Status)),
		slog.String("settlement_ref", tx.SettlementRef),
	)
	return tx, nil
}

// UpdateStatus moves a transaction to the given status. Transitions are
// monotonic: completed and failed are terminal, so regressing to pending (or
// flipping between terminal states) fails with domain.ErrFinalStatus.
// Re-asserting the current status is a no-op.
func (j *Journal) UpdateStatus(ctx context.Context, id string, status domain.TxStatus) error {
	tx, err := j.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("journal: get for status update: %w", err)
	}

	if tx.Status == status {
		return nil
	}
	if tx.Status.Terminal() {
		return &domain.StateError{
			Err:    domain.ErrFinalStatus,
			Intent: domain.Intent{MarketID: tx.MarketID, UserID: tx.UserID, Amount: tx.Amount},
		}
	}

	if err := j.store.UpdateStatus(ctx, id, status); err != nil {
		return fmt.Errorf("journal: update status: %w", err)
	}

	j.logger.InfoContext(ctx, "transaction status updated",
		slog.String("tx_id", id),
		slog.String("from", string(tx.Status)),
		slog.String("to", string(status)),
	)
	return nil
}

// ListByMarket returns the market's journal entries, most recent first.
func (j *Journal) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Transaction, error) {
	txs, err := j.store.ListByMarket(ctx, marketID, opts)
	if err != nil {
		return nil, fmt.Errorf("journal: list by market: %w", err)
	}
	return txs, nil
}

// ListByUser returns a user's journal entries across markets, most recent
// first.
func (j *Journal) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Transaction, error) {
	txs, err := j.store.ListByUser(ctx, userID, opts)
	if err != nil {
		return nil, fmt.Errorf("journal: list by user: %w", err)
	}
	return txs, nil
}

// CompletedBefore returns completed entries older than cutoff, oldest first.
// Consumed by the archiver.
func (j *Journal) CompletedBefore(ctx context.Context, cutoff time.Time) ([]domain.Transaction, error) {
	txs, err := j.store.ListCompletedBefore(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("journal: list completed before %v: %w", cutoff, err)
	}
	return txs, nil
}
