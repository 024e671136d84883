package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// PositionStore persists owned positions keyed by
// (marketID, userID, optionIndex, side).
type PositionStore interface {
	// Get returns the position, or ErrNotFound when nothing is owned.
	Get(ctx context.Context, marketID, userID string, optionIndex int, side Side) (Position, error)
	// Upsert creates or replaces the position.
	Upsert(ctx context.Context, pos Position) error
	// Delete removes the position. Deleting an absent entry is a no-op.
	Delete(ctx context.Context, marketID, userID string, optionIndex int, side Side) error
	// ListByUser returns all positions a user holds in a market.
	ListByUser(ctx context.Context, marketID, userID string) ([]Position, error)
}

// BalanceStore persists per-(market, user) trading balances.
type BalanceStore interface {
	// Get returns the balance, defaulting to 0 when absent.
	Get(ctx context.Context, marketID, userID string) (float64, error)
	// Add atomically applies delta and returns the new balance. A delta that
	// would take the balance negative must be rejected unapplied.
	Add(ctx context.Context, marketID, userID string, delta float64) (float64, error)
}

// AllocationStore persists staged allocations so in-flight intents survive a
// restart. One entry per (marketID, userID, optionIndex).
type AllocationStore interface {
	// Get returns the staged allocation, or ErrNotFound.
	Get(ctx context.Context, marketID, userID string, optionIndex int) (Allocation, error)
	Put(ctx context.Context, alloc Allocation) error
	Delete(ctx context.Context, marketID, userID string, optionIndex int) error
	// ListByUser returns a user's staged allocations in a market, ordered by
	// option index.
	ListByUser(ctx context.Context, marketID, userID string) ([]Allocation, error)
}

// TransactionStore persists the append-only journal.
type TransactionStore interface {
	Insert(ctx context.Context, tx Transaction) error
	Get(ctx context.Context, id string) (Transaction, error)
	// GetBySettlementRef returns the entry carrying ref, or ErrNotFound.
	GetBySettlementRef(ctx context.Context, ref string) (Transaction, error)
	// UpdateStatus sets the status without any transition checks; callers go
	// through the journal service, which enforces monotonicity.
	UpdateStatus(ctx context.Context, id string, status TxStatus) error
	// ListByMarket returns entries for a market, most recent first.
	ListByMarket(ctx context.Context, marketID string, opts ListOpts) ([]Transaction, error)
	// ListByUser returns entries for a user across markets, most recent first.
	ListByUser(ctx context.Context, userID string, opts ListOpts) ([]Transaction, error)
	// ListCompletedBefore returns completed entries created strictly before
	// the cutoff, oldest first. Used by the journal archiver.
	ListCompletedBefore(ctx context.Context, cutoff time.Time) ([]Transaction, error)
}
