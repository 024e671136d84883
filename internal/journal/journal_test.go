package journal

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openpredict/marketd/internal/domain"
	"github.com/openpredict/marketd/internal/store/memory"
)

func newTestJournal() *Journal {
	return New(memory.NewTransactionStore(), slog.Default())
}

func TestAppendAssignsIDAndTimestamp(t *testing.T) {
	ctx := context.Background()
	j := newTestJournal()

	tx, err := j.Append(ctx, domain.Transaction{
		Type:     domain.TxTypeDeposit,
		MarketID: "m1",
		UserID:   "alice",
		Amount:   100,
		Status:   domain.TxStatusCompleted,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, tx.ID)
	assert.False(t, tx.CreatedAt.IsZero())
	assert.Equal(t, domain.TxStatusCompleted, tx.Status)
}

func TestAppendDefaultsToPending(t *testing.T) {
	ctx := context.Background()
	j := newTestJournal()

	tx, err := j.Append(ctx, domain.Transaction{Type: domain.TxTypeBuy, MarketID: "m1", UserID: "alice", Amount: 5})
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusPending, tx.Status)
}

func TestAppendIdempotentOnSettlementRef(t *testing.T) {
	ctx := context.Background()
	j := newTestJournal()

	first, err := j.Append(ctx, domain.Transaction{
		Type:          domain.TxTypeBuy,
		MarketID:      "m1",
		UserID:        "alice",
		Amount:        50,
		Status:        domain.TxStatusCompleted,
		SettlementRef: "0xabc",
	})
	require.NoError(t, err)

	replay, err := j.Append(ctx, domain.Transaction{
		Type:          domain.TxTypeBuy,
		MarketID:      "m1",
		UserID:        "alice",
		Amount:        50,
		Status:        domain.TxStatusCompleted,
		SettlementRef: "0xabc",
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, replay.ID)

	entries, err := j.ListByMarket(ctx, "m1", domain.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestListByMarketMostRecentFirst(t *testing.T) {
	ctx := context.Background()
	store := memory.NewTransactionStore()
	j := New(store, slog.Default())

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		ts := base.Add(time.Duration(i) * time.Minute)
		j.now = func() time.Time { return ts }
		_, err := j.Append(ctx, domain.Transaction{
			Type:     domain.TxTypeBuy,
			MarketID: "m1",
			UserID:   "alice",
			Amount:   float64(i + 1),
			Status:   domain.TxStatusCompleted,
		})
		require.NoError(t, err)
	}
	_, err := j.Append(ctx, domain.Transaction{Type: domain.TxTypeBuy, MarketID: "m2", UserID: "alice", Amount: 99})
	require.NoError(t, err)

	entries, err := j.ListByMarket(ctx, "m1", domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, float64(3), entries[0].Amount)
	assert.Equal(t, float64(1), entries[2].Amount)

	limited, err := j.ListByMarket(ctx, "m1", domain.ListOpts{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestUpdateStatusMonotonic(t *testing.T) {
	ctx := context.Background()
	j := newTestJournal()

	tx, err := j.Append(ctx, domain.Transaction{Type: domain.TxTypeBuy, MarketID: "m1", UserID: "alice", Amount: 10})
	require.NoError(t, err)

	require.NoError(t, j.UpdateStatus(ctx, tx.ID, domain.TxStatusCompleted))

	// Terminal: regressing to pending or flipping to failed is rejected.
	err = j.UpdateStatus(ctx, tx.ID, domain.TxStatusPending)
	assert.ErrorIs(t, err, domain.ErrFinalStatus)
	err = j.UpdateStatus(ctx, tx.ID, domain.TxStatusFailed)
	assert.ErrorIs(t, err, domain.ErrFinalStatus)

	// Re-asserting the current status is a no-op.
	assert.NoError(t, j.UpdateStatus(ctx, tx.ID, domain.TxStatusCompleted))
}

func TestCompletedBefore(t *testing.T) {
	ctx := context.Background()
	store := memory.NewTransactionStore()
	j := New(store, slog.Default())

	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	j.now = func() time.Time { return old }
	completed, err := j.Append(ctx, domain.Transaction{
		Type: domain.TxTypeBuy, MarketID: "m1", UserID: "alice",
		Amount: 10, Status: domain.TxStatusCompleted,
	})
	require.NoError(t, err)
	_, err = j.Append(ctx, domain.Transaction{
		Type: domain.TxTypeBuy, MarketID: "m1", UserID: "alice", Amount: 20,
	})
	require.NoError(t, err)

	j.now = func() time.Time { return old.AddDate(0, 2, 0) }
	_, err = j.Append(ctx, domain.Transaction{
		Type: domain.TxTypeSell, MarketID: "m1", UserID: "alice",
		Amount: 5, Status: domain.TxStatusCompleted,
	})
	require.NoError(t, err)

	got, err := j.CompletedBefore(ctx, old.AddDate(0, 1, 0))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, completed.ID, got[0].ID)
}
