package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openpredict/marketd/internal/domain"
)

func TestBalanceDefaultsToZero(t *testing.T) {
	ctx := context.Background()
	s := NewBalanceStore()

	bal, err := s.Get(ctx, "m1", "alice")
	require.NoError(t, err)
	assert.Zero(t, bal)
}

func TestBalanceAddAndReject(t *testing.T) {
	ctx := context.Background()
	s := NewBalanceStore()

	bal, err := s.Add(ctx, "m1", "alice", 100)
	require.NoError(t, err)
	assert.Equal(t, 100.0, bal)

	bal, err = s.Add(ctx, "m1", "alice", -40)
	require.NoError(t, err)
	assert.Equal(t, 60.0, bal)

	_, err = s.Add(ctx, "m1", "alice", -100)
	require.ErrorIs(t, err, domain.ErrExceedsAvailableBalance)

	// The rejected delta must not have been applied.
	bal, err = s.Get(ctx, "m1", "alice")
	require.NoError(t, err)
	assert.Equal(t, 60.0, bal)
}

func TestPositionRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewPositionStore()

	_, err := s.Get(ctx, "m1", "alice", 0, domain.SideYes)
	require.ErrorIs(t, err, domain.ErrNotFound)

	pos := domain.Position{
		MarketID: "m1", UserID: "alice", OptionIndex: 0,
		Side: domain.SideYes, Quantity: 10,
	}
	require.NoError(t, s.Upsert(ctx, pos))

	got, err := s.Get(ctx, "m1", "alice", 0, domain.SideYes)
	require.NoError(t, err)
	assert.Equal(t, 10.0, got.Quantity)

	require.NoError(t, s.Delete(ctx, "m1", "alice", 0, domain.SideYes))
	_, err = s.Get(ctx, "m1", "alice", 0, domain.SideYes)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPositionListOrder(t *testing.T) {
	ctx := context.Background()
	s := NewPositionStore()

	for _, pos := range []domain.Position{
		{MarketID: "m1", UserID: "alice", OptionIndex: 1, Side: domain.SideNo, Quantity: 1},
		{MarketID: "m1", UserID: "alice", OptionIndex: 0, Side: domain.SideNo, Quantity: 2},
		{MarketID: "m1", UserID: "alice", OptionIndex: 0, Side: domain.SideYes, Quantity: 3},
		{MarketID: "m1", UserID: "bob", OptionIndex: 0, Side: domain.SideYes, Quantity: 9},
		{MarketID: "m2", UserID: "alice", OptionIndex: 0, Side: domain.SideYes, Quantity: 9},
	} {
		require.NoError(t, s.Upsert(ctx, pos))
	}

	out, err := s.ListByUser(ctx, "m1", "alice")
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, 3.0, out[0].Quantity) // option 0 yes
	assert.Equal(t, 2.0, out[1].Quantity) // option 0 no
	assert.Equal(t, 1.0, out[2].Quantity) // option 1 no
}

func TestAllocationRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewAllocationStore()

	alloc := domain.Allocation{
		MarketID: "m1", UserID: "alice", OptionIndex: 2,
		Side: domain.SideYes, Amount: 25, Mode: domain.ModeBuy,
	}
	require.NoError(t, s.Put(ctx, alloc))

	got, err := s.Get(ctx, "m1", "alice", 2)
	require.NoError(t, err)
	assert.Equal(t, 25.0, got.Amount)

	require.NoError(t, s.Delete(ctx, "m1", "alice", 2))
	_, err = s.Get(ctx, "m1", "alice", 2)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTransactionDuplicateRefRejected(t *testing.T) {
	ctx := context.Background()
	s := NewTransactionStore()

	require.NoError(t, s.Insert(ctx, domain.Transaction{
		ID: "t1", MarketID: "m1", UserID: "alice",
		Type: domain.TxTypeBuy, Amount: 10, SettlementRef: "0xabc",
	}))

	err := s.Insert(ctx, domain.Transaction{
		ID: "t2", MarketID: "m1", UserID: "alice",
		Type: domain.TxTypeBuy, Amount: 10, SettlementRef: "0xabc",
	})
	require.ErrorIs(t, err, domain.ErrAlreadyExists)

	got, err := s.GetBySettlementRef(ctx, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, "t1", got.ID)
}

func TestTransactionListNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewTransactionStore()

	for i, id := range []string{"t1", "t2", "t3"} {
		require.NoError(t, s.Insert(ctx, domain.Transaction{
			ID: id, MarketID: "m1", UserID: "alice",
			Type: domain.TxTypeBuy, Amount: float64(i + 1),
		}))
	}

	out, err := s.ListByMarket(ctx, "m1", domain.ListOpts{Limit: 2})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "t3", out[0].ID)
	assert.Equal(t, "t2", out[1].ID)

	out, err = s.ListByMarket(ctx, "m1", domain.ListOpts{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "t1", out[0].ID)
}

func TestListCompletedBefore(t *testing.T) {
	ctx := context.Background()
	s := NewTransactionStore()
	cutoff := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Insert(ctx, domain.Transaction{
		ID: "old-done", MarketID: "m1", UserID: "alice", Type: domain.TxTypeBuy,
		Status: domain.TxStatusCompleted, CreatedAt: cutoff.Add(-time.Hour),
	}))
	require.NoError(t, s.Insert(ctx, domain.Transaction{
		ID: "old-pending", MarketID: "m1", UserID: "alice", Type: domain.TxTypeBuy,
		Status: domain.TxStatusPending, CreatedAt: cutoff.Add(-time.Hour),
	}))
	require.NoError(t, s.Insert(ctx, domain.Transaction{
		ID: "new-done", MarketID: "m1", UserID: "alice", Type: domain.TxTypeBuy,
		Status: domain.TxStatusCompleted, CreatedAt: cutoff.Add(time.Hour),
	}))

	out, err := s.ListCompletedBefore(ctx, cutoff)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "old-done", out[0].ID)
}
