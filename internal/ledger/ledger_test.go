package ledger

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openpredict/marketd/internal/domain"
	"github.com/openpredict/marketd/internal/store/memory"
)

func newTestLedger() *Ledger {
	return New(memory.NewPositionStore(), slog.Default())
}

func TestOwnedQuantityDefaultsToZero(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	qty, err := l.OwnedQuantity(ctx, "m1", "alice", 2, domain.SideNo)
	require.NoError(t, err)
	assert.Equal(t, float64(0), qty)
}

func TestCreditAccumulates(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	require.NoError(t, l.Credit(ctx, "m1", "alice", 0, domain.SideYes, 30))
	require.NoError(t, l.Credit(ctx, "m1", "alice", 0, domain.SideYes, 20))

	qty, err := l.OwnedQuantity(ctx, "m1", "alice", 0, domain.SideYes)
	require.NoError(t, err)
	assert.Equal(t, float64(50), qty)

	// Other side stays independent.
	qty, err = l.OwnedQuantity(ctx, "m1", "alice", 0, domain.SideNo)
	require.NoError(t, err)
	assert.Equal(t, float64(0), qty)
}

func TestCreditRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	assert.ErrorIs(t, l.Credit(ctx, "m1", "alice", 0, domain.SideYes, 0), domain.ErrInvalidAmount)
	assert.ErrorIs(t, l.Credit(ctx, "m1", "alice", 0, domain.SideYes, -5), domain.ErrInvalidAmount)
	assert.ErrorIs(t, l.Credit(ctx, "m1", "alice", 0, domain.SideNone, 5), domain.ErrInvalidSide)
}

func TestDebitEnforcesOwnership(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	// Nothing owned yet.
	err := l.Debit(ctx, "m1", "alice", 1, domain.SideNo, 1)
	assert.ErrorIs(t, err, domain.ErrInsufficientPosition)

	require.NoError(t, l.Credit(ctx, "m1", "alice", 1, domain.SideNo, 50))

	err = l.Debit(ctx, "m1", "alice", 1, domain.SideNo, 51)
	assert.ErrorIs(t, err, domain.ErrInsufficientPosition)

	// The failed debit left the position untouched.
	qty, err := l.OwnedQuantity(ctx, "m1", "alice", 1, domain.SideNo)
	require.NoError(t, err)
	assert.Equal(t, float64(50), qty)

	require.NoError(t, l.Debit(ctx, "m1", "alice", 1, domain.SideNo, 50))
	qty, err = l.OwnedQuantity(ctx, "m1", "alice", 1, domain.SideNo)
	require.NoError(t, err)
	assert.Equal(t, float64(0), qty)
}

func TestDebitToZeroRemovesEntry(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	require.NoError(t, l.Credit(ctx, "m1", "alice", 0, domain.SideYes, 10))
	require.NoError(t, l.Debit(ctx, "m1", "alice", 0, domain.SideYes, 10))

	positions, err := l.Positions(ctx, "m1", "alice")
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestPositionsListsUserHoldings(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	require.NoError(t, l.Credit(ctx, "m1", "alice", 1, domain.SideNo, 10))
	require.NoError(t, l.Credit(ctx, "m1", "alice", 0, domain.SideYes, 40))
	require.NoError(t, l.Credit(ctx, "m1", "bob", 0, domain.SideYes, 7))

	positions, err := l.Positions(ctx, "m1", "alice")
	require.NoError(t, err)
	require.Len(t, positions, 2)
	assert.Equal(t, 0, positions[0].OptionIndex)
	assert.Equal(t, float64(40), positions[0].Quantity)
	assert.Equal(t, 1, positions[1].OptionIndex)
}
