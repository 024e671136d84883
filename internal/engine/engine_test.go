package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openpredict/marketd/internal/catalog"
	"github.com/openpredict/marketd/internal/domain"
	"github.com/openpredict/marketd/internal/journal"
	"github.com/openpredict/marketd/internal/ledger"
	"github.com/openpredict/marketd/internal/store/memory"
)

// fakeSettler returns deterministic references and can be scripted to fail
// the next N calls with a given settlement error kind.
type fakeSettler struct {
	calls    int
	failNext int
	failKind domain.SettlementKind
}

func (f *fakeSettler) Settle(_ context.Context, intent domain.SettlementIntent) (string, error) {
	f.calls++
	if f.failNext > 0 {
		f.failNext--
		return "", &domain.SettlementError{
			Kind: f.failKind,
			Intent: domain.Intent{
				MarketID: intent.MarketID,
				UserID:   intent.UserID,
				Amount:   intent.Amount,
			},
			Err: errors.New("settlement backend unavailable"),
		}
	}
	return fmt.Sprintf("0xref%04d", f.calls), nil
}

type fakeIdentity struct {
	denied map[string]bool
}

func (f *fakeIdentity) Authenticated(_ context.Context, userID string) (bool, error) {
	return !f.denied[userID], nil
}

type harness struct {
	engine  *Engine
	catalog *catalog.Catalog
	ledger  *ledger.Ledger
	journal *journal.Journal
	txs     *memory.TransactionStore
	settler *fakeSettler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := slog.Default()

	cat := catalog.New([]domain.Market{{
		ID: "m1",
		Options: []domain.Option{
			{Name: "A", Stake: 30},
			{Name: "B", Stake: 70},
		},
		Status: domain.MarketStatusActive,
	}}, logger)

	txs := memory.NewTransactionStore()
	jnl := journal.New(txs, logger)
	ldg := ledger.New(memory.NewPositionStore(), logger)
	settler := &fakeSettler{}

	eng := New(
		cat,
		ldg,
		jnl,
		memory.NewBalanceStore(),
		memory.NewAllocationStore(),
		settler,
		&fakeIdentity{},
		logger,
	)
	return &harness{engine: eng, catalog: cat, ledger: ldg, journal: jnl, txs: txs, settler: settler}
}

// fund deposits into the trading balance through the normal path.
func (h *harness) fund(t *testing.T, userID string, amount float64) {
	t.Helper()
	_, err := h.engine.Deposit(context.Background(), "m1", userID, amount)
	require.NoError(t, err)
}

func TestDeposit(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	tx, err := h.engine.Deposit(ctx, "m1", "alice", 100)
	require.NoError(t, err)
	assert.Equal(t, domain.TxTypeDeposit, tx.Type)
	assert.Equal(t, domain.TxStatusCompleted, tx.Status)
	assert.NotEmpty(t, tx.SettlementRef)

	bal, err := h.engine.TradingBalance(ctx, "m1", "alice")
	require.NoError(t, err)
	assert.Equal(t, float64(100), bal)

	_, err = h.engine.Deposit(ctx, "m1", "alice", -5)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = h.engine.Deposit(ctx, "m1", "alice", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestDepositUnauthorized(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.engine.identity = &fakeIdentity{denied: map[string]bool{"mallory": true}}

	_, err := h.engine.Deposit(ctx, "m1", "mallory", 100)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestStageBuyBounds(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fund(t, "alice", 100)

	_, err := h.engine.Stage(ctx, "m1", "alice", 0, domain.SideYes, 150, domain.ModeBuy)
	assert.ErrorIs(t, err, domain.ErrExceedsAvailableBalance)

	alloc, err := h.engine.Stage(ctx, "m1", "alice", 0, domain.SideYes, 100, domain.ModeBuy)
	require.NoError(t, err)
	assert.Equal(t, float64(100), alloc.Amount)

	// Staging replaces, it never accumulates, so re-staging the full
	// balance on the same side stays legal.
	alloc, err = h.engine.Stage(ctx, "m1", "alice", 0, domain.SideYes, 60, domain.ModeBuy)
	require.NoError(t, err)
	assert.Equal(t, float64(60), alloc.Amount)
}

func TestSharedBalanceAcrossSides(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fund(t, "alice", 100)

	_, err := h.engine.Stage(ctx, "m1", "alice", 0, domain.SideYes, 70, domain.ModeBuy)
	require.NoError(t, err)

	// With 70 staged on yes, only 30 is left for no.
	avail, err := h.engine.AvailableToBuy(ctx, "m1", "alice", 0, domain.SideNo)
	require.NoError(t, err)
	assert.Equal(t, float64(30), avail)

	_, err = h.engine.Stage(ctx, "m1", "alice", 0, domain.SideNo, 40, domain.ModeBuy)
	assert.ErrorIs(t, err, domain.ErrExceedsAvailableBalance)

	// Switching sides clears the staged amount and restores the full
	// balance to the newly selected side.
	alloc, err := h.engine.SelectSide(ctx, "m1", "alice", 0, domain.SideNo, domain.ModeBuy)
	require.NoError(t, err)
	assert.Equal(t, domain.SideNo, alloc.Side)
	assert.Equal(t, float64(0), alloc.Amount)

	avail, err = h.engine.AvailableToBuy(ctx, "m1", "alice", 0, domain.SideNo)
	require.NoError(t, err)
	assert.Equal(t, float64(100), avail)

	_, err = h.engine.Stage(ctx, "m1", "alice", 0, domain.SideNo, 100, domain.ModeBuy)
	require.NoError(t, err)
}

func TestSelectSideToggle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fund(t, "alice", 100)

	alloc, err := h.engine.SelectSide(ctx, "m1", "alice", 1, domain.SideYes, domain.ModeBuy)
	require.NoError(t, err)
	assert.Equal(t, domain.SideYes, alloc.Side)

	// Same side, same mode: deselect.
	alloc, err = h.engine.SelectSide(ctx, "m1", "alice", 1, domain.SideYes, domain.ModeBuy)
	require.NoError(t, err)
	assert.Equal(t, domain.SideNone, alloc.Side)
	assert.Equal(t, float64(0), alloc.Amount)
}

func TestSellRequiresOwnedPosition(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fund(t, "alice", 100)

	_, err := h.engine.SelectSide(ctx, "m1", "alice", 0, domain.SideYes, domain.ModeSell)
	assert.ErrorIs(t, err, domain.ErrExceedsOwnedPosition)

	_, err = h.engine.Stage(ctx, "m1", "alice", 0, domain.SideYes, 1, domain.ModeSell)
	assert.ErrorIs(t, err, domain.ErrExceedsOwnedPosition)

	// Buy 50, then sells are bounded by the owned 50.
	_, err = h.engine.Stage(ctx, "m1", "alice", 0, domain.SideYes, 50, domain.ModeBuy)
	require.NoError(t, err)
	_, err = h.engine.Commit(ctx, "m1", "alice", 0)
	require.NoError(t, err)

	_, err = h.engine.Stage(ctx, "m1", "alice", 0, domain.SideYes, 51, domain.ModeSell)
	assert.ErrorIs(t, err, domain.ErrExceedsOwnedPosition)

	_, err = h.engine.Stage(ctx, "m1", "alice", 0, domain.SideYes, 50, domain.ModeSell)
	require.NoError(t, err)
	tx, err := h.engine.Commit(ctx, "m1", "alice", 0)
	require.NoError(t, err)
	assert.Equal(t, domain.TxTypeSell, tx.Type)

	owned, err := h.engine.AvailableToSell(ctx, "m1", "alice", 0, domain.SideYes)
	require.NoError(t, err)
	assert.Equal(t, float64(0), owned)
}

func TestCommitBuyUpdatesLedgerAndStakes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fund(t, "alice", 100)

	_, err := h.engine.Stage(ctx, "m1", "alice", 0, domain.SideYes, 40, domain.ModeBuy)
	require.NoError(t, err)

	tx, err := h.engine.Commit(ctx, "m1", "alice", 0)
	require.NoError(t, err)
	assert.Equal(t, domain.TxTypeBuy, tx.Type)
	assert.Equal(t, "A", tx.OptionName)
	assert.Equal(t, domain.TxStatusCompleted, tx.Status)

	owned, err := h.engine.AvailableToSell(ctx, "m1", "alice", 0, domain.SideYes)
	require.NoError(t, err)
	assert.Equal(t, float64(40), owned)

	m, err := h.catalog.Get(ctx, "m1")
	require.NoError(t, err)
	assert.InDelta(t, 70, m.Options[0].Stake, 1e-9)

	alloc, err := h.engine.Allocation(ctx, "m1", "alice", 0)
	require.NoError(t, err)
	assert.True(t, alloc.Placed)
}

func TestCommitNothingStaged(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fund(t, "alice", 100)

	_, err := h.engine.Commit(ctx, "m1", "alice", 0)
	assert.ErrorIs(t, err, domain.ErrNothingStaged)

	// A selected side with a zero amount is still nothing to commit.
	_, err = h.engine.SelectSide(ctx, "m1", "alice", 0, domain.SideYes, domain.ModeBuy)
	require.NoError(t, err)
	_, err = h.engine.Commit(ctx, "m1", "alice", 0)
	assert.ErrorIs(t, err, domain.ErrNothingStaged)
}

func TestCommitPlacedTwice(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fund(t, "alice", 100)

	_, err := h.engine.Stage(ctx, "m1", "alice", 0, domain.SideYes, 25, domain.ModeBuy)
	require.NoError(t, err)
	_, err = h.engine.Commit(ctx, "m1", "alice", 0)
	require.NoError(t, err)

	_, err = h.engine.Commit(ctx, "m1", "alice", 0)
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	// Re-staging clears the placed mark and allows a fresh commit.
	_, err = h.engine.Stage(ctx, "m1", "alice", 0, domain.SideYes, 10, domain.ModeBuy)
	require.NoError(t, err)
	_, err = h.engine.Commit(ctx, "m1", "alice", 0)
	require.NoError(t, err)
}

func TestSettlementFailureLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fund(t, "alice", 100)

	_, err := h.engine.Stage(ctx, "m1", "alice", 0, domain.SideYes, 40, domain.ModeBuy)
	require.NoError(t, err)

	before, err := h.catalog.Get(ctx, "m1")
	require.NoError(t, err)

	h.settler.failNext = 1
	h.settler.failKind = domain.SettlementTimeout

	_, err = h.engine.Commit(ctx, "m1", "alice", 0)
	se, ok := domain.AsSettlement(err)
	require.True(t, ok)
	assert.Equal(t, domain.SettlementTimeout, se.Kind)
	assert.True(t, se.Retryable())

	// No journal entry, no position, no stake movement.
	txs, err := h.journal.ListByUser(ctx, "alice", domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, txs, 1) // the deposit only
	assert.Equal(t, domain.TxTypeDeposit, txs[0].Type)

	owned, err := h.engine.AvailableToSell(ctx, "m1", "alice", 0, domain.SideYes)
	require.NoError(t, err)
	assert.Equal(t, float64(0), owned)

	after, err := h.catalog.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, before.Options, after.Options)

	// Retry succeeds and produces exactly one buy entry and one mutation.
	_, err = h.engine.Commit(ctx, "m1", "alice", 0)
	require.NoError(t, err)

	txs, err = h.journal.ListByUser(ctx, "alice", domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, txs, 2)

	owned, err = h.engine.AvailableToSell(ctx, "m1", "alice", 0, domain.SideYes)
	require.NoError(t, err)
	assert.Equal(t, float64(40), owned)
}

func TestSettlerErrorNormalized(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	// A settler returning a plain error surfaces as a settlement failure.
	plainErr := errors.New("boom")
	h.engine.settler = settlerFunc(func(context.Context, domain.SettlementIntent) (string, error) {
		return "", plainErr
	})

	_, err := h.engine.Deposit(ctx, "m1", "alice", 10)
	se, ok := domain.AsSettlement(err)
	require.True(t, ok)
	assert.Equal(t, domain.SettlementFailed, se.Kind)
	assert.ErrorIs(t, err, plainErr)
	assert.False(t, se.Retryable())
}

type settlerFunc func(context.Context, domain.SettlementIntent) (string, error)

func (f settlerFunc) Settle(ctx context.Context, intent domain.SettlementIntent) (string, error) {
	return f(ctx, intent)
}

func TestCommitAllContinuesPastFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fund(t, "alice", 100)

	_, err := h.engine.Stage(ctx, "m1", "alice", 0, domain.SideYes, 30, domain.ModeBuy)
	require.NoError(t, err)
	_, err = h.engine.Stage(ctx, "m1", "alice", 1, domain.SideNo, 20, domain.ModeBuy)
	require.NoError(t, err)

	// First commit in the batch fails, the second still runs.
	h.settler.failNext = 1
	h.settler.failKind = domain.SettlementRejected

	results, err := h.engine.CommitAll(ctx, "m1", "alice")
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, 0, results[0].OptionIndex)
	se, ok := domain.AsSettlement(results[0].Err)
	require.True(t, ok)
	assert.Equal(t, domain.SettlementRejected, se.Kind)

	assert.Equal(t, 1, results[1].OptionIndex)
	require.NoError(t, results[1].Err)
	assert.Equal(t, domain.TxTypeBuy, results[1].Tx.Type)

	// The failed option stays staged and committable.
	alloc, err := h.engine.Allocation(ctx, "m1", "alice", 0)
	require.NoError(t, err)
	assert.False(t, alloc.Placed)
	assert.Equal(t, float64(30), alloc.Amount)
}

func TestCommitAllSkipsPlacedAndUnselected(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fund(t, "alice", 100)

	_, err := h.engine.Stage(ctx, "m1", "alice", 0, domain.SideYes, 10, domain.ModeBuy)
	require.NoError(t, err)
	_, err = h.engine.Commit(ctx, "m1", "alice", 0)
	require.NoError(t, err)

	// Option 1 selected but amount 0: not eligible.
	_, err = h.engine.SelectSide(ctx, "m1", "alice", 1, domain.SideYes, domain.ModeBuy)
	require.NoError(t, err)

	results, err := h.engine.CommitAll(ctx, "m1", "alice")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestTotalAllocatedAndMaxReturn(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fund(t, "alice", 100)

	// Market stakes 30/70: option 0 yes price 30¢, option 1 yes price 70¢.
	_, err := h.engine.Stage(ctx, "m1", "alice", 0, domain.SideYes, 30, domain.ModeBuy)
	require.NoError(t, err)
	_, err = h.engine.Stage(ctx, "m1", "alice", 1, domain.SideYes, 35, domain.ModeBuy)
	require.NoError(t, err)

	total, err := h.engine.TotalAllocated(ctx, "m1", "alice")
	require.NoError(t, err)
	assert.InDelta(t, 65, total, 1e-9)

	// Payouts: 30/(30/100)=100 and 35/(70/100)=50. Only one can win.
	best, err := h.engine.MaxPotentialReturn(ctx, "m1", "alice")
	require.NoError(t, err)
	assert.InDelta(t, 100, best, 1e-9)
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fund(t, "alice", 100)

	_, err := h.engine.Stage(ctx, "m1", "alice", 0, domain.SideYes, 20, domain.ModeBuy)
	require.NoError(t, err)
	require.NoError(t, h.engine.Clear(ctx, "m1", "alice", 0))

	alloc, err := h.engine.Allocation(ctx, "m1", "alice", 0)
	require.NoError(t, err)
	assert.Equal(t, domain.SideNone, alloc.Side)
	assert.Equal(t, float64(0), alloc.Amount)
}

func TestInvalidOptionIndex(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fund(t, "alice", 100)

	_, err := h.engine.Stage(ctx, "m1", "alice", 7, domain.SideYes, 10, domain.ModeBuy)
	assert.ErrorIs(t, err, domain.ErrInvalidOption)

	_, err = h.engine.Commit(ctx, "m1", "alice", -1)
	assert.ErrorIs(t, err, domain.ErrInvalidOption)
}
