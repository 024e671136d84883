package settlement

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openpredict/marketd/internal/catalog"
	"github.com/openpredict/marketd/internal/domain"
	"github.com/openpredict/marketd/internal/ledger"
	"github.com/openpredict/marketd/internal/store/memory"
)

func newFixture(t *testing.T) (*Calculator, *catalog.Catalog, *ledger.Ledger) {
	t.Helper()
	cat := catalog.New([]domain.Market{{
		ID: "m1",
		Options: []domain.Option{
			{Name: "A", Stake: 30},
			{Name: "B", Stake: 70},
		},
		Status: domain.MarketStatusActive,
	}}, slog.Default())
	ldg := ledger.New(memory.NewPositionStore(), slog.Default())
	return New(cat, ldg, slog.Default()), cat, ldg
}

func TestRedeemBeforeResolution(t *testing.T) {
	ctx := context.Background()
	calc, _, _ := newFixture(t)

	_, err := calc.Redeem(ctx, "m1", "alice")
	assert.ErrorIs(t, err, domain.ErrMarketNotResolved)
}

func TestRedeemWinningPairOnly(t *testing.T) {
	ctx := context.Background()
	calc, cat, ldg := newFixture(t)

	// 40 yes shares on A, 10 no shares on B.
	require.NoError(t, ldg.Credit(ctx, "m1", "alice", 0, domain.SideYes, 40))
	require.NoError(t, ldg.Credit(ctx, "m1", "alice", 1, domain.SideNo, 10))

	require.NoError(t, cat.Resolve(ctx, "m1", domain.Resolution{OptionIndex: 0, Side: domain.SideYes}))

	// Only the resolved (option, side) pair pays; B's no position pays 0.
	value, err := calc.Redeem(ctx, "m1", "alice")
	require.NoError(t, err)
	assert.InDelta(t, 40, value, 1e-9)
}

func TestRedeemNothingOwned(t *testing.T) {
	ctx := context.Background()
	calc, cat, _ := newFixture(t)

	require.NoError(t, cat.Resolve(ctx, "m1", domain.Resolution{OptionIndex: 1, Side: domain.SideNo}))

	value, err := calc.Redeem(ctx, "m1", "bob")
	require.NoError(t, err)
	assert.Equal(t, float64(0), value)
}

func TestPreview(t *testing.T) {
	ctx := context.Background()
	calc, _, ldg := newFixture(t)

	require.NoError(t, ldg.Credit(ctx, "m1", "alice", 1, domain.SideYes, 25))

	value, err := calc.Preview(ctx, "m1", "alice", domain.Resolution{OptionIndex: 1, Side: domain.SideYes})
	require.NoError(t, err)
	assert.InDelta(t, 25, value, 1e-9)

	value, err = calc.Preview(ctx, "m1", "alice", domain.Resolution{OptionIndex: 0, Side: domain.SideYes})
	require.NoError(t, err)
	assert.Equal(t, float64(0), value)

	_, err = calc.Preview(ctx, "m1", "alice", domain.Resolution{OptionIndex: 9, Side: domain.SideYes})
	assert.ErrorIs(t, err, domain.ErrInvalidOption)
}
