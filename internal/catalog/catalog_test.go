package catalog

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openpredict/marketd/internal/domain"
)

func seedMarket() domain.Market {
	return domain.Market{
		ID:       "m1",
		Question: "Will it rain tomorrow?",
		Options: []domain.Option{
			{Name: "Yes", Stake: 40},
			{Name: "No", Stake: 60},
		},
		Status: domain.MarketStatusActive,
	}
}

func TestGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	c := New([]domain.Market{seedMarket()}, slog.Default())

	m, err := c.Get(ctx, "m1")
	require.NoError(t, err)
	m.Options[0].Stake = 9999

	again, err := c.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, float64(40), again.Options[0].Stake)
}

func TestGetUnknownMarket(t *testing.T) {
	c := New(nil, slog.Default())
	_, err := c.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAdjustStake(t *testing.T) {
	ctx := context.Background()
	c := New([]domain.Market{seedMarket()}, slog.Default())

	require.NoError(t, c.AdjustStake(ctx, "m1", 0, 10))
	m, err := c.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, float64(50), m.Options[0].Stake)

	// Going negative is rejected unapplied.
	err = c.AdjustStake(ctx, "m1", 1, -100)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	m, err = c.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, float64(60), m.Options[1].Stake)

	err = c.AdjustStake(ctx, "m1", 5, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidOption)
}

func TestAdjustStakeConcurrent(t *testing.T) {
	ctx := context.Background()
	c := New([]domain.Market{seedMarket()}, slog.Default())

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.AdjustStake(ctx, "m1", 0, 1)
		}()
	}
	wg.Wait()

	m, err := c.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, float64(140), m.Options[0].Stake)
}

func TestSetStakes(t *testing.T) {
	ctx := context.Background()
	c := New([]domain.Market{seedMarket()}, slog.Default())

	require.NoError(t, c.SetStakes(ctx, "m1", []float64{15, 85}))
	m, err := c.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, float64(15), m.Options[0].Stake)
	assert.Equal(t, float64(85), m.Options[1].Stake)

	assert.ErrorIs(t, c.SetStakes(ctx, "m1", []float64{1}), domain.ErrInvalidOption)
	assert.ErrorIs(t, c.SetStakes(ctx, "m1", []float64{-1, 2}), domain.ErrInvalidAmount)
}

func TestResolveOnce(t *testing.T) {
	ctx := context.Background()
	c := New([]domain.Market{seedMarket()}, slog.Default())

	require.NoError(t, c.Resolve(ctx, "m1", domain.Resolution{OptionIndex: 0, Side: domain.SideYes}))

	m, err := c.Get(ctx, "m1")
	require.NoError(t, err)
	require.True(t, m.Resolved())
	assert.Equal(t, domain.MarketStatusResolved, m.Status)
	assert.False(t, m.Resolution.ResolvedAt.IsZero())

	err = c.Resolve(ctx, "m1", domain.Resolution{OptionIndex: 1, Side: domain.SideNo})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
}

func TestResolveValidatesInput(t *testing.T) {
	ctx := context.Background()
	c := New([]domain.Market{seedMarket()}, slog.Default())

	assert.ErrorIs(t, c.Resolve(ctx, "m1", domain.Resolution{OptionIndex: 7, Side: domain.SideYes}), domain.ErrInvalidOption)
	assert.ErrorIs(t, c.Resolve(ctx, "m1", domain.Resolution{OptionIndex: 0, Side: domain.Side("up")}), domain.ErrInvalidSide)
}
