package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openpredict/marketd/internal/domain"
)

func twoOptionMarket(stakeA, stakeB float64) domain.Market {
	return domain.Market{
		ID: "m1",
		Options: []domain.Option{
			{Name: "A", Stake: stakeA},
			{Name: "B", Stake: stakeB},
		},
	}
}

func TestImpliedProbability(t *testing.T) {
	m := twoOptionMarket(30, 70)

	probA, err := ImpliedProbability(m, 0)
	require.NoError(t, err)
	assert.InDelta(t, 30, probA, 1e-9)

	probB, err := ImpliedProbability(m, 1)
	require.NoError(t, err)
	assert.InDelta(t, 70, probB, 1e-9)
}

func TestImpliedProbabilityEmptyPool(t *testing.T) {
	m := twoOptionMarket(0, 0)

	_, err := ImpliedProbability(m, 0)
	require.ErrorIs(t, err, domain.ErrDivisionByZero)

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "m1", verr.Intent.MarketID)
}

func TestImpliedProbabilityBadIndex(t *testing.T) {
	m := twoOptionMarket(30, 70)

	_, err := ImpliedProbability(m, 2)
	assert.ErrorIs(t, err, domain.ErrInvalidOption)

	_, err = ImpliedProbability(m, -1)
	assert.ErrorIs(t, err, domain.ErrInvalidOption)
}

func TestPriceComplementSumsToHundred(t *testing.T) {
	m := domain.Market{
		ID: "m2",
		Options: []domain.Option{
			{Name: "GPT-5", Stake: 234_000_000},
			{Name: "Claude-4", Stake: 182_000_000},
			{Name: "Gemini-X", Stake: 104_000_000},
		},
	}

	for idx := range m.Options {
		yes, err := Price(m, idx, domain.SideYes)
		require.NoError(t, err)
		no, err := Price(m, idx, domain.SideNo)
		require.NoError(t, err)
		assert.InDelta(t, 100, yes+no, 1e-9, "option %d", idx)
	}
}

func TestPriceRejectsInvalidSide(t *testing.T) {
	m := twoOptionMarket(30, 70)

	_, err := Price(m, 0, domain.Side("maybe"))
	assert.ErrorIs(t, err, domain.ErrInvalidSide)

	_, err = Price(m, 0, domain.SideNone)
	assert.ErrorIs(t, err, domain.ErrInvalidSide)
}

func TestPriceRejectsZeroPrice(t *testing.T) {
	// One option holds the entire pool: its "no" side would price at 0.
	m := twoOptionMarket(100, 0)

	_, err := Price(m, 0, domain.SideNo)
	assert.ErrorIs(t, err, domain.ErrInvalidPrice)

	// The complementary reads still work.
	yes, err := Price(m, 0, domain.SideYes)
	require.NoError(t, err)
	assert.InDelta(t, 100, yes, 1e-9)
}

func TestPotentialPayoutRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		amount float64
		price  float64
	}{
		{30, 30}, {100, 70}, {12.5, 42.1}, {0.01, 99.99},
	} {
		payout, err := PotentialPayout(tc.amount, tc.price)
		require.NoError(t, err)
		assert.InDelta(t, tc.amount, payout*tc.price/100, 1e-9)
	}
}

func TestPotentialPayoutInvalidPrice(t *testing.T) {
	_, err := PotentialPayout(10, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidPrice)

	_, err = PotentialPayout(10, -5)
	assert.ErrorIs(t, err, domain.ErrInvalidPrice)
}

func TestEndToEndPricing(t *testing.T) {
	// A(stake=30), B(stake=70): buying $30 of yes on A returns $100.
	m := twoOptionMarket(30, 70)

	yesA, err := Price(m, 0, domain.SideYes)
	require.NoError(t, err)
	assert.InDelta(t, 30, yesA, 1e-9)

	noA, err := Price(m, 0, domain.SideNo)
	require.NoError(t, err)
	assert.InDelta(t, 70, noA, 1e-9)

	payout, err := PotentialPayout(30, yesA)
	require.NoError(t, err)
	assert.InDelta(t, 100, payout, 1e-9)
	assert.InDelta(t, 0.30, CentsToDollars(yesA), 1e-9)
}
