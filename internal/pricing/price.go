// Package pricing converts a market's option stakes into implied
// probabilities, per-share prices, and payout previews. All functions are
// pure and safe for concurrent use.
package pricing

import (
	"github.com/openpredict/marketd/internal/domain"
)

// ImpliedProbability returns the percentage of the total pool backing the
// option at idx, in [0,100]. It fails with domain.ErrDivisionByZero when the
// market has no capital in it, rather than propagating NaN.
func ImpliedProbability(m domain.Market, idx int) (float64, error) {
	if idx < 0 || idx >= len(m.Options) {
		return 0, &domain.ValidationError{
			Err:    domain.ErrInvalidOption,
			Intent: domain.Intent{MarketID: m.ID, OptionIndex: idx},
		}
	}

	pool := m.TotalPool()
	if pool <= 0 {
		return 0, &domain.ValidationError{
			Err:    domain.ErrDivisionByZero,
			Intent: domain.Intent{MarketID: m.ID, OptionIndex: idx},
		}
	}

	return m.Options[idx].Stake / pool * 100, nil
}

// Price returns the per-share price in cents for one side of an option.
// Yes trades at the implied probability, no at its complement, so for any
// option yes+no always totals exactly 100 cents.
//
// A side whose price would be zero or below (one option holding the whole
// pool) is rejected with domain.ErrInvalidPrice instead of being floored:
// a floor would break the complement identity and a zero price implies an
// infinite payout multiple.
func Price(m domain.Market, idx int, side domain.Side) (float64, error) {
	if !side.Valid() {
		return 0, &domain.ValidationError{
			Err:    domain.ErrInvalidSide,
			Intent: domain.Intent{MarketID: m.ID, OptionIndex: idx, Side: side},
		}
	}

	prob, err := ImpliedProbability(m, idx)
	if err != nil {
		return 0, err
	}

	cents := prob
	if side == domain.SideNo {
		cents = 100 - prob
	}
	if cents <= 0 {
		return 0, &domain.ValidationError{
			Err:    domain.ErrInvalidPrice,
			Intent: domain.Intent{MarketID: m.ID, OptionIndex: idx, Side: side},
		}
	}

	return cents, nil
}

// PotentialPayout returns the total return, principal included, of putting
// amount on a side priced at priceCents, should that side resolve true.
// Buying at P cents yields amount/(P/100) because each winning share
// redeems for one dollar.
func PotentialPayout(amount, priceCents float64) (float64, error) {
	if priceCents <= 0 {
		return 0, &domain.ValidationError{
			Err:    domain.ErrInvalidPrice,
			Intent: domain.Intent{Amount: amount},
		}
	}
	return amount / (priceCents / 100), nil
}

// CentsToDollars converts a cents price to its dollar value.
func CentsToDollars(cents float64) float64 {
	return cents / 100
}
