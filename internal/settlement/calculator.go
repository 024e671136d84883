// Package settlement computes redemption values once a market resolves.
// Pricing keeps yes+no at 100 cents and a winning share redeems for one
// dollar; the calculator applies that rule to the ledger's final state.
package settlement

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/openpredict/marketd/internal/domain"
	"github.com/openpredict/marketd/internal/ledger"
)

// unitRedemption is the fixed value one winning share pays out.
const unitRedemption = 1.0

// Calculator values positions against a market's recorded resolution.
type Calculator struct {
	catalog domain.MarketCatalog
	ledger  *ledger.Ledger
	logger  *slog.Logger
}

// New creates a Calculator.
func New(catalog domain.MarketCatalog, ldg *ledger.Ledger, logger *slog.Logger) *Calculator {
	return &Calculator{
		catalog: catalog,
		ledger:  ldg,
		logger:  logger.With(slog.String("component", "settlement")),
	}
}

// Redeem returns the total redemption value of a user's positions in a
// resolved market. A market resolves to exactly one winning (option, side)
// pair; quantity held on that pair redeems at the unit value and every
// other position pays 0. Calling before resolution fails with
// domain.ErrMarketNotResolved.
func (c *Calculator) Redeem(ctx context.Context, marketID, userID string) (float64, error) {
	m, err := c.catalog.Get(ctx, marketID)
	if err != nil {
		return 0, fmt.Errorf("settlement: market %s: %w", marketID, err)
	}
	if !m.Resolved() {
		return 0, &domain.StateError{
			Err:    domain.ErrMarketNotResolved,
			Intent: domain.Intent{MarketID: marketID, UserID: userID},
		}
	}

	res := *m.Resolution
	qty, err := c.ledger.OwnedQuantity(ctx, marketID, userID, res.OptionIndex, res.Side)
	if err != nil {
		return 0, err
	}

	value := qty * unitRedemption
	c.logger.InfoContext(ctx, "redemption computed",
		slog.String("market", marketID),
		slog.String("user", userID),
		slog.Int("winning_option", res.OptionIndex),
		slog.String("winning_side", string(res.Side)),
		slog.Float64("value", value),
	)
	return value, nil
}

// Preview values the user's positions as if the market resolved to the
// given pair, without requiring an actual resolution. Useful for showing
// what-if payouts while a market is still open.
func (c *Calculator) Preview(ctx context.Context, marketID, userID string, res domain.Resolution) (float64, error) {
	m, err := c.catalog.Get(ctx, marketID)
	if err != nil {
		return 0, fmt.Errorf("settlement: market %s: %w", marketID, err)
	}
	if res.OptionIndex < 0 || res.OptionIndex >= len(m.Options) {
		return 0, &domain.ValidationError{
			Err:    domain.ErrInvalidOption,
			Intent: domain.Intent{MarketID: marketID, UserID: userID, OptionIndex: res.OptionIndex},
		}
	}
	if !res.Side.Valid() {
		return 0, &domain.ValidationError{
			Err:    domain.ErrInvalidSide,
			Intent: domain.Intent{MarketID: marketID, UserID: userID, OptionIndex: res.OptionIndex, Side: res.Side},
		}
	}

	qty, err := c.ledger.OwnedQuantity(ctx, marketID, userID, res.OptionIndex, res.Side)
	if err != nil {
		return 0, err
	}
	return qty * unitRedemption, nil
}
