package domain

import "context"

// MarketCatalog supplies market and option definitions, including aggregate
// stake totals. The engine does not own market creation; it only moves
// stakes through accepted buys and sells. Resolution is recorded by an
// external resolver collaborator.
type MarketCatalog interface {
	Get(ctx context.Context, marketID string) (Market, error)
	List(ctx context.Context) ([]Market, error)
	// AdjustStake atomically applies delta to one option's aggregate stake.
	// A delta that would take the stake negative must be rejected unapplied.
	AdjustStake(ctx context.Context, marketID string, optionIndex int, delta float64) error
	// SetStakes replaces all option stakes of a market (live feed updates).
	SetStakes(ctx context.Context, marketID string, stakes []float64) error
	// Resolve records the winning (option, side) pair exactly once.
	Resolve(ctx context.Context, marketID string, res Resolution) error
}
