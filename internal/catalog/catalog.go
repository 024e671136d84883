// Package catalog holds the in-process market catalog: the read-mostly set
// of markets and their live aggregate stakes. The engine routes every
// accepted buy/sell through AdjustStake so pool totals stay consistent
// under concurrent commits from different users.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/openpredict/marketd/internal/domain"
)

// Catalog implements domain.MarketCatalog with an in-memory market set,
// optionally write-through to a stake cache for cross-process readers.
type Catalog struct {
	mu      sync.RWMutex
	markets map[string]domain.Market

	stakes domain.StakeCache // optional write-through
	notify func(m domain.Market)
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithStakeCache makes the catalog mirror stake changes into cache.
func WithStakeCache(cache domain.StakeCache) Option {
	return func(c *Catalog) { c.stakes = cache }
}

// WithNotifier registers a callback invoked with a market snapshot after
// every stake change or resolution. The callback must not block.
func WithNotifier(fn func(m domain.Market)) Option {
	return func(c *Catalog) { c.notify = fn }
}

// New creates a Catalog seeded with the given markets.
func New(markets []domain.Market, logger *slog.Logger, opts ...Option) *Catalog {
	c := &Catalog{
		markets: make(map[string]domain.Market, len(markets)),
		logger:  logger.With(slog.String("component", "catalog")),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, m := range markets {
		c.markets[m.ID] = m
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns a deep copy of the market, or domain.ErrNotFound.
func (c *Catalog) Get(_ context.Context, marketID string) (domain.Market, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	m, ok := c.markets[marketID]
	if !ok {
		return domain.Market{}, fmt.Errorf("catalog: market %s: %w", marketID, domain.ErrNotFound)
	}
	return cloneMarket(m), nil
}

// List returns all markets ordered by ID.
func (c *Catalog) List(_ context.Context) ([]domain.Market, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]domain.Market, 0, len(c.markets))
	for _, m := range c.markets {
		out = append(out, cloneMarket(m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// AdjustStake atomically applies delta to one option's aggregate stake.
// A delta that would take the stake negative is rejected unapplied.
func (c *Catalog) AdjustStake(ctx context.Context, marketID string, optionIndex int, delta float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.markets[marketID]
	if !ok {
		return fmt.Errorf("catalog: market %s: %w", marketID, domain.ErrNotFound)
	}
	if optionIndex < 0 || optionIndex >= len(m.Options) {
		return &domain.ValidationError{
			Err:    domain.ErrInvalidOption,
			Intent: domain.Intent{MarketID: marketID, OptionIndex: optionIndex, Amount: delta},
		}
	}

	next := m.Options[optionIndex].Stake + delta
	if next < 0 {
		return &domain.ValidationError{
			Err:    domain.ErrInvalidAmount,
			Intent: domain.Intent{MarketID: marketID, OptionIndex: optionIndex, Amount: delta},
		}
	}
	m.Options[optionIndex].Stake = next
	m.UpdatedAt = c.now()
	c.markets[marketID] = m

	c.mirrorStakes(ctx, m)
	c.notifyChanged(m)
	return nil
}

// SetStakes replaces all option stakes of a market, as delivered by the
// stake feed. The stake count must match the option count.
func (c *Catalog) SetStakes(ctx context.Context, marketID string, stakes []float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.markets[marketID]
	if !ok {
		return fmt.Errorf("catalog: market %s: %w", marketID, domain.ErrNotFound)
	}
	if len(stakes) != len(m.Options) {
		return &domain.ValidationError{
			Err:    domain.ErrInvalidOption,
			Intent: domain.Intent{MarketID: marketID, OptionIndex: len(stakes)},
		}
	}
	for i, stake := range stakes {
		if stake < 0 {
			return &domain.ValidationError{
				Err:    domain.ErrInvalidAmount,
				Intent: domain.Intent{MarketID: marketID, OptionIndex: i, Amount: stake},
			}
		}
	}

	for i := range m.Options {
		m.Options[i].Stake = stakes[i]
	}
	m.UpdatedAt = c.now()
	c.markets[marketID] = m

	c.mirrorStakes(ctx, m)
	c.notifyChanged(m)
	return nil
}

// Resolve records the winning (option, side) pair. A market resolves at
// most once; repeat calls fail with domain.ErrAlreadyExists.
func (c *Catalog) Resolve(_ context.Context, marketID string, res domain.Resolution) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.markets[marketID]
	if !ok {
		return fmt.Errorf("catalog: market %s: %w", marketID, domain.ErrNotFound)
	}
	if m.Resolution != nil {
		return fmt.Errorf("catalog: market %s already resolved: %w", marketID, domain.ErrAlreadyExists)
	}
	if res.OptionIndex < 0 || res.OptionIndex >= len(m.Options) {
		return &domain.ValidationError{
			Err:    domain.ErrInvalidOption,
			Intent: domain.Intent{MarketID: marketID, OptionIndex: res.OptionIndex},
		}
	}
	if !res.Side.Valid() {
		return &domain.ValidationError{
			Err:    domain.ErrInvalidSide,
			Intent: domain.Intent{MarketID: marketID, OptionIndex: res.OptionIndex, Side: res.Side},
		}
	}

	if res.ResolvedAt.IsZero() {
		res.ResolvedAt = c.now()
	}
	m.Resolution = &res
	m.Status = domain.MarketStatusResolved
	m.UpdatedAt = c.now()
	c.markets[marketID] = m

	c.logger.Info("market resolved",
		slog.String("market", marketID),
		slog.Int("option", res.OptionIndex),
		slog.String("side", string(res.Side)),
	)
	c.notifyChanged(m)
	return nil
}

// notifyChanged hands a snapshot of the changed market to the registered
// notifier. Callers hold the write lock, so the snapshot is cloned first.
func (c *Catalog) notifyChanged(m domain.Market) {
	if c.notify == nil {
		return
	}
	c.notify(cloneMarket(m))
}

// mirrorStakes writes the market's stakes to the cache. Callers hold the
// write lock; cache failures are logged, not propagated, because the
// catalog itself remains the source of truth.
func (c *Catalog) mirrorStakes(ctx context.Context, m domain.Market) {
	if c.stakes == nil {
		return
	}
	stakes := make([]float64, len(m.Options))
	for i, opt := range m.Options {
		stakes[i] = opt.Stake
	}
	if err := c.stakes.SetStakes(ctx, m.ID, stakes); err != nil {
		c.logger.WarnContext(ctx, "stake cache write failed",
			slog.String("market", m.ID),
			slog.String("error", err.Error()),
		)
	}
}

func cloneMarket(m domain.Market) domain.Market {
	out := m
	out.Options = make([]domain.Option, len(m.Options))
	copy(out.Options, m.Options)
	if m.Resolution != nil {
		res := *m.Resolution
		out.Resolution = &res
	}
	return out
}

var _ domain.MarketCatalog = (*Catalog)(nil)
