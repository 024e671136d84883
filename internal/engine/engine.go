// Package engine implements the allocation engine: the trading-balance
// accounting around staged buy/sell intents and their commit path. It is
// the only writer of positions, balances, and aggregate stakes, and it
// serializes commits per (market, user) so a balance check and the mutation
// it guards execute as one unit.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/openpredict/marketd/internal/domain"
	"github.com/openpredict/marketd/internal/journal"
	"github.com/openpredict/marketd/internal/ledger"
	"github.com/openpredict/marketd/internal/pricing"
)

// defaultLockTTL bounds how long a crashed holder can wedge a distributed
// commit lock.
const defaultLockTTL = 30 * time.Second

// Engine coordinates staging and committing allocations for all users.
type Engine struct {
	catalog  domain.MarketCatalog
	ledger   *ledger.Ledger
	journal  *journal.Journal
	balances domain.BalanceStore
	allocs   domain.AllocationStore
	settler  domain.SettlementExecutor
	identity domain.Identity

	locks   domain.LockManager // optional cross-process serialization
	lockTTL time.Duration

	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithLockManager adds a distributed lock around commits, for deployments
// where more than one process serves the same user.
func WithLockManager(lm domain.LockManager, ttl time.Duration) Option {
	return func(e *Engine) {
		e.locks = lm
		if ttl > 0 {
			e.lockTTL = ttl
		}
	}
}

// New creates an Engine with all required collaborators.
func New(
	catalog domain.MarketCatalog,
	ldg *ledger.Ledger,
	jnl *journal.Journal,
	balances domain.BalanceStore,
	allocs domain.AllocationStore,
	settler domain.SettlementExecutor,
	identity domain.Identity,
	logger *slog.Logger,
	opts ...Option,
) *Engine {
	e := &Engine{
		catalog:  catalog,
		ledger:   ldg,
		journal:  jnl,
		balances: balances,
		allocs:   allocs,
		settler:  settler,
		identity: identity,
		lockTTL:  defaultLockTTL,
		logger:   logger.With(slog.String("component", "engine")),
		now:      func() time.Time { return time.Now().UTC() },
		sessions: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// session returns the per-(market, user) mutex, creating it on first use.
func (e *Engine) session(marketID, userID string) *sync.Mutex {
	key := marketID + "|" + userID
	e.mu.Lock()
	defer e.mu.Unlock()
	mu, ok := e.sessions[key]
	if !ok {
		mu = &sync.Mutex{}
		e.sessions[key] = mu
	}
	return mu
}

// gate verifies the identity provider considers the user authenticated.
func (e *Engine) gate(ctx context.Context, userID string) error {
	ok, err := e.identity.Authenticated(ctx, userID)
	if err != nil {
		return fmt.Errorf("engine: identity check: %w", err)
	}
	if !ok {
		return fmt.Errorf("engine: user %s: %w", userID, domain.ErrUnauthorized)
	}
	return nil
}

// market fetches the market and bounds-checks the option index.
func (e *Engine) market(ctx context.Context, marketID string, optionIndex int) (domain.Market, error) {
	m, err := e.catalog.Get(ctx, marketID)
	if err != nil {
		return domain.Market{}, fmt.Errorf("engine: market %s: %w", marketID, err)
	}
	if optionIndex < 0 || optionIndex >= len(m.Options) {
		return domain.Market{}, &domain.ValidationError{
			Err:    domain.ErrInvalidOption,
			Intent: domain.Intent{MarketID: marketID, OptionIndex: optionIndex},
		}
	}
	return m, nil
}

// allocation loads the staged allocation, defaulting to an unselected
// buy-mode entry the way the UI seeds one per option.
func (e *Engine) allocation(ctx context.Context, marketID, userID string, optionIndex int) (domain.Allocation, error) {
	alloc, err := e.allocs.Get(ctx, marketID, userID, optionIndex)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Allocation{
			MarketID:    marketID,
			UserID:      userID,
			OptionIndex: optionIndex,
			Side:        domain.SideNone,
			Mode:        domain.ModeBuy,
		}, nil
	}
	if err != nil {
		return domain.Allocation{}, fmt.Errorf("engine: get allocation: %w", err)
	}
	return alloc, nil
}

// TradingBalance returns the user's deposited balance for a market.
func (e *Engine) TradingBalance(ctx context.Context, marketID, userID string) (float64, error) {
	bal, err := e.balances.Get(ctx, marketID, userID)
	if err != nil {
		return 0, fmt.Errorf("engine: get balance: %w", err)
	}
	return bal, nil
}

// Allocation returns the staged allocation for one option, defaulting to an
// unselected buy-mode entry.
func (e *Engine) Allocation(ctx context.Context, marketID, userID string, optionIndex int) (domain.Allocation, error) {
	if _, err := e.market(ctx, marketID, optionIndex); err != nil {
		return domain.Allocation{}, err
	}
	return e.allocation(ctx, marketID, userID, optionIndex)
}

// Staged returns all of the user's staged allocations in a market, ordered
// by option index.
func (e *Engine) Staged(ctx context.Context, marketID, userID string) ([]domain.Allocation, error) {
	allocs, err := e.allocs.ListByUser(ctx, marketID, userID)
	if err != nil {
		return nil, fmt.Errorf("engine: list allocations: %w", err)
	}
	return allocs, nil
}

// AvailableToBuy returns the ceiling for a buy on one side of an option:
// the trading balance minus whatever is staged on the other side of the
// same option. The balance is shared per option, not across the market, so
// every option independently sees the full balance.
func (e *Engine) AvailableToBuy(ctx context.Context, marketID, userID string, optionIndex int, side domain.Side) (float64, error) {
	if !side.Valid() {
		return 0, &domain.ValidationError{
			Err:    domain.ErrInvalidSide,
			Intent: domain.Intent{MarketID: marketID, UserID: userID, OptionIndex: optionIndex, Side: side},
		}
	}
	if _, err := e.market(ctx, marketID, optionIndex); err != nil {
		return 0, err
	}

	bal, err := e.balances.Get(ctx, marketID, userID)
	if err != nil {
		return 0, fmt.Errorf("engine: get balance: %w", err)
	}
	alloc, err := e.allocation(ctx, marketID, userID, optionIndex)
	if err != nil {
		return 0, err
	}

	avail := bal
	if alloc.Side.Valid() && alloc.Side != side {
		avail -= alloc.Amount
	}
	if avail < 0 {
		avail = 0
	}
	return avail, nil
}

// AvailableToSell returns the owned quantity on one side of an option.
func (e *Engine) AvailableToSell(ctx context.Context, marketID, userID string, optionIndex int, side domain.Side) (float64, error) {
	if !side.Valid() {
		return 0, &domain.ValidationError{
			Err:    domain.ErrInvalidSide,
			Intent: domain.Intent{MarketID: marketID, UserID: userID, OptionIndex: optionIndex, Side: side},
		}
	}
	return e.ledger.OwnedQuantity(ctx, marketID, userID, optionIndex, side)
}

// TotalAllocated sums the user's staged amounts with a selected side.
func (e *Engine) TotalAllocated(ctx context.Context, marketID, userID string) (float64, error) {
	allocs, err := e.Staged(ctx, marketID, userID)
	if err != nil {
		return 0, err
	}
	var total float64
	for _, a := range allocs {
		if a.Side.Valid() {
			total += a.Amount
		}
	}
	return total, nil
}

// MaxPotentialReturn returns the largest payout any single staged buy would
// produce if its side resolves true. Only one option can win, so staged
// returns do not add up; the maximum is the honest summary.
func (e *Engine) MaxPotentialReturn(ctx context.Context, marketID, userID string) (float64, error) {
	m, err := e.catalog.Get(ctx, marketID)
	if err != nil {
		return 0, fmt.Errorf("engine: market %s: %w", marketID, err)
	}
	allocs, err := e.Staged(ctx, marketID, userID)
	if err != nil {
		return 0, err
	}

	var best float64
	for _, a := range allocs {
		if !a.Side.Valid() || a.Amount <= 0 || a.Mode != domain.ModeBuy {
			continue
		}
		price, err := pricing.Price(m, a.OptionIndex, a.Side)
		if err != nil {
			return 0, err
		}
		payout, err := pricing.PotentialPayout(a.Amount, price)
		if err != nil {
			return 0, err
		}
		best = math.Max(best, payout)
	}
	return best, nil
}

// Deposit moves funds from the user's wallet into the market's trading
// balance. The external settlement reference is obtained first; only then
// does the journal record the deposit and the balance increase.
func (e *Engine) Deposit(ctx context.Context, marketID, userID string, amount float64) (domain.Transaction, error) {
	intent := domain.Intent{MarketID: marketID, UserID: userID, Amount: amount}
	if amount <= 0 {
		return domain.Transaction{}, &domain.ValidationError{Err: domain.ErrInvalidAmount, Intent: intent}
	}
	if err := e.gate(ctx, userID); err != nil {
		return domain.Transaction{}, err
	}
	if _, err := e.catalog.Get(ctx, marketID); err != nil {
		return domain.Transaction{}, fmt.Errorf("engine: market %s: %w", marketID, err)
	}

	mu := e.session(marketID, userID)
	mu.Lock()
	defer mu.Unlock()

	unlock, err := e.acquireCommitLock(ctx, marketID, userID)
	if err != nil {
		return domain.Transaction{}, err
	}
	defer unlock()

	ref, err := e.settle(ctx, domain.SettlementIntent{
		UserID:   userID,
		MarketID: marketID,
		Type:     domain.TxTypeDeposit,
		Amount:   amount,
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	tx, err := e.journal.Append(ctx, domain.Transaction{
		Type:          domain.TxTypeDeposit,
		MarketID:      marketID,
		UserID:        userID,
		Amount:        amount,
		Status:        domain.TxStatusCompleted,
		SettlementRef: ref,
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	if _, err := e.balances.Add(ctx, marketID, userID, amount); err != nil {
		return domain.Transaction{}, fmt.Errorf("engine: credit balance: %w", err)
	}

	e.logger.InfoContext(ctx, "deposit applied",
		slog.String("market", marketID),
		slog.String("user", userID),
		slog.Float64("amount", amount),
		slog.String("settlement_ref", ref),
	)
	return tx, nil
}

// settle runs the external executor and normalizes any non-settlement error
// into a SettlementError of kind failed, so callers always see the taxonomy.
func (e *Engine) settle(ctx context.Context, intent domain.SettlementIntent) (string, error) {
	ref, err := e.settler.Settle(ctx, intent)
	if err == nil {
		return ref, nil
	}
	if _, ok := domain.AsSettlement(err); ok {
		return "", err
	}
	return "", &domain.SettlementError{
		Kind: domain.SettlementFailed,
		Intent: domain.Intent{
			MarketID:    intent.MarketID,
			UserID:      intent.UserID,
			OptionIndex: intent.OptionIndex,
			Side:        intent.Side,
			Amount:      intent.Amount,
		},
		Err: err,
	}
}

// acquireCommitLock takes the optional cross-process lock. The in-process
// session mutex is already held.
func (e *Engine) acquireCommitLock(ctx context.Context, marketID, userID string) (func(), error) {
	if e.locks == nil {
		return func() {}, nil
	}
	unlock, err := e.locks.Acquire(ctx, "commit:"+marketID+":"+userID, e.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("engine: acquire commit lock: %w", err)
	}
	return unlock, nil
}
