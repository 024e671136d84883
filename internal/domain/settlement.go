package domain

import "context"

// SettlementIntent describes the value transfer the external executor must
// finalize before the engine applies an action.
type SettlementIntent struct {
	UserID      string
	MarketID    string
	Type        TxType
	OptionIndex int
	OptionName  string
	Side        Side
	Amount      float64
}

// SettlementExecutor performs the actual value transfer (e.g. an on-chain
// transaction) and returns an opaque settlement reference. Failures must be
// reported as *SettlementError with the distinguishing kind; the executor
// never partially settles.
type SettlementExecutor interface {
	Settle(ctx context.Context, intent SettlementIntent) (ref string, err error)
}

// Identity is the wallet/identity provider gate. No commit proceeds for an
// unauthenticated user.
type Identity interface {
	Authenticated(ctx context.Context, userID string) (bool, error)
}
