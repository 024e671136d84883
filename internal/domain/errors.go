package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors. Typed wrappers below attach the failed intent; errors.Is
// still matches these through Unwrap.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrLockHeld      = errors.New("lock already held")

	// Validation failures: reported synchronously, nothing mutated.
	ErrDivisionByZero          = errors.New("total pool is zero")
	ErrInvalidPrice            = errors.New("price must be positive")
	ErrExceedsAvailableBalance = errors.New("amount exceeds available balance")
	ErrExceedsOwnedPosition    = errors.New("amount exceeds owned position")
	ErrInvalidSide             = errors.New("invalid side")
	ErrInvalidMode             = errors.New("invalid mode")
	ErrInvalidAmount           = errors.New("amount must be positive")
	ErrInvalidOption           = errors.New("option index out of range")
	ErrNothingStaged           = errors.New("no allocation staged")

	// Sequencing failures: surfaced, not retried automatically.
	ErrInsufficientPosition = errors.New("insufficient position")
	ErrMarketNotResolved    = errors.New("market not resolved")
	ErrFinalStatus          = errors.New("transaction status is final")
)

// Intent identifies the action an error relates to, with enough context to
// reconstruct and retry the failed request.
type Intent struct {
	MarketID    string
	UserID      string
	OptionIndex int
	Side        Side
	Amount      float64
}

// ValidationError wraps a validation sentinel with the failed intent.
type ValidationError struct {
	Err    error
	Intent Intent
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %v (market=%s user=%s option=%d side=%s amount=%g)",
		e.Err, e.Intent.MarketID, e.Intent.UserID, e.Intent.OptionIndex, e.Intent.Side, e.Intent.Amount)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// SettlementKind distinguishes why an external settlement attempt did not
// produce a reference.
type SettlementKind string

const (
	SettlementRejected            SettlementKind = "rejected"
	SettlementFailed              SettlementKind = "failed"
	SettlementNetworkPrecondition SettlementKind = "network_precondition"
	SettlementTimeout             SettlementKind = "timeout"
)

// SettlementError reports a failed external settlement. State is guaranteed
// untouched; the caller may retry (NetworkPrecondition and Timeout are the
// retryable kinds).
type SettlementError struct {
	Kind   SettlementKind
	Intent Intent
	Err    error
}

func (e *SettlementError) Error() string {
	return fmt.Sprintf("settlement %s: %v (market=%s user=%s amount=%g)",
		e.Kind, e.Err, e.Intent.MarketID, e.Intent.UserID, e.Intent.Amount)
}

func (e *SettlementError) Unwrap() error { return e.Err }

// Retryable reports whether the caller can expect a retry to succeed once
// the external condition clears.
func (e *SettlementError) Retryable() bool {
	return e.Kind == SettlementNetworkPrecondition || e.Kind == SettlementTimeout
}

// StateError wraps a sequencing sentinel (caller invoked an operation the
// current state does not permit) with the failed intent.
type StateError struct {
	Err    error
	Intent Intent
}

func (e *StateError) Error() string {
	return fmt.Sprintf("state: %v (market=%s user=%s option=%d side=%s amount=%g)",
		e.Err, e.Intent.MarketID, e.Intent.UserID, e.Intent.OptionIndex, e.Intent.Side, e.Intent.Amount)
}

func (e *StateError) Unwrap() error { return e.Err }

// AsSettlement extracts a *SettlementError from err's chain, if any.
func AsSettlement(err error) (*SettlementError, bool) {
	var se *SettlementError
	ok := errors.As(err, &se)
	return se, ok
}
