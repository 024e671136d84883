package domain

import "time"

// TxType is the kind of executed action a journal entry records.
type TxType string

const (
	TxTypeDeposit TxType = "deposit"
	TxTypeBuy     TxType = "buy"
	TxTypeSell    TxType = "sell"
)

// TxStatus is the lifecycle state of a journal entry. Pending may move to
// completed or failed exactly once; both are terminal.
type TxStatus string

const (
	TxStatusPending   TxStatus = "pending"
	TxStatusCompleted TxStatus = "completed"
	TxStatusFailed    TxStatus = "failed"
)

// Terminal reports whether the status permits no further transition.
func (s TxStatus) Terminal() bool {
	return s == TxStatusCompleted || s == TxStatusFailed
}

// Transaction is one executed (or attempted) action in the journal. Entries
// are immutable apart from the single status transition. SettlementRef is
// the opaque identifier returned by the external settlement executor; it is
// the idempotency key for replays.
type Transaction struct {
	ID            string    `json:"id"`
	Type          TxType    `json:"type"`
	MarketID      string    `json:"marketId"`
	UserID        string    `json:"userId"`
	OptionIndex   int       `json:"optionIndex,omitempty"`
	OptionName    string    `json:"optionName,omitempty"`
	Side          Side      `json:"side,omitempty"`
	Amount        float64   `json:"amount"`
	Status        TxStatus  `json:"status"`
	SettlementRef string    `json:"settlementRef,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}
