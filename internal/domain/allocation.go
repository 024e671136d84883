package domain

import "time"

// Allocation is a user-local, uncommitted trading intent for one option of
// one market. It is staging state: the commit path re-validates it against
// current balances before anything moves.
//
// At most one side of an option carries a staged buy at a time; selecting
// the other side resets the amount instead of summing.
type Allocation struct {
	MarketID    string  `json:"marketId"`
	UserID      string  `json:"userId"`
	OptionIndex int     `json:"optionIndex"`
	Side        Side    `json:"side"`
	Amount      float64 `json:"amount"`
	Mode        Mode    `json:"mode"`
	// Placed marks an allocation whose last staged amount was committed.
	// Any edit clears it; the option must be re-committed afterwards.
	Placed    bool      `json:"placed"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Eligible reports whether the allocation can be committed as-is.
func (a Allocation) Eligible() bool {
	return a.Side.Valid() && a.Amount > 0 && !a.Placed
}
