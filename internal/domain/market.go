package domain

import "time"

// Side is the yes/no sub-market within an option. SideNone means no side is
// currently selected for a staged allocation.
type Side string

const (
	SideYes  Side = "yes"
	SideNo   Side = "no"
	SideNone Side = ""
)

// Valid reports whether the side is one of yes/no. SideNone is not a
// tradeable side.
func (s Side) Valid() bool {
	return s == SideYes || s == SideNo
}

// Opposite returns the complementary side. SideNone maps to itself.
func (s Side) Opposite() Side {
	switch s {
	case SideYes:
		return SideNo
	case SideNo:
		return SideYes
	default:
		return SideNone
	}
}

// Mode distinguishes buy from sell intents.
type Mode string

const (
	ModeBuy  Mode = "buy"
	ModeSell Mode = "sell"
)

// Valid reports whether the mode is buy or sell.
func (m Mode) Valid() bool {
	return m == ModeBuy || m == ModeSell
}

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusActive   MarketStatus = "active"
	MarketStatusClosed   MarketStatus = "closed"
	MarketStatusResolved MarketStatus = "resolved"
)

// Option is one outcome of a market. Stake is the aggregate capital backing
// this option across all users, moved only by accepted buy/sell actions.
type Option struct {
	Name  string  `json:"name"`
	Stake float64 `json:"stake"`
}

// Resolution records the winning (option, side) pair of a resolved market.
type Resolution struct {
	OptionIndex int       `json:"optionIndex"`
	Side        Side      `json:"side"`
	ResolvedAt  time.Time `json:"resolvedAt"`
}

// Market is a prediction market with an ordered set of options. Option order
// is insertion order and doubles as the indexing order everywhere else in the
// system. Options are immutable after creation; only their stakes move.
type Market struct {
	ID         string       `json:"id"`
	Question   string       `json:"question"`
	Category   string       `json:"category,omitempty"`
	Options    []Option     `json:"options"`
	Deadline   time.Time    `json:"deadline"`
	Status     MarketStatus `json:"status"`
	Resolution *Resolution  `json:"resolution,omitempty"`
	CreatedAt  time.Time    `json:"createdAt"`
	UpdatedAt  time.Time    `json:"updatedAt"`
}

// TotalPool returns the sum of all option stakes.
func (m Market) TotalPool() float64 {
	var sum float64
	for _, opt := range m.Options {
		sum += opt.Stake
	}
	return sum
}

// Resolved reports whether the market has a recorded resolution.
func (m Market) Resolved() bool {
	return m.Resolution != nil
}

// OptionName returns the option name at idx, or "" when out of range.
func (m Market) OptionName(idx int) string {
	if idx < 0 || idx >= len(m.Options) {
		return ""
	}
	return m.Options[idx].Name
}
