package domain

import "time"

// Position is the quantity a user owns on one side of one option. Created
// implicitly by the first successful buy and removed when fully sold. The
// quantity is never negative.
type Position struct {
	MarketID    string    `json:"marketId"`
	UserID      string    `json:"userId"`
	OptionIndex int       `json:"optionIndex"`
	Side        Side      `json:"side"`
	Quantity    float64   `json:"quantity"`
	OpenedAt    time.Time `json:"openedAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
