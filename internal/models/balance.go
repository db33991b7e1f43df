package models

import "github.com/google/uuid"

// Balance is the per-(user, ticker) ledger row. Total is everything the
// user owns of the asset; Reserved is the part committed to open orders.
// Invariant: 0 <= Reserved <= Total.
type Balance struct {
	UserID   uuid.UUID `json:"user_id"`
	Ticker   string    `json:"ticker"`
	Total    int64     `json:"total"`
	Reserved int64     `json:"reserved"`
}

// Available is what the user may still commit to new orders or withdraw.
func (b *Balance) Available() int64 {
	return b.Total - b.Reserved
}
