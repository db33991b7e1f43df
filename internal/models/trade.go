package models

import (
	"fmt"
	"time"
)

// Trade is one execution printed by the matcher. The journal is append-only.
type Trade struct {
	ID        int64     `json:"-"`
	Ticker    string    `json:"ticker"`
	Price     int64     `json:"price"`
	Qty       int64     `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

func NewTrade(ticker string, price, qty int64) *Trade {
	return &Trade{
		Ticker:    ticker,
		Price:     price,
		Qty:       qty,
		Timestamp: time.Now().UTC(),
	}
}

// returns the string representation of a Trade for logging.
func (t *Trade) String() string {
	return fmt.Sprintf("Trade[Ticker: %s, Price: %d, Qty: %d, Timestamp: %s]",
		t.Ticker, t.Price, t.Qty, t.Timestamp.Format(time.RFC3339Nano))
}
