package models

// QuoteTicker is the quote asset every instrument trades against. The
// instrument itself is seeded at bootstrap and may never be deleted.
const QuoteTicker = "RUB"

// Instrument is a tradable asset identified by its ticker.
type Instrument struct {
	Ticker string `json:"ticker"`
	Name   string `json:"name"`
}
