package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type OrderStatus int

const (
	StatusNew OrderStatus = iota
	StatusPartiallyExecuted
	StatusExecuted
	StatusCancelled
)

func (os OrderStatus) String() string {
	switch os {
	case StatusNew:
		return "NEW"
	case StatusPartiallyExecuted:
		return "PARTIALLY_EXECUTED"
	case StatusExecuted:
		return "EXECUTED"
	case StatusCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether the status admits no further transitions.
func (os OrderStatus) Terminal() bool {
	return os == StatusExecuted || os == StatusCancelled
}

func (os OrderStatus) MarshalJSON() ([]byte, error) {
	return []byte(`"` + os.String() + `"`), nil
}

func (os *OrderStatus) UnmarshalJSON(data []byte) error {
	str := string(data)
	if len(str) >= 2 && str[0] == '"' && str[len(str)-1] == '"' {
		str = str[1 : len(str)-1]
	}
	parsed, err := ParseOrderStatus(str)
	if err != nil {
		return err
	}
	*os = parsed
	return nil
}

func ParseOrderStatus(s string) (OrderStatus, error) {
	switch s {
	case "NEW":
		return StatusNew, nil
	case "PARTIALLY_EXECUTED":
		return StatusPartiallyExecuted, nil
	case "EXECUTED":
		return StatusExecuted, nil
	case "CANCELLED":
		return StatusCancelled, nil
	default:
		return 0, fmt.Errorf("unknown order status: %s", s)
	}
}

type Direction int

const (
	Buy Direction = iota
	Sell
)

func (d Direction) String() string {
	switch d {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// Opposite returns the side a taker of this direction consumes.
func (d Direction) Opposite() Direction {
	if d == Buy {
		return Sell
	}
	return Buy
}

func (d Direction) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Direction) UnmarshalJSON(data []byte) error {
	str := string(data)
	if len(str) >= 2 && str[0] == '"' && str[len(str)-1] == '"' {
		str = str[1 : len(str)-1]
	}
	parsed, err := ParseDirection(str)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func ParseDirection(s string) (Direction, error) {
	switch s {
	case "BUY":
		return Buy, nil
	case "SELL":
		return Sell, nil
	default:
		return 0, fmt.Errorf("unknown direction: %s", s)
	}
}

type OrderType int

const (
	Limit OrderType = iota
	Market
)

func (ot OrderType) String() string {
	switch ot {
	case Limit:
		return "LIMIT"
	case Market:
		return "MARKET"
	default:
		return "UNKNOWN"
	}
}

func (ot OrderType) MarshalJSON() ([]byte, error) {
	return []byte(`"` + ot.String() + `"`), nil
}

func (ot *OrderType) UnmarshalJSON(data []byte) error {
	str := string(data)
	if len(str) >= 2 && str[0] == '"' && str[len(str)-1] == '"' {
		str = str[1 : len(str)-1]
	}
	parsed, err := ParseOrderType(str)
	if err != nil {
		return err
	}
	*ot = parsed
	return nil
}

func ParseOrderType(s string) (OrderType, error) {
	switch s {
	case "LIMIT":
		return Limit, nil
	case "MARKET":
		return Market, nil
	default:
		return 0, fmt.Errorf("unknown order type: %s", s)
	}
}

// MaxQty and MaxPrice bound order size so every reservation and settlement
// amount (qty times price) stays well inside int64.
const (
	MaxQty   = 1_000_000_000
	MaxPrice = 1_000_000_000
)

// Order is a single order against one instrument. MARKET orders carry no
// price and never rest on the book; LIMIT orders carry a positive price and
// rest until executed or cancelled.
type Order struct {
	ID        uuid.UUID   `json:"id"`
	UserID    uuid.UUID   `json:"user_id"`
	Ticker    string      `json:"ticker"`
	Direction Direction   `json:"direction"`
	Type      OrderType   `json:"type"`
	Qty       int64       `json:"qty"`
	Price     *int64      `json:"price,omitempty"`
	Filled    int64       `json:"filled"`
	Status    OrderStatus `json:"status"`
	CreatedAt time.Time   `json:"timestamp"`
}

func NewLimitOrder(userID uuid.UUID, ticker string, direction Direction, qty, price int64) *Order {
	return &Order{
		ID:        uuid.New(),
		UserID:    userID,
		Ticker:    ticker,
		Direction: direction,
		Type:      Limit,
		Qty:       qty,
		Price:     &price,
		Status:    StatusNew,
		CreatedAt: time.Now().UTC(),
	}
}

func NewMarketOrder(userID uuid.UUID, ticker string, direction Direction, qty int64) *Order {
	return &Order{
		ID:        uuid.New(),
		UserID:    userID,
		Ticker:    ticker,
		Direction: direction,
		Type:      Market,
		Qty:       qty,
		Status:    StatusNew,
		CreatedAt: time.Now().UTC(),
	}
}

// Remaining is the unfilled quantity.
func (o *Order) Remaining() int64 {
	return o.Qty - o.Filled
}

// Resting reports whether the order currently sits on the book.
func (o *Order) Resting() bool {
	return o.Price != nil && !o.Status.Terminal()
}

// LimitPrice returns the price for LIMIT orders. Callers must not ask a
// MARKET order for one.
func (o *Order) LimitPrice() int64 {
	if o.Price == nil {
		panic("order: limit price requested for market order")
	}
	return *o.Price
}

// AdvanceFill records a fill of qty and moves the status accordingly.
func (o *Order) AdvanceFill(qty int64) {
	o.Filled += qty
	switch {
	case o.Filled >= o.Qty:
		o.Status = StatusExecuted
	case o.Filled > 0:
		o.Status = StatusPartiallyExecuted
	}
}

func (o *Order) Validate() error {
	if o.Qty < 1 || o.Qty > MaxQty {
		return fmt.Errorf("invalid qty: must be between 1 and %d", MaxQty)
	}
	if o.Type == Limit && (o.Price == nil || *o.Price <= 0 || *o.Price > MaxPrice) {
		return fmt.Errorf("invalid price: must be between 1 and %d for limit orders", MaxPrice)
	}
	if o.Type == Market && o.Price != nil {
		return fmt.Errorf("invalid price: market orders carry no price")
	}
	return nil
}

// returns the string representation of an Order for logging.
func (o *Order) String() string {
	price := int64(0)
	if o.Price != nil {
		price = *o.Price
	}
	return fmt.Sprintf("Order[ID: %s, Ticker: %s, Direction: %s, Type: %s, Price: %d, Filled: %d/%d, Status: %s]",
		o.ID, o.Ticker, o.Direction, o.Type, price, o.Filled, o.Qty, o.Status)
}
