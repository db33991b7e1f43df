// Package store defines the persistence contracts the engine runs against.
// Two implementations exist: postgres (production, pgx row locks) and
// memory (tests and DB-less runs). All mutating engine work happens inside
// WithTx; a non-nil return from fn rolls the whole unit back.
package store

import (
	"context"

	"birzha/internal/models"

	"github.com/google/uuid"
)

// Store is the transactional unit-of-work boundary.
type Store interface {
	// WithTx runs fn in one transaction. fn's error aborts and is returned.
	// Implementations may retry fn after a rollback when the backend aborts
	// the transaction as deadlocked or unserialisable, so fn must start
	// from a clean slate on every invocation.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	Close()
}

// Tx exposes the repositories bound to one open transaction.
type Tx interface {
	Users() UserRepo
	Instruments() InstrumentRepo
	Balances() BalanceRepo
	Orders() OrderRepo
	Trades() TradeRepo
}

type UserRepo interface {
	// Create fails Conflict when the name is taken.
	Create(ctx context.Context, u *models.User) error
	// GetByID fails NotFound for unknown ids.
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	// GetByAPIKey fails Unauthenticated for unknown keys.
	GetByAPIKey(ctx context.Context, key string) (*models.User, error)
	// Delete removes the user; balances and orders cascade.
	Delete(ctx context.Context, id uuid.UUID) error
}

type InstrumentRepo interface {
	// Create fails Conflict when the ticker or name is taken.
	Create(ctx context.Context, ins *models.Instrument) error
	// GetByTicker fails NotFound for unknown tickers.
	GetByTicker(ctx context.Context, ticker string) (*models.Instrument, error)
	List(ctx context.Context) ([]*models.Instrument, error)
	// Delete removes the instrument; balances, orders and trades cascade.
	Delete(ctx context.Context, ticker string) error
}

type BalanceRepo interface {
	// Get fails NotFound when no row exists (balances are lazily created).
	Get(ctx context.Context, userID uuid.UUID, ticker string) (*models.Balance, error)
	// GetForUpdate is Get plus a row lock held until the tx ends.
	GetForUpdate(ctx context.Context, userID uuid.UUID, ticker string) (*models.Balance, error)
	// Upsert creates or overwrites the (user, ticker) row.
	Upsert(ctx context.Context, b *models.Balance) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Balance, error)
}

type OrderRepo interface {
	Create(ctx context.Context, o *models.Order) error
	// GetByID fails NotFound for unknown ids.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	// GetForUpdate is GetByID plus a row lock held until the tx ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Order, error)
	// RestingOpposite returns the resting orders a taker of takerDirection
	// consumes, best price first (asks ascending for a BUY taker, bids
	// descending for a SELL taker), ties by earlier timestamp then id.
	// Returned rows are locked for update.
	RestingOpposite(ctx context.Context, ticker string, takerDirection models.Direction) ([]*models.Order, error)
	// RestingBySide returns resting orders for the book view, price-ordered
	// with direction-appropriate sign (bids descending, asks ascending).
	// No locks are taken.
	RestingBySide(ctx context.Context, ticker string, direction models.Direction) ([]*models.Order, error)
	// Update persists filled and status.
	Update(ctx context.Context, o *models.Order) error
}

type TradeRepo interface {
	Append(ctx context.Context, t *models.Trade) error
	// ListByTicker returns up to limit trades, newest first.
	ListByTicker(ctx context.Context, ticker string, limit int) ([]*models.Trade, error)
}
