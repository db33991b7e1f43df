// Package matching implements the exchange core: order admission with
// balance reservations, the price-time matching walk, atomic settlement of
// every trade, finalisation of the incoming order, and cancellation with
// reservation release. Each operation runs in a single store transaction;
// any failure rolls the whole unit back.
package matching

import (
	"context"
	"time"

	"birzha/internal/errs"
	"birzha/internal/ledger"
	"birzha/internal/metrics"
	"birzha/internal/models"
	"birzha/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Engine is the matching and settlement engine.
type Engine struct {
	store   store.Store
	metrics *metrics.Metrics
	log     *zap.Logger
}

// NewEngine creates and returns a new Engine.
func NewEngine(st store.Store, m *metrics.Metrics, log *zap.Logger) *Engine {
	return &Engine{store: st, metrics: m, log: log}
}

// PlaceOrder admits, matches and finalises one incoming order. On success
// the order id is returned. A market order that cannot be fully filled is
// persisted as CANCELLED with its reservation released, and the returned
// error carries NoLiquidity; admission failures persist nothing.
func (e *Engine) PlaceOrder(ctx context.Context, order *models.Order) (uuid.UUID, error) {
	startTime := time.Now()
	defer func() {
		e.metrics.AddLatency(time.Since(startTime).Microseconds())
	}()
	e.metrics.IncOrdersReceived()

	if err := order.Validate(); err != nil {
		e.metrics.IncOrdersRejected()
		return uuid.Nil, errs.Wrap(errs.Validation, err, "invalid order")
	}
	if order.Ticker == models.QuoteTicker {
		e.metrics.IncOrdersRejected()
		return uuid.Nil, errs.E(errs.Validation, "%s is the quote asset and cannot be traded", models.QuoteTicker)
	}

	// A market order that meets some, but not enough, liquidity commits as
	// CANCELLED while the caller still sees the failure.
	var noLiquidity error

	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		// The store may re-run this closure after a rolled-back attempt.
		order.Filled = 0
		order.Status = models.StatusNew
		noLiquidity = nil

		if _, err := tx.Instruments().GetByTicker(ctx, order.Ticker); err != nil {
			return err
		}

		// The candidate select locks every resting opposite-side row, so
		// admission pricing and the walk see one consistent book.
		candidates, err := tx.Orders().RestingOpposite(ctx, order.Ticker, order.Direction)
		if err != nil {
			return err
		}

		reserveTicker, reserveAmount, err := admissionReservation(order, candidates)
		if err != nil {
			return err
		}
		if err := ledger.Reserve(ctx, tx, order.UserID, reserveTicker, reserveAmount); err != nil {
			return err
		}
		if err := tx.Orders().Create(ctx, order); err != nil {
			return err
		}

		if order.Type == models.Market && availableLiquidity(candidates) < order.Qty {
			// No partial fills for market orders: release the whole
			// admission reservation and commit the order as CANCELLED.
			if err := ledger.Reserve(ctx, tx, order.UserID, reserveTicker, -reserveAmount); err != nil {
				return err
			}
			order.Status = models.StatusCancelled
			if err := tx.Orders().Update(ctx, order); err != nil {
				return err
			}
			e.metrics.IncOrdersCancelled()
			noLiquidity = errs.E(errs.NoLiquidity, "insufficient liquidity to fill market order for %d %s", order.Qty, order.Ticker)
			return nil
		}

		filled, released, trades, err := e.walk(ctx, tx, order, candidates)
		if err != nil {
			return err
		}
		return e.finalise(ctx, tx, order, filled, released, reserveAmount, trades)
	})
	if err != nil {
		e.metrics.IncOrdersRejected()
		return uuid.Nil, err
	}
	if noLiquidity != nil {
		return order.ID, noLiquidity
	}
	return order.ID, nil
}

// admissionReservation computes the asset and amount to reserve before
// matching. A BUY MARKET order conservatively reserves against the worst
// (highest) resting ask; with no asks at all it fails NoLiquidity.
func admissionReservation(order *models.Order, candidates []*models.Order) (string, int64, error) {
	if order.Direction == models.Sell {
		return order.Ticker, order.Qty, nil
	}
	if order.Type == models.Limit {
		return models.QuoteTicker, order.Qty * order.LimitPrice(), nil
	}
	// BUY MARKET: candidates are asks in ascending price order.
	if len(candidates) == 0 {
		return "", 0, errs.E(errs.NoLiquidity, "no resting asks for %s", order.Ticker)
	}
	worst := candidates[len(candidates)-1].LimitPrice()
	return models.QuoteTicker, order.Qty * worst, nil
}

// availableLiquidity sums the remaining quantity across candidates.
func availableLiquidity(candidates []*models.Order) int64 {
	var total int64
	for _, c := range candidates {
		if r := c.Remaining(); r > 0 {
			total += r
		}
	}
	return total
}

// walk pairs the incoming order against the locked candidate list in
// price-time priority. For every trade it releases both parties'
// reservations for the traded amounts, settles the four balance totals,
// advances the candidate and appends a trade record. It returns the filled
// quantity, the amount of the taker's admission reservation released, and
// the trades printed.
func (e *Engine) walk(ctx context.Context, tx store.Tx, order *models.Order, candidates []*models.Order) (int64, int64, []*models.Trade, error) {
	var (
		filled   int64
		released int64
		trades   []*models.Trade
	)
	remaining := order.Qty

	for _, cand := range candidates {
		if remaining == 0 {
			break
		}
		available := cand.Remaining()
		if available <= 0 {
			continue
		}
		price := cand.LimitPrice()
		if order.Type == models.Limit {
			// The remainder stays on the book once the price walks past
			// the taker's limit.
			if order.Direction == models.Buy && price > order.LimitPrice() {
				break
			}
			if order.Direction == models.Sell && price < order.LimitPrice() {
				break
			}
		}

		tradeQty := remaining
		if available < tradeQty {
			tradeQty = available
		}
		cost := tradeQty * price

		covered, err := e.counterpartyCovered(ctx, tx, cand, tradeQty, cost)
		if err != nil {
			return 0, 0, nil, err
		}
		if !covered {
			e.log.Warn("skipping resting order with uncovered balance",
				zap.Stringer("order_id", cand.ID), zap.String("ticker", cand.Ticker))
			continue
		}

		var buyer, seller uuid.UUID
		if order.Direction == models.Buy {
			buyer, seller = order.UserID, cand.UserID
		} else {
			buyer, seller = cand.UserID, order.UserID
		}

		// Release reservations before settling so reserved tracks total at
		// every intermediate write.
		releaseTicker, releaseAmount := takerReservationRelease(order, tradeQty, cost)
		if err := ledger.Reserve(ctx, tx, order.UserID, releaseTicker, -releaseAmount); err != nil {
			return 0, 0, nil, err
		}
		released += releaseAmount
		if cand.Direction == models.Buy {
			if err := ledger.Reserve(ctx, tx, cand.UserID, models.QuoteTicker, -cost); err != nil {
				return 0, 0, nil, err
			}
		} else {
			if err := ledger.Reserve(ctx, tx, cand.UserID, cand.Ticker, -tradeQty); err != nil {
				return 0, 0, nil, err
			}
		}

		err = ledger.Settle(ctx, tx, []ledger.Change{
			{UserID: buyer, Ticker: models.QuoteTicker, Delta: -cost},
			{UserID: buyer, Ticker: order.Ticker, Delta: tradeQty},
			{UserID: seller, Ticker: order.Ticker, Delta: -tradeQty},
			{UserID: seller, Ticker: models.QuoteTicker, Delta: cost},
		})
		if err != nil {
			return 0, 0, nil, err
		}

		wasResting := cand.Status != models.StatusExecuted
		cand.AdvanceFill(tradeQty)
		if err := tx.Orders().Update(ctx, cand); err != nil {
			return 0, 0, nil, err
		}
		if wasResting && cand.Status == models.StatusExecuted {
			e.metrics.DecOrdersResting()
		}

		trade := models.NewTrade(order.Ticker, price, tradeQty)
		if err := tx.Trades().Append(ctx, trade); err != nil {
			return 0, 0, nil, err
		}
		trades = append(trades, trade)
		e.log.Debug("trade executed", zap.Stringer("trade", trade))

		remaining -= tradeQty
		filled += tradeQty
	}
	return filled, released, trades, nil
}

// takerReservationRelease returns how much of the taker's reservation one
// trade consumes. A BUY LIMIT releases at its own limit price so price
// improvement flows back to available immediately; a BUY MARKET releases
// the actual cost, with the conservative remainder refunded at
// finalisation.
func takerReservationRelease(order *models.Order, tradeQty, cost int64) (string, int64) {
	if order.Direction == models.Sell {
		return order.Ticker, tradeQty
	}
	if order.Type == models.Limit {
		return models.QuoteTicker, tradeQty * order.LimitPrice()
	}
	return models.QuoteTicker, cost
}

// counterpartyCovered defends against ledger anomalies: the resting order's
// owner must still hold and reserve the asset they are supplying.
func (e *Engine) counterpartyCovered(ctx context.Context, tx store.Tx, cand *models.Order, tradeQty, cost int64) (bool, error) {
	ticker := cand.Ticker
	needed := tradeQty
	if cand.Direction == models.Buy {
		ticker = models.QuoteTicker
		needed = cost
	}
	b, err := tx.Balances().Get(ctx, cand.UserID, ticker)
	if errs.Is(err, errs.NotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return b.Total >= needed && b.Reserved >= needed, nil
}

// finalise applies the walk's outcome to the incoming order.
func (e *Engine) finalise(ctx context.Context, tx store.Tx, order *models.Order, filled, released, reserveAmount int64, trades []*models.Trade) error {
	if order.Type == models.Market {
		// The liquidity pre-check ran under the same locks, so a shortfall
		// can only mean a skipped anomalous counterparty; roll back.
		if filled != order.Qty {
			return errs.E(errs.NoLiquidity, "market order fill fell short: %d of %d", filled, order.Qty)
		}
		// Refund the conservative over-reservation; the unspent RUB was
		// never debited from total.
		if leftover := reserveAmount - released; leftover > 0 {
			if err := ledger.Reserve(ctx, tx, order.UserID, models.QuoteTicker, -leftover); err != nil {
				return err
			}
		}
	}

	order.AdvanceFill(filled)
	if err := tx.Orders().Update(ctx, order); err != nil {
		return err
	}
	if order.Resting() {
		e.metrics.IncOrdersResting()
	}

	var volume int64
	for _, t := range trades {
		volume += t.Qty
	}
	e.metrics.AddTrades(int64(len(trades)), volume)
	e.log.Debug("order placed", zap.Stringer("order", order), zap.Int("trades", len(trades)))
	return nil
}

// CancelOrder terminates a resting order owned by callerID and releases the
// residual reservation.
func (e *Engine) CancelOrder(ctx context.Context, orderID, callerID uuid.UUID) error {
	return e.store.WithTx(ctx, func(tx store.Tx) error {
		order, err := tx.Orders().GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.UserID != callerID {
			return errs.E(errs.Forbidden, "order %s does not belong to caller", orderID)
		}
		if order.Status.Terminal() {
			return errs.E(errs.Validation, "order already %s", order.Status)
		}

		if remainder := order.Remaining(); remainder > 0 {
			if order.Direction == models.Buy {
				err = ledger.Reserve(ctx, tx, order.UserID, models.QuoteTicker, -remainder*order.LimitPrice())
			} else {
				err = ledger.Reserve(ctx, tx, order.UserID, order.Ticker, -remainder)
			}
			if err != nil {
				return err
			}
		}

		order.Status = models.StatusCancelled
		if err := tx.Orders().Update(ctx, order); err != nil {
			return err
		}
		e.metrics.IncOrdersCancelled()
		e.metrics.DecOrdersResting()
		return nil
	})
}

// GetOrder returns an order if callerID owns it.
func (e *Engine) GetOrder(ctx context.Context, orderID, callerID uuid.UUID) (*models.Order, error) {
	var order *models.Order
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		order, err = tx.Orders().GetByID(ctx, orderID)
		if err != nil {
			return err
		}
		if order.UserID != callerID {
			return errs.E(errs.Forbidden, "order %s does not belong to caller", orderID)
		}
		return nil
	})
	return order, err
}

// ListOrders returns all orders owned by userID, newest first.
func (e *Engine) ListOrders(ctx context.Context, userID uuid.UUID) ([]*models.Order, error) {
	var orders []*models.Order
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		orders, err = tx.Orders().ListByUser(ctx, userID)
		return err
	})
	return orders, err
}

// Balances returns the caller's ticker -> total mapping.
func (e *Engine) Balances(ctx context.Context, userID uuid.UUID) (map[string]int64, error) {
	out := make(map[string]int64)
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		balances, err := tx.Balances().ListByUser(ctx, userID)
		if err != nil {
			return err
		}
		for _, b := range balances {
			out[b.Ticker] = b.Total
		}
		return nil
	})
	return out, err
}

// Trades returns up to limit trades for ticker, newest first.
func (e *Engine) Trades(ctx context.Context, ticker string, limit int) ([]*models.Trade, error) {
	var trades []*models.Trade
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.Instruments().GetByTicker(ctx, ticker); err != nil {
			return err
		}
		var err error
		trades, err = tx.Trades().ListByTicker(ctx, ticker, limit)
		return err
	})
	return trades, err
}
