package matching

import (
	"context"

	"birzha/internal/errs"
	"birzha/internal/models"
	"birzha/internal/store"

	"github.com/emirpasic/gods/trees/redblacktree"
	"github.com/emirpasic/gods/utils"
)

const (
	// DefaultDepth is the number of price levels returned when the caller
	// does not ask for a specific depth.
	DefaultDepth = 10
	// MaxDepth caps the number of price levels per side.
	MaxDepth = 25
)

// Level is one aggregated price level of the book.
type Level struct {
	Price int64 `json:"price"`
	Qty   int64 `json:"qty"`
}

// OrderBookDepth is the aggregated two-sided view of one instrument's book.
type OrderBookDepth struct {
	BidLevels []Level `json:"bid_levels"`
	AskLevels []Level `json:"ask_levels"`
}

// Depth aggregates resting orders into at most limit price levels per side,
// bids descending and asks ascending. A limit outside [1, MaxDepth] fails
// validation; an unknown ticker fails NotFound.
func (e *Engine) Depth(ctx context.Context, ticker string, limit int) (*OrderBookDepth, error) {
	if limit < 1 || limit > MaxDepth {
		return nil, errs.E(errs.Validation, "depth limit must be between 1 and %d", MaxDepth)
	}

	depth := &OrderBookDepth{BidLevels: []Level{}, AskLevels: []Level{}}
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.Instruments().GetByTicker(ctx, ticker); err != nil {
			return err
		}
		bids, err := tx.Orders().RestingBySide(ctx, ticker, models.Buy)
		if err != nil {
			return err
		}
		asks, err := tx.Orders().RestingBySide(ctx, ticker, models.Sell)
		if err != nil {
			return err
		}
		depth.BidLevels = aggregate(bids, limit, redblacktree.NewWith(func(a, b interface{}) int {
			// Bids are sorted in descending order (highest price first)
			return utils.Int64Comparator(b, a)
		}))
		// Asks are sorted in ascending order (lowest price first)
		depth.AskLevels = aggregate(asks, limit, redblacktree.NewWith(utils.Int64Comparator))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return depth, nil
}

// aggregate sums remaining quantity per price into tree order and emits the
// first limit levels.
func aggregate(orders []*models.Order, limit int, tree *redblacktree.Tree) []Level {
	for _, o := range orders {
		remaining := o.Remaining()
		if remaining <= 0 {
			continue
		}
		price := o.LimitPrice()
		if qty, found := tree.Get(price); found {
			tree.Put(price, qty.(int64)+remaining)
		} else {
			tree.Put(price, remaining)
		}
	}

	levels := make([]Level, 0, limit)
	it := tree.Iterator()
	for it.Next() && len(levels) < limit {
		levels = append(levels, Level{
			Price: it.Key().(int64),
			Qty:   it.Value().(int64),
		})
	}
	return levels
}
