package matching

import (
	"context"
	"testing"

	"birzha/internal/errs"
	"birzha/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDepth_AggregatesLevels(t *testing.T) {
	f := newFixture(t)
	sellerA := f.user("sellerA")
	sellerB := f.user("sellerB")
	buyer := f.user("buyer")
	f.deposit(sellerA, "AAPL", 10)
	f.deposit(sellerB, "AAPL", 10)
	f.deposit(buyer, models.QuoteTicker, 10000)

	_, err := f.engine.PlaceOrder(context.Background(), models.NewLimitOrder(sellerA, "AAPL", models.Sell, 3, 105))
	require.NoError(t, err)
	_, err = f.engine.PlaceOrder(context.Background(), models.NewLimitOrder(sellerB, "AAPL", models.Sell, 2, 105))
	require.NoError(t, err)
	_, err = f.engine.PlaceOrder(context.Background(), models.NewLimitOrder(sellerA, "AAPL", models.Sell, 4, 110))
	require.NoError(t, err)
	_, err = f.engine.PlaceOrder(context.Background(), models.NewLimitOrder(buyer, "AAPL", models.Buy, 6, 100))
	require.NoError(t, err)
	_, err = f.engine.PlaceOrder(context.Background(), models.NewLimitOrder(buyer, "AAPL", models.Buy, 1, 95))
	require.NoError(t, err)

	depth, err := f.engine.Depth(context.Background(), "AAPL", 10)
	require.NoError(t, err)

	// Asks ascending, same-price orders merged into one level.
	require.Len(t, depth.AskLevels, 2)
	assert.Equal(t, Level{Price: 105, Qty: 5}, depth.AskLevels[0])
	assert.Equal(t, Level{Price: 110, Qty: 4}, depth.AskLevels[1])

	// Bids descending.
	require.Len(t, depth.BidLevels, 2)
	assert.Equal(t, Level{Price: 100, Qty: 6}, depth.BidLevels[0])
	assert.Equal(t, Level{Price: 95, Qty: 1}, depth.BidLevels[1])
}

func TestDepth_LimitTruncatesLevels(t *testing.T) {
	f := newFixture(t)
	seller := f.user("seller")
	f.deposit(seller, "AAPL", 10)

	for _, price := range []int64{101, 102, 103} {
		_, err := f.engine.PlaceOrder(context.Background(), models.NewLimitOrder(seller, "AAPL", models.Sell, 1, price))
		require.NoError(t, err)
	}

	depth, err := f.engine.Depth(context.Background(), "AAPL", 2)
	require.NoError(t, err)
	require.Len(t, depth.AskLevels, 2)
	assert.Equal(t, int64(101), depth.AskLevels[0].Price)
	assert.Equal(t, int64(102), depth.AskLevels[1].Price)
}

func TestDepth_ReflectsPartialFills(t *testing.T) {
	f := newFixture(t)
	seller := f.user("seller")
	buyer := f.user("buyer")
	f.deposit(seller, "AAPL", 10)
	f.deposit(buyer, models.QuoteTicker, 1000)

	_, err := f.engine.PlaceOrder(context.Background(), models.NewLimitOrder(seller, "AAPL", models.Sell, 10, 100))
	require.NoError(t, err)
	_, err = f.engine.PlaceOrder(context.Background(), models.NewLimitOrder(buyer, "AAPL", models.Buy, 4, 100))
	require.NoError(t, err)

	depth, err := f.engine.Depth(context.Background(), "AAPL", 10)
	require.NoError(t, err)
	require.Len(t, depth.AskLevels, 1)
	assert.Equal(t, Level{Price: 100, Qty: 6}, depth.AskLevels[0])
	assert.Empty(t, depth.BidLevels)
}

func TestDepth_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Depth(context.Background(), "AAPL", 0)
	assert.True(t, errs.Is(err, errs.Validation))
	_, err = f.engine.Depth(context.Background(), "AAPL", MaxDepth+1)
	assert.True(t, errs.Is(err, errs.Validation))
	_, err = f.engine.Depth(context.Background(), "MSFT", 10)
	assert.True(t, errs.Is(err, errs.NotFound))
}
