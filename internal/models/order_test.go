package models

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderJSONRoundTrip(t *testing.T) {
	o := NewLimitOrder(uuid.New(), "AAPL", Buy, 10, 150)

	raw, err := json.Marshal(o)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"direction":"BUY"`)
	assert.Contains(t, string(raw), `"type":"LIMIT"`)
	assert.Contains(t, string(raw), `"status":"NEW"`)

	var back Order
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, o.ID, back.ID)
	assert.Equal(t, Limit, back.Type)
	require.NotNil(t, back.Price)
	assert.Equal(t, int64(150), *back.Price)
}

func TestMarketOrderOmitsPrice(t *testing.T) {
	o := NewMarketOrder(uuid.New(), "AAPL", Sell, 3)

	raw, err := json.Marshal(o)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), `"price"`)
	assert.False(t, o.Resting())
}

func TestAdvanceFill(t *testing.T) {
	o := NewLimitOrder(uuid.New(), "AAPL", Sell, 10, 100)
	assert.Equal(t, StatusNew, o.Status)

	o.AdvanceFill(4)
	assert.Equal(t, StatusPartiallyExecuted, o.Status)
	assert.Equal(t, int64(6), o.Remaining())
	assert.True(t, o.Resting())

	o.AdvanceFill(6)
	assert.Equal(t, StatusExecuted, o.Status)
	assert.Equal(t, int64(0), o.Remaining())
	assert.False(t, o.Resting())
}

func TestOrderValidate(t *testing.T) {
	limit := NewLimitOrder(uuid.New(), "AAPL", Buy, 0, 100)
	assert.Error(t, limit.Validate())

	badPrice := NewLimitOrder(uuid.New(), "AAPL", Buy, 1, 0)
	assert.Error(t, badPrice.Validate())

	market := NewMarketOrder(uuid.New(), "AAPL", Buy, 1)
	assert.NoError(t, market.Validate())

	price := int64(10)
	market.Price = &price
	assert.Error(t, market.Validate())
}

func TestOrderValidateBounds(t *testing.T) {
	// Unbounded qty or price would let qty*price wrap around int64.
	assert.Error(t, NewLimitOrder(uuid.New(), "AAPL", Buy, 1<<62, 4).Validate())
	assert.Error(t, NewLimitOrder(uuid.New(), "AAPL", Buy, MaxQty+1, 1).Validate())
	assert.Error(t, NewLimitOrder(uuid.New(), "AAPL", Buy, 1, MaxPrice+1).Validate())
	assert.Error(t, NewMarketOrder(uuid.New(), "AAPL", Sell, MaxQty+1).Validate())

	assert.NoError(t, NewLimitOrder(uuid.New(), "AAPL", Buy, MaxQty, MaxPrice).Validate())
	assert.NoError(t, NewMarketOrder(uuid.New(), "AAPL", Sell, MaxQty).Validate())
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusNew.Terminal())
	assert.False(t, StatusPartiallyExecuted.Terminal())
	assert.True(t, StatusExecuted.Terminal())
	assert.True(t, StatusCancelled.Terminal())
}
