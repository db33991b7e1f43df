package api

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"birzha/internal/bootstrap"
	"birzha/internal/matching"
	"birzha/internal/metrics"
	"birzha/internal/models"
	"birzha/internal/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

const adminKey = "175b6f1fc25c47e69ff73442f96298ae"

func newTestServer(t *testing.T) *Server {
	st := memory.New()
	require.NoError(t, bootstrap.Run(context.Background(), st, adminKey, zap.NewNop()))
	m := metrics.NewMetrics()
	engine := matching.NewEngine(st, m, zap.NewNop())
	return NewServer(":0", st, engine, m, zap.NewNop())
}

// do runs one request through the router and returns the RequestCtx for
// inspection.
func do(s *Server, method, uri, token string, body any) *fasthttp.RequestCtx {
	var req fasthttp.Request
	req.Header.SetMethod(method)
	req.SetRequestURI(uri)
	if token != "" {
		req.Header.Set("Authorization", "TOKEN "+token)
	}
	if body != nil {
		raw, _ := json.Marshal(body)
		req.SetBody(raw)
	}
	ctx := &fasthttp.RequestCtx{}
	ctx.Init(&req, nil, nil)
	s.handle(ctx)
	return ctx
}

func decode[T any](t *testing.T, ctx *fasthttp.RequestCtx) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &out))
	return out
}

func register(t *testing.T, s *Server, name string) models.User {
	ctx := do(s, "POST", "/api/v1/public/register", "", map[string]string{"name": name})
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode(), string(ctx.Response.Body()))
	return decode[models.User](t, ctx)
}

func adminDeposit(t *testing.T, s *Server, user models.User, ticker string, amount int64) {
	ctx := do(s, "POST", "/api/v1/admin/balance/deposit", adminKey, map[string]any{
		"user_id": user.ID, "ticker": ticker, "amount": amount,
	})
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode(), string(ctx.Response.Body()))
}

func createInstrument(t *testing.T, s *Server, ticker, name string) {
	ctx := do(s, "POST", "/api/v1/admin/instrument", adminKey, map[string]string{"ticker": ticker, "name": name})
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode(), string(ctx.Response.Body()))
}

func TestRegister(t *testing.T) {
	s := newTestServer(t)

	user := register(t, s, "alice")
	assert.Equal(t, "alice", user.Name)
	assert.Equal(t, models.RoleUser, user.Role)
	assert.Len(t, user.APIKey, 32)

	ctx := do(s, "POST", "/api/v1/public/register", "", map[string]string{"name": "alice"})
	assert.Equal(t, fasthttp.StatusConflict, ctx.Response.StatusCode())

	ctx = do(s, "POST", "/api/v1/public/register", "", map[string]string{"name": "ab"})
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
}

func TestAuthentication(t *testing.T) {
	s := newTestServer(t)

	ctx := do(s, "GET", "/api/v1/balance", "", nil)
	assert.Equal(t, fasthttp.StatusUnauthorized, ctx.Response.StatusCode())

	ctx = do(s, "GET", "/api/v1/balance", "nosuchkey", nil)
	assert.Equal(t, fasthttp.StatusUnauthorized, ctx.Response.StatusCode())

	user := register(t, s, "alice")
	ctx = do(s, "GET", "/api/v1/balance", user.APIKey, nil)
	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
}

func TestAdminGuard(t *testing.T) {
	s := newTestServer(t)
	user := register(t, s, "alice")

	ctx := do(s, "POST", "/api/v1/admin/instrument", user.APIKey, map[string]string{"ticker": "AAPL", "name": "apple"})
	assert.Equal(t, fasthttp.StatusForbidden, ctx.Response.StatusCode())

	ctx = do(s, "POST", "/api/v1/admin/instrument", adminKey, map[string]string{"ticker": "AAPL", "name": "apple"})
	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
}

func TestInstrumentLifecycle(t *testing.T) {
	s := newTestServer(t)
	createInstrument(t, s, "AAPL", "apple")

	ctx := do(s, "GET", "/api/v1/public/instrument", "", nil)
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	instruments := decode[[]models.Instrument](t, ctx)
	require.Len(t, instruments, 2) // AAPL + seeded RUB
	assert.Equal(t, "AAPL", instruments[0].Ticker)
	assert.Equal(t, models.QuoteTicker, instruments[1].Ticker)

	// Lowercase ticker fails the pattern.
	ctx = do(s, "POST", "/api/v1/admin/instrument", adminKey, map[string]string{"ticker": "aapl", "name": "apple2"})
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())

	ctx = do(s, "DELETE", "/api/v1/admin/instrument/AAPL", adminKey, nil)
	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())

	ctx = do(s, "DELETE", "/api/v1/admin/instrument/AAPL", adminKey, nil)
	assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())
}

func TestQuoteInstrumentCannotBeDeleted(t *testing.T) {
	s := newTestServer(t)

	ctx := do(s, "DELETE", "/api/v1/admin/instrument/RUB", adminKey, nil)
	assert.Equal(t, fasthttp.StatusForbidden, ctx.Response.StatusCode())

	ctx = do(s, "GET", "/api/v1/public/instrument", "", nil)
	instruments := decode[[]models.Instrument](t, ctx)
	require.Len(t, instruments, 1)
	assert.Equal(t, models.QuoteTicker, instruments[0].Ticker)
}

func TestDepositWithdrawBalance(t *testing.T) {
	s := newTestServer(t)
	user := register(t, s, "alice")

	adminDeposit(t, s, user, models.QuoteTicker, 1000)

	ctx := do(s, "GET", "/api/v1/balance", user.APIKey, nil)
	balances := decode[map[string]int64](t, ctx)
	assert.Equal(t, int64(1000), balances[models.QuoteTicker])

	ctx = do(s, "POST", "/api/v1/admin/balance/withdraw", adminKey, map[string]any{
		"user_id": user.ID, "ticker": models.QuoteTicker, "amount": 400,
	})
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())

	ctx = do(s, "POST", "/api/v1/admin/balance/withdraw", adminKey, map[string]any{
		"user_id": user.ID, "ticker": models.QuoteTicker, "amount": 601,
	})
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())

	// Unknown instrument answers 404.
	ctx = do(s, "POST", "/api/v1/admin/balance/deposit", adminKey, map[string]any{
		"user_id": user.ID, "ticker": "MSFT", "amount": 10,
	})
	assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())
}

func TestOrderFlow(t *testing.T) {
	s := newTestServer(t)
	createInstrument(t, s, "AAPL", "apple")
	seller := register(t, s, "seller")
	buyer := register(t, s, "buyer")
	adminDeposit(t, s, seller, "AAPL", 10)
	adminDeposit(t, s, buyer, models.QuoteTicker, 1000)

	ctx := do(s, "POST", "/api/v1/order", seller.APIKey, map[string]any{
		"direction": "SELL", "ticker": "AAPL", "qty": 10, "price": 100,
	})
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode(), string(ctx.Response.Body()))
	placed := decode[placeOrderResponse](t, ctx)
	assert.True(t, placed.Success)

	ctx = do(s, "GET", fmt.Sprintf("/api/v1/order/%s", placed.OrderID), seller.APIKey, nil)
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	env := decode[orderEnvelope](t, ctx)
	assert.Equal(t, placed.OrderID, env.ID)
	assert.Equal(t, models.StatusNew, env.Status)
	assert.Equal(t, int64(10), env.Body.Qty)
	require.NotNil(t, env.Body.Price)
	assert.Equal(t, int64(100), *env.Body.Price)

	// Another user cannot read it.
	ctx = do(s, "GET", fmt.Sprintf("/api/v1/order/%s", placed.OrderID), buyer.APIKey, nil)
	assert.Equal(t, fasthttp.StatusForbidden, ctx.Response.StatusCode())

	// Market buy without a price field crosses the ask.
	ctx = do(s, "POST", "/api/v1/order", buyer.APIKey, map[string]any{
		"direction": "BUY", "ticker": "AAPL", "qty": 10,
	})
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode(), string(ctx.Response.Body()))

	ctx = do(s, "GET", "/api/v1/balance", buyer.APIKey, nil)
	balances := decode[map[string]int64](t, ctx)
	assert.Equal(t, int64(10), balances["AAPL"])
	assert.Equal(t, int64(0), balances[models.QuoteTicker])

	ctx = do(s, "GET", "/api/v1/order", seller.APIKey, nil)
	orders := decode[[]orderEnvelope](t, ctx)
	require.Len(t, orders, 1)
	assert.Equal(t, models.StatusExecuted, orders[0].Status)
	assert.Equal(t, int64(10), orders[0].Filled)

	ctx = do(s, "GET", "/api/v1/public/transactions/AAPL", "", nil)
	trades := decode[[]tradeResponse](t, ctx)
	require.Len(t, trades, 1)
	assert.Equal(t, int64(100), trades[0].Price)
	assert.Equal(t, int64(10), trades[0].Amount)
}

func TestOrderValidation(t *testing.T) {
	s := newTestServer(t)
	createInstrument(t, s, "AAPL", "apple")
	user := register(t, s, "alice")

	for name, body := range map[string]map[string]any{
		"zero qty":       {"direction": "BUY", "ticker": "AAPL", "qty": 0, "price": 10},
		"negative price": {"direction": "BUY", "ticker": "AAPL", "qty": 1, "price": -5},
		"bad direction":  {"direction": "HOLD", "ticker": "AAPL", "qty": 1, "price": 10},
		"bad ticker":     {"direction": "BUY", "ticker": "aapl!", "qty": 1, "price": 10},
	} {
		ctx := do(s, "POST", "/api/v1/order", user.APIKey, body)
		assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode(), name)
	}
}

func TestCancelOrder(t *testing.T) {
	s := newTestServer(t)
	createInstrument(t, s, "AAPL", "apple")
	seller := register(t, s, "seller")
	adminDeposit(t, s, seller, "AAPL", 5)

	ctx := do(s, "POST", "/api/v1/order", seller.APIKey, map[string]any{
		"direction": "SELL", "ticker": "AAPL", "qty": 5, "price": 100,
	})
	placed := decode[placeOrderResponse](t, ctx)

	ctx = do(s, "DELETE", fmt.Sprintf("/api/v1/order/%s", placed.OrderID), seller.APIKey, nil)
	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())

	// A second delete reports the terminal status.
	ctx = do(s, "DELETE", fmt.Sprintf("/api/v1/order/%s", placed.OrderID), seller.APIKey, nil)
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
	assert.Contains(t, string(ctx.Response.Body()), "CANCELLED")
}

func TestOrderBookEndpoint(t *testing.T) {
	s := newTestServer(t)
	createInstrument(t, s, "AAPL", "apple")
	seller := register(t, s, "seller")
	adminDeposit(t, s, seller, "AAPL", 10)

	ctx := do(s, "POST", "/api/v1/order", seller.APIKey, map[string]any{
		"direction": "SELL", "ticker": "AAPL", "qty": 10, "price": 100,
	})
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())

	ctx = do(s, "GET", "/api/v1/public/orderbook/AAPL", "", nil)
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	depth := decode[matching.OrderBookDepth](t, ctx)
	require.Len(t, depth.AskLevels, 1)
	assert.Equal(t, int64(100), depth.AskLevels[0].Price)
	assert.Equal(t, int64(10), depth.AskLevels[0].Qty)
	assert.Empty(t, depth.BidLevels)

	ctx = do(s, "GET", "/api/v1/public/orderbook/MSFT", "", nil)
	assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())

	ctx = do(s, "GET", "/api/v1/public/orderbook/AAPL?limit=26", "", nil)
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
}

func TestDeleteUser(t *testing.T) {
	s := newTestServer(t)
	user := register(t, s, "alice")

	ctx := do(s, "DELETE", fmt.Sprintf("/api/v1/admin/user/%s", user.ID), adminKey, nil)
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	deleted := decode[models.User](t, ctx)
	assert.Equal(t, user.ID, deleted.ID)

	// Their credential is gone with them.
	ctx = do(s, "GET", "/api/v1/balance", user.APIKey, nil)
	assert.Equal(t, fasthttp.StatusUnauthorized, ctx.Response.StatusCode())
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	ctx := do(s, "GET", "/health", "", nil)
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	health := decode[healthResponse](t, ctx)
	assert.Equal(t, "healthy", health.Status)

	ctx = do(s, "GET", "/metrics", "", nil)
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	snapshot := decode[map[string]any](t, ctx)
	assert.Contains(t, snapshot, "orders_received")
}
