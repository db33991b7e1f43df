package api

import (
	"strconv"
	"time"

	"birzha/internal/errs"
	"birzha/internal/models"
	"birzha/internal/store"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

type registerRequest struct {
	Name string `json:"name" validate:"required,min=3"`
}

type placeOrderRequest struct {
	Direction string `json:"direction" validate:"required,oneof=BUY SELL"`
	Ticker    string `json:"ticker" validate:"required,ticker"`
	Qty       int64  `json:"qty" validate:"required,gte=1"`
	Price     *int64 `json:"price" validate:"omitempty,gt=0"`
}

type placeOrderResponse struct {
	Success bool      `json:"success"`
	OrderID uuid.UUID `json:"order_id"`
}

// orderBody echoes the submitted order parameters inside the envelope.
type orderBody struct {
	Direction models.Direction `json:"direction"`
	Ticker    string           `json:"ticker"`
	Qty       int64            `json:"qty"`
	Price     *int64           `json:"price,omitempty"`
}

type orderEnvelope struct {
	ID        uuid.UUID          `json:"id"`
	Status    models.OrderStatus `json:"status"`
	UserID    uuid.UUID          `json:"user_id"`
	Timestamp time.Time          `json:"timestamp"`
	Body      orderBody          `json:"body"`
	Filled    int64              `json:"filled"`
}

func toEnvelope(o *models.Order) orderEnvelope {
	return orderEnvelope{
		ID:        o.ID,
		Status:    o.Status,
		UserID:    o.UserID,
		Timestamp: o.CreatedAt,
		Body: orderBody{
			Direction: o.Direction,
			Ticker:    o.Ticker,
			Qty:       o.Qty,
			Price:     o.Price,
		},
		Filled: o.Filled,
	}
}

type tradeResponse struct {
	Ticker    string    `json:"ticker"`
	Amount    int64     `json:"amount"`
	Price     int64     `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

type healthResponse struct {
	Status          string `json:"status"`
	UptimeSeconds   int64  `json:"uptime_seconds"`
	OrdersProcessed int64  `json:"orders_processed"`
}

func (s *Server) handleRegister(ctx *fasthttp.RequestCtx) {
	var req registerRequest
	if err := s.bind(ctx, &req); err != nil {
		s.writeError(ctx, err)
		return
	}

	user := models.NewUser(req.Name, models.RoleUser)
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		return tx.Users().Create(ctx, user)
	})
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	s.log.Info("user registered", zap.String("name", user.Name), zap.Stringer("user_id", user.ID))
	writeJSON(ctx, fasthttp.StatusOK, user)
}

func (s *Server) handleListInstruments(ctx *fasthttp.RequestCtx) {
	var instruments []*models.Instrument
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		instruments, err = tx.Instruments().List(ctx)
		return err
	})
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, instruments)
}

func (s *Server) handleOrderBook(ctx *fasthttp.RequestCtx, ticker string) {
	limit, err := queryLimit(ctx, 10, 25)
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	depth, err := s.engine.Depth(ctx, ticker, limit)
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, depth)
}

func (s *Server) handleTransactions(ctx *fasthttp.RequestCtx, ticker string) {
	limit, err := queryLimit(ctx, 10, 100)
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	trades, err := s.engine.Trades(ctx, ticker, limit)
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	out := make([]tradeResponse, 0, len(trades))
	for _, t := range trades {
		out = append(out, tradeResponse{
			Ticker:    t.Ticker,
			Amount:    t.Qty,
			Price:     t.Price,
			Timestamp: t.Timestamp,
		})
	}
	writeJSON(ctx, fasthttp.StatusOK, out)
}

func (s *Server) handleBalance(ctx *fasthttp.RequestCtx) {
	user, err := s.authenticate(ctx)
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	balances, err := s.engine.Balances(ctx, user.ID)
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, balances)
}

func (s *Server) handlePlaceOrder(ctx *fasthttp.RequestCtx) {
	user, err := s.authenticate(ctx)
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	var req placeOrderRequest
	if err := s.bind(ctx, &req); err != nil {
		s.writeError(ctx, err)
		return
	}
	direction, err := models.ParseDirection(req.Direction)
	if err != nil {
		s.writeError(ctx, errs.Wrap(errs.Validation, err, "invalid direction"))
		return
	}

	// A present price makes the order a LIMIT; absence makes it a MARKET.
	var order *models.Order
	if req.Price != nil {
		order = models.NewLimitOrder(user.ID, req.Ticker, direction, req.Qty, *req.Price)
	} else {
		order = models.NewMarketOrder(user.ID, req.Ticker, direction, req.Qty)
	}

	orderID, err := s.engine.PlaceOrder(ctx, order)
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, placeOrderResponse{Success: true, OrderID: orderID})
}

func (s *Server) handleListOrders(ctx *fasthttp.RequestCtx) {
	user, err := s.authenticate(ctx)
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	orders, err := s.engine.ListOrders(ctx, user.ID)
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	out := make([]orderEnvelope, 0, len(orders))
	for _, o := range orders {
		out = append(out, toEnvelope(o))
	}
	writeJSON(ctx, fasthttp.StatusOK, out)
}

func (s *Server) handleGetOrder(ctx *fasthttp.RequestCtx, rawID string) {
	user, err := s.authenticate(ctx)
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	orderID, err := uuid.Parse(rawID)
	if err != nil {
		s.writeError(ctx, errs.E(errs.Validation, "invalid order id"))
		return
	}
	order, err := s.engine.GetOrder(ctx, orderID, user.ID)
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, toEnvelope(order))
}

func (s *Server) handleCancelOrder(ctx *fasthttp.RequestCtx, rawID string) {
	user, err := s.authenticate(ctx)
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	orderID, err := uuid.Parse(rawID)
	if err != nil {
		s.writeError(ctx, errs.E(errs.Validation, "invalid order id"))
		return
	}
	if err := s.engine.CancelOrder(ctx, orderID, user.ID); err != nil {
		s.writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleHealth(ctx *fasthttp.RequestCtx) {
	writeJSON(ctx, fasthttp.StatusOK, healthResponse{
		Status:          "healthy",
		UptimeSeconds:   int64(time.Since(s.startTime).Seconds()),
		OrdersProcessed: s.metrics.OrdersReceived.Load(),
	})
}

// queryLimit parses the limit query parameter, bounded to [1, max].
func queryLimit(ctx *fasthttp.RequestCtx, def, max int) (int, error) {
	raw := string(ctx.QueryArgs().Peek("limit"))
	if raw == "" {
		return def, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > max {
		return 0, errs.E(errs.Validation, "limit must be between 1 and %d", max)
	}
	return limit, nil
}
