// Package api adapts the engine to HTTP. Routing is a plain fasthttp
// handler over the /api/v1 prefix; authentication is the TOKEN scheme with
// api keys resolved against the user store; engine errors translate to
// status codes through their kind.
package api

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"birzha/internal/errs"
	"birzha/internal/matching"
	"birzha/internal/metrics"
	"birzha/internal/models"
	"birzha/internal/store"

	"github.com/go-playground/validator/v10"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

var tickerPattern = regexp.MustCompile(`^[A-Z]{2,10}$`)

// Server is the HTTP server for the exchange.
type Server struct {
	listenAddr string
	store      store.Store
	engine     *matching.Engine
	metrics    *metrics.Metrics
	validate   *validator.Validate
	log        *zap.Logger
	startTime  time.Time
}

// NewServer creates a new Server.
func NewServer(listenAddr string, st store.Store, engine *matching.Engine, m *metrics.Metrics, log *zap.Logger) *Server {
	v := validator.New()
	// Mirrors the ticker constraint enforced at instrument creation.
	_ = v.RegisterValidation("ticker", func(fl validator.FieldLevel) bool {
		return tickerPattern.MatchString(fl.Field().String())
	})
	return &Server{
		listenAddr: listenAddr,
		store:      st,
		engine:     engine,
		metrics:    m,
		validate:   v,
		log:        log,
		startTime:  time.Now(),
	}
}

// Run starts the HTTP server and blocks.
func (s *Server) Run() error {
	s.log.Info("http server listening", zap.String("addr", s.listenAddr))
	return fasthttp.ListenAndServe(s.listenAddr, s.handle)
}

func (s *Server) handle(ctx *fasthttp.RequestCtx) {
	path := string(ctx.Path())
	method := string(ctx.Method())

	switch path {
	case "/health":
		if method == "GET" {
			s.handleHealth(ctx)
		} else {
			ctx.Error("Method not allowed", fasthttp.StatusMethodNotAllowed)
		}
		return
	case "/metrics":
		if method == "GET" {
			writeJSON(ctx, fasthttp.StatusOK, s.metrics)
		} else {
			ctx.Error("Method not allowed", fasthttp.StatusMethodNotAllowed)
		}
		return
	}

	route, ok := strings.CutPrefix(path, "/api/v1")
	if !ok {
		ctx.Error("Not Found", fasthttp.StatusNotFound)
		return
	}

	switch {
	case route == "/public/register" && method == "POST":
		s.handleRegister(ctx)
	case route == "/public/instrument" && method == "GET":
		s.handleListInstruments(ctx)
	case strings.HasPrefix(route, "/public/orderbook/") && method == "GET":
		s.handleOrderBook(ctx, strings.TrimPrefix(route, "/public/orderbook/"))
	case strings.HasPrefix(route, "/public/transactions/") && method == "GET":
		s.handleTransactions(ctx, strings.TrimPrefix(route, "/public/transactions/"))
	case route == "/balance" && method == "GET":
		s.handleBalance(ctx)
	case route == "/order" && method == "POST":
		s.handlePlaceOrder(ctx)
	case route == "/order" && method == "GET":
		s.handleListOrders(ctx)
	case strings.HasPrefix(route, "/order/"):
		id := strings.TrimPrefix(route, "/order/")
		switch method {
		case "GET":
			s.handleGetOrder(ctx, id)
		case "DELETE":
			s.handleCancelOrder(ctx, id)
		default:
			ctx.Error("Method not allowed", fasthttp.StatusMethodNotAllowed)
		}
	case strings.HasPrefix(route, "/admin/"):
		s.handleAdmin(ctx, method, strings.TrimPrefix(route, "/admin"))
	default:
		ctx.Error("Not Found", fasthttp.StatusNotFound)
	}
}

// authenticate resolves the TOKEN credential to a user. The header form is
// "Authorization: TOKEN <api_key>".
func (s *Server) authenticate(ctx *fasthttp.RequestCtx) (*models.User, error) {
	header := string(ctx.Request.Header.Peek("Authorization"))
	key, ok := strings.CutPrefix(header, "TOKEN ")
	if !ok || key == "" {
		return nil, errs.E(errs.Unauthenticated, "missing or malformed Authorization header")
	}

	var user *models.User
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		user, err = tx.Users().GetByAPIKey(ctx, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// requireAdmin is authenticate plus a role check.
func (s *Server) requireAdmin(ctx *fasthttp.RequestCtx) (*models.User, error) {
	user, err := s.authenticate(ctx)
	if err != nil {
		return nil, err
	}
	if user.Role != models.RoleAdmin {
		return nil, errs.E(errs.Forbidden, "admin role required")
	}
	return user, nil
}

// bind decodes the request body and runs struct validation.
func (s *Server) bind(ctx *fasthttp.RequestCtx, dst any) error {
	if err := json.Unmarshal(ctx.PostBody(), dst); err != nil {
		return errs.E(errs.Validation, "invalid request body")
	}
	if err := s.validate.Struct(dst); err != nil {
		return errs.Wrap(errs.Validation, err, "invalid request body")
	}
	return nil
}

func (s *Server) writeError(ctx *fasthttp.RequestCtx, err error) {
	kind := errs.KindOf(err)
	msg := err.Error()
	if kind == errs.Internal {
		s.log.Error("request failed", zap.String("path", string(ctx.Path())), zap.Error(err))
		msg = "internal error"
	}
	writeJSON(ctx, errs.HTTPStatus(kind), map[string]string{"error": msg})
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	ctx.Response.Header.SetContentType("application/json")
	ctx.SetStatusCode(status)
	if err := json.NewEncoder(ctx).Encode(v); err != nil {
		ctx.Error(err.Error(), fasthttp.StatusInternalServerError)
	}
}
