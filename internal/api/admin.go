package api

import (
	"context"
	"strings"

	"birzha/internal/errs"
	"birzha/internal/ledger"
	"birzha/internal/models"
	"birzha/internal/store"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

type createInstrumentRequest struct {
	Name   string `json:"name" validate:"required,min=3"`
	Ticker string `json:"ticker" validate:"required,ticker"`
}

type balanceChangeRequest struct {
	UserID uuid.UUID `json:"user_id" validate:"required"`
	Ticker string    `json:"ticker" validate:"required,ticker"`
	Amount int64     `json:"amount" validate:"required,gt=0"`
}

func (s *Server) handleAdmin(ctx *fasthttp.RequestCtx, method, route string) {
	if _, err := s.requireAdmin(ctx); err != nil {
		s.writeError(ctx, err)
		return
	}

	switch {
	case strings.HasPrefix(route, "/user/") && method == "DELETE":
		s.handleDeleteUser(ctx, strings.TrimPrefix(route, "/user/"))
	case route == "/instrument" && method == "POST":
		s.handleCreateInstrument(ctx)
	case strings.HasPrefix(route, "/instrument/") && method == "DELETE":
		s.handleDeleteInstrument(ctx, strings.TrimPrefix(route, "/instrument/"))
	case route == "/balance/deposit" && method == "POST":
		s.handleBalanceChange(ctx, ledger.Deposit)
	case route == "/balance/withdraw" && method == "POST":
		s.handleBalanceChange(ctx, ledger.Withdraw)
	default:
		ctx.Error("Not Found", fasthttp.StatusNotFound)
	}
}

// handleDeleteUser removes the user and returns the deleted record. The
// user's balances and orders go with them.
func (s *Server) handleDeleteUser(ctx *fasthttp.RequestCtx, rawID string) {
	userID, err := uuid.Parse(rawID)
	if err != nil {
		s.writeError(ctx, errs.E(errs.Validation, "invalid user id"))
		return
	}

	var deleted *models.User
	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		deleted, err = tx.Users().GetByID(ctx, userID)
		if err != nil {
			return err
		}
		return tx.Users().Delete(ctx, userID)
	})
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	s.log.Info("user deleted", zap.Stringer("user_id", userID))
	writeJSON(ctx, fasthttp.StatusOK, deleted)
}

func (s *Server) handleCreateInstrument(ctx *fasthttp.RequestCtx) {
	var req createInstrumentRequest
	if err := s.bind(ctx, &req); err != nil {
		s.writeError(ctx, err)
		return
	}

	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		return tx.Instruments().Create(ctx, &models.Instrument{Ticker: req.Ticker, Name: req.Name})
	})
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	s.log.Info("instrument created", zap.String("ticker", req.Ticker))
	writeJSON(ctx, fasthttp.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleDeleteInstrument(ctx *fasthttp.RequestCtx, ticker string) {
	// The quote asset underpins every reservation and settlement.
	if ticker == models.QuoteTicker {
		s.writeError(ctx, errs.E(errs.Forbidden, "%s cannot be delisted", models.QuoteTicker))
		return
	}

	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		return tx.Instruments().Delete(ctx, ticker)
	})
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	s.log.Info("instrument deleted", zap.String("ticker", ticker))
	writeJSON(ctx, fasthttp.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleBalanceChange(ctx *fasthttp.RequestCtx, apply func(context.Context, store.Tx, uuid.UUID, string, int64) error) {
	var req balanceChangeRequest
	if err := s.bind(ctx, &req); err != nil {
		s.writeError(ctx, err)
		return
	}

	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		return apply(ctx, tx, req.UserID, req.Ticker, req.Amount)
	})
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, map[string]bool{"success": true})
}
