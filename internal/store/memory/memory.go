// Package memory implements the store contracts in process memory. It backs
// the test suite and DB-less local runs. Transactions are serialised by one
// mutex and rolled back by restoring a snapshot, which gives the same
// all-or-nothing semantics the postgres store gets from pgx transactions.
package memory

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"birzha/internal/errs"
	"birzha/internal/models"
	"birzha/internal/store"

	"github.com/google/uuid"
)

type state struct {
	users       map[uuid.UUID]*models.User
	instruments map[string]*models.Instrument
	balances    map[balanceKey]*models.Balance
	orders      map[uuid.UUID]*models.Order
	trades      []*models.Trade
	tradeSeq    int64
}

type balanceKey struct {
	userID uuid.UUID
	ticker string
}

// Store is the in-memory unit-of-work boundary.
type Store struct {
	mu sync.Mutex
	st state
}

func New() *Store {
	return &Store{st: state{
		users:       make(map[uuid.UUID]*models.User),
		instruments: make(map[string]*models.Instrument),
		balances:    make(map[balanceKey]*models.Balance),
		orders:      make(map[uuid.UUID]*models.Order),
	}}
}

func (s *Store) Close() {}

// WithTx serialises fn against all other transactions and restores the
// pre-transaction snapshot when fn fails.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(&tx{st: &s.st}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

func (st state) clone() state {
	out := state{
		users:       make(map[uuid.UUID]*models.User, len(st.users)),
		instruments: make(map[string]*models.Instrument, len(st.instruments)),
		balances:    make(map[balanceKey]*models.Balance, len(st.balances)),
		orders:      make(map[uuid.UUID]*models.Order, len(st.orders)),
		trades:      make([]*models.Trade, len(st.trades)),
		tradeSeq:    st.tradeSeq,
	}
	for id, u := range st.users {
		cp := *u
		out.users[id] = &cp
	}
	for t, ins := range st.instruments {
		cp := *ins
		out.instruments[t] = &cp
	}
	for k, b := range st.balances {
		cp := *b
		out.balances[k] = &cp
	}
	for id, o := range st.orders {
		cp := *o
		if o.Price != nil {
			p := *o.Price
			cp.Price = &p
		}
		out.orders[id] = &cp
	}
	for i, t := range st.trades {
		cp := *t
		out.trades[i] = &cp
	}
	return out
}

type tx struct {
	st *state
}

func (t *tx) Users() store.UserRepo             { return &userRepo{t.st} }
func (t *tx) Instruments() store.InstrumentRepo { return &instrumentRepo{t.st} }
func (t *tx) Balances() store.BalanceRepo       { return &balanceRepo{t.st} }
func (t *tx) Orders() store.OrderRepo           { return &orderRepo{t.st} }
func (t *tx) Trades() store.TradeRepo           { return &tradeRepo{t.st} }

type userRepo struct {
	st *state
}

func (r *userRepo) Create(_ context.Context, u *models.User) error {
	for _, existing := range r.st.users {
		if existing.Name == u.Name {
			return errs.E(errs.Conflict, "user name %q already exists", u.Name)
		}
	}
	cp := *u
	r.st.users[u.ID] = &cp
	return nil
}

func (r *userRepo) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	u, ok := r.st.users[id]
	if !ok {
		return nil, errs.E(errs.NotFound, "user not found")
	}
	cp := *u
	return &cp, nil
}

func (r *userRepo) GetByAPIKey(_ context.Context, key string) (*models.User, error) {
	for _, u := range r.st.users {
		if u.APIKey == key {
			cp := *u
			return &cp, nil
		}
	}
	return nil, errs.E(errs.Unauthenticated, "invalid api key")
}

func (r *userRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := r.st.users[id]; !ok {
		return errs.E(errs.NotFound, "user %s not found", id)
	}
	delete(r.st.users, id)
	for k := range r.st.balances {
		if k.userID == id {
			delete(r.st.balances, k)
		}
	}
	for oid, o := range r.st.orders {
		if o.UserID == id {
			delete(r.st.orders, oid)
		}
	}
	return nil
}

type instrumentRepo struct {
	st *state
}

func (r *instrumentRepo) Create(_ context.Context, ins *models.Instrument) error {
	if _, ok := r.st.instruments[ins.Ticker]; ok {
		return errs.E(errs.Conflict, "instrument %s already exists", ins.Ticker)
	}
	for _, existing := range r.st.instruments {
		if existing.Name == ins.Name {
			return errs.E(errs.Conflict, "instrument name %q already exists", ins.Name)
		}
	}
	cp := *ins
	r.st.instruments[ins.Ticker] = &cp
	return nil
}

func (r *instrumentRepo) GetByTicker(_ context.Context, ticker string) (*models.Instrument, error) {
	ins, ok := r.st.instruments[ticker]
	if !ok {
		return nil, errs.E(errs.NotFound, "instrument %s not found", ticker)
	}
	cp := *ins
	return &cp, nil
}

func (r *instrumentRepo) List(_ context.Context) ([]*models.Instrument, error) {
	out := make([]*models.Instrument, 0, len(r.st.instruments))
	for _, ins := range r.st.instruments {
		cp := *ins
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out, nil
}

func (r *instrumentRepo) Delete(_ context.Context, ticker string) error {
	if _, ok := r.st.instruments[ticker]; !ok {
		return errs.E(errs.NotFound, "instrument %s not found", ticker)
	}
	delete(r.st.instruments, ticker)
	for k := range r.st.balances {
		if k.ticker == ticker {
			delete(r.st.balances, k)
		}
	}
	for oid, o := range r.st.orders {
		if o.Ticker == ticker {
			delete(r.st.orders, oid)
		}
	}
	kept := r.st.trades[:0]
	for _, t := range r.st.trades {
		if t.Ticker != ticker {
			kept = append(kept, t)
		}
	}
	r.st.trades = kept
	return nil
}

type balanceRepo struct {
	st *state
}

func (r *balanceRepo) Get(_ context.Context, userID uuid.UUID, ticker string) (*models.Balance, error) {
	b, ok := r.st.balances[balanceKey{userID, ticker}]
	if !ok {
		return nil, errs.E(errs.NotFound, "no %s balance for user %s", ticker, userID)
	}
	cp := *b
	return &cp, nil
}

// GetForUpdate is Get: WithTx already serialises writers.
func (r *balanceRepo) GetForUpdate(ctx context.Context, userID uuid.UUID, ticker string) (*models.Balance, error) {
	return r.Get(ctx, userID, ticker)
}

func (r *balanceRepo) Upsert(_ context.Context, b *models.Balance) error {
	cp := *b
	r.st.balances[balanceKey{b.UserID, b.Ticker}] = &cp
	return nil
}

func (r *balanceRepo) ListByUser(_ context.Context, userID uuid.UUID) ([]*models.Balance, error) {
	var out []*models.Balance
	for k, b := range r.st.balances {
		if k.userID == userID {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out, nil
}

type orderRepo struct {
	st *state
}

func (r *orderRepo) Create(_ context.Context, o *models.Order) error {
	if _, ok := r.st.orders[o.ID]; ok {
		return errs.E(errs.Conflict, "order %s already exists", o.ID)
	}
	r.st.orders[o.ID] = cloneOrder(o)
	return nil
}

func (r *orderRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Order, error) {
	o, ok := r.st.orders[id]
	if !ok {
		return nil, errs.E(errs.NotFound, "order not found")
	}
	return cloneOrder(o), nil
}

func (r *orderRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return r.GetByID(ctx, id)
}

func (r *orderRepo) ListByUser(_ context.Context, userID uuid.UUID) ([]*models.Order, error) {
	var out []*models.Order
	for _, o := range r.st.orders {
		if o.UserID == userID {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0
	})
	return out, nil
}

func (r *orderRepo) RestingOpposite(_ context.Context, ticker string, takerDirection models.Direction) ([]*models.Order, error) {
	return r.resting(ticker, takerDirection.Opposite()), nil
}

func (r *orderRepo) RestingBySide(_ context.Context, ticker string, direction models.Direction) ([]*models.Order, error) {
	return r.resting(ticker, direction), nil
}

// resting returns the non-terminal priced orders of one side, best price
// first with price-time ordering (asks ascending, bids descending).
func (r *orderRepo) resting(ticker string, side models.Direction) []*models.Order {
	var out []*models.Order
	for _, o := range r.st.orders {
		if o.Ticker == ticker && o.Direction == side && o.Resting() {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		pi, pj := *out[i].Price, *out[j].Price
		if pi != pj {
			if side == models.Buy {
				return pi > pj
			}
			return pi < pj
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0
	})
	return out
}

func (r *orderRepo) Update(_ context.Context, o *models.Order) error {
	existing, ok := r.st.orders[o.ID]
	if !ok {
		return errs.E(errs.NotFound, "order %s not found", o.ID)
	}
	existing.Filled = o.Filled
	existing.Status = o.Status
	return nil
}

func cloneOrder(o *models.Order) *models.Order {
	cp := *o
	if o.Price != nil {
		p := *o.Price
		cp.Price = &p
	}
	return &cp
}

type tradeRepo struct {
	st *state
}

func (r *tradeRepo) Append(_ context.Context, t *models.Trade) error {
	r.st.tradeSeq++
	t.ID = r.st.tradeSeq
	cp := *t
	r.st.trades = append(r.st.trades, &cp)
	return nil
}

func (r *tradeRepo) ListByTicker(_ context.Context, ticker string, limit int) ([]*models.Trade, error) {
	var out []*models.Trade
	for i := len(r.st.trades) - 1; i >= 0 && len(out) < limit; i-- {
		if r.st.trades[i].Ticker == ticker {
			cp := *r.st.trades[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}
