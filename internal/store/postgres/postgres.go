// Package postgres implements the store contracts on PostgreSQL via pgx.
// Row locks come from SELECT ... FOR UPDATE; every engine operation runs in
// one repeatable-read transaction opened by WithTx.
package postgres

import (
	"context"

	"birzha/internal/errs"
	"birzha/internal/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id         UUID PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	role       TEXT NOT NULL,
	api_key    TEXT NOT NULL UNIQUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS instruments (
	ticker TEXT PRIMARY KEY,
	name   TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS balances (
	user_id  UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	ticker   TEXT NOT NULL REFERENCES instruments(ticker) ON DELETE CASCADE,
	total    BIGINT NOT NULL DEFAULT 0,
	reserved BIGINT NOT NULL DEFAULT 0,
	PRIMARY KEY (user_id, ticker),
	CHECK (reserved >= 0 AND reserved <= total)
);

CREATE TABLE IF NOT EXISTS orders (
	id         UUID PRIMARY KEY,
	user_id    UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	ticker     TEXT NOT NULL REFERENCES instruments(ticker) ON DELETE CASCADE,
	direction  TEXT NOT NULL,
	type       TEXT NOT NULL,
	qty        BIGINT NOT NULL,
	price      BIGINT,
	filled     BIGINT NOT NULL DEFAULT 0,
	status     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_orders_resting
	ON orders (ticker, direction, price)
	WHERE status IN ('NEW', 'PARTIALLY_EXECUTED') AND price IS NOT NULL;

CREATE TABLE IF NOT EXISTS trades (
	id          BIGSERIAL PRIMARY KEY,
	ticker      TEXT NOT NULL REFERENCES instruments(ticker) ON DELETE CASCADE,
	price       BIGINT NOT NULL,
	qty         BIGINT NOT NULL,
	executed_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_ticker_time ON trades (ticker, executed_at DESC, id DESC);
`

// Store holds the connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to databaseURL and applies the schema.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "connect postgres")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "apply schema")
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// maxTxAttempts bounds retries of transactions postgres aborted with a
// deadlock or serialisation failure. Concurrent takers can acquire balance
// row locks in conflicting order, so these aborts are expected under load.
const maxTxAttempts = 3

// WithTx runs fn inside a repeatable-read transaction. Any error from fn
// rolls the transaction back and is returned unchanged. Transactions
// aborted by postgres as deadlocked or unserialisable are retried, so fn
// runs again from scratch after the rollback.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	var err error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err = s.runTx(ctx, fn)
		if !retryable(err) {
			return err
		}
	}
	return err
}

func (s *Store) runTx(ctx context.Context, fn func(tx store.Tx) error) error {
	pgtx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer pgtx.Rollback(ctx)

	if err := fn(&tx{pgtx: pgtx}); err != nil {
		return err
	}
	return errors.Wrap(pgtx.Commit(ctx), "commit tx")
}

type tx struct {
	pgtx pgx.Tx
}

func (t *tx) Users() store.UserRepo             { return &userRepo{t.pgtx} }
func (t *tx) Instruments() store.InstrumentRepo { return &instrumentRepo{t.pgtx} }
func (t *tx) Balances() store.BalanceRepo       { return &balanceRepo{t.pgtx} }
func (t *tx) Orders() store.OrderRepo           { return &orderRepo{t.pgtx} }
func (t *tx) Trades() store.TradeRepo           { return &tradeRepo{t.pgtx} }

const (
	uniqueViolation      = "23505"
	serialisationFailure = "40001"
	deadlockDetected     = "40P01"
)

// retryable reports whether postgres aborted the transaction for a reason
// that a clean re-run can resolve.
func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == serialisationFailure || pgErr.Code == deadlockDetected
}

// mapWriteErr translates uniqueness violations into Conflict.
func mapWriteErr(err error, msg string) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return errs.Wrap(errs.Conflict, err, msg)
	}
	return errors.Wrap(err, msg)
}
