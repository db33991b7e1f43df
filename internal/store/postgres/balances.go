package postgres

import (
	"context"

	"birzha/internal/errs"
	"birzha/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

type balanceRepo struct {
	pgtx pgx.Tx
}

func (r *balanceRepo) Get(ctx context.Context, userID uuid.UUID, ticker string) (*models.Balance, error) {
	return r.get(ctx, userID, ticker, false)
}

func (r *balanceRepo) GetForUpdate(ctx context.Context, userID uuid.UUID, ticker string) (*models.Balance, error) {
	return r.get(ctx, userID, ticker, true)
}

func (r *balanceRepo) get(ctx context.Context, userID uuid.UUID, ticker string, lock bool) (*models.Balance, error) {
	query := `SELECT user_id, ticker, total, reserved FROM balances WHERE user_id = $1 AND ticker = $2`
	if lock {
		query += ` FOR UPDATE`
	}
	var b models.Balance
	err := r.pgtx.QueryRow(ctx, query, userID, ticker).Scan(&b.UserID, &b.Ticker, &b.Total, &b.Reserved)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.E(errs.NotFound, "no %s balance for user %s", ticker, userID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "select balance")
	}
	return &b, nil
}

func (r *balanceRepo) Upsert(ctx context.Context, b *models.Balance) error {
	_, err := r.pgtx.Exec(ctx, `
		INSERT INTO balances (user_id, ticker, total, reserved)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, ticker) DO UPDATE SET total = $3, reserved = $4`,
		b.UserID, b.Ticker, b.Total, b.Reserved)
	return errors.Wrap(err, "upsert balance")
}

func (r *balanceRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Balance, error) {
	rows, err := r.pgtx.Query(ctx,
		`SELECT user_id, ticker, total, reserved FROM balances WHERE user_id = $1 ORDER BY ticker`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list balances")
	}
	defer rows.Close()

	var out []*models.Balance
	for rows.Next() {
		var b models.Balance
		if err := rows.Scan(&b.UserID, &b.Ticker, &b.Total, &b.Reserved); err != nil {
			return nil, errors.Wrap(err, "scan balance")
		}
		out = append(out, &b)
	}
	return out, errors.Wrap(rows.Err(), "list balances")
}
