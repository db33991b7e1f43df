package postgres

import (
	"context"

	"birzha/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

type tradeRepo struct {
	pgtx pgx.Tx
}

func (r *tradeRepo) Append(ctx context.Context, t *models.Trade) error {
	err := r.pgtx.QueryRow(ctx, `
		INSERT INTO trades (ticker, price, qty, executed_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		t.Ticker, t.Price, t.Qty, t.Timestamp).Scan(&t.ID)
	return errors.Wrap(err, "insert trade")
}

func (r *tradeRepo) ListByTicker(ctx context.Context, ticker string, limit int) ([]*models.Trade, error) {
	rows, err := r.pgtx.Query(ctx, `
		SELECT id, ticker, price, qty, executed_at FROM trades
		WHERE ticker = $1
		ORDER BY executed_at DESC, id DESC
		LIMIT $2`,
		ticker, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list trades")
	}
	defer rows.Close()

	var out []*models.Trade
	for rows.Next() {
		var t models.Trade
		if err := rows.Scan(&t.ID, &t.Ticker, &t.Price, &t.Qty, &t.Timestamp); err != nil {
			return nil, errors.Wrap(err, "scan trade")
		}
		out = append(out, &t)
	}
	return out, errors.Wrap(rows.Err(), "list trades")
}
