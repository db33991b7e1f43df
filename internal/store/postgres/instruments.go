package postgres

import (
	"context"

	"birzha/internal/errs"
	"birzha/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

type instrumentRepo struct {
	pgtx pgx.Tx
}

func (r *instrumentRepo) Create(ctx context.Context, ins *models.Instrument) error {
	_, err := r.pgtx.Exec(ctx,
		`INSERT INTO instruments (ticker, name) VALUES ($1, $2)`, ins.Ticker, ins.Name)
	return mapWriteErr(err, "insert instrument")
}

func (r *instrumentRepo) GetByTicker(ctx context.Context, ticker string) (*models.Instrument, error) {
	var ins models.Instrument
	err := r.pgtx.QueryRow(ctx,
		`SELECT ticker, name FROM instruments WHERE ticker = $1`, ticker).
		Scan(&ins.Ticker, &ins.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.E(errs.NotFound, "instrument %s not found", ticker)
	}
	if err != nil {
		return nil, errors.Wrap(err, "select instrument")
	}
	return &ins, nil
}

func (r *instrumentRepo) List(ctx context.Context) ([]*models.Instrument, error) {
	rows, err := r.pgtx.Query(ctx, `SELECT ticker, name FROM instruments ORDER BY ticker`)
	if err != nil {
		return nil, errors.Wrap(err, "list instruments")
	}
	defer rows.Close()

	var out []*models.Instrument
	for rows.Next() {
		var ins models.Instrument
		if err := rows.Scan(&ins.Ticker, &ins.Name); err != nil {
			return nil, errors.Wrap(err, "scan instrument")
		}
		out = append(out, &ins)
	}
	return out, errors.Wrap(rows.Err(), "list instruments")
}

func (r *instrumentRepo) Delete(ctx context.Context, ticker string) error {
	tag, err := r.pgtx.Exec(ctx, `DELETE FROM instruments WHERE ticker = $1`, ticker)
	if err != nil {
		return errors.Wrap(err, "delete instrument")
	}
	if tag.RowsAffected() == 0 {
		return errs.E(errs.NotFound, "instrument %s not found", ticker)
	}
	return nil
}
