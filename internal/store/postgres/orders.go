package postgres

import (
	"context"

	"birzha/internal/errs"
	"birzha/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

type orderRepo struct {
	pgtx pgx.Tx
}

const orderColumns = `id, user_id, ticker, direction, type, qty, price, filled, status, created_at`

func (r *orderRepo) Create(ctx context.Context, o *models.Order) error {
	_, err := r.pgtx.Exec(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		o.ID, o.UserID, o.Ticker, o.Direction.String(), o.Type.String(),
		o.Qty, o.Price, o.Filled, o.Status.String(), o.CreatedAt)
	return mapWriteErr(err, "insert order")
}

func (r *orderRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return r.scanOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

func (r *orderRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return r.scanOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
}

func (r *orderRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Order, error) {
	return r.scanMany(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id`, userID)
}

func (r *orderRepo) RestingOpposite(ctx context.Context, ticker string, takerDirection models.Direction) ([]*models.Order, error) {
	restingSide := takerDirection.Opposite()
	// Best price first: a BUY taker consumes asks ascending, a SELL taker
	// consumes bids descending. Ties break on earlier timestamp, then id,
	// making the walk order total. The select locks returned rows.
	priceOrder := "price ASC"
	if restingSide == models.Buy {
		priceOrder = "price DESC"
	}
	return r.scanMany(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE ticker = $1 AND direction = $2
		  AND status IN ('NEW', 'PARTIALLY_EXECUTED')
		  AND price IS NOT NULL
		ORDER BY `+priceOrder+`, created_at ASC, id ASC
		FOR UPDATE`,
		ticker, restingSide.String())
}

func (r *orderRepo) RestingBySide(ctx context.Context, ticker string, direction models.Direction) ([]*models.Order, error) {
	priceOrder := "price ASC"
	if direction == models.Buy {
		priceOrder = "price DESC"
	}
	return r.scanMany(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE ticker = $1 AND direction = $2
		  AND status IN ('NEW', 'PARTIALLY_EXECUTED')
		  AND price IS NOT NULL
		ORDER BY `+priceOrder+`, created_at ASC, id ASC`,
		ticker, direction.String())
}

func (r *orderRepo) Update(ctx context.Context, o *models.Order) error {
	tag, err := r.pgtx.Exec(ctx,
		`UPDATE orders SET filled = $1, status = $2 WHERE id = $3`,
		o.Filled, o.Status.String(), o.ID)
	if err != nil {
		return errors.Wrap(err, "update order")
	}
	if tag.RowsAffected() == 0 {
		return errs.E(errs.NotFound, "order %s not found", o.ID)
	}
	return nil
}

func (r *orderRepo) scanOne(ctx context.Context, query string, arg any) (*models.Order, error) {
	o, err := scanOrder(r.pgtx.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.E(errs.NotFound, "order not found")
	}
	if err != nil {
		return nil, errors.Wrap(err, "select order")
	}
	return o, nil
}

func (r *orderRepo) scanMany(ctx context.Context, query string, args ...any) ([]*models.Order, error) {
	rows, err := r.pgtx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "select orders")
	}
	defer rows.Close()

	var out []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan order")
		}
		out = append(out, o)
	}
	return out, errors.Wrap(rows.Err(), "select orders")
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	var (
		o                 models.Order
		direction, status string
		typ               string
	)
	if err := row.Scan(&o.ID, &o.UserID, &o.Ticker, &direction, &typ,
		&o.Qty, &o.Price, &o.Filled, &status, &o.CreatedAt); err != nil {
		return nil, err
	}
	var err error
	if o.Direction, err = models.ParseDirection(direction); err != nil {
		return nil, err
	}
	if o.Type, err = models.ParseOrderType(typ); err != nil {
		return nil, err
	}
	if o.Status, err = models.ParseOrderStatus(status); err != nil {
		return nil, err
	}
	return &o, nil
}
