package postgres

import (
	"context"

	"birzha/internal/errs"
	"birzha/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

type userRepo struct {
	pgtx pgx.Tx
}

func (r *userRepo) Create(ctx context.Context, u *models.User) error {
	_, err := r.pgtx.Exec(ctx,
		`INSERT INTO users (id, name, role, api_key, created_at) VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.Name, u.Role.String(), u.APIKey, u.CreatedAt)
	return mapWriteErr(err, "insert user")
}

func (r *userRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.scanOne(ctx,
		`SELECT id, name, role, api_key, created_at FROM users WHERE id = $1`, id)
}

func (r *userRepo) GetByAPIKey(ctx context.Context, key string) (*models.User, error) {
	u, err := r.scanOne(ctx,
		`SELECT id, name, role, api_key, created_at FROM users WHERE api_key = $1`, key)
	if errs.Is(err, errs.NotFound) {
		return nil, errs.E(errs.Unauthenticated, "invalid api key")
	}
	return u, err
}

func (r *userRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pgtx.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "delete user")
	}
	if tag.RowsAffected() == 0 {
		return errs.E(errs.NotFound, "user %s not found", id)
	}
	return nil
}

func (r *userRepo) scanOne(ctx context.Context, query string, arg any) (*models.User, error) {
	var (
		u    models.User
		role string
	)
	err := r.pgtx.QueryRow(ctx, query, arg).Scan(&u.ID, &u.Name, &role, &u.APIKey, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.E(errs.NotFound, "user not found")
	}
	if err != nil {
		return nil, errors.Wrap(err, "select user")
	}
	if u.Role, err = models.ParseRole(role); err != nil {
		return nil, errors.Wrap(err, "user row")
	}
	return &u, nil
}
