package sale

import (
	"context"
	"database/sql"
	"errors"

	"gymcore/internal/apperr"
	"gymcore/internal/db"

	"github.com/jmoiron/sqlx"
)

type Repository interface {
	GetForUpdate(ctx context.Context, id int) (*Sale, error)
	// TransitionFrom moves the sale to `to` only if it is currently `from`.
	TransitionFrom(ctx context.Context, id int, from, to Status) (bool, error)
}

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetForUpdate(ctx context.Context, id int) (*Sale, error) {
	var s Sale
	err := db.ConnFrom(ctx, r.db).GetContext(ctx, &s, `
		SELECT id, member_id, total_amount, status, created_at, updated_at
		FROM sales
		WHERE id = $1
		FOR UPDATE
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFoundf("sale %d not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repository) TransitionFrom(ctx context.Context, id int, from, to Status) (bool, error) {
	res, err := db.ConnFrom(ctx, r.db).ExecContext(ctx, `
		UPDATE sales
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`, id, from, to)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
