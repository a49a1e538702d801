package catalog

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"gymcore/internal/apperr"
	"gymcore/internal/db"

	"github.com/jmoiron/sqlx"
)

const packageColumns = `id, name, description, price, kind, duration_days, duration_months, sessions,
	start_time_limit, end_time_limit, allowed_weekdays, trainer_id, is_active, created_at`

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetPackage(ctx context.Context, id int) (*Package, error) {
	var p Package
	err := db.ConnFrom(ctx, r.db).GetContext(ctx, &p, `SELECT `+packageColumns+` FROM packages WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFoundf("package %d not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repository) ListPackages(ctx context.Context, onlyActive bool) ([]Package, error) {
	var packages []Package
	err := db.ConnFrom(ctx, r.db).SelectContext(ctx, &packages, `
		SELECT `+packageColumns+`
		FROM packages
		WHERE ($1 = FALSE OR is_active = TRUE)
		ORDER BY kind, price
	`, onlyActive)
	if err != nil {
		return nil, err
	}
	return packages, nil
}

// FindActivePromotion returns the first promotion whose window contains now, or nil.
func (r *repository) FindActivePromotion(ctx context.Context, target PromotionTarget, targetID int, now time.Time) (*Promotion, error) {
	var p Promotion
	err := db.ConnFrom(ctx, r.db).GetContext(ctx, &p, `
		SELECT id, name, target_type, target_id, discount_percent, start_at, end_at, is_active
		FROM promotions
		WHERE target_type = $1 AND target_id = $2 AND is_active = TRUE
		  AND start_at <= $3 AND end_at > $3
		ORDER BY id
		LIMIT 1
	`, target, targetID, now)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
