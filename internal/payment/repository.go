package payment

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"gymcore/internal/apperr"
	"gymcore/internal/db"

	"github.com/jmoiron/sqlx"
)

const attemptColumns = `id, member_id, amount, method, status, kind, subscription_id, sale_id,
	gateway_ref, response_code, created_at, updated_at, completed_at`

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, a *Attempt) error {
	if a.Status == StatusCompleted && a.CompletedAt == nil {
		now := time.Now()
		a.CompletedAt = &now
	}
	return db.ConnFrom(ctx, r.db).QueryRowxContext(ctx, `
		INSERT INTO payment_attempts (member_id, amount, method, status, kind, subscription_id, sale_id, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+attemptColumns,
		a.MemberID, a.Amount, a.Method, a.Status, a.Kind, a.SubscriptionID, a.SaleID, a.CompletedAt,
	).StructScan(a)
}

func (r *repository) GetByID(ctx context.Context, id int) (*Attempt, error) {
	return r.get(ctx, `SELECT `+attemptColumns+` FROM payment_attempts WHERE id = $1`, id)
}

func (r *repository) GetForUpdate(ctx context.Context, id int) (*Attempt, error) {
	return r.get(ctx, `SELECT `+attemptColumns+` FROM payment_attempts WHERE id = $1 FOR UPDATE`, id)
}

func (r *repository) get(ctx context.Context, query string, id int) (*Attempt, error) {
	var a Attempt
	err := db.ConnFrom(ctx, r.db).GetContext(ctx, &a, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFoundf("payment attempt %d not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *repository) Resolve(ctx context.Context, id int, status Status, responseCode, gatewayRef string) (bool, error) {
	var completedAt *time.Time
	if status == StatusCompleted {
		now := time.Now()
		completedAt = &now
	}
	res, err := db.ConnFrom(ctx, r.db).ExecContext(ctx, `
		UPDATE payment_attempts
		SET status = $2, response_code = NULLIF($3, ''), gateway_ref = NULLIF($4, ''),
		    completed_at = $5, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, id, status, responseCode, gatewayRef, completedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *repository) LinkSubscription(ctx context.Context, id, subscriptionID int) error {
	_, err := db.ConnFrom(ctx, r.db).ExecContext(ctx, `
		UPDATE payment_attempts SET subscription_id = $2, updated_at = NOW() WHERE id = $1
	`, id, subscriptionID)
	return err
}

func (r *repository) ListBySubscription(ctx context.Context, subscriptionID int) ([]Attempt, error) {
	var attempts []Attempt
	err := db.ConnFrom(ctx, r.db).SelectContext(ctx, &attempts, `
		SELECT `+attemptColumns+`
		FROM payment_attempts
		WHERE subscription_id = $1
		ORDER BY created_at
	`, subscriptionID)
	if err != nil {
		return nil, err
	}
	return attempts, nil
}

func (r *repository) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]Attempt, error) {
	var attempts []Attempt
	err := db.ConnFrom(ctx, r.db).SelectContext(ctx, &attempts, `
		SELECT `+attemptColumns+`
		FROM payment_attempts
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at
	`, cutoff)
	if err != nil {
		return nil, err
	}
	return attempts, nil
}

func (r *repository) DeletePending(ctx context.Context, id int) (bool, error) {
	res, err := db.ConnFrom(ctx, r.db).ExecContext(ctx, `
		DELETE FROM payment_attempts WHERE id = $1 AND status = 'pending'
	`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

type intentRepository struct {
	db *sqlx.DB
}

func NewIntentRepository(db *sqlx.DB) IntentRepository {
	return &intentRepository{db: db}
}

func (r *intentRepository) CreateRenewal(ctx context.Context, d *DeferredRenewal) error {
	return db.ConnFrom(ctx, r.db).QueryRowxContext(ctx, `
		INSERT INTO deferred_renewals (attempt_id, member_id, package_id, trainer_id, time_slot, allowed_weekdays)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING attempt_id, member_id, package_id, trainer_id, time_slot, allowed_weekdays, created_at
	`, d.AttemptID, d.MemberID, d.PackageID, d.TrainerID, d.TimeSlot, d.AllowedWeekdays).StructScan(d)
}

func (r *intentRepository) GetRenewal(ctx context.Context, attemptID int) (*DeferredRenewal, error) {
	var d DeferredRenewal
	err := db.ConnFrom(ctx, r.db).GetContext(ctx, &d, `
		SELECT attempt_id, member_id, package_id, trainer_id, time_slot, allowed_weekdays, created_at
		FROM deferred_renewals
		WHERE attempt_id = $1
	`, attemptID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFoundf("no deferred renewal for payment attempt %d", attemptID)
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *intentRepository) CreateUpgrade(ctx context.Context, u *DeferredUpgrade) error {
	return db.ConnFrom(ctx, r.db).QueryRowxContext(ctx, `
		INSERT INTO deferred_upgrades (attempt_id, subscription_id, new_package_id, trainer_id, time_slot)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING attempt_id, subscription_id, new_package_id, trainer_id, time_slot, created_at
	`, u.AttemptID, u.SubscriptionID, u.NewPackageID, u.TrainerID, u.TimeSlot).StructScan(u)
}

func (r *intentRepository) GetUpgrade(ctx context.Context, attemptID int) (*DeferredUpgrade, error) {
	var u DeferredUpgrade
	err := db.ConnFrom(ctx, r.db).GetContext(ctx, &u, `
		SELECT attempt_id, subscription_id, new_package_id, trainer_id, time_slot, created_at
		FROM deferred_upgrades
		WHERE attempt_id = $1
	`, attemptID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFoundf("no deferred upgrade for payment attempt %d", attemptID)
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *intentRepository) DeleteForAttempt(ctx context.Context, attemptID int) error {
	conn := db.ConnFrom(ctx, r.db)
	if _, err := conn.ExecContext(ctx, `DELETE FROM deferred_renewals WHERE attempt_id = $1`, attemptID); err != nil {
		return err
	}
	_, err := conn.ExecContext(ctx, `DELETE FROM deferred_upgrades WHERE attempt_id = $1`, attemptID)
	return err
}
