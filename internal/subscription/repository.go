package subscription

import (
	"context"
	"database/sql"
	"errors"

	"gymcore/internal/apperr"
	"gymcore/internal/catalog"
	"gymcore/internal/db"

	"github.com/jmoiron/sqlx"
)

const (
	subscriptionColumns = `id, member_id, package_id, status, start_date, end_date, remaining_sessions,
	trainer_id, time_slot, allowed_weekdays, cancellation_reason, created_at, updated_at`

	trainerSlotConstraint = "subscriptions_trainer_slot_active"
)

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, sub *Subscription) error {
	err := db.ConnFrom(ctx, r.db).QueryRowxContext(ctx, `
		INSERT INTO subscriptions (member_id, package_id, status, start_date, end_date, remaining_sessions,
			trainer_id, time_slot, allowed_weekdays)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+subscriptionColumns,
		sub.MemberID, sub.PackageID, sub.Status, sub.StartDate, sub.EndDate, sub.RemainingSessions,
		sub.TrainerID, sub.TimeSlot, sub.AllowedWeekdays,
	).StructScan(sub)
	return translateSlotConflict(err)
}

func (r *repository) GetByID(ctx context.Context, id int) (*Subscription, error) {
	return r.get(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`, id)
}

func (r *repository) GetForUpdate(ctx context.Context, id int) (*Subscription, error) {
	return r.get(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1 FOR UPDATE`, id)
}

func (r *repository) get(ctx context.Context, query string, id int) (*Subscription, error) {
	var sub Subscription
	err := db.ConnFrom(ctx, r.db).GetContext(ctx, &sub, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFoundf("subscription %d not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *repository) Update(ctx context.Context, sub *Subscription) error {
	err := db.ConnFrom(ctx, r.db).QueryRowxContext(ctx, `
		UPDATE subscriptions
		SET member_id = $2, status = $3, start_date = $4, end_date = $5, remaining_sessions = $6,
		    trainer_id = $7, time_slot = $8, allowed_weekdays = $9, cancellation_reason = $10, updated_at = NOW()
		WHERE id = $1
		RETURNING `+subscriptionColumns,
		sub.ID, sub.MemberID, sub.Status, sub.StartDate, sub.EndDate, sub.RemainingSessions,
		sub.TrainerID, sub.TimeSlot, sub.AllowedWeekdays, sub.CancellationReason,
	).StructScan(sub)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFoundf("subscription %d not found", sub.ID)
	}
	return translateSlotConflict(err)
}

func (r *repository) DeletePending(ctx context.Context, id int) (bool, error) {
	res, err := db.ConnFrom(ctx, r.db).ExecContext(ctx, `
		DELETE FROM subscriptions WHERE id = $1 AND status = 'pending'
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

func (r *repository) ListByMember(ctx context.Context, memberID int) ([]Subscription, error) {
	var subs []Subscription
	err := db.ConnFrom(ctx, r.db).SelectContext(ctx, &subs, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE member_id = $1
		ORDER BY created_at DESC
	`, memberID)
	if err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repository) HasActiveForPackage(ctx context.Context, memberID, packageID int) (bool, error) {
	return db.Exists(ctx, db.ConnFrom(ctx, r.db), `
		SELECT EXISTS(
			SELECT 1 FROM subscriptions
			WHERE member_id = $1 AND package_id = $2 AND status = 'active'
		)
	`, memberID, packageID)
}

func (r *repository) FindRenewablePT(ctx context.Context, memberID, packageID int) (*Subscription, error) {
	return r.findOne(ctx, `
		SELECT s.id, s.member_id, s.package_id, s.status, s.start_date, s.end_date, s.remaining_sessions,
		       s.trainer_id, s.time_slot, s.allowed_weekdays, s.cancellation_reason, s.created_at, s.updated_at
		FROM subscriptions s
		JOIN packages p ON p.id = s.package_id
		WHERE s.member_id = $1 AND s.package_id = $2 AND p.kind = 'pt_session'
		  AND s.status IN ('active', 'expired')
		ORDER BY (s.status = 'active') DESC, s.end_date DESC NULLS FIRST
		LIMIT 1
		FOR UPDATE OF s
	`, memberID, packageID)
}

func (r *repository) FindLatestActiveOfKind(ctx context.Context, memberID int, kind catalog.Kind) (*Subscription, error) {
	return r.findOne(ctx, `
		SELECT s.id, s.member_id, s.package_id, s.status, s.start_date, s.end_date, s.remaining_sessions,
		       s.trainer_id, s.time_slot, s.allowed_weekdays, s.cancellation_reason, s.created_at, s.updated_at
		FROM subscriptions s
		JOIN packages p ON p.id = s.package_id
		WHERE s.member_id = $1 AND p.kind = $2 AND s.status = 'active'
		ORDER BY s.end_date DESC NULLS LAST
		LIMIT 1
	`, memberID, kind)
}

func (r *repository) findOne(ctx context.Context, query string, args ...interface{}) (*Subscription, error) {
	var sub Subscription
	err := db.ConnFrom(ctx, r.db).GetContext(ctx, &sub, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *repository) TrainerSlotTaken(ctx context.Context, trainerID int, slot catalog.TimeSlot, excludeID int) (bool, error) {
	return db.Exists(ctx, db.ConnFrom(ctx, r.db), `
		SELECT EXISTS(
			SELECT 1 FROM subscriptions
			WHERE trainer_id = $1 AND time_slot = $2 AND status = 'active' AND id <> $3
		)
	`, trainerID, slot, excludeID)
}

func translateSlotConflict(err error) error {
	if db.IsUniqueViolation(err, trainerSlotConstraint) {
		return apperr.Conflictf("trainer time slot is already taken")
	}
	return err
}
