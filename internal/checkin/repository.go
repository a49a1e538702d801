package checkin

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"gymcore/internal/apperr"
	"gymcore/internal/catalog"
	"gymcore/internal/db"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const (
	recordColumns = `id, member_id, subscription_id, outcome, message, check_in_time, check_out_time, session_duration_seconds`

	entitlementSelect = `
		SELECT s.id AS subscription_id, s.member_id, p.name AS package_name, p.kind, s.status,
		       s.end_date, s.remaining_sessions, s.trainer_id, p.start_time_limit, p.end_time_limit,
		       COALESCE(s.allowed_weekdays, p.allowed_weekdays) AS allowed_weekdays
		FROM subscriptions s
		JOIN packages p ON p.id = s.package_id`

	openRecordConstraint = "attendance_one_open_per_member"
)

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindOpenVisit(ctx context.Context, memberID int) (*OpenVisit, error) {
	var v OpenVisit
	err := db.ConnFrom(ctx, r.db).GetContext(ctx, &v, `
		SELECT a.id, a.member_id, a.subscription_id, a.outcome, a.message, a.check_in_time,
		       a.check_out_time, a.session_duration_seconds, p.name AS package_name
		FROM attendance_records a
		LEFT JOIN subscriptions s ON s.id = a.subscription_id
		LEFT JOIN packages p ON p.id = s.package_id
		WHERE a.member_id = $1 AND a.check_out_time IS NULL
		LIMIT 1
	`, memberID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *repository) ListEntitlements(ctx context.Context, memberID int, kinds []catalog.Kind) ([]Entitlement, error) {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}

	var ents []Entitlement
	err := db.ConnFrom(ctx, r.db).SelectContext(ctx, &ents, entitlementSelect+`
		WHERE s.member_id = $1 AND s.status = 'active' AND p.kind = ANY($2)
		ORDER BY s.id
		FOR UPDATE OF s
	`, memberID, pq.Array(names))
	if err != nil {
		return nil, err
	}
	return ents, nil
}

func (r *repository) GetEntitlement(ctx context.Context, subscriptionID int) (*Entitlement, error) {
	var e Entitlement
	err := db.ConnFrom(ctx, r.db).GetContext(ctx, &e, entitlementSelect+`
		WHERE s.id = $1
		FOR UPDATE OF s
	`, subscriptionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFoundf("subscription %d not found", subscriptionID)
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *repository) ConsumeSession(ctx context.Context, subscriptionID int) (int, error) {
	var remaining int
	err := db.ConnFrom(ctx, r.db).GetContext(ctx, &remaining, `
		UPDATE subscriptions
		SET remaining_sessions = remaining_sessions - 1,
		    status = CASE WHEN remaining_sessions - 1 = 0 THEN 'expired' ELSE status END,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'active' AND remaining_sessions > 0
		RETURNING remaining_sessions
	`, subscriptionID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, apperr.InvalidStatef("subscription %d has no sessions left", subscriptionID)
	}
	if err != nil {
		return 0, err
	}
	return remaining, nil
}

func (r *repository) InsertRecord(ctx context.Context, rec *AttendanceRecord) error {
	err := db.ConnFrom(ctx, r.db).QueryRowxContext(ctx, `
		INSERT INTO attendance_records (member_id, subscription_id, outcome, message, check_in_time, check_out_time)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+recordColumns,
		rec.MemberID, rec.SubscriptionID, rec.Outcome, rec.Message, rec.CheckInTime, rec.CheckOutTime,
	).StructScan(rec)
	if db.IsUniqueViolation(err, openRecordConstraint) {
		return apperr.Conflictf("member %d is already checked in", rec.MemberID)
	}
	return err
}

func (r *repository) FindOpenBySubscription(ctx context.Context, subscriptionID int) (*AttendanceRecord, error) {
	var rec AttendanceRecord
	err := db.ConnFrom(ctx, r.db).GetContext(ctx, &rec, `
		SELECT `+recordColumns+`
		FROM attendance_records
		WHERE subscription_id = $1 AND check_out_time IS NULL
		ORDER BY check_in_time DESC
		LIMIT 1
		FOR UPDATE
	`, subscriptionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *repository) CloseRecord(ctx context.Context, rec *AttendanceRecord) error {
	err := db.ConnFrom(ctx, r.db).QueryRowxContext(ctx, `
		UPDATE attendance_records
		SET check_out_time = $2, session_duration_seconds = $3
		WHERE id = $1 AND check_out_time IS NULL
		RETURNING `+recordColumns,
		rec.ID, rec.CheckOutTime, rec.SessionDurationSeconds,
	).StructScan(rec)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.InvalidStatef("attendance record %d is already closed", rec.ID)
	}
	return err
}

func (r *repository) InsertTrainerSession(ctx context.Context, trainerID, subscriptionID int, at time.Time, notes string) error {
	_, err := db.ConnFrom(ctx, r.db).ExecContext(ctx, `
		INSERT INTO trainer_sessions (trainer_id, subscription_id, session_date, notes)
		VALUES ($1, $2, $3, $4)
	`, trainerID, subscriptionID, at, notes)
	return err
}

func (r *repository) ListRecords(ctx context.Context, f RecordFilter) ([]AttendanceRecord, error) {
	var recs []AttendanceRecord
	err := db.ConnFrom(ctx, r.db).SelectContext(ctx, &recs, `
		SELECT `+recordColumns+`
		FROM attendance_records
		WHERE ($1::int IS NULL OR member_id = $1)
		  AND ($2::int IS NULL OR subscription_id = $2)
		  AND check_in_time >= $3 AND check_in_time < $4
		ORDER BY check_in_time DESC
		LIMIT $5
	`, f.MemberID, f.SubscriptionID, f.From, f.To, f.Limit)
	if err != nil {
		return nil, err
	}
	return recs, nil
}
