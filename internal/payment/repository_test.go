package payment

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"gymcore/internal/apperr"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupPaymentMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() { sqlxDB.Close() })
	return sqlxDB, mock
}

var attemptRowColumns = []string{
	"id", "member_id", "amount", "method", "status", "kind", "subscription_id", "sale_id",
	"gateway_ref", "response_code", "created_at", "updated_at", "completed_at",
}

func TestCreateAttempt(t *testing.T) {
	sqlxDB, mock := setupPaymentMock(t)
	repo := NewRepository(sqlxDB)

	memberID, subID := 3, 10
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO payment_attempts (member_id, amount, method, status, kind, subscription_id, sale_id, completed_at)")).
		WithArgs(&memberID, sqlmock.AnyArg(), MethodCash, StatusCompleted, KindNewSubscription, &subID, nil, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(attemptRowColumns).AddRow(
			21, 3, "160000", "cash", "completed", "new_subscription", 10, nil, nil, nil, now, now, now,
		))

	a := &Attempt{
		MemberID:       &memberID,
		Amount:         decimal.NewFromInt(160000),
		Method:         MethodCash,
		Status:         StatusCompleted,
		Kind:           KindNewSubscription,
		SubscriptionID: &subID,
	}
	require.NoError(t, repo.Create(context.Background(), a))
	assert.Equal(t, 21, a.ID)
	assert.NotNil(t, a.CompletedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolve_OnlyFromPending(t *testing.T) {
	sqlxDB, mock := setupPaymentMock(t)
	repo := NewRepository(sqlxDB)
	ctx := context.Background()

	resolve := regexp.QuoteMeta("UPDATE payment_attempts SET status = $2") + ".*" + regexp.QuoteMeta("WHERE id = $1 AND status = 'pending'")
	mock.ExpectExec(resolve).
		WithArgs(21, StatusCompleted, "00", "14012345", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(resolve).
		WithArgs(21, StatusCompleted, "00", "14012345", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	won, err := repo.Resolve(ctx, 21, StatusCompleted, "00", "14012345")
	require.NoError(t, err)
	assert.True(t, won)

	won, err = repo.Resolve(ctx, 21, StatusCompleted, "00", "14012345")
	require.NoError(t, err)
	assert.False(t, won)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetForUpdate_NotFound(t *testing.T) {
	sqlxDB, mock := setupPaymentMock(t)
	repo := NewRepository(sqlxDB)

	mock.ExpectQuery(regexp.QuoteMeta("FROM payment_attempts WHERE id = $1 FOR UPDATE")).
		WithArgs(99).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetForUpdate(context.Background(), 99)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestListPendingBefore(t *testing.T) {
	sqlxDB, mock := setupPaymentMock(t)
	repo := NewRepository(sqlxDB)

	cutoff := time.Now().Add(-10 * time.Minute)
	created := cutoff.Add(-time.Minute)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE status = 'pending' AND created_at < $1")).
		WithArgs(cutoff).
		WillReturnRows(sqlmock.NewRows(attemptRowColumns).
			AddRow(5, 3, "500000", "vnpay", "pending", "new_subscription", 40, nil, nil, nil, created, created, nil))

	attempts, err := repo.ListPendingBefore(context.Background(), cutoff)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, StatusPending, attempts[0].Status)
	require.NotNil(t, attempts[0].SubscriptionID)
	assert.Equal(t, 40, *attempts[0].SubscriptionID)
}

func TestDeletePending(t *testing.T) {
	sqlxDB, mock := setupPaymentMock(t)
	repo := NewRepository(sqlxDB)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM payment_attempts WHERE id = $1 AND status = 'pending'")).
		WithArgs(5).
		WillReturnResult(sqlmock.NewResult(0, 0))

	deleted, err := repo.DeletePending(context.Background(), 5)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestIntentRoundTrip(t *testing.T) {
	sqlxDB, mock := setupPaymentMock(t)
	repo := NewIntentRepository(sqlxDB)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO deferred_upgrades (attempt_id, subscription_id, new_package_id, trainer_id, time_slot)")).
		WithArgs(8, 30, 4, nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"attempt_id", "subscription_id", "new_package_id", "trainer_id", "time_slot", "created_at"}).
			AddRow(8, 30, 4, nil, nil, time.Now()))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM deferred_renewals WHERE attempt_id = $1")).
		WithArgs(8).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM deferred_upgrades WHERE attempt_id = $1")).
		WithArgs(8).
		WillReturnResult(sqlmock.NewResult(0, 1))

	u := &DeferredUpgrade{AttemptID: 8, SubscriptionID: 30, NewPackageID: 4}
	require.NoError(t, repo.CreateUpgrade(ctx, u))
	assert.False(t, u.CreatedAt.IsZero())
	require.NoError(t, repo.DeleteForAttempt(ctx, 8))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRenewal_NotFound(t *testing.T) {
	sqlxDB, mock := setupPaymentMock(t)
	repo := NewIntentRepository(sqlxDB)

	mock.ExpectQuery(regexp.QuoteMeta("FROM deferred_renewals")).WillReturnError(sql.ErrNoRows)

	_, err := repo.GetRenewal(context.Background(), 1)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
