package checkin

import (
	"context"
	"time"

	"gymcore/internal/catalog"
)

type Repository interface {
	// FindOpenVisit returns nil when the member has no open record.
	FindOpenVisit(ctx context.Context, memberID int) (*OpenVisit, error)
	// ListEntitlements row-locks the member's active subscriptions of the given kinds.
	ListEntitlements(ctx context.Context, memberID int, kinds []catalog.Kind) ([]Entitlement, error)
	GetEntitlement(ctx context.Context, subscriptionID int) (*Entitlement, error)
	// ConsumeSession takes one session from an active subscription, expiring it at zero,
	// and returns what is left.
	ConsumeSession(ctx context.Context, subscriptionID int) (int, error)
	InsertRecord(ctx context.Context, rec *AttendanceRecord) error
	// FindOpenBySubscription returns nil when no record is open on the subscription.
	FindOpenBySubscription(ctx context.Context, subscriptionID int) (*AttendanceRecord, error)
	CloseRecord(ctx context.Context, rec *AttendanceRecord) error
	InsertTrainerSession(ctx context.Context, trainerID, subscriptionID int, at time.Time, notes string) error
	ListRecords(ctx context.Context, f RecordFilter) ([]AttendanceRecord, error)
}
