package subscription

import (
	"context"

	"gymcore/internal/catalog"
)

type Repository interface {
	Create(ctx context.Context, sub *Subscription) error
	GetByID(ctx context.Context, id int) (*Subscription, error)
	GetForUpdate(ctx context.Context, id int) (*Subscription, error)
	Update(ctx context.Context, sub *Subscription) error
	DeletePending(ctx context.Context, id int) (bool, error)
	ListByMember(ctx context.Context, memberID int) ([]Subscription, error)
	HasActiveForPackage(ctx context.Context, memberID, packageID int) (bool, error)
	// FindRenewablePT returns the member's active, else most recent expired, PT subscription for the package.
	FindRenewablePT(ctx context.Context, memberID, packageID int) (*Subscription, error)
	// FindLatestActiveOfKind returns the active subscription of kind with the latest end date.
	FindLatestActiveOfKind(ctx context.Context, memberID int, kind catalog.Kind) (*Subscription, error)
	TrainerSlotTaken(ctx context.Context, trainerID int, slot catalog.TimeSlot, excludeID int) (bool, error)
}
