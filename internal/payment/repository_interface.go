package payment

import (
	"context"
	"time"
)

type Repository interface {
	Create(ctx context.Context, a *Attempt) error
	GetByID(ctx context.Context, id int) (*Attempt, error)
	GetForUpdate(ctx context.Context, id int) (*Attempt, error)
	// Resolve moves a pending attempt to status; false means it was no longer pending.
	Resolve(ctx context.Context, id int, status Status, responseCode, gatewayRef string) (bool, error)
	LinkSubscription(ctx context.Context, id, subscriptionID int) error
	ListBySubscription(ctx context.Context, subscriptionID int) ([]Attempt, error)
	ListPendingBefore(ctx context.Context, cutoff time.Time) ([]Attempt, error)
	DeletePending(ctx context.Context, id int) (bool, error)
}

type IntentRepository interface {
	CreateRenewal(ctx context.Context, r *DeferredRenewal) error
	GetRenewal(ctx context.Context, attemptID int) (*DeferredRenewal, error)
	CreateUpgrade(ctx context.Context, u *DeferredUpgrade) error
	GetUpgrade(ctx context.Context, attemptID int) (*DeferredUpgrade, error)
	DeleteForAttempt(ctx context.Context, attemptID int) error
}
