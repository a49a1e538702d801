package catalog

import (
	"context"
	"time"
)

type Repository interface {
	GetPackage(ctx context.Context, id int) (*Package, error)
	ListPackages(ctx context.Context, onlyActive bool) ([]Package, error)
	FindActivePromotion(ctx context.Context, target PromotionTarget, targetID int, now time.Time) (*Promotion, error)
}
