package pricing

import (
	"context"
	"time"

	"gymcore/internal/apperr"
	"gymcore/internal/catalog"

	"github.com/shopspring/decimal"
)

const (
	currencyPlaces = 2
	// Refunds and upgrade credits are settled in multiples of 100.
	settlementPlaces = -2
)

var hundred = decimal.NewFromInt(100)

type PromotionFinder interface {
	FindActivePromotion(ctx context.Context, target catalog.PromotionTarget, targetID int, now time.Time) (*catalog.Promotion, error)
}

type Calculator struct {
	promotions PromotionFinder
}

func NewCalculator(promotions PromotionFinder) *Calculator {
	return &Calculator{promotions: promotions}
}

type Quote struct {
	PackageID       int             `json:"package_id"`
	BasePrice       decimal.Decimal `json:"base_price"`
	PromotionID     *int            `json:"promotion_id,omitempty"`
	PromotionName   string          `json:"promotion_name,omitempty"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	Discount        decimal.Decimal `json:"discount"`
	FinalPrice      decimal.Decimal `json:"final_price"`
}

// Quote breaks down the price a member pays for pkg at now.
func (c *Calculator) Quote(ctx context.Context, pkg *catalog.Package, now time.Time) (*Quote, error) {
	q := &Quote{
		PackageID:       pkg.ID,
		BasePrice:       pkg.Price,
		DiscountPercent: decimal.Zero,
		Discount:        decimal.Zero,
		FinalPrice:      pkg.Price,
	}

	promo, err := c.promotions.FindActivePromotion(ctx, catalog.TargetPackage, pkg.ID, now)
	if err != nil {
		return nil, err
	}
	if promo == nil || !promo.ActiveAt(now) {
		return q, nil
	}

	q.PromotionID = &promo.ID
	q.PromotionName = promo.Name
	q.DiscountPercent = promo.DiscountPercent
	q.FinalPrice = ApplyDiscount(pkg.Price, promo.DiscountPercent)
	q.Discount = pkg.Price.Sub(q.FinalPrice)
	return q, nil
}

func (c *Calculator) FinalPrice(ctx context.Context, pkg *catalog.Package, now time.Time) (decimal.Decimal, error) {
	q, err := c.Quote(ctx, pkg, now)
	if err != nil {
		return decimal.Zero, err
	}
	return q.FinalPrice, nil
}

// ApplyDiscount returns price × (1 − percent/100), never negative.
func ApplyDiscount(price, percent decimal.Decimal) decimal.Decimal {
	factor := decimal.NewFromInt(1).Sub(percent.Div(hundred))
	amount := price.Mul(factor).Round(currencyPlaces)
	if amount.IsNegative() {
		return decimal.Zero
	}
	return amount
}

// Usage is the consumed state of a subscription that proration needs.
type Usage struct {
	StartDate         *time.Time
	EndDate           *time.Time
	RemainingSessions *int
}

// ProrateRefund values the unused part of a subscription against what was paid for it.
func ProrateRefund(usage Usage, pkg *catalog.Package, paid decimal.Decimal, now time.Time) (decimal.Decimal, error) {
	return prorate(usage, pkg, paid, now)
}

// ProrateUpgradeCredit values the unused part of the current package toward a new one.
func ProrateUpgradeCredit(usage Usage, pkg *catalog.Package, paid decimal.Decimal, now time.Time) (decimal.Decimal, error) {
	return prorate(usage, pkg, paid, now)
}

// UpgradeAmount is what is still owed after applying credit: max(0, newPrice − credit).
func UpgradeAmount(newPrice, credit decimal.Decimal) decimal.Decimal {
	return decimal.Max(decimal.Zero, newPrice.Sub(credit))
}

func prorate(usage Usage, pkg *catalog.Package, paid decimal.Decimal, now time.Time) (decimal.Decimal, error) {
	terms, err := pkg.Terms()
	if err != nil {
		return decimal.Zero, apperr.InvalidStatef("cannot prorate: %v", err)
	}
	if !paid.IsPositive() {
		return decimal.Zero, nil
	}

	switch t := terms.(type) {
	case catalog.TimeBoundTerms:
		start := now
		if usage.StartDate != nil {
			start = *usage.StartDate
		}
		return prorateDays(t.Duration.DaysFrom(start), usage.EndDate, paid, now)
	case catalog.PTTerms:
		return prorateSessions(t.Sessions, usage.RemainingSessions, paid)
	case catalog.VisitTerms:
		return prorateSessions(t.Sessions, usage.RemainingSessions, paid)
	}
	return decimal.Zero, apperr.InvalidStatef("cannot prorate package kind %q", pkg.Kind)
}

func prorateSessions(total int, remaining *int, paid decimal.Decimal) (decimal.Decimal, error) {
	if total <= 0 {
		return decimal.Zero, apperr.InvalidStatef("package has no sessions to prorate")
	}
	units := 0
	if remaining != nil {
		units = min(max(*remaining, 0), total)
	}

	perUnit := paid.DivRound(decimal.NewFromInt(int64(total)), currencyPlaces)
	amount := decimal.Min(perUnit.Mul(decimal.NewFromInt(int64(units))), paid)
	return amount.Round(settlementPlaces), nil
}

func prorateDays(totalDays int, end *time.Time, paid decimal.Decimal, now time.Time) (decimal.Decimal, error) {
	if totalDays <= 0 {
		return decimal.Zero, apperr.InvalidStatef("package has no duration to prorate")
	}
	remaining := 0
	if end != nil {
		remaining = max(0, DaysBetween(now, *end))
	}

	perDay := paid.DivRound(decimal.NewFromInt(int64(totalDays)), currencyPlaces)
	amount := decimal.Min(perDay.Mul(decimal.NewFromInt(int64(remaining))), paid)
	return amount.Round(settlementPlaces), nil
}

// DaysBetween counts whole 24-hour periods from a to b, truncated toward zero.
func DaysBetween(a, b time.Time) int {
	return int(b.Sub(a) / (24 * time.Hour))
}
