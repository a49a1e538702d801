package subscription

import (
	"time"

	"gymcore/internal/catalog"
	"gymcore/internal/payment"
	"gymcore/internal/pricing"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusFrozen    Status = "frozen"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusPending: {StatusActive, StatusCancelled},
	StatusActive:  {StatusFrozen, StatusCancelled, StatusExpired},
	StatusFrozen:  {StatusActive},
}

// CanTransition reports whether the lifecycle allows moving from s to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Subscription struct {
	ID                 int               `db:"id" json:"id"`
	MemberID           int               `db:"member_id" json:"member_id"`
	PackageID          int               `db:"package_id" json:"package_id"`
	Status             Status            `db:"status" json:"status"`
	StartDate          *time.Time        `db:"start_date" json:"start_date,omitempty"`
	EndDate            *time.Time        `db:"end_date" json:"end_date,omitempty"`
	RemainingSessions  *int              `db:"remaining_sessions" json:"remaining_sessions,omitempty"`
	TrainerID          *int              `db:"trainer_id" json:"trainer_id,omitempty"`
	TimeSlot           *catalog.TimeSlot `db:"time_slot" json:"time_slot,omitempty"`
	AllowedWeekdays    *string           `db:"allowed_weekdays" json:"allowed_weekdays,omitempty"`
	CancellationReason *string           `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time         `db:"updated_at" json:"updated_at"`
}

func (s *Subscription) Usage() pricing.Usage {
	return pricing.Usage{
		StartDate:         s.StartDate,
		EndDate:           s.EndDate,
		RemainingSessions: s.RemainingSessions,
	}
}

// Settlement points a ledger operation at an already-completed gateway payment
// instead of recording a new one.
type Settlement struct {
	AttemptID int
}

type CreateRequest struct {
	MemberID        int
	PackageID       int
	Method          payment.Method
	TrainerID       *int
	TimeSlot        *catalog.TimeSlot
	AllowedWeekdays *string
}

type RenewRequest struct {
	MemberID        int
	PackageID       int
	Method          payment.Method
	TrainerID       *int
	TimeSlot        *catalog.TimeSlot
	AllowedWeekdays *string
	Settlement      *Settlement
}

type UpgradeRequest struct {
	SubscriptionID int
	NewPackageID   int
	Method         payment.Method
	// TrainerID and TimeSlot default to the current subscription's when upgrading into PT.
	TrainerID  *int
	TimeSlot   *catalog.TimeSlot
	Settlement *Settlement
}

type UpgradeQuote struct {
	SubscriptionID int             `json:"subscription_id"`
	NewPackageID   int             `json:"new_package_id"`
	Credit         decimal.Decimal `json:"credit"`
	NewPrice       decimal.Decimal `json:"new_price"`
	AmountToPay    decimal.Decimal `json:"amount_to_pay"`
}

type RefundResult struct {
	SubscriptionID int             `json:"subscription_id"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	Refunded       decimal.Decimal `json:"refunded"`
	AttemptID      int             `json:"attempt_id"`
}

type SlotAvailability struct {
	TimeSlot  catalog.TimeSlot `json:"time_slot"`
	Label     string           `json:"label"`
	Available bool             `json:"available"`
}
