package payment

import (
	"time"

	"gymcore/internal/catalog"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

type Kind string

const (
	KindNewSubscription Kind = "new_subscription"
	KindRenewal         Kind = "renewal"
	KindUpgrade         Kind = "upgrade"
	KindSale            Kind = "sale"
	KindRefund          Kind = "refund"
)

type Method string

const (
	MethodCash         Method = "cash"
	MethodCard         Method = "card"
	MethodBankTransfer Method = "bank_transfer"
	MethodVNPay        Method = "vnpay"
)

// Deferred reports whether the method settles asynchronously through the gateway.
func (m Method) Deferred() bool {
	return m == MethodVNPay
}

func (m Method) Valid() bool {
	switch m {
	case MethodCash, MethodCard, MethodBankTransfer, MethodVNPay:
		return true
	}
	return false
}

// Attempt is one financial transaction. Refunds carry a negative amount.
type Attempt struct {
	ID             int             `db:"id" json:"id"`
	MemberID       *int            `db:"member_id" json:"member_id,omitempty"`
	Amount         decimal.Decimal `db:"amount" json:"amount"`
	Method         Method          `db:"method" json:"method"`
	Status         Status          `db:"status" json:"status"`
	Kind           Kind            `db:"kind" json:"kind"`
	SubscriptionID *int            `db:"subscription_id" json:"subscription_id,omitempty"`
	SaleID         *int            `db:"sale_id" json:"sale_id,omitempty"`
	GatewayRef     *string         `db:"gateway_ref" json:"gateway_ref,omitempty"`
	ResponseCode   *string         `db:"response_code" json:"response_code,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
	CompletedAt    *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
}

// DeferredRenewal holds what is needed to replay a renewal once its attempt completes.
type DeferredRenewal struct {
	AttemptID       int               `db:"attempt_id" json:"attempt_id"`
	MemberID        int               `db:"member_id" json:"member_id"`
	PackageID       int               `db:"package_id" json:"package_id"`
	TrainerID       *int              `db:"trainer_id" json:"trainer_id,omitempty"`
	TimeSlot        *catalog.TimeSlot `db:"time_slot" json:"time_slot,omitempty"`
	AllowedWeekdays *string           `db:"allowed_weekdays" json:"allowed_weekdays,omitempty"`
	CreatedAt       time.Time         `db:"created_at" json:"created_at"`
}

// DeferredUpgrade holds what is needed to replay an upgrade once its attempt completes.
type DeferredUpgrade struct {
	AttemptID      int               `db:"attempt_id" json:"attempt_id"`
	SubscriptionID int               `db:"subscription_id" json:"subscription_id"`
	NewPackageID   int               `db:"new_package_id" json:"new_package_id"`
	TrainerID      *int              `db:"trainer_id" json:"trainer_id,omitempty"`
	TimeSlot       *catalog.TimeSlot `db:"time_slot" json:"time_slot,omitempty"`
	CreatedAt      time.Time         `db:"created_at" json:"created_at"`
}
