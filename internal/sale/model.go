package sale

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPendingPayment Status = "pending_payment"
	StatusPaid           Status = "paid"
	StatusPaymentFailed  Status = "payment_failed"
	StatusCancelled      Status = "cancelled"
)

// Sale is a point-of-sale order for products; line items belong to the inventory side.
type Sale struct {
	ID          int             `db:"id" json:"id"`
	MemberID    *int            `db:"member_id" json:"member_id,omitempty"`
	TotalAmount decimal.Decimal `db:"total_amount" json:"total_amount"`
	Status      Status          `db:"status" json:"status"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}
