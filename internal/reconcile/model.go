package reconcile

import (
	"gymcore/internal/payment"

	"github.com/shopspring/decimal"
)

// Checkout is what a caller needs to send the payer to the gateway.
type Checkout struct {
	AttemptID      int             `json:"attempt_id"`
	Amount         decimal.Decimal `json:"amount"`
	PaymentURL     string          `json:"payment_url"`
	SubscriptionID *int            `json:"subscription_id,omitempty"`
	SaleID         *int            `json:"sale_id,omitempty"`
}

// Result of applying one gateway callback. Replayed means the attempt had already
// left pending and nothing was changed.
type Result struct {
	AttemptID int
	Status    payment.Status
	Replayed  bool
}

type ReturnStatus string

const (
	ReturnSuccess   ReturnStatus = "success"
	ReturnCancelled ReturnStatus = "cancelled"
	ReturnFailed    ReturnStatus = "failed"
)

type ReturnResult struct {
	AttemptID    int          `json:"attempt_id,omitempty"`
	Status       ReturnStatus `json:"status"`
	ResponseCode string       `json:"response_code,omitempty"`
}

type SweepReport struct {
	Removed int
	Skipped int
	Failed  int
	// Err is set when the pending attempts could not be listed at all.
	Err error
}
