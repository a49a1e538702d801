package email

import (
	"context"
	"fmt"

	"gymcore/internal/member"
	"gymcore/internal/payment"

	"github.com/shopspring/decimal"
)

type MemberLookup interface {
	GetByID(ctx context.Context, id int) (*member.Member, error)
}

// Notifier turns committed ledger and payment events into member mail.
// Members without an email address are skipped.
type Notifier struct {
	mail    *Service
	members MemberLookup
}

func NewNotifier(mail *Service, members MemberLookup) *Notifier {
	return &Notifier{mail: mail, members: members}
}

func (n *Notifier) PaymentCompleted(ctx context.Context, a *payment.Attempt) error {
	if a.MemberID == nil {
		return nil
	}
	m, err := n.members.GetByID(ctx, *a.MemberID)
	if err != nil {
		return err
	}
	if m.Email == nil || *m.Email == "" {
		return nil
	}

	when := a.UpdatedAt
	if a.CompletedAt != nil {
		when = *a.CompletedAt
	}
	if when.IsZero() {
		when = n.mail.now()
	}
	if err := n.mail.SendPaymentReceipt(ctx, *m.Email, m.FullName, describe(a), a.Amount, a.ID, when); err != nil {
		return err
	}
	if a.Kind == payment.KindNewSubscription && a.SubscriptionID != nil {
		return n.mail.SendSubscriptionActivated(ctx, *m.Email, m.FullName, *a.SubscriptionID)
	}
	return nil
}

func (n *Notifier) RefundIssued(ctx context.Context, memberID, subscriptionID int, amount decimal.Decimal) error {
	m, err := n.members.GetByID(ctx, memberID)
	if err != nil {
		return err
	}
	if m.Email == nil || *m.Email == "" {
		return nil
	}
	return n.mail.SendRefundIssued(ctx, *m.Email, m.FullName, subscriptionID, amount)
}

func describe(a *payment.Attempt) string {
	switch a.Kind {
	case payment.KindNewSubscription:
		return "new subscription"
	case payment.KindRenewal:
		return "subscription renewal"
	case payment.KindUpgrade:
		return "subscription upgrade"
	case payment.KindSale:
		if a.SaleID != nil {
			return fmt.Sprintf("order #%d", *a.SaleID)
		}
		return "order"
	}
	return string(a.Kind)
}
