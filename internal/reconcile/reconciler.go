package reconcile

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"gymcore/internal/apperr"
	"gymcore/internal/catalog"
	"gymcore/internal/db"
	"gymcore/internal/logger"
	"gymcore/internal/metrics"
	"gymcore/internal/payment"
	"gymcore/internal/sale"
	"gymcore/internal/subscription"

	"github.com/shopspring/decimal"
)

// ErrAmountMismatch is returned when a callback reports a different amount than the attempt was created for.
var ErrAmountMismatch = errors.New("payment amount mismatch")

// Ledger is the part of the subscription ledger the reconciler stages and replays through.
type Ledger interface {
	Get(ctx context.Context, id int) (*subscription.Subscription, error)
	StagePending(ctx context.Context, req subscription.CreateRequest) (*subscription.Subscription, error)
	ActivatePending(ctx context.Context, id int) (*subscription.Subscription, error)
	AbandonPending(ctx context.Context, id int) error
	DiscardPending(ctx context.Context, id int) error
	CheckRenewable(ctx context.Context, memberID, packageID int) error
	Renew(ctx context.Context, req subscription.RenewRequest) (*subscription.Subscription, error)
	QuoteUpgrade(ctx context.Context, id, newPackageID int) (*subscription.UpgradeQuote, error)
	Upgrade(ctx context.Context, req subscription.UpgradeRequest) (*subscription.Subscription, error)
}

type PackageSource interface {
	GetPackage(ctx context.Context, id int) (*catalog.Package, error)
}

type Pricer interface {
	FinalPrice(ctx context.Context, pkg *catalog.Package, now time.Time) (decimal.Decimal, error)
}

type Gateway interface {
	PaymentURL(a *payment.Attempt, orderInfo, clientIP string, now time.Time) (string, error)
	Verify(params url.Values) (*payment.Notification, error)
}

type StockDeducter interface {
	Deduct(ctx context.Context, saleID int) error
}

// Notifier is told about completed payments once they are committed.
type Notifier interface {
	PaymentCompleted(ctx context.Context, a *payment.Attempt) error
}

// Reconciler turns gateway payments into ledger changes exactly once.
type Reconciler interface {
	BeginNewSubscription(ctx context.Context, req subscription.CreateRequest, clientIP string) (*Checkout, error)
	BeginRenewal(ctx context.Context, req subscription.RenewRequest, clientIP string) (*Checkout, error)
	BeginUpgrade(ctx context.Context, req subscription.UpgradeRequest, clientIP string) (*Checkout, error)
	BeginSale(ctx context.Context, saleID int, clientIP string) (*Checkout, error)

	OnNotification(ctx context.Context, params url.Values) (*Result, error)
	OnReturn(ctx context.Context, params url.Values) (*ReturnResult, error)
	SweepExpired(ctx context.Context, now time.Time) SweepReport
}

type Deps struct {
	Tx       db.Transactor
	Payments payment.Repository
	Intents  payment.IntentRepository
	Ledger   Ledger
	Packages PackageSource
	Pricer   Pricer
	Sales    sale.Repository
	Stock    StockDeducter
	Gateway  Gateway
	Notifier Notifier
	// PendingTTL is how long an attempt may stay pending before the sweep removes it.
	PendingTTL time.Duration
}

type reconciler struct {
	Deps
	now func() time.Time
}

func New(deps Deps) Reconciler {
	if deps.PendingTTL <= 0 {
		deps.PendingTTL = 10 * time.Minute
	}
	return &reconciler{Deps: deps, now: time.Now}
}

func (r *reconciler) BeginNewSubscription(ctx context.Context, req subscription.CreateRequest, clientIP string) (*Checkout, error) {
	req.Method = payment.MethodVNPay

	var out *Checkout
	err := r.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		sub, err := r.Ledger.StagePending(ctx, req)
		if err != nil {
			return err
		}
		pkg, err := r.Packages.GetPackage(ctx, sub.PackageID)
		if err != nil {
			return err
		}
		price, err := r.Pricer.FinalPrice(ctx, pkg, r.now())
		if err != nil {
			return err
		}
		a, err := r.createPending(ctx, req.MemberID, payment.KindNewSubscription, price, &sub.ID, nil)
		if err != nil {
			return err
		}
		out, err = r.checkout(a, "Subscription "+pkg.Name, clientIP)
		if err != nil {
			return err
		}
		out.SubscriptionID = &sub.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Info("payment started", "attempt_id", out.AttemptID, "kind", payment.KindNewSubscription, "subscription_id", *out.SubscriptionID)
	return out, nil
}

func (r *reconciler) BeginRenewal(ctx context.Context, req subscription.RenewRequest, clientIP string) (*Checkout, error) {
	var out *Checkout
	err := r.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := r.Ledger.CheckRenewable(ctx, req.MemberID, req.PackageID); err != nil {
			return err
		}
		pkg, err := r.Packages.GetPackage(ctx, req.PackageID)
		if err != nil {
			return err
		}
		price, err := r.Pricer.FinalPrice(ctx, pkg, r.now())
		if err != nil {
			return err
		}
		a, err := r.createPending(ctx, req.MemberID, payment.KindRenewal, price, nil, nil)
		if err != nil {
			return err
		}
		err = r.Intents.CreateRenewal(ctx, &payment.DeferredRenewal{
			AttemptID:       a.ID,
			MemberID:        req.MemberID,
			PackageID:       pkg.ID,
			TrainerID:       req.TrainerID,
			TimeSlot:        req.TimeSlot,
			AllowedWeekdays: req.AllowedWeekdays,
		})
		if err != nil {
			return err
		}
		out, err = r.checkout(a, "Renewal "+pkg.Name, clientIP)
		return err
	})
	if err != nil {
		return nil, err
	}
	logger.Info("payment started", "attempt_id", out.AttemptID, "kind", payment.KindRenewal, "member_id", req.MemberID)
	return out, nil
}

func (r *reconciler) BeginUpgrade(ctx context.Context, req subscription.UpgradeRequest, clientIP string) (*Checkout, error) {
	var out *Checkout
	err := r.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		sub, err := r.Ledger.Get(ctx, req.SubscriptionID)
		if err != nil {
			return err
		}
		q, err := r.Ledger.QuoteUpgrade(ctx, req.SubscriptionID, req.NewPackageID)
		if err != nil {
			return err
		}
		if !q.AmountToPay.IsPositive() {
			return apperr.Validationf("upgrade of subscription %d is fully covered by its credit, nothing to pay online", sub.ID)
		}
		a, err := r.createPending(ctx, sub.MemberID, payment.KindUpgrade, q.AmountToPay, nil, nil)
		if err != nil {
			return err
		}
		err = r.Intents.CreateUpgrade(ctx, &payment.DeferredUpgrade{
			AttemptID:      a.ID,
			SubscriptionID: sub.ID,
			NewPackageID:   req.NewPackageID,
			TrainerID:      req.TrainerID,
			TimeSlot:       req.TimeSlot,
		})
		if err != nil {
			return err
		}
		out, err = r.checkout(a, fmt.Sprintf("Upgrade subscription %d", sub.ID), clientIP)
		return err
	})
	if err != nil {
		return nil, err
	}
	logger.Info("payment started", "attempt_id", out.AttemptID, "kind", payment.KindUpgrade, "subscription_id", req.SubscriptionID)
	return out, nil
}

func (r *reconciler) BeginSale(ctx context.Context, saleID int, clientIP string) (*Checkout, error) {
	var out *Checkout
	err := r.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		s, err := r.Sales.GetForUpdate(ctx, saleID)
		if err != nil {
			return err
		}
		if s.Status != sale.StatusPendingPayment {
			return apperr.InvalidStatef("sale %d is %s", s.ID, s.Status)
		}
		if !s.TotalAmount.IsPositive() {
			return apperr.Validationf("sale %d has nothing to pay", s.ID)
		}
		memberID := 0
		if s.MemberID != nil {
			memberID = *s.MemberID
		}
		a, err := r.createPending(ctx, memberID, payment.KindSale, s.TotalAmount, nil, &s.ID)
		if err != nil {
			return err
		}
		out, err = r.checkout(a, fmt.Sprintf("Sale %d", s.ID), clientIP)
		if err != nil {
			return err
		}
		out.SaleID = &s.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Info("payment started", "attempt_id", out.AttemptID, "kind", payment.KindSale, "sale_id", saleID)
	return out, nil
}

func (r *reconciler) createPending(ctx context.Context, memberID int, kind payment.Kind, amount decimal.Decimal, subscriptionID, saleID *int) (*payment.Attempt, error) {
	a := &payment.Attempt{
		Amount:         amount,
		Method:         payment.MethodVNPay,
		Status:         payment.StatusPending,
		Kind:           kind,
		SubscriptionID: subscriptionID,
		SaleID:         saleID,
	}
	if memberID > 0 {
		a.MemberID = &memberID
	}
	if err := r.Payments.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (r *reconciler) checkout(a *payment.Attempt, orderInfo, clientIP string) (*Checkout, error) {
	u, err := r.Gateway.PaymentURL(a, orderInfo, clientIP, r.now())
	if err != nil {
		return nil, err
	}
	return &Checkout{AttemptID: a.ID, Amount: a.Amount, PaymentURL: u}, nil
}

func (r *reconciler) OnNotification(ctx context.Context, params url.Values) (*Result, error) {
	n, err := r.Gateway.Verify(params)
	if err != nil {
		logger.Warn("rejected payment notification", "error", err)
		return nil, err
	}
	return r.apply(ctx, n)
}

// OnReturn runs the browser-return callback through the same guarded path as the
// IPN, so whichever arrives first applies the payment.
func (r *reconciler) OnReturn(ctx context.Context, params url.Values) (*ReturnResult, error) {
	n, err := r.Gateway.Verify(params)
	if err != nil {
		return &ReturnResult{Status: ReturnFailed}, err
	}

	res := &ReturnResult{AttemptID: n.AttemptID, ResponseCode: n.ResponseCode}
	switch {
	case n.Succeeded():
		res.Status = ReturnSuccess
	case n.Cancelled():
		res.Status = ReturnCancelled
	default:
		res.Status = ReturnFailed
	}

	if _, err := r.apply(ctx, n); err != nil {
		logger.Warn("browser return could not apply payment", "attempt_id", n.AttemptID, "error", err)
		if n.Succeeded() {
			res.Status = ReturnFailed
		}
		return res, err
	}
	return res, nil
}

// apply transitions the attempt out of pending and runs its side effects in the
// same transaction. An attempt that is no longer pending is left untouched.
func (r *reconciler) apply(ctx context.Context, n *payment.Notification) (*Result, error) {
	var res *Result
	var attempt *payment.Attempt
	err := r.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		a, err := r.Payments.GetForUpdate(ctx, n.AttemptID)
		if err != nil {
			return err
		}
		if a.Status != payment.StatusPending {
			res = &Result{AttemptID: a.ID, Status: a.Status, Replayed: true}
			return nil
		}
		if !n.Amount.IsZero() && !n.Amount.Equal(a.Amount) {
			return fmt.Errorf("attempt %d expects %s, gateway reported %s: %w", a.ID, a.Amount, n.Amount, ErrAmountMismatch)
		}

		status := payment.StatusFailed
		if n.Succeeded() {
			status = payment.StatusCompleted
		}
		ok, err := r.Payments.Resolve(ctx, a.ID, status, n.ResponseCode, n.TransactionNo)
		if err != nil {
			return err
		}
		if !ok {
			res = &Result{AttemptID: a.ID, Status: a.Status, Replayed: true}
			return nil
		}
		a.Status = status

		if status == payment.StatusCompleted {
			err = r.complete(ctx, a)
		} else {
			err = r.fail(ctx, a)
		}
		if err != nil {
			return err
		}
		res = &Result{AttemptID: a.ID, Status: status}
		attempt = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	if res.Replayed {
		logger.Info("payment callback replayed", "attempt_id", res.AttemptID, "status", res.Status)
		return res, nil
	}

	metrics.RecordPayment(string(attempt.Kind), string(attempt.Status))
	logger.Info("payment resolved", "attempt_id", attempt.ID, "kind", attempt.Kind, "status", attempt.Status, "response_code", n.ResponseCode)
	if attempt.Status == payment.StatusCompleted {
		r.afterCompleted(ctx, attempt)
	}
	return res, nil
}

func (r *reconciler) complete(ctx context.Context, a *payment.Attempt) error {
	settlement := &subscription.Settlement{AttemptID: a.ID}

	switch a.Kind {
	case payment.KindNewSubscription:
		if a.SubscriptionID == nil {
			return fmt.Errorf("attempt %d has no staged subscription", a.ID)
		}
		_, err := r.Ledger.ActivatePending(ctx, *a.SubscriptionID)
		return err

	case payment.KindRenewal:
		intent, err := r.Intents.GetRenewal(ctx, a.ID)
		if err != nil {
			return err
		}
		_, err = r.Ledger.Renew(ctx, subscription.RenewRequest{
			MemberID:        intent.MemberID,
			PackageID:       intent.PackageID,
			Method:          payment.MethodVNPay,
			TrainerID:       intent.TrainerID,
			TimeSlot:        intent.TimeSlot,
			AllowedWeekdays: intent.AllowedWeekdays,
			Settlement:      settlement,
		})
		if err != nil {
			return err
		}
		return r.Intents.DeleteForAttempt(ctx, a.ID)

	case payment.KindUpgrade:
		intent, err := r.Intents.GetUpgrade(ctx, a.ID)
		if err != nil {
			return err
		}
		_, err = r.Ledger.Upgrade(ctx, subscription.UpgradeRequest{
			SubscriptionID: intent.SubscriptionID,
			NewPackageID:   intent.NewPackageID,
			Method:         payment.MethodVNPay,
			TrainerID:      intent.TrainerID,
			TimeSlot:       intent.TimeSlot,
			Settlement:     settlement,
		})
		if err != nil {
			return err
		}
		return r.Intents.DeleteForAttempt(ctx, a.ID)

	case payment.KindSale:
		if a.SaleID == nil {
			return fmt.Errorf("attempt %d has no sale", a.ID)
		}
		_, err := r.Sales.TransitionFrom(ctx, *a.SaleID, sale.StatusPendingPayment, sale.StatusPaid)
		return err
	}
	return nil
}

func (r *reconciler) fail(ctx context.Context, a *payment.Attempt) error {
	switch a.Kind {
	case payment.KindNewSubscription:
		if a.SubscriptionID != nil {
			return r.Ledger.AbandonPending(ctx, *a.SubscriptionID)
		}
	case payment.KindRenewal, payment.KindUpgrade:
		return r.Intents.DeleteForAttempt(ctx, a.ID)
	case payment.KindSale:
		if a.SaleID != nil {
			_, err := r.Sales.TransitionFrom(ctx, *a.SaleID, sale.StatusPendingPayment, sale.StatusPaymentFailed)
			return err
		}
	}
	return nil
}

// afterCompleted runs post-commit effects. Their failures are logged and never undo the payment.
func (r *reconciler) afterCompleted(ctx context.Context, a *payment.Attempt) {
	if a.Kind == payment.KindSale && a.SaleID != nil && r.Stock != nil {
		if err := r.Stock.Deduct(ctx, *a.SaleID); err != nil {
			logger.Error("stock deduction not queued", "sale_id", *a.SaleID, "error", err)
		}
	}
	if r.Notifier != nil {
		if err := r.Notifier.PaymentCompleted(ctx, a); err != nil {
			logger.Error("payment receipt not queued", "attempt_id", a.ID, "error", err)
		}
	}
}

// SweepExpired removes attempts still pending after the TTL together with what they staged.
// Each attempt is handled in its own transaction; a failure is logged and the sweep moves on.
func (r *reconciler) SweepExpired(ctx context.Context, now time.Time) SweepReport {
	var report SweepReport

	stale, err := r.Payments.ListPendingBefore(ctx, now.Add(-r.PendingTTL))
	if err != nil {
		logger.Error("sweep could not list pending payments", "error", err)
		report.Err = err
		return report
	}

	for i := range stale {
		a := stale[i]
		removed, err := r.sweepOne(ctx, &a)
		switch {
		case err != nil:
			report.Failed++
			logger.Error("sweep failed for payment attempt", "attempt_id", a.ID, "error", err)
		case removed:
			report.Removed++
		default:
			report.Skipped++
		}
	}

	metrics.RecordSweep(report.Removed, report.Failed)
	if report.Removed > 0 || report.Failed > 0 {
		logger.Info("pending payments swept", "removed", report.Removed, "failed", report.Failed, "skipped", report.Skipped)
	}
	return report
}

func (r *reconciler) sweepOne(ctx context.Context, stale *payment.Attempt) (bool, error) {
	removed := false
	err := r.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		a, err := r.Payments.GetForUpdate(ctx, stale.ID)
		if err != nil {
			return err
		}
		if a.Status != payment.StatusPending {
			return nil
		}

		if err := r.Intents.DeleteForAttempt(ctx, a.ID); err != nil {
			return err
		}
		deleted, err := r.Payments.DeletePending(ctx, a.ID)
		if err != nil || !deleted {
			return err
		}
		if a.Kind == payment.KindNewSubscription && a.SubscriptionID != nil {
			if err := r.Ledger.DiscardPending(ctx, *a.SubscriptionID); err != nil {
				return err
			}
		}
		if a.Kind == payment.KindSale && a.SaleID != nil {
			if _, err := r.Sales.TransitionFrom(ctx, *a.SaleID, sale.StatusPendingPayment, sale.StatusCancelled); err != nil {
				return err
			}
		}
		removed = true
		return nil
	})
	return removed, err
}
