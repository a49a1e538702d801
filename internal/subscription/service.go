package subscription

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gymcore/internal/apperr"
	"gymcore/internal/catalog"
	"gymcore/internal/db"
	"gymcore/internal/logger"
	"gymcore/internal/member"
	"gymcore/internal/metrics"
	"gymcore/internal/payment"
	"gymcore/internal/pricing"

	"github.com/shopspring/decimal"
)

type PackageSource interface {
	GetPackage(ctx context.Context, id int) (*catalog.Package, error)
}

type MemberLocker interface {
	LockForUpdate(ctx context.Context, id int) (*member.Member, error)
}

type PaymentRecorder interface {
	Create(ctx context.Context, a *payment.Attempt) error
	LinkSubscription(ctx context.Context, id, subscriptionID int) error
	ListBySubscription(ctx context.Context, subscriptionID int) ([]payment.Attempt, error)
}

type TrainerDirectory interface {
	IsTrainer(ctx context.Context, userID int) (bool, error)
}

type Pricer interface {
	FinalPrice(ctx context.Context, pkg *catalog.Package, now time.Time) (decimal.Decimal, error)
}

// RefundNotifier is told about refunds after they are committed.
type RefundNotifier interface {
	RefundIssued(ctx context.Context, memberID, subscriptionID int, amount decimal.Decimal) error
}

type Option func(*service)

func WithRefundNotifier(n RefundNotifier) Option {
	return func(s *service) {
		s.refunds = n
	}
}

// Service is the subscription ledger: every lifecycle transition of a purchased package goes through it.
type Service interface {
	Get(ctx context.Context, id int) (*Subscription, error)
	ListByMember(ctx context.Context, memberID int) ([]Subscription, error)

	Create(ctx context.Context, req CreateRequest) (*Subscription, error)
	Renew(ctx context.Context, req RenewRequest) (*Subscription, error)
	Freeze(ctx context.Context, id, days int) (*Subscription, error)
	Unfreeze(ctx context.Context, id int) (*Subscription, error)
	Cancel(ctx context.Context, id int, reason string) (*Subscription, error)
	Refund(ctx context.Context, id int, method payment.Method) (*RefundResult, error)
	Upgrade(ctx context.Context, req UpgradeRequest) (*Subscription, error)
	Transfer(ctx context.Context, id, toMemberID int) (*Subscription, error)

	QuoteUpgrade(ctx context.Context, id, newPackageID int) (*UpgradeQuote, error)
	AvailableTimeSlots(ctx context.Context, packageID int) ([]SlotAvailability, error)
	CheckRenewable(ctx context.Context, memberID, packageID int) error

	StagePending(ctx context.Context, req CreateRequest) (*Subscription, error)
	ActivatePending(ctx context.Context, id int) (*Subscription, error)
	AbandonPending(ctx context.Context, id int) error
	DiscardPending(ctx context.Context, id int) error
}

type service struct {
	tx       db.Transactor
	subs     Repository
	packages PackageSource
	members  MemberLocker
	payments PaymentRecorder
	trainers TrainerDirectory
	pricer   Pricer
	refunds  RefundNotifier
	now      func() time.Time
}

func NewService(
	tx db.Transactor,
	subs Repository,
	packages PackageSource,
	members MemberLocker,
	payments PaymentRecorder,
	trainers TrainerDirectory,
	pricer Pricer,
	opts ...Option,
) Service {
	s := &service{
		tx:       tx,
		subs:     subs,
		packages: packages,
		members:  members,
		payments: payments,
		trainers: trainers,
		pricer:   pricer,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) Get(ctx context.Context, id int) (*Subscription, error) {
	return s.subs.GetByID(ctx, id)
}

func (s *service) ListByMember(ctx context.Context, memberID int) ([]Subscription, error) {
	return s.subs.ListByMember(ctx, memberID)
}

func (s *service) Create(ctx context.Context, req CreateRequest) (*Subscription, error) {
	if err := immediateMethod(req.Method, nil); err != nil {
		return nil, err
	}

	var created *Subscription
	var kind catalog.Kind
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		pkg, err := s.prepareNew(ctx, req)
		if err != nil {
			return err
		}
		kind = pkg.Kind
		now := s.now()

		sub := &Subscription{MemberID: req.MemberID, PackageID: pkg.ID, Status: StatusActive}
		if err := s.assign(ctx, sub, pkg, req.TrainerID, req.TimeSlot, req.AllowedWeekdays); err != nil {
			return err
		}
		if err := schedule(sub, pkg, now); err != nil {
			return err
		}
		if err := s.subs.Create(ctx, sub); err != nil {
			return err
		}

		price, err := s.pricer.FinalPrice(ctx, pkg, now)
		if err != nil {
			return err
		}
		if err := s.settle(ctx, sub, payment.KindNewSubscription, price, req.Method, nil); err != nil {
			return err
		}
		created = sub
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordSubscriptionOp("create", string(kind))
	logger.Info("subscription created", "subscription_id", created.ID, "member_id", created.MemberID, "package_id", created.PackageID)
	return created, nil
}

func (s *service) StagePending(ctx context.Context, req CreateRequest) (*Subscription, error) {
	var staged *Subscription
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		pkg, err := s.prepareNew(ctx, req)
		if err != nil {
			return err
		}
		sub := &Subscription{MemberID: req.MemberID, PackageID: pkg.ID, Status: StatusPending}
		if err := s.assign(ctx, sub, pkg, req.TrainerID, req.TimeSlot, req.AllowedWeekdays); err != nil {
			return err
		}
		if err := s.subs.Create(ctx, sub); err != nil {
			return err
		}
		staged = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Info("subscription staged", "subscription_id", staged.ID, "member_id", staged.MemberID)
	return staged, nil
}

func (s *service) ActivatePending(ctx context.Context, id int) (*Subscription, error) {
	var activated *Subscription
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		staged, err := s.subs.GetByID(ctx, id)
		if err != nil {
			return err
		}
		// Member before subscription, the same lock order as create.
		if _, err := s.members.LockForUpdate(ctx, staged.MemberID); err != nil {
			return err
		}
		sub, err := s.subs.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := requireTransition(sub, StatusActive); err != nil {
			return err
		}
		pkg, err := s.packages.GetPackage(ctx, sub.PackageID)
		if err != nil {
			return err
		}
		if pkg.Kind != catalog.KindPerVisit {
			exists, err := s.subs.HasActiveForPackage(ctx, sub.MemberID, pkg.ID)
			if err != nil {
				return err
			}
			if exists {
				return apperr.Conflictf("member %d already holds an active %q subscription", sub.MemberID, pkg.Name)
			}
		}
		if err := schedule(sub, pkg, s.now()); err != nil {
			return err
		}
		if err := s.ensureSlotFree(ctx, sub); err != nil {
			return err
		}
		sub.Status = StatusActive
		if err := s.subs.Update(ctx, sub); err != nil {
			return err
		}
		activated = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordSubscriptionOp("activate", "")
	logger.Info("subscription activated", "subscription_id", id)
	return activated, nil
}

func (s *service) AbandonPending(ctx context.Context, id int) error {
	return s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		sub, err := s.subs.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if sub.Status != StatusPending {
			return nil
		}
		reason := "payment failed"
		sub.Status = StatusCancelled
		sub.CancellationReason = &reason
		return s.subs.Update(ctx, sub)
	})
}

func (s *service) DiscardPending(ctx context.Context, id int) error {
	deleted, err := s.subs.DeletePending(ctx, id)
	if err != nil {
		return err
	}
	if deleted {
		logger.Info("pending subscription discarded", "subscription_id", id)
	}
	return nil
}

func (s *service) Renew(ctx context.Context, req RenewRequest) (*Subscription, error) {
	if err := immediateMethod(req.Method, req.Settlement); err != nil {
		return nil, err
	}

	var renewed *Subscription
	var kind catalog.Kind
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.members.LockForUpdate(ctx, req.MemberID); err != nil {
			return err
		}
		pkg, err := s.packages.GetPackage(ctx, req.PackageID)
		if err != nil {
			return err
		}
		terms, err := packageTerms(pkg)
		if err != nil {
			return err
		}
		kind = pkg.Kind
		now := s.now()

		var sub *Subscription
		switch t := terms.(type) {
		case catalog.PTTerms:
			sub, err = s.renewPT(ctx, req, pkg, t, now)
		case catalog.TimeBoundTerms:
			sub, err = s.renewTimeBound(ctx, req, pkg, t)
		case catalog.VisitTerms:
			sub, err = s.newActive(ctx, req.MemberID, pkg, req.TrainerID, req.TimeSlot, req.AllowedWeekdays, now)
		}
		if err != nil {
			return err
		}

		price, err := s.pricer.FinalPrice(ctx, pkg, now)
		if err != nil {
			return err
		}
		if err := s.settle(ctx, sub, payment.KindRenewal, price, req.Method, req.Settlement); err != nil {
			return err
		}
		renewed = sub
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordSubscriptionOp("renew", string(kind))
	logger.Info("subscription renewed", "subscription_id", renewed.ID, "member_id", renewed.MemberID, "package_id", renewed.PackageID)
	return renewed, nil
}

// renewPT accumulates sessions and validity onto the member's existing subscription
// for the same PT package, or starts a new one when there is none.
func (s *service) renewPT(ctx context.Context, req RenewRequest, pkg *catalog.Package, t catalog.PTTerms, now time.Time) (*Subscription, error) {
	existing, err := s.subs.FindRenewablePT(ctx, req.MemberID, pkg.ID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return s.newActive(ctx, req.MemberID, pkg, req.TrainerID, req.TimeSlot, req.AllowedWeekdays, now)
	}

	remaining := t.Sessions
	if existing.RemainingSessions != nil {
		remaining += *existing.RemainingSessions
	}
	existing.RemainingSessions = &remaining

	if !t.Validity.IsZero() {
		base := now
		if existing.EndDate != nil && existing.EndDate.After(now) {
			base = *existing.EndDate
		}
		end := t.Validity.AddTo(base)
		existing.EndDate = &end
	}

	if pkg.TrainerID == nil && req.TrainerID != nil {
		trainerID, err := s.resolveTrainer(ctx, nil, req.TrainerID)
		if err != nil {
			return nil, err
		}
		existing.TrainerID = &trainerID
	} else if pkg.TrainerID != nil {
		existing.TrainerID = pkg.TrainerID
	}
	if req.TimeSlot != nil {
		if !req.TimeSlot.Valid() {
			return nil, apperr.Validationf("unknown time slot %q", *req.TimeSlot)
		}
		existing.TimeSlot = req.TimeSlot
	}

	if existing.Status == StatusExpired {
		existing.Status = StatusActive
	}
	if err := s.ensureSlotFree(ctx, existing); err != nil {
		return nil, err
	}
	if err := s.subs.Update(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

// renewTimeBound chains a new subscription onto the end of the latest active time-bound one.
func (s *service) renewTimeBound(ctx context.Context, req RenewRequest, pkg *catalog.Package, t catalog.TimeBoundTerms) (*Subscription, error) {
	prev, err := s.subs.FindLatestActiveOfKind(ctx, req.MemberID, catalog.KindTimeBound)
	if err != nil {
		return nil, err
	}
	if prev == nil || prev.EndDate == nil {
		return nil, apperr.InvalidStatef("member %d has no active membership to renew", req.MemberID)
	}

	sub := &Subscription{MemberID: req.MemberID, PackageID: pkg.ID, Status: StatusActive}
	if err := s.assign(ctx, sub, pkg, nil, nil, req.AllowedWeekdays); err != nil {
		return nil, err
	}
	start := *prev.EndDate
	end := t.Duration.AddTo(start)
	sub.StartDate = &start
	sub.EndDate = &end

	if err := s.subs.Create(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *service) newActive(ctx context.Context, memberID int, pkg *catalog.Package, trainerID *int, slot *catalog.TimeSlot, weekdays *string, now time.Time) (*Subscription, error) {
	sub := &Subscription{MemberID: memberID, PackageID: pkg.ID, Status: StatusActive}
	if err := s.assign(ctx, sub, pkg, trainerID, slot, weekdays); err != nil {
		return nil, err
	}
	if err := schedule(sub, pkg, now); err != nil {
		return nil, err
	}
	if err := s.subs.Create(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *service) CheckRenewable(ctx context.Context, memberID, packageID int) error {
	return s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.members.LockForUpdate(ctx, memberID); err != nil {
			return err
		}
		pkg, err := s.packages.GetPackage(ctx, packageID)
		if err != nil {
			return err
		}
		if !pkg.IsActive {
			return apperr.Validationf("package %d is not on sale", pkg.ID)
		}
		if pkg.Kind != catalog.KindTimeBound {
			return nil
		}
		prev, err := s.subs.FindLatestActiveOfKind(ctx, memberID, catalog.KindTimeBound)
		if err != nil {
			return err
		}
		if prev == nil || prev.EndDate == nil {
			return apperr.InvalidStatef("member %d has no active membership to renew", memberID)
		}
		return nil
	})
}

func (s *service) Freeze(ctx context.Context, id, days int) (*Subscription, error) {
	if days <= 0 {
		return nil, apperr.Validationf("freeze days must be positive")
	}
	sub, err := s.mutate(ctx, id, func(ctx context.Context, sub *Subscription) error {
		if err := requireTransition(sub, StatusFrozen); err != nil {
			return err
		}
		if sub.EndDate == nil {
			return apperr.InvalidStatef("subscription %d has no end date to extend", sub.ID)
		}
		end := sub.EndDate.AddDate(0, 0, days)
		sub.EndDate = &end
		sub.Status = StatusFrozen
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordSubscriptionOp("freeze", "")
	logger.Info("subscription frozen", "subscription_id", id, "days", days)
	return sub, nil
}

func (s *service) Unfreeze(ctx context.Context, id int) (*Subscription, error) {
	sub, err := s.mutate(ctx, id, func(ctx context.Context, sub *Subscription) error {
		if sub.Status != StatusFrozen {
			return apperr.InvalidStatef("subscription %d is %s, not frozen", sub.ID, sub.Status)
		}
		sub.Status = StatusActive
		return s.ensureSlotFree(ctx, sub)
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordSubscriptionOp("unfreeze", "")
	logger.Info("subscription unfrozen", "subscription_id", id)
	return sub, nil
}

func (s *service) Cancel(ctx context.Context, id int, reason string) (*Subscription, error) {
	sub, err := s.mutate(ctx, id, func(ctx context.Context, sub *Subscription) error {
		if sub.Status != StatusActive {
			return apperr.InvalidStatef("subscription %d is %s, only active subscriptions can be cancelled", sub.ID, sub.Status)
		}
		sub.Status = StatusCancelled
		if r := strings.TrimSpace(reason); r != "" {
			sub.CancellationReason = &r
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordSubscriptionOp("cancel", "")
	logger.Info("subscription cancelled", "subscription_id", id, "reason", reason)
	return sub, nil
}

func (s *service) Transfer(ctx context.Context, id, toMemberID int) (*Subscription, error) {
	sub, err := s.mutate(ctx, id, func(ctx context.Context, sub *Subscription) error {
		if sub.Status != StatusActive {
			return apperr.InvalidStatef("subscription %d is %s, only active subscriptions can be transferred", sub.ID, sub.Status)
		}
		if sub.MemberID == toMemberID {
			return apperr.Validationf("subscription %d already belongs to member %d", sub.ID, toMemberID)
		}
		if _, err := s.members.LockForUpdate(ctx, toMemberID); err != nil {
			return err
		}
		pkg, err := s.packages.GetPackage(ctx, sub.PackageID)
		if err != nil {
			return err
		}
		if pkg.Kind != catalog.KindPerVisit {
			taken, err := s.subs.HasActiveForPackage(ctx, toMemberID, pkg.ID)
			if err != nil {
				return err
			}
			if taken {
				return apperr.Conflictf("member %d already holds an active %q subscription", toMemberID, pkg.Name)
			}
		}
		sub.MemberID = toMemberID
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordSubscriptionOp("transfer", "")
	logger.Info("subscription transferred", "subscription_id", id, "to_member_id", toMemberID)
	return sub, nil
}

func (s *service) Refund(ctx context.Context, id int, method payment.Method) (*RefundResult, error) {
	if err := immediateMethod(method, nil); err != nil {
		return nil, err
	}

	var result *RefundResult
	var memberID int
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		sub, err := s.subs.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if sub.Status != StatusCancelled {
			return apperr.InvalidStatef("subscription %d is %s, only cancelled subscriptions can be refunded", sub.ID, sub.Status)
		}
		pkg, err := s.packages.GetPackage(ctx, sub.PackageID)
		if err != nil {
			return err
		}

		paid, err := s.paidAmount(ctx, sub, pkg)
		if err != nil {
			return err
		}
		if !paid.IsPositive() {
			return apperr.InvalidStatef("subscription %d has nothing left to refund", sub.ID)
		}

		amount, err := pricing.ProrateRefund(sub.Usage(), pkg, paid, s.now())
		if err != nil {
			return err
		}

		attempt := &payment.Attempt{
			MemberID:       &sub.MemberID,
			Amount:         amount.Neg(),
			Method:         method,
			Status:         payment.StatusCompleted,
			Kind:           payment.KindRefund,
			SubscriptionID: &sub.ID,
		}
		if err := s.payments.Create(ctx, attempt); err != nil {
			return err
		}
		result = &RefundResult{SubscriptionID: sub.ID, PaidAmount: paid, Refunded: amount, AttemptID: attempt.ID}
		memberID = sub.MemberID
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordSubscriptionOp("refund", "")
	logger.Info("subscription refunded", "subscription_id", id, "amount", result.Refunded.String())
	if s.refunds != nil {
		if err := s.refunds.RefundIssued(ctx, memberID, id, result.Refunded); err != nil {
			logger.Error("refund notice not queued", "subscription_id", id, "error", err)
		}
	}
	return result, nil
}

// paidAmount is the sum of completed non-refund payments net of prior refunds.
// Falls back to the package price when no payment was ever recorded.
func (s *service) paidAmount(ctx context.Context, sub *Subscription, pkg *catalog.Package) (decimal.Decimal, error) {
	attempts, err := s.payments.ListBySubscription(ctx, sub.ID)
	if err != nil {
		return decimal.Zero, err
	}

	paid, refunded := decimal.Zero, decimal.Zero
	hasPayment := false
	for _, a := range attempts {
		if a.Status != payment.StatusCompleted {
			continue
		}
		if a.Kind == payment.KindRefund {
			refunded = refunded.Add(a.Amount.Abs())
			continue
		}
		paid = paid.Add(a.Amount)
		hasPayment = true
	}
	if !hasPayment {
		paid = pkg.Price
	}
	return paid.Sub(refunded), nil
}

func (s *service) QuoteUpgrade(ctx context.Context, id, newPackageID int) (*UpgradeQuote, error) {
	sub, err := s.subs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	current, next, err := s.upgradePackages(ctx, sub, newPackageID)
	if err != nil {
		return nil, err
	}
	return s.quote(ctx, sub, current, next, s.now())
}

func (s *service) Upgrade(ctx context.Context, req UpgradeRequest) (*Subscription, error) {
	if err := immediateMethod(req.Method, req.Settlement); err != nil {
		return nil, err
	}

	var upgraded *Subscription
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		cur, err := s.subs.GetForUpdate(ctx, req.SubscriptionID)
		if err != nil {
			return err
		}
		if _, err := s.members.LockForUpdate(ctx, cur.MemberID); err != nil {
			return err
		}
		currentPkg, newPkg, err := s.upgradePackages(ctx, cur, req.NewPackageID)
		if err != nil {
			return err
		}
		if newPkg.Kind != catalog.KindPerVisit {
			taken, err := s.subs.HasActiveForPackage(ctx, cur.MemberID, newPkg.ID)
			if err != nil {
				return err
			}
			if taken {
				return apperr.Conflictf("member %d already holds an active %q subscription", cur.MemberID, newPkg.Name)
			}
		}

		now := s.now()
		q, err := s.quote(ctx, cur, currentPkg, newPkg, now)
		if err != nil {
			return err
		}

		reason := fmt.Sprintf("upgraded to %s", newPkg.Name)
		cur.Status = StatusCancelled
		cur.CancellationReason = &reason
		if err := s.subs.Update(ctx, cur); err != nil {
			return err
		}

		trainerID, slot := req.TrainerID, req.TimeSlot
		if trainerID == nil {
			trainerID = cur.TrainerID
		}
		if slot == nil {
			slot = cur.TimeSlot
		}
		next, err := s.newActive(ctx, cur.MemberID, newPkg, trainerID, slot, nil, now)
		if err != nil {
			return err
		}
		if err := s.settle(ctx, next, payment.KindUpgrade, q.AmountToPay, req.Method, req.Settlement); err != nil {
			return err
		}
		upgraded = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordSubscriptionOp("upgrade", "")
	logger.Info("subscription upgraded", "from_subscription_id", req.SubscriptionID, "subscription_id", upgraded.ID, "package_id", upgraded.PackageID)
	return upgraded, nil
}

func (s *service) upgradePackages(ctx context.Context, sub *Subscription, newPackageID int) (*catalog.Package, *catalog.Package, error) {
	if sub.Status != StatusActive {
		return nil, nil, apperr.InvalidStatef("subscription %d is %s, only active subscriptions can be upgraded", sub.ID, sub.Status)
	}
	current, err := s.packages.GetPackage(ctx, sub.PackageID)
	if err != nil {
		return nil, nil, err
	}
	next, err := s.packages.GetPackage(ctx, newPackageID)
	if err != nil {
		return nil, nil, err
	}
	if !next.IsActive {
		return nil, nil, apperr.Validationf("package %d is not on sale", next.ID)
	}
	if !next.Price.GreaterThan(current.Price) {
		return nil, nil, apperr.Validationf("package %q must cost more than the current %q", next.Name, current.Name)
	}
	return current, next, nil
}

// quote credits the unused part of the current package, valued at its list price.
func (s *service) quote(ctx context.Context, sub *Subscription, current, next *catalog.Package, now time.Time) (*UpgradeQuote, error) {
	credit, err := pricing.ProrateUpgradeCredit(sub.Usage(), current, current.Price, now)
	if err != nil {
		return nil, err
	}
	newPrice, err := s.pricer.FinalPrice(ctx, next, now)
	if err != nil {
		return nil, err
	}
	return &UpgradeQuote{
		SubscriptionID: sub.ID,
		NewPackageID:   next.ID,
		Credit:         credit,
		NewPrice:       newPrice,
		AmountToPay:    pricing.UpgradeAmount(newPrice, credit),
	}, nil
}

func (s *service) AvailableTimeSlots(ctx context.Context, packageID int) ([]SlotAvailability, error) {
	pkg, err := s.packages.GetPackage(ctx, packageID)
	if err != nil {
		return nil, err
	}
	if pkg.Kind != catalog.KindPT {
		return nil, apperr.Validationf("package %d is not a PT package", pkg.ID)
	}

	slots := make([]SlotAvailability, 0, len(catalog.AllTimeSlots))
	for _, slot := range catalog.AllTimeSlots {
		available := true
		if pkg.TrainerID != nil {
			taken, err := s.subs.TrainerSlotTaken(ctx, *pkg.TrainerID, slot, 0)
			if err != nil {
				return nil, err
			}
			available = !taken
		}
		slots = append(slots, SlotAvailability{TimeSlot: slot, Label: slot.Label(), Available: available})
	}
	return slots, nil
}

// mutate loads the subscription under lock, applies fn and persists the result.
func (s *service) mutate(ctx context.Context, id int, fn func(ctx context.Context, sub *Subscription) error) (*Subscription, error) {
	var out *Subscription
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		sub, err := s.subs.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(ctx, sub); err != nil {
			return err
		}
		if err := s.subs.Update(ctx, sub); err != nil {
			return err
		}
		out = sub
		return nil
	})
	return out, err
}

// prepareNew locks the member and rejects a duplicate active subscription to the same package.
func (s *service) prepareNew(ctx context.Context, req CreateRequest) (*catalog.Package, error) {
	if _, err := s.members.LockForUpdate(ctx, req.MemberID); err != nil {
		return nil, err
	}
	pkg, err := s.packages.GetPackage(ctx, req.PackageID)
	if err != nil {
		return nil, err
	}
	if !pkg.IsActive {
		return nil, apperr.Validationf("package %d is not on sale", pkg.ID)
	}
	if pkg.Kind != catalog.KindPerVisit {
		exists, err := s.subs.HasActiveForPackage(ctx, req.MemberID, pkg.ID)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, apperr.Conflictf("member %d already holds an active %q subscription", req.MemberID, pkg.Name)
		}
	}
	return pkg, nil
}

// assign sets the trainer, time slot and weekday restrictions the package kind calls for.
func (s *service) assign(ctx context.Context, sub *Subscription, pkg *catalog.Package, trainerID *int, slot *catalog.TimeSlot, weekdays *string) error {
	terms, err := packageTerms(pkg)
	if err != nil {
		return err
	}

	sub.AllowedWeekdays = pkg.AllowedWeekdays
	if weekdays != nil && strings.TrimSpace(*weekdays) != "" {
		if _, err := catalog.ParseWeekdays(*weekdays); err != nil {
			return apperr.Validationf("%v", err)
		}
		w := strings.ToUpper(strings.ReplaceAll(*weekdays, " ", ""))
		sub.AllowedWeekdays = &w
	}

	pt, ok := terms.(catalog.PTTerms)
	if !ok {
		sub.TrainerID = nil
		sub.TimeSlot = nil
		return nil
	}

	trainer, err := s.resolveTrainer(ctx, pt.TrainerID, trainerID)
	if err != nil {
		return err
	}
	if slot == nil {
		return apperr.Validationf("a time slot is required for PT packages")
	}
	if !slot.Valid() {
		return apperr.Validationf("unknown time slot %q", *slot)
	}
	sub.TrainerID = &trainer
	chosen := *slot
	sub.TimeSlot = &chosen
	return s.ensureSlotFree(ctx, sub)
}

func (s *service) resolveTrainer(ctx context.Context, fromPackage, requested *int) (int, error) {
	if fromPackage != nil {
		return *fromPackage, nil
	}
	if requested == nil {
		return 0, apperr.Validationf("a trainer is required for PT packages")
	}
	ok, err := s.trainers.IsTrainer(ctx, *requested)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, apperr.Validationf("user %d is not a trainer", *requested)
	}
	return *requested, nil
}

func (s *service) ensureSlotFree(ctx context.Context, sub *Subscription) error {
	if sub.TrainerID == nil || sub.TimeSlot == nil {
		return nil
	}
	taken, err := s.subs.TrainerSlotTaken(ctx, *sub.TrainerID, *sub.TimeSlot, sub.ID)
	if err != nil {
		return err
	}
	if taken {
		return apperr.Conflictf("trainer %d is already booked for %s", *sub.TrainerID, *sub.TimeSlot)
	}
	return nil
}

func (s *service) settle(ctx context.Context, sub *Subscription, kind payment.Kind, amount decimal.Decimal, method payment.Method, settlement *Settlement) error {
	if settlement != nil {
		return s.payments.LinkSubscription(ctx, settlement.AttemptID, sub.ID)
	}
	return s.payments.Create(ctx, &payment.Attempt{
		MemberID:       &sub.MemberID,
		Amount:         amount,
		Method:         method,
		Status:         payment.StatusCompleted,
		Kind:           kind,
		SubscriptionID: &sub.ID,
	})
}

// schedule sets the dates and session allowance of a subscription starting at now.
func schedule(sub *Subscription, pkg *catalog.Package, now time.Time) error {
	terms, err := packageTerms(pkg)
	if err != nil {
		return err
	}

	start := now
	sub.StartDate = &start
	switch t := terms.(type) {
	case catalog.TimeBoundTerms:
		end := t.Duration.AddTo(now)
		sub.EndDate = &end
		sub.RemainingSessions = nil
	case catalog.PTTerms:
		sub.EndDate = nil
		if !t.Validity.IsZero() {
			end := t.Validity.AddTo(now)
			sub.EndDate = &end
		}
		sessions := t.Sessions
		sub.RemainingSessions = &sessions
	case catalog.VisitTerms:
		end := now.AddDate(0, 0, t.ValidityDays)
		sub.EndDate = &end
		sessions := t.Sessions
		sub.RemainingSessions = &sessions
	}
	return nil
}

func packageTerms(pkg *catalog.Package) (catalog.Terms, error) {
	terms, err := pkg.Terms()
	if err != nil {
		return nil, apperr.Validationf("package %d is misconfigured: %v", pkg.ID, err)
	}
	return terms, nil
}

func requireTransition(sub *Subscription, next Status) error {
	if !sub.Status.CanTransition(next) {
		return apperr.InvalidStatef("subscription %d cannot move from %s to %s", sub.ID, sub.Status, next)
	}
	return nil
}

// immediateMethod rejects gateway methods unless the call settles an already-completed gateway payment.
func immediateMethod(method payment.Method, settlement *Settlement) error {
	if !method.Valid() {
		return apperr.Validationf("unknown payment method %q", method)
	}
	if method.Deferred() && settlement == nil {
		return apperr.Validationf("%s payments must be started through the payment gateway", method)
	}
	return nil
}
