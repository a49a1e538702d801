package reconcile

import (
	"context"
	"net/url"
	"time"

	"gymcore/internal/catalog"
	"gymcore/internal/payment"
	"gymcore/internal/sale"
	"gymcore/internal/subscription"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

type passTx struct{}

func (passTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type MockPayments struct{ mock.Mock }
type MockIntents struct{ mock.Mock }
type MockLedger struct{ mock.Mock }
type MockPackages struct{ mock.Mock }
type MockPricer struct{ mock.Mock }
type MockSales struct{ mock.Mock }
type MockStock struct{ mock.Mock }
type MockNotifier struct{ mock.Mock }

func (m *MockPayments) attempt(args mock.Arguments) (*payment.Attempt, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Attempt), args.Error(1)
}

func (m *MockPayments) Create(ctx context.Context, a *payment.Attempt) error {
	return m.Called(ctx, a).Error(0)
}

func (m *MockPayments) GetByID(ctx context.Context, id int) (*payment.Attempt, error) {
	return m.attempt(m.Called(ctx, id))
}

func (m *MockPayments) GetForUpdate(ctx context.Context, id int) (*payment.Attempt, error) {
	return m.attempt(m.Called(ctx, id))
}

func (m *MockPayments) Resolve(ctx context.Context, id int, status payment.Status, responseCode, gatewayRef string) (bool, error) {
	args := m.Called(ctx, id, status, responseCode, gatewayRef)
	return args.Bool(0), args.Error(1)
}

func (m *MockPayments) LinkSubscription(ctx context.Context, id, subscriptionID int) error {
	return m.Called(ctx, id, subscriptionID).Error(0)
}

func (m *MockPayments) ListBySubscription(ctx context.Context, subscriptionID int) ([]payment.Attempt, error) {
	args := m.Called(ctx, subscriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]payment.Attempt), args.Error(1)
}

func (m *MockPayments) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]payment.Attempt, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]payment.Attempt), args.Error(1)
}

func (m *MockPayments) DeletePending(ctx context.Context, id int) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockIntents) CreateRenewal(ctx context.Context, r *payment.DeferredRenewal) error {
	return m.Called(ctx, r).Error(0)
}

func (m *MockIntents) GetRenewal(ctx context.Context, attemptID int) (*payment.DeferredRenewal, error) {
	args := m.Called(ctx, attemptID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.DeferredRenewal), args.Error(1)
}

func (m *MockIntents) CreateUpgrade(ctx context.Context, u *payment.DeferredUpgrade) error {
	return m.Called(ctx, u).Error(0)
}

func (m *MockIntents) GetUpgrade(ctx context.Context, attemptID int) (*payment.DeferredUpgrade, error) {
	args := m.Called(ctx, attemptID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.DeferredUpgrade), args.Error(1)
}

func (m *MockIntents) DeleteForAttempt(ctx context.Context, attemptID int) error {
	return m.Called(ctx, attemptID).Error(0)
}

func (m *MockLedger) sub(args mock.Arguments) (*subscription.Subscription, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.Subscription), args.Error(1)
}

func (m *MockLedger) Get(ctx context.Context, id int) (*subscription.Subscription, error) {
	return m.sub(m.Called(ctx, id))
}

func (m *MockLedger) StagePending(ctx context.Context, req subscription.CreateRequest) (*subscription.Subscription, error) {
	return m.sub(m.Called(ctx, req))
}

func (m *MockLedger) ActivatePending(ctx context.Context, id int) (*subscription.Subscription, error) {
	return m.sub(m.Called(ctx, id))
}

func (m *MockLedger) AbandonPending(ctx context.Context, id int) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockLedger) DiscardPending(ctx context.Context, id int) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockLedger) CheckRenewable(ctx context.Context, memberID, packageID int) error {
	return m.Called(ctx, memberID, packageID).Error(0)
}

func (m *MockLedger) Renew(ctx context.Context, req subscription.RenewRequest) (*subscription.Subscription, error) {
	return m.sub(m.Called(ctx, req))
}

func (m *MockLedger) QuoteUpgrade(ctx context.Context, id, newPackageID int) (*subscription.UpgradeQuote, error) {
	args := m.Called(ctx, id, newPackageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.UpgradeQuote), args.Error(1)
}

func (m *MockLedger) Upgrade(ctx context.Context, req subscription.UpgradeRequest) (*subscription.Subscription, error) {
	return m.sub(m.Called(ctx, req))
}

func (m *MockPackages) GetPackage(ctx context.Context, id int) (*catalog.Package, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Package), args.Error(1)
}

func (m *MockPricer) FinalPrice(ctx context.Context, pkg *catalog.Package, now time.Time) (decimal.Decimal, error) {
	args := m.Called(ctx, pkg, now)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockSales) GetForUpdate(ctx context.Context, id int) (*sale.Sale, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sale.Sale), args.Error(1)
}

func (m *MockSales) TransitionFrom(ctx context.Context, id int, from, to sale.Status) (bool, error) {
	args := m.Called(ctx, id, from, to)
	return args.Bool(0), args.Error(1)
}

func (m *MockStock) Deduct(ctx context.Context, saleID int) error {
	return m.Called(ctx, saleID).Error(0)
}

func (m *MockNotifier) PaymentCompleted(ctx context.Context, a *payment.Attempt) error {
	return m.Called(ctx, a).Error(0)
}

type MockReconciler struct{ mock.Mock }

func (m *MockReconciler) checkout(args mock.Arguments) (*Checkout, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Checkout), args.Error(1)
}

func (m *MockReconciler) BeginNewSubscription(ctx context.Context, req subscription.CreateRequest, clientIP string) (*Checkout, error) {
	return m.checkout(m.Called(ctx, req, clientIP))
}

func (m *MockReconciler) BeginRenewal(ctx context.Context, req subscription.RenewRequest, clientIP string) (*Checkout, error) {
	return m.checkout(m.Called(ctx, req, clientIP))
}

func (m *MockReconciler) BeginUpgrade(ctx context.Context, req subscription.UpgradeRequest, clientIP string) (*Checkout, error) {
	return m.checkout(m.Called(ctx, req, clientIP))
}

func (m *MockReconciler) BeginSale(ctx context.Context, saleID int, clientIP string) (*Checkout, error) {
	return m.checkout(m.Called(ctx, saleID, clientIP))
}

func (m *MockReconciler) OnNotification(ctx context.Context, params url.Values) (*Result, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Result), args.Error(1)
}

func (m *MockReconciler) OnReturn(ctx context.Context, params url.Values) (*ReturnResult, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ReturnResult), args.Error(1)
}

func (m *MockReconciler) SweepExpired(ctx context.Context, now time.Time) SweepReport {
	return m.Called(ctx, now).Get(0).(SweepReport)
}
