package reconcile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"gymcore/internal/apperr"
	"gymcore/internal/payment"
	"gymcore/internal/subscription"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func setupRouter(r Reconciler, subs SubscriptionLookup, resultURL, role string, memberID *int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(r, subs, resultURL)
	router := gin.New()
	router.GET("/payments/vnpay/ipn", h.IPN)
	router.GET("/payments/vnpay/return", h.Return)

	authed := router.Group("/")
	authed.Use(func(c *gin.Context) {
		c.Set("user_id", 1)
		c.Set("user_role", role)
		if memberID != nil {
			c.Set("member_id", *memberID)
		}
		c.Next()
	})
	authed.POST("/payments/vnpay/subscriptions", h.BeginSubscription)
	authed.POST("/payments/vnpay/renewals", h.BeginRenewal)
	authed.POST("/payments/vnpay/upgrades", h.BeginUpgrade)
	authed.POST("/payments/vnpay/sales/:id", h.BeginSale)
	return router
}

func do(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIPN_ReplyCodes(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code string
	}{
		{"confirmed", nil, "00"},
		{"unknown attempt", apperr.NotFoundf("payment attempt 9 not found"), "01"},
		{"amount", fmt.Errorf("attempt 9: %w", ErrAmountMismatch), "04"},
		{"signature", apperr.Verificationf("invalid payment signature"), "97"},
		{"anything else", apperr.InvalidStatef("subscription 9 is frozen"), "99"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := new(MockReconciler)
			var res *Result
			if tc.err == nil {
				res = &Result{AttemptID: 9, Status: payment.StatusCompleted}
			}
			rec.On("OnNotification", mock.Anything, mock.Anything).Return(res, tc.err)
			router := setupRouter(rec, nil, "", "member", nil)

			w := do(router, http.MethodGet, "/payments/vnpay/ipn?vnp_TxnRef=9", "")

			assert.Equal(t, http.StatusOK, w.Code)
			var body IPNResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tc.code, body.RspCode)
		})
	}
}

func TestReturn(t *testing.T) {
	t.Run("redirects with status", func(t *testing.T) {
		rec := new(MockReconciler)
		rec.On("OnReturn", mock.Anything, mock.Anything).Return(&ReturnResult{AttemptID: 9, Status: ReturnCancelled, ResponseCode: "24"}, nil)
		router := setupRouter(rec, nil, "https://gym.example/payment-result", "member", nil)

		w := do(router, http.MethodGet, "/payments/vnpay/return?vnp_TxnRef=9", "")

		assert.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, "https://gym.example/payment-result?attempt_id=9&status=cancelled", w.Header().Get("Location"))
	})

	t.Run("json without result url", func(t *testing.T) {
		rec := new(MockReconciler)
		rec.On("OnReturn", mock.Anything, mock.Anything).Return(&ReturnResult{Status: ReturnFailed}, apperr.Verificationf("missing vnp_SecureHash"))
		router := setupRouter(rec, nil, "", "member", nil)

		w := do(router, http.MethodGet, "/payments/vnpay/return", "")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"status":"failed"`)
	})
}

func TestBeginSubscription(t *testing.T) {
	checkout := &Checkout{AttemptID: 60, Amount: decimal.NewFromInt(500000), PaymentURL: "https://pay.example/?vnp_TxnRef=60"}

	t.Run("member pays for themselves", func(t *testing.T) {
		rec := new(MockReconciler)
		rec.On("BeginNewSubscription", mock.Anything, mock.MatchedBy(func(req subscription.CreateRequest) bool {
			return req.MemberID == 3 && req.PackageID == 2 && req.Method == payment.MethodVNPay
		}), mock.Anything).Return(checkout, nil)
		router := setupRouter(rec, nil, "", "member", intPtr(3))

		w := do(router, http.MethodPost, "/payments/vnpay/subscriptions", `{"member_id": 99, "package_id": 2}`)

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Contains(t, w.Body.String(), "vnp_TxnRef=60")
		rec.AssertExpectations(t)
	})

	t.Run("staff must name the member", func(t *testing.T) {
		rec := new(MockReconciler)
		router := setupRouter(rec, nil, "", "staff", nil)

		w := do(router, http.MethodPost, "/payments/vnpay/subscriptions", `{"package_id": 2}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		rec.AssertNotCalled(t, "BeginNewSubscription", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unlinked account", func(t *testing.T) {
		rec := new(MockReconciler)
		router := setupRouter(rec, nil, "", "member", nil)

		w := do(router, http.MethodPost, "/payments/vnpay/subscriptions", `{"package_id": 2}`)

		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("slot conflict", func(t *testing.T) {
		rec := new(MockReconciler)
		rec.On("BeginNewSubscription", mock.Anything, mock.Anything, mock.Anything).Return(nil, apperr.Conflictf("trainer 5 is already booked for EVENING"))
		router := setupRouter(rec, nil, "", "staff", nil)

		w := do(router, http.MethodPost, "/payments/vnpay/subscriptions", `{"member_id": 3, "package_id": 4, "trainer_id": 5, "time_slot": "EVENING"}`)

		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestBeginRenewal_Handler(t *testing.T) {
	rec := new(MockReconciler)
	rec.On("BeginRenewal", mock.Anything, mock.MatchedBy(func(req subscription.RenewRequest) bool {
		return req.MemberID == 3 && req.PackageID == 2 && req.Settlement == nil
	}), mock.Anything).Return(&Checkout{AttemptID: 61}, nil)
	router := setupRouter(rec, nil, "", "admin", nil)

	w := do(router, http.MethodPost, "/payments/vnpay/renewals", `{"member_id": 3, "package_id": 2}`)

	assert.Equal(t, http.StatusCreated, w.Code)
	rec.AssertExpectations(t)
}

func TestBeginUpgrade_Handler(t *testing.T) {
	t.Run("owner", func(t *testing.T) {
		rec := new(MockReconciler)
		subs := new(MockLedger)
		subs.On("Get", mock.Anything, 9).Return(&subscription.Subscription{ID: 9, MemberID: 3}, nil)
		rec.On("BeginUpgrade", mock.Anything, mock.MatchedBy(func(req subscription.UpgradeRequest) bool {
			return req.SubscriptionID == 9 && req.NewPackageID == 4
		}), mock.Anything).Return(&Checkout{AttemptID: 62}, nil)
		router := setupRouter(rec, subs, "", "member", intPtr(3))

		w := do(router, http.MethodPost, "/payments/vnpay/upgrades", `{"subscription_id": 9, "new_package_id": 4}`)

		assert.Equal(t, http.StatusCreated, w.Code)
		rec.AssertExpectations(t)
	})

	t.Run("someone else's subscription", func(t *testing.T) {
		rec := new(MockReconciler)
		subs := new(MockLedger)
		subs.On("Get", mock.Anything, 9).Return(&subscription.Subscription{ID: 9, MemberID: 4}, nil)
		router := setupRouter(rec, subs, "", "member", intPtr(3))

		w := do(router, http.MethodPost, "/payments/vnpay/upgrades", `{"subscription_id": 9, "new_package_id": 4}`)

		assert.Equal(t, http.StatusNotFound, w.Code)
		rec.AssertNotCalled(t, "BeginUpgrade", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestBeginSale_Handler(t *testing.T) {
	rec := new(MockReconciler)
	rec.On("BeginSale", mock.Anything, 31, mock.Anything).Return(nil, apperr.InvalidStatef("sale 31 is paid"))
	router := setupRouter(rec, nil, "", "staff", nil)

	w := do(router, http.MethodPost, "/payments/vnpay/sales/31", "")

	assert.Equal(t, http.StatusConflict, w.Code)
}
