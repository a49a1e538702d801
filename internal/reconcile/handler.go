package reconcile

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"gymcore/internal/api"
	"gymcore/internal/apperr"
	"gymcore/internal/auth"
	"gymcore/internal/catalog"
	"gymcore/internal/payment"
	"gymcore/internal/subscription"

	"github.com/gin-gonic/gin"
)

// IPN reply codes understood by the gateway.
const (
	rspConfirmed      = "00"
	rspNotFound       = "01"
	rspInvalidAmount  = "04"
	rspBadSignature   = "97"
	rspUnknownFailure = "99"
)

type IPNResponse struct {
	RspCode string `json:"RspCode"`
	Message string `json:"Message"`
}

type SubscriptionLookup interface {
	Get(ctx context.Context, id int) (*subscription.Subscription, error)
}

type Handler struct {
	reconciler Reconciler
	subs       SubscriptionLookup
	// resultURL is where the browser lands after the gateway; empty answers with JSON.
	resultURL string
}

func NewHandler(r Reconciler, subs SubscriptionLookup, resultURL string) *Handler {
	return &Handler{reconciler: r, subs: subs, resultURL: resultURL}
}

type BeginSubscriptionRequest struct {
	MemberID        int               `json:"member_id" binding:"omitempty,gt=0"`
	PackageID       int               `json:"package_id" binding:"required,gt=0"`
	TrainerID       *int              `json:"trainer_id,omitempty"`
	TimeSlot        *catalog.TimeSlot `json:"time_slot,omitempty"`
	AllowedWeekdays *string           `json:"allowed_weekdays,omitempty"`
}

type BeginUpgradeRequest struct {
	SubscriptionID int               `json:"subscription_id" binding:"required,gt=0"`
	NewPackageID   int               `json:"new_package_id" binding:"required,gt=0"`
	TrainerID      *int              `json:"trainer_id,omitempty"`
	TimeSlot       *catalog.TimeSlot `json:"time_slot,omitempty"`
}

// BeginSubscription godoc
// @Summary      Pay for a new subscription online
// @Tags         payments
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request  body      BeginSubscriptionRequest  true  "Purchase"
// @Success      201      {object}  Checkout
// @Failure      409      {object}  api.ErrorResponse
// @Router       /payments/vnpay/subscriptions [post]
func (h *Handler) BeginSubscription(c *gin.Context) {
	var req BeginSubscriptionRequest
	if !api.BindJSON(c, &req) {
		return
	}
	memberID, ok := payer(c, req.MemberID)
	if !ok {
		return
	}

	out, err := h.reconciler.BeginNewSubscription(c.Request.Context(), subscription.CreateRequest{
		MemberID:        memberID,
		PackageID:       req.PackageID,
		Method:          payment.MethodVNPay,
		TrainerID:       req.TrainerID,
		TimeSlot:        req.TimeSlot,
		AllowedWeekdays: req.AllowedWeekdays,
	}, c.ClientIP())
	if err != nil {
		api.WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h *Handler) BeginRenewal(c *gin.Context) {
	var req BeginSubscriptionRequest
	if !api.BindJSON(c, &req) {
		return
	}
	memberID, ok := payer(c, req.MemberID)
	if !ok {
		return
	}

	out, err := h.reconciler.BeginRenewal(c.Request.Context(), subscription.RenewRequest{
		MemberID:        memberID,
		PackageID:       req.PackageID,
		Method:          payment.MethodVNPay,
		TrainerID:       req.TrainerID,
		TimeSlot:        req.TimeSlot,
		AllowedWeekdays: req.AllowedWeekdays,
	}, c.ClientIP())
	if err != nil {
		api.WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h *Handler) BeginUpgrade(c *gin.Context) {
	var req BeginUpgradeRequest
	if !api.BindJSON(c, &req) {
		return
	}

	if !auth.IsStaff(c) {
		own, linked := auth.GetMemberID(c)
		sub, err := h.subs.Get(c.Request.Context(), req.SubscriptionID)
		if err != nil {
			api.WriteError(c, err)
			return
		}
		if !linked || sub.MemberID != own {
			c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "subscription not found"})
			return
		}
	}

	out, err := h.reconciler.BeginUpgrade(c.Request.Context(), subscription.UpgradeRequest{
		SubscriptionID: req.SubscriptionID,
		NewPackageID:   req.NewPackageID,
		Method:         payment.MethodVNPay,
		TrainerID:      req.TrainerID,
		TimeSlot:       req.TimeSlot,
	}, c.ClientIP())
	if err != nil {
		api.WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h *Handler) BeginSale(c *gin.Context) {
	id, ok := api.PathID(c, "id")
	if !ok {
		return
	}

	out, err := h.reconciler.BeginSale(c.Request.Context(), id, c.ClientIP())
	if err != nil {
		api.WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

// IPN godoc
// @Summary      Gateway payment notification
// @Description  Server-to-server callback. Always answers 200 with a gateway reply code.
// @Tags         payments
// @Produce      json
// @Success      200  {object}  IPNResponse
// @Router       /payments/vnpay/ipn [get]
func (h *Handler) IPN(c *gin.Context) {
	_, err := h.reconciler.OnNotification(c.Request.Context(), c.Request.URL.Query())
	c.JSON(http.StatusOK, ipnReply(err))
}

// Return handles the payer's browser coming back from the gateway.
func (h *Handler) Return(c *gin.Context) {
	res, err := h.reconciler.OnReturn(c.Request.Context(), c.Request.URL.Query())
	if res == nil {
		res = &ReturnResult{Status: ReturnFailed}
	}
	if errors.Is(err, apperr.ErrVerification) {
		res.Status = ReturnFailed
	}

	if h.resultURL == "" {
		c.JSON(http.StatusOK, res)
		return
	}
	q := url.Values{}
	q.Set("status", string(res.Status))
	if res.AttemptID > 0 {
		q.Set("attempt_id", strconv.Itoa(res.AttemptID))
	}
	c.Redirect(http.StatusFound, h.resultURL+"?"+q.Encode())
}

func ipnReply(err error) IPNResponse {
	switch {
	case err == nil:
		return IPNResponse{RspCode: rspConfirmed, Message: "Confirm Success"}
	case errors.Is(err, apperr.ErrVerification):
		return IPNResponse{RspCode: rspBadSignature, Message: "Invalid signature"}
	case errors.Is(err, apperr.ErrNotFound):
		return IPNResponse{RspCode: rspNotFound, Message: "Order not found"}
	case errors.Is(err, ErrAmountMismatch):
		return IPNResponse{RspCode: rspInvalidAmount, Message: "Invalid amount"}
	}
	return IPNResponse{RspCode: rspUnknownFailure, Message: "Unknown error"}
}

// payer picks the member an online payment is for: staff name one, members pay for themselves.
func payer(c *gin.Context, requested int) (int, bool) {
	if auth.IsStaff(c) {
		if requested <= 0 {
			c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "member_id is required"})
			return 0, false
		}
		return requested, true
	}
	own, ok := auth.GetMemberID(c)
	if !ok {
		c.JSON(http.StatusForbidden, api.ErrorResponse{Error: "account is not linked to a member"})
		return 0, false
	}
	return own, true
}
