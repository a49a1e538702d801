package subscription

import (
	"net/http"
	"strconv"

	"gymcore/internal/api"
	"gymcore/internal/auth"
	"gymcore/internal/catalog"
	"gymcore/internal/payment"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc Service
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

type CreateSubscriptionRequest struct {
	MemberID        int               `json:"member_id" binding:"required,gt=0"`
	PackageID       int               `json:"package_id" binding:"required,gt=0"`
	PaymentMethod   payment.Method    `json:"payment_method" binding:"required,oneof=cash card bank_transfer"`
	TrainerID       *int              `json:"trainer_id,omitempty"`
	TimeSlot        *catalog.TimeSlot `json:"time_slot,omitempty"`
	AllowedWeekdays *string           `json:"allowed_weekdays,omitempty"`
}

type FreezeRequest struct {
	Days int `json:"days" binding:"required,gt=0"`
}

type CancelRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

type RefundRequest struct {
	PaymentMethod payment.Method `json:"payment_method" binding:"required,oneof=cash card bank_transfer"`
}

type UpgradeSubscriptionRequest struct {
	NewPackageID  int               `json:"new_package_id" binding:"required,gt=0"`
	PaymentMethod payment.Method    `json:"payment_method" binding:"required,oneof=cash card bank_transfer"`
	TrainerID     *int              `json:"trainer_id,omitempty"`
	TimeSlot      *catalog.TimeSlot `json:"time_slot,omitempty"`
}

type TransferRequest struct {
	ToMemberID int `json:"to_member_id" binding:"required,gt=0"`
}

// Create godoc
// @Summary      Sell a package
// @Tags         subscriptions
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request  body      CreateSubscriptionRequest  true  "Sale"
// @Success      201      {object}  Subscription
// @Failure      400      {object}  api.ErrorResponse
// @Failure      409      {object}  api.ErrorResponse
// @Router       /subscriptions [post]
func (h *Handler) Create(c *gin.Context) {
	var req CreateSubscriptionRequest
	if !api.BindJSON(c, &req) {
		return
	}

	sub, err := h.svc.Create(c.Request.Context(), CreateRequest{
		MemberID:        req.MemberID,
		PackageID:       req.PackageID,
		Method:          req.PaymentMethod,
		TrainerID:       req.TrainerID,
		TimeSlot:        req.TimeSlot,
		AllowedWeekdays: req.AllowedWeekdays,
	})
	if err != nil {
		api.WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sub)
}

// Renew godoc
// @Summary      Renew a package for a member
// @Tags         subscriptions
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request  body      CreateSubscriptionRequest  true  "Renewal"
// @Success      200      {object}  Subscription
// @Router       /subscriptions/renew [post]
func (h *Handler) Renew(c *gin.Context) {
	var req CreateSubscriptionRequest
	if !api.BindJSON(c, &req) {
		return
	}

	sub, err := h.svc.Renew(c.Request.Context(), RenewRequest{
		MemberID:        req.MemberID,
		PackageID:       req.PackageID,
		Method:          req.PaymentMethod,
		TrainerID:       req.TrainerID,
		TimeSlot:        req.TimeSlot,
		AllowedWeekdays: req.AllowedWeekdays,
	})
	if err != nil {
		api.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

// Get godoc
// @Summary      Get subscription
// @Tags         subscriptions
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      int  true  "Subscription ID"
// @Success      200  {object}  Subscription
// @Failure      404  {object}  api.ErrorResponse
// @Router       /subscriptions/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	id, ok := api.PathID(c, "id")
	if !ok {
		return
	}

	sub, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		api.WriteError(c, err)
		return
	}
	if !canSee(c, sub.MemberID) {
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "subscription not found"})
		return
	}
	c.JSON(http.StatusOK, sub)
}

// ListByMember godoc
// @Summary      List a member's subscriptions
// @Tags         subscriptions
// @Security     BearerAuth
// @Produce      json
// @Param        memberID  path   int  true  "Member ID"
// @Success      200       {array}  Subscription
// @Router       /members/{memberID}/subscriptions [get]
func (h *Handler) ListByMember(c *gin.Context) {
	memberID, ok := api.PathID(c, "memberID")
	if !ok {
		return
	}
	if !canSee(c, memberID) {
		c.JSON(http.StatusForbidden, api.ErrorResponse{Error: "you can only view your own subscriptions"})
		return
	}

	subs, err := h.svc.ListByMember(c.Request.Context(), memberID)
	if err != nil {
		api.WriteError(c, err)
		return
	}
	if subs == nil {
		subs = []Subscription{}
	}
	c.JSON(http.StatusOK, subs)
}

// Freeze godoc
// @Summary      Freeze subscription
// @Tags         subscriptions
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      int            true  "Subscription ID"
// @Param        request  body      FreezeRequest  true  "Freeze length"
// @Success      200      {object}  Subscription
// @Router       /subscriptions/{id}/freeze [post]
func (h *Handler) Freeze(c *gin.Context) {
	id, ok := api.PathID(c, "id")
	if !ok {
		return
	}
	var req FreezeRequest
	if !api.BindJSON(c, &req) {
		return
	}

	sub, err := h.svc.Freeze(c.Request.Context(), id, req.Days)
	if err != nil {
		api.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (h *Handler) Unfreeze(c *gin.Context) {
	id, ok := api.PathID(c, "id")
	if !ok {
		return
	}

	sub, err := h.svc.Unfreeze(c.Request.Context(), id)
	if err != nil {
		api.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (h *Handler) Cancel(c *gin.Context) {
	id, ok := api.PathID(c, "id")
	if !ok {
		return
	}
	var req CancelRequest
	if c.Request.ContentLength > 0 && !api.BindJSON(c, &req) {
		return
	}

	sub, err := h.svc.Cancel(c.Request.Context(), id, req.Reason)
	if err != nil {
		api.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

// Refund godoc
// @Summary      Refund a cancelled subscription
// @Tags         subscriptions
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      int            true  "Subscription ID"
// @Param        request  body      RefundRequest  true  "Refund method"
// @Success      200      {object}  RefundResult
// @Router       /subscriptions/{id}/refund [post]
func (h *Handler) Refund(c *gin.Context) {
	id, ok := api.PathID(c, "id")
	if !ok {
		return
	}
	var req RefundRequest
	if !api.BindJSON(c, &req) {
		return
	}

	res, err := h.svc.Refund(c.Request.Context(), id, req.PaymentMethod)
	if err != nil {
		api.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// QuoteUpgrade godoc
// @Summary      Price an upgrade
// @Tags         subscriptions
// @Security     BearerAuth
// @Produce      json
// @Param        id          path      int  true  "Subscription ID"
// @Param        package_id  query     int  true  "Target package"
// @Success      200         {object}  UpgradeQuote
// @Router       /subscriptions/{id}/upgrade-quote [get]
func (h *Handler) QuoteUpgrade(c *gin.Context) {
	id, ok := api.PathID(c, "id")
	if !ok {
		return
	}
	pkgID, err := strconv.Atoi(c.Query("package_id"))
	if err != nil || pkgID <= 0 {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "package_id query parameter required"})
		return
	}

	sub, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		api.WriteError(c, err)
		return
	}
	if !canSee(c, sub.MemberID) {
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "subscription not found"})
		return
	}

	q, err := h.svc.QuoteUpgrade(c.Request.Context(), id, pkgID)
	if err != nil {
		api.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

func (h *Handler) Upgrade(c *gin.Context) {
	id, ok := api.PathID(c, "id")
	if !ok {
		return
	}
	var req UpgradeSubscriptionRequest
	if !api.BindJSON(c, &req) {
		return
	}

	sub, err := h.svc.Upgrade(c.Request.Context(), UpgradeRequest{
		SubscriptionID: id,
		NewPackageID:   req.NewPackageID,
		Method:         req.PaymentMethod,
		TrainerID:      req.TrainerID,
		TimeSlot:       req.TimeSlot,
	})
	if err != nil {
		api.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (h *Handler) Transfer(c *gin.Context) {
	id, ok := api.PathID(c, "id")
	if !ok {
		return
	}
	var req TransferRequest
	if !api.BindJSON(c, &req) {
		return
	}

	sub, err := h.svc.Transfer(c.Request.Context(), id, req.ToMemberID)
	if err != nil {
		api.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

// AvailableTimeSlots godoc
// @Summary      Free PT slots of a package's trainer
// @Tags         packages
// @Produce      json
// @Param        id   path      int  true  "Package ID"
// @Success      200  {array}   SlotAvailability
// @Router       /packages/{id}/time-slots [get]
func (h *Handler) AvailableTimeSlots(c *gin.Context) {
	id, ok := api.PathID(c, "id")
	if !ok {
		return
	}

	slots, err := h.svc.AvailableTimeSlots(c.Request.Context(), id)
	if err != nil {
		api.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, slots)
}

// canSee lets staff see everything and members only their own records.
func canSee(c *gin.Context, memberID int) bool {
	if auth.IsStaff(c) {
		return true
	}
	own, ok := auth.GetMemberID(c)
	return ok && own == memberID
}
