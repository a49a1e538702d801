package checkin

import (
	"net/http"
	"strconv"
	"time"

	"gymcore/internal/api"
	"gymcore/internal/auth"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	engine Engine
}

func NewHandler(engine Engine) *Handler {
	return &Handler{engine: engine}
}

type CheckInRequest struct {
	Credential  string `json:"credential" binding:"required,max=256"`
	PhoneNumber string `json:"phone_number" binding:"max=20"`
}

// CheckIn godoc
// @Summary      Admit a member at the door
// @Description  Accepts a card barcode, a personal daily code, or the venue daily code together with a phone number.
// @Tags         checkin
// @Accept       json
// @Produce      json
// @Param        request  body      CheckInRequest  true  "Credential"
// @Success      200      {object}  Decision
// @Failure      403      {object}  Decision
// @Failure      404      {object}  api.ErrorResponse
// @Router       /checkin [post]
func (h *Handler) CheckIn(c *gin.Context) {
	var req CheckInRequest
	if !api.BindJSON(c, &req) {
		return
	}

	d, err := h.engine.CheckIn(c.Request.Context(), req.Credential, req.PhoneNumber)
	if err != nil {
		api.WriteError(c, err)
		return
	}
	writeDecision(c, d)
}

// CheckInSubscription admits against one subscription. Members use their own
// account; staff name the member with ?member_id.
func (h *Handler) CheckInSubscription(c *gin.Context) {
	subID, ok := api.PathID(c, "id")
	if !ok {
		return
	}
	memberID, ok := actingMember(c)
	if !ok {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "member_id is required"})
		return
	}

	d, err := h.engine.CheckInBySubscription(c.Request.Context(), memberID, subID)
	if err != nil {
		api.WriteError(c, err)
		return
	}
	writeDecision(c, d)
}

// Checkout godoc
// @Summary      Close the open visit on a subscription
// @Tags         checkin
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      int  true  "Subscription ID"
// @Success      200  {object}  CheckoutResult
// @Failure      409  {object}  api.ErrorResponse
// @Router       /subscriptions/{id}/checkout [post]
func (h *Handler) Checkout(c *gin.Context) {
	subID, ok := api.PathID(c, "id")
	if !ok {
		return
	}

	var owner *int
	if !auth.IsStaff(c) {
		id, ok := auth.GetMemberID(c)
		if !ok {
			c.JSON(http.StatusForbidden, api.ErrorResponse{Error: "account is not linked to a member"})
			return
		}
		owner = &id
	}

	res, err := h.engine.Checkout(c.Request.Context(), owner, subID)
	if err != nil {
		api.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// History lists attendance records, newest first. Members only see their own.
func (h *Handler) History(c *gin.Context) {
	var f RecordFilter
	var ok bool

	if f.MemberID, ok = queryInt(c, "member_id"); !ok {
		return
	}
	if f.SubscriptionID, ok = queryInt(c, "subscription_id"); !ok {
		return
	}
	if f.From, ok = queryTime(c, "from"); !ok {
		return
	}
	if f.To, ok = queryTime(c, "to"); !ok {
		return
	}
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}
	if limit != nil {
		f.Limit = *limit
	}

	if !auth.IsStaff(c) {
		own, linked := auth.GetMemberID(c)
		if !linked {
			c.JSON(http.StatusForbidden, api.ErrorResponse{Error: "account is not linked to a member"})
			return
		}
		f.MemberID = &own
	}

	recs, err := h.engine.History(c.Request.Context(), f)
	if err != nil {
		api.WriteError(c, err)
		return
	}
	if recs == nil {
		recs = []AttendanceRecord{}
	}
	c.JSON(http.StatusOK, recs)
}

func writeDecision(c *gin.Context, d *Decision) {
	if d.Outcome.Admitted() {
		c.JSON(http.StatusOK, d)
		return
	}
	c.JSON(http.StatusForbidden, d)
}

func actingMember(c *gin.Context) (int, bool) {
	if !auth.IsStaff(c) {
		return auth.GetMemberID(c)
	}
	id, err := strconv.Atoi(c.Query("member_id"))
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string) (*int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid " + name})
		return nil, false
	}
	return &v, true
}

// queryTime accepts RFC 3339 timestamps or plain dates.
func queryTime(c *gin.Context, name string) (time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return time.Time{}, true
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid " + name})
	return time.Time{}, false
}
