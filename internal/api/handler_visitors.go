package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"society-gate-backend/internal/gate"
	"society-gate-backend/internal/model"
)

type preApproveRequest struct {
	Name         string     `json:"name" binding:"required"`
	Phone        string     `json:"phone" binding:"required"`
	VehicleNo    string     `json:"vehicleNo"`
	VisitorType  string     `json:"visitorType"`
	ExpectedTime *time.Time `json:"expectedTime"`
}

type entryRequest struct {
	UnitNumber  string `json:"unitNumber" binding:"required"`
	Name        string `json:"name" binding:"required"`
	Phone       string `json:"phone" binding:"required"`
	VehicleNo   string `json:"vehicleNo"`
	VisitorType string `json:"visitorType"`
}

func (r entryRequest) input() gate.EntryInput {
	return gate.EntryInput{
		UnitNumber:  r.UnitNumber,
		Name:        r.Name,
		Phone:       r.Phone,
		VehicleNo:   r.VehicleNo,
		VisitorType: r.VisitorType,
	}
}

// checkInRequest checks in visitorId when set; otherwise the entry fields
// describe a manual check-in.
type checkInRequest struct {
	VisitorID   string `json:"visitorId"`
	UnitNumber  string `json:"unitNumber"`
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	VehicleNo   string `json:"vehicleNo"`
	VisitorType string `json:"visitorType"`
}

type respondRequest struct {
	Status string `json:"status" binding:"required"`
}

type lookupResponse struct {
	Name           string `json:"name"`
	UnitNumber     string `json:"unitNumber"`
	Phone          string `json:"phone"`
	PhoneSecondary string `json:"phoneSecondary"`
}

func visitorResponse(c *gin.Context, status int, v *model.Visitor, message string) {
	c.JSON(status, gin.H{"visitor": v, "message": message})
}

func listResponse(c *gin.Context, visitors []model.Visitor, err error) {
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, visitors)
}

// PreApprove handles POST /api/visitors/pre-approve.
func (h *Handler) PreApprove(c *gin.Context) {
	var req preApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	v, err := h.gate.PreApprove(c.Request.Context(), actor(c), gate.PreApproveInput{
		Name:         req.Name,
		Phone:        req.Phone,
		VehicleNo:    req.VehicleNo,
		VisitorType:  req.VisitorType,
		ExpectedTime: req.ExpectedTime,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	visitorResponse(c, http.StatusCreated, v, "Visitor pre-approved successfully.")
}

// ResidentHistory handles GET /api/visitors/resident.
func (h *Handler) ResidentHistory(c *gin.Context) {
	visitors, err := h.gate.ResidentHistory(c.Request.Context(), actor(c))
	listResponse(c, visitors, err)
}

// ResidentPending handles GET /api/visitors/resident/pending-requests.
func (h *Handler) ResidentPending(c *gin.Context) {
	visitors, err := h.gate.ResidentPending(c.Request.Context(), actor(c))
	listResponse(c, visitors, err)
}

// RespondToRequest handles PUT /api/visitors/resident/respond-request/:id.
func (h *Handler) RespondToRequest(c *gin.Context) {
	var req respondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	v, err := h.gate.RespondToRequest(c.Request.Context(), actor(c), c.Param("id"), req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	visitorResponse(c, http.StatusOK, v, "Visitor request "+string(v.ApprovalStatus)+".")
}

// GuardApproved handles GET /api/visitors/guard/approved.
func (h *Handler) GuardApproved(c *gin.Context) {
	visitors, err := h.gate.GuardApproved(c.Request.Context(), actor(c))
	listResponse(c, visitors, err)
}

// GuardCheckedIn handles GET /api/visitors/guard/checked-in.
func (h *Handler) GuardCheckedIn(c *gin.Context) {
	visitors, err := h.gate.GuardCheckedIn(c.Request.Context(), actor(c))
	listResponse(c, visitors, err)
}

// RequestEntry handles POST /api/visitors/guard/request-entry.
func (h *Handler) RequestEntry(c *gin.Context) {
	var req entryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	v, err := h.gate.RequestSuddenEntry(c.Request.Context(), actor(c), req.input())
	if err != nil {
		respondError(c, err)
		return
	}
	visitorResponse(c, http.StatusCreated, v, "Approval request sent to resident.")
}

// CheckIn handles POST /api/visitors/guard/check-in.
func (h *Handler) CheckIn(c *gin.Context) {
	var req checkInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	in := gate.CheckInInput{
		VisitorID: req.VisitorID,
		VehicleNo: req.VehicleNo,
		Entry: entryRequest{
			UnitNumber:  req.UnitNumber,
			Name:        req.Name,
			Phone:       req.Phone,
			VehicleNo:   req.VehicleNo,
			VisitorType: req.VisitorType,
		}.input(),
	}
	v, err := h.gate.CheckIn(c.Request.Context(), actor(c), in)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusOK
	if in.Manual() {
		status = http.StatusCreated
	}
	visitorResponse(c, status, v, "Visitor successfully checked in.")
}

// CheckOut handles POST /api/visitors/guard/check-out/:id.
func (h *Handler) CheckOut(c *gin.Context) {
	v, err := h.gate.CheckOut(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	visitorResponse(c, http.StatusOK, v, "Visitor checked out successfully.")
}

// LookupResident handles GET /api/visitors/guard/lookup/:unitNumber.
func (h *Handler) LookupResident(c *gin.Context) {
	r, err := h.gate.LookupResident(c.Request.Context(), actor(c), c.Param("unitNumber"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, lookupResponse{
		Name:           r.Name,
		UnitNumber:     r.UnitNumber,
		Phone:          r.Phone,
		PhoneSecondary: r.PhoneSecondary,
	})
}

// Logs handles GET /api/visitors/logs.
func (h *Handler) Logs(c *gin.Context) {
	visitors, err := h.gate.Logs(c.Request.Context(), actor(c))
	listResponse(c, visitors, err)
}
