package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pondflow/internal/workflow"
)

type DesignRequestHandler struct {
	requests *workflow.DesignRequestService
	logger   *zap.Logger
}

func NewDesignRequestHandler(requests *workflow.DesignRequestService, logger *zap.Logger) *DesignRequestHandler {
	return &DesignRequestHandler{requests: requests, logger: logger}
}

// Create handles POST /consultations/:id/design-request
func (h *DesignRequestHandler) Create(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	consultationID, ok := pathID(c, "id")
	if !ok {
		return
	}
	out, err := h.requests.Create(c.Request.Context(), caller, consultationID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

// Get handles GET /design-requests/:id
func (h *DesignRequestHandler) Get(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	out, err := h.requests.Get(c.Request.Context(), caller, id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

type assignDesignerRequest struct {
	DesignerID int64 `json:"designer_id" binding:"required"`
}

// AssignDesigner handles POST /design-requests/:id/designer
func (h *DesignRequestHandler) AssignDesigner(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req assignDesignerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "designer_id is required")
		return
	}
	out, err := h.requests.AssignDesigner(c.Request.Context(), caller, id, req.DesignerID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

type linkDesignRequest struct {
	DesignID      int64  `json:"design_id" binding:"required"`
	Notes         string `json:"notes"`
	EstimatedCost int64  `json:"estimated_cost"`
}

// LinkDesign handles POST /design-requests/:id/design
func (h *DesignRequestHandler) LinkDesign(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req linkDesignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "design_id is required")
		return
	}
	out, err := h.requests.LinkDesign(c.Request.Context(), caller, id, workflow.LinkInput{
		DesignID:      req.DesignID,
		Notes:         req.Notes,
		EstimatedCost: req.EstimatedCost,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// Submit handles POST /design-requests/:id/submit
func (h *DesignRequestHandler) Submit(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	out, err := h.requests.SubmitForReview(c.Request.Context(), caller, id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// ConsultantReview handles POST /design-requests/:id/review
func (h *DesignRequestHandler) ConsultantReview(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req verdictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "approved is required")
		return
	}
	notes := req.Notes
	if !*req.Approved && notes == "" {
		notes = req.Reason
	}
	out, err := h.requests.ConsultantReview(c.Request.Context(), caller, id, *req.Approved, notes)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// CustomerApproval handles POST /design-requests/:id/approval
func (h *DesignRequestHandler) CustomerApproval(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req verdictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "approved is required")
		return
	}
	out, err := h.requests.CustomerApproval(c.Request.Context(), caller, id, *req.Approved, req.Reason)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

// Cancel handles POST /design-requests/:id/cancel
func (h *DesignRequestHandler) Cancel(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req reasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	out, err := h.requests.Cancel(c.Request.Context(), caller, id, req.Reason)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
