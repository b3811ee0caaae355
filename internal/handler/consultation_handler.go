package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pondflow/internal/model"
	"pondflow/internal/workflow"
)

type ConsultationHandler struct {
	consultations *workflow.ConsultationService
	logger        *zap.Logger
}

func NewConsultationHandler(consultations *workflow.ConsultationService, logger *zap.Logger) *ConsultationHandler {
	return &ConsultationHandler{consultations: consultations, logger: logger}
}

type createConsultationRequest struct {
	DesignID       *int64 `json:"design_id"`
	IsCustomDesign bool   `json:"is_custom_design"`
	Requirements   string `json:"requirements"`
	Budget         string `json:"budget"`
	PreferredStyle string `json:"preferred_style"`
}

// Create handles POST /consultations
func (h *ConsultationHandler) Create(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	var req createConsultationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}

	out, err := h.consultations.Create(c.Request.Context(), caller, workflow.ConsultationInput{
		DesignID:       req.DesignID,
		IsCustomDesign: req.IsCustomDesign,
		Requirements:   req.Requirements,
		Budget:         req.Budget,
		PreferredStyle: req.PreferredStyle,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

// Get handles GET /consultations/:id
func (h *ConsultationHandler) Get(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	out, err := h.consultations.Get(c.Request.Context(), caller, id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
	Notes  string `json:"notes"`
	Reason string `json:"reason"`
}

// UpdateStatus handles PATCH /consultations/:id/status
func (h *ConsultationHandler) UpdateStatus(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "status is required")
		return
	}

	out, err := h.consultations.UpdateStatus(c.Request.Context(), caller, id, model.ConsultationStatus(req.Status), req.Notes)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

type consultationFieldsRequest struct {
	Requirements   *string `json:"requirements"`
	Budget         *string `json:"budget"`
	PreferredStyle *string `json:"preferred_style"`
}

// UpdateFields handles PATCH /consultations/:id
func (h *ConsultationHandler) UpdateFields(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req consultationFieldsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}

	out, err := h.consultations.UpdateFields(c.Request.Context(), caller, id, workflow.ConsultationFields{
		Requirements:   req.Requirements,
		Budget:         req.Budget,
		PreferredStyle: req.PreferredStyle,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// Cancel handles POST /consultations/:id/cancel
func (h *ConsultationHandler) Cancel(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	out, err := h.consultations.Cancel(c.Request.Context(), caller, id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
