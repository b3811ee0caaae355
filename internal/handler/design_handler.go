package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pondflow/internal/workflow"
)

type DesignHandler struct {
	designs *workflow.DesignService
	logger  *zap.Logger
}

func NewDesignHandler(designs *workflow.DesignService, logger *zap.Logger) *DesignHandler {
	return &DesignHandler{designs: designs, logger: logger}
}

type createDesignRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	BasePrice   int64  `json:"base_price"`
	IsCustom    bool   `json:"is_custom"`
	IsPublic    bool   `json:"is_public"`
}

// Create handles POST /designs
func (h *DesignHandler) Create(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	var req createDesignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "name is required")
		return
	}

	out, err := h.designs.Create(c.Request.Context(), caller, workflow.DesignInput{
		Name:        req.Name,
		Description: req.Description,
		BasePrice:   req.BasePrice,
		IsCustom:    req.IsCustom,
		IsPublic:    req.IsPublic,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

// Get handles GET /designs/:id
func (h *DesignHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	out, err := h.designs.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// verdictRequest is the body of every approve/reject endpoint.
type verdictRequest struct {
	Approved *bool  `json:"approved" binding:"required"`
	Reason   string `json:"reason"`
	Notes    string `json:"notes"`
}

// Review handles POST /designs/:id/review
func (h *DesignHandler) Review(c *gin.Context) {
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

	out, err := h.designs.Review(c.Request.Context(), caller, id, *req.Approved, req.Reason)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// Resubmit handles POST /designs/:id/resubmit
func (h *DesignHandler) Resubmit(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	out, err := h.designs.Resubmit(c.Request.Context(), caller, id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// Archive handles DELETE /designs/:id
func (h *DesignHandler) Archive(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	out, err := h.designs.Archive(c.Request.Context(), caller, id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
