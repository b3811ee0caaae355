package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pondflow/internal/model"
	"pondflow/internal/workflow"
)

type ProjectHandler struct {
	projects *workflow.ProjectService
	logger   *zap.Logger
}

func NewProjectHandler(projects *workflow.ProjectService, logger *zap.Logger) *ProjectHandler {
	return &ProjectHandler{projects: projects, logger: logger}
}

type createProjectRequest struct {
	ConsultationID int64  `json:"consultation_id" binding:"required"`
	DesignID       *int64 `json:"design_id"`
	Name           string `json:"name"`
	Location       string `json:"location"`
	TotalPrice     int64  `json:"total_price" binding:"required"`
	DepositAmount  *int64 `json:"deposit_amount"`
}

// Create handles POST /projects
func (h *ProjectHandler) Create(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "consultation_id and total_price are required")
		return
	}

	out, err := h.projects.Create(c.Request.Context(), caller, workflow.ProjectInput{
		ConsultationID: req.ConsultationID,
		DesignID:       req.DesignID,
		Name:           req.Name,
		Location:       req.Location,
		TotalPrice:     req.TotalPrice,
		DepositAmount:  req.DepositAmount,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

// Get handles GET /projects/:id
func (h *ProjectHandler) Get(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	out, err := h.projects.Get(c.Request.Context(), caller, id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// UpdateStatus handles PATCH /projects/:id/status
func (h *ProjectHandler) UpdateStatus(c *gin.Context) {
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
	out, err := h.projects.UpdateStatus(c.Request.Context(), caller, id, model.ProjectStatus(req.Status), req.Reason)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// MarkTechnicallyCompleted handles POST /projects/:id/technically-complete
func (h *ProjectHandler) MarkTechnicallyCompleted(c *gin.Context) {
	h.command(c, h.projects.MarkTechnicallyCompleted)
}

// Complete handles POST /projects/:id/complete
func (h *ProjectHandler) Complete(c *gin.Context) {
	h.command(c, h.projects.Complete)
}

// Cancel handles POST /projects/:id/cancel
func (h *ProjectHandler) Cancel(c *gin.Context) {
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
	out, err := h.projects.Cancel(c.Request.Context(), caller, id, req.Reason)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

type assignConstructorRequest struct {
	ConstructorID int64 `json:"constructor_id" binding:"required"`
}

// AssignConstructor handles POST /projects/:id/constructor
func (h *ProjectHandler) AssignConstructor(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req assignConstructorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "constructor_id is required")
		return
	}
	out, err := h.projects.AssignConstructor(c.Request.Context(), caller, id, req.ConstructorID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

type pricingRequest struct {
	TotalPrice    int64 `json:"total_price" binding:"required"`
	DepositAmount int64 `json:"deposit_amount"`
}

// UpdatePricing handles PUT /projects/:id/pricing
func (h *ProjectHandler) UpdatePricing(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req pricingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "total_price is required")
		return
	}
	out, err := h.projects.UpdatePricing(c.Request.Context(), caller, id, req.TotalPrice, req.DepositAmount)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// ListTasks handles GET /projects/:id/tasks
func (h *ProjectHandler) ListTasks(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	tasks, err := h.projects.ListTasks(c.Request.Context(), caller, id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	done, err := h.projects.AreAllTasksCompleted(c.Request.Context(), caller, id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks, "all_completed": done})
}

// RecomputeProgress handles POST /projects/:id/progress
func (h *ProjectHandler) RecomputeProgress(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	pct, err := h.projects.RecomputeProgress(c.Request.Context(), caller, id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project_id": id, "progress_percentage": pct})
}

type taskUpdateRequest struct {
	Status               *string `json:"status"`
	CompletionPercentage *int    `json:"completion_percentage"`
	Notes                *string `json:"notes"`
}

// UpdateTask handles PATCH /tasks/:id
func (h *ProjectHandler) UpdateTask(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req taskUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	out, err := h.projects.UpdateTask(c.Request.Context(), caller, id, workflow.TaskUpdate{
		Status:               req.Status,
		CompletionPercentage: req.CompletionPercentage,
		Notes:                req.Notes,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

type projectCommand func(ctx context.Context, caller workflow.Caller, id int64) (*model.Project, error)

// command runs a body-less project command on the :id path parameter.
func (h *ProjectHandler) command(c *gin.Context, fn projectCommand) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	out, err := fn(c.Request.Context(), caller, id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
