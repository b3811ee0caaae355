package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pondflow/internal/workflow"
	"pondflow/pkg/logger"
)

// CallerKey is where the auth middleware stores the resolved caller.
const CallerKey = "caller"

func SetCaller(c *gin.Context, caller workflow.Caller) {
	c.Set(CallerKey, caller)
}

func CallerFrom(c *gin.Context) (workflow.Caller, bool) {
	v, ok := c.Get(CallerKey)
	if !ok {
		return workflow.Caller{}, false
	}
	caller, ok := v.(workflow.Caller)
	return caller, ok
}

// mustCaller writes a 401 and returns false when no caller is attached.
func mustCaller(c *gin.Context) (workflow.Caller, bool) {
	caller, ok := CallerFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "UNAUTHENTICATED", "reason": "user not authenticated"})
	}
	return caller, ok
}

// StatusFor maps a workflow error kind to its HTTP status.
func StatusFor(kind workflow.Kind) int {
	switch kind {
	case workflow.KindNotFound:
		return http.StatusNotFound
	case workflow.KindInvalidTransition:
		return http.StatusConflict
	case workflow.KindUnauthorized:
		return http.StatusForbidden
	case workflow.KindPreconditionFailed:
		return http.StatusPreconditionFailed
	case workflow.KindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeError renders err. Workflow refusals carry their kind and reason;
// anything else is logged and hidden behind a generic 500.
func writeError(c *gin.Context, log *zap.Logger, err error) {
	var werr *workflow.Error
	if errors.As(err, &werr) {
		c.JSON(StatusFor(werr.Kind), gin.H{"error": string(werr.Kind), "reason": werr.Reason})
		return
	}
	logger.WithTrace(c.Request.Context(), log).Error("Request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Error(err),
	)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL", "reason": "internal error"})
}

func badRequest(c *gin.Context, reason string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "BAD_REQUEST", "reason": reason})
}

// pathID parses the named path parameter, writing a 400 on failure.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}
