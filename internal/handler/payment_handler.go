package handler

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pondflow/internal/model"
	"pondflow/internal/workflow"
	"pondflow/pkg/logger"
)

// Gateway response codes for callback acknowledgements.
const (
	rspConfirmed        = "00"
	rspUnknownProject   = "01"
	rspAlreadyConfirmed = "02"
	rspRefused          = "04"
	rspBadSignature     = "97"
	rspUnknownError     = "99"
)

// CallbackVerifier authenticates gateway callbacks.
type CallbackVerifier interface {
	VerifyCallback(values url.Values) (workflow.PaymentResult, error)
}

type PaymentHandler struct {
	payments *workflow.PaymentService
	verifier CallbackVerifier
	logger   *zap.Logger
}

func NewPaymentHandler(payments *workflow.PaymentService, verifier CallbackVerifier, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{payments: payments, verifier: verifier, logger: logger}
}

type paymentKindRequest struct {
	Kind string `json:"kind" binding:"required"`
}

// RequestURL handles POST /projects/:id/payments
func (h *PaymentHandler) RequestURL(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req paymentKindRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "kind is required")
		return
	}
	out, err := h.payments.RequestPaymentURL(c.Request.Context(), caller, id, model.PaymentKind(req.Kind))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// RecordManual handles POST /projects/:id/payments/manual
func (h *PaymentHandler) RecordManual(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req paymentKindRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "kind is required")
		return
	}
	out, err := h.payments.RecordManualPayment(c.Request.Context(), caller, id, model.PaymentKind(req.Kind))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// Callback handles GET /payments/callback. The gateway retries until it
// gets a 200, so refusals the gateway cannot fix are acknowledged with a
// response code instead of an error status.
func (h *PaymentHandler) Callback(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.WithTrace(ctx, h.logger)

	res, err := h.verifier.VerifyCallback(c.Request.URL.Query())
	if err != nil {
		log.Warn("Rejected payment callback", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"rsp_code": rspBadSignature, "message": "invalid signature"})
		return
	}

	err = h.payments.OnPaymentResult(ctx, res)
	switch {
	case err == nil:
		log.Info("Payment callback applied",
			zap.Int64("project_id", res.ProjectID),
			zap.String("txn_ref", res.TxnRef),
			zap.String("response_code", res.ResponseCode),
		)
		c.JSON(http.StatusOK, gin.H{"rsp_code": rspConfirmed, "message": "confirmed"})
	case errors.Is(err, workflow.ErrNotFound):
		c.JSON(http.StatusOK, gin.H{"rsp_code": rspUnknownProject, "message": err.Error()})
	case errors.Is(err, workflow.ErrAlreadySettled):
		log.Info("Payment callback already applied",
			zap.Int64("project_id", res.ProjectID),
			zap.String("txn_ref", res.TxnRef),
		)
		c.JSON(http.StatusOK, gin.H{"rsp_code": rspAlreadyConfirmed, "message": err.Error()})
	case errors.Is(err, workflow.ErrPreconditionFailed):
		log.Warn("Payment callback refused",
			zap.Int64("project_id", res.ProjectID),
			zap.String("txn_ref", res.TxnRef),
			zap.Error(err),
		)
		c.JSON(http.StatusOK, gin.H{"rsp_code": rspRefused, "message": err.Error()})
	default:
		log.Error("Payment callback failed", zap.Int64("project_id", res.ProjectID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"rsp_code": rspUnknownError, "message": "internal error"})
	}
}
