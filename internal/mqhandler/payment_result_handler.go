package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"pondflow/internal/workflow"
	"pondflow/pkg/logger"
	"pondflow/pkg/util"
)

const (
	// RoutingPaymentResult carries gateway results relayed over the broker.
	RoutingPaymentResult = "payment.result"

	paymentResultHandler = "payment_result"
	defaultMaxRetries    = 5
)

// Settler applies an authenticated payment result.
type Settler interface {
	OnPaymentResult(ctx context.Context, res workflow.PaymentResult) error
}

// Verifier checks the gateway signature on the relayed fields.
type Verifier interface {
	VerifyCallback(values url.Values) (workflow.PaymentResult, error)
}

// DeadLetterer parks messages that will never succeed.
type DeadLetterer interface {
	PublishToDLQ(ctx context.Context, routingKey string, payload []byte, originalError string) error
}

// PaymentResultHandler consumes payment.result messages. The body is the
// flat set of signed gateway fields, the same ones the HTTP callback gets
// as a query string.
type PaymentResultHandler struct {
	settler      Settler
	verifier     Verifier
	deduper      *util.Deduper
	retryCounter *util.RetryCounter
	dlq          DeadLetterer
	maxRetries   int64
	logger       *zap.Logger
}

func NewPaymentResultHandler(
	settler Settler,
	verifier Verifier,
	deduper *util.Deduper,
	retryCounter *util.RetryCounter,
	dlq DeadLetterer,
	maxRetries int64,
	logger *zap.Logger,
) *PaymentResultHandler {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	return &PaymentResultHandler{
		settler:      settler,
		verifier:     verifier,
		deduper:      deduper,
		retryCounter: retryCounter,
		dlq:          dlq,
		maxRetries:   maxRetries,
		logger:       logger,
	}
}

// HandlePaymentResult returns an error only when the message should be
// redelivered. Everything else is acked, parked in the DLQ when it can never
// be applied.
func (h *PaymentResultHandler) HandlePaymentResult(ctx context.Context, raw json.RawMessage) error {
	log := logger.WithTrace(ctx, h.logger)

	var fields map[string]string
	if err := json.Unmarshal(raw, &fields); err != nil {
		log.Error("Failed to unmarshal payment result (non-retryable, sending to DLQ)",
			zap.Error(err),
			zap.String("raw_payload", string(raw)),
		)
		h.deadLetter(ctx, raw, fmt.Errorf("json_unmarshal_error: %w", err))
		return nil
	}

	values := url.Values{}
	for k, v := range fields {
		values.Set(k, v)
	}
	res, err := h.verifier.VerifyCallback(values)
	if err != nil {
		log.Warn("Rejected relayed payment result", zap.Error(err))
		h.deadLetter(ctx, raw, err)
		return nil
	}

	id := dedupID(res)
	if !h.deduper.AcquireOnce(ctx, paymentResultHandler, id) {
		return nil
	}

	err = h.settler.OnPaymentResult(ctx, res)
	if err == nil {
		h.resetRetries(ctx, id)
		log.Info("Payment result applied",
			zap.Int64("project_id", res.ProjectID),
			zap.String("txn_ref", res.TxnRef),
			zap.String("response_code", res.ResponseCode),
		)
		return nil
	}

	var wfErr *workflow.Error
	if errors.As(err, &wfErr) {
		// the interlock refused it; redelivery would be refused the same way
		log.Warn("Payment result refused",
			zap.Int64("project_id", res.ProjectID),
			zap.String("txn_ref", res.TxnRef),
			zap.String("kind", string(wfErr.Kind)),
			zap.String("reason", wfErr.Reason),
		)
		h.resetRetries(ctx, id)
		if wfErr.Kind == workflow.KindNotFound {
			h.deadLetter(ctx, raw, err)
		}
		return nil
	}

	retryable, errType := util.IsRetryableError(err)
	retryKey := util.FormatRetryKey(paymentResultHandler, id)
	retryCount, cerr := h.retryCounter.IncrementAndGet(ctx, retryKey)
	if cerr != nil {
		log.Warn("Failed to get retry count, continuing anyway", zap.String("txn_ref", res.TxnRef), zap.Error(cerr))
		retryCount = 1
	}

	log.Error("Failed to apply payment result",
		zap.Int64("project_id", res.ProjectID),
		zap.String("txn_ref", res.TxnRef),
		zap.String("error_type", errType),
		zap.Bool("retryable", retryable),
		zap.Int64("retry_count", retryCount),
		zap.Error(err),
	)

	if !util.ShouldRetry(retryCount, h.maxRetries, retryable) {
		h.resetRetries(ctx, id)
		h.deadLetter(ctx, raw, err)
		return nil
	}

	h.deduper.Release(ctx, paymentResultHandler, id)
	return err
}

func (h *PaymentResultHandler) resetRetries(ctx context.Context, id string) {
	if err := h.retryCounter.Reset(ctx, util.FormatRetryKey(paymentResultHandler, id)); err != nil {
		h.logger.Warn("Failed to reset retry count", zap.String("id", id), zap.Error(err))
	}
}

func (h *PaymentResultHandler) deadLetter(ctx context.Context, raw []byte, cause error) {
	if err := h.dlq.PublishToDLQ(ctx, RoutingPaymentResult, raw, cause.Error()); err != nil {
		h.logger.Error("Failed to publish payment result to DLQ", zap.Error(err))
	}
}

// dedupID keys a result by gateway transaction and outcome, so a decline
// followed by a success on the same transaction is still applied.
func dedupID(res workflow.PaymentResult) string {
	ref := res.TxnRef
	if ref == "" {
		ref = fmt.Sprintf("project-%d-%s", res.ProjectID, res.Kind)
	}
	return ref + ":" + res.ResponseCode
}
