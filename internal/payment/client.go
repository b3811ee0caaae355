package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"pondflow/internal/workflow"
	"pondflow/pkg/circuitbreaker"
	"pondflow/pkg/logger"
	"pondflow/pkg/metrics"
	"pondflow/pkg/trace"
)

const checkoutPath = "/v1/checkout"

type Config struct {
	BaseURL      string
	MerchantCode string
	SecretKey    string
	// ReturnURL is where the gateway sends the customer afterwards.
	ReturnURL string
	Timeout   time.Duration
}

// Client talks to the payment gateway. Checkout sessions go through a
// circuit breaker so a failing gateway is not hammered by retries.
type Client struct {
	cfg        Config
	httpClient *http.Client
	cb         *circuitbreaker.CircuitBreaker
	logger     *zap.Logger
}

var _ workflow.Gateway = (*Client)(nil)

func NewClient(cfg Config, log *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		cb: circuitbreaker.NewCircuitBreaker(circuitbreaker.Config{
			FailureThreshold:    3,
			SuccessThreshold:    2,
			Timeout:             30 * time.Second,
			HalfOpenMaxRequests: 2,
		}),
		logger: log,
	}
}

type checkoutRequest struct {
	Merchant  string `json:"merchant"`
	ProjectID int64  `json:"project_id"`
	Amount    int64  `json:"amount"`
	Kind      string `json:"kind"`
	TxnRef    string `json:"txn_ref"`
	ReturnURL string `json:"return_url"`
	Signature string `json:"signature"`
}

type checkoutResponse struct {
	PaymentURL string `json:"payment_url"`
}

// CreatePaymentURL opens a checkout session and returns the URL the
// customer is redirected to.
func (c *Client) CreatePaymentURL(ctx context.Context, req workflow.PaymentURLRequest) (string, error) {
	form := url.Values{}
	form.Set("merchant", c.cfg.MerchantCode)
	form.Set("project_id", strconv.FormatInt(req.ProjectID, 10))
	form.Set("amount", strconv.FormatInt(req.AmountMinorUnits, 10))
	form.Set("kind", string(req.Kind))
	form.Set("txn_ref", req.TxnRef)
	form.Set("return_url", c.cfg.ReturnURL)

	body, err := json.Marshal(checkoutRequest{
		Merchant:  c.cfg.MerchantCode,
		ProjectID: req.ProjectID,
		Amount:    req.AmountMinorUnits,
		Kind:      string(req.Kind),
		TxnRef:    req.TxnRef,
		ReturnURL: c.cfg.ReturnURL,
		Signature: Sign(c.cfg.SecretKey, form),
	})
	if err != nil {
		return "", err
	}

	var paymentURL string
	err = c.cb.Execute(func() error {
		start := time.Now()
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+checkoutPath, bytes.NewReader(body))
		if err != nil {
			return err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if traceID := trace.FromContext(ctx); traceID != "" {
			httpReq.Header.Set(trace.HeaderName(), traceID)
		}

		resp, err := c.httpClient.Do(httpReq)
		latency := time.Since(start)
		if err != nil {
			metrics.RecordGatewayCallLatency(checkoutPath, "error", latency)
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			metrics.RecordGatewayCallLatency(checkoutPath, strconv.Itoa(resp.StatusCode), latency)
			return fmt.Errorf("payment gateway returned %d", resp.StatusCode)
		}
		metrics.RecordGatewayCallLatency(checkoutPath, "success", latency)

		var out checkoutResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return fmt.Errorf("decode checkout response: %w", err)
		}
		if out.PaymentURL == "" {
			return errors.New("payment gateway returned an empty payment url")
		}
		paymentURL = out.PaymentURL
		return nil
	})
	if err != nil {
		logger.WithTrace(ctx, c.logger).Warn("Payment gateway call failed",
			zap.Int64("project_id", req.ProjectID),
			zap.String("txn_ref", req.TxnRef),
			zap.String("breaker", c.cb.GetState().String()),
			zap.Error(err),
		)
		return "", err
	}
	return paymentURL, nil
}

// VerifyCallback authenticates a gateway callback query with the merchant
// secret.
func (c *Client) VerifyCallback(values url.Values) (workflow.PaymentResult, error) {
	return Verify(c.cfg.SecretKey, values)
}
