package workflow

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pondflow/internal/model"
	"pondflow/pkg/logger"
	"pondflow/pkg/metrics"
)

// ResponseCodeSuccess is the gateway code for a settled payment.
const ResponseCodeSuccess = "00"

// Gateway is the outbound side of the payment gateway adapter.
type Gateway interface {
	CreatePaymentURL(ctx context.Context, req PaymentURLRequest) (string, error)
}

type PaymentURLRequest struct {
	ProjectID        int64
	AmountMinorUnits int64
	Kind             model.PaymentKind
	TxnRef           string
}

// PaymentURL is what a customer is redirected to.
type PaymentURL struct {
	URL    string `json:"url"`
	TxnRef string `json:"txn_ref"`
	Amount int64  `json:"amount"`
}

// PaymentResult is an authenticated gateway callback.
type PaymentResult struct {
	ProjectID    int64             `json:"project_id"`
	Kind         model.PaymentKind `json:"kind"`
	ResponseCode string            `json:"response_code"`
	TxnRef       string            `json:"txn_ref"`
	// Amount in minor units; zero skips the amount check.
	Amount int64 `json:"amount"`
}

// PaymentService is the payment settlement interlock. Callbacks take the
// same project lock as every other project command.
type PaymentService struct {
	engine
	gateway Gateway
}

func NewPaymentService(store Store, locks *KeyedMutex, gateway Gateway, logger *zap.Logger) *PaymentService {
	return &PaymentService{engine: newEngine(store, locks, logger), gateway: gateway}
}

// OnPaymentResult feeds a gateway result into the interlock. A declined
// payment is recorded without touching the project and is not an error.
func (s *PaymentService) OnPaymentResult(ctx context.Context, res PaymentResult) error {
	declined := res.ResponseCode != ResponseCodeSuccess
	err := s.run(ctx, "payment.result", ProjectKey(res.ProjectID), func(u *unit) ([]Event, error) {
		target, ok := res.Kind.Target()
		if !ok {
			return nil, precondition("unknown payment kind %q", res.Kind)
		}
		p, err := u.GetProject(ctx, res.ProjectID)
		if err != nil {
			return nil, loadErr(err, entityProject, res.ProjectID)
		}
		if declined {
			ev := newEvent(ctx, RoutingPaymentDeclined, entityProject, p.ID,
				string(p.PaymentStatus), "", 0, fmt.Sprintf("%s payment declined with code %s", res.Kind, res.ResponseCode))
			return []Event{ev}, nil
		}
		if expected := amountDue(p, res.Kind); res.Amount != 0 && res.Amount != expected {
			return nil, precondition("payment %s for project %d carries %d, expected %d", res.TxnRef, p.ID, res.Amount, expected)
		}
		return applyPayment(ctx, u, p, target, 0, "gateway "+res.TxnRef)
	})

	outcome := "settled"
	switch {
	case err != nil:
		outcome = "rejected"
	case declined:
		outcome = "declined"
	}
	metrics.RecordPaymentCallback(string(res.Kind), outcome)
	return err
}

// RecordManualPayment settles a payment made outside the gateway, such as a
// bank transfer confirmed by a manager.
func (s *PaymentService) RecordManualPayment(ctx context.Context, caller Caller, projectID int64, kind model.PaymentKind) (*model.Project, error) {
	var out *model.Project
	err := s.run(ctx, "payment.manual", ProjectKey(projectID), func(u *unit) ([]Event, error) {
		if err := requireRole(caller, "record payments", model.RoleManager); err != nil {
			return nil, err
		}
		target, ok := kind.Target()
		if !ok {
			return nil, precondition("unknown payment kind %q", kind)
		}
		p, err := u.GetProject(ctx, projectID)
		if err != nil {
			return nil, loadErr(err, entityProject, projectID)
		}
		out = p
		return applyPayment(ctx, u, p, target, caller.UserID, "manual payment")
	})
	if err == nil {
		metrics.RecordPaymentCallback(string(kind), "manual")
	}
	return out, err
}

// RequestPaymentURL validates that kind is payable now and asks the gateway
// for a checkout URL. The gateway call runs outside the project lock.
func (s *PaymentService) RequestPaymentURL(ctx context.Context, caller Caller, projectID int64, kind model.PaymentKind) (*PaymentURL, error) {
	var amount int64
	err := s.run(ctx, "payment.request_url", ProjectKey(projectID), func(u *unit) ([]Event, error) {
		if err := requireRole(caller, "request a payment", model.RoleCustomer, model.RoleManager); err != nil {
			return nil, err
		}
		p, err := u.GetProject(ctx, projectID)
		if err != nil {
			return nil, loadErr(err, entityProject, projectID)
		}
		if caller.Is(model.RoleCustomer) && p.CustomerID != caller.UserID {
			return nil, unauthorized("project %d belongs to another customer", projectID)
		}
		switch kind {
		case model.PaymentKindDeposit:
			if p.PaymentStatus != model.PaymentUnpaid {
				return nil, alreadySettled("deposit of project %d is already settled (%s)", projectID, p.PaymentStatus)
			}
		case model.PaymentKindFinal:
			if p.PaymentStatus == model.PaymentFullyPaid {
				return nil, alreadySettled("project %d is already fully paid", projectID)
			}
			if p.PaymentStatus != model.PaymentDepositPaid || p.Status != model.ProjectTechnicallyCompleted {
				return nil, precondition("final payment of project %d needs DEPOSIT_PAID and TECHNICALLY_COMPLETED (is %s, %s)",
					projectID, p.PaymentStatus, p.Status)
			}
		default:
			return nil, precondition("unknown payment kind %q", kind)
		}
		if p.Status.Terminal() {
			return nil, precondition("project %d is %s", projectID, p.Status)
		}
		amount = amountDue(p, kind)
		if amount <= 0 {
			return nil, precondition("nothing to pay for the %s of project %d", kind, projectID)
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}

	txnRef := uuid.NewString()
	url, err := s.gateway.CreatePaymentURL(ctx, PaymentURLRequest{
		ProjectID:        projectID,
		AmountMinorUnits: amount,
		Kind:             kind,
		TxnRef:           txnRef,
	})
	if err != nil {
		logger.WithTrace(ctx, s.logger).Error("Failed to create payment URL",
			zap.Int64("project_id", projectID),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("create payment url: %w", err)
	}
	return &PaymentURL{URL: url, TxnRef: txnRef, Amount: amount}, nil
}

func paymentReached(current, target model.PaymentStatus) bool {
	return current == target || current == model.PaymentFullyPaid
}

func amountDue(p *model.Project, kind model.PaymentKind) int64 {
	if kind == model.PaymentKindFinal {
		return p.RemainingAmount
	}
	return p.DepositAmount
}

// applyPayment advances the payment status of p to target. Payment status
// only moves forward, FULLY_PAID waits for technical completion, and a
// deposit on a PENDING project approves it in the same unit of work.
func applyPayment(ctx context.Context, u *unit, p *model.Project, target model.PaymentStatus, actor int64, reason string) ([]Event, error) {
	if paymentReached(p.PaymentStatus, target) {
		return nil, alreadySettled("project %d payment is already %s", p.ID, p.PaymentStatus)
	}
	if p.Status == model.ProjectCancelled {
		return nil, precondition("project %d is cancelled", p.ID)
	}
	if !CanTransitionPayment(p.PaymentStatus, target) {
		return nil, precondition("project %d payment cannot move from %s to %s", p.ID, p.PaymentStatus, target)
	}
	if target == model.PaymentFullyPaid && p.Status != model.ProjectTechnicallyCompleted {
		return nil, precondition("project %d must be TECHNICALLY_COMPLETED before full payment (is %s)", p.ID, p.Status)
	}

	fromPayment := p.PaymentStatus
	fromStatus := p.Status
	p.PaymentStatus = target
	if target == model.PaymentDepositPaid && p.Status == model.ProjectPending {
		p.Status = model.ProjectApproved
	}
	p.UpdatedAt = now()
	if err := u.SaveProject(ctx, p); err != nil {
		return nil, fmt.Errorf("save project: %w", err)
	}

	events := []Event{newEvent(ctx, RoutingPaymentStatusChanged, entityProject, p.ID,
		string(fromPayment), string(target), actor, reason)}
	if p.Status != fromStatus {
		events = append(events, newEvent(ctx, RoutingProjectStatusChanged, entityProject, p.ID,
			string(fromStatus), string(p.Status), actor, "deposit paid"))
	}
	return events, nil
}
