package workflow_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pondflow/internal/model"
	"pondflow/internal/workflow"
)

func TestPayment_DepositApprovesOnce(t *testing.T) {
	f := newFixture(t)
	p := f.pendingProject(t)
	res := workflow.PaymentResult{
		ProjectID:    p.ID,
		Kind:         model.PaymentKindDeposit,
		ResponseCode: workflow.ResponseCodeSuccess,
		TxnRef:       "txn-1",
		Amount:       p.DepositAmount,
	}

	require.NoError(t, f.payments.OnPaymentResult(f.ctx, res))
	got := f.project(t, p.ID)
	assert.Equal(t, model.PaymentDepositPaid, got.PaymentStatus)
	assert.Equal(t, model.ProjectApproved, got.Status)

	err := f.payments.OnPaymentResult(f.ctx, res)
	assert.ErrorIs(t, err, workflow.ErrPreconditionFailed)
	assert.ErrorIs(t, err, workflow.ErrAlreadySettled)
	got = f.project(t, p.ID)
	assert.Equal(t, model.PaymentDepositPaid, got.PaymentStatus)
	assert.Equal(t, model.ProjectApproved, got.Status)

	keys := f.routingKeys()
	assert.Contains(t, keys, workflow.RoutingPaymentStatusChanged)
	assert.Contains(t, keys, workflow.RoutingProjectStatusChanged)
}

func TestPayment_DeclinedLeavesProjectUntouched(t *testing.T) {
	f := newFixture(t)
	p := f.pendingProject(t)

	err := f.payments.OnPaymentResult(f.ctx, workflow.PaymentResult{
		ProjectID: p.ID, Kind: model.PaymentKindDeposit, ResponseCode: "24", TxnRef: "txn-2",
	})
	require.NoError(t, err)
	got := f.project(t, p.ID)
	assert.Equal(t, model.PaymentUnpaid, got.PaymentStatus)
	assert.Equal(t, model.ProjectPending, got.Status)
	assert.Contains(t, f.routingKeys(), workflow.RoutingPaymentDeclined)
}

func TestPayment_ResultValidation(t *testing.T) {
	f := newFixture(t)
	p := f.pendingProject(t)

	tests := []struct {
		name string
		res  workflow.PaymentResult
		want error
	}{
		{
			name: "wrong amount",
			res:  workflow.PaymentResult{ProjectID: p.ID, Kind: model.PaymentKindDeposit, ResponseCode: "00", Amount: 1},
			want: workflow.ErrPreconditionFailed,
		},
		{
			name: "unknown kind",
			res:  workflow.PaymentResult{ProjectID: p.ID, Kind: "TIP", ResponseCode: "00"},
			want: workflow.ErrPreconditionFailed,
		},
		{
			name: "final before technical completion",
			res:  workflow.PaymentResult{ProjectID: p.ID, Kind: model.PaymentKindFinal, ResponseCode: "00"},
			want: workflow.ErrPreconditionFailed,
		},
		{
			name: "unknown project",
			res:  workflow.PaymentResult{ProjectID: 999, Kind: model.PaymentKindDeposit, ResponseCode: "00"},
			want: workflow.ErrNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.payments.OnPaymentResult(f.ctx, tt.res)
			assert.ErrorIs(t, err, tt.want)
			assert.NotErrorIs(t, err, workflow.ErrAlreadySettled)
		})
	}
	assert.Equal(t, model.PaymentUnpaid, f.project(t, p.ID).PaymentStatus)
}

func TestPayment_StatusIsMonotonic(t *testing.T) {
	f := newFixture(t)
	p := f.technicallyCompletedProject(t)

	require.NoError(t, f.payments.OnPaymentResult(f.ctx, workflow.PaymentResult{
		ProjectID: p.ID, Kind: model.PaymentKindFinal, ResponseCode: "00", Amount: p.RemainingAmount,
	}))
	assert.Equal(t, model.PaymentFullyPaid, f.project(t, p.ID).PaymentStatus)

	for _, kind := range []model.PaymentKind{model.PaymentKindDeposit, model.PaymentKindFinal} {
		err := f.payments.OnPaymentResult(f.ctx, workflow.PaymentResult{ProjectID: p.ID, Kind: kind, ResponseCode: "00"})
		assert.ErrorIs(t, err, workflow.ErrPreconditionFailed, string(kind))
		assert.ErrorIs(t, err, workflow.ErrAlreadySettled, string(kind))
	}

	var seen []string
	for _, ev := range f.store.Events() {
		if ev.RoutingKey == workflow.RoutingPaymentStatusChanged && ev.AggregateID == p.ID {
			seen = append(seen, ev.Payload.To)
		}
	}
	assert.Equal(t, []string{string(model.PaymentDepositPaid), string(model.PaymentFullyPaid)}, seen)
}

func TestPayment_CancelledProjectRejectsPayment(t *testing.T) {
	f := newFixture(t)
	p := f.pendingProject(t)
	_, err := f.projects.Cancel(f.ctx, f.customer, p.ID, "no budget")
	require.NoError(t, err)

	err = f.payments.OnPaymentResult(f.ctx, workflow.PaymentResult{ProjectID: p.ID, Kind: model.PaymentKindDeposit, ResponseCode: "00"})
	assert.ErrorIs(t, err, workflow.ErrPreconditionFailed)
	assert.NotErrorIs(t, err, workflow.ErrAlreadySettled)
	assert.Equal(t, model.PaymentUnpaid, f.project(t, p.ID).PaymentStatus)
}

func TestPayment_RequestDepositURL(t *testing.T) {
	f := newFixture(t)
	stranger := f.user(t, "stranger", model.RoleCustomer)
	p := f.pendingProject(t)

	_, err := f.payments.RequestPaymentURL(f.ctx, stranger, p.ID, model.PaymentKindDeposit)
	assert.ErrorIs(t, err, workflow.ErrUnauthorized)
	_, err = f.payments.RequestPaymentURL(f.ctx, f.constructor, p.ID, model.PaymentKindDeposit)
	assert.ErrorIs(t, err, workflow.ErrUnauthorized)
	_, err = f.payments.RequestPaymentURL(f.ctx, f.customer, p.ID, model.PaymentKindFinal)
	assert.ErrorIs(t, err, workflow.ErrPreconditionFailed)

	url, err := f.payments.RequestPaymentURL(f.ctx, f.customer, p.ID, model.PaymentKindDeposit)
	require.NoError(t, err)
	assert.Equal(t, p.DepositAmount, url.Amount)
	assert.NotEmpty(t, url.TxnRef)
	assert.Contains(t, url.URL, url.TxnRef)
	require.Len(t, f.gateway.requests, 1)
	assert.Equal(t, p.ID, f.gateway.requests[0].ProjectID)
	assert.Equal(t, p.DepositAmount, f.gateway.requests[0].AmountMinorUnits)

	f.payDeposit(t, p.ID)
	_, err = f.payments.RequestPaymentURL(f.ctx, f.customer, p.ID, model.PaymentKindDeposit)
	assert.ErrorIs(t, err, workflow.ErrPreconditionFailed)
}

func TestPayment_RequestFinalURL(t *testing.T) {
	f := newFixture(t)
	p := f.technicallyCompletedProject(t)

	url, err := f.payments.RequestPaymentURL(f.ctx, f.manager, p.ID, model.PaymentKindFinal)
	require.NoError(t, err)
	assert.Equal(t, p.RemainingAmount, url.Amount)
	assert.Equal(t, int64(7000), url.Amount)
}

func TestPayment_GatewayFailureIsInternal(t *testing.T) {
	f := newFixture(t)
	p := f.pendingProject(t)
	f.gateway.err = errors.New("gateway unavailable")

	_, err := f.payments.RequestPaymentURL(f.ctx, f.customer, p.ID, model.PaymentKindDeposit)
	require.Error(t, err)
	var werr *workflow.Error
	assert.False(t, errors.As(err, &werr))
	assert.Equal(t, model.PaymentUnpaid, f.project(t, p.ID).PaymentStatus)
}

func TestPayment_ManualPayment(t *testing.T) {
	f := newFixture(t)
	p := f.pendingProject(t)

	_, err := f.payments.RecordManualPayment(f.ctx, f.consultant, p.ID, model.PaymentKindDeposit)
	assert.ErrorIs(t, err, workflow.ErrUnauthorized)

	got, err := f.payments.RecordManualPayment(f.ctx, f.manager, p.ID, model.PaymentKindDeposit)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentDepositPaid, got.PaymentStatus)
	assert.Equal(t, model.ProjectApproved, got.Status)

	_, err = f.payments.RecordManualPayment(f.ctx, f.manager, p.ID, model.PaymentKindFinal)
	assert.ErrorIs(t, err, workflow.ErrPreconditionFailed)
}
