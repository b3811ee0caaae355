package workflow_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"pondflow/internal/model"
	"pondflow/internal/workflow"
)

func TestCanTransitionProject(t *testing.T) {
	tests := []struct {
		from, to model.ProjectStatus
		want     bool
	}{
		{model.ProjectPending, model.ProjectApproved, true},
		{model.ProjectPending, model.ProjectCancelled, true},
		{model.ProjectPending, model.ProjectInProgress, false},
		{model.ProjectApproved, model.ProjectInProgress, true},
		{model.ProjectInProgress, model.ProjectOnHold, true},
		{model.ProjectInProgress, model.ProjectTechnicallyCompleted, true},
		{model.ProjectInProgress, model.ProjectCompleted, false},
		{model.ProjectOnHold, model.ProjectInProgress, true},
		{model.ProjectTechnicallyCompleted, model.ProjectCompleted, true},
		{model.ProjectTechnicallyCompleted, model.ProjectCancelled, false},
		{model.ProjectMaintenance, model.ProjectInProgress, true},
		{model.ProjectCompleted, model.ProjectInProgress, false},
		{model.ProjectCancelled, model.ProjectPending, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, workflow.CanTransitionProject(tt.from, tt.to))
		})
	}
}

func TestCanTransitionDesignRequest(t *testing.T) {
	allowed := map[model.DesignRequestStatus][]model.DesignRequestStatus{
		model.DesignRequestPending:                 {model.DesignRequestInProgress, model.DesignRequestCancelled},
		model.DesignRequestInProgress:              {model.DesignRequestCompleted, model.DesignRequestCancelled},
		model.DesignRequestCompleted:               {model.DesignRequestPendingCustomerApproval, model.DesignRequestInProgress, model.DesignRequestCancelled},
		model.DesignRequestPendingCustomerApproval: {model.DesignRequestApproved, model.DesignRequestInProgress, model.DesignRequestCancelled},
		model.DesignRequestRejected:                {model.DesignRequestInProgress},
		model.DesignRequestApproved:                nil,
		model.DesignRequestCancelled:               nil,
	}
	all := []model.DesignRequestStatus{
		model.DesignRequestPending, model.DesignRequestInProgress, model.DesignRequestCompleted,
		model.DesignRequestPendingCustomerApproval, model.DesignRequestApproved,
		model.DesignRequestRejected, model.DesignRequestCancelled,
	}

	for from, targets := range allowed {
		want := make(map[model.DesignRequestStatus]bool)
		for _, to := range targets {
			want[to] = true
		}
		for _, to := range all {
			assert.Equal(t, want[to], workflow.CanTransitionDesignRequest(from, to), "%s -> %s", from, to)
		}
	}
}

func TestCanTransitionPayment_Monotonic(t *testing.T) {
	order := []model.PaymentStatus{model.PaymentUnpaid, model.PaymentDepositPaid, model.PaymentFullyPaid}
	for i, from := range order {
		for j, to := range order {
			assert.Equal(t, j == i+1, workflow.CanTransitionPayment(from, to), "%s -> %s", from, to)
		}
	}
}

func TestCanTransitionConsultation(t *testing.T) {
	assert.True(t, workflow.CanTransitionConsultation(model.ConsultationPending, model.ConsultationInProgress))
	assert.False(t, workflow.CanTransitionConsultation(model.ConsultationPending, model.ConsultationCompleted))
	assert.True(t, workflow.CanTransitionConsultation(model.ConsultationProceedDesign, model.ConsultationCompleted))
	assert.False(t, workflow.CanTransitionConsultation(model.ConsultationCompleted, model.ConsultationInProgress))
	assert.False(t, workflow.CanTransitionConsultation(model.ConsultationCancelled, model.ConsultationPending))
}

// Folding a request sequence over the table: every step outside it is
// refused with InvalidTransition and leaves the status unchanged.
func TestProjectStatusFold(t *testing.T) {
	f := newFixture(t)
	p := f.pendingProject(t)
	f.payDeposit(t, p.ID)
	_, err := f.projects.AssignConstructor(f.ctx, f.manager, p.ID, f.constructor.UserID)
	assert.NoError(t, err)

	steps := []struct {
		to model.ProjectStatus
		ok bool
	}{
		{model.ProjectPending, false},
		{model.ProjectOnHold, true},
		{model.ProjectOnHold, false},
		{model.ProjectApproved, false},
		{model.ProjectInProgress, true},
		{model.ProjectCompleted, false},
	}
	want := model.ProjectInProgress
	for _, s := range steps {
		_, err := f.projects.UpdateStatus(f.ctx, f.manager, p.ID, s.to, "")
		if s.ok {
			assert.NoError(t, err, "-> %s", s.to)
			want = s.to
		} else {
			assert.ErrorIs(t, err, workflow.ErrInvalidTransition, "-> %s", s.to)
		}
		assert.Equal(t, want, f.project(t, p.ID).Status)
	}
}

func TestSyncDesignStatus(t *testing.T) {
	tests := []struct {
		request model.DesignRequestStatus
		design  model.DesignStatus
		ok      bool
	}{
		{model.DesignRequestApproved, model.DesignApproved, true},
		{model.DesignRequestRejected, model.DesignRejected, true},
		{model.DesignRequestCancelled, model.DesignCancelled, true},
		{model.DesignRequestInProgress, model.DesignPendingApproval, true},
		{model.DesignRequestPending, "", false},
		{model.DesignRequestCompleted, "", false},
		{model.DesignRequestPendingCustomerApproval, "", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.request), func(t *testing.T) {
			got, ok := workflow.SyncDesignStatus(tt.request)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.design, got)
		})
	}
}

func TestErrorKinds(t *testing.T) {
	f := newFixture(t)

	_, err := f.projects.Get(f.ctx, f.manager, 404)
	assert.ErrorIs(t, err, workflow.ErrNotFound)
	assert.NotErrorIs(t, err, workflow.ErrConflict)

	kind, ok := workflow.KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, workflow.KindNotFound, kind)

	_, ok = workflow.KindOf(assert.AnError)
	assert.False(t, ok)
}
