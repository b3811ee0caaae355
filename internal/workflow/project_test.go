package workflow_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pondflow/internal/model"
	"pondflow/internal/workflow"
)

func TestProject_CreateFromCatalogConsultation(t *testing.T) {
	f := newFixture(t)
	p := f.pendingProject(t)

	assert.Equal(t, model.ProjectPending, p.Status)
	assert.Equal(t, model.PaymentUnpaid, p.PaymentStatus)
	assert.Equal(t, int64(3000), p.DepositAmount)
	assert.Equal(t, int64(7000), p.RemainingAmount)
	assert.Equal(t, len(testTasks)+1, p.TotalStages)
	assert.Equal(t, f.customer.UserID, p.CustomerID)

	tasks, err := f.projects.ListTasks(f.ctx, f.manager, p.ID)
	require.NoError(t, err)
	require.Len(t, tasks, len(testTasks))
	for i, task := range tasks {
		assert.Equal(t, testTasks[i], task.Name)
		assert.Equal(t, i+1, task.OrderIndex)
	}

	_, err = f.projects.Create(f.ctx, f.consultant, workflow.ProjectInput{ConsultationID: p.ConsultationID, TotalPrice: 100})
	assert.ErrorIs(t, err, workflow.ErrConflict)
}

func TestProject_CreateGates(t *testing.T) {
	f := newFixture(t)
	c := f.customConsultation(t)

	_, err := f.projects.Create(f.ctx, f.customer, workflow.ProjectInput{ConsultationID: c.ID, TotalPrice: 100})
	assert.ErrorIs(t, err, workflow.ErrUnauthorized)
	_, err = f.projects.Create(f.ctx, f.consultant, workflow.ProjectInput{ConsultationID: c.ID, TotalPrice: 100})
	assert.ErrorIs(t, err, workflow.ErrPreconditionFailed)
	_, err = f.projects.Create(f.ctx, f.consultant, workflow.ProjectInput{ConsultationID: 999, TotalPrice: 100})
	assert.ErrorIs(t, err, workflow.ErrNotFound)

	done := f.completedCatalogConsultation(t)
	_, err = f.projects.Create(f.ctx, f.consultant, workflow.ProjectInput{ConsultationID: done.ID})
	assert.ErrorIs(t, err, workflow.ErrPreconditionFailed, "total price must be positive")
	deposit := int64(200)
	_, err = f.projects.Create(f.ctx, f.consultant, workflow.ProjectInput{ConsultationID: done.ID, TotalPrice: 100, DepositAmount: &deposit})
	assert.ErrorIs(t, err, workflow.ErrPreconditionFailed)
}

func TestProject_CreateFromCustomConsultation(t *testing.T) {
	f := newFixture(t)
	c := f.customConsultation(t)
	r, d := f.submittedRequest(t, c.ID)
	_, err := f.requests.ConsultantReview(f.ctx, f.consultant, r.ID, true, "")
	require.NoError(t, err)
	_, err = f.requests.CustomerApproval(f.ctx, f.customer, r.ID, true, "")
	require.NoError(t, err)
	_, err = f.consultations.UpdateStatus(f.ctx, f.consultant, c.ID, model.ConsultationCompleted, "design signed off")
	require.NoError(t, err)

	other := f.catalogDesign(t)
	_, err = f.projects.Create(f.ctx, f.consultant, workflow.ProjectInput{ConsultationID: c.ID, DesignID: &other.ID, TotalPrice: 9000})
	assert.ErrorIs(t, err, workflow.ErrPreconditionFailed)

	deposit := int64(4500)
	p, err := f.projects.Create(f.ctx, f.consultant, workflow.ProjectInput{ConsultationID: c.ID, TotalPrice: 9000, DepositAmount: &deposit})
	require.NoError(t, err)
	assert.Equal(t, d.ID, p.DesignID)
	assert.Equal(t, int64(4500), p.RemainingAmount)
	assert.Equal(t, "Custom koi project", p.Name)
}

func TestProject_TechnicalCompletionNeedsEveryTask(t *testing.T) {
	f := newFixture(t)
	p := f.inProgressProject(t)
	tasks, err := f.projects.ListTasks(f.ctx, f.manager, p.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 3)

	f.finishTask(t, tasks[0].ID)
	f.finishTask(t, tasks[1].ID)
	status := "IN_PROGRESS"
	pct := 40
	_, err = f.projects.UpdateTask(f.ctx, f.constructor, tasks[2].ID, workflow.TaskUpdate{Status: &status, CompletionPercentage: &pct})
	require.NoError(t, err)

	done, err := f.projects.AreAllTasksCompleted(f.ctx, f.constructor, p.ID)
	require.NoError(t, err)
	assert.False(t, done)
	p = f.project(t, p.ID)
	assert.Equal(t, 66, p.ProgressPercentage)
	assert.Equal(t, 2, p.CompletedStages)

	_, err = f.projects.MarkTechnicallyCompleted(f.ctx, f.constructor, p.ID)
	assert.ErrorIs(t, err, workflow.ErrPreconditionFailed)
	assert.Equal(t, model.ProjectInProgress, f.project(t, p.ID).Status)

	f.finishTask(t, tasks[2].ID)
	done, err = f.projects.AreAllTasksCompleted(f.ctx, f.constructor, p.ID)
	require.NoError(t, err)
	assert.True(t, done)

	p, err = f.projects.MarkTechnicallyCompleted(f.ctx, f.constructor, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProjectTechnicallyCompleted, p.Status)
	assert.Equal(t, 100, p.ProgressPercentage)
	assert.Equal(t, p.TotalStages-1, p.CompletedStages)
	assert.NotNil(t, p.TechnicalCompletionDate)
}

func TestProject_UpdateTaskRules(t *testing.T) {
	f := newFixture(t)
	stranger := f.user(t, "stranger", model.RoleConstructionStaff)
	p := f.inProgressProject(t)
	tasks, err := f.projects.ListTasks(f.ctx, f.manager, p.ID)
	require.NoError(t, err)

	pct := 50
	_, err = f.projects.UpdateTask(f.ctx, stranger, tasks[0].ID, workflow.TaskUpdate{CompletionPercentage: &pct})
	assert.ErrorIs(t, err, workflow.ErrUnauthorized)
	_, err = f.projects.UpdateTask(f.ctx, f.customer, tasks[0].ID, workflow.TaskUpdate{CompletionPercentage: &pct})
	assert.ErrorIs(t, err, workflow.ErrUnauthorized)
	_, err = f.projects.UpdateTask(f.ctx, f.constructor, 999, workflow.TaskUpdate{CompletionPercentage: &pct})
	assert.ErrorIs(t, err, workflow.ErrNotFound)

	bad := 101
	_, err = f.projects.UpdateTask(f.ctx, f.constructor, tasks[0].ID, workflow.TaskUpdate{CompletionPercentage: &bad})
	assert.ErrorIs(t, err, workflow.ErrPreconditionFailed)

	notes := "liner delivered"
	task, err := f.projects.UpdateTask(f.ctx, f.constructor, tasks[0].ID, workflow.TaskUpdate{CompletionPercentage: &pct, Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, 50, task.CompletionPercentage)
	assert.Equal(t, notes, task.Notes)

	// percentages alone do not count as completed tasks
	pctNow, err := f.projects.RecomputeProgress(f.ctx, f.constructor, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, pctNow)

	_, err = f.projects.UpdateStatus(f.ctx, f.manager, p.ID, model.ProjectOnHold, "rain")
	require.NoError(t, err)
	_, err = f.projects.UpdateTask(f.ctx, f.constructor, tasks[0].ID, workflow.TaskUpdate{CompletionPercentage: &pct})
	assert.ErrorIs(t, err, workflow.ErrPreconditionFailed)
	_, err = f.projects.RecomputeProgress(f.ctx, f.constructor, p.ID)
	assert.ErrorIs(t, err, workflow.ErrPreconditionFailed)
}

func TestProject_RecomputeProgressRules(t *testing.T) {
	f := newFixture(t)
	stranger := f.user(t, "stranger", model.RoleConstructionStaff)
	p := f.inProgressProject(t)
	tasks, err := f.projects.ListTasks(f.ctx, f.constructor, p.ID)
	require.NoError(t, err)
	f.finishTask(t, tasks[0].ID)

	_, err = f.projects.RecomputeProgress(f.ctx, f.customer, p.ID)
	assert.ErrorIs(t, err, workflow.ErrUnauthorized)
	_, err = f.projects.RecomputeProgress(f.ctx, stranger, p.ID)
	assert.ErrorIs(t, err, workflow.ErrUnauthorized)
	_, err = f.projects.RecomputeProgress(f.ctx, f.manager, 404)
	assert.ErrorIs(t, err, workflow.ErrNotFound)

	pct, err := f.projects.RecomputeProgress(f.ctx, f.manager, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 33, pct)
}

func TestProject_CompletedProgressIsFrozen(t *testing.T) {
	f := newFixture(t)
	p := f.technicallyCompletedProject(t)
	require.Equal(t, p.TotalStages-1, p.CompletedStages)

	_, err := f.projects.RecomputeProgress(f.ctx, f.constructor, p.ID)
	assert.ErrorIs(t, err, workflow.ErrPreconditionFailed)
	_, err = f.projects.RecomputeProgress(f.ctx, f.manager, p.ID)
	assert.ErrorIs(t, err, workflow.ErrPreconditionFailed)

	got := f.project(t, p.ID)
	assert.Equal(t, 100, got.ProgressPercentage)
	assert.Equal(t, p.TotalStages-1, got.CompletedStages)

	// the manager sign-off stage survives a recompute attempt
	require.NoError(t, f.payments.OnPaymentResult(f.ctx, workflow.PaymentResult{
		ProjectID: p.ID, Kind: model.PaymentKindFinal, ResponseCode: workflow.ResponseCodeSuccess, TxnRef: "txn-final",
	}))
	p, err = f.projects.Complete(f.ctx, f.manager, p.ID)
	require.NoError(t, err)
	require.Equal(t, p.TotalStages, p.CompletedStages)

	_, err = f.projects.RecomputeProgress(f.ctx, f.manager, p.ID)
	assert.ErrorIs(t, err, workflow.ErrPreconditionFailed)
	got = f.project(t, p.ID)
	assert.Equal(t, model.ProjectCompleted, got.Status)
	assert.Equal(t, got.TotalStages, got.CompletedStages)
}

func TestProject_ApprovalNeedsDeposit(t *testing.T) {
	f := newFixture(t)
	p := f.pendingProject(t)

	_, err := f.projects.UpdateStatus(f.ctx, f.manager, p.ID, model.ProjectApproved, "")
	assert.ErrorIs(t, err, workflow.ErrPreconditionFailed)
	assert.Equal(t, model.ProjectPending, f.project(t, p.ID).Status)

	_, err = f.projects.UpdateStatus(f.ctx, f.manager, p.ID, model.ProjectInProgress, "")
	assert.ErrorIs(t, err, workflow.ErrInvalidTransition)
}

func TestProject_RoleGating(t *testing.T) {
	f := newFixture(t)
	otherConsultant := f.user(t, "other-consultant", model.RoleConsultant)
	p := f.inProgressProject(t)

	_, err := f.projects.UpdateStatus(f.ctx, otherConsultant, p.ID, model.ProjectOnHold, "")
	assert.ErrorIs(t, err, workflow.ErrUnauthorized)
	_, err = f.projects.UpdateStatus(f.ctx, f.consultant, p.ID, model.ProjectTechnicallyCompleted, "")
	assert.ErrorIs(t, err, workflow.ErrUnauthorized)
	_, err = f.projects.UpdateStatus(f.ctx, f.customer, p.ID, model.ProjectOnHold, "")
	assert.ErrorIs(t, err, workflow.ErrUnauthorized)
	_, err = f.projects.UpdateStatus(f.ctx, f.manager, p.ID, model.ProjectCompleted, "")
	assert.ErrorIs(t, err, workflow.ErrInvalidTransition)
	_, err = f.projects.Complete(f.ctx, f.consultant, p.ID)
	assert.ErrorIs(t, err, workflow.ErrUnauthorized)
	_, err = f.projects.MarkTechnicallyCompleted(f.ctx, f.manager, p.ID)
	assert.ErrorIs(t, err, workflow.ErrUnauthorized)

	p, err = f.projects.UpdateStatus(f.ctx, f.consultant, p.ID, model.ProjectOnHold, "permit")
	require.NoError(t, err)
	assert.Equal(t, model.ProjectOnHold, p.Status)
	p, err = f.projects.UpdateStatus(f.ctx, f.consultant, p.ID, model.ProjectInProgress, "")
	require.NoError(t, err)
	assert.Equal(t, model.ProjectInProgress, p.Status)
}

func TestProject_ManagerTechnicalCompletionChecksTasks(t *testing.T) {
	f := newFixture(t)
	p := f.inProgressProject(t)

	_, err := f.projects.UpdateStatus(f.ctx, f.manager, p.ID, model.ProjectTechnicallyCompleted, "")
	assert.ErrorIs(t, err, workflow.ErrPreconditionFailed)
}

func TestProject_AssignConstructorOnce(t *testing.T) {
	f := newFixture(t)
	p := f.pendingProject(t)

	_, err := f.projects.AssignConstructor(f.ctx, f.manager, p.ID, f.constructor.UserID)
	assert.ErrorIs(t, err, workflow.ErrPreconditionFailed, "deposit not paid")

	f.payDeposit(t, p.ID)
	_, err = f.projects.AssignConstructor(f.ctx, f.manager, p.ID, f.designer.UserID)
	assert.ErrorIs(t, err, workflow.ErrPreconditionFailed)

	p, err = f.projects.AssignConstructor(f.ctx, f.manager, p.ID, f.constructor.UserID)
	require.NoError(t, err)
	assert.Equal(t, model.ProjectInProgress, p.Status)
	require.NotNil(t, p.ConstructorID)
	assert.True(t, f.getUser(t, f.constructor.UserID).HasActiveProject)

	_, err = f.projects.AssignConstructor(f.ctx, f.manager, p.ID, f.constructor.UserID)
	assert.ErrorIs(t, err, workflow.ErrPreconditionFailed)
	assert.Contains(t, f.routingKeys(), workflow.RoutingConstructorAssigned)
}

func TestProject_ConstructorBusyUntilReleased(t *testing.T) {
	f := newFixture(t)
	first := f.inProgressProject(t)
	second := f.pendingProject(t)
	f.payDeposit(t, second.ID)

	_, err := f.projects.AssignConstructor(f.ctx, f.consultant, second.ID, f.constructor.UserID)
	assert.ErrorIs(t, err, workflow.ErrPreconditionFailed)

	_, err = f.projects.Cancel(f.ctx, f.customer, first.ID, "moving house")
	require.NoError(t, err)
	assert.False(t, f.getUser(t, f.constructor.UserID).HasActiveProject)

	p, err := f.projects.AssignConstructor(f.ctx, f.consultant, second.ID, f.constructor.UserID)
	require.NoError(t, err)
	assert.Equal(t, model.ProjectInProgress, p.Status)
	assert.True(t, f.getUser(t, f.constructor.UserID).HasActiveProject)
}

func TestProject_PricingKeepsRemainingAmount(t *testing.T) {
	f := newFixture(t)
	otherConsultant := f.user(t, "other-consultant", model.RoleConsultant)
	p := f.pendingProject(t)

	p, err := f.projects.UpdatePricing(f.ctx, f.manager, p.ID, 20000, 5000)
	require.NoError(t, err)
	assert.Equal(t, p.TotalPrice-p.DepositAmount, p.RemainingAmount)
	assert.Equal(t, int64(15000), p.RemainingAmount)

	p, err = f.projects.UpdatePricing(f.ctx, f.consultant, p.ID, 12000, 12000)
	require.NoError(t, err)
	assert.Equal(t, int64(0), p.RemainingAmount)

	_, err = f.projects.UpdatePricing(f.ctx, otherConsultant, p.ID, 100, 10)
	assert.ErrorIs(t, err, workflow.ErrUnauthorized)
	_, err = f.projects.UpdatePricing(f.ctx, f.manager, p.ID, 100, 200)
	assert.ErrorIs(t, err, workflow.ErrPreconditionFailed)

	f.payDeposit(t, p.ID)
	_, err = f.projects.UpdatePricing(f.ctx, f.manager, p.ID, 30000, 3000)
	assert.ErrorIs(t, err, workflow.ErrPreconditionFailed)
	p = f.project(t, p.ID)
	assert.Equal(t, p.TotalPrice-p.DepositAmount, p.RemainingAmount)
}

func TestProject_CancelRules(t *testing.T) {
	f := newFixture(t)
	stranger := f.user(t, "stranger", model.RoleCustomer)
	p := f.technicallyCompletedProject(t)

	_, err := f.projects.Cancel(f.ctx, stranger, p.ID, "")
	assert.ErrorIs(t, err, workflow.ErrUnauthorized)
	_, err = f.projects.Cancel(f.ctx, f.constructor, p.ID, "")
	assert.ErrorIs(t, err, workflow.ErrUnauthorized)
	_, err = f.projects.Cancel(f.ctx, f.customer, p.ID, "too slow")
	assert.ErrorIs(t, err, workflow.ErrInvalidTransition)

	p, err = f.projects.Cancel(f.ctx, f.manager, p.ID, "site flooded")
	require.NoError(t, err)
	assert.Equal(t, model.ProjectCancelled, p.Status)
	assert.Equal(t, "site flooded", p.CancellationReason)
	assert.False(t, f.getUser(t, f.constructor.UserID).HasActiveProject)

	_, err = f.projects.Cancel(f.ctx, f.manager, p.ID, "again")
	assert.ErrorIs(t, err, workflow.ErrInvalidTransition)
}

func TestProject_FullyPaidCannotBeCancelled(t *testing.T) {
	f := newFixture(t)
	p := f.technicallyCompletedProject(t)
	require.NoError(t, f.payments.OnPaymentResult(f.ctx, workflow.PaymentResult{
		ProjectID: p.ID, Kind: model.PaymentKindFinal, ResponseCode: workflow.ResponseCodeSuccess, TxnRef: "txn-final",
	}))

	_, err := f.projects.Cancel(f.ctx, f.manager, p.ID, "no")
	assert.ErrorIs(t, err, workflow.ErrPreconditionFailed)
}

func TestProject_CompleteNeedsFullPayment(t *testing.T) {
	f := newFixture(t)
	p := f.technicallyCompletedProject(t)

	_, err := f.projects.Complete(f.ctx, f.manager, p.ID)
	assert.ErrorIs(t, err, workflow.ErrPreconditionFailed)

	require.NoError(t, f.payments.OnPaymentResult(f.ctx, workflow.PaymentResult{
		ProjectID: p.ID, Kind: model.PaymentKindFinal, ResponseCode: workflow.ResponseCodeSuccess, TxnRef: "txn-final",
	}))
	p, err = f.projects.Complete(f.ctx, f.manager, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProjectCompleted, p.Status)
	assert.Equal(t, p.TotalStages, p.CompletedStages)
	assert.NotNil(t, p.CompletionDate)
	assert.False(t, f.getUser(t, f.constructor.UserID).HasActiveProject)

	_, err = f.projects.Complete(f.ctx, f.manager, p.ID)
	assert.ErrorIs(t, err, workflow.ErrInvalidTransition)
	_, err = f.projects.UpdateStatus(f.ctx, f.manager, p.ID, model.ProjectCancelled, "")
	assert.ErrorIs(t, err, workflow.ErrInvalidTransition)
}

func TestProject_ConcurrentCancelSucceedsOnce(t *testing.T) {
	f := newFixture(t)
	p := f.pendingProject(t)

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.projects.UpdateStatus(f.ctx, f.manager, p.ID, model.ProjectCancelled, "race")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, workflow.ErrInvalidTransition)
	}
	assert.Equal(t, 1, succeeded)

	cancelled := 0
	for _, ev := range f.store.Events() {
		if ev.RoutingKey == workflow.RoutingProjectStatusChanged && ev.Payload.To == string(model.ProjectCancelled) {
			cancelled++
		}
	}
	assert.Equal(t, 1, cancelled)
}

func TestProject_DepositRacesCancellation(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(t)
		p := f.pendingProject(t)

		var wg sync.WaitGroup
		var payErr, cancelErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			payErr = f.payments.OnPaymentResult(f.ctx, workflow.PaymentResult{
				ProjectID: p.ID, Kind: model.PaymentKindDeposit, ResponseCode: workflow.ResponseCodeSuccess, TxnRef: "txn",
			})
		}()
		go func() {
			defer wg.Done()
			_, cancelErr = f.projects.Cancel(f.ctx, f.customer, p.ID, "changed mind")
		}()
		wg.Wait()

		require.NoError(t, cancelErr, "cancellation is valid from PENDING and APPROVED")
		got := f.project(t, p.ID)
		assert.Equal(t, model.ProjectCancelled, got.Status)
		if payErr != nil {
			// cancellation won: the deposit found a terminal project
			assert.ErrorIs(t, payErr, workflow.ErrPreconditionFailed)
			assert.Equal(t, model.PaymentUnpaid, got.PaymentStatus)
		} else {
			assert.Equal(t, model.PaymentDepositPaid, got.PaymentStatus)
		}
	}
}

func TestProject_ApprovalRacesCancellation(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(t)
		p := f.pendingProject(t)

		var wg sync.WaitGroup
		var approveErr, cancelErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, approveErr = f.projects.UpdateStatus(f.ctx, f.manager, p.ID, model.ProjectApproved, "")
		}()
		go func() {
			defer wg.Done()
			_, cancelErr = f.projects.UpdateStatus(f.ctx, f.manager, p.ID, model.ProjectCancelled, "race")
		}()
		wg.Wait()

		succeeded := 0
		for _, err := range []error{approveErr, cancelErr} {
			if err == nil {
				succeeded++
			}
		}
		require.Equal(t, 1, succeeded)
		require.NoError(t, cancelErr)

		// approval never wins without a deposit: it either meets the unpaid
		// deposit or the already cancelled project
		kind, ok := workflow.KindOf(approveErr)
		require.True(t, ok)
		assert.Contains(t, []workflow.Kind{workflow.KindPreconditionFailed, workflow.KindInvalidTransition}, kind)

		got := f.project(t, p.ID)
		assert.Equal(t, model.ProjectCancelled, got.Status)
		assert.Equal(t, model.PaymentUnpaid, got.PaymentStatus)
	}
}
