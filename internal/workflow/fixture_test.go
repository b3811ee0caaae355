package workflow_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pondflow/internal/model"
	"pondflow/internal/repository/memory"
	"pondflow/internal/workflow"
)

type fakeGateway struct {
	mu       sync.Mutex
	requests []workflow.PaymentURLRequest
	err      error
}

func (g *fakeGateway) CreatePaymentURL(_ context.Context, req workflow.PaymentURLRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return "", g.err
	}
	g.requests = append(g.requests, req)
	return fmt.Sprintf("https://pay.example/checkout?ref=%s", req.TxnRef), nil
}

type fixture struct {
	ctx   context.Context
	store *memory.Store

	consultations *workflow.ConsultationService
	designs       *workflow.DesignService
	requests      *workflow.DesignRequestService
	projects      *workflow.ProjectService
	payments      *workflow.PaymentService
	gateway       *fakeGateway

	manager     workflow.Caller
	consultant  workflow.Caller
	designer    workflow.Caller
	constructor workflow.Caller
	customer    workflow.Caller
}

var testTasks = []string{"Excavation", "Liner", "Water fill"}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	locks := workflow.NewKeyedMutex()
	log := zap.NewNop()
	gw := &fakeGateway{}

	f := &fixture{
		ctx:           context.Background(),
		store:         store,
		consultations: workflow.NewConsultationService(store, locks, log),
		designs:       workflow.NewDesignService(store, locks, log),
		requests:      workflow.NewDesignRequestService(store, locks, log),
		projects: workflow.NewProjectService(store, locks, workflow.ProjectConfig{
			DepositPercent: 30,
			TaskTemplates:  testTasks,
		}, log),
		payments: workflow.NewPaymentService(store, locks, gw, log),
		gateway:  gw,
	}
	f.manager = f.user(t, "manager", model.RoleManager)
	f.consultant = f.user(t, "consultant", model.RoleConsultant)
	f.designer = f.user(t, "designer", model.RoleDesigner)
	f.constructor = f.user(t, "constructor", model.RoleConstructionStaff)
	f.customer = f.user(t, "customer", model.RoleCustomer)
	return f
}

func (f *fixture) user(t *testing.T, name string, role model.Role) workflow.Caller {
	t.Helper()
	u := &model.User{Username: name, Role: role, IsActive: true}
	require.NoError(t, f.store.CreateUser(f.ctx, u))
	return workflow.Caller{UserID: u.ID, Role: role}
}

func (f *fixture) getUser(t *testing.T, id int64) *model.User {
	t.Helper()
	var out *model.User
	require.NoError(t, f.store.InTx(f.ctx, func(tx workflow.Tx) error {
		u, err := tx.GetUser(f.ctx, id)
		out = u
		return err
	}))
	return out
}

func (f *fixture) design(t *testing.T, id int64) *model.Design {
	t.Helper()
	d, err := f.designs.Get(f.ctx, id)
	require.NoError(t, err)
	return d
}

func (f *fixture) project(t *testing.T, id int64) *model.Project {
	t.Helper()
	p, err := f.projects.Get(f.ctx, f.manager, id)
	require.NoError(t, err)
	return p
}

// catalogDesign returns an approved catalog design.
func (f *fixture) catalogDesign(t *testing.T) *model.Design {
	t.Helper()
	d, err := f.designs.Create(f.ctx, f.designer, workflow.DesignInput{Name: "Koi pond", BasePrice: 5000, IsPublic: true})
	require.NoError(t, err)
	d, err = f.designs.Review(f.ctx, f.manager, d.ID, true, "")
	require.NoError(t, err)
	return d
}

// completedCatalogConsultation runs a catalog consultation to COMPLETED.
func (f *fixture) completedCatalogConsultation(t *testing.T) *model.ConsultationRequest {
	t.Helper()
	d := f.catalogDesign(t)
	c, err := f.consultations.Create(f.ctx, f.customer, workflow.ConsultationInput{DesignID: &d.ID, Requirements: "3x4m"})
	require.NoError(t, err)
	_, err = f.consultations.UpdateStatus(f.ctx, f.consultant, c.ID, model.ConsultationInProgress, "")
	require.NoError(t, err)
	c, err = f.consultations.UpdateStatus(f.ctx, f.consultant, c.ID, model.ConsultationCompleted, "site visited")
	require.NoError(t, err)
	return c
}

// customConsultation returns a custom consultation in PROCEED_DESIGN.
func (f *fixture) customConsultation(t *testing.T) *model.ConsultationRequest {
	t.Helper()
	c, err := f.consultations.Create(f.ctx, f.customer, workflow.ConsultationInput{IsCustomDesign: true, Requirements: "waterfall"})
	require.NoError(t, err)
	_, err = f.consultations.UpdateStatus(f.ctx, f.consultant, c.ID, model.ConsultationInProgress, "")
	require.NoError(t, err)
	c, err = f.consultations.UpdateStatus(f.ctx, f.consultant, c.ID, model.ConsultationProceedDesign, "")
	require.NoError(t, err)
	return c
}

// submittedRequest returns a design request in COMPLETED with a linked
// custom design, and that design.
func (f *fixture) submittedRequest(t *testing.T, consultationID int64) (*model.DesignRequest, *model.Design) {
	t.Helper()
	r, err := f.requests.Create(f.ctx, f.consultant, consultationID)
	require.NoError(t, err)
	_, err = f.requests.AssignDesigner(f.ctx, f.consultant, r.ID, f.designer.UserID)
	require.NoError(t, err)
	d, err := f.designs.Create(f.ctx, f.designer, workflow.DesignInput{Name: "Custom koi", BasePrice: 9000, IsCustom: true})
	require.NoError(t, err)
	_, err = f.requests.LinkDesign(f.ctx, f.designer, r.ID, workflow.LinkInput{DesignID: d.ID, Notes: "v1", EstimatedCost: 9000})
	require.NoError(t, err)
	r, err = f.requests.SubmitForReview(f.ctx, f.designer, r.ID)
	require.NoError(t, err)
	return r, f.design(t, d.ID)
}

// pendingProject creates a PENDING, UNPAID project from a catalog consultation.
func (f *fixture) pendingProject(t *testing.T) *model.Project {
	t.Helper()
	c := f.completedCatalogConsultation(t)
	p, err := f.projects.Create(f.ctx, f.consultant, workflow.ProjectInput{ConsultationID: c.ID, Location: "Da Nang", TotalPrice: 10000})
	require.NoError(t, err)
	return p
}

func (f *fixture) payDeposit(t *testing.T, projectID int64) {
	t.Helper()
	require.NoError(t, f.payments.OnPaymentResult(f.ctx, workflow.PaymentResult{
		ProjectID:    projectID,
		Kind:         model.PaymentKindDeposit,
		ResponseCode: workflow.ResponseCodeSuccess,
		TxnRef:       "txn-deposit",
	}))
}

// inProgressProject returns a deposit-paid project under construction.
func (f *fixture) inProgressProject(t *testing.T) *model.Project {
	t.Helper()
	p := f.pendingProject(t)
	f.payDeposit(t, p.ID)
	p, err := f.projects.AssignConstructor(f.ctx, f.manager, p.ID, f.constructor.UserID)
	require.NoError(t, err)
	return p
}

func (f *fixture) finishTask(t *testing.T, taskID int64) {
	t.Helper()
	status := model.TaskStatusCompleted
	pct := 100
	_, err := f.projects.UpdateTask(f.ctx, f.constructor, taskID, workflow.TaskUpdate{Status: &status, CompletionPercentage: &pct})
	require.NoError(t, err)
}

func (f *fixture) technicallyCompletedProject(t *testing.T) *model.Project {
	t.Helper()
	p := f.inProgressProject(t)
	tasks, err := f.projects.ListTasks(f.ctx, f.constructor, p.ID)
	require.NoError(t, err)
	for _, task := range tasks {
		f.finishTask(t, task.ID)
	}
	p, err = f.projects.MarkTechnicallyCompleted(f.ctx, f.constructor, p.ID)
	require.NoError(t, err)
	return p
}

func (f *fixture) routingKeys() []string {
	var keys []string
	for _, ev := range f.store.Events() {
		keys = append(keys, ev.RoutingKey)
	}
	return keys
}
