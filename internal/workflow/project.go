package workflow

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"pondflow/internal/model"
)

const entityProject = "project"

// ProjectConfig holds the tunables of project creation.
type ProjectConfig struct {
	// DepositPercent of the total price is asked up front when a project is
	// created without an explicit deposit.
	DepositPercent int
	// TaskTemplates names the construction tasks spawned for every project,
	// in order.
	TaskTemplates []string
}

func DefaultTaskTemplates() []string {
	return []string{
		"Site survey",
		"Excavation",
		"Liner & waterproofing",
		"Filtration & plumbing",
		"Stonework & landscaping",
		"Water fill & testing",
	}
}

func (c ProjectConfig) withDefaults() ProjectConfig {
	if c.DepositPercent <= 0 || c.DepositPercent > 100 {
		c.DepositPercent = 30
	}
	if len(c.TaskTemplates) == 0 {
		c.TaskTemplates = DefaultTaskTemplates()
	}
	return c
}

// ProjectService is the central state machine: project status, the payment
// interlock on it, task creation and the constructor busy flag.
type ProjectService struct {
	engine
	cfg ProjectConfig
}

func NewProjectService(store Store, locks *KeyedMutex, cfg ProjectConfig, logger *zap.Logger) *ProjectService {
	return &ProjectService{engine: newEngine(store, locks, logger), cfg: cfg.withDefaults()}
}

type ProjectInput struct {
	ConsultationID int64
	// DesignID is only needed for a catalog consultation that did not pick
	// a design; custom consultations always use the approved request's design.
	DesignID      *int64
	Name          string
	Location      string
	TotalPrice    int64
	DepositAmount *int64
}

// Create opens the project for a completed consultation and spawns its tasks
// in the same unit of work.
func (s *ProjectService) Create(ctx context.Context, caller Caller, in ProjectInput) (*model.Project, error) {
	var out *model.Project
	err := s.run(ctx, "project.create", ConsultationKey(in.ConsultationID), func(u *unit) ([]Event, error) {
		if err := requireRole(caller, "create a project", model.RoleConsultant); err != nil {
			return nil, err
		}
		c, err := u.GetConsultation(ctx, in.ConsultationID)
		if err != nil {
			return nil, loadErr(err, entityConsultation, in.ConsultationID)
		}
		if c.ConsultantID == nil || *c.ConsultantID != caller.UserID {
			return nil, unauthorized("consultation %d is not handled by user %d", c.ID, caller.UserID)
		}
		if c.Status != model.ConsultationCompleted {
			return nil, precondition("consultation %d is %s, not COMPLETED", c.ID, c.Status)
		}
		exists, err := u.ProjectExistsForConsultation(ctx, c.ID)
		if err != nil {
			return nil, fmt.Errorf("check project for consultation %d: %w", c.ID, err)
		}
		if exists {
			return nil, conflict("consultation %d already has a project", c.ID)
		}

		designID, err := s.projectDesign(ctx, u, c, in.DesignID)
		if err != nil {
			return nil, err
		}
		u.lock(DesignKey(designID))
		d, err := u.GetDesign(ctx, designID)
		if err != nil {
			return nil, loadErr(err, entityDesign, designID)
		}
		if d.Status != model.DesignApproved || !d.IsActive {
			return nil, precondition("design %d is not approved and active", d.ID)
		}
		if d.IsCustom != c.IsCustomDesign {
			return nil, precondition("design %d does not match consultation %d", d.ID, c.ID)
		}

		if in.TotalPrice <= 0 {
			return nil, precondition("total price must be positive")
		}
		deposit := in.TotalPrice * int64(s.cfg.DepositPercent) / 100
		if in.DepositAmount != nil {
			deposit = *in.DepositAmount
		}
		if deposit < 0 || deposit > in.TotalPrice {
			return nil, precondition("deposit %d must be between 0 and the total price %d", deposit, in.TotalPrice)
		}

		name := strings.TrimSpace(in.Name)
		if name == "" {
			name = fmt.Sprintf("%s project", d.Name)
		}
		ts := now()
		p := &model.Project{
			ConsultationID: c.ID,
			CustomerID:     c.CustomerID,
			ConsultantID:   caller.UserID,
			DesignID:       d.ID,
			Name:           name,
			Location:       in.Location,
			Status:         model.ProjectPending,
			PaymentStatus:  model.PaymentUnpaid,
			TotalStages:    len(s.cfg.TaskTemplates) + 1,
			IsActive:       true,
			CreatedAt:      ts,
			UpdatedAt:      ts,
		}
		p.SetPricing(in.TotalPrice, deposit)
		if err := u.SaveProject(ctx, p); err != nil {
			return nil, fmt.Errorf("save project: %w", err)
		}
		for i, name := range s.cfg.TaskTemplates {
			t := &model.Task{
				ProjectID:  p.ID,
				Name:       name,
				Status:     "PENDING",
				OrderIndex: i + 1,
				CreatedAt:  ts,
				UpdatedAt:  ts,
			}
			if err := u.SaveTask(ctx, t); err != nil {
				return nil, fmt.Errorf("create task %q: %w", name, err)
			}
		}
		out = p
		return []Event{newEvent(ctx, RoutingProjectCreated, entityProject, p.ID,
			"", string(p.Status), caller.UserID, "")}, nil
	})
	return out, err
}

func (s *ProjectService) projectDesign(ctx context.Context, u *unit, c *model.ConsultationRequest, requested *int64) (int64, error) {
	if !c.IsCustomDesign {
		switch {
		case c.DesignID != nil:
			return *c.DesignID, nil
		case requested != nil:
			return *requested, nil
		}
		return 0, precondition("consultation %d has no catalog design", c.ID)
	}

	r, err := u.GetDesignRequestByConsultation(ctx, c.ID)
	if err != nil {
		return 0, loadErr(err, entityDesignRequest, c.ID)
	}
	if r.Status != model.DesignRequestApproved || r.DesignID == nil {
		return 0, precondition("design request %d is not approved", r.ID)
	}
	if requested != nil && *requested != *r.DesignID {
		return 0, precondition("design %d is not the approved design of consultation %d", *requested, c.ID)
	}
	return *r.DesignID, nil
}

var consultantProjectTargets = map[model.ProjectStatus]bool{
	model.ProjectApproved:   true,
	model.ProjectCancelled:  true,
	model.ProjectOnHold:     true,
	model.ProjectInProgress: true,
}

// UpdateStatus is the generic status path. Managers may take any valid step
// except COMPLETED; assigned consultants only a restricted set.
func (s *ProjectService) UpdateStatus(ctx context.Context, caller Caller, id int64, next model.ProjectStatus, reason string) (*model.Project, error) {
	var out *model.Project
	err := s.run(ctx, "project.update_status", ProjectKey(id), func(u *unit) ([]Event, error) {
		if err := requireRole(caller, "update project status", model.RoleManager, model.RoleConsultant); err != nil {
			return nil, err
		}
		p, err := u.GetProject(ctx, id)
		if err != nil {
			return nil, loadErr(err, entityProject, id)
		}
		if caller.Is(model.RoleConsultant) {
			if p.ConsultantID != caller.UserID {
				return nil, unauthorized("project %d is not assigned to consultant %d", id, caller.UserID)
			}
			if !consultantProjectTargets[next] {
				return nil, unauthorized("a consultant may not set project status %s", next)
			}
		}
		if next == model.ProjectCompleted || !CanTransitionProject(p.Status, next) {
			return nil, invalidTransition(entityProject, p.Status, next)
		}

		switch next {
		case model.ProjectApproved:
			if p.PaymentStatus != model.PaymentDepositPaid {
				return nil, precondition("project %d needs the deposit paid before approval (is %s)", id, p.PaymentStatus)
			}
		case model.ProjectInProgress:
			if p.Status == model.ProjectApproved && p.ConstructorID == nil {
				return nil, precondition("project %d has no constructor assigned", id)
			}
		case model.ProjectTechnicallyCompleted:
			if err := s.requireTasksDone(ctx, u, p.ID); err != nil {
				return nil, err
			}
			markTechnicallyCompleted(p)
		case model.ProjectCancelled:
			if p.PaymentStatus == model.PaymentFullyPaid {
				return nil, precondition("project %d is fully paid and cannot be cancelled", id)
			}
			p.CancellationReason = reason
		}

		out = p
		return s.setStatus(ctx, u, p, next, caller.UserID, reason)
	})
	return out, err
}

// MarkTechnicallyCompleted is the constructor's assertion that every task
// is done. The final stage stays open for the manager's sign-off.
func (s *ProjectService) MarkTechnicallyCompleted(ctx context.Context, caller Caller, id int64) (*model.Project, error) {
	var out *model.Project
	err := s.run(ctx, "project.technically_complete", ProjectKey(id), func(u *unit) ([]Event, error) {
		if err := requireRole(caller, "mark technical completion", model.RoleConstructionStaff); err != nil {
			return nil, err
		}
		p, err := u.GetProject(ctx, id)
		if err != nil {
			return nil, loadErr(err, entityProject, id)
		}
		if !p.IsConstructor(caller.UserID) {
			return nil, unauthorized("project %d is not assigned to constructor %d", id, caller.UserID)
		}
		if p.Status != model.ProjectInProgress {
			return nil, invalidTransition(entityProject, p.Status, model.ProjectTechnicallyCompleted)
		}
		if err := s.requireTasksDone(ctx, u, p.ID); err != nil {
			return nil, err
		}

		markTechnicallyCompleted(p)
		out = p
		return s.setStatus(ctx, u, p, model.ProjectTechnicallyCompleted, caller.UserID, "")
	})
	return out, err
}

func markTechnicallyCompleted(p *model.Project) {
	p.TechnicalCompletionDate = timePtr(now())
	p.ProgressPercentage = 100
	p.CompletedStages = max(p.TotalStages-1, 0)
}

func (s *ProjectService) requireTasksDone(ctx context.Context, u *unit, projectID int64) error {
	tasks, err := u.ListTasksByProject(ctx, projectID)
	if err != nil {
		return fmt.Errorf("list tasks of project %d: %w", projectID, err)
	}
	if !AllTasksCompleted(tasks) {
		return precondition("project %d still has unfinished tasks", projectID)
	}
	return nil
}

// Complete is the manager's final sign-off. It is the only way into
// COMPLETED and needs the project fully paid.
func (s *ProjectService) Complete(ctx context.Context, caller Caller, id int64) (*model.Project, error) {
	var out *model.Project
	err := s.run(ctx, "project.complete", ProjectKey(id), func(u *unit) ([]Event, error) {
		if err := requireRole(caller, "complete a project", model.RoleManager); err != nil {
			return nil, err
		}
		p, err := u.GetProject(ctx, id)
		if err != nil {
			return nil, loadErr(err, entityProject, id)
		}
		if p.Status != model.ProjectTechnicallyCompleted {
			return nil, invalidTransition(entityProject, p.Status, model.ProjectCompleted)
		}
		if p.PaymentStatus != model.PaymentFullyPaid {
			return nil, precondition("project %d is not fully paid (is %s)", id, p.PaymentStatus)
		}

		p.CompletedStages = p.TotalStages
		p.ProgressPercentage = 100
		p.CompletionDate = timePtr(now())
		out = p
		return s.setStatus(ctx, u, p, model.ProjectCompleted, caller.UserID, "")
	})
	return out, err
}

var cancellableByParticipant = map[model.ProjectStatus]bool{
	model.ProjectPending:    true,
	model.ProjectApproved:   true,
	model.ProjectInProgress: true,
	model.ProjectOnHold:     true,
}

// Cancel stops a project on behalf of the manager, its consultant or its
// customer. Managers may cancel from any open status.
func (s *ProjectService) Cancel(ctx context.Context, caller Caller, id int64, reason string) (*model.Project, error) {
	var out *model.Project
	err := s.run(ctx, "project.cancel", ProjectKey(id), func(u *unit) ([]Event, error) {
		if err := requireRole(caller, "cancel a project",
			model.RoleManager, model.RoleConsultant, model.RoleCustomer); err != nil {
			return nil, err
		}
		p, err := u.GetProject(ctx, id)
		if err != nil {
			return nil, loadErr(err, entityProject, id)
		}
		switch {
		case caller.Is(model.RoleConsultant) && p.ConsultantID != caller.UserID:
			return nil, unauthorized("project %d is not assigned to consultant %d", id, caller.UserID)
		case caller.Is(model.RoleCustomer) && p.CustomerID != caller.UserID:
			return nil, unauthorized("project %d belongs to another customer", id)
		}
		if p.Status.Terminal() {
			return nil, invalidTransition(entityProject, p.Status, model.ProjectCancelled)
		}
		if p.PaymentStatus == model.PaymentFullyPaid {
			return nil, precondition("project %d is fully paid and cannot be cancelled", id)
		}
		if !caller.Is(model.RoleManager) && !cancellableByParticipant[p.Status] {
			return nil, invalidTransition(entityProject, p.Status, model.ProjectCancelled)
		}

		p.CancellationReason = reason
		out = p
		return s.setStatus(ctx, u, p, model.ProjectCancelled, caller.UserID, reason)
	})
	return out, err
}

// AssignConstructor puts a free construction staff member on an approved,
// deposit-paid project and starts construction.
func (s *ProjectService) AssignConstructor(ctx context.Context, caller Caller, id, constructorID int64) (*model.Project, error) {
	var out *model.Project
	err := s.run(ctx, "project.assign_constructor", ProjectKey(id), func(u *unit) ([]Event, error) {
		if err := requireRole(caller, "assign a constructor", model.RoleManager, model.RoleConsultant); err != nil {
			return nil, err
		}
		p, err := u.GetProject(ctx, id)
		if err != nil {
			return nil, loadErr(err, entityProject, id)
		}
		if caller.Is(model.RoleConsultant) && p.ConsultantID != caller.UserID {
			return nil, unauthorized("project %d is not assigned to consultant %d", id, caller.UserID)
		}
		if p.Status != model.ProjectApproved {
			return nil, precondition("project %d must be APPROVED to assign a constructor (is %s)", id, p.Status)
		}
		if p.PaymentStatus != model.PaymentDepositPaid {
			return nil, precondition("project %d needs the deposit paid (is %s)", id, p.PaymentStatus)
		}

		u.lock(UserKey(constructorID))
		user, err := u.GetUser(ctx, constructorID)
		if err != nil {
			return nil, loadErr(err, "user", constructorID)
		}
		if user.Role != model.RoleConstructionStaff || !user.IsActive {
			return nil, precondition("user %d is not active construction staff", constructorID)
		}
		open, err := u.CountOpenProjectsForConstructor(ctx, constructorID, p.ID)
		if err != nil {
			return nil, fmt.Errorf("count projects of constructor %d: %w", constructorID, err)
		}
		if user.HasActiveProject || open > 0 {
			return nil, precondition("constructor %d is already busy", constructorID)
		}

		p.ConstructorID = int64Ptr(constructorID)
		user.HasActiveProject = true
		user.UpdatedAt = now()
		if err := u.SaveUser(ctx, user); err != nil {
			return nil, fmt.Errorf("claim constructor %d: %w", constructorID, err)
		}
		events, err := s.setStatus(ctx, u, p, model.ProjectInProgress, caller.UserID, "constructor assigned")
		if err != nil {
			return nil, err
		}
		out = p
		assigned := newEvent(ctx, RoutingConstructorAssigned, entityProject, p.ID, "", "", caller.UserID, "")
		assigned.Payload.Reason = fmt.Sprintf("constructor %d", constructorID)
		return append(events, assigned), nil
	})
	return out, err
}

// UpdatePricing changes the price split before any money has moved.
func (s *ProjectService) UpdatePricing(ctx context.Context, caller Caller, id, total, deposit int64) (*model.Project, error) {
	var out *model.Project
	err := s.run(ctx, "project.update_pricing", ProjectKey(id), func(u *unit) ([]Event, error) {
		if err := requireRole(caller, "change project pricing", model.RoleManager, model.RoleConsultant); err != nil {
			return nil, err
		}
		p, err := u.GetProject(ctx, id)
		if err != nil {
			return nil, loadErr(err, entityProject, id)
		}
		if caller.Is(model.RoleConsultant) && p.ConsultantID != caller.UserID {
			return nil, unauthorized("project %d is not assigned to consultant %d", id, caller.UserID)
		}
		if p.PaymentStatus != model.PaymentUnpaid || p.Status != model.ProjectPending {
			return nil, precondition("project %d pricing is locked (status %s, payment %s)", id, p.Status, p.PaymentStatus)
		}
		if total <= 0 || deposit < 0 || deposit > total {
			return nil, precondition("invalid pricing: total %d, deposit %d", total, deposit)
		}

		p.SetPricing(total, deposit)
		p.UpdatedAt = now()
		if err := u.SaveProject(ctx, p); err != nil {
			return nil, fmt.Errorf("save project: %w", err)
		}
		out = p
		return nil, nil
	})
	return out, err
}

// setStatus persists p in status next and releases its constructor when the
// project reaches a terminal status.
func (s *ProjectService) setStatus(ctx context.Context, u *unit, p *model.Project, next model.ProjectStatus, actor int64, reason string) ([]Event, error) {
	from := p.Status
	p.Status = next
	p.UpdatedAt = now()
	if err := u.SaveProject(ctx, p); err != nil {
		return nil, fmt.Errorf("save project: %w", err)
	}
	if next.Terminal() {
		if err := releaseConstructor(ctx, u, p); err != nil {
			return nil, err
		}
	}
	return []Event{newEvent(ctx, RoutingProjectStatusChanged, entityProject, p.ID,
		string(from), string(next), actor, reason)}, nil
}

// releaseConstructor clears the busy flag of p's constructor unless another
// open project still holds them. The user lock nests inside the project lock.
func releaseConstructor(ctx context.Context, u *unit, p *model.Project) error {
	if p.ConstructorID == nil {
		return nil
	}
	id := *p.ConstructorID
	u.lock(UserKey(id))
	open, err := u.CountOpenProjectsForConstructor(ctx, id, p.ID)
	if err != nil {
		return fmt.Errorf("count projects of constructor %d: %w", id, err)
	}
	if open > 0 {
		return nil
	}
	user, err := u.GetUser(ctx, id)
	if err != nil {
		return loadErr(err, "user", id)
	}
	if !user.HasActiveProject {
		return nil
	}
	user.HasActiveProject = false
	user.UpdatedAt = now()
	if err := u.SaveUser(ctx, user); err != nil {
		return fmt.Errorf("release constructor %d: %w", id, err)
	}
	return nil
}
