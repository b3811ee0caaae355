package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"pondflow/internal/model"
)

const entityDesignRequest = "design_request"

// DesignRequestService governs the production and review cycle of a custom
// design and keeps the linked design's status in step with the request.
type DesignRequestService struct {
	engine
}

func NewDesignRequestService(store Store, locks *KeyedMutex, logger *zap.Logger) *DesignRequestService {
	return &DesignRequestService{engine: newEngine(store, locks, logger)}
}

// LinkInput carries the designer's submission details.
type LinkInput struct {
	DesignID      int64
	Notes         string
	EstimatedCost int64
}

// Create spawns the design request for a consultation that branched into
// PROCEED_DESIGN. There is at most one request per consultation.
func (s *DesignRequestService) Create(ctx context.Context, caller Caller, consultationID int64) (*model.DesignRequest, error) {
	var out *model.DesignRequest
	err := s.run(ctx, "design_request.create", ConsultationKey(consultationID), func(u *unit) ([]Event, error) {
		if err := requireRole(caller, "create a design request", model.RoleConsultant); err != nil {
			return nil, err
		}
		c, err := u.GetConsultation(ctx, consultationID)
		if err != nil {
			return nil, loadErr(err, entityConsultation, consultationID)
		}
		if c.ConsultantID != nil && *c.ConsultantID != caller.UserID {
			return nil, unauthorized("consultation %d is handled by another consultant", consultationID)
		}
		if !c.IsCustomDesign || c.Status != model.ConsultationProceedDesign {
			return nil, precondition("consultation %d is not waiting for a custom design (status %s)", consultationID, c.Status)
		}
		exists, err := u.DesignRequestExists(ctx, consultationID)
		if err != nil {
			return nil, fmt.Errorf("check design request for consultation %d: %w", consultationID, err)
		}
		if exists {
			return nil, conflict("consultation %d already has a design request", consultationID)
		}

		ts := now()
		r := &model.DesignRequest{
			ConsultationID: consultationID,
			Status:         model.DesignRequestPending,
			CreatedAt:      ts,
			UpdatedAt:      ts,
		}
		if err := u.SaveDesignRequest(ctx, r); err != nil {
			return nil, fmt.Errorf("save design request: %w", err)
		}
		out = r
		return []Event{newEvent(ctx, RoutingDesignRequestStatusChanged, entityDesignRequest, r.ID,
			"", string(r.Status), caller.UserID, "")}, nil
	})
	return out, err
}

// AssignDesigner sets or replaces the designer. A PENDING request moves to
// IN_PROGRESS; reassignment is only possible before a design is linked.
func (s *DesignRequestService) AssignDesigner(ctx context.Context, caller Caller, id, designerID int64) (*model.DesignRequest, error) {
	var out *model.DesignRequest
	err := s.run(ctx, "design_request.assign_designer", DesignRequestKey(id), func(u *unit) ([]Event, error) {
		if err := requireRole(caller, "assign a designer", model.RoleConsultant, model.RoleManager); err != nil {
			return nil, err
		}
		r, err := u.GetDesignRequest(ctx, id)
		if err != nil {
			return nil, loadErr(err, entityDesignRequest, id)
		}
		if r.Status != model.DesignRequestPending && r.Status != model.DesignRequestInProgress {
			return nil, invalidTransition(entityDesignRequest, r.Status, model.DesignRequestInProgress)
		}
		if r.DesignID != nil {
			return nil, precondition("design request %d already has design %d linked", id, *r.DesignID)
		}
		designer, err := u.GetUser(ctx, designerID)
		if err != nil {
			return nil, loadErr(err, "user", designerID)
		}
		if designer.Role != model.RoleDesigner || !designer.IsActive {
			return nil, precondition("user %d is not an active designer", designerID)
		}

		r.DesignerID = int64Ptr(designerID)
		if r.Status == model.DesignRequestPending {
			events, err := s.move(ctx, u, r, model.DesignRequestInProgress, caller.UserID, "designer assigned", model.DesignRequestInProgress)
			out = r
			return events, err
		}
		r.UpdatedAt = now()
		if err := u.SaveDesignRequest(ctx, r); err != nil {
			return nil, fmt.Errorf("save design request: %w", err)
		}
		out = r
		return nil, nil
	})
	return out, err
}

// LinkDesign attaches the designer's own custom design to the request. A
// design can belong to one request for its whole lifetime.
func (s *DesignRequestService) LinkDesign(ctx context.Context, caller Caller, id int64, in LinkInput) (*model.DesignRequest, error) {
	var out *model.DesignRequest
	err := s.run(ctx, "design_request.link_design", DesignRequestKey(id), func(u *unit) ([]Event, error) {
		r, err := u.GetDesignRequest(ctx, id)
		if err != nil {
			return nil, loadErr(err, entityDesignRequest, id)
		}
		if err := requireDesigner(caller, r); err != nil {
			return nil, err
		}
		if r.Status != model.DesignRequestInProgress {
			return nil, precondition("design request %d must be IN_PROGRESS to link a design (is %s)", id, r.Status)
		}
		if r.DesignID != nil {
			return nil, precondition("design request %d already has design %d linked", id, *r.DesignID)
		}
		if in.EstimatedCost < 0 {
			return nil, precondition("estimated cost must not be negative")
		}

		u.lock(DesignKey(in.DesignID))
		d, err := u.GetDesign(ctx, in.DesignID)
		if err != nil {
			return nil, loadErr(err, entityDesign, in.DesignID)
		}
		if d.CreatedBy != caller.UserID {
			return nil, unauthorized("design %d was authored by another designer", d.ID)
		}
		if !d.IsCustom {
			return nil, precondition("design %d is a catalog design", d.ID)
		}
		if d.DesignRequestID != nil && *d.DesignRequestID != r.ID {
			return nil, conflict("design %d is already linked to design request %d", d.ID, *d.DesignRequestID)
		}
		other, err := u.GetDesignRequestByDesign(ctx, d.ID)
		switch {
		case err == nil && other.ID != r.ID:
			return nil, conflict("design %d is already linked to design request %d", d.ID, other.ID)
		case err != nil && !errors.Is(err, model.ErrNotFound):
			return nil, fmt.Errorf("look up design request for design %d: %w", d.ID, err)
		}

		ts := now()
		r.DesignID = int64Ptr(d.ID)
		r.DesignerNotes = in.Notes
		r.EstimatedCost = in.EstimatedCost
		r.UpdatedAt = ts
		if err := u.SaveDesignRequest(ctx, r); err != nil {
			return nil, fmt.Errorf("save design request: %w", err)
		}
		d.DesignRequestID = int64Ptr(r.ID)
		d.UpdatedAt = ts
		if err := u.SaveDesign(ctx, d); err != nil {
			return nil, fmt.Errorf("save design: %w", err)
		}
		out = r
		ev := newEvent(ctx, RoutingDesignLinked, entityDesignRequest, r.ID, "", "", caller.UserID, "")
		ev.Payload.Reason = fmt.Sprintf("design %d linked", d.ID)
		return []Event{ev}, nil
	})
	return out, err
}

// SubmitForReview hands the linked design to the consultant.
func (s *DesignRequestService) SubmitForReview(ctx context.Context, caller Caller, id int64) (*model.DesignRequest, error) {
	var out *model.DesignRequest
	err := s.run(ctx, "design_request.submit", DesignRequestKey(id), func(u *unit) ([]Event, error) {
		r, err := u.GetDesignRequest(ctx, id)
		if err != nil {
			return nil, loadErr(err, entityDesignRequest, id)
		}
		if err := requireDesigner(caller, r); err != nil {
			return nil, err
		}
		if r.Status != model.DesignRequestInProgress {
			return nil, invalidTransition(entityDesignRequest, r.Status, model.DesignRequestCompleted)
		}
		if r.DesignID == nil {
			return nil, precondition("design request %d has no linked design", id)
		}
		out = r
		// a revised design re-enters review
		return s.move(ctx, u, r, model.DesignRequestCompleted, caller.UserID, "", model.DesignRequestInProgress)
	})
	return out, err
}

// ConsultantReview records the consultant's verdict on a COMPLETED request.
// Approval forwards it to the customer; rejection sends it back to the
// designer and marks the design REJECTED.
func (s *DesignRequestService) ConsultantReview(ctx context.Context, caller Caller, id int64, approved bool, notes string) (*model.DesignRequest, error) {
	var out *model.DesignRequest
	err := s.run(ctx, "design_request.consultant_review", DesignRequestKey(id), func(u *unit) ([]Event, error) {
		if err := requireRole(caller, "review a design request", model.RoleConsultant); err != nil {
			return nil, err
		}
		r, err := u.GetDesignRequest(ctx, id)
		if err != nil {
			return nil, loadErr(err, entityDesignRequest, id)
		}
		c, err := u.GetConsultation(ctx, r.ConsultationID)
		if err != nil {
			return nil, loadErr(err, entityConsultation, r.ConsultationID)
		}
		if c.ConsultantID != nil && *c.ConsultantID != caller.UserID {
			return nil, unauthorized("design request %d belongs to another consultant", id)
		}
		if r.Status != model.DesignRequestCompleted {
			next := model.DesignRequestPendingCustomerApproval
			if !approved {
				next = model.DesignRequestInProgress
			}
			return nil, invalidTransition(entityDesignRequest, r.Status, next)
		}
		if !approved && strings.TrimSpace(notes) == "" {
			return nil, precondition("a rejection reason is required")
		}

		r.ReviewerID = int64Ptr(caller.UserID)
		r.ReviewDate = timePtr(now())
		r.ReviewNotes = notes
		out = r
		if approved {
			return s.move(ctx, u, r, model.DesignRequestPendingCustomerApproval, caller.UserID, notes, model.DesignRequestPendingCustomerApproval)
		}
		r.RejectionReason = notes
		return s.move(ctx, u, r, model.DesignRequestInProgress, caller.UserID, notes, model.DesignRequestRejected)
	})
	return out, err
}

// CustomerApproval records the owning customer's verdict. Approval is final;
// rejection counts as a revision and returns the request to the designer.
func (s *DesignRequestService) CustomerApproval(ctx context.Context, caller Caller, id int64, approved bool, reason string) (*model.DesignRequest, error) {
	var out *model.DesignRequest
	err := s.run(ctx, "design_request.customer_approval", DesignRequestKey(id), func(u *unit) ([]Event, error) {
		if err := requireRole(caller, "approve a design", model.RoleCustomer); err != nil {
			return nil, err
		}
		r, err := u.GetDesignRequest(ctx, id)
		if err != nil {
			return nil, loadErr(err, entityDesignRequest, id)
		}
		c, err := u.GetConsultation(ctx, r.ConsultationID)
		if err != nil {
			return nil, loadErr(err, entityConsultation, r.ConsultationID)
		}
		if c.CustomerID != caller.UserID {
			return nil, unauthorized("design request %d belongs to another customer", id)
		}
		if r.Status != model.DesignRequestPendingCustomerApproval {
			next := model.DesignRequestApproved
			if !approved {
				next = model.DesignRequestInProgress
			}
			return nil, invalidTransition(entityDesignRequest, r.Status, next)
		}
		if !approved && strings.TrimSpace(reason) == "" {
			return nil, precondition("a rejection reason is required")
		}

		out = r
		if approved {
			return s.move(ctx, u, r, model.DesignRequestApproved, caller.UserID, "", model.DesignRequestApproved)
		}
		r.RevisionCount++
		r.RejectionReason = reason
		return s.move(ctx, u, r, model.DesignRequestInProgress, caller.UserID, reason, model.DesignRequestRejected)
	})
	return out, err
}

// Cancel stops a request that has not been approved yet. The linked custom
// design is cancelled with the same reason.
func (s *DesignRequestService) Cancel(ctx context.Context, caller Caller, id int64, reason string) (*model.DesignRequest, error) {
	var out *model.DesignRequest
	err := s.run(ctx, "design_request.cancel", DesignRequestKey(id), func(u *unit) ([]Event, error) {
		if err := requireRole(caller, "cancel a design request",
			model.RoleConsultant, model.RoleManager, model.RoleCustomer); err != nil {
			return nil, err
		}
		r, err := u.GetDesignRequest(ctx, id)
		if err != nil {
			return nil, loadErr(err, entityDesignRequest, id)
		}
		if caller.Is(model.RoleCustomer) {
			c, err := u.GetConsultation(ctx, r.ConsultationID)
			if err != nil {
				return nil, loadErr(err, entityConsultation, r.ConsultationID)
			}
			if c.CustomerID != caller.UserID {
				return nil, unauthorized("design request %d belongs to another customer", id)
			}
		}
		if !CanTransitionDesignRequest(r.Status, model.DesignRequestCancelled) {
			return nil, invalidTransition(entityDesignRequest, r.Status, model.DesignRequestCancelled)
		}
		if strings.TrimSpace(reason) == "" {
			return nil, precondition("a cancellation reason is required")
		}

		r.CancellationReason = reason
		out = r
		return s.move(ctx, u, r, model.DesignRequestCancelled, caller.UserID, reason, model.DesignRequestCancelled)
	})
	return out, err
}

// move applies next to r, persists it and syncs the linked design as if the
// request had reached syncAs. The design lock is nested inside the request
// lock and held until the unit of work ends.
func (s *DesignRequestService) move(ctx context.Context, u *unit, r *model.DesignRequest, next model.DesignRequestStatus, actor int64, reason string, syncAs model.DesignRequestStatus) ([]Event, error) {
	if !CanTransitionDesignRequest(r.Status, next) {
		return nil, invalidTransition(entityDesignRequest, r.Status, next)
	}

	from := r.Status
	ts := now()
	r.Status = next
	r.UpdatedAt = ts
	if err := u.SaveDesignRequest(ctx, r); err != nil {
		return nil, fmt.Errorf("save design request: %w", err)
	}
	events := []Event{newEvent(ctx, RoutingDesignRequestStatusChanged, entityDesignRequest, r.ID,
		string(from), string(next), actor, reason)}

	if r.DesignID == nil {
		return events, nil
	}
	u.lock(DesignKey(*r.DesignID))
	d, err := u.GetDesign(ctx, *r.DesignID)
	if err != nil {
		return nil, loadErr(err, entityDesign, *r.DesignID)
	}
	previous, changed := applyDesignSync(d, syncAs, reason)
	if !changed {
		return events, nil
	}
	d.UpdatedAt = ts
	if err := u.SaveDesign(ctx, d); err != nil {
		return nil, fmt.Errorf("sync design %d: %w", d.ID, err)
	}
	if previous != d.Status {
		events = append(events, newEvent(ctx, RoutingDesignStatusChanged, entityDesign, d.ID,
			string(previous), string(d.Status), actor, reason))
	}
	return events, nil
}

func requireDesigner(caller Caller, r *model.DesignRequest) error {
	if r.DesignerID == nil || *r.DesignerID != caller.UserID {
		return unauthorized("design request %d is not assigned to user %d", r.ID, caller.UserID)
	}
	return nil
}
