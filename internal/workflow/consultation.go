package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"pondflow/internal/model"
)

const entityConsultation = "consultation"

// ConsultationService runs the entry-point state machine: a customer inquiry
// either completes directly against a catalog design or branches into a
// design request.
type ConsultationService struct {
	engine
}

func NewConsultationService(store Store, locks *KeyedMutex, logger *zap.Logger) *ConsultationService {
	return &ConsultationService{engine: newEngine(store, locks, logger)}
}

type ConsultationInput struct {
	DesignID       *int64 // catalog design; forces IsCustomDesign to false
	IsCustomDesign bool
	Requirements   string
	Budget         string
	PreferredStyle string
}

// ConsultationFields holds the content a customer may edit; nil leaves a
// field unchanged.
type ConsultationFields struct {
	Requirements   *string
	Budget         *string
	PreferredStyle *string
}

func (s *ConsultationService) Create(ctx context.Context, caller Caller, in ConsultationInput) (*model.ConsultationRequest, error) {
	var out *model.ConsultationRequest
	err := s.run(ctx, "consultation.create", "", func(tx *unit) ([]Event, error) {
		if err := requireRole(caller, "create a consultation", model.RoleCustomer); err != nil {
			return nil, err
		}

		custom := in.IsCustomDesign
		if in.DesignID != nil {
			design, err := tx.GetDesign(ctx, *in.DesignID)
			if err != nil {
				return nil, loadErr(err, entityDesign, *in.DesignID)
			}
			if design.IsCustom || !design.IsActive || design.Status != model.DesignApproved {
				return nil, precondition("design %d is not an approved catalog design", design.ID)
			}
			custom = false
		}

		ts := now()
		c := &model.ConsultationRequest{
			CustomerID:     caller.UserID,
			DesignID:       in.DesignID,
			IsCustomDesign: custom,
			Status:         model.ConsultationPending,
			Requirements:   in.Requirements,
			Budget:         in.Budget,
			PreferredStyle: in.PreferredStyle,
			CreatedAt:      ts,
			UpdatedAt:      ts,
		}
		if err := tx.SaveConsultation(ctx, c); err != nil {
			return nil, fmt.Errorf("save consultation: %w", err)
		}
		out = c
		return []Event{newEvent(ctx, RoutingConsultationStatusChanged, entityConsultation, c.ID,
			"", string(c.Status), caller.UserID, "")}, nil
	})
	return out, err
}

// UpdateStatus moves a consultation along its table. Only consultants may
// call it; a consultation already claimed by another consultant is refused.
func (s *ConsultationService) UpdateStatus(ctx context.Context, caller Caller, id int64, next model.ConsultationStatus, notes string) (*model.ConsultationRequest, error) {
	var out *model.ConsultationRequest
	err := s.run(ctx, "consultation.update_status", ConsultationKey(id), func(tx *unit) ([]Event, error) {
		if err := requireRole(caller, "update consultation status", model.RoleConsultant); err != nil {
			return nil, err
		}

		c, err := tx.GetConsultation(ctx, id)
		if err != nil {
			return nil, loadErr(err, entityConsultation, id)
		}
		if c.ConsultantID != nil && *c.ConsultantID != caller.UserID {
			return nil, unauthorized("consultation %d is handled by another consultant", id)
		}
		if c.Terminal() || !CanTransitionConsultation(c.Status, next) {
			return nil, invalidTransition(entityConsultation, c.Status, next)
		}

		if c.Status == model.ConsultationInProgress {
			if next == model.ConsultationCompleted && c.IsCustomDesign {
				return nil, invalidTransition(entityConsultation, c.Status, next)
			}
			if next == model.ConsultationProceedDesign && !c.IsCustomDesign {
				return nil, invalidTransition(entityConsultation, c.Status, next)
			}
		}
		if c.Status == model.ConsultationProceedDesign && next == model.ConsultationCompleted {
			if err := requireApprovedDesign(ctx, tx, c.ID); err != nil {
				return nil, err
			}
		}

		from := c.Status
		ts := now()
		c.Status = next
		if c.ConsultantID == nil {
			c.ConsultantID = int64Ptr(caller.UserID)
		}
		if next == model.ConsultationCompleted {
			c.ConsultationDate = timePtr(ts)
		}
		if strings.TrimSpace(notes) != "" {
			c.ConsultationNotes = notes
		}
		c.UpdatedAt = ts
		if err := tx.SaveConsultation(ctx, c); err != nil {
			return nil, fmt.Errorf("save consultation: %w", err)
		}
		out = c
		return []Event{newEvent(ctx, RoutingConsultationStatusChanged, entityConsultation, c.ID,
			string(from), string(next), caller.UserID, "")}, nil
	})
	return out, err
}

// requireApprovedDesign gates PROCEED_DESIGN -> COMPLETED on the linked
// design request being APPROVED.
func requireApprovedDesign(ctx context.Context, tx Tx, consultationID int64) error {
	dr, err := tx.GetDesignRequestByConsultation(ctx, consultationID)
	if errors.Is(err, model.ErrNotFound) {
		return precondition("design not approved: consultation %d has no design request", consultationID)
	}
	if err != nil {
		return fmt.Errorf("load design request for consultation %d: %w", consultationID, err)
	}
	if dr.Status != model.DesignRequestApproved {
		return precondition("design not approved: design request %d is %s", dr.ID, dr.Status)
	}
	return nil
}

// UpdateFields lets the owning customer edit content while the request is
// still PENDING.
func (s *ConsultationService) UpdateFields(ctx context.Context, caller Caller, id int64, fields ConsultationFields) (*model.ConsultationRequest, error) {
	var out *model.ConsultationRequest
	err := s.run(ctx, "consultation.update_fields", ConsultationKey(id), func(tx *unit) ([]Event, error) {
		c, err := s.ownedByCustomer(ctx, tx, caller, id)
		if err != nil {
			return nil, err
		}
		if c.Status != model.ConsultationPending {
			return nil, precondition("consultation %d can only be edited while PENDING (is %s)", id, c.Status)
		}

		if fields.Requirements != nil {
			c.Requirements = *fields.Requirements
		}
		if fields.Budget != nil {
			c.Budget = *fields.Budget
		}
		if fields.PreferredStyle != nil {
			c.PreferredStyle = *fields.PreferredStyle
		}
		c.UpdatedAt = now()
		if err := tx.SaveConsultation(ctx, c); err != nil {
			return nil, fmt.Errorf("save consultation: %w", err)
		}
		out = c
		return nil, nil
	})
	return out, err
}

// Cancel withdraws a PENDING consultation on behalf of its customer.
func (s *ConsultationService) Cancel(ctx context.Context, caller Caller, id int64) (*model.ConsultationRequest, error) {
	var out *model.ConsultationRequest
	err := s.run(ctx, "consultation.cancel", ConsultationKey(id), func(tx *unit) ([]Event, error) {
		c, err := s.ownedByCustomer(ctx, tx, caller, id)
		if err != nil {
			return nil, err
		}
		if c.Status != model.ConsultationPending {
			return nil, invalidTransition(entityConsultation, c.Status, model.ConsultationCancelled)
		}

		from := c.Status
		c.Status = model.ConsultationCancelled
		c.UpdatedAt = now()
		if err := tx.SaveConsultation(ctx, c); err != nil {
			return nil, fmt.Errorf("save consultation: %w", err)
		}
		out = c
		return []Event{newEvent(ctx, RoutingConsultationStatusChanged, entityConsultation, c.ID,
			string(from), string(c.Status), caller.UserID, "cancelled by customer")}, nil
	})
	return out, err
}

func (s *ConsultationService) ownedByCustomer(ctx context.Context, tx Tx, caller Caller, id int64) (*model.ConsultationRequest, error) {
	if err := requireRole(caller, "modify a consultation", model.RoleCustomer); err != nil {
		return nil, err
	}
	c, err := tx.GetConsultation(ctx, id)
	if err != nil {
		return nil, loadErr(err, entityConsultation, id)
	}
	if c.CustomerID != caller.UserID {
		return nil, unauthorized("consultation %d belongs to another customer", id)
	}
	return c, nil
}
