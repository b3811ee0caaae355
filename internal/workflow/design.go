package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"pondflow/internal/model"
)

const entityDesign = "design"

// DesignService manages designs directly: authoring, manager review of
// catalog designs and soft deletion. Custom designs change status through
// their design request instead.
type DesignService struct {
	engine
}

func NewDesignService(store Store, locks *KeyedMutex, logger *zap.Logger) *DesignService {
	return &DesignService{engine: newEngine(store, locks, logger)}
}

type DesignInput struct {
	Name        string
	Description string
	BasePrice   int64
	IsCustom    bool
	IsPublic    bool
}

func (s *DesignService) Create(ctx context.Context, caller Caller, in DesignInput) (*model.Design, error) {
	var out *model.Design
	err := s.run(ctx, "design.create", "", func(u *unit) ([]Event, error) {
		if err := requireRole(caller, "create a design", model.RoleDesigner); err != nil {
			return nil, err
		}
		if strings.TrimSpace(in.Name) == "" {
			return nil, precondition("design name is required")
		}
		if in.BasePrice < 0 {
			return nil, precondition("base price must not be negative")
		}

		ts := now()
		d := &model.Design{
			Name:        in.Name,
			Description: in.Description,
			CreatedBy:   caller.UserID,
			BasePrice:   in.BasePrice,
			IsCustom:    in.IsCustom,
			IsPublic:    in.IsPublic && !in.IsCustom,
			IsActive:    true,
			Status:      model.DesignPendingApproval,
			CreatedAt:   ts,
			UpdatedAt:   ts,
		}
		if err := u.SaveDesign(ctx, d); err != nil {
			return nil, fmt.Errorf("save design: %w", err)
		}
		out = d
		return []Event{newEvent(ctx, RoutingDesignStatusChanged, entityDesign, d.ID,
			"", string(d.Status), caller.UserID, "")}, nil
	})
	return out, err
}

// Review approves or rejects a catalog design awaiting approval.
func (s *DesignService) Review(ctx context.Context, caller Caller, id int64, approved bool, reason string) (*model.Design, error) {
	var out *model.Design
	err := s.run(ctx, "design.review", DesignKey(id), func(u *unit) ([]Event, error) {
		if err := requireRole(caller, "review designs", model.RoleManager); err != nil {
			return nil, err
		}
		d, err := u.GetDesign(ctx, id)
		if err != nil {
			return nil, loadErr(err, entityDesign, id)
		}
		if d.IsCustom {
			return nil, precondition("custom design %d follows its design request", id)
		}

		next := model.DesignApproved
		if !approved {
			next = model.DesignRejected
		}
		if !CanTransitionDesign(d.Status, next) {
			return nil, invalidTransition(entityDesign, d.Status, next)
		}
		if !approved && strings.TrimSpace(reason) == "" {
			return nil, precondition("a rejection reason is required")
		}

		from := d.Status
		d.Status = next
		if !approved {
			d.RejectionReason = reason
		}
		d.UpdatedAt = now()
		if err := u.SaveDesign(ctx, d); err != nil {
			return nil, fmt.Errorf("save design: %w", err)
		}
		out = d
		return []Event{newEvent(ctx, RoutingDesignStatusChanged, entityDesign, d.ID,
			string(from), string(next), caller.UserID, reason)}, nil
	})
	return out, err
}

// Resubmit puts a rejected catalog design back in the approval queue.
func (s *DesignService) Resubmit(ctx context.Context, caller Caller, id int64) (*model.Design, error) {
	var out *model.Design
	err := s.run(ctx, "design.resubmit", DesignKey(id), func(u *unit) ([]Event, error) {
		d, err := u.GetDesign(ctx, id)
		if err != nil {
			return nil, loadErr(err, entityDesign, id)
		}
		if d.CreatedBy != caller.UserID {
			return nil, unauthorized("design %d belongs to another designer", id)
		}
		if d.IsCustom {
			return nil, precondition("custom design %d follows its design request", id)
		}
		if !CanTransitionDesign(d.Status, model.DesignPendingApproval) {
			return nil, invalidTransition(entityDesign, d.Status, model.DesignPendingApproval)
		}

		from := d.Status
		d.Status = model.DesignPendingApproval
		d.RejectionReason = ""
		d.UpdatedAt = now()
		if err := u.SaveDesign(ctx, d); err != nil {
			return nil, fmt.Errorf("save design: %w", err)
		}
		out = d
		return []Event{newEvent(ctx, RoutingDesignStatusChanged, entityDesign, d.ID,
			string(from), string(d.Status), caller.UserID, "")}, nil
	})
	return out, err
}

// Archive soft-deletes a design. Approved designs also move to ARCHIVED;
// designs are never removed from the store.
func (s *DesignService) Archive(ctx context.Context, caller Caller, id int64) (*model.Design, error) {
	var out *model.Design
	err := s.run(ctx, "design.archive", DesignKey(id), func(u *unit) ([]Event, error) {
		d, err := u.GetDesign(ctx, id)
		if err != nil {
			return nil, loadErr(err, entityDesign, id)
		}
		if !caller.Is(model.RoleManager) && d.CreatedBy != caller.UserID {
			return nil, unauthorized("only a manager or the author may archive design %d", id)
		}
		if !d.IsActive {
			return nil, precondition("design %d is already archived", id)
		}
		if d.IsCustom {
			r, err := u.GetDesignRequestByDesign(ctx, d.ID)
			switch {
			case err == nil && r.Status != model.DesignRequestCancelled:
				return nil, precondition("custom design %d follows design request %d", id, r.ID)
			case err != nil && !errors.Is(err, model.ErrNotFound):
				return nil, fmt.Errorf("look up design request for design %d: %w", d.ID, err)
			}
		}

		from := d.Status
		d.IsActive = false
		d.IsPublic = false
		if CanTransitionDesign(d.Status, model.DesignArchived) {
			d.Status = model.DesignArchived
		}
		d.UpdatedAt = now()
		if err := u.SaveDesign(ctx, d); err != nil {
			return nil, fmt.Errorf("save design: %w", err)
		}
		out = d
		return []Event{newEvent(ctx, RoutingDesignStatusChanged, entityDesign, d.ID,
			string(from), string(d.Status), caller.UserID, "archived")}, nil
	})
	return out, err
}
