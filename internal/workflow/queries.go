package workflow

import (
	"context"
	"errors"
	"fmt"

	"pondflow/internal/model"
)

// Snapshot reads take no entity lock; they see the last committed state.
// Managers and consultants read everything; customers read what they own,
// designers what they are assigned, construction staff their projects.

func (s *ConsultationService) Get(ctx context.Context, caller Caller, id int64) (*model.ConsultationRequest, error) {
	var out *model.ConsultationRequest
	err := s.store.InTx(ctx, func(tx Tx) error {
		c, err := tx.GetConsultation(ctx, id)
		if err != nil {
			return loadErr(err, entityConsultation, id)
		}
		if err := canReadConsultation(ctx, tx, caller, c); err != nil {
			return err
		}
		out = c
		return nil
	})
	return out, err
}

func (s *DesignRequestService) Get(ctx context.Context, caller Caller, id int64) (*model.DesignRequest, error) {
	var out *model.DesignRequest
	err := s.store.InTx(ctx, func(tx Tx) error {
		r, err := tx.GetDesignRequest(ctx, id)
		if err != nil {
			return loadErr(err, entityDesignRequest, id)
		}
		if err := canReadDesignRequest(ctx, tx, caller, r); err != nil {
			return err
		}
		out = r
		return nil
	})
	return out, err
}

func (s *DesignService) Get(ctx context.Context, id int64) (*model.Design, error) {
	var out *model.Design
	err := s.store.InTx(ctx, func(tx Tx) error {
		d, err := tx.GetDesign(ctx, id)
		if err != nil {
			return loadErr(err, entityDesign, id)
		}
		out = d
		return nil
	})
	return out, err
}

func (s *ProjectService) Get(ctx context.Context, caller Caller, id int64) (*model.Project, error) {
	var out *model.Project
	err := s.store.InTx(ctx, func(tx Tx) error {
		p, err := tx.GetProject(ctx, id)
		if err != nil {
			return loadErr(err, entityProject, id)
		}
		if err := canReadProject(caller, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

func canReadConsultation(ctx context.Context, tx Tx, caller Caller, c *model.ConsultationRequest) error {
	switch caller.Role {
	case model.RoleManager, model.RoleConsultant:
		return nil
	case model.RoleCustomer:
		if c.CustomerID == caller.UserID {
			return nil
		}
	case model.RoleDesigner:
		r, err := tx.GetDesignRequestByConsultation(ctx, c.ID)
		switch {
		case err == nil && r.DesignerID != nil && *r.DesignerID == caller.UserID:
			return nil
		case err != nil && !errors.Is(err, model.ErrNotFound):
			return fmt.Errorf("look up design request for consultation %d: %w", c.ID, err)
		}
	}
	return unauthorized("%s %d may not read consultation %d", caller.Role, caller.UserID, c.ID)
}

func canReadDesignRequest(ctx context.Context, tx Tx, caller Caller, r *model.DesignRequest) error {
	switch caller.Role {
	case model.RoleManager, model.RoleConsultant:
		return nil
	case model.RoleDesigner:
		if r.DesignerID != nil && *r.DesignerID == caller.UserID {
			return nil
		}
	case model.RoleCustomer:
		c, err := tx.GetConsultation(ctx, r.ConsultationID)
		if err != nil {
			return loadErr(err, entityConsultation, r.ConsultationID)
		}
		if c.CustomerID == caller.UserID {
			return nil
		}
	}
	return unauthorized("%s %d may not read design request %d", caller.Role, caller.UserID, r.ID)
}

func canReadProject(caller Caller, p *model.Project) error {
	switch caller.Role {
	case model.RoleManager, model.RoleConsultant:
		return nil
	case model.RoleCustomer:
		if p.CustomerID == caller.UserID {
			return nil
		}
	case model.RoleConstructionStaff:
		if p.IsConstructor(caller.UserID) {
			return nil
		}
	}
	return unauthorized("%s %d may not read project %d", caller.Role, caller.UserID, p.ID)
}
