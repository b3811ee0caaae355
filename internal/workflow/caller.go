package workflow

import "pondflow/internal/model"

// Caller is the identity resolved by the role oracle for one command.
type Caller struct {
	UserID int64
	Role   model.Role
}

func (c Caller) Is(roles ...model.Role) bool {
	for _, r := range roles {
		if c.Role == r {
			return true
		}
	}
	return false
}

func requireRole(c Caller, action string, roles ...model.Role) error {
	if !c.Is(roles...) {
		return unauthorized("role %s may not %s", c.Role, action)
	}
	return nil
}
