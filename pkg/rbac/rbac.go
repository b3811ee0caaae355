package rbac

import (
	"fmt"

	"pondflow/internal/model"
)

const (
	PermissionConsultationCreate     = "consultation:create"
	PermissionConsultationEdit       = "consultation:edit"
	PermissionConsultationTransition = "consultation:transition"

	PermissionDesignCreate  = "design:create"
	PermissionDesignReview  = "design:review"
	PermissionDesignArchive = "design:archive"

	PermissionDesignRequestCreate  = "design_request:create"
	PermissionDesignRequestAssign  = "design_request:assign"
	PermissionDesignRequestProduce = "design_request:produce"
	PermissionDesignRequestReview  = "design_request:review"
	PermissionDesignRequestApprove = "design_request:approve"
	PermissionDesignRequestCancel  = "design_request:cancel"

	PermissionProjectCreate       = "project:create"
	PermissionProjectTransition   = "project:transition"
	PermissionProjectPricing      = "project:pricing"
	PermissionProjectAssign       = "project:assign_constructor"
	PermissionProjectCancel       = "project:cancel"
	PermissionProjectTechComplete = "project:technically_complete"
	PermissionProjectComplete     = "project:complete"
	PermissionProjectProgress     = "project:progress"

	PermissionTaskUpdate = "task:update"

	PermissionPaymentRequest = "payment:request"
	PermissionPaymentRecord  = "payment:record"

	PermissionOutboxReplay = "outbox:replay"
)

var rolePermissions = map[model.Role][]string{
	model.RoleManager: {
		PermissionDesignReview,
		PermissionDesignArchive,
		PermissionDesignRequestAssign,
		PermissionDesignRequestCancel,
		PermissionProjectTransition,
		PermissionProjectPricing,
		PermissionProjectAssign,
		PermissionProjectCancel,
		PermissionProjectTechComplete,
		PermissionProjectComplete,
		PermissionProjectProgress,
		PermissionPaymentRequest,
		PermissionPaymentRecord,
		PermissionOutboxReplay,
	},
	model.RoleConsultant: {
		PermissionConsultationTransition,
		PermissionDesignRequestCreate,
		PermissionDesignRequestAssign,
		PermissionDesignRequestReview,
		PermissionDesignRequestCancel,
		PermissionProjectCreate,
		PermissionProjectTransition,
		PermissionProjectPricing,
		PermissionProjectAssign,
		PermissionProjectCancel,
	},
	model.RoleDesigner: {
		PermissionDesignCreate,
		PermissionDesignArchive,
		PermissionDesignRequestProduce,
	},
	model.RoleConstructionStaff: {
		PermissionProjectTechComplete,
		PermissionProjectProgress,
		PermissionTaskUpdate,
	},
	model.RoleCustomer: {
		PermissionConsultationCreate,
		PermissionConsultationEdit,
		PermissionDesignRequestApprove,
		PermissionDesignRequestCancel,
		PermissionProjectCancel,
		PermissionPaymentRequest,
	},
}

// HasPermission reports whether role grants permission. Ownership and
// assignment checks are left to the workflow services.
func HasPermission(role model.Role, permission string) bool {
	permissions, ok := rolePermissions[role]
	if !ok {
		return false
	}

	for _, p := range permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// CheckPermission is HasPermission returning a *PermissionDeniedError.
func CheckPermission(userID int64, role model.Role, permission string) error {
	if !HasPermission(role, permission) {
		return &PermissionDeniedError{
			UserID:     userID,
			Role:       role,
			Permission: permission,
		}
	}
	return nil
}

// PermissionDeniedError reports a role lacking a permission.
type PermissionDeniedError struct {
	UserID     int64
	Role       model.Role
	Permission string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("role %s may not %s", e.Role, e.Permission)
}
