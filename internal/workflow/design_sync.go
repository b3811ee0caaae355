package workflow

import "pondflow/internal/model"

// SyncDesignStatus maps a design request status onto the status its linked
// custom design must carry. ok is false when the design is left untouched.
func SyncDesignStatus(requestStatus model.DesignRequestStatus) (status model.DesignStatus, ok bool) {
	switch requestStatus {
	case model.DesignRequestApproved:
		return model.DesignApproved, true
	case model.DesignRequestRejected:
		return model.DesignRejected, true
	case model.DesignRequestCancelled:
		return model.DesignCancelled, true
	case model.DesignRequestInProgress:
		return model.DesignPendingApproval, true
	}
	return "", false
}

// applyDesignSync mutates design to follow requestStatus. Catalog designs are
// never synced. It reports whether design changed and its previous status.
func applyDesignSync(design *model.Design, requestStatus model.DesignRequestStatus, reason string) (model.DesignStatus, bool) {
	if design == nil || !design.IsCustom {
		return "", false
	}
	target, ok := SyncDesignStatus(requestStatus)
	if !ok {
		return "", false
	}

	previous := design.Status
	design.Status = target
	switch target {
	case model.DesignApproved:
		design.ClearPublicSharing()
	case model.DesignRejected:
		design.RejectionReason = reason
	case model.DesignCancelled:
		design.CancellationReason = reason
	}
	return previous, true
}
