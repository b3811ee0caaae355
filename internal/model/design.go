package model

import "time"

type Design struct {
	ID                 int64        `json:"id"`
	Name               string       `json:"name"`
	Description        string       `json:"description"`
	CreatedBy          int64        `json:"created_by"`
	BasePrice          int64        `json:"base_price"`
	IsCustom           bool         `json:"is_custom"`
	IsPublic           bool         `json:"is_public"`
	IsActive           bool         `json:"is_active"`
	Status             DesignStatus `json:"status"`
	RejectionReason    string       `json:"rejection_reason,omitempty"`
	CancellationReason string       `json:"cancellation_reason,omitempty"`
	// customer consent to publish a custom design in the catalog
	CustomerApprovedPublic bool       `json:"customer_approved_public"`
	PublicApprovalDate     *time.Time `json:"public_approval_date,omitempty"`
	DesignRequestID        *int64     `json:"design_request_id,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

// ClearPublicSharing drops every flag that would expose the design publicly.
func (d *Design) ClearPublicSharing() {
	d.IsPublic = false
	d.CustomerApprovedPublic = false
	d.PublicApprovalDate = nil
}

type DesignRequest struct {
	ID                 int64               `json:"id"`
	ConsultationID     int64               `json:"consultation_id"`
	DesignerID         *int64              `json:"designer_id,omitempty"`
	DesignID           *int64              `json:"design_id,omitempty"`
	Status             DesignRequestStatus `json:"status"`
	DesignerNotes      string              `json:"designer_notes"`
	EstimatedCost      int64               `json:"estimated_cost"`
	ReviewerID         *int64              `json:"reviewer_id,omitempty"`
	ReviewDate         *time.Time          `json:"review_date,omitempty"`
	ReviewNotes        string              `json:"review_notes"`
	RevisionCount      int                 `json:"revision_count"`
	RejectionReason    string              `json:"rejection_reason,omitempty"`
	CancellationReason string              `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}
