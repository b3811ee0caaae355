package model

import "time"

type ConsultationRequest struct {
	ID                int64              `json:"id"`
	CustomerID        int64              `json:"customer_id"`
	ConsultantID      *int64             `json:"consultant_id,omitempty"`
	DesignID          *int64             `json:"design_id,omitempty"` // catalog design, if any
	IsCustomDesign    bool               `json:"is_custom_design"`
	Status            ConsultationStatus `json:"status"`
	Requirements      string             `json:"requirements"`
	Budget            string             `json:"budget"`
	PreferredStyle    string             `json:"preferred_style"`
	ConsultationNotes string             `json:"consultation_notes"`
	ConsultationDate  *time.Time         `json:"consultation_date,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// Terminal reports whether the request accepts no further status writes.
func (c *ConsultationRequest) Terminal() bool {
	return c.Status == ConsultationCompleted || c.Status == ConsultationCancelled
}
