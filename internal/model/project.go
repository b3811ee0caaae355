package model

import "time"

type Project struct {
	ID                      int64         `json:"id"`
	ConsultationID          int64         `json:"consultation_id"`
	CustomerID              int64         `json:"customer_id"`
	ConsultantID            int64         `json:"consultant_id"`
	ConstructorID           *int64        `json:"constructor_id,omitempty"`
	DesignID                int64         `json:"design_id"`
	Name                    string        `json:"name"`
	Location                string        `json:"location"`
	TotalPrice              int64         `json:"total_price"`
	DepositAmount           int64         `json:"deposit_amount"`
	RemainingAmount         int64         `json:"remaining_amount"`
	Status                  ProjectStatus `json:"status"`
	PaymentStatus           PaymentStatus `json:"payment_status"`
	ProgressPercentage      int           `json:"progress_percentage"`
	TotalStages             int           `json:"total_stages"`
	CompletedStages         int           `json:"completed_stages"`
	TechnicalCompletionDate *time.Time    `json:"technical_completion_date,omitempty"`
	CompletionDate          *time.Time    `json:"completion_date,omitempty"`
	CancellationReason      string        `json:"cancellation_reason,omitempty"`
	IsActive                bool          `json:"is_active"`
	CreatedAt               time.Time     `json:"created_at"`
	UpdatedAt               time.Time     `json:"updated_at"`
}

// SetPricing updates both price fields and the derived remaining amount.
func (p *Project) SetPricing(total, deposit int64) {
	p.TotalPrice = total
	p.DepositAmount = deposit
	p.RemainingAmount = total - deposit
}

// IsConstructor reports whether userID is the assigned constructor.
func (p *Project) IsConstructor(userID int64) bool {
	return p.ConstructorID != nil && *p.ConstructorID == userID
}

type Task struct {
	ID                   int64     `json:"id"`
	ProjectID            int64     `json:"project_id"`
	Name                 string    `json:"name"`
	Status               string    `json:"status"`
	OrderIndex           int       `json:"order_index"`
	CompletionPercentage int       `json:"completion_percentage"`
	Notes                string    `json:"notes"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// Done reports whether the task passes the technical-completion gate.
func (t *Task) Done() bool {
	return t.CompletionPercentage == 100 && t.Status == TaskStatusCompleted
}
