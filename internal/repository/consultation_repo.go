package repository

import (
	"context"
	"fmt"

	"pondflow/internal/model"
)

const consultationColumns = `id, customer_id, consultant_id, design_id, is_custom_design, status,
        requirements, budget, preferred_style, consultation_notes, consultation_date,
        created_at, updated_at`

func (r *txRepo) GetConsultation(ctx context.Context, id int64) (*model.ConsultationRequest, error) {
	query := `SELECT ` + consultationColumns + ` FROM consultation_requests WHERE id = $1 FOR UPDATE`
	var c model.ConsultationRequest
	err := r.tx.QueryRow(ctx, query, id).Scan(
		&c.ID,
		&c.CustomerID,
		&c.ConsultantID,
		&c.DesignID,
		&c.IsCustomDesign,
		&c.Status,
		&c.Requirements,
		&c.Budget,
		&c.PreferredStyle,
		&c.ConsultationNotes,
		&c.ConsultationDate,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err, "get consultation")
	}
	return &c, nil
}

func (r *txRepo) SaveConsultation(ctx context.Context, c *model.ConsultationRequest) error {
	if c.ID == 0 {
		query := `
        INSERT INTO consultation_requests (customer_id, consultant_id, design_id, is_custom_design, status,
            requirements, budget, preferred_style, consultation_notes, consultation_date, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
        RETURNING id
    `
		err := r.tx.QueryRow(ctx, query,
			c.CustomerID, c.ConsultantID, c.DesignID, c.IsCustomDesign, c.Status,
			c.Requirements, c.Budget, c.PreferredStyle, c.ConsultationNotes, c.ConsultationDate,
			c.CreatedAt, c.UpdatedAt,
		).Scan(&c.ID)
		if err != nil {
			return fmt.Errorf("insert consultation: %w", err)
		}
		return nil
	}

	query := `
        UPDATE consultation_requests
        SET consultant_id = $2, design_id = $3, is_custom_design = $4, status = $5,
            requirements = $6, budget = $7, preferred_style = $8, consultation_notes = $9,
            consultation_date = $10, updated_at = $11
        WHERE id = $1
    `
	_, err := r.tx.Exec(ctx, query,
		c.ID, c.ConsultantID, c.DesignID, c.IsCustomDesign, c.Status,
		c.Requirements, c.Budget, c.PreferredStyle, c.ConsultationNotes,
		c.ConsultationDate, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update consultation %d: %w", c.ID, err)
	}
	return nil
}
