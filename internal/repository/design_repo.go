package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"pondflow/internal/model"
)

const designRequestColumns = `id, consultation_id, designer_id, design_id, status, designer_notes,
        estimated_cost, reviewer_id, review_date, review_notes, revision_count,
        rejection_reason, cancellation_reason, created_at, updated_at`

func scanDesignRequest(row pgx.Row) (*model.DesignRequest, error) {
	var d model.DesignRequest
	err := row.Scan(
		&d.ID,
		&d.ConsultationID,
		&d.DesignerID,
		&d.DesignID,
		&d.Status,
		&d.DesignerNotes,
		&d.EstimatedCost,
		&d.ReviewerID,
		&d.ReviewDate,
		&d.ReviewNotes,
		&d.RevisionCount,
		&d.RejectionReason,
		&d.CancellationReason,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err, "get design request")
	}
	return &d, nil
}

func (r *txRepo) GetDesignRequest(ctx context.Context, id int64) (*model.DesignRequest, error) {
	return scanDesignRequest(r.tx.QueryRow(ctx,
		`SELECT `+designRequestColumns+` FROM design_requests WHERE id = $1 FOR UPDATE`, id))
}

func (r *txRepo) GetDesignRequestByConsultation(ctx context.Context, consultationID int64) (*model.DesignRequest, error) {
	return scanDesignRequest(r.tx.QueryRow(ctx,
		`SELECT `+designRequestColumns+` FROM design_requests WHERE consultation_id = $1`, consultationID))
}

func (r *txRepo) GetDesignRequestByDesign(ctx context.Context, designID int64) (*model.DesignRequest, error) {
	return scanDesignRequest(r.tx.QueryRow(ctx,
		`SELECT `+designRequestColumns+` FROM design_requests WHERE design_id = $1`, designID))
}

func (r *txRepo) DesignRequestExists(ctx context.Context, consultationID int64) (bool, error) {
	ok, err := r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM design_requests WHERE consultation_id = $1)`, consultationID)
	if err != nil {
		return false, fmt.Errorf("check design request: %w", err)
	}
	return ok, nil
}

func (r *txRepo) SaveDesignRequest(ctx context.Context, d *model.DesignRequest) error {
	if d.ID == 0 {
		query := `
        INSERT INTO design_requests (consultation_id, designer_id, design_id, status, designer_notes,
            estimated_cost, reviewer_id, review_date, review_notes, revision_count,
            rejection_reason, cancellation_reason, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
        RETURNING id
    `
		err := r.tx.QueryRow(ctx, query,
			d.ConsultationID, d.DesignerID, d.DesignID, d.Status, d.DesignerNotes,
			d.EstimatedCost, d.ReviewerID, d.ReviewDate, d.ReviewNotes, d.RevisionCount,
			d.RejectionReason, d.CancellationReason, d.CreatedAt, d.UpdatedAt,
		).Scan(&d.ID)
		if err != nil {
			return fmt.Errorf("insert design request: %w", err)
		}
		return nil
	}

	query := `
        UPDATE design_requests
        SET designer_id = $2, design_id = $3, status = $4, designer_notes = $5, estimated_cost = $6,
            reviewer_id = $7, review_date = $8, review_notes = $9, revision_count = $10,
            rejection_reason = $11, cancellation_reason = $12, updated_at = $13
        WHERE id = $1
    `
	_, err := r.tx.Exec(ctx, query,
		d.ID, d.DesignerID, d.DesignID, d.Status, d.DesignerNotes, d.EstimatedCost,
		d.ReviewerID, d.ReviewDate, d.ReviewNotes, d.RevisionCount,
		d.RejectionReason, d.CancellationReason, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update design request %d: %w", d.ID, err)
	}
	return nil
}

func (r *txRepo) GetDesign(ctx context.Context, id int64) (*model.Design, error) {
	query := `
        SELECT id, name, description, created_by, base_price, is_custom, is_public, is_active, status,
               rejection_reason, cancellation_reason, customer_approved_public, public_approval_date,
               design_request_id, created_at, updated_at
        FROM designs
        WHERE id = $1
        FOR UPDATE
    `
	var d model.Design
	err := r.tx.QueryRow(ctx, query, id).Scan(
		&d.ID,
		&d.Name,
		&d.Description,
		&d.CreatedBy,
		&d.BasePrice,
		&d.IsCustom,
		&d.IsPublic,
		&d.IsActive,
		&d.Status,
		&d.RejectionReason,
		&d.CancellationReason,
		&d.CustomerApprovedPublic,
		&d.PublicApprovalDate,
		&d.DesignRequestID,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err, "get design")
	}
	return &d, nil
}

func (r *txRepo) SaveDesign(ctx context.Context, d *model.Design) error {
	if d.ID == 0 {
		query := `
        INSERT INTO designs (name, description, created_by, base_price, is_custom, is_public, is_active,
            status, rejection_reason, cancellation_reason, customer_approved_public, public_approval_date,
            design_request_id, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
        RETURNING id
    `
		err := r.tx.QueryRow(ctx, query,
			d.Name, d.Description, d.CreatedBy, d.BasePrice, d.IsCustom, d.IsPublic, d.IsActive,
			d.Status, d.RejectionReason, d.CancellationReason, d.CustomerApprovedPublic, d.PublicApprovalDate,
			d.DesignRequestID, d.CreatedAt, d.UpdatedAt,
		).Scan(&d.ID)
		if err != nil {
			return fmt.Errorf("insert design: %w", err)
		}
		return nil
	}

	query := `
        UPDATE designs
        SET name = $2, description = $3, base_price = $4, is_public = $5, is_active = $6, status = $7,
            rejection_reason = $8, cancellation_reason = $9, customer_approved_public = $10,
            public_approval_date = $11, design_request_id = $12, updated_at = $13
        WHERE id = $1
    `
	_, err := r.tx.Exec(ctx, query,
		d.ID, d.Name, d.Description, d.BasePrice, d.IsPublic, d.IsActive, d.Status,
		d.RejectionReason, d.CancellationReason, d.CustomerApprovedPublic,
		d.PublicApprovalDate, d.DesignRequestID, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update design %d: %w", d.ID, err)
	}
	return nil
}
