package repository

import (
	"context"
	"fmt"

	"pondflow/internal/model"
)

func (r *txRepo) GetProject(ctx context.Context, id int64) (*model.Project, error) {
	query := `
        SELECT id, consultation_id, customer_id, consultant_id, constructor_id, design_id, name, location,
               total_price, deposit_amount, remaining_amount, status, payment_status, progress_percentage,
               total_stages, completed_stages, technical_completion_date, completion_date,
               cancellation_reason, is_active, created_at, updated_at
        FROM projects
        WHERE id = $1
        FOR UPDATE
    `
	var p model.Project
	err := r.tx.QueryRow(ctx, query, id).Scan(
		&p.ID,
		&p.ConsultationID,
		&p.CustomerID,
		&p.ConsultantID,
		&p.ConstructorID,
		&p.DesignID,
		&p.Name,
		&p.Location,
		&p.TotalPrice,
		&p.DepositAmount,
		&p.RemainingAmount,
		&p.Status,
		&p.PaymentStatus,
		&p.ProgressPercentage,
		&p.TotalStages,
		&p.CompletedStages,
		&p.TechnicalCompletionDate,
		&p.CompletionDate,
		&p.CancellationReason,
		&p.IsActive,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err, "get project")
	}
	return &p, nil
}

func (r *txRepo) ProjectExistsForConsultation(ctx context.Context, consultationID int64) (bool, error) {
	ok, err := r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM projects WHERE consultation_id = $1)`, consultationID)
	if err != nil {
		return false, fmt.Errorf("check project: %w", err)
	}
	return ok, nil
}

func (r *txRepo) CountOpenProjectsForConstructor(ctx context.Context, constructorID, excludeProjectID int64) (int, error) {
	query := `
        SELECT COUNT(*)
        FROM projects
        WHERE constructor_id = $1
          AND id <> $2
          AND status NOT IN ('COMPLETED', 'CANCELLED')
    `
	var n int
	if err := r.tx.QueryRow(ctx, query, constructorID, excludeProjectID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count open projects: %w", err)
	}
	return n, nil
}

func (r *txRepo) SaveProject(ctx context.Context, p *model.Project) error {
	if p.ID == 0 {
		query := `
        INSERT INTO projects (consultation_id, customer_id, consultant_id, constructor_id, design_id, name,
            location, total_price, deposit_amount, remaining_amount, status, payment_status,
            progress_percentage, total_stages, completed_stages, technical_completion_date,
            completion_date, cancellation_reason, is_active, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
        RETURNING id
    `
		err := r.tx.QueryRow(ctx, query,
			p.ConsultationID, p.CustomerID, p.ConsultantID, p.ConstructorID, p.DesignID, p.Name,
			p.Location, p.TotalPrice, p.DepositAmount, p.RemainingAmount, p.Status, p.PaymentStatus,
			p.ProgressPercentage, p.TotalStages, p.CompletedStages, p.TechnicalCompletionDate,
			p.CompletionDate, p.CancellationReason, p.IsActive, p.CreatedAt, p.UpdatedAt,
		).Scan(&p.ID)
		if err != nil {
			return fmt.Errorf("insert project: %w", err)
		}
		return nil
	}

	query := `
        UPDATE projects
        SET constructor_id = $2, name = $3, location = $4, total_price = $5, deposit_amount = $6,
            remaining_amount = $7, status = $8, payment_status = $9, progress_percentage = $10,
            total_stages = $11, completed_stages = $12, technical_completion_date = $13,
            completion_date = $14, cancellation_reason = $15, is_active = $16, updated_at = $17
        WHERE id = $1
    `
	_, err := r.tx.Exec(ctx, query,
		p.ID, p.ConstructorID, p.Name, p.Location, p.TotalPrice, p.DepositAmount,
		p.RemainingAmount, p.Status, p.PaymentStatus, p.ProgressPercentage,
		p.TotalStages, p.CompletedStages, p.TechnicalCompletionDate,
		p.CompletionDate, p.CancellationReason, p.IsActive, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update project %d: %w", p.ID, err)
	}
	return nil
}

func (r *txRepo) GetTask(ctx context.Context, id int64) (*model.Task, error) {
	query := `
        SELECT id, project_id, name, status, order_index, completion_percentage, notes, created_at, updated_at
        FROM tasks
        WHERE id = $1
    `
	var t model.Task
	err := r.tx.QueryRow(ctx, query, id).Scan(
		&t.ID, &t.ProjectID, &t.Name, &t.Status, &t.OrderIndex,
		&t.CompletionPercentage, &t.Notes, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err, "get task")
	}
	return &t, nil
}

func (r *txRepo) ListTasksByProject(ctx context.Context, projectID int64) ([]model.Task, error) {
	query := `
        SELECT id, project_id, name, status, order_index, completion_percentage, notes, created_at, updated_at
        FROM tasks
        WHERE project_id = $1
        ORDER BY order_index ASC, id ASC
    `
	rows, err := r.tx.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		var t model.Task
		if err := rows.Scan(
			&t.ID, &t.ProjectID, &t.Name, &t.Status, &t.OrderIndex,
			&t.CompletionPercentage, &t.Notes, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (r *txRepo) SaveTask(ctx context.Context, t *model.Task) error {
	if t.ID == 0 {
		query := `
        INSERT INTO tasks (project_id, name, status, order_index, completion_percentage, notes, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING id
    `
		err := r.tx.QueryRow(ctx, query,
			t.ProjectID, t.Name, t.Status, t.OrderIndex, t.CompletionPercentage, t.Notes, t.CreatedAt, t.UpdatedAt,
		).Scan(&t.ID)
		if err != nil {
			return fmt.Errorf("insert task: %w", err)
		}
		return nil
	}

	_, err := r.tx.Exec(ctx, `
        UPDATE tasks
        SET status = $2, completion_percentage = $3, notes = $4, updated_at = $5
        WHERE id = $1
    `, t.ID, t.Status, t.CompletionPercentage, t.Notes, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update task %d: %w", t.ID, err)
	}
	return nil
}
