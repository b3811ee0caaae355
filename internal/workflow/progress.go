package workflow

import (
	"context"
	"fmt"

	"pondflow/internal/model"
)

const entityTask = "task"

// AllTasksCompleted is the technical-completion gate. A project without
// tasks never passes it.
func AllTasksCompleted(tasks []model.Task) bool {
	if len(tasks) == 0 {
		return false
	}
	for i := range tasks {
		if !tasks[i].Done() {
			return false
		}
	}
	return true
}

// Progress is floor(100 * completed / total), 0 for an empty list. Only the
// task status counts here; the gate above also needs 100%.
func Progress(tasks []model.Task) int {
	if len(tasks) == 0 {
		return 0
	}
	completed := 0
	for i := range tasks {
		if tasks[i].Status == model.TaskStatusCompleted {
			completed++
		}
	}
	return 100 * completed / len(tasks)
}

// TaskUpdate carries the constructor's edits; nil fields are left as they are.
type TaskUpdate struct {
	Status               *string
	CompletionPercentage *int
	Notes                *string
}

// AreAllTasksCompleted reads the project's tasks and applies the gate.
func (s *ProjectService) AreAllTasksCompleted(ctx context.Context, caller Caller, projectID int64) (bool, error) {
	var done bool
	err := s.store.InTx(ctx, func(tx Tx) error {
		p, err := tx.GetProject(ctx, projectID)
		if err != nil {
			return loadErr(err, entityProject, projectID)
		}
		if err := canReadProject(caller, p); err != nil {
			return err
		}
		tasks, err := tx.ListTasksByProject(ctx, projectID)
		if err != nil {
			return fmt.Errorf("list tasks of project %d: %w", projectID, err)
		}
		done = AllTasksCompleted(tasks)
		return nil
	})
	return done, err
}

// RecomputeProgress refreshes the derived progress fields of an IN_PROGRESS
// project under its lock and returns the new percentage. Only the assigned
// constructor or a manager may trigger it.
func (s *ProjectService) RecomputeProgress(ctx context.Context, caller Caller, projectID int64) (int, error) {
	var pct int
	err := s.run(ctx, "project.recompute_progress", ProjectKey(projectID), func(u *unit) ([]Event, error) {
		p, err := u.GetProject(ctx, projectID)
		if err != nil {
			return nil, loadErr(err, entityProject, projectID)
		}
		if !caller.Is(model.RoleManager) && !p.IsConstructor(caller.UserID) {
			return nil, unauthorized("only a manager or the assigned constructor may recompute project %d", projectID)
		}
		if p.Status != model.ProjectInProgress {
			return nil, precondition("progress of project %d is frozen outside IN_PROGRESS (is %s)", projectID, p.Status)
		}
		if err := refreshProgress(ctx, u, p); err != nil {
			return nil, err
		}
		pct = p.ProgressPercentage
		return nil, nil
	})
	return pct, err
}

// ListTasks returns the project's tasks in order.
func (s *ProjectService) ListTasks(ctx context.Context, caller Caller, projectID int64) ([]model.Task, error) {
	var tasks []model.Task
	err := s.store.InTx(ctx, func(tx Tx) error {
		p, err := tx.GetProject(ctx, projectID)
		if err != nil {
			return loadErr(err, entityProject, projectID)
		}
		if err := canReadProject(caller, p); err != nil {
			return err
		}
		tasks, err = tx.ListTasksByProject(ctx, projectID)
		return err
	})
	return tasks, err
}

// UpdateTask applies a constructor's edit to one task and recomputes the
// project's progress in the same unit of work.
func (s *ProjectService) UpdateTask(ctx context.Context, caller Caller, taskID int64, upd TaskUpdate) (*model.Task, error) {
	if err := requireRole(caller, "update tasks", model.RoleConstructionStaff); err != nil {
		s.reject(ctx, "task.update", err)
		return nil, err
	}
	projectID, err := s.taskProject(ctx, taskID)
	if err != nil {
		s.reject(ctx, "task.update", err)
		return nil, err
	}

	var out *model.Task
	err = s.run(ctx, "task.update", ProjectKey(projectID), func(u *unit) ([]Event, error) {
		p, err := u.GetProject(ctx, projectID)
		if err != nil {
			return nil, loadErr(err, entityProject, projectID)
		}
		if !p.IsConstructor(caller.UserID) {
			return nil, unauthorized("project %d is not assigned to constructor %d", projectID, caller.UserID)
		}
		if p.Status != model.ProjectInProgress {
			return nil, precondition("tasks of project %d can only change while IN_PROGRESS (is %s)", projectID, p.Status)
		}
		t, err := u.GetTask(ctx, taskID)
		if err != nil {
			return nil, loadErr(err, entityTask, taskID)
		}
		if upd.CompletionPercentage != nil {
			pct := *upd.CompletionPercentage
			if pct < 0 || pct > 100 {
				return nil, precondition("completion percentage %d is outside 0-100", pct)
			}
			t.CompletionPercentage = pct
		}
		from := t.Status
		if upd.Status != nil {
			t.Status = *upd.Status
		}
		if upd.Notes != nil {
			t.Notes = *upd.Notes
		}
		t.UpdatedAt = now()
		if err := u.SaveTask(ctx, t); err != nil {
			return nil, fmt.Errorf("save task %d: %w", t.ID, err)
		}
		if err := refreshProgress(ctx, u, p); err != nil {
			return nil, err
		}
		out = t
		return []Event{newEvent(ctx, RoutingTaskUpdated, entityTask, t.ID,
			from, t.Status, caller.UserID, "")}, nil
	})
	return out, err
}

func (s *ProjectService) taskProject(ctx context.Context, taskID int64) (int64, error) {
	var projectID int64
	err := s.store.InTx(ctx, func(tx Tx) error {
		t, err := tx.GetTask(ctx, taskID)
		if err != nil {
			return loadErr(err, entityTask, taskID)
		}
		projectID = t.ProjectID
		return nil
	})
	return projectID, err
}

// refreshProgress recomputes and saves the derived progress fields of p.
// The last stage is reserved for the manager, so completed stages stop one
// short of the total.
func refreshProgress(ctx context.Context, u *unit, p *model.Project) error {
	tasks, err := u.ListTasksByProject(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("list tasks of project %d: %w", p.ID, err)
	}
	completed := 0
	for i := range tasks {
		if tasks[i].Status == model.TaskStatusCompleted {
			completed++
		}
	}
	p.ProgressPercentage = Progress(tasks)
	p.CompletedStages = min(completed, max(p.TotalStages-1, 0))
	p.UpdatedAt = now()
	if err := u.SaveProject(ctx, p); err != nil {
		return fmt.Errorf("save project progress: %w", err)
	}
	return nil
}
