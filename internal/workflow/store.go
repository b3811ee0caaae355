package workflow

import (
	"context"

	"pondflow/internal/model"
)

// Store is the Entity Store as the workflow sees it. InTx runs fn inside one
// unit of work: every write made through tx commits together or not at all.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the narrow repository contract available inside a unit of work.
// Getters return model.ErrNotFound when the record does not exist. Save
// methods upsert: a zero ID inserts and assigns the new ID.
type Tx interface {
	GetConsultation(ctx context.Context, id int64) (*model.ConsultationRequest, error)
	SaveConsultation(ctx context.Context, c *model.ConsultationRequest) error

	GetDesignRequest(ctx context.Context, id int64) (*model.DesignRequest, error)
	GetDesignRequestByConsultation(ctx context.Context, consultationID int64) (*model.DesignRequest, error)
	GetDesignRequestByDesign(ctx context.Context, designID int64) (*model.DesignRequest, error)
	DesignRequestExists(ctx context.Context, consultationID int64) (bool, error)
	SaveDesignRequest(ctx context.Context, r *model.DesignRequest) error

	GetDesign(ctx context.Context, id int64) (*model.Design, error)
	SaveDesign(ctx context.Context, d *model.Design) error

	GetProject(ctx context.Context, id int64) (*model.Project, error)
	ProjectExistsForConsultation(ctx context.Context, consultationID int64) (bool, error)
	// CountOpenProjectsForConstructor counts non-terminal projects assigned to
	// constructorID, excluding excludeProjectID.
	CountOpenProjectsForConstructor(ctx context.Context, constructorID, excludeProjectID int64) (int, error)
	SaveProject(ctx context.Context, p *model.Project) error

	GetTask(ctx context.Context, id int64) (*model.Task, error)
	// ListTasksByProject returns tasks ordered by OrderIndex.
	ListTasksByProject(ctx context.Context, projectID int64) ([]model.Task, error)
	SaveTask(ctx context.Context, t *model.Task) error

	GetUser(ctx context.Context, id int64) (*model.User, error)
	SaveUser(ctx context.Context, u *model.User) error

	AppendEvent(ctx context.Context, e Event) error
}
