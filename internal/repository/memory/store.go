// Package memory is the in-process Entity Store used for local runs and
// tests. A transaction buffers its writes and applies them at commit under
// one write lock, so a failed command leaves nothing behind. Isolation
// between commands on the same entity comes from the workflow locks.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"pondflow/internal/model"
	"pondflow/internal/workflow"
	"pondflow/pkg/outbox"
)

type Store struct {
	mu sync.RWMutex

	consultations  map[int64]model.ConsultationRequest
	designRequests map[int64]model.DesignRequest
	designs        map[int64]model.Design
	projects       map[int64]model.Project
	tasks          map[int64]model.Task
	users          map[int64]model.User

	events []workflow.Event
	outbox []*outbox.Event

	ids map[string]int64
}

func NewStore() *Store {
	return &Store{
		consultations:  make(map[int64]model.ConsultationRequest),
		designRequests: make(map[int64]model.DesignRequest),
		designs:        make(map[int64]model.Design),
		projects:       make(map[int64]model.Project),
		tasks:          make(map[int64]model.Task),
		users:          make(map[int64]model.User),
		ids:            make(map[string]int64),
	}
}

func (s *Store) nextID(table string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids[table]++
	return s.ids[table]
}

// InTx implements workflow.Store.
func (s *Store) InTx(ctx context.Context, fn func(tx workflow.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := newTx(s)
	if err := fn(tx); err != nil {
		return err
	}
	return tx.commit()
}

// Events returns a copy of every committed workflow event in order.
func (s *Store) Events() []workflow.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]workflow.Event, len(s.events))
	copy(out, s.events)
	return out
}

// CreateUser inserts u outside any workflow command; usernames are unique.
func (s *Store) CreateUser(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if strings.EqualFold(existing.Username, u.Username) {
			return fmt.Errorf("%w: %s", model.ErrDuplicateUsername, u.Username)
		}
	}
	s.ids["users"]++
	u.ID = s.ids["users"]
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	u.UpdatedAt = u.CreatedAt
	s.users[u.ID] = *u
	return nil
}

func (s *Store) FindUserByUsername(_ context.Context, username string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Username, username) {
			out := u
			return &out, nil
		}
	}
	return nil, model.ErrNotFound
}

func (s *Store) Ping(context.Context) error { return nil }

type tx struct {
	s *Store

	consultations  map[int64]model.ConsultationRequest
	designRequests map[int64]model.DesignRequest
	designs        map[int64]model.Design
	projects       map[int64]model.Project
	tasks          map[int64]model.Task
	users          map[int64]model.User
	events         []workflow.Event
}

func newTx(s *Store) *tx {
	return &tx{
		s:              s,
		consultations:  make(map[int64]model.ConsultationRequest),
		designRequests: make(map[int64]model.DesignRequest),
		designs:        make(map[int64]model.Design),
		projects:       make(map[int64]model.Project),
		tasks:          make(map[int64]model.Task),
		users:          make(map[int64]model.User),
	}
}

func (t *tx) commit() error {
	payloads := make([][]byte, len(t.events))
	for i, ev := range t.events {
		b, err := json.Marshal(ev.Payload)
		if err != nil {
			return fmt.Errorf("marshal %s payload: %w", ev.RoutingKey, err)
		}
		payloads[i] = b
	}

	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	apply(s.consultations, t.consultations)
	apply(s.designRequests, t.designRequests)
	apply(s.designs, t.designs)
	apply(s.projects, t.projects)
	apply(s.tasks, t.tasks)
	apply(s.users, t.users)

	now := time.Now().UTC()
	for i, ev := range t.events {
		s.events = append(s.events, ev)
		aggregateID := ev.AggregateID
		s.outbox = append(s.outbox, &outbox.Event{
			ID:            int64(len(s.outbox) + 1),
			AggregateType: ev.AggregateType,
			AggregateID:   &aggregateID,
			RoutingKey:    ev.RoutingKey,
			Payload:       payloads[i],
			Status:        outbox.StatusPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}
	return nil
}

func apply[T any](dst, src map[int64]T) {
	for id, v := range src {
		dst[id] = v
	}
}

// get reads id from the pending writes first, then from committed state.
func get[T any](t *tx, pending, committed map[int64]T, id int64) (*T, error) {
	if v, ok := pending[id]; ok {
		return &v, nil
	}
	t.s.mu.RLock()
	v, ok := committed[id]
	t.s.mu.RUnlock()
	if !ok {
		return nil, model.ErrNotFound
	}
	return &v, nil
}

// scan returns every row matching fn, pending writes shadowing committed
// rows, ordered by id.
func scan[T any](t *tx, pending, committed map[int64]T, fn func(*T) bool) []T {
	merged := make(map[int64]T)
	t.s.mu.RLock()
	for id, v := range committed {
		merged[id] = v
	}
	t.s.mu.RUnlock()
	for id, v := range pending {
		merged[id] = v
	}

	ids := make([]int64, 0, len(merged))
	for id, v := range merged {
		if fn(&v) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		out = append(out, merged[id])
	}
	return out
}

func first[T any](rows []T) (*T, error) {
	if len(rows) == 0 {
		return nil, model.ErrNotFound
	}
	return &rows[0], nil
}

func (t *tx) GetConsultation(_ context.Context, id int64) (*model.ConsultationRequest, error) {
	return get(t, t.consultations, t.s.consultations, id)
}

func (t *tx) SaveConsultation(_ context.Context, c *model.ConsultationRequest) error {
	if c.ID == 0 {
		c.ID = t.s.nextID("consultations")
	}
	t.consultations[c.ID] = *c
	return nil
}

func (t *tx) GetDesignRequest(_ context.Context, id int64) (*model.DesignRequest, error) {
	return get(t, t.designRequests, t.s.designRequests, id)
}

func (t *tx) GetDesignRequestByConsultation(_ context.Context, consultationID int64) (*model.DesignRequest, error) {
	return first(scan(t, t.designRequests, t.s.designRequests, func(r *model.DesignRequest) bool {
		return r.ConsultationID == consultationID
	}))
}

func (t *tx) GetDesignRequestByDesign(_ context.Context, designID int64) (*model.DesignRequest, error) {
	return first(scan(t, t.designRequests, t.s.designRequests, func(r *model.DesignRequest) bool {
		return r.DesignID != nil && *r.DesignID == designID
	}))
}

func (t *tx) DesignRequestExists(ctx context.Context, consultationID int64) (bool, error) {
	_, err := t.GetDesignRequestByConsultation(ctx, consultationID)
	if errors.Is(err, model.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (t *tx) SaveDesignRequest(_ context.Context, r *model.DesignRequest) error {
	if r.ID == 0 {
		r.ID = t.s.nextID("design_requests")
	}
	t.designRequests[r.ID] = *r
	return nil
}

func (t *tx) GetDesign(_ context.Context, id int64) (*model.Design, error) {
	return get(t, t.designs, t.s.designs, id)
}

func (t *tx) SaveDesign(_ context.Context, d *model.Design) error {
	if d.ID == 0 {
		d.ID = t.s.nextID("designs")
	}
	t.designs[d.ID] = *d
	return nil
}

func (t *tx) GetProject(_ context.Context, id int64) (*model.Project, error) {
	return get(t, t.projects, t.s.projects, id)
}

func (t *tx) ProjectExistsForConsultation(_ context.Context, consultationID int64) (bool, error) {
	rows := scan(t, t.projects, t.s.projects, func(p *model.Project) bool {
		return p.ConsultationID == consultationID
	})
	return len(rows) > 0, nil
}

func (t *tx) CountOpenProjectsForConstructor(_ context.Context, constructorID, excludeProjectID int64) (int, error) {
	rows := scan(t, t.projects, t.s.projects, func(p *model.Project) bool {
		return p.ID != excludeProjectID && p.IsConstructor(constructorID) && !p.Status.Terminal()
	})
	return len(rows), nil
}

func (t *tx) SaveProject(_ context.Context, p *model.Project) error {
	if p.ID == 0 {
		p.ID = t.s.nextID("projects")
	}
	t.projects[p.ID] = *p
	return nil
}

func (t *tx) GetTask(_ context.Context, id int64) (*model.Task, error) {
	return get(t, t.tasks, t.s.tasks, id)
}

func (t *tx) ListTasksByProject(_ context.Context, projectID int64) ([]model.Task, error) {
	rows := scan(t, t.tasks, t.s.tasks, func(task *model.Task) bool {
		return task.ProjectID == projectID
	})
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].OrderIndex < rows[j].OrderIndex })
	return rows, nil
}

func (t *tx) SaveTask(_ context.Context, task *model.Task) error {
	if task.ID == 0 {
		task.ID = t.s.nextID("tasks")
	}
	t.tasks[task.ID] = *task
	return nil
}

func (t *tx) GetUser(_ context.Context, id int64) (*model.User, error) {
	return get(t, t.users, t.s.users, id)
}

func (t *tx) SaveUser(_ context.Context, u *model.User) error {
	if u.ID == 0 {
		u.ID = t.s.nextID("users")
	}
	t.users[u.ID] = *u
	return nil
}

func (t *tx) AppendEvent(_ context.Context, ev workflow.Event) error {
	t.events = append(t.events, ev)
	return nil
}
