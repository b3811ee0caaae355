package workflow

import (
	"context"
	"time"

	"pondflow/pkg/trace"
)

const (
	RoutingConsultationStatusChanged  = "consultation.status_changed"
	RoutingDesignRequestStatusChanged = "design_request.status_changed"
	RoutingDesignLinked               = "design_request.design_linked"
	RoutingDesignStatusChanged        = "design.status_changed"
	RoutingProjectCreated             = "project.created"
	RoutingProjectStatusChanged       = "project.status_changed"
	RoutingPaymentStatusChanged       = "project.payment_status_changed"
	RoutingPaymentDeclined            = "project.payment_declined"
	RoutingConstructorAssigned        = "project.constructor_assigned"
	RoutingTaskUpdated                = "task.updated"
)

// Event is a domain event recorded in the same unit of work as the change
// it describes and published later through the outbox.
type Event struct {
	AggregateType string
	AggregateID   int64
	RoutingKey    string
	Payload       Change
}

// Change is the wire payload of every workflow event.
type Change struct {
	Entity     string    `json:"entity"`
	ID         int64     `json:"id"`
	From       string    `json:"from,omitempty"`
	To         string    `json:"to,omitempty"`
	ActorID    int64     `json:"actor_id,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	TraceID    string    `json:"trace_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func newEvent(ctx context.Context, routingKey, entity string, id int64, from, to string, actor int64, reason string) Event {
	return Event{
		AggregateType: entity,
		AggregateID:   id,
		RoutingKey:    routingKey,
		Payload: Change{
			Entity:     entity,
			ID:         id,
			From:       from,
			To:         to,
			ActorID:    actor,
			Reason:     reason,
			TraceID:    trace.FromContext(ctx),
			OccurredAt: time.Now().UTC(),
		},
	}
}

// transition reports whether ev describes a status change worth counting.
func (ev Event) transition() bool {
	return ev.Payload.From != "" && ev.Payload.To != "" && ev.Payload.From != ev.Payload.To
}
