package outbox

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"pondflow/pkg/metrics"
)

// ReplayService republishes events on operator request.
type ReplayService struct {
	store      Store
	publisher  Publisher
	logger     *zap.Logger
	maxRetries int
}

func NewReplayService(store Store, publisher Publisher, logger *zap.Logger) *ReplayService {
	return &ReplayService{store: store, publisher: publisher, logger: logger, maxRetries: 5}
}

// ReplayEvent publishes one event regardless of its current status.
func (s *ReplayService) ReplayEvent(ctx context.Context, eventID int64) error {
	event, err := s.store.GetEventByID(ctx, eventID)
	if err != nil {
		return err
	}

	if err := publish(ctx, s.publisher, event); err != nil {
		metrics.RecordOutboxPublish(event.RoutingKey, "error")
		if markErr := s.store.MarkAsFailed(ctx, eventID, s.maxRetries); markErr != nil {
			return fmt.Errorf("replay event %d: %w (mark failed: %v)", eventID, err, markErr)
		}
		return fmt.Errorf("replay event %d: %w", eventID, err)
	}
	metrics.RecordOutboxPublish(event.RoutingKey, "replayed")
	if err := s.store.MarkAsSent(ctx, eventID); err != nil {
		return fmt.Errorf("mark event %d as sent: %w", eventID, err)
	}
	return nil
}

// ReplayFailedEvents retries up to limit failed events and returns how many
// were published.
func (s *ReplayService) ReplayFailedEvents(ctx context.Context, limit int) (int, error) {
	events, err := s.store.GetFailedEvents(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("get failed events: %w", err)
	}

	replayed := 0
	for _, event := range events {
		if err := s.ReplayEvent(ctx, event.ID); err != nil {
			s.logger.Warn("Replay failed", zap.Int64("event_id", event.ID), zap.Error(err))
			continue
		}
		replayed++
	}
	return replayed, nil
}
