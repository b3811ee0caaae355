package memory

import (
	"context"
	"fmt"
	"time"

	"pondflow/pkg/outbox"
)

// The Store doubles as an outbox.Store so the dispatcher runs unchanged on
// the memory driver.

func (s *Store) GetPendingEvents(_ context.Context, limit int) ([]*outbox.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := time.Now()
	var out []*outbox.Event
	for _, e := range s.outbox {
		if len(out) >= limit {
			break
		}
		if e.Status == outbox.StatusPending && (e.NextRetryAt == nil || !e.NextRetryAt.After(now)) {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) GetFailedEvents(_ context.Context, limit int) ([]*outbox.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*outbox.Event
	for i := len(s.outbox) - 1; i >= 0 && len(out) < limit; i-- {
		if e := s.outbox[i]; e.Status == outbox.StatusFailed {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) GetEventByID(_ context.Context, eventID int64) (*outbox.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, err := s.outboxEvent(eventID)
	if err != nil {
		return nil, err
	}
	cp := *e
	return &cp, nil
}

func (s *Store) MarkAsSent(_ context.Context, eventID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.outboxEvent(eventID)
	if err != nil {
		return err
	}
	e.Status = outbox.StatusSent
	e.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) MarkAsFailed(_ context.Context, eventID int64, maxRetries int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.outboxEvent(eventID)
	if err != nil {
		return err
	}
	e.RetryCount++
	e.Status, e.NextRetryAt = outbox.NextAttempt(e.RetryCount, maxRetries, time.Now())
	e.UpdatedAt = time.Now().UTC()
	return nil
}

// outboxEvent must be called with s.mu held.
func (s *Store) outboxEvent(eventID int64) (*outbox.Event, error) {
	if eventID < 1 || eventID > int64(len(s.outbox)) {
		return nil, fmt.Errorf("%w: %d", outbox.ErrEventNotFound, eventID)
	}
	return s.outbox[eventID-1], nil
}
