package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"pondflow/internal/model"
	"pondflow/pkg/logger"
	"pondflow/pkg/metrics"
)

// engine is the part every workflow service shares: the store, the
// per-entity locks and the logger.
type engine struct {
	store  Store
	locks  *KeyedMutex
	logger *zap.Logger
}

func newEngine(store Store, locks *KeyedMutex, log *zap.Logger) engine {
	if log == nil {
		log = zap.NewNop()
	}
	return engine{store: store, locks: locks, logger: log}
}

// lock acquires key and records the wait.
func (e *engine) lock(key string) func() {
	start := time.Now()
	unlock := e.locks.Lock(key)
	metrics.RecordLockWait(keyEntity(key), time.Since(start))
	return unlock
}

// unit is one locked unit of work: the store transaction plus every lock
// taken for it. Locks are released only after the transaction has ended.
type unit struct {
	Tx
	e    *engine
	keys map[string]struct{}
	held []func()
}

// lock takes key for the rest of the unit; taking a key twice is a no-op.
// Keys must be taken in the documented order: consultation, design request,
// design, project, user.
func (u *unit) lock(key string) {
	if _, ok := u.keys[key]; ok {
		return
	}
	u.keys[key] = struct{}{}
	u.held = append(u.held, u.e.lock(key))
}

func (u *unit) release() {
	for i := len(u.held) - 1; i >= 0; i-- {
		u.held[i]()
	}
	u.held = nil
}

// run executes fn under the lock for key inside one unit of work. The
// events fn returns are appended in the same unit of work; nothing is
// committed when fn or any append fails. An empty key skips locking, which
// is only correct for commands that create a new entity.
func (e *engine) run(ctx context.Context, op, key string, fn func(u *unit) ([]Event, error)) error {
	u := &unit{e: e, keys: make(map[string]struct{})}
	defer u.release()
	if key != "" {
		u.lock(key)
	}

	var committed []Event
	err := e.store.InTx(ctx, func(tx Tx) error {
		u.Tx = tx
		events, err := fn(u)
		if err != nil {
			return err
		}
		for _, ev := range events {
			if err := tx.AppendEvent(ctx, ev); err != nil {
				return fmt.Errorf("append %s event: %w", ev.RoutingKey, err)
			}
		}
		committed = events
		return nil
	})
	if err != nil {
		e.reject(ctx, op, err)
		return err
	}

	log := logger.WithTrace(ctx, e.logger)
	for _, ev := range committed {
		if ev.transition() {
			metrics.RecordTransition(ev.AggregateType, ev.Payload.From, ev.Payload.To)
		}
		log.Info("Workflow event recorded",
			zap.String("operation", op),
			zap.String("routing_key", ev.RoutingKey),
			zap.Int64("aggregate_id", ev.AggregateID),
			zap.String("from", ev.Payload.From),
			zap.String("to", ev.Payload.To),
		)
	}
	return nil
}

func (e *engine) reject(ctx context.Context, op string, err error) {
	log := logger.WithTrace(ctx, e.logger)
	var werr *Error
	if errors.As(err, &werr) {
		metrics.RecordRejection(op, string(werr.Kind))
		log.Warn("Workflow command rejected",
			zap.String("operation", op),
			zap.String("kind", string(werr.Kind)),
			zap.String("reason", werr.Reason),
		)
		return
	}
	metrics.RecordRejection(op, "internal")
	log.Error("Workflow command failed", zap.String("operation", op), zap.Error(err))
}

// loadErr converts model.ErrNotFound into a typed NotFound error and wraps
// any other storage failure.
func loadErr(err error, entity string, id int64) error {
	if errors.Is(err, model.ErrNotFound) {
		return notFound(entity, id)
	}
	return fmt.Errorf("load %s %d: %w", entity, id, err)
}

func now() time.Time {
	return time.Now().UTC()
}

func int64Ptr(v int64) *int64 {
	return &v
}

func timePtr(t time.Time) *time.Time {
	return &t
}
