package util

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// setNXer is the part of the redis client the deduper uses.
type setNXer interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type Deduper struct {
	rdb    setNXer
	ttl    time.Duration
	logger *zap.Logger
}

func NewDeduper(rdb setNXer, ttl time.Duration, logger *zap.Logger) *Deduper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deduper{rdb: rdb, ttl: ttl, logger: logger}
}

func dedupKey(handler, id string) string {
	return fmt.Sprintf("dedup:%s:%s", handler, id)
}

// AcquireOnce reports whether this is the first time handler sees id.
// When redis is unavailable processing is allowed; the workflow interlock
// still refuses a second settlement.
func (d *Deduper) AcquireOnce(ctx context.Context, handler, id string) bool {
	key := dedupKey(handler, id)

	ok, err := d.rdb.SetNX(ctx, key, 1, d.ttl).Result()
	if err != nil {
		d.logger.Warn("Redis dedup check failed, allowing processing",
			zap.String("handler", handler),
			zap.String("id", id),
			zap.Error(err),
		)
		return true
	}

	if !ok {
		d.logger.Info("Skipped duplicated message",
			zap.String("handler", handler),
			zap.String("dedup_key", key),
		)
	}
	return ok
}

// Release forgets id so a redelivery is processed again. Used when handling
// failed after AcquireOnce.
func (d *Deduper) Release(ctx context.Context, handler, id string) {
	if err := d.rdb.Del(ctx, dedupKey(handler, id)).Err(); err != nil {
		d.logger.Warn("Failed to release dedup key",
			zap.String("handler", handler),
			zap.String("id", id),
			zap.Error(err),
		)
	}
}
