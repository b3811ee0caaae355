package util

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRedis struct {
	mu      sync.Mutex
	values  map[string]int64
	expires map[string]time.Duration
	err     error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string]int64{}, expires: map[string]time.Duration{}}
}

func (f *fakeRedis) SetNX(_ context.Context, key string, _ interface{}, ttl time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewBoolResult(false, f.err)
	}
	if _, ok := f.values[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.values[key] = 1
	f.expires[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Incr(_ context.Context, key string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key]++
	return redis.NewIntResult(f.values[key], nil)
}

func (f *fakeRedis) Expire(_ context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expires[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(fmt.Sprint(v), nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.values, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func TestDeduper_AcquireOnce(t *testing.T) {
	rdb := newFakeRedis()
	d := NewDeduper(rdb, time.Hour, zap.NewNop())
	ctx := context.Background()

	assert.True(t, d.AcquireOnce(ctx, "payment_result", "txn-1"))
	assert.False(t, d.AcquireOnce(ctx, "payment_result", "txn-1"))
	assert.True(t, d.AcquireOnce(ctx, "payment_result", "txn-2"))
	assert.Equal(t, time.Hour, rdb.expires["dedup:payment_result:txn-1"])
}

func TestDeduper_ReleaseAllowsRedelivery(t *testing.T) {
	d := NewDeduper(newFakeRedis(), time.Hour, zap.NewNop())
	ctx := context.Background()

	require.True(t, d.AcquireOnce(ctx, "payment_result", "txn-1"))
	d.Release(ctx, "payment_result", "txn-1")
	assert.True(t, d.AcquireOnce(ctx, "payment_result", "txn-1"))
}

func TestDeduper_RedisDownAllowsProcessing(t *testing.T) {
	rdb := newFakeRedis()
	rdb.err = errors.New("dial tcp: connection refused")
	d := NewDeduper(rdb, time.Hour, nil)

	assert.True(t, d.AcquireOnce(context.Background(), "payment_result", "txn-1"))
	assert.True(t, d.AcquireOnce(context.Background(), "payment_result", "txn-1"))
}

func TestRetryCounter(t *testing.T) {
	rdb := newFakeRedis()
	rc := NewRetryCounter(rdb, 10*time.Minute)
	ctx := context.Background()
	key := FormatRetryKey("payment_result", "txn-1")
	assert.Equal(t, "retry:payment_result:txn-1", key)

	n, err := rc.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	for want := int64(1); want <= 3; want++ {
		n, err = rc.IncrementAndGet(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
	assert.Equal(t, 10*time.Minute, rdb.expires[key])

	n, err = rc.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	require.NoError(t, rc.Reset(ctx, key))
	n, err = rc.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestIsRetryableError(t *testing.T) {
	var syntaxErr error
	var v map[string]any
	syntaxErr = json.Unmarshal([]byte("{"), &v)

	tests := []struct {
		name      string
		err       error
		retryable bool
		errType   string
	}{
		{"nil", nil, false, ""},
		{"json", fmt.Errorf("decode: %w", syntaxErr), false, "json_decode_error"},
		{"no rows", fmt.Errorf("load: %w", pgx.ErrNoRows), false, "not_found"},
		{"duplicate", &pgconn.PgError{Code: "23505"}, false, "duplicate_key"},
		{"serialization", &pgconn.PgError{Code: "40001"}, true, "db_transaction_rollback"},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), true, "timeout"},
		{"canceled", context.Canceled, false, "context_canceled"},
		{"refused", errors.New("dial tcp 127.0.0.1:5432: connection refused"), true, "connection_error"},
		{"other", errors.New("boom"), false, "unknown_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			retryable, errType := IsRetryableError(tt.err)
			assert.Equal(t, tt.retryable, retryable)
			assert.Equal(t, tt.errType, errType)
		})
	}
}

func TestShouldRetry(t *testing.T) {
	assert.True(t, ShouldRetry(1, 3, true))
	assert.True(t, ShouldRetry(3, 3, true))
	assert.False(t, ShouldRetry(4, 3, true))
	assert.False(t, ShouldRetry(1, 3, false))
}
