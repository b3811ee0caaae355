package db

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSlowQueryTracer_LogsOnlySlowQueries(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	tracer := NewSlowQueryTracer(zap.New(core), time.Millisecond)

	fast := tracer.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{SQL: "SELECT 1"})
	tracer.TraceQueryEnd(fast, nil, pgx.TraceQueryEndData{})
	assert.Equal(t, 0, logs.Len())

	slow := tracer.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{SQL: "SELECT pg_sleep(1)"})
	time.Sleep(5 * time.Millisecond)
	tracer.TraceQueryEnd(slow, nil, pgx.TraceQueryEndData{})

	if assert.Equal(t, 1, logs.Len()) {
		entry := logs.All()[0]
		assert.Equal(t, "slow-query", entry.Message)
		assert.Equal(t, "SELECT pg_sleep(1)", entry.ContextMap()["sql"])
	}
}

func TestSlowQueryTracer_DefaultThreshold(t *testing.T) {
	tracer := NewSlowQueryTracer(zap.NewNop(), 0)
	assert.Equal(t, 100*time.Millisecond, tracer.slowThreshold)
}

func TestSlowQueryTracer_IgnoresUntrackedContext(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	tracer := NewSlowQueryTracer(zap.New(core), time.Nanosecond)

	tracer.TraceQueryEnd(context.Background(), nil, pgx.TraceQueryEndData{})
	assert.Equal(t, 0, logs.Len())
}
