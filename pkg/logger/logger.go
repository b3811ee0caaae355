package logger

import (
	"context"

	"go.uber.org/zap"
	"pondflow/pkg/trace"
)

var Log *zap.Logger

// NewLogger builds the production logger. Development mode switches to the
// human-readable console encoder.
func NewLogger(development bool) *zap.Logger {
	var (
		l   *zap.Logger
		err error
	)
	if development {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	Log = l
	return l
}

// WithTrace adds the trace_id carried by ctx to logger.
func WithTrace(ctx context.Context, logger *zap.Logger) *zap.Logger {
	traceID := trace.FromContext(ctx)
	if traceID != "" {
		return logger.With(zap.String("trace_id", traceID))
	}
	return logger
}
