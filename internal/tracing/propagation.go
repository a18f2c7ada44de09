package tracing

import (
	"context"

	"github.com/rs/zerolog"
)

// PropagateToLogger adds tracing context to a zerolog logger
func PropagateToLogger(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	tc := FromContext(ctx)

	if tc.TraceID != "" {
		logger = logger.With().Str("trace_id", tc.TraceID).Logger()
	}
	if tc.TurnID != "" {
		logger = logger.With().Str("turn_id", tc.TurnID).Logger()
	}
	if tc.OwnerID != "" {
		logger = logger.With().Str("owner_id", tc.OwnerID).Logger()
	}
	if tc.ThreadID != "" {
		logger = logger.With().Str("thread_id", tc.ThreadID).Logger()
	}

	return logger
}

// LoggerFromContext creates a logger with tracing context from the given context
func LoggerFromContext(ctx context.Context, baseLogger zerolog.Logger) zerolog.Logger {
	return PropagateToLogger(ctx, baseLogger)
}

// MergeContext merges tracing information from source context into target context.
// Useful when a tool invocation joins a turn-chain started elsewhere.
func MergeContext(target, source context.Context) context.Context {
	tc := FromContext(source)

	if tc.TraceID != "" && GetTraceID(target) == "" {
		target = WithTraceID(target, tc.TraceID)
	}
	if tc.TurnID != "" && GetTurnID(target) == "" {
		target = WithTurnID(target, tc.TurnID)
	}
	if tc.OwnerID != "" && GetOwnerID(target) == "" {
		target = WithOwnerID(target, tc.OwnerID)
	}
	if tc.ThreadID != "" && GetThreadID(target) == "" {
		target = WithThreadID(target, tc.ThreadID)
	}

	return target
}

// CloneContext creates a fresh context carrying the same tracing information.
// Used when a background task must outlive the request context.
func CloneContext(ctx context.Context) context.Context {
	tc := FromContext(ctx)
	return NewContext(context.Background(), tc)
}
