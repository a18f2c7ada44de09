package tracing

import (
	"context"

	"github.com/google/uuid"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID
	TraceIDKey ContextKey = "trace_id"
	// TurnIDKey is the context key for the turn-chain ID
	TurnIDKey ContextKey = "turn_id"
	// OwnerIDKey is the context key for the owner ID
	OwnerIDKey ContextKey = "owner_id"
	// ThreadIDKey is the context key for the thread ID
	ThreadIDKey ContextKey = "thread_id"
)

// TraceContext holds tracing information for one turn-chain.
type TraceContext struct {
	TraceID  string
	TurnID   string
	OwnerID  string
	ThreadID string
}

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// NewTurnID generates a new turn-chain ID
func NewTurnID() string {
	return uuid.New().String()
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithTurnID adds a turn-chain ID to the context
func WithTurnID(ctx context.Context, turnID string) context.Context {
	return context.WithValue(ctx, TurnIDKey, turnID)
}

// WithOwnerID adds an owner ID to the context
func WithOwnerID(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, OwnerIDKey, ownerID)
}

// WithThreadID adds a thread ID to the context
func WithThreadID(ctx context.Context, threadID string) context.Context {
	return context.WithValue(ctx, ThreadIDKey, threadID)
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// GetTurnID retrieves the turn-chain ID from the context
func GetTurnID(ctx context.Context) string {
	if turnID, ok := ctx.Value(TurnIDKey).(string); ok {
		return turnID
	}
	return ""
}

// GetOwnerID retrieves the owner ID from the context
func GetOwnerID(ctx context.Context) string {
	if ownerID, ok := ctx.Value(OwnerIDKey).(string); ok {
		return ownerID
	}
	return ""
}

// GetThreadID retrieves the thread ID from the context
func GetThreadID(ctx context.Context) string {
	if threadID, ok := ctx.Value(ThreadIDKey).(string); ok {
		return threadID
	}
	return ""
}

// FromContext extracts all tracing information from the context
func FromContext(ctx context.Context) *TraceContext {
	return &TraceContext{
		TraceID:  GetTraceID(ctx),
		TurnID:   GetTurnID(ctx),
		OwnerID:  GetOwnerID(ctx),
		ThreadID: GetThreadID(ctx),
	}
}

// NewContext creates a new context carrying the given tracing information
func NewContext(ctx context.Context, tc *TraceContext) context.Context {
	if tc.TraceID != "" {
		ctx = WithTraceID(ctx, tc.TraceID)
	}
	if tc.TurnID != "" {
		ctx = WithTurnID(ctx, tc.TurnID)
	}
	if tc.OwnerID != "" {
		ctx = WithOwnerID(ctx, tc.OwnerID)
	}
	if tc.ThreadID != "" {
		ctx = WithThreadID(ctx, tc.ThreadID)
	}
	return ctx
}

// NewRequestContext creates a context for an incoming request with a fresh trace ID
func NewRequestContext(ctx context.Context) context.Context {
	return WithTraceID(ctx, NewTraceID())
}

// NewTurnContext creates a context for a turn-chain with a fresh turn ID and
// the thread/owner identity every downstream component logs against.
func NewTurnContext(ctx context.Context, ownerID, threadID string) context.Context {
	ctx = WithTurnID(ctx, NewTurnID())
	ctx = WithOwnerID(ctx, ownerID)
	return WithThreadID(ctx, threadID)
}
