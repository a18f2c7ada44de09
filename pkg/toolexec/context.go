package toolexec

import (
	"context"
	"errors"
)

type execContextKey struct{}

// ContextWithExecContext attaches the execution context to a context.Context
// so retrieval tools can resolve their owner/thread scope.
func ContextWithExecContext(ctx context.Context, execCtx *ExecutionContext) context.Context {
	if ctx == nil {
		return context.Background()
	}
	if execCtx == nil {
		return ctx
	}
	return context.WithValue(ctx, execContextKey{}, execCtx)
}

// ExecContextFromContext extracts the execution context from a context.Context.
func ExecContextFromContext(ctx context.Context) *ExecutionContext {
	if ctx == nil {
		return nil
	}
	if v := ctx.Value(execContextKey{}); v != nil {
		if execCtx, ok := v.(*ExecutionContext); ok {
			return execCtx
		}
	}
	return nil
}

// RequireExecContext extracts the execution context or reports that the
// handler ran outside a dispatch scope. Thread-scoped tools need the
// owner/thread pair and cannot run without it.
func RequireExecContext(ctx context.Context) (*ExecutionContext, error) {
	execCtx := ExecContextFromContext(ctx)
	if execCtx == nil {
		return nil, errors.New("no execution context: tool invoked outside a dispatch scope")
	}
	if execCtx.OwnerID == "" || execCtx.ThreadID == "" {
		return nil, errors.New("execution context is missing owner or thread")
	}
	return execCtx, nil
}
