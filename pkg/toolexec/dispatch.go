package toolexec

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/phoenixlabs/phoenix/internal/observability"
	"github.com/phoenixlabs/phoenix/internal/tracing"
)

// Call is one requested tool invocation from a reasoning step.
type Call struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// Result is the textual outcome of one call, successful or not. Every
// dispatched call produces exactly one Result carrying its originating ID.
type Result struct {
	CallID   string `json:"call_id"`
	ToolName string `json:"tool_name"`
	Content  string `json:"content"`
}

// Dispatch runs a batch of tool calls under the per-query quota. With
// remaining = max-current (floored at zero), the first remaining calls in
// request order execute concurrently; the rest are denied with a fixed quota
// message. Results come back in request order, one per call, and the returned
// count is current plus the number of executed calls.
func (e *Executor) Dispatch(ctx context.Context, calls []Call, current, max int, execCtx *ExecutionContext) ([]Result, int) {
	if len(calls) == 0 {
		return nil, current
	}

	ctx, span := tracing.StartSpan(ctx, "phoenix.toolexec", "dispatch",
		attribute.Int("calls", len(calls)),
		attribute.Int("current", current),
		attribute.Int("max", max),
	)
	defer span.End()

	remaining := max - current
	if remaining < 0 {
		remaining = 0
	}
	if remaining > len(calls) {
		remaining = len(calls)
	}

	allowed := calls[:remaining]
	denied := calls[remaining:]

	logger := tracing.LoggerFromContext(ctx, log.Logger)
	logger.Debug().
		Int("allowed", len(allowed)).
		Int("denied", len(denied)).
		Int("current", current).
		Msg("Dispatching tool calls")

	results := make([]Result, len(calls))

	var wg sync.WaitGroup
	for i, call := range allowed {
		wg.Add(1)
		go func(i int, call Call) {
			defer wg.Done()
			results[i] = Result{
				CallID:   call.ID,
				ToolName: call.Name,
				Content:  e.executeToText(ctx, call, execCtx),
			}
		}(i, call)
	}
	wg.Wait()

	newCount := current + len(allowed)

	for i, call := range denied {
		results[remaining+i] = Result{
			CallID:   call.ID,
			ToolName: call.Name,
			Content: fmt.Sprintf(
				"Tool call limit exceeded: Only %d tool calls are allowed per query. You have already made %d calls. Please provide a final answer with the information gathered so far.",
				max, newCount,
			),
		}
	}
	observability.RecordToolDenials(len(denied))

	return results, newCount
}

// executeToText runs one call and flattens the outcome into tool-message
// text. Failures never escape; they become an in-band error line.
func (e *Executor) executeToText(ctx context.Context, call Call, execCtx *ExecutionContext) string {
	res := e.Execute(ctx, call.Name, call.Arguments, execCtx)
	if !res.Success {
		return fmt.Sprintf("Tool execution error: %s", res.Error)
	}
	return renderOutput(res.Output)
}

func renderOutput(output interface{}) string {
	switch v := output.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}
