// Package toolexec registers and executes structured tools for the
// conversation loop.
//
// Invariants:
// - Tool names are unique.
// - Parameters are schema-validated before execution.
// - Dispatch enforces the per-query call quota: the first remaining calls in
//   request order run, the rest receive a denial message without running.
// - Every dispatched call yields exactly one result tagged with its call ID.
//
// Usage:
//
//	exec := toolexec.New()
//	_ = exec.Register(toolexec.ToolDefinition{
//		Name: "echo",
//		Description: "Echo input",
//		Parameters: []toolexec.ToolParameter{{Name: "text", Type: "string", Description: "text", Required: true}},
//		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) { return params["text"], nil },
//	})
package toolexec
