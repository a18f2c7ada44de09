package toolexec

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func registerSleeper(t *testing.T, e *Executor, started *atomic.Int32) {
	t.Helper()
	require.NoError(t, e.Register(ToolDefinition{
		Name:        "sleeper",
		Description: "Sleeps for the requested duration",
		Parameters: []ToolParameter{
			{Name: "ms", Type: "number", Description: "Sleep duration in milliseconds", Required: true},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			if started != nil {
				started.Add(1)
			}
			ms := params["ms"].(float64)
			time.Sleep(time.Duration(ms) * time.Millisecond)
			return fmt.Sprintf("slept %v", ms), nil
		},
	}))
}

func sleepCall(id string, ms int) Call {
	return Call{
		ID:        id,
		Name:      "sleeper",
		Arguments: map[string]interface{}{"ms": float64(ms)},
	}
}

func TestDispatch_QuotaPartition(t *testing.T) {
	e := New()
	registerSleeper(t, e, nil)

	calls := []Call{
		sleepCall("c1", 1),
		sleepCall("c2", 1),
		sleepCall("c3", 1),
		sleepCall("c4", 1),
	}

	// 3 of 5 calls already made: only 2 of the 4 requested may run
	results, newCount := e.Dispatch(context.Background(), calls, 3, 5, nil)

	require.Len(t, results, 4)
	assert.Equal(t, 5, newCount)

	assert.Contains(t, results[0].Content, "slept")
	assert.Contains(t, results[1].Content, "slept")

	for _, r := range results[2:] {
		assert.Contains(t, r.Content, "Tool call limit exceeded")
		assert.Contains(t, r.Content, "Only 5 tool calls are allowed per query")
		assert.Contains(t, r.Content, "You have already made 5 calls")
	}

	// Results keep request order and call identity
	for i, r := range results {
		assert.Equal(t, calls[i].ID, r.CallID)
		assert.Equal(t, "sleeper", r.ToolName)
	}
}

func TestDispatch_QuotaExhausted(t *testing.T) {
	e := New()
	started := atomic.Int32{}
	registerSleeper(t, e, &started)

	calls := []Call{sleepCall("c1", 1), sleepCall("c2", 1)}

	results, newCount := e.Dispatch(context.Background(), calls, 5, 5, nil)

	require.Len(t, results, 2)
	assert.Equal(t, 5, newCount)
	assert.Equal(t, int32(0), started.Load(), "denied calls must never start")

	for _, r := range results {
		assert.Contains(t, r.Content, "Tool call limit exceeded")
	}
}

func TestDispatch_CountAboveMax(t *testing.T) {
	e := New()
	registerSleeper(t, e, nil)

	// A count past the cap still floors remaining at zero
	results, newCount := e.Dispatch(context.Background(), []Call{sleepCall("c1", 1)}, 7, 5, nil)

	require.Len(t, results, 1)
	assert.Equal(t, 7, newCount)
	assert.Contains(t, results[0].Content, "Tool call limit exceeded")
}

func TestDispatch_EmptyBatch(t *testing.T) {
	e := New()

	results, newCount := e.Dispatch(context.Background(), nil, 2, 5, nil)

	assert.Empty(t, results)
	assert.Equal(t, 2, newCount)
}

func TestDispatch_RunsConcurrently(t *testing.T) {
	e := New()
	registerSleeper(t, e, nil)

	calls := []Call{
		sleepCall("c1", 300),
		sleepCall("c2", 100),
		sleepCall("c3", 200),
	}

	start := time.Now()
	results, newCount := e.Dispatch(context.Background(), calls, 0, 5, nil)
	elapsed := time.Since(start)

	require.Len(t, results, 3)
	assert.Equal(t, 3, newCount)
	// Sequential execution would take 600ms; concurrent is bounded by the
	// slowest call plus scheduling slack.
	assert.Less(t, elapsed, 500*time.Millisecond)
	assert.GreaterOrEqual(t, elapsed, 300*time.Millisecond)
}

func TestDispatch_FailureIsolation(t *testing.T) {
	e := New()
	registerSleeper(t, e, nil)
	require.NoError(t, e.Register(ToolDefinition{
		Name:        "failing",
		Description: "Always fails",
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			return nil, errors.New("backend unavailable")
		},
	}))

	calls := []Call{
		sleepCall("c1", 1),
		{ID: "c2", Name: "failing", Arguments: map[string]interface{}{}},
		sleepCall("c3", 1),
	}

	results, newCount := e.Dispatch(context.Background(), calls, 0, 5, nil)

	require.Len(t, results, 3)
	assert.Equal(t, 3, newCount)

	assert.Contains(t, results[0].Content, "slept")
	assert.Equal(t, "Tool execution error: backend unavailable", results[1].Content)
	assert.Contains(t, results[2].Content, "slept")
}

func TestDispatch_UnknownToolBecomesResult(t *testing.T) {
	e := New()

	results, newCount := e.Dispatch(context.Background(), []Call{
		{ID: "c1", Name: "ghost", Arguments: map[string]interface{}{}},
	}, 0, 5, nil)

	require.Len(t, results, 1)
	assert.Equal(t, 1, newCount)
	assert.True(t, strings.HasPrefix(results[0].Content, "Tool execution error:"))
	assert.Contains(t, results[0].Content, "tool not found")
}

func TestRenderOutput(t *testing.T) {
	assert.Equal(t, "", renderOutput(nil))
	assert.Equal(t, "plain", renderOutput("plain"))
	assert.Equal(t, `{"temp":21.5}`, renderOutput(map[string]interface{}{"temp": 21.5}))
}
