package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phoenixlabs/phoenix/internal/config"
	"github.com/phoenixlabs/phoenix/pkg/toolexec"
)

// scriptedProvider replays a fixed sequence of responses and records the
// requests it saw.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []*LLMResponse
	err       error
	requests  []LLMRequest
}

func (p *scriptedProvider) Call(ctx context.Context, request LLMRequest) (*LLMResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.requests = append(p.requests, request)
	if p.err != nil {
		return nil, p.err
	}
	if len(p.responses) == 0 {
		return &LLMResponse{Content: "out of script"}, nil
	}
	resp := p.responses[0]
	p.responses = p.responses[1:]
	return resp, nil
}

func (p *scriptedProvider) Provider() string { return "scripted" }

// memStore is an in-memory checkpoint store
type memStore struct {
	mu      sync.Mutex
	states  map[string]State
	loadErr error
	saveErr error
	saves   int
}

func newMemStore() *memStore {
	return &memStore{states: make(map[string]State)}
}

func (s *memStore) Load(ctx context.Context, threadID string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return State{}, s.loadErr
	}
	return s.states[threadID], nil
}

func (s *memStore) Save(ctx context.Context, threadID string, state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.states[threadID] = state
	s.saves++
	return nil
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.AI.Model = "test-model"
	return cfg
}

func newTestOrchestrator(t *testing.T, provider LLMProvider, store CheckpointStore, tools ...toolexec.ToolDefinition) *Orchestrator {
	t.Helper()
	executor := toolexec.New()
	for _, def := range tools {
		require.NoError(t, executor.Register(def))
	}
	return NewOrchestrator(provider, executor, store, testConfig(), zerolog.Nop())
}

func echoTool() toolexec.ToolDefinition {
	return toolexec.ToolDefinition{
		Name:        "echo",
		Description: "Echo tool",
		Parameters: []toolexec.ToolParameter{
			{Name: "message", Type: "string", Description: "Message to echo", Required: true},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			return params["message"], nil
		},
	}
}

func echoCall(id, message string) ToolCallRequest {
	return ToolCallRequest{ID: id, Name: "echo", Arguments: map[string]interface{}{"message": message}}
}

func TestAdvance_DirectAnswer(t *testing.T) {
	provider := &scriptedProvider{responses: []*LLMResponse{
		{Content: "hello back"},
	}}
	store := newMemStore()
	o := newTestOrchestrator(t, provider, store)

	state, err := o.Advance(context.Background(), "owner-1", "thread-1", "hello")
	require.NoError(t, err)

	require.Len(t, state.Messages, 2)
	assert.Equal(t, RoleUser, state.Messages[0].Role)
	assert.Equal(t, "hello", state.Messages[0].Content)
	assert.Equal(t, RoleAssistant, state.Messages[1].Role)
	assert.Equal(t, "hello back", state.Messages[1].Content)

	// Checkpointed once at turn-chain end
	assert.Equal(t, 1, store.saves)
	assert.Equal(t, state, store.states["thread-1"])
}

func TestAdvance_ToolLoop(t *testing.T) {
	provider := &scriptedProvider{responses: []*LLMResponse{
		{ToolCalls: []ToolCallRequest{echoCall("c1", "one"), echoCall("c2", "two")}},
		{Content: "final answer"},
	}}
	store := newMemStore()
	o := newTestOrchestrator(t, provider, store, echoTool())

	state, err := o.Advance(context.Background(), "owner-1", "thread-1", "run tools")
	require.NoError(t, err)

	// user, assistant(+calls), 2 tool results, assistant final
	require.Len(t, state.Messages, 5)
	assert.Equal(t, RoleAssistant, state.Messages[1].Role)
	require.Len(t, state.Messages[1].ToolCalls, 2)

	assert.Equal(t, RoleTool, state.Messages[2].Role)
	assert.Equal(t, "c1", state.Messages[2].ToolCallID)
	assert.Equal(t, "one", state.Messages[2].Content)
	assert.Equal(t, RoleTool, state.Messages[3].Role)
	assert.Equal(t, "c2", state.Messages[3].ToolCallID)
	assert.Equal(t, "two", state.Messages[3].Content)

	assert.Equal(t, "final answer", state.Messages[4].Content)
	assert.Equal(t, 2, state.ToolCallCount)
}

func TestAdvance_QuotaSpansContinuations(t *testing.T) {
	provider := &scriptedProvider{responses: []*LLMResponse{
		{ToolCalls: []ToolCallRequest{echoCall("c1", "a"), echoCall("c2", "b"), echoCall("c3", "c")}},
		{ToolCalls: []ToolCallRequest{echoCall("c4", "d"), echoCall("c5", "e"), echoCall("c6", "f")}},
		{Content: "done"},
	}}
	store := newMemStore()
	o := newTestOrchestrator(t, provider, store, echoTool())

	state, err := o.Advance(context.Background(), "owner-1", "thread-1", "go")
	require.NoError(t, err)

	// 3 + 3 requested against a quota of 5: the sixth call is denied
	assert.Equal(t, 5, state.ToolCallCount)

	var denied []Message
	for _, msg := range state.Messages {
		if msg.Role == RoleTool && msg.ToolCallID == "c6" {
			denied = append(denied, msg)
		}
	}
	require.Len(t, denied, 1)
	assert.Contains(t, denied[0].Content, "Tool call limit exceeded")
	assert.Contains(t, denied[0].Content, "Only 5 tool calls are allowed per query")
}

func TestAdvance_QuotaResetsOnFreshQuery(t *testing.T) {
	store := newMemStore()
	store.states["thread-1"] = State{
		Messages: []Message{
			NewUserMessage("earlier question"),
			NewAssistantMessage("earlier answer", nil),
		},
		ToolCallCount: 5,
	}

	provider := &scriptedProvider{responses: []*LLMResponse{
		{ToolCalls: []ToolCallRequest{echoCall("c1", "fresh")}},
		{Content: "done"},
	}}
	o := newTestOrchestrator(t, provider, store, echoTool())

	state, err := o.Advance(context.Background(), "owner-1", "thread-1", "new question")
	require.NoError(t, err)

	// The exhausted count from the previous query does not carry over
	assert.Equal(t, 1, state.ToolCallCount)

	for _, msg := range state.Messages {
		assert.NotContains(t, msg.Content, "Tool call limit exceeded")
	}
}

func TestAdvance_ProviderErrorPropagates(t *testing.T) {
	provider := &scriptedProvider{err: errors.New("upstream 500")}
	store := newMemStore()
	o := newTestOrchestrator(t, provider, store)

	_, err := o.Advance(context.Background(), "owner-1", "thread-1", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reasoning step failed")
	assert.Equal(t, 0, store.saves)
}

func TestAdvance_LoadErrorPropagates(t *testing.T) {
	store := newMemStore()
	store.loadErr = errors.New("disk gone")
	o := newTestOrchestrator(t, &scriptedProvider{}, store)

	_, err := o.Advance(context.Background(), "owner-1", "thread-1", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load checkpoint")
}

func TestAdvance_SaveErrorPropagates(t *testing.T) {
	store := newMemStore()
	store.saveErr = errors.New("disk full")
	provider := &scriptedProvider{responses: []*LLMResponse{{Content: "answer"}}}
	o := newTestOrchestrator(t, provider, store)

	_, err := o.Advance(context.Background(), "owner-1", "thread-1", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to save checkpoint")
}

func TestAdvance_MaxTurnsGuard(t *testing.T) {
	// Provider that never stops asking for tools
	responses := []*LLMResponse{}
	for i := 0; i < 20; i++ {
		responses = append(responses, &LLMResponse{
			ToolCalls: []ToolCallRequest{echoCall(fmt.Sprintf("c%d", i), "again")},
		})
	}
	provider := &scriptedProvider{responses: responses}
	store := newMemStore()
	o := newTestOrchestrator(t, provider, store, echoTool())

	_, err := o.Advance(context.Background(), "owner-1", "thread-1", "loop forever")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "without a final answer")
}

func TestAdvance_MessagesAppendOnly(t *testing.T) {
	store := newMemStore()
	prior := State{
		Messages: []Message{
			NewUserMessage("q1"),
			NewAssistantMessage("a1", nil),
		},
	}
	store.states["thread-1"] = prior

	provider := &scriptedProvider{responses: []*LLMResponse{{Content: "a2"}}}
	o := newTestOrchestrator(t, provider, store)

	state, err := o.Advance(context.Background(), "owner-1", "thread-1", "q2")
	require.NoError(t, err)

	require.Len(t, state.Messages, 4)
	// Prior history is a strict prefix of the new state
	assert.Equal(t, prior.Messages, state.Messages[:2])
}

func TestAdvance_ToolSchemasReachProvider(t *testing.T) {
	provider := &scriptedProvider{responses: []*LLMResponse{{Content: "ok"}}}
	store := newMemStore()
	o := newTestOrchestrator(t, provider, store, echoTool())

	_, err := o.Advance(context.Background(), "owner-1", "thread-1", "hello")
	require.NoError(t, err)

	require.Len(t, provider.requests, 1)
	require.Len(t, provider.requests[0].Tools, 1)

	tool := provider.requests[0].Tools[0].(map[string]interface{})
	assert.Equal(t, "echo", tool["name"])
	schema := tool["input_schema"].(map[string]interface{})
	assert.Equal(t, "object", schema["type"])
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(config.AIConfig{Provider: "openai", OpenAIKey: "sk-x"})
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Provider())

	p, err = NewProvider(config.AIConfig{Provider: "anthropic", AnthropicKey: "sk-ant-x"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", p.Provider())

	_, err = NewProvider(config.AIConfig{Provider: "gemini"})
	assert.Error(t, err)
}
