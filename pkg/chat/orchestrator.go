package chat

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/phoenixlabs/phoenix/internal/config"
	"github.com/phoenixlabs/phoenix/internal/observability"
	"github.com/phoenixlabs/phoenix/internal/tracing"
	"github.com/phoenixlabs/phoenix/pkg/toolexec"
)

// CheckpointStore persists conversation state per thread
type CheckpointStore interface {
	Load(ctx context.Context, threadID string) (State, error)
	Save(ctx context.Context, threadID string, state State) error
}

// Orchestrator drives the reasoning/tool-execution loop for conversation
// threads. Threads advance one turn-chain at a time; tool execution is the
// only parallel region.
type Orchestrator struct {
	provider LLMProvider
	executor *toolexec.Executor
	store    CheckpointStore
	logger   zerolog.Logger

	model        string
	temperature  float64
	maxTokens    int
	systemPrompt string
	maxToolCalls int
	maxTurns     int
	toolTimeout  time.Duration

	mu          sync.Mutex
	threadLocks map[string]*sync.Mutex
}

// NewOrchestrator creates an orchestrator wired to a provider, executor and
// checkpoint store.
func NewOrchestrator(provider LLMProvider, executor *toolexec.Executor, store CheckpointStore, cfg *config.Config, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		provider:     provider,
		executor:     executor,
		store:        store,
		logger:       logger.With().Str("component", "orchestrator").Logger(),
		model:        cfg.AI.Model,
		temperature:  cfg.AI.Temperature,
		maxTokens:    cfg.AI.MaxTokens,
		systemPrompt: cfg.Chat.SystemPrompt,
		maxToolCalls: cfg.Chat.MaxToolCalls,
		maxTurns:     cfg.Chat.MaxTurns,
		toolTimeout:  time.Duration(cfg.Tools.TimeoutSeconds) * time.Second,
		threadLocks:  make(map[string]*sync.Mutex),
	}
}

// threadLock returns the mutex serializing turn-chains for one thread.
func (o *Orchestrator) threadLock(threadID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()

	lock, ok := o.threadLocks[threadID]
	if !ok {
		lock = &sync.Mutex{}
		o.threadLocks[threadID] = lock
	}
	return lock
}

// Advance runs one full turn-chain: append the user message, alternate
// reasoning and tool execution until the assistant answers without tool
// calls, then checkpoint. Provider and checkpoint failures propagate; tool
// failures stay in-band as tool results.
func (o *Orchestrator) Advance(ctx context.Context, ownerID, threadID, userMessage string) (State, error) {
	lock := o.threadLock(threadID)
	lock.Lock()
	defer lock.Unlock()

	ctx = tracing.NewTurnContext(ctx, ownerID, threadID)
	ctx, span := tracing.StartSpan(ctx, "phoenix.chat", "advance",
		attribute.String("thread_id", threadID),
	)
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, o.logger)

	observability.IncActiveTurns()
	defer observability.DecActiveTurns()
	turnStart := time.Now()

	state, err := o.store.Load(ctx, threadID)
	if err != nil {
		observability.RecordTurn(time.Since(turnStart), false)
		return State{}, fmt.Errorf("failed to load checkpoint for thread %s: %w", threadID, err)
	}

	state.Messages = append(state.Messages, NewUserMessage(userMessage))

	tools := o.toolSchemas()
	execCtx := &toolexec.ExecutionContext{
		OwnerID:  ownerID,
		ThreadID: threadID,
		Timeout:  o.toolTimeout,
	}

	for turn := 0; turn < o.maxTurns; turn++ {
		// A user message directly before the reasoning step marks a fresh
		// query; the tool-call quota resets. Continuations after tool
		// results keep consuming the same quota.
		if last := state.LastMessage(); last != nil && last.Role == RoleUser {
			state.ToolCallCount = 0
		}

		resp, err := o.reason(ctx, state.Messages, tools)
		if err != nil {
			observability.RecordTurn(time.Since(turnStart), false)
			return State{}, fmt.Errorf("reasoning step failed: %w", err)
		}

		if len(resp.ToolCalls) == 0 {
			state.Messages = append(state.Messages, NewAssistantMessage(resp.Content, nil))

			if err := o.store.Save(ctx, threadID, state); err != nil {
				observability.RecordTurn(time.Since(turnStart), false)
				return State{}, fmt.Errorf("failed to save checkpoint for thread %s: %w", threadID, err)
			}

			logger.Info().
				Int("messages", len(state.Messages)).
				Int("tool_calls", state.ToolCallCount).
				Dur("duration", time.Since(turnStart)).
				Msg("Turn-chain completed")
			observability.RecordTurn(time.Since(turnStart), true)

			return state, nil
		}

		state.Messages = append(state.Messages, NewAssistantMessage(resp.Content, resp.ToolCalls))

		calls := make([]toolexec.Call, len(resp.ToolCalls))
		for i, tc := range resp.ToolCalls {
			calls[i] = toolexec.Call{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments}
		}

		results, newCount := o.executor.Dispatch(ctx, calls, state.ToolCallCount, o.maxToolCalls, execCtx)
		state.ToolCallCount = newCount

		for _, r := range results {
			state.Messages = append(state.Messages, NewToolMessage(r.CallID, r.ToolName, r.Content))
		}
	}

	// Persist what we have so the history survives the abort
	if err := o.store.Save(ctx, threadID, state); err != nil {
		logger.Error().Err(err).Msg("Failed to checkpoint aborted turn-chain")
	}
	observability.RecordTurn(time.Since(turnStart), false)

	return state, fmt.Errorf("turn-chain aborted after %d reasoning steps without a final answer", o.maxTurns)
}

// reason runs one reasoning step against the provider.
func (o *Orchestrator) reason(ctx context.Context, messages []Message, tools []interface{}) (*LLMResponse, error) {
	start := time.Now()

	resp, err := o.provider.Call(ctx, LLMRequest{
		Model:        o.model,
		Messages:     messages,
		Tools:        tools,
		Temperature:  o.temperature,
		MaxTokens:    o.maxTokens,
		SystemPrompt: o.systemPrompt,
	})

	observability.RecordReasoningStep(o.provider.Provider(), time.Since(start), err == nil)
	return resp, err
}

// toolSchemas renders registered tool definitions into the provider-neutral
// schema shape both provider implementations consume.
func (o *Orchestrator) toolSchemas() []interface{} {
	defs := o.executor.List()
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })

	tools := make([]interface{}, 0, len(defs))
	for _, def := range defs {
		tools = append(tools, map[string]interface{}{
			"name":         def.Name,
			"description":  def.Description,
			"input_schema": o.executor.SchemaMap(*def),
		})
	}
	return tools
}
