package chat

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCallRequest is one tool invocation requested by the assistant
type ToolCallRequest struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// Message is a single conversation message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`

	// Assistant messages only
	ToolCalls []ToolCallRequest `json:"tool_calls,omitempty"`

	// Tool result messages only; ToolCallID references a call emitted by
	// the immediately preceding assistant message.
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
}

// State is the conversation state for one thread. Messages are append-only
// within a turn-chain; ToolCallCount tracks quota consumption for the
// current user query.
type State struct {
	Messages      []Message `json:"messages"`
	ToolCallCount int       `json:"tool_call_count"`
}

// LastMessage returns the most recent message, or nil for an empty state.
func (s *State) LastMessage() *Message {
	if len(s.Messages) == 0 {
		return nil
	}
	return &s.Messages[len(s.Messages)-1]
}

// NewUserMessage builds a user message
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage builds an assistant message
func NewAssistantMessage(content string, toolCalls []ToolCallRequest) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: toolCalls}
}

// NewToolMessage builds a tool result message
func NewToolMessage(callID, toolName, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: callID, ToolName: toolName}
}

// TokenUsage tracks token consumption for a reasoning step
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}
