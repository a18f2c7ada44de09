package config

import (
	"encoding/json"
	"fmt"
)

// Config represents the main Phoenix configuration
type Config struct {
	// AI provider credentials and model selection
	AI AIConfig `json:"ai" mapstructure:"ai"`

	// Conversation loop settings
	Chat ChatConfig `json:"chat" mapstructure:"chat"`

	// Tool execution settings
	Tools ToolsConfig `json:"tools" mapstructure:"tools"`

	// Retrieval subsystem settings
	Retrieval RetrievalConfig `json:"retrieval" mapstructure:"retrieval"`

	// Checkpoint retention settings
	Checkpoints CheckpointConfig `json:"checkpoints" mapstructure:"checkpoints"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Metrics endpoint
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`

	// Data directory (index store, checkpoints, uploads, threads db)
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// AIConfig holds AI provider configuration
type AIConfig struct {
	Provider       string  `json:"provider" mapstructure:"provider"` // openai, anthropic
	Model          string  `json:"model" mapstructure:"model"`
	Temperature    float64 `json:"temperature" mapstructure:"temperature"`
	MaxTokens      int     `json:"max_tokens" mapstructure:"max_tokens"`
	OpenAIKey      string  `json:"openai_key" mapstructure:"openai_key"`
	AnthropicKey   string  `json:"anthropic_key" mapstructure:"anthropic_key"`
	EmbeddingModel string  `json:"embedding_model" mapstructure:"embedding_model"`
}

// ChatConfig holds conversation loop configuration
type ChatConfig struct {
	// MaxToolCalls caps tool invocations per user query
	MaxToolCalls int `json:"max_tool_calls" mapstructure:"max_tool_calls"`
	// MaxTurns caps reasoning/tool iterations per turn-chain
	MaxTurns     int    `json:"max_turns" mapstructure:"max_turns"`
	SystemPrompt string `json:"system_prompt" mapstructure:"system_prompt"`
}

// ToolsConfig holds tool execution configuration
type ToolsConfig struct {
	// TimeoutSeconds bounds a single tool invocation
	TimeoutSeconds int    `json:"timeout_seconds" mapstructure:"timeout_seconds"`
	ExchangeAPIKey string `json:"exchange_api_key" mapstructure:"exchange_api_key"`
}

// RetrievalConfig holds retrieval subsystem configuration
type RetrievalConfig struct {
	TopK          int          `json:"top_k" mapstructure:"top_k"`
	Document      ChunkProfile `json:"document" mapstructure:"document"`
	Video         ChunkProfile `json:"video" mapstructure:"video"`
	WatchUploads  bool         `json:"watch_uploads" mapstructure:"watch_uploads"`
	CacheIdleTTL  int          `json:"cache_idle_ttl_minutes" mapstructure:"cache_idle_ttl_minutes"` // 0 disables eviction
	EmbeddingDims int          `json:"embedding_dims" mapstructure:"embedding_dims"`
}

// ChunkProfile is a chunk size/overlap pair for one source type
type ChunkProfile struct {
	Size    int `json:"size" mapstructure:"size"`
	Overlap int `json:"overlap" mapstructure:"overlap"`
}

// CheckpointConfig holds checkpoint retention configuration
type CheckpointConfig struct {
	// MaxAgeDays removes checkpoints idle longer than this; 0 keeps forever
	MaxAgeDays int `json:"max_age_days" mapstructure:"max_age_days"`
	// CleanupSchedule is a cron expression for the retention sweep
	CleanupSchedule string `json:"cleanup_schedule" mapstructure:"cleanup_schedule"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Console   bool   `json:"console" mapstructure:"console"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Host    string `json:"host" mapstructure:"host"`
	Port    int    `json:"port" mapstructure:"port"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		AI: AIConfig{
			Provider:       "openai",
			Model:          "gpt-4o",
			Temperature:    0.7,
			MaxTokens:      4096,
			EmbeddingModel: "text-embedding-3-small",
		},
		Chat: ChatConfig{
			MaxToolCalls: 5,
			MaxTurns:     10,
		},
		Tools: ToolsConfig{
			TimeoutSeconds: 30,
		},
		Retrieval: RetrievalConfig{
			TopK:          5,
			Document:      ChunkProfile{Size: 900, Overlap: 120},
			Video:         ChunkProfile{Size: 500, Overlap: 95},
			WatchUploads:  false,
			EmbeddingDims: 1536,
		},
		Checkpoints: CheckpointConfig{
			MaxAgeDays:      30,
			CleanupSchedule: "0 3 * * *",
		},
		Logging: LoggingConfig{
			Level:     "info",
			Console:   true,
			Pretty:    true,
			Redaction: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Host:    "127.0.0.1",
			Port:    9100,
		},
		DataDir: "",
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.AI.Provider {
	case "openai":
		if c.AI.OpenAIKey == "" {
			return fmt.Errorf("openai_key is required when provider is openai")
		}
	case "anthropic":
		if c.AI.AnthropicKey == "" {
			return fmt.Errorf("anthropic_key is required when provider is anthropic")
		}
	default:
		return fmt.Errorf("invalid provider %q (must be: openai, anthropic)", c.AI.Provider)
	}

	if c.AI.Model == "" {
		return fmt.Errorf("ai model is required")
	}
	// Embeddings always go through OpenAI, regardless of chat provider
	if c.AI.OpenAIKey == "" {
		return fmt.Errorf("openai_key is required for embeddings")
	}

	if c.Chat.MaxToolCalls < 0 {
		return fmt.Errorf("max_tool_calls must be >= 0")
	}
	if c.Chat.MaxTurns < 1 {
		return fmt.Errorf("max_turns must be >= 1")
	}

	if c.Tools.TimeoutSeconds < 1 {
		return fmt.Errorf("tool timeout_seconds must be >= 1")
	}

	if c.Retrieval.TopK < 1 {
		return fmt.Errorf("retrieval top_k must be >= 1")
	}
	for name, p := range map[string]ChunkProfile{
		"document": c.Retrieval.Document,
		"video":    c.Retrieval.Video,
	} {
		if p.Size < 1 {
			return fmt.Errorf("retrieval %s chunk size must be >= 1", name)
		}
		if p.Overlap < 0 || p.Overlap >= p.Size {
			return fmt.Errorf("retrieval %s chunk overlap must be in [0, size)", name)
		}
	}
	if c.Retrieval.EmbeddingDims < 1 {
		return fmt.Errorf("retrieval embedding_dims must be >= 1")
	}
	if c.Retrieval.CacheIdleTTL < 0 {
		return fmt.Errorf("retrieval cache_idle_ttl_minutes must be >= 0")
	}

	if c.Checkpoints.MaxAgeDays < 0 {
		return fmt.Errorf("checkpoint max_age_days must be >= 0")
	}

	return nil
}
