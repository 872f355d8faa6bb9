package domain

import "context"

// LLMProvider is the interface for any LLM backend.
type LLMProvider interface {
	// Chat sends a request and returns a complete response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	// Name returns the provider's identifier (e.g., "ollama", "huggingface").
	Name() string
}

// TurnStats carries the counters a provider reports on the final frame of a turn.
// Durations are nanoseconds.
type TurnStats struct {
	PromptTokens     int   `json:"prompt_tokens"`
	CompletionTokens int   `json:"completion_tokens"`
	TotalDurationNs  int64 `json:"total_duration_ns,omitempty"`
	LoadNs           int64 `json:"load_ns,omitempty"`
	PromptEvalNs     int64 `json:"prompt_eval_ns,omitempty"`
	EvalNs           int64 `json:"eval_ns,omitempty"`
}

// StreamDelta is one normalized chunk of a streaming provider turn.
// Exactly one delta per turn has Done set, and only that one may carry Stats.
// A non-empty Err marks a transport or protocol failure; the channel closes after it.
type StreamDelta struct {
	Content   string     `json:"content,omitempty"`
	Thinking  string     `json:"thinking,omitempty"`
	Reasoning string     `json:"reasoning,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Done      bool       `json:"done,omitempty"`
	Stats     *TurnStats `json:"stats,omitempty"`
	Err       error      `json:"-"`
}

// StreamingLLMProvider extends LLMProvider with streaming support.
type StreamingLLMProvider interface {
	LLMProvider
	// ChatStream sends a request and returns a channel of incremental deltas.
	// The channel is closed when the turn ends or ctx is cancelled.
	ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamDelta, error)
}

// HealthChecker is implemented by providers that can report reachability.
type HealthChecker interface {
	IsHealthy(ctx context.Context) bool
}
