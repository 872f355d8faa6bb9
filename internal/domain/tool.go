package domain

import (
	"context"
	"encoding/json"
)

// ToolSchema describes a tool for the LLM function-calling protocol.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// FunctionTool is the OpenAI-shaped tool spec understood by chat-completion providers.
type FunctionTool struct {
	Type     string     `json:"type"`
	Function ToolSchema `json:"function"`
}

// FunctionSpec wraps the schema as {"type":"function","function":{...}}.
func (s ToolSchema) FunctionSpec() FunctionTool {
	params := s.Parameters
	if len(params) == 0 {
		params = json.RawMessage(`{"type":"object","properties":{}}`)
	}
	return FunctionTool{
		Type:     "function",
		Function: ToolSchema{Name: s.Name, Description: s.Description, Parameters: params},
	}
}

// ToolCall represents an LLM's request to invoke a tool.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResult is the outcome of executing a tool.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error"`
}

// Tool is the interface every tool must implement.
type Tool interface {
	Name() string
	Description() string
	Schema() ToolSchema
	Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

// ToolOutcome is what the agent loop receives for a tool call. Payload is always
// valid JSON; failures are encoded as {"error":"<message>"} with OK false.
type ToolOutcome struct {
	Payload json.RawMessage
	OK      bool
}

// ToolExecutor abstracts tool enumeration and invocation for the agent loop.
type ToolExecutor interface {
	Schemas() []ToolSchema
	Invoke(ctx context.Context, call ToolCall) ToolOutcome
}
