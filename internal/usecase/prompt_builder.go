package usecase

import (
	"fmt"
	"strings"
	"time"

	"uiagent/internal/domain"
)

const chatSystemPrompt = `You are a helpful assistant embedded in a web application.
Answer the user's question directly and concisely.
When a tool can answer part of the question, call it instead of guessing, then use its result in your answer.`

const uiPromptRules = `-----------Instructions-----------
You must respond with valid JSON only (no extra text, no markdown).

JSON format:
{
  "reply": "<short user-facing message (1-2 sentences)>",
  "actions": [
    {
      "type": "%s",
      "selector": "<CSS selector identifying the element on the current page>",
      "value": "<text or selection value if needed>",
      "durationMs": <integer, optional for move/scroll/wait>
    }
  ]
}

Rules:
- Use the provided DOM snapshot to infer selectors (element IDs, text labels or visible attributes).
- Only include actions that target elements present in the snapshot.
- If you cannot find a clear element, skip that action. Never invent selectors.
- If the request is informational (no UI action), return an empty "actions" array.
- Prefer stable selectors: IDs, data attributes, clear class names.
- Combine multiple user intents into sequential actions when needed.
- "type", "select" and "scroll" actions need a "value" (for "scroll": "up" or "down"); "click", "move", "type" and "select" need a "selector".
- Never output anything other than the JSON.`

// promptActionTypes lists the type names the model may use, in prompt order.
var promptActionTypes = []string{"click", "type", "select", "scroll", "move", "wait", "showExplanation"}

// PromptBuilder constructs the opening messages and per-turn options for a run.
type PromptBuilder struct {
	model       string
	temperature float64
	maxTokens   int
	think       bool
}

// NewPromptBuilder creates a builder. Zero temperature or maxTokens leave the
// provider defaults in place.
func NewPromptBuilder(model string, temperature float64, maxTokens int, think bool) *PromptBuilder {
	return &PromptBuilder{
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		think:       think,
	}
}

// SystemPrompt returns the UI-control prompt when the request carries a
// snapshot and the plain chat prompt otherwise.
func (pb *PromptBuilder) SystemPrompt(req domain.AgentRequest) string {
	if !req.HasSnapshot() {
		return chatSystemPrompt
	}
	return UIPrompt(req.Message, req.Snapshot)
}

// UIPrompt renders the UI-control instructions around the user's message and
// the quoted DOM snapshot.
func UIPrompt(message, snapshot string) string {
	var sb strings.Builder
	sb.WriteString("You are an AI assistant that controls a dynamic web UI.\n")
	fmt.Fprintf(&sb, "The user said:\n\"\"\"\n%s\n\"\"\"\n\n", message)
	sb.WriteString("Here is the current snapshot of the page's DOM (this may change frequently):\n")
	fmt.Fprintf(&sb, "\"\"\"\n%s\n\"\"\"\n\n", snapshot)
	fmt.Fprintf(&sb, uiPromptRules, strings.Join(promptActionTypes, " | "))
	return sb.String()
}

// Messages returns the system prompt followed by the user message.
func (pb *PromptBuilder) Messages(req domain.AgentRequest) []domain.Message {
	now := time.Now()
	return []domain.Message{
		{Role: domain.RoleSystem, Content: pb.SystemPrompt(req), Timestamp: now},
		{Role: domain.RoleUser, Content: req.Message, Timestamp: now},
	}
}

// Build assembles one provider turn over the conversation so far.
func (pb *PromptBuilder) Build(messages []domain.Message, tools []domain.ToolSchema) domain.ChatRequest {
	return domain.ChatRequest{
		Model:       pb.model,
		Messages:    messages,
		Tools:       tools,
		MaxTokens:   pb.maxTokens,
		Temperature: pb.temperature,
		Think:       pb.think,
	}
}

// BuildLegacy assembles the single non-streamed request of the legacy
// endpoint: UI prompt, no tools, no thinking.
func (pb *PromptBuilder) BuildLegacy(req domain.AgentRequest) domain.ChatRequest {
	now := time.Now()
	return domain.ChatRequest{
		Model: pb.model,
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: UIPrompt(req.Message, req.Snapshot), Timestamp: now},
			{Role: domain.RoleUser, Content: req.Message, Timestamp: now},
		},
		MaxTokens:   pb.maxTokens,
		Temperature: pb.temperature,
	}
}
