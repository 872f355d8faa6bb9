package domain

import "encoding/json"

// AgentEvent is one item of the stream an agent run produces. The concrete
// types below are the only implementations.
type AgentEvent interface {
	agentEvent()
	// Kind is the wire discriminator ("NormalResponse", "ToolCall", "Done", ...).
	Kind() string
}

// TextKind classifies a text event.
type TextKind int

const (
	TextNormal TextKind = iota
	TextReasoning
	TextThinking
	TextTool
	TextError
)

// String returns the wire name the browser client switches on.
func (k TextKind) String() string {
	switch k {
	case TextReasoning:
		return "Reasoning"
	case TextThinking:
		return "Thinking"
	case TextTool:
		return "ToolResponse"
	case TextError:
		return "ErrorResponse"
	default:
		return "NormalResponse"
	}
}

// TextEvent carries model output, tool notices or error text.
type TextEvent struct {
	TextKind TextKind
	Text     string
}

func (TextEvent) agentEvent()    {}
func (e TextEvent) Kind() string { return e.TextKind.String() }

func (e TextEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ReplyText string          `json:"ReplyText"`
		Type      string          `json:"Type"`
		Actions   []ActionCommand `json:"Actions"`
	}{e.Text, e.Kind(), []ActionCommand{}})
}

// ToolCallEvent announces a tool invocation requested by the model.
type ToolCallEvent struct {
	Name      string
	Arguments json.RawMessage
}

func (ToolCallEvent) agentEvent()  {}
func (ToolCallEvent) Kind() string { return "ToolCall" }

func (e ToolCallEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type      string          `json:"Type"`
		ToolName  string          `json:"ToolName"`
		Arguments json.RawMessage `json:"Arguments"`
	}{e.Kind(), e.Name, rawOrNull(e.Arguments)})
}

// ToolResultEvent reports the outcome of a tool invocation.
type ToolResultEvent struct {
	Name    string
	OK      bool
	Payload json.RawMessage
}

func (ToolResultEvent) agentEvent()  {}
func (ToolResultEvent) Kind() string { return "ToolResult" }

func (e ToolResultEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type     string          `json:"Type"`
		ToolName string          `json:"ToolName"`
		Ok       bool            `json:"Ok"`
		Payload  json.RawMessage `json:"Payload"`
	}{e.Kind(), e.Name, e.OK, rawOrNull(e.Payload)})
}

// UsageStatsEvent summarizes token counts and timings across all turns of a run.
type UsageStatsEvent struct {
	PromptTokens     int
	CompletionTokens int
	TotalDurationNs  int64
	LoadNs           int64
	PromptEvalNs     int64
	EvalNs           int64
	Iterations       int
	Model            string
}

func (UsageStatsEvent) agentEvent()  {}
func (UsageStatsEvent) Kind() string { return "UsageStats" }

// TotalTokens is always PromptTokens + CompletionTokens.
func (e UsageStatsEvent) TotalTokens() int { return e.PromptTokens + e.CompletionTokens }

func (e UsageStatsEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type             string `json:"Type"`
		PromptTokens     int    `json:"PromptTokens"`
		CompletionTokens int    `json:"CompletionTokens"`
		TotalTokens      int    `json:"TotalTokens"`
		TotalDurationNs  int64  `json:"TotalDurationNs"`
		LoadNs           int64  `json:"LoadNs"`
		PromptEvalNs     int64  `json:"PromptEvalNs"`
		EvalNs           int64  `json:"EvalNs"`
		Iterations       int    `json:"Iterations"`
		Model            string `json:"Model"`
	}{
		e.Kind(), e.PromptTokens, e.CompletionTokens, e.TotalTokens(),
		e.TotalDurationNs, e.LoadNs, e.PromptEvalNs, e.EvalNs, e.Iterations, e.Model,
	})
}

// ActionPlanEvent delivers the parsed UI-automation plan for a snapshot request.
type ActionPlanEvent struct {
	Reply   string
	Actions []ActionCommand
}

func (ActionPlanEvent) agentEvent()  {}
func (ActionPlanEvent) Kind() string { return "ActionPlan" }

func (e ActionPlanEvent) MarshalJSON() ([]byte, error) {
	actions := e.Actions
	if actions == nil {
		actions = []ActionCommand{}
	}
	return json.Marshal(struct {
		ReplyText string          `json:"ReplyText"`
		Type      string          `json:"Type"`
		Actions   []ActionCommand `json:"Actions"`
	}{e.Reply, e.Kind(), actions})
}

// DoneEvent terminates a run. Transports translate it to their own terminator.
type DoneEvent struct{}

func (DoneEvent) agentEvent()  {}
func (DoneEvent) Kind() string { return "Done" }

func (DoneEvent) MarshalJSON() ([]byte, error) {
	return []byte(`{"ResponseDone":true}`), nil
}

func rawOrNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || !json.Valid(raw) {
		return json.RawMessage("null")
	}
	return raw
}
