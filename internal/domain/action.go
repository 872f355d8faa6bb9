package domain

import "strings"

// ActionType names a UI-automation command executed by the browser-side actor.
type ActionType string

const (
	ActionMove            ActionType = "Move"
	ActionClick           ActionType = "Click"
	ActionTypeText        ActionType = "Type"
	ActionSelect          ActionType = "Select"
	ActionScroll          ActionType = "Scroll"
	ActionWait            ActionType = "Wait"
	ActionShowExplanation ActionType = "ShowExplanation"
)

// Action duration bounds in milliseconds.
const (
	DefaultActionDurationMs = 600
	MaxActionDurationMs     = 60_000
)

var actionTypesByName = map[string]ActionType{
	"move":            ActionMove,
	"click":           ActionClick,
	"type":            ActionTypeText,
	"select":          ActionSelect,
	"scroll":          ActionScroll,
	"wait":            ActionWait,
	"showexplanation": ActionShowExplanation,
}

// ParseActionType maps a model-produced type string to an ActionType.
// Matching ignores case and surrounding space; unknown names map to ShowExplanation.
func ParseActionType(s string) ActionType {
	if t, ok := actionTypesByName[strings.ToLower(strings.TrimSpace(s))]; ok {
		return t
	}
	return ActionShowExplanation
}

// NeedsSelector reports whether the action must target an element.
func (t ActionType) NeedsSelector() bool {
	switch t {
	case ActionMove, ActionClick, ActionTypeText, ActionSelect:
		return true
	}
	return false
}

// NeedsValue reports whether the action must carry a value.
func (t ActionType) NeedsValue() bool {
	switch t {
	case ActionTypeText, ActionSelect, ActionScroll:
		return true
	}
	return false
}

// ActionCommand is one step of a UI-automation plan.
type ActionCommand struct {
	Type       ActionType `json:"Type"`
	Selector   string     `json:"Selector,omitempty"`
	Value      string     `json:"Value,omitempty"`
	DurationMs int        `json:"DurationMs"`
}

// Valid reports whether the command carries the fields its type requires.
func (c ActionCommand) Valid() bool {
	if c.Type.NeedsSelector() && strings.TrimSpace(c.Selector) == "" {
		return false
	}
	if c.Type.NeedsValue() && c.Value == "" {
		return false
	}
	return true
}

// AgentResponse is the structured reply a model gives to a UI-control prompt.
type AgentResponse struct {
	Reply   string          `json:"reply"`
	Actions []ActionCommand `json:"actions"`
}
