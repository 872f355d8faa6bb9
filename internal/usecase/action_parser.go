package usecase

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonschema"

	"uiagent/internal/domain"
)

// actionPlanSchema is the shape the UI prompt asks the model to produce.
// Violations are logged, never rejected: the parser stays lenient.
const actionPlanSchema = `{
  "type": "object",
  "properties": {
    "reply": {"type": "string"},
    "actions": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "type": {"type": "string"},
          "selector": {"type": "string"},
          "value": {"type": ["string", "number", "boolean"]},
          "durationMs": {"type": ["integer", "string"]}
        },
        "required": ["type"]
      }
    }
  },
  "required": ["reply", "actions"]
}`

// ActionParser turns raw model output into an AgentResponse.
type ActionParser struct {
	schema *jsonschema.Schema
	logger *slog.Logger
}

// NewActionParser compiles the plan schema once.
func NewActionParser(logger *slog.Logger) *ActionParser {
	schema, err := jsonschema.NewCompiler().Compile([]byte(actionPlanSchema))
	if err != nil {
		logger.Warn("action plan schema disabled", "error", err)
		return &ActionParser{logger: logger}
	}
	return &ActionParser{schema: schema, logger: logger}
}

type rawPlan struct {
	Reply   string      `json:"reply"`
	Actions []rawAction `json:"actions"`
}

type rawAction struct {
	Type       string          `json:"type"`
	Selector   string          `json:"selector"`
	Value      json.RawMessage `json:"value"`
	DurationMs json.RawMessage `json:"durationMs"`
}

// Parse extracts the first JSON object from output and maps it to a plan.
// Output without a usable object becomes the reply with no actions.
func (p *ActionParser) Parse(output string) domain.AgentResponse {
	fallback := domain.AgentResponse{Reply: output, Actions: []domain.ActionCommand{}}

	candidate, ok := ExtractFirstJSON(output)
	if !ok {
		return fallback
	}

	var plan rawPlan
	if err := json.Unmarshal([]byte(candidate), &plan); err != nil {
		p.logger.Debug("model output is not an action plan", "error", err)
		return fallback
	}
	p.validate(candidate)

	resp := domain.AgentResponse{Reply: plan.Reply, Actions: make([]domain.ActionCommand, 0, len(plan.Actions))}
	for i, a := range plan.Actions {
		cmd := domain.ActionCommand{
			Type:       domain.ParseActionType(a.Type),
			Selector:   strings.TrimSpace(a.Selector),
			Value:      looseString(a.Value),
			DurationMs: durationMs(a.DurationMs),
		}
		if !cmd.Valid() {
			p.logger.Debug("dropping incomplete action",
				"index", i,
				"type", string(cmd.Type),
			)
			continue
		}
		resp.Actions = append(resp.Actions, cmd)
	}
	return resp
}

func (p *ActionParser) validate(candidate string) {
	if p.schema == nil {
		return
	}
	var doc any
	if err := json.Unmarshal([]byte(candidate), &doc); err != nil {
		return
	}
	if result := p.schema.Validate(doc); !result.IsValid() {
		p.logger.Warn("action plan does not match schema", "error", result.Error())
	}
}

// ExtractFirstJSON returns the first balanced {...} span of text that is valid
// JSON. Braces inside string literals do not count toward the depth.
func ExtractFirstJSON(text string) (string, bool) {
	for start := strings.IndexByte(text, '{'); start >= 0; {
		if end := balancedEnd(text, start); end >= 0 {
			candidate := text[start : end+1]
			if json.Valid([]byte(candidate)) {
				return candidate, true
			}
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += 1 + next
	}
	return "", false
}

// balancedEnd returns the index of the brace closing the one at start, or -1.
func balancedEnd(text string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// looseString accepts strings, numbers and booleans; models are inconsistent
// about quoting values such as amounts.
func looseString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// durationMs reads a number or numeric string and clamps it to the allowed
// range. A missing value yields the default.
func durationMs(raw json.RawMessage) int {
	s := strings.Trim(looseString(raw), " ")
	if s == "" {
		return domain.DefaultActionDurationMs
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) {
		return domain.DefaultActionDurationMs
	}
	switch {
	case f < 0:
		return 0
	case f > domain.MaxActionDurationMs:
		return domain.MaxActionDurationMs
	}
	return int(f)
}
