package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uiagent/internal/domain"
)

func TestExtractFirstJSON(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		want   string
		wantOK bool
	}{
		{"nested then sibling", `prefix {"a":{"b":1}} suffix {"c":2}`, `{"a":{"b":1}}`, true},
		{"markdown fence", "noise ```json\n{\"reply\":\"x\",\"actions\":[]}\n```", `{"reply":"x","actions":[]}`, true},
		{"brace inside string", `{"reply":"use } carefully","actions":[]}`, `{"reply":"use } carefully","actions":[]}`, true},
		{"escaped quote", `{"reply":"say \"}\"","actions":[]}`, `{"reply":"say \"}\"","actions":[]}`, true},
		{"prose braces skipped", `try {this} or {"ok":true}`, `{"ok":true}`, true},
		{"unbalanced prose brace", `use { then {"ok":true}`, `{"ok":true}`, true},
		{"no object", "just words", "", false},
		{"unterminated", `{"reply":"x"`, "", false},
		{"empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractFirstJSON(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSelectAndCalculate(t *testing.T) {
	out := "Sure! ```json\n" + `{
  "reply": "Setting country and calculating.",
  "actions": [
    {"type": "select", "selector": "#country-select", "value": "Germany"},
    {"type": "type", "selector": "#revenue-input", "value": 1200000},
    {"type": "click", "selector": "#calculate"}
  ]
}` + "\n```"

	resp := NewActionParser(newTestLogger()).Parse(out)

	assert.Equal(t, "Setting country and calculating.", resp.Reply)
	require.Len(t, resp.Actions, 3)
	assert.Equal(t, domain.ActionCommand{
		Type: domain.ActionSelect, Selector: "#country-select", Value: "Germany",
		DurationMs: domain.DefaultActionDurationMs,
	}, resp.Actions[0])
	assert.Equal(t, domain.ActionTypeText, resp.Actions[1].Type)
	assert.Equal(t, "#revenue-input", resp.Actions[1].Selector)
	assert.Equal(t, "1200000", resp.Actions[1].Value)
	assert.Equal(t, domain.ActionClick, resp.Actions[2].Type)
	assert.Equal(t, "#calculate", resp.Actions[2].Selector)
	for _, a := range resp.Actions {
		assert.True(t, a.Valid())
	}
}

func TestParseDurations(t *testing.T) {
	out := `{"reply":"r","actions":[
		{"type":"wait","durationMs":1500},
		{"type":"wait","durationMs":-5},
		{"type":"wait","durationMs":999999},
		{"type":"wait","durationMs":"250"},
		{"type":"wait"},
		{"type":"wait","durationMs":"NaN"},
		{"type":"wait","durationMs":"-Inf"},
		{"type":"wait","durationMs":"+Inf"}
	]}`

	resp := NewActionParser(newTestLogger()).Parse(out)
	require.Len(t, resp.Actions, 8)
	got := make([]int, len(resp.Actions))
	for i, a := range resp.Actions {
		got[i] = a.DurationMs
	}
	assert.Equal(t, []int{
		1500, 0, domain.MaxActionDurationMs, 250, domain.DefaultActionDurationMs,
		domain.DefaultActionDurationMs, 0, domain.MaxActionDurationMs,
	}, got)
}

func TestParseDropsIncompleteAndMapsUnknown(t *testing.T) {
	out := `{"reply":"r","actions":[
		{"type":"click"},
		{"type":"type","selector":"#name"},
		{"type":"dance","value":"explain this"},
		{"type":"SCROLL","value":"down"}
	]}`

	resp := NewActionParser(newTestLogger()).Parse(out)
	require.Len(t, resp.Actions, 2)
	assert.Equal(t, domain.ActionShowExplanation, resp.Actions[0].Type)
	assert.Equal(t, "explain this", resp.Actions[0].Value)
	assert.Equal(t, domain.ActionScroll, resp.Actions[1].Type)
}

func TestParseFallsBackToRawReply(t *testing.T) {
	p := NewActionParser(newTestLogger())

	resp := p.Parse("I can't see that button.")
	assert.Equal(t, "I can't see that button.", resp.Reply)
	assert.NotNil(t, resp.Actions)
	assert.Empty(t, resp.Actions)

	resp = p.Parse(`{"reply": 42, "actions": "nope"}`)
	assert.Equal(t, `{"reply": 42, "actions": "nope"}`, resp.Reply)
	assert.Empty(t, resp.Actions)
}

func TestParseKeepsReplyWithoutActions(t *testing.T) {
	resp := NewActionParser(newTestLogger()).Parse(`{"reply":"Revenue is the total income."}`)
	assert.Equal(t, "Revenue is the total income.", resp.Reply)
	assert.Empty(t, resp.Actions)
}
