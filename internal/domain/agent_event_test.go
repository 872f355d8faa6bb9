package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextEventWireShape(t *testing.T) {
	data, err := json.Marshal(TextEvent{TextKind: TextNormal, Text: "Hi"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ReplyText":"Hi","Type":"NormalResponse","Actions":[]}`, string(data))
}

func TestTextKindNames(t *testing.T) {
	assert.Equal(t, "NormalResponse", TextNormal.String())
	assert.Equal(t, "Reasoning", TextReasoning.String())
	assert.Equal(t, "Thinking", TextThinking.String())
	assert.Equal(t, "ToolResponse", TextTool.String())
	assert.Equal(t, "ErrorResponse", TextError.String())
}

func TestUsageStatsTotalIsSum(t *testing.T) {
	ev := UsageStatsEvent{PromptTokens: 12, CompletionTokens: 30, Iterations: 2, Model: "llama3.2:3b"}
	assert.Equal(t, 42, ev.TotalTokens())

	data, err := json.Marshal(ev)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "UsageStats", got["Type"])
	assert.EqualValues(t, 42, got["TotalTokens"])
	assert.EqualValues(t, 2, got["Iterations"])
}

func TestToolEventsKeepRawJSON(t *testing.T) {
	call, err := json.Marshal(ToolCallEvent{Name: "get_weather", Arguments: json.RawMessage(`{"City":"Berlin"}`)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"Type":"ToolCall","ToolName":"get_weather","Arguments":{"City":"Berlin"}}`, string(call))

	res, err := json.Marshal(ToolResultEvent{Name: "get_weather", OK: false, Payload: json.RawMessage(`{"error":"boom"}`)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"Type":"ToolResult","ToolName":"get_weather","Ok":false,"Payload":{"error":"boom"}}`, string(res))
}

func TestToolCallEventInvalidArgumentsBecomeNull(t *testing.T) {
	data, err := json.Marshal(ToolCallEvent{Name: "x", Arguments: json.RawMessage(`{broken`)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"Type":"ToolCall","ToolName":"x","Arguments":null}`, string(data))
}

func TestDoneEventTerminator(t *testing.T) {
	data, err := json.Marshal(DoneEvent{})
	require.NoError(t, err)
	assert.Equal(t, `{"ResponseDone":true}`, string(data))
}

func TestActionPlanEventNilActions(t *testing.T) {
	data, err := json.Marshal(ActionPlanEvent{Reply: "ok"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ReplyText":"ok","Type":"ActionPlan","Actions":[]}`, string(data))
}
