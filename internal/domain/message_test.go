package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolMessageCarriesCallID(t *testing.T) {
	msg := Message{
		Role:      RoleTool,
		Name:      "get_weather",
		Content:   `{"City":"Berlin"}`,
		ToolCalls: []ToolCall{{ID: "call_1", Name: "get_weather"}},
	}

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "tool", raw["role"])
	calls, ok := raw["tool_calls"].([]any)
	require.True(t, ok)
	require.Len(t, calls, 1)
	assert.Equal(t, "call_1", calls[0].(map[string]any)["id"])
}

func TestChatRequestOmitsEmptyOptionals(t *testing.T) {
	data, err := json.Marshal(ChatRequest{Model: "m"})
	require.NoError(t, err)

	s := string(data)
	assert.NotContains(t, s, "tools")
	assert.NotContains(t, s, "think")
	assert.NotContains(t, s, "max_tokens")
}
