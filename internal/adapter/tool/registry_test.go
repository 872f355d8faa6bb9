package tool

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uiagent/internal/domain"
)

// stubTool is a configurable domain.Tool for registry tests.
type stubTool struct {
	name   string
	params json.RawMessage
	exec   func(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error)
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return "stub " + s.name }
func (s *stubTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{Name: s.name, Description: s.Description(), Parameters: s.params}
}

func (s *stubTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	if s.exec != nil {
		return s.exec(ctx, params)
	}
	return &domain.ToolResult{Content: `{"ok":true}`}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestRegistryPreservesRegistrationOrder(t *testing.T) {
	reg := NewRegistry(nil)
	for _, n := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, reg.Register(&stubTool{name: n}))
	}

	var names []string
	for _, s := range reg.Schemas() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, names)
	assert.Equal(t, 3, reg.Len())
}

func TestRegistryLastWriteWins(t *testing.T) {
	reg := NewRegistry(testLogger())
	require.NoError(t, reg.Register(&stubTool{name: "dup", exec: func(context.Context, json.RawMessage) (*domain.ToolResult, error) {
		return &domain.ToolResult{Content: `"first"`}, nil
	}}))
	require.NoError(t, reg.Register(&stubTool{name: "other"}))
	require.NoError(t, reg.Register(&stubTool{name: "dup", exec: func(context.Context, json.RawMessage) (*domain.ToolResult, error) {
		return &domain.ToolResult{Content: `"second"`}, nil
	}}))

	assert.Equal(t, 2, reg.Len())
	assert.Equal(t, "dup", reg.Schemas()[0].Name, "replacement keeps the original slot")

	out := reg.Invoke(context.Background(), domain.ToolCall{Name: "dup"})
	assert.True(t, out.OK)
	assert.JSONEq(t, `"second"`, string(out.Payload))
}

func TestRegistryStrictNamesRejectsDuplicate(t *testing.T) {
	reg := NewRegistry(nil, WithStrictNames())
	require.NoError(t, reg.Register(&stubTool{name: "dup"}))

	err := reg.Register(&stubTool{name: "dup"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrDuplicate))
}

func TestRegistryRejectsEmptyName(t *testing.T) {
	err := NewRegistry(nil).Register(&stubTool{name: ""})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRegistryGetUnknown(t *testing.T) {
	_, err := NewRegistry(nil).Get("nope")
	assert.ErrorIs(t, err, domain.ErrToolNotFound)
}

func TestRegistryFunctionSpecs(t *testing.T) {
	reg := NewRegistry(nil)
	require.NoError(t, reg.Register(&stubTool{name: "bare"}))

	specs := reg.FunctionSpecs()
	require.Len(t, specs, 1)
	data, err := json.Marshal(specs[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"type": "function",
		"function": {
			"name": "bare",
			"description": "stub bare",
			"parameters": {"type": "object", "properties": {}}
		}
	}`, string(data))
}

func TestRegistryInvoke(t *testing.T) {
	reg := NewRegistry(testLogger())
	require.NoError(t, reg.Register(NewWeatherTool(testLogger())))
	require.NoError(t, reg.Register(NewSumTool(testLogger())))
	require.NoError(t, reg.Register(&stubTool{name: "boom", exec: func(context.Context, json.RawMessage) (*domain.ToolResult, error) {
		return nil, errors.New("exploded")
	}}))
	require.NoError(t, reg.Register(&stubTool{name: "text", exec: func(context.Context, json.RawMessage) (*domain.ToolResult, error) {
		return &domain.ToolResult{Content: "plain words"}, nil
	}}))

	tests := []struct {
		name    string
		call    domain.ToolCall
		wantOK  bool
		payload string
	}{
		{
			name:    "weather",
			call:    domain.ToolCall{Name: "get_weather", Arguments: json.RawMessage(`{"City":"Berlin"}`)},
			wantOK:  true,
			payload: `{"City":"Berlin","TemperatureCelsius":22,"Condition":"Sunny"}`,
		},
		{
			name:    "sum adds offset",
			call:    domain.ToolCall{Name: "complex_Sum", Arguments: json.RawMessage(`{"A":2,"B":3}`)},
			wantOK:  true,
			payload: `{"Result":505}`,
		},
		{
			name:    "unknown tool",
			call:    domain.ToolCall{Name: "launch_rockets", Arguments: json.RawMessage(`{}`)},
			payload: `{"error":"tool \"launch_rockets\" not found"}`,
		},
		{
			name:    "invalid json arguments",
			call:    domain.ToolCall{Name: "get_weather", Arguments: json.RawMessage(`{"City":`)},
			payload: `{"error":"arguments are not valid JSON"}`,
		},
		{
			name:    "tool returns error",
			call:    domain.ToolCall{Name: "boom"},
			payload: `{"error":"exploded"}`,
		},
		{
			name:    "non-json content is quoted",
			call:    domain.ToolCall{Name: "text"},
			wantOK:  true,
			payload: `"plain words"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := reg.Invoke(context.Background(), tt.call)
			assert.Equal(t, tt.wantOK, out.OK)
			assert.JSONEq(t, tt.payload, string(out.Payload))
		})
	}
}

func TestRegistryInvokeSchemaFailure(t *testing.T) {
	reg := NewRegistry(testLogger())
	require.NoError(t, reg.Register(NewWeatherTool(testLogger())))

	out := reg.Invoke(context.Background(), domain.ToolCall{Name: "get_weather", Arguments: json.RawMessage(`{"City":7}`)})
	require.False(t, out.OK)

	var body map[string]string
	require.NoError(t, json.Unmarshal(out.Payload, &body))
	assert.Contains(t, body["error"], "invalid arguments")
	assert.Contains(t, body["error"], "/City")
}

func TestRegistryInvokeNullArgumentsBecomeEmptyObject(t *testing.T) {
	var got string
	reg := NewRegistry(nil)
	require.NoError(t, reg.Register(&stubTool{name: "probe", exec: func(_ context.Context, p json.RawMessage) (*domain.ToolResult, error) {
		got = string(p)
		return &domain.ToolResult{Content: "{}"}, nil
	}}))

	reg.Invoke(context.Background(), domain.ToolCall{Name: "probe", Arguments: json.RawMessage("null")})
	assert.Equal(t, "{}", got)
}

func TestRegistryInvokePassesCancellation(t *testing.T) {
	reg := NewRegistry(nil)
	require.NoError(t, reg.Register(&stubTool{name: "slow", exec: func(ctx context.Context, _ json.RawMessage) (*domain.ToolResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := reg.Invoke(ctx, domain.ToolCall{Name: "slow"})
	assert.False(t, out.OK)
	assert.Contains(t, string(out.Payload), "context canceled")
}
