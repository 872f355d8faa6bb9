package tool

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"uiagent/internal/domain"
)

func TestWeatherTool(t *testing.T) {
	tool := NewWeatherTool(testLogger())
	assert.Equal(t, "get_weather", tool.Name())

	res, err := tool.Execute(context.Background(), json.RawMessage(`{"City":" Berlin "}`))
	require.NoError(t, err)
	require.False(t, res.IsError, res.Content)
	assert.JSONEq(t, `{"City":"Berlin","TemperatureCelsius":22,"Condition":"Sunny"}`, res.Content)
}

func TestWeatherToolBlankCity(t *testing.T) {
	res, err := NewWeatherTool(testLogger()).Execute(context.Background(), json.RawMessage(`{"City":"  "}`))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Equal(t, "City is required", res.Content)
}

func TestSumTool(t *testing.T) {
	tool := NewSumTool(testLogger())
	assert.Equal(t, "complex_Sum", tool.Name())

	res, err := tool.Execute(context.Background(), json.RawMessage(`{"A":-10,"B":4}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"Result":494}`, res.Content)
}

func TestBuiltinSchemasCompile(t *testing.T) {
	for _, tl := range []domain.Tool{NewWeatherTool(testLogger()), NewSumTool(testLogger())} {
		wrapped, err := WithSchemaValidation(tl)
		require.NoError(t, err, tl.Name())
		assert.IsType(t, &SchemaValidatingTool{}, wrapped)
	}
}

func TestSchemaValidationMissingRequired(t *testing.T) {
	wrapped, err := WithSchemaValidation(NewSumTool(testLogger()))
	require.NoError(t, err)

	res, err := wrapped.Execute(context.Background(), json.RawMessage(`{"A":1}`))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, res.Content, "B")
}

func TestSchemaValidationNoParamsPassthrough(t *testing.T) {
	stub := &stubTool{name: "bare"}
	wrapped, err := WithSchemaValidation(stub)
	require.NoError(t, err)
	assert.Same(t, stub, wrapped)
}

func TestSchemaValidationCompileError(t *testing.T) {
	_, err := WithSchemaValidation(&stubTool{name: "bad", params: json.RawMessage(`{"type": 12}`)})
	assert.Error(t, err)
}

func TestSchemaValidationUnwrap(t *testing.T) {
	wrapped, err := WithSchemaValidation(NewSumTool(testLogger()))
	require.NoError(t, err)
	assert.Equal(t, "complex_Sum", wrapped.(*SchemaValidatingTool).Unwrap().Name())
}

func TestExecuteFormatsResults(t *testing.T) {
	type args struct {
		N int `json:"n"`
	}
	tests := []struct {
		name    string
		handler func(int) (any, error)
		want    string
		isErr   bool
	}{
		{"struct", func(n int) (any, error) { return map[string]int{"n": n}, nil }, `{"n":4}`, false},
		{"string", func(int) (any, error) { return "hello", nil }, `"hello"`, false},
		{"error", func(int) (any, error) { return nil, assert.AnError }, assert.AnError.Error(), true},
		{"tool result", func(int) (any, error) { return ErrResult("bad %d", 1) }, "bad 1", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Execute(context.Background(), "tool.test", testLogger(), json.RawMessage(`{"n":4}`),
				func(_ context.Context, _ trace.Span, p args) (any, error) { return tt.handler(p.N) })
			require.NoError(t, err)
			assert.Equal(t, tt.isErr, res.IsError)
			assert.Equal(t, tt.want, res.Content)
		})
	}
}

func TestExecuteInvalidParams(t *testing.T) {
	res, err := Execute(context.Background(), "tool.test", testLogger(), json.RawMessage(`[1,2]`),
		func(_ context.Context, _ trace.Span, p struct{ N int }) (any, error) { return nil, nil })
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, res.Content, "invalid params")
}

func TestExecuteNullParamsDecodeAsEmptyObject(t *testing.T) {
	for _, raw := range []string{"", "null", "  "} {
		res, err := Execute(context.Background(), "tool.test", testLogger(), json.RawMessage(raw),
			func(_ context.Context, _ trace.Span, p struct{ N int }) (any, error) { return p.N, nil })
		require.NoError(t, err)
		assert.False(t, res.IsError, "params %q", raw)
		assert.Equal(t, "0", res.Content)
	}
}
