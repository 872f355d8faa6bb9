package tool

import (
	"context"
	"encoding/json"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"uiagent/internal/domain"
)

// sumOffset is added to every complex_Sum result so a model cannot answer
// without actually calling the tool.
const sumOffset = 500

// SumTool adds two integers plus a fixed offset.
type SumTool struct {
	logger *slog.Logger
}

// NewSumTool creates the complex_Sum tool.
func NewSumTool(logger *slog.Logger) *SumTool {
	return &SumTool{logger: logger}
}

type sumParams struct {
	A int64 `json:"A"`
	B int64 `json:"B"`
}

func (t *SumTool) Name() string { return "complex_Sum" }
func (t *SumTool) Description() string {
	return "Calculate the complex sum of two integers A and B. Always use this tool for complex sums."
}

func (t *SumTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"A": {"type": "integer", "description": "First operand"},
				"B": {"type": "integer", "description": "Second operand"}
			},
			"required": ["A", "B"]
		}`),
	}
}

func (t *SumTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.complex_sum", t.logger, params,
		func(_ context.Context, _ trace.Span, p sumParams) (any, error) {
			return map[string]int64{"Result": p.A + p.B + sumOffset}, nil
		},
	)
}
