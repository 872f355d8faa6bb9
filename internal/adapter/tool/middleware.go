package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"uiagent/internal/domain"
	"uiagent/internal/infra/tracer"
)

// Execute runs a built-in tool: decode arguments into P, call handler inside a
// span, encode the result as JSON content.
//
// Handlers return a value to encode, a *domain.ToolResult to pass through
// unchanged (see ErrResult), or an error. Errors become error results and are
// logged; they are never returned to the registry as Go errors.
func Execute[P any](
	ctx context.Context,
	spanName string,
	logger *slog.Logger,
	rawParams json.RawMessage,
	handler func(ctx context.Context, span trace.Span, params P) (any, error),
) (*domain.ToolResult, error) {
	ctx, span := tracer.StartSpan(ctx, spanName,
		trace.WithAttributes(tracer.StringAttr("tool.name", spanName)),
	)
	defer span.End()

	var p P
	if err := decodeParams(rawParams, &p); err != nil {
		tracer.RecordError(span, err)
		return ErrResult("invalid params: %v", err)
	}

	result, err := handler(ctx, span, p)
	if err != nil {
		tracer.RecordError(span, err)
		logger.Warn("tool handler failed", "tool", spanName, "error", err)
		return &domain.ToolResult{IsError: true, Content: err.Error()}, nil
	}

	if tr, ok := result.(*domain.ToolResult); ok {
		if tr.IsError {
			tracer.RecordError(span, errors.New(tr.Content))
		} else {
			tracer.SetOK(span)
		}
		return tr, nil
	}

	data, err := json.Marshal(result)
	if err != nil {
		tracer.RecordError(span, err)
		return ErrResult("encode result: %v", err)
	}
	tracer.SetOK(span)
	return &domain.ToolResult{Content: string(data)}, nil
}

// decodeParams treats missing or null arguments as an empty object.
func decodeParams(raw json.RawMessage, dst any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		trimmed = []byte("{}")
	}
	return json.Unmarshal(trimmed, dst)
}

// ErrResult builds an error result the model sees as {"error": msg}. Use it
// for argument problems that should not be logged as tool failures.
func ErrResult(format string, args ...any) (*domain.ToolResult, error) {
	return &domain.ToolResult{
		IsError: true,
		Content: fmt.Sprintf(format, args...),
	}, nil
}
