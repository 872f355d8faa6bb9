package tool

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"uiagent/internal/domain"
	"uiagent/internal/infra/tracer"
)

// WeatherTool reports current conditions for a city. Readings are fixed; the
// tool exists to exercise the tool-calling loop end to end.
type WeatherTool struct {
	logger *slog.Logger
}

// NewWeatherTool creates the get_weather tool.
func NewWeatherTool(logger *slog.Logger) *WeatherTool {
	return &WeatherTool{logger: logger}
}

type weatherParams struct {
	City string `json:"City"`
}

// WeatherReport is the get_weather result.
type WeatherReport struct {
	City               string `json:"City"`
	TemperatureCelsius int    `json:"TemperatureCelsius"`
	Condition          string `json:"Condition"`
}

func (t *WeatherTool) Name() string        { return "get_weather" }
func (t *WeatherTool) Description() string { return "Get the current weather for a given city." }

func (t *WeatherTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"City": {"type": "string", "description": "City name, e.g. Berlin"}
			},
			"required": ["City"]
		}`),
	}
}

func (t *WeatherTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.get_weather", t.logger, params,
		func(ctx context.Context, span trace.Span, p weatherParams) (any, error) {
			city := strings.TrimSpace(p.City)
			if city == "" {
				return ErrResult("City is required")
			}
			span.SetAttributes(tracer.StringAttr("weather.city", city))
			return WeatherReport{City: city, TemperatureCelsius: 22, Condition: "Sunny"}, nil
		},
	)
}
