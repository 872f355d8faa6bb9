package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"uiagent/internal/domain"
	"uiagent/internal/infra/tracer"
)

// Registry holds named tools in registration order.
//
// Re-registering a name replaces the earlier tool in place (last write wins)
// unless the registry is strict, in which case Register returns ErrDuplicate.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]domain.Tool
	order  []string
	strict bool
	logger *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithStrictNames makes Register fail on duplicate names.
func WithStrictNames() RegistryOption {
	return func(r *Registry) { r.strict = true }
}

// NewRegistry creates an empty tool registry.
// If logger is non-nil, tools are wrapped with schema validation on Register;
// compilation errors are logged and the tool is registered unwrapped.
func NewRegistry(logger *slog.Logger, opts ...RegistryOption) *Registry {
	r := &Registry{
		tools:  make(map[string]domain.Tool),
		logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a tool.
func (r *Registry) Register(t domain.Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.Name()
	if name == "" {
		return domain.NewDomainError("Registry.Register", domain.ErrInvalidInput, "empty tool name")
	}
	_, exists := r.tools[name]
	if exists && r.strict {
		return domain.NewDomainError("Registry.Register", domain.ErrDuplicate, name)
	}

	if r.logger != nil {
		wrapped, err := WithSchemaValidation(t)
		if err != nil {
			r.logger.Warn("schema validation disabled for tool",
				"tool", name, "error", err)
		} else {
			t = wrapped
		}
		if exists {
			r.logger.Warn("tool replaced", "tool", name)
		}
	}

	if !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = t
	return nil
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (domain.Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrToolNotFound, name)
	}
	return t, nil
}

// List returns all registered tools in registration order.
func (r *Registry) List() []domain.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]domain.Tool, 0, len(r.order))
	for _, name := range r.order {
		tools = append(tools, r.tools[name])
	}
	return tools
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Schemas returns all tool schemas for LLM function-calling, in registration order.
func (r *Registry) Schemas() []domain.ToolSchema {
	tools := r.List()
	schemas := make([]domain.ToolSchema, 0, len(tools))
	for _, t := range tools {
		schemas = append(schemas, t.Schema())
	}
	return schemas
}

// FunctionSpecs returns the OpenAI-shaped spec of every tool.
func (r *Registry) FunctionSpecs() []domain.FunctionTool {
	schemas := r.Schemas()
	specs := make([]domain.FunctionTool, 0, len(schemas))
	for _, s := range schemas {
		specs = append(specs, s.FunctionSpec())
	}
	return specs
}

// Invoke resolves and executes a tool call. It never returns an error: lookup
// failures, invalid arguments and tool errors all become {"error": "..."}.
func (r *Registry) Invoke(ctx context.Context, call domain.ToolCall) domain.ToolOutcome {
	ctx, span := tracer.StartSpan(ctx, "tool.invoke",
		trace.WithAttributes(tracer.StringAttr("tool.name", call.Name)),
	)
	defer span.End()

	t, err := r.Get(call.Name)
	if err != nil {
		tracer.RecordError(span, err)
		return errorOutcome(fmt.Sprintf("tool %q not found", call.Name))
	}

	args := bytes.TrimSpace(call.Arguments)
	if len(args) == 0 || bytes.Equal(args, []byte("null")) {
		args = []byte("{}")
	}
	if !json.Valid(args) {
		tracer.RecordError(span, domain.ErrInvalidInput)
		return errorOutcome("arguments are not valid JSON")
	}

	result, err := t.Execute(ctx, args)
	if err != nil {
		tracer.RecordError(span, err)
		return errorOutcome(err.Error())
	}
	if result == nil {
		tracer.SetOK(span)
		return domain.ToolOutcome{Payload: json.RawMessage("null"), OK: true}
	}
	if result.IsError {
		tracer.RecordError(span, domain.ErrToolFailure)
		return errorOutcome(result.Content)
	}

	tracer.SetOK(span)
	return domain.ToolOutcome{Payload: contentAsJSON(result.Content), OK: true}
}

// errorOutcome builds the structured error payload a model sees for a failed call.
func errorOutcome(msg string) domain.ToolOutcome {
	data, _ := json.Marshal(map[string]string{"error": msg})
	return domain.ToolOutcome{Payload: data}
}

// contentAsJSON keeps JSON tool output as-is and quotes anything else.
func contentAsJSON(content string) json.RawMessage {
	trimmed := bytes.TrimSpace([]byte(content))
	if len(trimmed) > 0 && json.Valid(trimmed) {
		return json.RawMessage(trimmed)
	}
	data, _ := json.Marshal(content)
	return data
}

var _ domain.ToolExecutor = (*Registry)(nil)
