package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/trace"

	"uiagent/internal/domain"
	"uiagent/internal/infra/tracer"
)

// Agent loop defaults.
const (
	DefaultMaxIterations  = 10
	DefaultTurnTimeout    = 120 * time.Second
	DefaultToolTimeout    = 30 * time.Second
	DefaultRequestTimeout = 600 * time.Second
	DefaultResultCap      = 16 << 10
)

const maxIterationsText = "⚠️ Maximum iterations reached"

// AgentDeps holds injected dependencies for the agent.
type AgentDeps struct {
	LLM     domain.StreamingLLMProvider
	Tools   domain.ToolExecutor // nil disables tool calling
	Prompts *PromptBuilder
	Parser  *ActionParser
	Bus     domain.EventBus // optional, nil = no events
	Logger  *slog.Logger
	Model   string // reported in UsageStats

	MaxIterations  int
	TurnTimeout    time.Duration
	ToolTimeout    time.Duration
	RequestTimeout time.Duration
	ResultCap      int // bytes of tool output fed back to the model
}

// Agent orchestrates the stream-think-act loop.
type Agent struct {
	deps AgentDeps
}

// NewAgent creates an agent with the given dependencies.
func NewAgent(deps AgentDeps) *Agent {
	if deps.MaxIterations <= 0 {
		deps.MaxIterations = DefaultMaxIterations
	}
	if deps.TurnTimeout <= 0 {
		deps.TurnTimeout = DefaultTurnTimeout
	}
	if deps.ToolTimeout <= 0 {
		deps.ToolTimeout = DefaultToolTimeout
	}
	if deps.RequestTimeout <= 0 {
		deps.RequestTimeout = DefaultRequestTimeout
	}
	if deps.ResultCap <= 0 {
		deps.ResultCap = DefaultResultCap
	}
	if deps.Prompts == nil {
		deps.Prompts = NewPromptBuilder(deps.Model, 0, 0, false)
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.Parser == nil {
		deps.Parser = NewActionParser(deps.Logger)
	}
	return &Agent{deps: deps}
}

// Run starts the loop for req and returns its event stream. The channel is
// unbuffered so a slow reader stalls the provider stream. It is closed after
// DoneEvent, or without one once ctx is cancelled.
func (a *Agent) Run(ctx context.Context, req domain.AgentRequest) <-chan domain.AgentEvent {
	out := make(chan domain.AgentEvent)
	r := &run{
		deps:   &a.deps,
		req:    req,
		out:    out,
		client: ctx,
		logger: a.deps.Logger.With("session_id", req.ID),
	}
	go func() {
		defer close(out)
		r.execute()
	}()
	return out
}

// run is the state of one Run invocation. The conversation lives here and is
// discarded when the run ends.
type run struct {
	deps   *AgentDeps
	req    domain.AgentRequest
	out    chan<- domain.AgentEvent
	client context.Context
	logger *slog.Logger
	usage  domain.UsageStatsEvent
}

type turnResult struct {
	content  string
	thinking string
	calls    []domain.ToolCall
}

func (r *run) execute() {
	ctx, cancel := context.WithTimeout(r.client, r.deps.RequestTimeout)
	defer cancel()
	ctx = domain.ContextWithSessionID(ctx, r.req.ID)

	ctx, span := tracer.StartSpan(ctx, "agent.run",
		trace.WithAttributes(
			tracer.StringAttr("session.id", r.req.ID),
			tracer.BoolAttr("agent.snapshot", r.req.HasSnapshot()),
		),
	)
	defer span.End()

	messages := r.deps.Prompts.Messages(r.req)
	var tools []domain.ToolSchema
	if r.deps.Tools != nil {
		tools = r.deps.Tools.Schemas()
	}

	for i := 1; i <= r.deps.MaxIterations; i++ {
		r.usage.Iterations = i

		turn, err := r.turn(ctx, messages, tools)
		if err != nil {
			r.fail(ctx, span, err)
			return
		}
		if len(turn.calls) == 0 {
			r.finalize(ctx, span, turn.content)
			return
		}

		messages = append(messages, domain.Message{
			Role:      domain.RoleAssistant,
			Content:   turn.content,
			Thinking:  turn.thinking,
			ToolCalls: turn.calls,
			Timestamp: time.Now(),
		})
		for _, call := range turn.calls {
			msg, err := r.executeTool(ctx, call)
			if err != nil {
				r.fail(ctx, span, err)
				return
			}
			messages = append(messages, msg)
		}
	}

	r.logger.Warn("agent reached max iterations", "iterations", r.deps.MaxIterations)
	publishEvent(r.deps.Bus, ctx, domain.EventAgentError, r.req.ID, domain.ErrorPayload{
		Error: domain.ErrMaxIterations.Error(),
		Code:  domain.ErrorCodeOf(domain.ErrMaxIterations),
	})
	tracer.RecordError(span, domain.ErrMaxIterations)
	if r.emit(domain.TextEvent{TextKind: domain.TextNormal, Text: maxIterationsText}) {
		r.emit(domain.DoneEvent{})
	}
}

// turn streams one provider turn, forwarding text as it arrives.
func (r *run) turn(ctx context.Context, messages []domain.Message, tools []domain.ToolSchema) (*turnResult, error) {
	turnCtx, cancel := context.WithTimeout(ctx, r.deps.TurnTimeout)
	defer cancel()

	turnCtx, span := tracer.StartSpan(turnCtx, "agent.turn",
		trace.WithAttributes(tracer.IntAttr("agent.iteration", r.usage.Iterations)),
	)
	defer span.End()

	stream, err := r.openStream(turnCtx, r.deps.Prompts.Build(messages, tools))
	if err != nil {
		tracer.RecordError(span, err)
		return nil, r.turnError(ctx, turnCtx, err)
	}

	var content, thinking strings.Builder
	res := &turnResult{}
	done := false
	for delta := range stream {
		if delta.Err != nil {
			tracer.RecordError(span, delta.Err)
			return nil, r.turnError(ctx, turnCtx, delta.Err)
		}
		if delta.Reasoning != "" && !r.emit(domain.TextEvent{TextKind: domain.TextReasoning, Text: delta.Reasoning}) {
			return nil, r.client.Err()
		}
		if delta.Thinking != "" {
			thinking.WriteString(delta.Thinking)
			if !r.emit(domain.TextEvent{TextKind: domain.TextThinking, Text: delta.Thinking}) {
				return nil, r.client.Err()
			}
		}
		if delta.Content != "" {
			content.WriteString(delta.Content)
			if !r.emit(domain.TextEvent{TextKind: domain.TextNormal, Text: delta.Content}) {
				return nil, r.client.Err()
			}
		}
		res.calls = append(res.calls, delta.ToolCalls...)
		if delta.Stats != nil {
			r.addStats(*delta.Stats)
		}
		if delta.Done {
			done = true
			break
		}
	}
	if !done {
		if err := turnCtx.Err(); err != nil {
			return nil, r.turnError(ctx, turnCtx, err)
		}
		return nil, domain.NewDomainError("Agent.turn", domain.ErrProviderError, "stream closed before done")
	}

	res.content = content.String()
	res.thinking = thinking.String()
	span.SetAttributes(tracer.IntAttr("agent.tool_calls", len(res.calls)))
	tracer.SetOK(span)
	return res, nil
}

// openStream opens the provider stream, retrying transient failures. Nothing
// has been emitted for the turn yet, so a retry is invisible to the client.
func (r *run) openStream(ctx context.Context, req domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	for attempt := 0; ; attempt++ {
		stream, err := r.deps.LLM.ChatStream(ctx, req)
		if err == nil {
			return stream, nil
		}
		if attempt >= maxOpenRetries || ClassifyProviderError(err).Class != Retryable {
			return nil, err
		}
		delay := retryBackoff(attempt)
		r.logger.Warn("provider stream failed to open, retrying",
			"attempt", attempt+1,
			"delay", delay,
			"error", err,
		)
		if sleepErr := sleepCtx(ctx, delay); sleepErr != nil {
			return nil, err
		}
	}
}

// turnError attributes a failed turn to the client, the request budget or the
// turn budget before falling back to the provider's own error.
func (r *run) turnError(ctx, turnCtx context.Context, err error) error {
	switch {
	case r.client.Err() != nil:
		return r.client.Err()
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(turnCtx.Err(), context.DeadlineExceeded):
		return domain.NewDomainError("Agent.turn", domain.ErrTimeout,
			fmt.Sprintf("provider turn exceeded %s", r.deps.TurnTimeout))
	}
	return err
}

func (r *run) addStats(s domain.TurnStats) {
	r.usage.PromptTokens += s.PromptTokens
	r.usage.CompletionTokens += s.CompletionTokens
	r.usage.TotalDurationNs += s.TotalDurationNs
	r.usage.LoadNs += s.LoadNs
	r.usage.PromptEvalNs += s.PromptEvalNs
	r.usage.EvalNs += s.EvalNs
}

// executeTool runs one call and returns the tool message for the next turn.
// Tool failures are encoded in the message; only cancellation is an error.
func (r *run) executeTool(ctx context.Context, call domain.ToolCall) (domain.Message, error) {
	ctx, span := tracer.StartSpan(ctx, "agent.execute_tool",
		trace.WithAttributes(tracer.StringAttr("tool.name", call.Name)),
	)
	defer span.End()

	if !r.emit(domain.ToolCallEvent{Name: call.Name, Arguments: call.Arguments}) ||
		!r.emit(domain.TextEvent{TextKind: domain.TextTool, Text: "🔧 calling " + call.Name}) {
		return domain.Message{}, r.client.Err()
	}

	publishEvent(r.deps.Bus, ctx, domain.EventToolCallStarted, r.req.ID, domain.ToolCallPayload{Tool: call.Name})
	outcome, err := r.invoke(ctx, call)
	if err != nil {
		tracer.RecordError(span, err)
		if r.client.Err() == nil {
			// The request budget ran out mid-call: close the call before the
			// run reports the timeout.
			aborted := errorOutcome(fmt.Sprintf("request exceeded %s", r.deps.RequestTimeout))
			publishEvent(r.deps.Bus, r.client, domain.EventToolCallCompleted, r.req.ID, domain.ToolCallPayload{Tool: call.Name})
			r.emit(domain.ToolResultEvent{Name: call.Name, OK: false, Payload: aborted.Payload})
		}
		return domain.Message{}, err
	}
	publishEvent(r.deps.Bus, ctx, domain.EventToolCallCompleted, r.req.ID, domain.ToolCallPayload{
		Tool:    call.Name,
		Success: outcome.OK,
	})

	notice := "✅ " + call.Name + " done"
	if outcome.OK {
		tracer.SetOK(span)
	} else {
		notice = "⚠️ " + call.Name + " failed"
		tracer.RecordError(span, fmt.Errorf("%w: %s", domain.ErrToolFailure, call.Name))
		r.logger.Warn("tool call failed", "tool", call.Name, "payload", string(outcome.Payload))
	}

	if !r.emit(domain.ToolResultEvent{Name: call.Name, OK: outcome.OK, Payload: outcome.Payload}) ||
		!r.emit(domain.TextEvent{TextKind: domain.TextTool, Text: notice}) {
		return domain.Message{}, r.client.Err()
	}

	return domain.Message{
		Role:      domain.RoleTool,
		Name:      call.Name,
		Content:   capResult(string(outcome.Payload), r.deps.ResultCap),
		ToolCalls: []domain.ToolCall{call},
		Timestamp: time.Now(),
	}, nil
}

// invoke runs the tool under the per-tool budget. A tool that ignores
// cancellation keeps running in the background; its result is discarded.
func (r *run) invoke(ctx context.Context, call domain.ToolCall) (domain.ToolOutcome, error) {
	if r.deps.Tools == nil {
		return errorOutcome(fmt.Sprintf("tool %q not found", call.Name)), nil
	}

	toolCtx, cancel := context.WithTimeout(ctx, r.deps.ToolTimeout)
	defer cancel()

	result := make(chan domain.ToolOutcome, 1)
	go func() { result <- r.deps.Tools.Invoke(toolCtx, call) }()

	select {
	case out := <-result:
		if err := ctx.Err(); err != nil {
			return domain.ToolOutcome{}, err
		}
		return out, nil
	case <-toolCtx.Done():
		if err := ctx.Err(); err != nil {
			return domain.ToolOutcome{}, err
		}
		return errorOutcome(fmt.Sprintf("tool %s timed out after %s", call.Name, r.deps.ToolTimeout)), nil
	}
}

func (r *run) finalize(ctx context.Context, span trace.Span, content string) {
	reply := content
	var actions []domain.ActionCommand
	if r.req.HasSnapshot() {
		plan := r.deps.Parser.Parse(content)
		if len(plan.Actions) > 0 {
			reply, actions = plan.Reply, plan.Actions
			if !r.emit(domain.ActionPlanEvent{Reply: plan.Reply, Actions: plan.Actions}) {
				r.cancelled()
				return
			}
		}
	}

	stats := r.usage
	stats.Model = r.deps.Model
	if !r.emit(stats) {
		r.cancelled()
		return
	}

	publishEvent(r.deps.Bus, ctx, domain.EventAgentCompleted, r.req.ID, domain.CompletedPayload{
		Reply:      reply,
		Actions:    actions,
		Iterations: stats.Iterations,
		Model:      stats.Model,
		Usage: domain.Usage{
			PromptTokens:     stats.PromptTokens,
			CompletionTokens: stats.CompletionTokens,
			TotalTokens:      stats.TotalTokens(),
		},
	})
	span.SetAttributes(
		tracer.IntAttr("agent.iterations", stats.Iterations),
		tracer.IntAttr("llm.total_tokens", stats.TotalTokens()),
	)
	tracer.SetOK(span)
	r.logger.Info("agent run completed",
		"iterations", stats.Iterations,
		"total_tokens", stats.TotalTokens(),
		"actions", len(actions),
	)

	if !r.emit(domain.DoneEvent{}) {
		r.cancelled()
	}
}

// fail ends the run after err. Client cancellation ends it silently; every
// other failure becomes one error text followed by Done.
func (r *run) fail(ctx context.Context, span trace.Span, err error) {
	if r.client.Err() != nil {
		r.cancelled()
		return
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		err = domain.NewDomainError("Agent.Run", domain.ErrTimeout,
			fmt.Sprintf("request exceeded %s", r.deps.RequestTimeout))
	}

	tracer.RecordError(span, err)
	r.logger.Error("agent run failed", "iteration", r.usage.Iterations, "error", err)
	publishEvent(r.deps.Bus, ctx, domain.EventAgentError, r.req.ID, domain.ErrorPayload{
		Error: err.Error(),
		Code:  domain.ErrorCodeOf(err),
	})
	if r.emit(domain.TextEvent{TextKind: domain.TextError, Text: err.Error()}) {
		r.emit(domain.DoneEvent{})
	}
}

func (r *run) cancelled() {
	r.logger.Info("stream cancelled by client", "iteration", r.usage.Iterations)
	publishEvent(r.deps.Bus, r.client, domain.EventStreamCancelled, r.req.ID, nil)
}

// emit hands ev to the consumer, mirroring it on the bus. It reports false
// once the client has gone away.
func (r *run) emit(ev domain.AgentEvent) bool {
	select {
	case r.out <- ev:
	case <-r.client.Done():
		return false
	}
	if _, done := ev.(domain.DoneEvent); !done {
		publishEvent(r.deps.Bus, r.client, domain.EventAgentEvent, r.req.ID, ev)
	}
	return true
}

func errorOutcome(msg string) domain.ToolOutcome {
	payload, _ := json.Marshal(map[string]string{"error": msg})
	return domain.ToolOutcome{Payload: payload}
}

// capResult truncates s to at most limit bytes on a rune boundary.
func capResult(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…[truncated]"
}
