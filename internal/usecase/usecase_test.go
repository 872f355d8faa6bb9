package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"

	"uiagent/internal/domain"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// scriptedProvider replays one delta script per successful ChatStream call,
// repeating the last script once they run out.
type scriptedProvider struct {
	mu       sync.Mutex
	turns    [][]domain.StreamDelta
	openErrs []error
	attempts int
	requests []domain.ChatRequest
	chatFunc func(context.Context, domain.ChatRequest) (*domain.ChatResponse, error)
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	return p.chatFunc(ctx, req)
}

func (p *scriptedProvider) ChatStream(_ context.Context, req domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	attempt := p.attempts
	p.attempts++
	if attempt < len(p.openErrs) && p.openErrs[attempt] != nil {
		return nil, p.openErrs[attempt]
	}

	idx := len(p.requests)
	p.requests = append(p.requests, req)
	if idx >= len(p.turns) {
		idx = len(p.turns) - 1
	}
	script := p.turns[idx]
	ch := make(chan domain.StreamDelta, len(script))
	for _, d := range script {
		ch <- d
	}
	close(ch)
	return ch, nil
}

func (p *scriptedProvider) Requests() []domain.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.ChatRequest(nil), p.requests...)
}

// streamFunc adapts a function to StreamingLLMProvider.
type streamFunc func(context.Context, domain.ChatRequest) (<-chan domain.StreamDelta, error)

func (f streamFunc) Name() string { return "func" }
func (f streamFunc) Chat(context.Context, domain.ChatRequest) (*domain.ChatResponse, error) {
	return nil, domain.ErrStreamingUnsupported
}
func (f streamFunc) ChatStream(ctx context.Context, req domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	return f(ctx, req)
}

type stubTools struct {
	schemas []domain.ToolSchema
	invoke  func(context.Context, domain.ToolCall) domain.ToolOutcome
	calls   atomic.Int32
}

func (s *stubTools) Schemas() []domain.ToolSchema { return s.schemas }

func (s *stubTools) Invoke(ctx context.Context, call domain.ToolCall) domain.ToolOutcome {
	s.calls.Add(1)
	return s.invoke(ctx, call)
}

func weatherTools() *stubTools {
	return &stubTools{
		schemas: []domain.ToolSchema{{Name: "get_weather", Parameters: json.RawMessage(`{"type":"object"}`)}},
		invoke: func(_ context.Context, call domain.ToolCall) domain.ToolOutcome {
			var args struct{ City string }
			_ = json.Unmarshal(call.Arguments, &args)
			payload, _ := json.Marshal(map[string]any{
				"City":               args.City,
				"TemperatureCelsius": 22,
				"Condition":          "Sunny",
			})
			return domain.ToolOutcome{Payload: payload, OK: true}
		},
	}
}

// recordingBus is a synchronous EventBus that keeps every event.
type recordingBus struct {
	mu     sync.Mutex
	events []domain.Event
}

func (b *recordingBus) Publish(_ context.Context, e domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}
func (b *recordingBus) Subscribe(domain.EventType, domain.EventHandler) func() { return func() {} }
func (b *recordingBus) SubscribeAll(domain.EventHandler) func()                 { return func() {} }
func (b *recordingBus) Close()                                                  {}

func (b *recordingBus) ofType(t domain.EventType) []domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.Event
	for _, e := range b.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func collectEvents(ch <-chan domain.AgentEvent) []domain.AgentEvent {
	var out []domain.AgentEvent
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func kinds(events []domain.AgentEvent) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.Kind()
	}
	return out
}

func toolCallDelta(name, args string) domain.StreamDelta {
	return domain.StreamDelta{ToolCalls: []domain.ToolCall{{
		ID:        "call_" + name,
		Name:      name,
		Arguments: json.RawMessage(args),
	}}}
}

func doneDelta(prompt, completion int) domain.StreamDelta {
	return domain.StreamDelta{Done: true, Stats: &domain.TurnStats{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalDurationNs:  1000,
		EvalNs:           400,
	}}
}
