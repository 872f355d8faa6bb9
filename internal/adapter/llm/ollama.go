package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"uiagent/internal/domain"
	"uiagent/internal/infra/config"
	"uiagent/internal/infra/tracer"
)

// Compile-time interface assertions.
var (
	_ domain.LLMProvider          = (*OllamaProvider)(nil)
	_ domain.StreamingLLMProvider = (*OllamaProvider)(nil)
	_ domain.HealthChecker        = (*OllamaProvider)(nil)
)

// Short connect timeout: Ollama is usually local.
const ollamaConnTimeout = 5 * time.Second

// OllamaProvider talks to the native Ollama /api/chat endpoint, which streams
// newline-delimited JSON and reports timing counters on its final frame.
type OllamaProvider struct {
	name        string
	model       string
	baseURL     string
	temperature float64
	numPredict  int
	keepAlive   string
	client      *http.Client
	logger      *slog.Logger
}

// OllamaModel describes a locally available Ollama model.
type OllamaModel struct {
	Name       string    `json:"name"`
	ModifiedAt time.Time `json:"modified_at"`
	Size       int64     `json:"size"`
}

// NewOllamaProvider creates a native Ollama provider registered under name.
func NewOllamaProvider(name string, cfg config.OllamaConfig, logger *slog.Logger) *OllamaProvider {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if name == "" {
		name = config.ProviderOllama
	}

	return &OllamaProvider{
		name:        name,
		model:       cfg.Model,
		baseURL:     baseURL,
		temperature: cfg.Temperature,
		numPredict:  cfg.NumPredict,
		keepAlive:   cfg.KeepAlive,
		client:      NewHTTPClient(ollamaConnTimeout, cfg.Timeout),
		logger:      logger,
	}
}

// Chat implements domain.LLMProvider with a single non-streamed exchange.
func (p *OllamaProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	ctx, span := tracer.StartSpan(ctx, "llm.chat",
		trace.WithAttributes(
			tracer.StringAttr("llm.provider", p.name),
			tracer.StringAttr("llm.model", p.modelFor(req)),
		),
	)
	defer span.End()

	body, err := json.Marshal(p.toOllamaRequest(req, false))
	if err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	respBody, err := doJSONRequest(ctx, p.client, p.baseURL+"/api/chat", body, nil)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	var frame ollamaChatFrame
	if err := json.Unmarshal(respBody, &frame); err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("%w: unmarshal response: %v", domain.ErrProviderError, err)
	}
	if frame.Error != "" {
		err := fmt.Errorf("%w: %s", domain.ErrProviderError, frame.Error)
		tracer.RecordError(span, err)
		return nil, err
	}

	result := &domain.ChatResponse{
		Model: frame.Model,
		Message: domain.Message{
			Role:      domain.RoleAssistant,
			Content:   frame.Message.Content,
			Thinking:  frame.Message.Thinking,
			ToolCalls: fromOllamaToolCalls(frame.Message.ToolCalls),
			Timestamp: frame.CreatedAt,
		},
		Usage: domain.Usage{
			PromptTokens:     frame.PromptEvalCount,
			CompletionTokens: frame.EvalCount,
			TotalTokens:      frame.PromptEvalCount + frame.EvalCount,
		},
		CreatedAt: frame.CreatedAt,
	}
	setUsageAttrs(span, result.Usage)
	tracer.SetOK(span)
	logChatCompleted(p.logger, p.name, result)

	return result, nil
}

// ChatStream implements domain.StreamingLLMProvider.
func (p *OllamaProvider) ChatStream(ctx context.Context, req domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	_, span := tracer.StartSpan(ctx, "llm.chat_stream",
		trace.WithAttributes(
			tracer.StringAttr("llm.provider", p.name),
			tracer.StringAttr("llm.model", p.modelFor(req)),
			tracer.IntAttr("llm.tools", len(req.Tools)),
			tracer.BoolAttr("llm.think", req.Think),
		),
	)
	defer span.End()

	body, err := json.Marshal(p.toOllamaRequest(req, true))
	if err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpResp, err := doStreamRequest(ctx, p.client, p.baseURL+"/api/chat", "application/x-ndjson", body, nil)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	tracer.SetOK(span)

	return parseNDJSONStream(ctx, httpResp.Body, &ollamaStreamDecoder{}, p.logger, p.name), nil
}

// Name implements domain.LLMProvider.
func (p *OllamaProvider) Name() string { return p.name }

// Model returns the configured default model.
func (p *OllamaProvider) Model() string { return p.model }

func (p *OllamaProvider) modelFor(req domain.ChatRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return p.model
}

// ListModels returns the locally available Ollama models.
func (p *OllamaProvider) ListModels(ctx context.Context) ([]OllamaModel, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: http request: %v", domain.ErrProviderError, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, mapHTTPError(httpResp.StatusCode, body)
	}

	var resp struct {
		Models []OllamaModel `json:"models"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	return resp.Models, nil
}

// IsHealthy checks if the Ollama server is reachable.
func (p *OllamaProvider) IsHealthy(ctx context.Context) bool {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/", nil)
	if err != nil {
		return false
	}

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return false
	}
	httpResp.Body.Close()

	return httpResp.StatusCode == http.StatusOK
}

// Warmup asks Ollama to load the configured model without generating, so the
// first real request does not pay the load latency.
func (p *OllamaProvider) Warmup(ctx context.Context) error {
	if !p.IsHealthy(ctx) {
		return fmt.Errorf("ollama server not reachable at %s", p.baseURL)
	}

	p.logger.Info("warming up ollama model", "model", p.model, "base_url", p.baseURL)

	keepAlive := p.keepAlive
	if keepAlive == "" {
		keepAlive = "5m"
	}
	payload, err := json.Marshal(map[string]string{"model": p.model, "keep_alive": keepAlive})
	if err != nil {
		return fmt.Errorf("marshal warmup request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create warmup request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("warmup request: %w", err)
	}
	defer httpResp.Body.Close()
	io.Copy(io.Discard, httpResp.Body)

	if httpResp.StatusCode != http.StatusOK {
		return fmt.Errorf("warmup failed: status %d", httpResp.StatusCode)
	}

	p.logger.Info("ollama model warmed up", "model", p.model)
	return nil
}

// --- Ollama wire types ---

type ollamaChatRequest struct {
	Model     string                `json:"model"`
	Messages  []ollamaMessage       `json:"messages"`
	Tools     []domain.FunctionTool `json:"tools,omitempty"`
	Stream    bool                  `json:"stream"`
	Think     bool                  `json:"think,omitempty"`
	KeepAlive string                `json:"keep_alive,omitempty"`
	Options   ollamaOptions         `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	Thinking  string           `json:"thinking,omitempty"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
	ToolName  string           `json:"tool_name,omitempty"`
}

type ollamaToolCall struct {
	Function ollamaFunctionCall `json:"function"`
}

// ollamaFunctionCall carries arguments as a JSON object, not a string.
type ollamaFunctionCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type ollamaChatFrame struct {
	Model              string        `json:"model"`
	CreatedAt          time.Time     `json:"created_at"`
	Message            ollamaMessage `json:"message"`
	Done               bool          `json:"done"`
	DoneReason         string        `json:"done_reason,omitempty"`
	TotalDuration      int64         `json:"total_duration"`
	LoadDuration       int64         `json:"load_duration"`
	PromptEvalCount    int           `json:"prompt_eval_count"`
	PromptEvalDuration int64         `json:"prompt_eval_duration"`
	EvalCount          int           `json:"eval_count"`
	EvalDuration       int64         `json:"eval_duration"`
	Error              string        `json:"error,omitempty"`
}

func (p *OllamaProvider) toOllamaRequest(req domain.ChatRequest, stream bool) ollamaChatRequest {
	out := ollamaChatRequest{
		Model:     p.modelFor(req),
		Messages:  make([]ollamaMessage, 0, len(req.Messages)),
		Stream:    stream,
		Think:     req.Think,
		KeepAlive: p.keepAlive,
		Options: ollamaOptions{
			Temperature: p.temperature,
			NumPredict:  p.numPredict,
		},
	}
	if req.Temperature > 0 {
		out.Options.Temperature = req.Temperature
	}
	if req.MaxTokens > 0 {
		out.Options.NumPredict = req.MaxTokens
	}

	for _, m := range req.Messages {
		om := ollamaMessage{Role: m.Role, Content: m.Content}
		switch {
		case m.Role == domain.RoleTool:
			om.ToolName = m.Name
			if om.ToolName == "" && len(m.ToolCalls) > 0 {
				om.ToolName = m.ToolCalls[0].Name
			}
		case len(m.ToolCalls) > 0:
			om.Thinking = m.Thinking
			for _, tc := range m.ToolCalls {
				om.ToolCalls = append(om.ToolCalls, ollamaToolCall{
					Function: ollamaFunctionCall{Name: tc.Name, Arguments: argumentsObject(tc.Arguments)},
				})
			}
		}
		out.Messages = append(out.Messages, om)
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, t.FunctionSpec())
	}
	return out
}

// argumentsObject coerces stored arguments into the object Ollama expects.
func argumentsObject(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' && json.Valid(trimmed) {
		return trimmed
	}
	return json.RawMessage("{}")
}

func fromOllamaToolCalls(calls []ollamaToolCall) []domain.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]domain.ToolCall, 0, len(calls))
	for _, c := range calls {
		args := c.Function.Arguments
		if len(bytes.TrimSpace(args)) == 0 || string(args) == "null" {
			args = json.RawMessage("{}")
		}
		out = append(out, domain.ToolCall{
			ID:        callIDOrNew(""),
			Name:      c.Function.Name,
			Arguments: args,
		})
	}
	return out
}

// ollamaStreamDecoder maps each NDJSON frame to a delta. Ollama sends tool
// calls whole, so nothing is accumulated across frames.
type ollamaStreamDecoder struct{}

func (ollamaStreamDecoder) decode(data []byte) (*domain.StreamDelta, error) {
	var frame ollamaChatFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, err
	}
	if frame.Error != "" {
		return &domain.StreamDelta{Err: fmt.Errorf("%w: %s", domain.ErrProviderError, frame.Error)}, nil
	}

	delta := &domain.StreamDelta{
		Content:   frame.Message.Content,
		Thinking:  frame.Message.Thinking,
		ToolCalls: fromOllamaToolCalls(frame.Message.ToolCalls),
	}
	if frame.Done {
		delta.Done = true
		delta.Stats = &domain.TurnStats{
			PromptTokens:     frame.PromptEvalCount,
			CompletionTokens: frame.EvalCount,
			TotalDurationNs:  frame.TotalDuration,
			LoadNs:           frame.LoadDuration,
			PromptEvalNs:     frame.PromptEvalDuration,
			EvalNs:           frame.EvalDuration,
		}
		return delta, nil
	}
	if delta.Content == "" && delta.Thinking == "" && len(delta.ToolCalls) == 0 {
		return nil, nil
	}
	return delta, nil
}

// finish reports a truncated stream: Ollama always ends with a done frame.
func (ollamaStreamDecoder) finish(bool) (*domain.StreamDelta, bool) {
	return nil, false
}
