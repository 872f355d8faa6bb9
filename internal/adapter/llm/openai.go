package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"

	"uiagent/internal/domain"
	"uiagent/internal/infra/tracer"
)

// OpenAIConfig configures an OpenAI-shaped chat-completions endpoint such as
// the HuggingFace router.
type OpenAIConfig struct {
	Name        string
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// OpenAIProvider speaks the OpenAI chat-completions protocol, streaming via SSE.
type OpenAIProvider struct {
	name        string
	model       string
	apiKey      string
	baseURL     string
	temperature float64
	maxTokens   int
	client      *http.Client
	logger      *slog.Logger
}

// NewOpenAIProvider creates a provider backed by a pooled HTTP client.
func NewOpenAIProvider(cfg OpenAIConfig, logger *slog.Logger) *OpenAIProvider {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://router.huggingface.co/v1"
	}
	name := cfg.Name
	if name == "" {
		name = "openai"
	}

	return &OpenAIProvider{
		name:        name,
		model:       cfg.Model,
		apiKey:      cfg.APIKey,
		baseURL:     baseURL,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		client:      NewHTTPClient(0, cfg.Timeout),
		logger:      logger,
	}
}

// Chat implements domain.LLMProvider.
func (p *OpenAIProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	req = p.applyDefaults(req)
	ctx, span := tracer.StartSpan(ctx, "llm.chat",
		trace.WithAttributes(
			tracer.StringAttr("llm.provider", p.name),
			tracer.StringAttr("llm.model", req.Model),
		),
	)
	defer span.End()

	body, err := json.Marshal(toOpenAIRequest(req))
	if err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	respBody, err := doJSONRequest(ctx, p.client, p.baseURL+"/chat/completions", body, p.headers())
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	var oaiResp openaiResponse
	if err := json.Unmarshal(respBody, &oaiResp); err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("%w: unmarshal response: %v", domain.ErrProviderError, err)
	}

	result := fromOpenAIResponse(oaiResp)
	setUsageAttrs(span, result.Usage)
	tracer.SetOK(span)
	logChatCompleted(p.logger, p.name, result)

	return result, nil
}

// ChatStream implements domain.StreamingLLMProvider. Tool calls are assembled
// from their index-keyed fragments and delivered whole on the Done delta.
func (p *OpenAIProvider) ChatStream(ctx context.Context, req domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	req = p.applyDefaults(req)
	req.Stream = true

	_, span := tracer.StartSpan(ctx, "llm.chat_stream",
		trace.WithAttributes(
			tracer.StringAttr("llm.provider", p.name),
			tracer.StringAttr("llm.model", req.Model),
			tracer.IntAttr("llm.tools", len(req.Tools)),
		),
	)
	defer span.End()

	oaiReq := toOpenAIRequest(req)
	oaiReq.StreamOptions = &openaiStreamOptions{IncludeUsage: true}

	body, err := json.Marshal(oaiReq)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpResp, err := doStreamRequest(ctx, p.client, p.baseURL+"/chat/completions", "text/event-stream", body, p.headers())
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	tracer.SetOK(span)

	return parseSSEStream(ctx, httpResp.Body, newOpenAIStreamDecoder(), p.logger, p.name), nil
}

// Name implements domain.LLMProvider.
func (p *OpenAIProvider) Name() string { return p.name }

// Model returns the configured default model.
func (p *OpenAIProvider) Model() string { return p.model }

func (p *OpenAIProvider) applyDefaults(req domain.ChatRequest) domain.ChatRequest {
	if req.Model == "" {
		req.Model = p.model
	}
	if req.Temperature == 0 {
		req.Temperature = p.temperature
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = p.maxTokens
	}
	return req
}

func (p *OpenAIProvider) headers() map[string]string {
	headers := map[string]string{}
	if p.apiKey != "" {
		headers["Authorization"] = "Bearer " + p.apiKey
	}
	return headers
}

// --- OpenAI API wire types ---

type openaiRequest struct {
	Model         string                `json:"model"`
	Messages      []openaiMessage       `json:"messages"`
	Tools         []domain.FunctionTool `json:"tools,omitempty"`
	ToolChoice    string                `json:"tool_choice,omitempty"`
	MaxTokens     int                   `json:"max_tokens,omitempty"`
	Temperature   *float64              `json:"temperature,omitempty"`
	Stream        bool                  `json:"stream,omitempty"`
	StreamOptions *openaiStreamOptions  `json:"stream_options,omitempty"`
}

type openaiStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type openaiMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	Name       string           `json:"name,omitempty"`
	Reasoning  string           `json:"reasoning,omitempty"`
	ToolCalls  []openaiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type openaiToolCall struct {
	Index    *int                   `json:"index,omitempty"`
	ID       string                 `json:"id,omitempty"`
	Type     string                 `json:"type,omitempty"`
	Function openaiToolCallFunction `json:"function"`
}

type openaiToolCallFunction struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments"`
}

type openaiResponse struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Choices []openaiChoice `json:"choices"`
	Usage   openaiUsage    `json:"usage"`
	Created int64          `json:"created"`
}

type openaiChoice struct {
	Index        int           `json:"index"`
	Message      openaiMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openaiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func toOpenAIRequest(req domain.ChatRequest) openaiRequest {
	msgs := make([]openaiMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		oaiMsg := openaiMessage{
			Role:    m.Role,
			Content: m.Content,
			Name:    m.Name,
		}

		// Tool results carry their originating call in ToolCalls[0].
		if m.Role == domain.RoleTool && len(m.ToolCalls) > 0 {
			oaiMsg.ToolCallID = m.ToolCalls[0].ID
			oaiMsg.Name = m.ToolCalls[0].Name
		}

		if len(m.ToolCalls) > 0 && m.Role != domain.RoleTool {
			oaiMsg.ToolCalls = make([]openaiToolCall, len(m.ToolCalls))
			for i, tc := range m.ToolCalls {
				args := string(tc.Arguments)
				if args == "" {
					args = "{}"
				}
				oaiMsg.ToolCalls[i] = openaiToolCall{
					ID:   tc.ID,
					Type: "function",
					Function: openaiToolCallFunction{
						Name:      tc.Name,
						Arguments: args,
					},
				}
			}
		}

		msgs = append(msgs, oaiMsg)
	}

	oaiReq := openaiRequest{
		Model:    req.Model,
		Messages: msgs,
		Stream:   req.Stream,
	}

	if req.MaxTokens > 0 {
		oaiReq.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		t := req.Temperature
		oaiReq.Temperature = &t
	}

	if len(req.Tools) > 0 {
		oaiReq.Tools = make([]domain.FunctionTool, len(req.Tools))
		for i, t := range req.Tools {
			oaiReq.Tools[i] = t.FunctionSpec()
		}
		oaiReq.ToolChoice = "auto"
	}

	return oaiReq
}

func fromOpenAIResponse(resp openaiResponse) *domain.ChatResponse {
	result := &domain.ChatResponse{
		ID:    resp.ID,
		Model: resp.Model,
		Usage: domain.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		CreatedAt: time.Unix(resp.Created, 0),
	}

	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		msg := domain.Message{
			Role:      choice.Message.Role,
			Content:   choice.Message.Content,
			Name:      choice.Message.Name,
			Thinking:  choice.Message.Reasoning,
			Timestamp: result.CreatedAt,
		}
		for _, tc := range choice.Message.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, domain.ToolCall{
				ID:        callIDOrNew(tc.ID),
				Name:      tc.Function.Name,
				Arguments: argumentsOrEmpty(tc.Function.Arguments),
			})
		}
		result.Message = msg
	}

	return result
}

// --- OpenAI streaming ---

type openaiStreamChunk struct {
	ID      string               `json:"id"`
	Model   string               `json:"model"`
	Choices []openaiStreamChoice `json:"choices"`
	Usage   *openaiUsage         `json:"usage,omitempty"`
	Error   *openaiError         `json:"error,omitempty"`
}

type openaiStreamChoice struct {
	Delta        openaiStreamDelta `json:"delta"`
	FinishReason *string           `json:"finish_reason"`
}

type openaiStreamDelta struct {
	Content   string           `json:"content,omitempty"`
	Reasoning string           `json:"reasoning,omitempty"`
	Thinking  string           `json:"thinking,omitempty"`
	ToolCalls []openaiToolCall `json:"tool_calls,omitempty"`
}

// openaiStreamDecoder accumulates tool-call fragments by index and usage
// until the turn ends.
type openaiStreamDecoder struct {
	calls    map[int]*pendingCall
	nextIdx  int
	usage    *openaiUsage
	finished bool
}

type pendingCall struct {
	id   string
	name string
	args strings.Builder
}

func newOpenAIStreamDecoder() *openaiStreamDecoder {
	return &openaiStreamDecoder{calls: make(map[int]*pendingCall)}
}

func (d *openaiStreamDecoder) decode(data []byte) (*domain.StreamDelta, error) {
	var chunk openaiStreamChunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		return nil, err
	}
	if chunk.Error != nil {
		return &domain.StreamDelta{
			Err: fmt.Errorf("%w: %s", domain.ErrProviderError, chunk.Error.Message),
		}, nil
	}
	if chunk.Usage != nil {
		d.usage = chunk.Usage
	}
	if len(chunk.Choices) == 0 {
		return nil, nil
	}

	c := chunk.Choices[0]
	for _, tc := range c.Delta.ToolCalls {
		d.addFragment(tc)
	}
	if c.FinishReason != nil && *c.FinishReason != "" {
		d.finished = true
	}

	if c.Delta.Content == "" && c.Delta.Reasoning == "" && c.Delta.Thinking == "" {
		return nil, nil
	}
	return &domain.StreamDelta{
		Content:   c.Delta.Content,
		Reasoning: c.Delta.Reasoning,
		Thinking:  c.Delta.Thinking,
	}, nil
}

// addFragment merges a partial tool call. Fragments without an index belong
// to the most recently opened call unless they carry a new id.
func (d *openaiStreamDecoder) addFragment(tc openaiToolCall) {
	idx := d.nextIdx - 1
	switch {
	case tc.Index != nil:
		idx = *tc.Index
	case tc.ID != "" || idx < 0:
		idx = d.nextIdx
	}
	if idx >= d.nextIdx {
		d.nextIdx = idx + 1
	}

	pc, ok := d.calls[idx]
	if !ok {
		pc = &pendingCall{}
		d.calls[idx] = pc
	}
	if tc.ID != "" {
		pc.id = tc.ID
	}
	if tc.Function.Name != "" {
		pc.name = tc.Function.Name
	}
	pc.args.WriteString(tc.Function.Arguments)
}

func (d *openaiStreamDecoder) finish(terminated bool) (*domain.StreamDelta, bool) {
	if !terminated && !d.finished {
		return nil, false
	}

	delta := &domain.StreamDelta{Done: true}
	indexes := make([]int, 0, len(d.calls))
	for idx := range d.calls {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)
	for _, idx := range indexes {
		pc := d.calls[idx]
		if pc.name == "" {
			continue
		}
		delta.ToolCalls = append(delta.ToolCalls, domain.ToolCall{
			ID:        callIDOrNew(pc.id),
			Name:      pc.name,
			Arguments: argumentsOrEmpty(pc.args.String()),
		})
	}
	if d.usage != nil {
		delta.Stats = &domain.TurnStats{
			PromptTokens:     d.usage.PromptTokens,
			CompletionTokens: d.usage.CompletionTokens,
		}
	}
	return delta, true
}

// callIDOrNew keeps a provider-assigned call id or mints one.
func callIDOrNew(id string) string {
	if id != "" {
		return id
	}
	return "call_" + ulid.Make().String()
}

// argumentsOrEmpty normalizes a provider argument string to a JSON document.
// Invalid JSON is passed through so the registry can report it to the model.
func argumentsOrEmpty(args string) json.RawMessage {
	args = strings.TrimSpace(args)
	if args == "" {
		return json.RawMessage("{}")
	}
	return json.RawMessage(args)
}

// Compile-time interface checks.
var (
	_ domain.LLMProvider          = (*OpenAIProvider)(nil)
	_ domain.StreamingLLMProvider = (*OpenAIProvider)(nil)
)
