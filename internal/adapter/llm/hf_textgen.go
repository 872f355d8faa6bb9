package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"uiagent/internal/domain"
	"uiagent/internal/infra/tracer"
)

var _ domain.LLMProvider = (*TextGenProvider)(nil)

// TextGenConfig configures a HuggingFace text-generation endpoint.
type TextGenConfig struct {
	Name        string
	Model       string
	APIKey      string
	BaseURL     string // model URL prefix; the model id is appended
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// TextGenProvider calls a non-chat HuggingFace endpoint that answers with
// [{"generated_text": "..."}]. It cannot stream and serves only the legacy
// request path.
type TextGenProvider struct {
	name        string
	model       string
	apiKey      string
	url         string
	temperature float64
	maxTokens   int
	client      *http.Client
	logger      *slog.Logger
}

// NewTextGenProvider creates a text-generation provider.
func NewTextGenProvider(cfg TextGenConfig, logger *slog.Logger) *TextGenProvider {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://router.huggingface.co/hf-inference/models"
	}
	name := cfg.Name
	if name == "" {
		name = "huggingface-textgen"
	}
	return &TextGenProvider{
		name:        name,
		model:       cfg.Model,
		apiKey:      cfg.APIKey,
		url:         base + "/" + cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		client:      NewHTTPClient(0, cfg.Timeout),
		logger:      logger,
	}
}

type textGenRequest struct {
	Inputs     string            `json:"inputs"`
	Parameters textGenParameters `json:"parameters"`
}

type textGenParameters struct {
	MaxNewTokens   int     `json:"max_new_tokens,omitempty"`
	Temperature    float64 `json:"temperature,omitempty"`
	ReturnFullText bool    `json:"return_full_text"`
}

type textGenOutput struct {
	GeneratedText string `json:"generated_text"`
}

// Chat flattens the conversation into one prompt and returns the generated
// text. A body in an unexpected shape is returned verbatim as the content so
// the caller can still run its own extraction over it.
func (p *TextGenProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	ctx, span := tracer.StartSpan(ctx, "llm.chat",
		trace.WithAttributes(
			tracer.StringAttr("llm.provider", p.name),
			tracer.StringAttr("llm.model", p.model),
		),
	)
	defer span.End()

	tg := textGenRequest{
		Inputs: flattenPrompt(req.Messages),
		Parameters: textGenParameters{
			MaxNewTokens: p.maxTokens,
			Temperature:  p.temperature,
		},
	}
	if req.MaxTokens > 0 {
		tg.Parameters.MaxNewTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		tg.Parameters.Temperature = req.Temperature
	}

	body, err := json.Marshal(tg)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	headers := map[string]string{}
	if p.apiKey != "" {
		headers["Authorization"] = "Bearer " + p.apiKey
	}
	respBody, err := doJSONRequest(ctx, p.client, p.url, body, headers)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	result := &domain.ChatResponse{
		Model: p.model,
		Message: domain.Message{
			Role:      domain.RoleAssistant,
			Content:   generatedText(respBody),
			Timestamp: time.Now(),
		},
		CreatedAt: time.Now(),
	}
	tracer.SetOK(span)
	logChatCompleted(p.logger, p.name, result)
	return result, nil
}

// Name implements domain.LLMProvider.
func (p *TextGenProvider) Name() string { return p.name }

// Model returns the configured model id.
func (p *TextGenProvider) Model() string { return p.model }

// generatedText accepts both the list and the single-object response shapes.
func generatedText(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	var list []textGenOutput
	if err := json.Unmarshal(trimmed, &list); err == nil && len(list) > 0 {
		return list[0].GeneratedText
	}
	var one textGenOutput
	if err := json.Unmarshal(trimmed, &one); err == nil && one.GeneratedText != "" {
		return one.GeneratedText
	}
	return string(trimmed)
}

// flattenPrompt joins message contents with blank lines.
func flattenPrompt(msgs []domain.Message) string {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		parts = append(parts, m.Content)
	}
	return strings.Join(parts, "\n\n")
}
