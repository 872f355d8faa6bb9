package usecase

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"uiagent/internal/domain"
	"uiagent/internal/infra/tracer"
)

// LegacyResponder answers the non-streaming endpoint with a single provider
// call over the UI prompt. No tools are offered.
type LegacyResponder struct {
	llm     domain.LLMProvider
	prompts *PromptBuilder
	parser  *ActionParser
	bus     domain.EventBus
	logger  *slog.Logger
	timeout time.Duration
}

// NewLegacyResponder creates a responder. bus may be nil.
func NewLegacyResponder(llm domain.LLMProvider, prompts *PromptBuilder, parser *ActionParser,
	bus domain.EventBus, logger *slog.Logger, timeout time.Duration) *LegacyResponder {
	if timeout <= 0 {
		timeout = DefaultTurnTimeout
	}
	return &LegacyResponder{
		llm:     llm,
		prompts: prompts,
		parser:  parser,
		bus:     bus,
		logger:  logger,
		timeout: timeout,
	}
}

// Respond runs the request to completion and returns the parsed plan.
func (l *LegacyResponder) Respond(ctx context.Context, req domain.AgentRequest) (domain.AgentResponse, error) {
	if err := req.Validate(); err != nil {
		return domain.AgentResponse{}, err
	}
	if req.ID == "" {
		req.ID = NewSessionID()
	}

	ctx, cancel := context.WithTimeout(domain.ContextWithSessionID(ctx, req.ID), l.timeout)
	defer cancel()

	ctx, span := tracer.StartSpan(ctx, "agent.legacy",
		trace.WithAttributes(tracer.StringAttr("llm.provider", l.llm.Name())),
	)
	defer span.End()

	resp, err := l.llm.Chat(ctx, l.prompts.BuildLegacy(req))
	if err != nil {
		tracer.RecordError(span, err)
		l.logger.Error("legacy request failed", "session_id", req.ID, "error", err)
		publishEvent(l.bus, ctx, domain.EventAgentError, req.ID, domain.ErrorPayload{
			Error: err.Error(),
			Code:  domain.ErrorCodeOf(err),
		})
		return domain.AgentResponse{}, domain.WrapOp("LegacyResponder.Respond", err)
	}

	plan := l.parser.Parse(resp.Message.Content)
	publishEvent(l.bus, ctx, domain.EventAgentCompleted, req.ID, domain.CompletedPayload{
		Reply:      plan.Reply,
		Actions:    plan.Actions,
		Iterations: 1,
		Model:      resp.Model,
		Usage:      resp.Usage,
	})
	tracer.SetOK(span)
	l.logger.Info("legacy request completed", "session_id", req.ID, "actions", len(plan.Actions))
	return plan, nil
}
