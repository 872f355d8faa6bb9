package main

import (
	"context"
	"errors"
	"log/slog"

	"uiagent/internal/adapter/llm"
	"uiagent/internal/domain"
	"uiagent/internal/infra/config"
)

// LLMComponents holds the selected provider and its request defaults.
type LLMComponents struct {
	Selection *llm.Selection
	// Streaming is nil when the provider only serves the legacy endpoint.
	Streaming   domain.StreamingLLMProvider
	Temperature float64
	MaxTokens   int
}

// initLLM builds the configured provider. A provider that cannot stream is
// accepted for the legacy endpoint only and the streaming routes stay off.
func initLLM(ctx context.Context, cfg *config.Config, log *slog.Logger) (*LLMComponents, error) {
	sel, err := llm.NewFromConfig(cfg.LLM, log)
	if err != nil {
		return nil, err
	}

	comp := &LLMComponents{Selection: sel}
	comp.Streaming, err = sel.Streaming()
	if err != nil {
		if !errors.Is(err, domain.ErrStreamingUnsupported) {
			return nil, err
		}
		log.Warn("provider cannot stream; serving /ai/agent only", "provider", sel.Name)
	}

	switch cfg.LLM.Provider {
	case config.ProviderHuggingFace:
		comp.Temperature, comp.MaxTokens = cfg.LLM.HuggingFace.Temperature, cfg.LLM.HuggingFace.MaxTokens
	default:
		comp.Temperature, comp.MaxTokens = cfg.LLM.Ollama.Temperature, cfg.LLM.Ollama.NumPredict
	}
	if cfg.Agent.Temperature != nil {
		comp.Temperature = *cfg.Agent.Temperature
	}
	if cfg.Agent.MaxTokens > 0 {
		comp.MaxTokens = cfg.Agent.MaxTokens
	}

	if sel.Ollama != nil {
		if err := sel.Ollama.Warmup(ctx); err != nil {
			log.Warn("ollama warmup failed", "model", sel.Model, "error", err)
		}
	}
	return comp, nil
}

// healthProbe returns the /healthz provider check, or nil when the provider
// has no cheap probe.
func (c *LLMComponents) healthProbe() func(context.Context) bool {
	if c.Selection.Ollama == nil {
		return nil
	}
	return c.Selection.Ollama.IsHealthy
}
