package llm

import (
	"fmt"
	"log/slog"

	"uiagent/internal/domain"
	"uiagent/internal/infra/config"
)

// Selection is the provider setup chosen by llm.provider.
type Selection struct {
	Name  string
	Model string
	// Tools reports whether registry tools are advertised to the model.
	Tools bool
	// Think asks the provider for a separate thinking trace.
	Think bool
	// Legacy serves the non-streaming request path.
	Legacy domain.LLMProvider
	// Ollama is the native handle for model listing and warmup; nil for HuggingFace.
	Ollama *OllamaProvider

	stream domain.StreamingLLMProvider
}

// Streaming returns the provider for the streaming agent loop, or
// ErrStreamingUnsupported when the configured endpoint cannot stream.
func (s *Selection) Streaming() (domain.StreamingLLMProvider, error) {
	if s.stream == nil {
		return nil, domain.NewDomainError("Selection.Streaming", domain.ErrStreamingUnsupported, s.Name)
	}
	return s.stream, nil
}

// NewFromConfig builds the provider profile for cfg.Provider:
//
//	huggingface    OpenAI-shaped router with tools (mode chat), or text generation (mode textgen, legacy only)
//	ollama-custom  native Ollama with tools and thinking
//	ollama         native Ollama, plain chat without tools
func NewFromConfig(cfg config.LLMConfig, logger *slog.Logger) (*Selection, error) {
	var sel *Selection

	switch cfg.Provider {
	case config.ProviderHuggingFace:
		hf := cfg.HuggingFace
		if hf.Mode == config.HFModeTextGen {
			tg := NewTextGenProvider(TextGenConfig{
				Name:        config.ProviderHuggingFace,
				Model:       hf.Model,
				APIKey:      hf.APIKey,
				BaseURL:     hf.TextGenURL,
				Temperature: hf.Temperature,
				MaxTokens:   hf.MaxTokens,
				Timeout:     hf.Timeout,
			}, logger)
			return &Selection{
				Name:   tg.Name(),
				Model:  hf.Model,
				Legacy: withBreaker(tg, cfg.CircuitBreaker, logger),
			}, nil
		}
		p := NewOpenAIProvider(OpenAIConfig{
			Name:        config.ProviderHuggingFace,
			Model:       hf.Model,
			APIKey:      hf.APIKey,
			BaseURL:     hf.BaseURL,
			Temperature: hf.Temperature,
			MaxTokens:   hf.MaxTokens,
			Timeout:     hf.Timeout,
		}, logger)
		sel = &Selection{Name: p.Name(), Model: p.Model(), Tools: true}
		sel.setProvider(p, cfg.CircuitBreaker, logger)

	case config.ProviderOllamaCustom:
		p := NewOllamaProvider(config.ProviderOllamaCustom, cfg.Ollama, logger)
		sel = &Selection{Name: p.Name(), Model: p.Model(), Tools: true, Think: cfg.Ollama.Think, Ollama: p}
		sel.setProvider(p, cfg.CircuitBreaker, logger)

	case config.ProviderOllama:
		p := NewOllamaProvider(config.ProviderOllama, cfg.Ollama, logger)
		sel = &Selection{Name: p.Name(), Model: p.Model(), Ollama: p}
		sel.setProvider(p, cfg.CircuitBreaker, logger)

	default:
		return nil, domain.NewDomainError("llm.NewFromConfig", domain.ErrProviderNotFound,
			fmt.Sprintf("unknown provider %q", cfg.Provider))
	}

	logger.Info("llm provider selected",
		"provider", sel.Name,
		"model", sel.Model,
		"tools", sel.Tools,
		"think", sel.Think,
		"circuit_breaker", cfg.CircuitBreaker.Enabled,
	)
	return sel, nil
}

func (s *Selection) setProvider(p domain.StreamingLLMProvider, cb config.CircuitBreakerConfig, logger *slog.Logger) {
	if cb.Enabled {
		wrapped := NewCircuitBreakerProvider(p, cb, logger)
		s.Legacy, s.stream = wrapped, wrapped
		return
	}
	s.Legacy, s.stream = p, p
}

func withBreaker(p domain.LLMProvider, cb config.CircuitBreakerConfig, logger *slog.Logger) domain.LLMProvider {
	if !cb.Enabled {
		return p
	}
	return NewCircuitBreakerProvider(p, cb, logger)
}
