package config

import (
	"fmt"
	"net"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// listing every problem found.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateServer(cfg, ve)
	validateAgent(cfg, ve)
	validateSession(cfg, ve)
	validateLLM(cfg, ve)
	validatePubSub(cfg, ve)
	validateMCP(cfg, ve)
	validateLogger(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateServer(cfg *Config, ve *ValidationError) {
	if cfg.Server.Addr == "" {
		ve.Add("server.addr must not be empty")
	} else if _, _, err := net.SplitHostPort(cfg.Server.Addr); err != nil {
		ve.Add("server.addr %q is not host:port: %v", cfg.Server.Addr, err)
	}
	if cfg.Server.Pacing < 0 || cfg.Server.Pacing.Milliseconds() > 50 {
		ve.Add("server.pacing must be between 0 and 50ms")
	}
	if cfg.Server.RateLimit.RequestsPerMin < 0 {
		ve.Add("server.rate_limit.requests_per_min must be >= 0")
	}
	if cfg.Server.RateLimit.RequestsPerMin > 0 && cfg.Server.RateLimit.Burst <= 0 {
		ve.Add("server.rate_limit.burst must be > 0 when rate limiting is on")
	}
	if cfg.Server.Monitor.Enabled && len(cfg.Server.Monitor.Tokens) == 0 {
		ve.Add("server.monitor.tokens must not be empty when the monitor is enabled")
	}
}

func validateAgent(cfg *Config, ve *ValidationError) {
	a := cfg.Agent
	if a.MaxIterations <= 0 {
		ve.Add("agent.max_iterations must be > 0")
	}
	if a.TurnTimeout <= 0 {
		ve.Add("agent.turn_timeout must be > 0")
	}
	if a.ToolTimeout <= 0 {
		ve.Add("agent.tool_timeout must be > 0")
	}
	if a.RequestTimeout <= 0 {
		ve.Add("agent.request_timeout must be > 0")
	}
	if a.ResultCapBytes <= 0 {
		ve.Add("agent.result_cap_bytes must be > 0")
	}
	if a.Temperature != nil && (*a.Temperature < 0 || *a.Temperature > 2) {
		ve.Add("agent.temperature must be between 0 and 2")
	}
	if a.MaxTokens < 0 {
		ve.Add("agent.max_tokens must be >= 0")
	}
}

func validateSession(cfg *Config, ve *ValidationError) {
	if cfg.Session.IdleTimeout <= 0 {
		ve.Add("session.idle_timeout must be > 0")
	}
	if cfg.Session.SweepInterval <= 0 {
		ve.Add("session.sweep_interval must be > 0")
	}
}

func validateLLM(cfg *Config, ve *ValidationError) {
	switch cfg.LLM.Provider {
	case ProviderHuggingFace:
		hf := cfg.LLM.HuggingFace
		if hf.APIKey == "" {
			ve.Add("llm.huggingface.api_key is required (AI_HUGGINGFACE_API_KEY)")
		}
		if hf.Model == "" {
			ve.Add("llm.huggingface.model must not be empty")
		}
		if hf.Mode != HFModeChat && hf.Mode != HFModeTextGen {
			ve.Add("llm.huggingface.mode %q must be %q or %q", hf.Mode, HFModeChat, HFModeTextGen)
		}
	case ProviderOllama, ProviderOllamaCustom:
		if cfg.LLM.Ollama.BaseURL == "" {
			ve.Add("llm.ollama.base_url must not be empty")
		}
		if cfg.LLM.Ollama.Model == "" {
			ve.Add("llm.ollama.model must not be empty")
		}
	default:
		ve.Add("llm.provider %q must be one of %s, %s, %s",
			cfg.LLM.Provider, ProviderHuggingFace, ProviderOllama, ProviderOllamaCustom)
	}

	cb := cfg.LLM.CircuitBreaker
	if cb.Enabled {
		if cb.MaxFailures == 0 {
			ve.Add("llm.circuit_breaker.max_failures must be > 0")
		}
		if cb.Timeout <= 0 {
			ve.Add("llm.circuit_breaker.timeout must be > 0")
		}
	}
}

func validatePubSub(cfg *Config, ve *ValidationError) {
	p := cfg.PubSub
	switch p.Backend {
	case "":
		return
	case "centrifugo", "redis":
	default:
		ve.Add("pubsub.backend %q must be centrifugo or redis", p.Backend)
	}
	if p.URL == "" {
		ve.Add("pubsub.url is required when pubsub.backend is set")
	}
	if p.Channel == "" {
		ve.Add("pubsub.channel must not be empty")
	}
}

func validateMCP(cfg *Config, ve *ValidationError) {
	names := make(map[string]bool)
	for i, s := range cfg.MCP.Servers {
		if s.Name == "" {
			ve.Add("mcp.servers[%d].name must not be empty", i)
		} else if names[s.Name] {
			ve.Add("mcp.servers[%d].name %q is duplicate", i, s.Name)
		}
		names[s.Name] = true
		if s.Timeout < 0 {
			ve.Add("mcp.servers[%d].timeout must not be negative", i)
		}

		switch s.Transport {
		case "stdio", "":
			if s.Command == "" {
				ve.Add("mcp.servers[%d].command is required for stdio transport", i)
			}
		case "http":
			if s.URL == "" {
				ve.Add("mcp.servers[%d].url is required for http transport", i)
			}
		default:
			ve.Add("mcp.servers[%d].transport %q must be stdio or http", i, s.Transport)
		}
	}
}

func validateLogger(cfg *Config, ve *ValidationError) {
	switch strings.ToLower(cfg.Logger.Format) {
	case "", "text", "json", "tint":
	default:
		ve.Add("logger.format %q must be text, json or tint", cfg.Logger.Format)
	}
}
