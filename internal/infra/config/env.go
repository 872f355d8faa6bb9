package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvConfigKey holds the passphrase for enc: secrets.
const EnvConfigKey = "UIAGENT_CONFIG_KEY"

// ApplyEnvOverrides maps environment variables onto config fields. Malformed
// numeric values are ignored and the configured value stays in place.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AI_PROVIDER"); v != "" {
		cfg.LLM.Provider = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("AI_HUGGINGFACE_API_KEY"); v != "" {
		cfg.LLM.HuggingFace.APIKey = v
	}
	if v := os.Getenv("AI_HUGGINGFACE_MODEL"); v != "" {
		cfg.LLM.HuggingFace.Model = v
	}
	if v := os.Getenv("AI_OLLAMA_MODEL"); v != "" {
		cfg.LLM.Ollama.Model = v
	}
	if v := os.Getenv("AI_OLLAMA_BASE_URL"); v != "" {
		cfg.LLM.Ollama.BaseURL = strings.TrimRight(v, "/")
	}

	if v := os.Getenv("PUBSUB_URL"); v != "" {
		cfg.PubSub.URL = v
		if cfg.PubSub.Backend == "" {
			cfg.PubSub.Backend = "centrifugo"
		}
	}
	if v := os.Getenv("PUBSUB_KEY"); v != "" {
		cfg.PubSub.Key = v
	}
	if v := os.Getenv("PUBSUB_CHANNEL"); v != "" {
		cfg.PubSub.Channel = v
	}
	if v := os.Getenv("UIAGENT_PUBSUB_BACKEND"); v != "" {
		cfg.PubSub.Backend = v
	}

	if v := os.Getenv("MAX_AGENT_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Agent.MaxIterations = n
		}
	}
	if v := os.Getenv("SESSION_IDLE_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Session.IdleTimeout = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("UIAGENT_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("UIAGENT_LOG_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("UIAGENT_LOG_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("UIAGENT_TRACER_ENABLED"); v != "" {
		cfg.Tracer.Enabled = v == "true" || v == "1"
		if cfg.Tracer.Enabled && cfg.Tracer.Exporter == "noop" {
			cfg.Tracer.Exporter = "stdout"
		}
	}
}
