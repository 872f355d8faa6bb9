package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Agent.MaxIterations != 10 {
		t.Errorf("MaxIterations = %d, want 10", cfg.Agent.MaxIterations)
	}
	if cfg.LLM.Provider != ProviderOllamaCustom {
		t.Errorf("Provider = %q, want %q", cfg.LLM.Provider, ProviderOllamaCustom)
	}
	if cfg.LLM.HuggingFace.Model != "tiiuae/falcon-7b-instruct" {
		t.Errorf("HF model = %q", cfg.LLM.HuggingFace.Model)
	}
	if cfg.LLM.Ollama.Model != "llama3.2:3b" {
		t.Errorf("Ollama model = %q", cfg.LLM.Ollama.Model)
	}
	if cfg.Session.IdleTimeout != 600*time.Second {
		t.Errorf("IdleTimeout = %v, want 10m", cfg.Session.IdleTimeout)
	}
	if cfg.PubSub.Channel != DefaultChannel {
		t.Errorf("Channel = %q, want %q", cfg.PubSub.Channel, DefaultChannel)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadNonExistentReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Agent.MaxIterations != 10 {
		t.Errorf("expected defaults, got MaxIterations=%d", cfg.Agent.MaxIterations)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: "127.0.0.1:9000"
  pacing: 10ms
agent:
  max_iterations: 4
  tool_timeout: 5s
llm:
  provider: huggingface
  huggingface:
    api_key: "hf-test"
    model: "meta-llama/Llama-3.1-8B-Instruct"
pubsub:
  backend: redis
  url: "redis://localhost:6379/0"
  per_event: true
mcp:
  servers:
    - name: restaurant
      transport: stdio
      command: ./restaurant-server
logger:
  level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:9000" || cfg.Server.Pacing != 10*time.Millisecond {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Agent.MaxIterations != 4 || cfg.Agent.ToolTimeout != 5*time.Second {
		t.Errorf("agent = %+v", cfg.Agent)
	}
	if cfg.Agent.TurnTimeout != 120*time.Second {
		t.Errorf("unset fields keep defaults, TurnTimeout = %v", cfg.Agent.TurnTimeout)
	}
	if cfg.LLM.Provider != ProviderHuggingFace || cfg.LLM.HuggingFace.APIKey != "hf-test" {
		t.Errorf("llm = %+v", cfg.LLM)
	}
	if cfg.LLM.HuggingFace.Mode != HFModeChat {
		t.Errorf("Mode = %q, want default %q", cfg.LLM.HuggingFace.Mode, HFModeChat)
	}
	if !cfg.PubSub.Enabled() || !cfg.PubSub.PerEvent || cfg.PubSub.Channel != DefaultChannel {
		t.Errorf("pubsub = %+v", cfg.PubSub)
	}
	if len(cfg.MCP.Servers) != 1 || cfg.MCP.Servers[0].Command != "./restaurant-server" {
		t.Errorf("mcp = %+v", cfg.MCP)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "agent: [unclosed")
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoadInsecurePermissions(t *testing.T) {
	path := writeConfig(t, "agent:\n  max_iterations: 5\n")
	if err := os.Chmod(path, 0666); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for insecure permissions")
	}
}

func TestLoadValidationFailure(t *testing.T) {
	path := writeConfig(t, "llm:\n  provider: huggingface\n")
	t.Setenv("AI_HUGGINGFACE_API_KEY", "")

	_, err := Load(path)
	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("err = %v, want *ValidationError", err)
	}
	assertContains(t, ve.Error(), "api_key is required")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("AI_PROVIDER", "HuggingFace")
	t.Setenv("AI_HUGGINGFACE_API_KEY", "hf-env")
	t.Setenv("AI_HUGGINGFACE_MODEL", "mistralai/Mistral-7B")
	t.Setenv("AI_OLLAMA_MODEL", "qwen3:8b")
	t.Setenv("AI_OLLAMA_BASE_URL", "http://ollama:11434/")
	t.Setenv("MAX_AGENT_ITERATIONS", "3")
	t.Setenv("SESSION_IDLE_SECONDS", "60")
	t.Setenv("UIAGENT_ADDR", ":9999")
	t.Setenv("UIAGENT_LOG_LEVEL", "debug")
	t.Setenv("UIAGENT_TRACER_ENABLED", "true")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)

	if cfg.LLM.Provider != ProviderHuggingFace {
		t.Errorf("Provider = %q", cfg.LLM.Provider)
	}
	if cfg.LLM.HuggingFace.APIKey != "hf-env" || cfg.LLM.HuggingFace.Model != "mistralai/Mistral-7B" {
		t.Errorf("hf = %+v", cfg.LLM.HuggingFace)
	}
	if cfg.LLM.Ollama.Model != "qwen3:8b" || cfg.LLM.Ollama.BaseURL != "http://ollama:11434" {
		t.Errorf("ollama = %+v", cfg.LLM.Ollama)
	}
	if cfg.Agent.MaxIterations != 3 {
		t.Errorf("MaxIterations = %d, want 3", cfg.Agent.MaxIterations)
	}
	if cfg.Session.IdleTimeout != time.Minute {
		t.Errorf("IdleTimeout = %v, want 1m", cfg.Session.IdleTimeout)
	}
	if cfg.Server.Addr != ":9999" || cfg.Logger.Level != "debug" {
		t.Errorf("server/logger not overridden: %q %q", cfg.Server.Addr, cfg.Logger.Level)
	}
	if !cfg.Tracer.Enabled || cfg.Tracer.Exporter != "stdout" {
		t.Errorf("tracer = %+v", cfg.Tracer)
	}
}

func TestEnvOverridesPubSub(t *testing.T) {
	t.Setenv("PUBSUB_URL", "http://centrifugo:8000/api")
	t.Setenv("PUBSUB_KEY", "secret")
	t.Setenv("PUBSUB_CHANNEL", "ui")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)

	if cfg.PubSub.Backend != "centrifugo" {
		t.Errorf("Backend = %q, want centrifugo", cfg.PubSub.Backend)
	}
	if cfg.PubSub.Key != "secret" || cfg.PubSub.Channel != "ui" {
		t.Errorf("pubsub = %+v", cfg.PubSub)
	}
}

func TestEnvOverridesIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("MAX_AGENT_ITERATIONS", "lots")
	cfg := Defaults()
	ApplyEnvOverrides(cfg)
	if cfg.Agent.MaxIterations != 10 {
		t.Errorf("MaxIterations = %d, want 10", cfg.Agent.MaxIterations)
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("UIAGENT_DOTENV_PROBE=loaded\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("UIAGENT_DOTENV_PROBE", "")
	os.Unsetenv("UIAGENT_DOTENV_PROBE")

	if err := LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("UIAGENT_DOTENV_PROBE"); got != "loaded" {
		t.Errorf("probe = %q, want loaded", got)
	}
}
