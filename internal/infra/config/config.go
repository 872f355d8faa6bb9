package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Provider names accepted by llm.provider / AI_PROVIDER.
const (
	ProviderHuggingFace  = "huggingface"
	ProviderOllama       = "ollama"
	ProviderOllamaCustom = "ollama-custom"
)

// HuggingFace endpoint modes.
const (
	HFModeChat     = "chat"
	HFModeTextGen  = "textgen"
	DefaultChannel = "partho_ai_chat"
)

// Config is the top-level application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Agent   AgentConfig   `yaml:"agent"`
	Session SessionConfig `yaml:"session"`
	LLM     LLMConfig     `yaml:"llm"`
	PubSub  PubSubConfig  `yaml:"pubsub"`
	MCP     MCPConfig     `yaml:"mcp"`
	Logger  LoggerConfig  `yaml:"logger"`
	Tracer  TracerConfig  `yaml:"tracer"`
}

// ServerConfig holds HTTP gateway settings.
type ServerConfig struct {
	Addr        string          `yaml:"addr"`
	Pacing      time.Duration   `yaml:"pacing"` // delay between SSE frames, 0 disables
	CORSOrigins []string        `yaml:"cors_origins"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
	Monitor     MonitorConfig   `yaml:"monitor"`
}

// RateLimitConfig configures the per-IP limiter.
type RateLimitConfig struct {
	RequestsPerMin int `yaml:"requests_per_min"` // 0 disables
	Burst          int `yaml:"burst"`
}

// MonitorConfig enables the /ws event monitor.
type MonitorConfig struct {
	Enabled bool     `yaml:"enabled"`
	Tokens  []string `yaml:"tokens,omitempty"`
}

// AgentConfig holds agent loop settings.
type AgentConfig struct {
	MaxIterations  int           `yaml:"max_iterations"`
	TurnTimeout    time.Duration `yaml:"turn_timeout"`
	ToolTimeout    time.Duration `yaml:"tool_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	ResultCapBytes int           `yaml:"result_cap_bytes"`
	// Temperature and MaxTokens override the provider defaults when set.
	Temperature *float64 `yaml:"temperature,omitempty"`
	MaxTokens   int      `yaml:"max_tokens,omitempty"`
	StrictTools bool     `yaml:"strict_tools"`
}

// SessionConfig holds session store settings.
type SessionConfig struct {
	IdleTimeout   time.Duration `yaml:"idle_timeout"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// LLMConfig selects and configures the model provider.
type LLMConfig struct {
	Provider       string               `yaml:"provider"`
	HuggingFace    HuggingFaceConfig    `yaml:"huggingface"`
	Ollama         OllamaConfig         `yaml:"ollama"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// HuggingFaceConfig configures the HF router or text-generation endpoint.
type HuggingFaceConfig struct {
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	BaseURL     string        `yaml:"base_url"`
	TextGenURL  string        `yaml:"textgen_url"` // model URL prefix for mode textgen
	Mode        string        `yaml:"mode"`        // "chat" or "textgen"
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
}

// OllamaConfig configures the native Ollama driver.
type OllamaConfig struct {
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	Think       bool          `yaml:"think"`
	Temperature float64       `yaml:"temperature"`
	NumPredict  int           `yaml:"num_predict"`
	KeepAlive   string        `yaml:"keep_alive,omitempty"`
	Timeout     time.Duration `yaml:"timeout"`
}

// CircuitBreakerConfig configures the breaker around the provider.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`  // open -> half-open
	Interval    time.Duration `yaml:"interval"` // closed-state counter reset
}

// PubSubConfig configures the external publisher.
type PubSubConfig struct {
	Backend  string `yaml:"backend"` // "", "centrifugo" or "redis"
	URL      string `yaml:"url"`
	Key      string `yaml:"key"`
	Channel  string `yaml:"channel"`
	PerEvent bool   `yaml:"per_event"`
}

// Enabled reports whether a publisher backend is configured.
func (p PubSubConfig) Enabled() bool { return p.Backend != "" }

// MCPConfig lists MCP tool servers.
type MCPConfig struct {
	Servers []MCPServer `yaml:"servers,omitempty"`
}

// MCPServer configures an MCP server connection.
type MCPServer struct {
	Name      string            `yaml:"name"`
	Transport string            `yaml:"transport"` // "stdio" or "http"
	Command   string            `yaml:"command,omitempty"`
	Args      []string          `yaml:"args,omitempty"`
	URL       string            `yaml:"url,omitempty"`
	Env       map[string]string `yaml:"env,omitempty"`
	Timeout   time.Duration     `yaml:"timeout,omitempty"` // per call, default 30s
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:        ":8080",
			Pacing:      20 * time.Millisecond,
			CORSOrigins: []string{"http://localhost:4200"},
			RateLimit: RateLimitConfig{
				RequestsPerMin: 120,
				Burst:          20,
			},
		},
		Agent: AgentConfig{
			MaxIterations:  10,
			TurnTimeout:    120 * time.Second,
			ToolTimeout:    30 * time.Second,
			RequestTimeout: 600 * time.Second,
			ResultCapBytes: 16 * 1024,
		},
		Session: SessionConfig{
			IdleTimeout:   600 * time.Second,
			SweepInterval: 30 * time.Second,
		},
		LLM: LLMConfig{
			Provider: ProviderOllamaCustom,
			HuggingFace: HuggingFaceConfig{
				Model:       "tiiuae/falcon-7b-instruct",
				BaseURL:     "https://router.huggingface.co/v1",
				TextGenURL:  "https://router.huggingface.co/hf-inference/models",
				Mode:        HFModeChat,
				Temperature: 0.3,
				MaxTokens:   1000,
				Timeout:     120 * time.Second,
			},
			Ollama: OllamaConfig{
				BaseURL:     "http://localhost:11434",
				Model:       "llama3.2:3b",
				Think:       true,
				Temperature: 0.2,
				NumPredict:  10000,
				Timeout:     120 * time.Second,
			},
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		PubSub: PubSubConfig{
			Channel: DefaultChannel,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// LoadDotEnv loads KEY=VALUE pairs from the given files (".env" when none are
// given) into the process environment. Missing files are ignored and existing
// variables are never overwritten.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads a YAML config file, applies env var overrides, and decrypts secrets.
// A missing file yields the defaults plus env overrides.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return finish(cfg)
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	ApplyEnvOverrides(cfg)

	if passphrase := os.Getenv(EnvConfigKey); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validatePermissions checks the config file has restrictive permissions.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// 0600 and 0644 are fine; group/other write is not.
	if mode&0o022 != 0 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
