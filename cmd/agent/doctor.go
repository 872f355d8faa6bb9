package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"uiagent/internal/infra/config"
)

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // optional fix suggestion
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(cfg *config.Config) CheckResult
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration and connectivity",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDoctor()
	},
}

// runDoctor executes all health checks and reports results.
func runDoctor() error {
	// Some checks work without a valid config.
	cfg, cfgErr := config.Load(configPath)

	checks := []Check{
		{Name: "Config file", Fn: checkConfigFile(configPath, cfgErr)},
		{Name: "LLM credentials", Fn: checkLLMCredentials},
		{Name: "LLM connectivity", Fn: checkLLMConnectivity},
		{Name: "Streaming", Fn: checkStreaming},
		{Name: "MCP servers", Fn: checkMCPServers},
		{Name: "Publisher", Fn: checkPublisher},
		{Name: "Listen address", Fn: checkListenAddr},
	}

	fmt.Println("uiagent doctor")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println()

	var pass, warn, fail int
	for _, check := range checks {
		result := check.Fn(cfg)
		result.Name = check.Name

		fmt.Printf("  %s %s: %s\n", statusIcon(result.Status), result.Name, result.Message)
		if result.Fix != "" {
			fmt.Printf("      Fix: %s\n", result.Fix)
		}

		switch result.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}

	fmt.Println()
	fmt.Println(strings.Repeat("-", 50))
	fmt.Printf("Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)

	if fail > 0 {
		return fmt.Errorf("%d check(s) failed", fail)
	}
	return nil
}

func statusIcon(s CheckStatus) string {
	switch s {
	case StatusPass:
		return "[PASS]"
	case StatusWarn:
		return "[WARN]"
	case StatusFail:
		return "[FAIL]"
	default:
		return "[????]"
	}
}

func notLoaded() CheckResult {
	return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
}

// checkConfigFile reports whether the config loaded. A missing file is only a
// warning because defaults plus environment variables are a valid setup.
func checkConfigFile(cfgPath string, cfgErr error) func(*config.Config) CheckResult {
	return func(_ *config.Config) CheckResult {
		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config error: %v", cfgErr),
				Fix:     "Check config.yaml syntax and the AI_* environment variables",
			}
		}
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("%s not found, using defaults and environment", cfgPath),
			}
		}
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("config loaded from %s", cfgPath),
		}
	}
}

func checkLLMCredentials(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded()
	}
	if cfg.LLM.Provider != config.ProviderHuggingFace {
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("%s needs no API key", cfg.LLM.Provider),
		}
	}
	if cfg.LLM.HuggingFace.APIKey == "" {
		return CheckResult{
			Status:  StatusFail,
			Message: "huggingface selected but no API key configured",
			Fix:     "Set AI_HUGGINGFACE_API_KEY",
		}
	}
	return CheckResult{Status: StatusPass, Message: "huggingface API key configured"}
}

// checkLLMConnectivity issues one cheap GET against the provider.
func checkLLMConnectivity(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded()
	}

	endpoint, token := providerEndpoint(cfg.LLM)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return CheckResult{Status: StatusFail, Message: fmt.Sprintf("bad endpoint %s: %v", endpoint, err)}
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := http.DefaultClient.Do(req)
	latency := time.Since(start)
	if err != nil {
		fix := "Check your network connection"
		if cfg.LLM.Provider != config.ProviderHuggingFace {
			fix = "Start Ollama with 'ollama serve' or set AI_OLLAMA_BASE_URL"
		}
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("cannot reach %s: %v", endpoint, err),
			Fix:     fix,
		}
	}
	resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("%s rejected the credentials (HTTP %d)", endpoint, resp.StatusCode),
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%s reachable (latency: %dms)", cfg.LLM.Provider, latency.Milliseconds()),
	}
}

// providerEndpoint returns a probe URL for the configured provider and the
// bearer token to send with it.
func providerEndpoint(cfg config.LLMConfig) (string, string) {
	if cfg.Provider == config.ProviderHuggingFace {
		base := cfg.HuggingFace.BaseURL
		if cfg.HuggingFace.Mode == config.HFModeTextGen {
			base = cfg.HuggingFace.TextGenURL
		}
		return strings.TrimRight(base, "/") + "/models", cfg.HuggingFace.APIKey
	}
	base := cfg.Ollama.BaseURL
	if base == "" {
		base = "http://localhost:11434"
	}
	return strings.TrimRight(base, "/") + "/api/tags", ""
}

func checkStreaming(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded()
	}
	if cfg.LLM.Provider == config.ProviderHuggingFace && cfg.LLM.HuggingFace.Mode == config.HFModeTextGen {
		return CheckResult{
			Status:  StatusWarn,
			Message: "text-generation endpoint cannot stream; only /ai/agent will be served",
			Fix:     "Set llm.huggingface.mode to chat for /ai/chat and /ai/stream",
		}
	}
	return CheckResult{Status: StatusPass, Message: "streaming endpoints enabled"}
}

// checkMCPServers verifies stdio commands resolve on PATH and HTTP URLs parse.
func checkMCPServers(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded()
	}
	if len(cfg.MCP.Servers) == 0 {
		return CheckResult{Status: StatusPass, Message: "no MCP servers configured"}
	}

	var problems []string
	for _, srv := range cfg.MCP.Servers {
		switch srv.Transport {
		case "http":
			if u, err := url.Parse(srv.URL); err != nil || u.Host == "" {
				problems = append(problems, fmt.Sprintf("%s: invalid url %q", srv.Name, srv.URL))
			}
		default:
			if _, err := exec.LookPath(srv.Command); err != nil {
				problems = append(problems, fmt.Sprintf("%s: command %q not found", srv.Name, srv.Command))
			}
		}
	}
	if len(problems) > 0 {
		return CheckResult{
			Status:  StatusFail,
			Message: strings.Join(problems, "; "),
			Fix:     "Install the server binaries or fix mcp.servers in config.yaml",
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%d server(s) configured", len(cfg.MCP.Servers)),
	}
}

// checkPublisher dials the pub/sub backend's host.
func checkPublisher(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded()
	}
	if !cfg.PubSub.Enabled() {
		return CheckResult{Status: StatusPass, Message: "publisher disabled"}
	}

	u, err := url.Parse(cfg.PubSub.URL)
	if err != nil || u.Host == "" {
		return CheckResult{Status: StatusFail, Message: fmt.Sprintf("invalid pubsub url %q", cfg.PubSub.URL)}
	}
	host := u.Host
	if u.Port() == "" {
		port := "80"
		switch u.Scheme {
		case "https":
			port = "443"
		case "redis", "rediss":
			port = "6379"
		}
		host = net.JoinHostPort(u.Hostname(), port)
	}

	conn, err := net.DialTimeout("tcp", host, 5*time.Second)
	if err != nil {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("%s at %s unreachable: %v (publishes will be logged and dropped)", cfg.PubSub.Backend, host, err),
		}
	}
	conn.Close()
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%s reachable at %s, channel %s", cfg.PubSub.Backend, host, cfg.PubSub.Channel),
	}
}

// checkListenAddr verifies the server address can be bound.
func checkListenAddr(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded()
	}
	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("cannot listen on %s: %v", cfg.Server.Addr, err),
			Fix:     "Stop the process using the port or set UIAGENT_ADDR",
		}
	}
	ln.Close()
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("%s available", cfg.Server.Addr)}
}
