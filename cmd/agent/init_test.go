package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uiagent/internal/infra/config"
	"uiagent/internal/infra/logger"
	"uiagent/internal/usecase/eventbus"
)

func fakeOllama(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestInitRuntimeStreaming(t *testing.T) {
	cfg := config.Defaults()
	cfg.LLM.Ollama.BaseURL = fakeOllama(t).URL
	cfg.PubSub = config.PubSubConfig{Backend: "redis", URL: "redis://127.0.0.1:1/0", Channel: "test"}
	log := logger.Discard()

	llmComp, err := initLLM(context.Background(), cfg, log)
	require.NoError(t, err)
	require.NotNil(t, llmComp.Streaming)
	assert.InDelta(t, 0.2, llmComp.Temperature, 1e-9)
	assert.Equal(t, 10000, llmComp.MaxTokens)
	assert.NotNil(t, llmComp.healthProbe())

	tools, cleanup, err := initTools(context.Background(), cfg, log)
	require.NoError(t, err)
	defer cleanup()
	assert.Equal(t, 2, tools.Len())

	bus := eventbus.New(log)
	defer bus.Close()
	rt, err := initRuntime(cfg, llmComp, tools, bus, log)
	require.NoError(t, err)
	assert.NotNil(t, rt.Agent)
	assert.NotNil(t, rt.Forwarder)
	require.NoError(t, rt.Close(context.Background()))
}

func TestInitRuntimeTextGenIsLegacyOnly(t *testing.T) {
	cfg := config.Defaults()
	cfg.LLM.Provider = config.ProviderHuggingFace
	cfg.LLM.HuggingFace.Mode = config.HFModeTextGen
	cfg.LLM.HuggingFace.APIKey = "hf_test"
	temp := 0.7
	cfg.Agent.Temperature = &temp
	cfg.Agent.MaxTokens = 256
	log := logger.Discard()

	llmComp, err := initLLM(context.Background(), cfg, log)
	require.NoError(t, err)
	assert.Nil(t, llmComp.Streaming)
	assert.Nil(t, llmComp.healthProbe())
	assert.InDelta(t, 0.7, llmComp.Temperature, 1e-9)
	assert.Equal(t, 256, llmComp.MaxTokens)

	tools, cleanup, err := initTools(context.Background(), cfg, log)
	require.NoError(t, err)
	defer cleanup()

	rt, err := initRuntime(cfg, llmComp, tools, nil, log)
	require.NoError(t, err)
	assert.Nil(t, rt.Agent)
	assert.Nil(t, rt.Forwarder)
	assert.NotNil(t, rt.Legacy)
}

func TestEncryptCommand(t *testing.T) {
	t.Setenv(config.EnvConfigKey, "passphrase")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"encrypt", "--env-file", t.TempDir() + "/none.env", "hf_secret"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})
	require.NoError(t, rootCmd.Execute())

	enc, ok := strings.CutPrefix(strings.TrimSpace(out.String()), "enc:")
	require.True(t, ok, out.String())
	plain, err := config.DecryptValue(enc, "passphrase")
	require.NoError(t, err)
	assert.Equal(t, "hf_secret", plain)
}
