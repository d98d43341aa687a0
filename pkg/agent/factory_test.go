package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kubeagentic/pkg/config"
)

// TestNewLLMClientProviders verifies a client is constructed for every
// supported provider and the middleware chain preserves the model name.
func TestNewLLMClientProviders(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		model    string
		endpoint string
	}{
		{"hosted openai", config.ProviderOpenAI, "gpt-4o", ""},
		{"openai with endpoint", config.ProviderOpenAI, "gpt-4o-mini", "https://gateway.internal/v1"},
		{"self-hosted vllm", config.ProviderVLLM, "meta-llama/Llama-3.1-8B-Instruct", "http://vllm.inference.svc:8000/v1"},
		{"claude", config.ProviderClaude, "claude-sonnet-4-20250514", ""},
		{"gemini", config.ProviderGemini, "gemini-2.0-flash", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.Provider = tt.provider
			cfg.Model = tt.model
			cfg.Endpoint = tt.endpoint
			cfg.APIKey = "test-key"

			client, err := NewLLMClient(cfg, nil)
			require.NoError(t, err)
			require.NotNil(t, client)
			assert.Equal(t, tt.model, client.GetModelName())
		})
	}
}

// TestNewLLMClientUnsupportedProvider verifies unknown providers are
// rejected. Config validation normally catches this first; the factory is
// the backstop.
func TestNewLLMClientUnsupportedProvider(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Provider = "alien"
	cfg.APIKey = "test-key"

	_, err := NewLLMClient(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported provider")
}
