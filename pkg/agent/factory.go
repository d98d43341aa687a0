// Package agent assembles the configured provider client, the optional
// workflow engine, and conversation bookkeeping behind a single chat
// entrypoint.
package agent

import (
	"fmt"

	"kubeagentic/pkg/agent/internal/llmimpl/anthropic"
	"kubeagentic/pkg/agent/internal/llmimpl/google"
	"kubeagentic/pkg/agent/internal/llmimpl/openaicompat"
	"kubeagentic/pkg/agent/llm"
	"kubeagentic/pkg/agent/middleware/metrics"
	"kubeagentic/pkg/agent/middleware/resilience/retry"
	"kubeagentic/pkg/agent/middleware/resilience/timeout"
	"kubeagentic/pkg/config"
	"kubeagentic/pkg/logx"
)

// NewLLMClient creates the provider client for cfg with the full middleware
// chain. The openai and vllm providers share one implementation because vLLM
// serves the same chat-completions protocol; they differ only in base URL.
func NewLLMClient(cfg *config.Config, recorder metrics.Recorder) (llm.LLMClient, error) {
	if recorder == nil {
		recorder = metrics.Nop()
	}

	var rawClient llm.LLMClient
	switch cfg.Provider {
	case config.ProviderOpenAI, config.ProviderVLLM:
		rawClient = openaicompat.NewClient(cfg.APIKey, cfg.Model, cfg.Endpoint)
	case config.ProviderClaude:
		rawClient = anthropic.NewClaudeClient(cfg.APIKey, cfg.Model)
	case config.ProviderGemini:
		rawClient = google.NewGeminiClient(cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}

	retryPolicy := retry.NewPolicy(retry.Config{
		MaxAttempts:   cfg.Retry.MaxAttempts,
		InitialDelay:  cfg.Retry.InitialDelay(),
		MaxDelay:      cfg.Retry.MaxDelay(),
		BackoffFactor: cfg.Retry.BackoffFactor,
		Jitter:        cfg.Retry.Jitter,
	}, nil) // Use default classifier

	// Build the middleware chain in the correct order:
	// Metrics -> Retry -> Timeout -> RawClient
	client := llm.Chain(rawClient,
		metrics.Middleware(recorder, nil, cfg.Provider, logx.NewLogger("llm")),
		retry.Middleware(retryPolicy),
		timeout.Middleware(cfg.Request.Timeout()),
	)

	return client, nil
}
