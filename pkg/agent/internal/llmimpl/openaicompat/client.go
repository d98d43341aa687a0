// Package openaicompat provides the chat-completions client used for
// OpenAI-compatible backends: the hosted OpenAI API and self-hosted vLLM
// servers, which speak the same wire protocol behind a different base URL.
package openaicompat

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"kubeagentic/pkg/agent/llm"
	"kubeagentic/pkg/agent/llmerrors"
	"kubeagentic/pkg/logx"
)

// Client wraps the official OpenAI Go client to implement llm.LLMClient interface.
type Client struct {
	client openai.Client
	model  string
	logger *logx.Logger
}

// NewClient creates a raw OpenAI-compatible client (middleware applied at higher level).
// An empty endpoint targets the hosted OpenAI API; a non-empty endpoint points the
// client at any compatible server, which is how vLLM deployments are reached.
func NewClient(apiKey, model, endpoint string) llm.LLMClient {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if endpoint != "" {
		opts = append(opts, option.WithBaseURL(endpoint))
	}
	return &Client{
		client: openai.NewClient(opts...),
		model:  model,
		logger: logx.NewLogger("openai"),
	}
}

// Complete implements the llm.LLMClient interface using the chat completions API.
func (c *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	if len(in.Messages) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, "message list cannot be empty")
	}

	// Convert messages to OpenAI format
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(in.Messages))
	for i := range in.Messages {
		msg := &in.Messages[i]
		switch msg.Role {
		case llm.RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))
		case llm.RoleUser:
			messages = append(messages, openai.UserMessage(msg.Content))
		case llm.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		default:
			return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt,
				"unsupported message role: "+string(msg.Role))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: messages,
	}

	if in.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(in.MaxTokens))
	}
	if in.Temperature > 0 {
		params.Temperature = openai.Float(float64(in.Temperature))
	}

	response, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		classifiedErr := c.classifyError(err)
		c.logger.Debug("OpenAI API error (%s): %v", classifiedErr.Type, err)
		return llm.CompletionResponse{}, classifiedErr
	}

	if response == nil || len(response.Choices) == 0 {
		// Empty response is a specific type of retryable error
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "no response choices returned")
	}

	choice := response.Choices[0]
	return llm.CompletionResponse{
		Content:    choice.Message.Content,
		StopReason: choice.FinishReason,
	}, nil
}

// Stream implements the llm.LLMClient interface.
func (c *Client) Stream(ctx context.Context, in llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	return llm.SingleChunkStream(ctx, in, c.Complete)
}

// GetModelName returns the model name for this client.
func (c *Client) GetModelName() string {
	return c.model
}

// classifyError maps OpenAI SDK errors to our structured error types.
func (c *Client) classifyError(err error) *llmerrors.Error {
	if err == nil {
		return nil
	}

	// Check for context-related errors first
	if errors.Is(err, context.DeadlineExceeded) {
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "request timeout")
	}
	if errors.Is(err, context.Canceled) {
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "request canceled")
	}

	errStr := err.Error()
	lowerStr := strings.ToLower(errStr)

	// Classify by HTTP status when the SDK error carries one
	if statusCode := extractStatusCode(errStr); statusCode > 0 {
		switch {
		case statusCode == 401 || statusCode == 403:
			return llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeAuth, statusCode, "authentication failed - check API key")
		case statusCode == 429:
			return llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeRateLimit, statusCode, "rate limit exceeded")
		case statusCode == 400 || statusCode == 404 || statusCode == 422:
			return llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeBadPrompt, statusCode, "bad request - check prompt format and parameters")
		case statusCode >= 500:
			return llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeTransient, statusCode, "server error")
		}
	}

	// Check for common network and connection errors
	if strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "network") ||
		strings.Contains(errStr, "temporary") ||
		strings.Contains(errStr, "EOF") ||
		strings.Contains(errStr, "reset") {
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "network or connection error")
	}

	// Check for rate limiting text patterns
	if strings.Contains(lowerStr, "rate") ||
		strings.Contains(lowerStr, "quota") {
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeRateLimit, err, "rate limiting detected")
	}

	// Check for authentication-related text patterns
	if strings.Contains(lowerStr, "auth") ||
		strings.Contains(lowerStr, "api key") ||
		strings.Contains(lowerStr, "unauthorized") {
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeAuth, err, "authentication error")
	}

	// Default to unknown error type
	return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeUnknown, err, "unclassified error")
}

// extractStatusCode attempts to pull an HTTP status code out of an error string.
// Returns 0 if no status code can be found.
func extractStatusCode(errStr string) int {
	lowered := strings.ToLower(errStr)
	patterns := []string{"status code: ", "status: ", "http ", "code "}

	for _, pattern := range patterns {
		idx := strings.Index(lowered, pattern)
		if idx == -1 {
			continue
		}
		start := idx + len(pattern)
		if start >= len(lowered) {
			continue
		}
		end := start
		for end < len(lowered) && lowered[end] >= '0' && lowered[end] <= '9' {
			end++
		}
		if end-start != 3 {
			continue
		}
		switch lowered[start:end] {
		case "400":
			return 400
		case "401":
			return 401
		case "403":
			return 403
		case "404":
			return 404
		case "422":
			return 422
		case "429":
			return 429
		case "500":
			return 500
		case "502":
			return 502
		case "503":
			return 503
		case "504":
			return 504
		}
	}

	return 0
}
