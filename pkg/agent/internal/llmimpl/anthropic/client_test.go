package anthropic

import (
	"context"
	"strings"
	"testing"

	"kubeagentic/pkg/agent/llm"
	"kubeagentic/pkg/agent/llmerrors"
)

// TestPrepareMessages tests system extraction and the message alternation logic.
func TestPrepareMessages(t *testing.T) {
	tests := []struct {
		name         string
		input        []llm.CompletionMessage
		expectSystem string
		expectMsgLen int
		expectErr    bool
		errContains  string
	}{
		{
			name:        "empty messages",
			input:       []llm.CompletionMessage{},
			expectErr:   true,
			errContains: "message list cannot be empty",
		},
		{
			name: "system message extracted",
			input: []llm.CompletionMessage{
				{Role: llm.RoleSystem, Content: "You are helpful"},
				{Role: llm.RoleUser, Content: "Hello"},
			},
			expectSystem: "You are helpful",
			expectMsgLen: 1,
		},
		{
			name: "multiple system messages concatenated",
			input: []llm.CompletionMessage{
				{Role: llm.RoleSystem, Content: "You are helpful"},
				{Role: llm.RoleSystem, Content: "And concise"},
				{Role: llm.RoleUser, Content: "Hello"},
			},
			expectSystem: "You are helpful\n\nAnd concise",
			expectMsgLen: 1,
		},
		{
			name: "proper alternation maintained",
			input: []llm.CompletionMessage{
				{Role: llm.RoleUser, Content: "Hello"},
				{Role: llm.RoleAssistant, Content: "Hi"},
				{Role: llm.RoleUser, Content: "How are you?"},
			},
			expectSystem: "",
			expectMsgLen: 3,
		},
		{
			name: "consecutive user messages merged",
			input: []llm.CompletionMessage{
				{Role: llm.RoleUser, Content: "Hello"},
				{Role: llm.RoleUser, Content: "Anyone there?"},
			},
			expectSystem: "",
			expectMsgLen: 1,
		},
		{
			name: "only system messages returns error",
			input: []llm.CompletionMessage{
				{Role: llm.RoleSystem, Content: "You are helpful"},
			},
			expectErr:   true,
			errContains: "at least one non-system message",
		},
		{
			name: "ends with assistant returns error",
			input: []llm.CompletionMessage{
				{Role: llm.RoleUser, Content: "Hello"},
				{Role: llm.RoleAssistant, Content: "Hi"},
			},
			expectErr:   true,
			errContains: "last message must be user",
		},
		{
			name: "starts with assistant returns error",
			input: []llm.CompletionMessage{
				{Role: llm.RoleAssistant, Content: "Hi"},
				{Role: llm.RoleUser, Content: "Hello"},
			},
			expectErr:   true,
			errContains: "first message must be user",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			system, msgs, err := prepareMessages(tt.input)

			if tt.expectErr {
				if err == nil {
					t.Error("expected error, got nil")
				} else if tt.errContains != "" && !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("expected error containing %q, got %q", tt.errContains, err.Error())
				}
				return
			}

			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}

			if system != tt.expectSystem {
				t.Errorf("expected system %q, got %q", tt.expectSystem, system)
			}

			if len(msgs) != tt.expectMsgLen {
				t.Errorf("expected %d messages, got %d", tt.expectMsgLen, len(msgs))
			}
		})
	}
}

// TestPrepareMessagesMergedContent verifies merged user content keeps all parts.
func TestPrepareMessagesMergedContent(t *testing.T) {
	input := []llm.CompletionMessage{
		{Role: llm.RoleUser, Content: "Hello"},
		{Role: llm.RoleUser, Content: "Anyone there?"},
	}

	_, msgs, err := prepareMessages(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 merged message, got %d", len(msgs))
	}
	if msgs[0].Content != "Hello\n\nAnyone there?" {
		t.Errorf("unexpected merged content: %q", msgs[0].Content)
	}
	if msgs[0].Role != llm.RoleUser {
		t.Errorf("expected user role, got %s", msgs[0].Role)
	}
}

// TestClassifyError tests mapping of raw API errors to structured error types.
func TestClassifyError(t *testing.T) {
	client := &ClaudeClient{}

	tests := []struct {
		name     string
		err      error
		wantType llmerrors.ErrorType
	}{
		{
			name:     "deadline exceeded is transient",
			err:      context.DeadlineExceeded,
			wantType: llmerrors.ErrorTypeTransient,
		},
		{
			name:     "canceled is transient",
			err:      context.Canceled,
			wantType: llmerrors.ErrorTypeTransient,
		},
		{
			name:     "401 status is auth",
			err:      &testError{msg: "request failed with status code: 401"},
			wantType: llmerrors.ErrorTypeAuth,
		},
		{
			name:     "403 status is auth",
			err:      &testError{msg: "request failed with status code: 403"},
			wantType: llmerrors.ErrorTypeAuth,
		},
		{
			name:     "429 status is rate limit",
			err:      &testError{msg: "request failed with status code: 429"},
			wantType: llmerrors.ErrorTypeRateLimit,
		},
		{
			name:     "400 status is bad prompt",
			err:      &testError{msg: "request failed with status code: 400"},
			wantType: llmerrors.ErrorTypeBadPrompt,
		},
		{
			name:     "503 status is transient",
			err:      &testError{msg: "request failed with status code: 503"},
			wantType: llmerrors.ErrorTypeTransient,
		},
		{
			name:     "connection refused is transient",
			err:      &testError{msg: "dial tcp: connection refused"},
			wantType: llmerrors.ErrorTypeTransient,
		},
		{
			name:     "rate limiting text is rate limit",
			err:      &testError{msg: "you have been rate limited"},
			wantType: llmerrors.ErrorTypeRateLimit,
		},
		{
			name:     "unauthorized text is auth",
			err:      &testError{msg: "unauthorized access"},
			wantType: llmerrors.ErrorTypeAuth,
		},
		{
			name:     "invalid request text is bad prompt",
			err:      &testError{msg: "invalid request body"},
			wantType: llmerrors.ErrorTypeBadPrompt,
		},
		{
			name:     "unrecognized error is unknown",
			err:      &testError{msg: "something unexpected happened"},
			wantType: llmerrors.ErrorTypeUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := client.classifyError(tt.err)
			if result == nil {
				t.Fatal("expected classified error, got nil")
			}
			if result.Type != tt.wantType {
				t.Errorf("expected type %s, got %s", tt.wantType, result.Type)
			}
		})
	}
}

// TestClassifyErrorNil verifies nil input stays nil.
func TestClassifyErrorNil(t *testing.T) {
	client := &ClaudeClient{}
	if result := client.classifyError(nil); result != nil {
		t.Errorf("expected nil, got %v", result)
	}
}

// TestExtractStatusCode tests status code extraction from error strings.
func TestExtractStatusCode(t *testing.T) {
	tests := []struct {
		errStr string
		want   int
	}{
		{"request failed with status code: 429", 429},
		{"HTTP 503 Service Unavailable", 503},
		{"error code 401 returned", 401},
		{"status: 400 bad request", 400},
		{"no code in this message", 0},
		{"status code: 999 unusual", 0},
		{"", 0},
	}

	for _, tt := range tests {
		t.Run(tt.errStr, func(t *testing.T) {
			if got := extractStatusCode(tt.errStr); got != tt.want {
				t.Errorf("extractStatusCode(%q) = %d, want %d", tt.errStr, got, tt.want)
			}
		})
	}
}

// TestNewClaudeClient tests client creation.
func TestNewClaudeClient(t *testing.T) {
	client := NewClaudeClient("test-api-key", "claude-sonnet-4-20250514")

	if client == nil {
		t.Fatal("expected client, got nil")
	}

	if modelName := client.GetModelName(); modelName != "claude-sonnet-4-20250514" {
		t.Errorf("expected model %q, got %q", "claude-sonnet-4-20250514", modelName)
	}
}

// TestCompleteRejectsEmptyMessages verifies validation happens before any API call.
func TestCompleteRejectsEmptyMessages(t *testing.T) {
	client := NewClaudeClient("test-api-key", "claude-sonnet-4-20250514")

	_, err := client.Complete(context.Background(), llm.CompletionRequest{})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !llmerrors.Is(err, llmerrors.ErrorTypeBadPrompt) {
		t.Errorf("expected bad prompt error, got %v", err)
	}
}

// testError is a simple error type for testing.
type testError struct {
	msg string
}

func (e *testError) Error() string {
	return e.msg
}
