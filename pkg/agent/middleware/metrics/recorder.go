// Package metrics provides metrics recording for LLM client operations.
package metrics

import (
	"context"
	"time"
)

// Recorder defines the interface for recording LLM operation metrics.
type Recorder interface {
	// ObserveRequest records metrics for a completed LLM request.
	ObserveRequest(
		model, provider, conversationID string,
		promptTokens, completionTokens int,
		success bool,
		errorType string,
		duration time.Duration,
	)
}

// NoopRecorder implements Recorder with no-op behavior for when metrics are disabled.
type NoopRecorder struct{}

// Nop returns a no-op metrics recorder that discards all metrics.
func Nop() Recorder {
	return &NoopRecorder{}
}

// ObserveRequest does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveRequest(
	_, _, _ string,
	_, _ int,
	_ bool,
	_ string,
	_ time.Duration,
) {
	// No-op
}

// multiRecorder fans observations out to several recorders.
type multiRecorder struct {
	recorders []Recorder
}

// Multi returns a recorder that forwards every observation to all given recorders.
func Multi(recorders ...Recorder) Recorder {
	return &multiRecorder{recorders: recorders}
}

func (m *multiRecorder) ObserveRequest(
	model, provider, conversationID string,
	promptTokens, completionTokens int,
	success bool,
	errorType string,
	duration time.Duration,
) {
	for _, r := range m.recorders {
		r.ObserveRequest(model, provider, conversationID, promptTokens, completionTokens, success, errorType, duration)
	}
}

type conversationIDKey struct{}

// WithConversationID returns a context carrying the conversation this request
// belongs to. The metrics middleware reads it to label per-conversation usage.
func WithConversationID(ctx context.Context, conversationID string) context.Context {
	return context.WithValue(ctx, conversationIDKey{}, conversationID)
}

// ConversationIDFromContext extracts the conversation ID, or "" when unset.
func ConversationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(conversationIDKey{}).(string); ok {
		return id
	}
	return ""
}
