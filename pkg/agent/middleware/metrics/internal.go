// Package metrics provides internal metrics tracking for LLM operations.
package metrics

import (
	"sync"
	"time"
)

// InternalRecorder implements the Recorder interface using in-memory aggregation.
// This is much simpler than Prometheus and doesn't require external services;
// the stats endpoint reads from it when no Prometheus server is configured.
type InternalRecorder struct {
	conversations map[string]*ConversationMetrics // conversation ID -> aggregated metrics
	mu            sync.RWMutex
}

// ConversationMetrics represents aggregated usage for a conversation.
//
//nolint:govet
type ConversationMetrics struct {
	PromptTokens     int64     `json:"prompt_tokens"`
	CompletionTokens int64     `json:"completion_tokens"`
	TotalTokens      int64     `json:"total_tokens"`
	RequestCount     int64     `json:"request_count"`
	ErrorCount       int64     `json:"error_count"`
	ConversationID   string    `json:"conversation_id"`
	LastUpdated      time.Time `json:"last_updated"`
}

// NewInternalRecorder creates an in-memory metrics recorder.
func NewInternalRecorder() *InternalRecorder {
	return &InternalRecorder{
		conversations: make(map[string]*ConversationMetrics),
	}
}

// ObserveRequest records metrics for a completed LLM request.
func (r *InternalRecorder) ObserveRequest(
	_, _, conversationID string,
	promptTokens, completionTokens int,
	success bool,
	_ string,
	_ time.Duration,
) {
	if conversationID == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	conv, exists := r.conversations[conversationID]
	if !exists {
		conv = &ConversationMetrics{
			ConversationID: conversationID,
		}
		r.conversations[conversationID] = conv
	}

	conv.RequestCount++
	if success {
		conv.PromptTokens += int64(promptTokens)
		conv.CompletionTokens += int64(completionTokens)
		conv.TotalTokens = conv.PromptTokens + conv.CompletionTokens
	} else {
		conv.ErrorCount++
	}
	conv.LastUpdated = time.Now()
}

// GetConversationMetrics returns the aggregated metrics for a conversation,
// or nil if no requests have been recorded for it.
func (r *InternalRecorder) GetConversationMetrics(conversationID string) *ConversationMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if conv, exists := r.conversations[conversationID]; exists {
		// Return a copy to prevent external modification
		clone := *conv
		return &clone
	}
	return nil
}

// GetAllConversationMetrics returns metrics for all conversations.
func (r *InternalRecorder) GetAllConversationMetrics() map[string]*ConversationMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]*ConversationMetrics, len(r.conversations))
	for id, conv := range r.conversations {
		clone := *conv
		result[id] = &clone
	}
	return result
}

// ClearConversationMetrics removes metrics for a conversation. Called when the
// session store evicts the conversation so the two stay roughly in sync.
func (r *InternalRecorder) ClearConversationMetrics(conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conversations, conversationID)
}

// Reset clears all metrics (useful for testing).
func (r *InternalRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conversations = make(map[string]*ConversationMetrics)
}
