// Package metrics provides services for querying and aggregating metrics data.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// ConversationStats represents aggregated metrics for a conversation.
type ConversationStats struct {
	ConversationID   string `json:"conversation_id"`
	PromptTokens     int64  `json:"prompt_tokens"`
	CompletionTokens int64  `json:"completion_tokens"`
	TotalTokens      int64  `json:"total_tokens"`
	RequestCount     int64  `json:"request_count"`
	ErrorCount       int64  `json:"error_count"`
}

// QueryService provides methods to query metrics from Prometheus.
type QueryService struct {
	client   api.Client
	queryAPI v1.API
}

// NewQueryService creates a new metrics query service.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return &QueryService{
		client:   client,
		queryAPI: v1.NewAPI(client),
	}, nil
}

// GetConversationStats retrieves aggregated token and request metrics for a
// conversation. Unlike the in-process recorder, these survive restarts of the
// agent because they come back from the Prometheus server that scrapes it.
func (q *QueryService) GetConversationStats(ctx context.Context, conversationID string) (*ConversationStats, error) {
	stats := &ConversationStats{
		ConversationID: conversationID,
	}

	// Query for prompt tokens
	promptTokensQuery := fmt.Sprintf(`sum(llm_tokens_total{conversation_id=%q, type="prompt"})`, conversationID)
	promptResult, _, err := q.queryAPI.Query(ctx, promptTokensQuery, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query prompt tokens: %w", err)
	}

	if vector, ok := promptResult.(model.Vector); ok && len(vector) > 0 {
		stats.PromptTokens = int64(vector[0].Value)
	}

	// Query for completion tokens
	completionTokensQuery := fmt.Sprintf(`sum(llm_tokens_total{conversation_id=%q, type="completion"})`, conversationID)
	completionResult, _, err := q.queryAPI.Query(ctx, completionTokensQuery, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query completion tokens: %w", err)
	}

	if vector, ok := completionResult.(model.Vector); ok && len(vector) > 0 {
		stats.CompletionTokens = int64(vector[0].Value)
	}

	// Calculate total tokens
	stats.TotalTokens = stats.PromptTokens + stats.CompletionTokens

	// Query for request count
	requestsQuery := fmt.Sprintf(`sum(llm_requests_total{conversation_id=%q})`, conversationID)
	requestsResult, _, err := q.queryAPI.Query(ctx, requestsQuery, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query request count: %w", err)
	}

	if vector, ok := requestsResult.(model.Vector); ok && len(vector) > 0 {
		stats.RequestCount = int64(vector[0].Value)
	}

	// Query for error count
	errorsQuery := fmt.Sprintf(`sum(llm_requests_total{conversation_id=%q, status="error"})`, conversationID)
	errorsResult, _, err := q.queryAPI.Query(ctx, errorsQuery, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query error count: %w", err)
	}

	if vector, ok := errorsResult.(model.Vector); ok && len(vector) > 0 {
		stats.ErrorCount = int64(vector[0].Value)
	}

	return stats, nil
}

// GetConversationStatsByModel retrieves detailed metrics broken down by model
// for a conversation. This provides more granular data showing which models
// served the conversation and their individual token usage.
func (q *QueryService) GetConversationStatsByModel(ctx context.Context, conversationID string) (map[string]*ConversationStats, error) {
	result := make(map[string]*ConversationStats)

	// Query for all models used in this conversation
	modelsQuery := fmt.Sprintf(`group by (model) (llm_tokens_total{conversation_id=%q})`, conversationID)
	modelsResult, _, err := q.queryAPI.Query(ctx, modelsQuery, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query models: %w", err)
	}

	// Extract unique model names
	var models []string
	if vector, ok := modelsResult.(model.Vector); ok {
		for _, sample := range vector {
			if modelName, ok := sample.Metric["model"]; ok {
				models = append(models, string(modelName))
			}
		}
	}

	// Get metrics for each model
	for _, modelName := range models {
		stats := &ConversationStats{
			ConversationID: conversationID,
		}

		// Query prompt tokens for this model
		promptQuery := fmt.Sprintf(`sum(llm_tokens_total{conversation_id=%q, model=%q, type="prompt"})`, conversationID, modelName)
		promptResult, _, err := q.queryAPI.Query(ctx, promptQuery, time.Now())
		if err != nil {
			return nil, fmt.Errorf("failed to query prompt tokens for model %s: %w", modelName, err)
		}

		if vector, ok := promptResult.(model.Vector); ok && len(vector) > 0 {
			stats.PromptTokens = int64(vector[0].Value)
		}

		// Query completion tokens for this model
		completionQuery := fmt.Sprintf(`sum(llm_tokens_total{conversation_id=%q, model=%q, type="completion"})`, conversationID, modelName)
		completionResult, _, err := q.queryAPI.Query(ctx, completionQuery, time.Now())
		if err != nil {
			return nil, fmt.Errorf("failed to query completion tokens for model %s: %w", modelName, err)
		}

		if vector, ok := completionResult.(model.Vector); ok && len(vector) > 0 {
			stats.CompletionTokens = int64(vector[0].Value)
		}

		// Calculate total tokens
		stats.TotalTokens = stats.PromptTokens + stats.CompletionTokens

		// Query request count for this model
		requestsQuery := fmt.Sprintf(`sum(llm_requests_total{conversation_id=%q, model=%q})`, conversationID, modelName)
		requestsResult, _, err := q.queryAPI.Query(ctx, requestsQuery, time.Now())
		if err != nil {
			return nil, fmt.Errorf("failed to query request count for model %s: %w", modelName, err)
		}

		if vector, ok := requestsResult.(model.Vector); ok && len(vector) > 0 {
			stats.RequestCount = int64(vector[0].Value)
		}

		result[modelName] = stats
	}

	return result, nil
}
