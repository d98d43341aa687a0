// Package metrics provides Prometheus-based metrics recording for LLM operations.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder implements the Recorder interface using Prometheus metrics.
type PrometheusRecorder struct {
	requestsTotal   *prometheus.CounterVec
	tokensTotal     *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewPrometheusRecorder creates a Prometheus-based metrics recorder registered
// with the default registry. Construct at most one per process.
func NewPrometheusRecorder() *PrometheusRecorder {
	return NewPrometheusRecorderWith(prometheus.DefaultRegisterer)
}

// NewPrometheusRecorderWith creates a recorder registered with the given
// registerer. Tests use this with a private registry.
func NewPrometheusRecorderWith(reg prometheus.Registerer) *PrometheusRecorder {
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_requests_total",
				Help: "Total number of LLM requests by model, provider, conversation, and status",
			},
			[]string{"model", "provider", "conversation_id", "status", "error_type"},
		),
		tokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_tokens_total",
				Help: "Total number of tokens used in LLM requests",
			},
			[]string{"model", "provider", "conversation_id", "type"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llm_request_duration_seconds",
				Help:    "Duration of LLM requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"model", "provider"},
		),
	}
}

// ObserveRequest records metrics for a completed LLM request.
func (p *PrometheusRecorder) ObserveRequest(
	model, provider, conversationID string,
	promptTokens, completionTokens int,
	success bool,
	errorType string,
	duration time.Duration,
) {
	// Determine status label
	status := "success"
	if !success {
		status = "error"
	}

	// Record request count
	p.requestsTotal.WithLabelValues(model, provider, conversationID, status, errorType).Inc()

	// Record tokens (only on success)
	if success {
		p.tokensTotal.WithLabelValues(model, provider, conversationID, "prompt").Add(float64(promptTokens))
		p.tokensTotal.WithLabelValues(model, provider, conversationID, "completion").Add(float64(completionTokens))
	}

	// Record request duration
	p.requestDuration.WithLabelValues(model, provider).Observe(duration.Seconds())
}
