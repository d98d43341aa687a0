// Package api exposes the agent over HTTP: the chat endpoint, the health and
// readiness probes, and the observability surfaces.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kubeagentic/pkg/agent"
	"kubeagentic/pkg/agent/llmerrors"
	agentmetrics "kubeagentic/pkg/agent/middleware/metrics"
	"kubeagentic/pkg/config"
	"kubeagentic/pkg/logx"
	"kubeagentic/pkg/metrics"
	"kubeagentic/pkg/transcript"
	"kubeagentic/pkg/version"
)

// ChatRequest is the body of POST /chat. Context is accepted for wire
// compatibility with existing clients but carries no behavior.
type ChatRequest struct {
	Message        string            `json:"message"`
	ConversationID string            `json:"conversation_id,omitempty"`
	Context        map[string]string `json:"context,omitempty"`
}

// ChatResponse is the body of a successful POST /chat.
type ChatResponse struct {
	Response       string    `json:"response"`
	ConversationID string    `json:"conversation_id"`
	Timestamp      time.Time `json:"timestamp"`
	Provider       string    `json:"provider"`
	Model          string    `json:"model"`
}

// HealthResponse is the body of the liveness and readiness probes.
type HealthResponse struct {
	Status    string    `json:"status"`
	Provider  string    `json:"provider"`
	Model     string    `json:"model"`
	Timestamp time.Time `json:"timestamp"`
}

// ConfigResponse summarizes the running configuration. API keys and endpoint
// values never appear here.
type ConfigResponse struct {
	Provider            string `json:"provider"`
	Model               string `json:"model"`
	SystemPromptSummary string `json:"system_prompt_summary"`
	ToolsCount          int    `json:"tools_count"`
	HasCustomEndpoint   bool   `json:"has_custom_endpoint"`
}

// RootResponse identifies the process on GET /.
type RootResponse struct {
	Name     string `json:"name"`
	Version  string `json:"version"`
	Status   string `json:"status"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// StatsResponse reports per-conversation usage. Live comes from the
// in-process recorder; Aggregate and ByModel come back from the Prometheus
// server when one is configured and survive agent restarts.
type StatsResponse struct {
	ConversationID string                                `json:"conversation_id"`
	Live           *agentmetrics.ConversationMetrics     `json:"live,omitempty"`
	Aggregate      *metrics.ConversationStats            `json:"aggregate,omitempty"`
	ByModel        map[string]*metrics.ConversationStats `json:"by_model,omitempty"`
}

// ErrorResponse carries a failure detail. Internal error text never leaks
// through it.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// Server is the agent's HTTP front end.
type Server struct {
	agent          *agent.Agent
	cfg            *config.Config
	recorder       *agentmetrics.InternalRecorder
	queryService   *metrics.QueryService
	transcripts    *transcript.Store
	metricsHandler http.Handler
	logger         *logx.Logger
}

// NewServer creates the HTTP front end for a constructed agent.
func NewServer(agent *agent.Agent, cfg *config.Config) *Server {
	return &Server{
		agent:          agent,
		cfg:            cfg,
		metricsHandler: promhttp.Handler(),
		logger:         logx.NewLogger("api"),
	}
}

// SetInternalRecorder wires the in-process usage recorder behind /stats.
func (s *Server) SetInternalRecorder(recorder *agentmetrics.InternalRecorder) {
	s.recorder = recorder
}

// SetQueryService wires the Prometheus query-back service behind /stats.
func (s *Server) SetQueryService(service *metrics.QueryService) {
	s.queryService = service
}

// SetTranscripts enables exchange recording on successful chats.
func (s *Server) SetTranscripts(store *transcript.Store) {
	s.transcripts = store
}

// SetMetricsHandler replaces the /metrics handler. Tests use this with a
// private registry.
func (s *Server) SetMetricsHandler(handler http.Handler) {
	s.metricsHandler = handler
}

// RegisterRoutes attaches all handlers to mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/", s.withRequestID(s.handleRoot))
	mux.HandleFunc("/health", s.withRequestID(s.handleHealth))
	mux.HandleFunc("/ready", s.withRequestID(s.handleReady))
	mux.HandleFunc("/chat", s.withRequestID(s.handleChat))
	mux.HandleFunc("/config", s.withRequestID(s.handleConfig))
	mux.HandleFunc("/stats/", s.withRequestID(s.handleStats))
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		s.metricsHandler.ServeHTTP(w, r)
	})
}

// withRequestID tags each request with a UUID for log correlation.
func (s *Server) withRequestID(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		w.Header().Set("X-Request-ID", requestID)

		start := time.Now()
		next(w, r)
		s.logger.Debug("%s %s completed in %v (request %s)",
			r.Method, r.URL.Path, time.Since(start), requestID)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("Failed to encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, detail string) {
	s.writeJSON(w, status, ErrorResponse{Detail: detail})
}

// handleRoot implements GET / - basic process identity.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	// "/" matches every path the mux has no better pattern for.
	if r.URL.Path != "/" {
		s.writeError(w, http.StatusNotFound, "Not found")
		return
	}
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	s.writeJSON(w, http.StatusOK, RootResponse{
		Name:     "KubeAgentic Agent",
		Version:  version.Version,
		Status:   "running",
		Provider: s.cfg.Provider,
		Model:    s.cfg.Model,
	})
}

// handleHealth implements GET /health - the liveness probe. It answers as
// long as the process is serving, regardless of upstream state.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Provider:  s.cfg.Provider,
		Model:     s.cfg.Model,
		Timestamp: time.Now().UTC(),
	})
}

// handleReady implements GET /ready - the readiness probe.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !s.agent.Ready() {
		s.writeError(w, http.StatusServiceUnavailable, "LLM client not initialized")
		return
	}

	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ready",
		Provider:  s.cfg.Provider,
		Model:     s.cfg.Model,
		Timestamp: time.Now().UTC(),
	})
}

// handleChat implements POST /chat - the conversation endpoint.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.logger.Warn("Failed to parse chat request: %v", err)
		s.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	reply, err := s.agent.Chat(r.Context(), req.Message, req.ConversationID)
	if err != nil {
		s.chatError(w, err)
		return
	}

	if s.transcripts != nil {
		exchange := &transcript.Exchange{
			ConversationID: reply.ConversationID,
			UserMessage:    req.Message,
			AgentResponse:  reply.Text,
			Provider:       reply.Provider,
			Model:          reply.Model,
			CreatedAt:      reply.Timestamp,
		}
		if err := s.transcripts.Record(r.Context(), exchange); err != nil {
			s.logger.Warn("Failed to record exchange: %v", err)
		}
	}

	s.writeJSON(w, http.StatusOK, ChatResponse{
		Response:       reply.Text,
		ConversationID: reply.ConversationID,
		Timestamp:      reply.Timestamp,
		Provider:       reply.Provider,
		Model:          reply.Model,
	})
}

// chatError maps the error taxonomy onto HTTP statuses. Caller mistakes get
// a descriptive 400; everything else collapses to a generic 500 so upstream
// details never reach clients.
func (s *Server) chatError(w http.ResponseWriter, err error) {
	if llmerrors.Is(err, llmerrors.ErrorTypeBadPrompt) {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Error("Chat request failed: %v", err)
	s.writeError(w, http.StatusInternalServerError, "An internal error occurred during the chat request.")
}

// handleConfig implements GET /config - the secret-free configuration view.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	s.writeJSON(w, http.StatusOK, ConfigResponse{
		Provider:            s.cfg.Provider,
		Model:               s.cfg.Model,
		SystemPromptSummary: s.cfg.SystemPromptSummary(),
		ToolsCount:          s.cfg.ToolsCount,
		HasCustomEndpoint:   s.cfg.HasCustomEndpoint(),
	})
}

// handleStats implements GET /stats/{conversation_id} - per-conversation
// usage aggregates.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	conversationID := strings.TrimPrefix(r.URL.Path, "/stats/")
	if conversationID == "" || strings.Contains(conversationID, "/") {
		s.writeError(w, http.StatusNotFound, "Not found")
		return
	}

	resp := StatsResponse{ConversationID: conversationID}
	if s.recorder != nil {
		resp.Live = s.recorder.GetConversationMetrics(conversationID)
	}
	if s.queryService != nil {
		aggregate, err := s.queryService.GetConversationStats(r.Context(), conversationID)
		if err != nil {
			s.logger.Error("Stats query failed for %s: %v", conversationID, err)
			s.writeError(w, http.StatusBadGateway, "Failed to query metrics backend")
			return
		}
		if aggregate.RequestCount > 0 || aggregate.TotalTokens > 0 {
			resp.Aggregate = aggregate
			byModel, err := s.queryService.GetConversationStatsByModel(r.Context(), conversationID)
			if err != nil {
				s.logger.Warn("Per-model stats query failed for %s: %v", conversationID, err)
			} else if len(byModel) > 0 {
				resp.ByModel = byModel
			}
		}
	}

	if resp.Live == nil && resp.Aggregate == nil {
		s.writeError(w, http.StatusNotFound,
			fmt.Sprintf("No metrics recorded for conversation %s", conversationID))
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// Serve runs the HTTP server until ctx is cancelled, then drains in-flight
// requests before returning.
func (s *Server) Serve(ctx context.Context, port int) error {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Writes stay open for the full upstream budget plus headroom so a
		// slow model call is not cut off mid-response.
		WriteTimeout: s.cfg.Request.Timeout() + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	//nolint:contextcheck // Parent context is cancelled; we need a fresh context for shutdown
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	return nil
}
