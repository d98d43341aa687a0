package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"kubeagentic/pkg/agent/llm"
	"kubeagentic/pkg/agent/llmerrors"
	"kubeagentic/pkg/agent/middleware/metrics"
	"kubeagentic/pkg/config"
	"kubeagentic/pkg/logx"
	"kubeagentic/pkg/workflow"
)

// DefaultConversationID is assigned to chat requests that do not name a
// conversation. Such requests share one session.
const DefaultConversationID = "single-turn"

// ChatReply is the result of one chat exchange.
type ChatReply struct {
	Text           string
	Provider       string
	Model          string
	ConversationID string
	Timestamp      time.Time
}

// Agent answers chat messages either by calling the provider directly or by
// running the compiled workflow, decided once at construction. The mode never
// changes for the life of the process.
type Agent struct {
	cfg      *config.Config
	client   llm.LLMClient
	executor *workflow.Executor
	sessions *workflow.SessionStore
	logger   *logx.Logger
}

// New builds an Agent from validated configuration. In workflow mode the
// definition is compiled here, so a broken graph fails startup rather than
// the first request.
func New(cfg *config.Config, recorder metrics.Recorder) (*Agent, error) {
	client, err := NewLLMClient(cfg, recorder)
	if err != nil {
		return nil, err
	}
	return NewWithClient(cfg, client)
}

// NewWithClient builds an Agent around an already-constructed client,
// bypassing the provider factory. Callers that assemble their own middleware
// chain (and tests) use this; New is the common path.
func NewWithClient(cfg *config.Config, client llm.LLMClient) (*Agent, error) {
	a := &Agent{
		cfg:    cfg,
		client: client,
		logger: logx.NewLogger("agent"),
	}

	if cfg.Mode == config.ModeWorkflow {
		graph, err := workflow.Compile(cfg.Workflow, client, cfg.SystemPrompt)
		if err != nil {
			return nil, fmt.Errorf("failed to compile workflow: %w", err)
		}
		a.sessions = workflow.NewSessionStore(cfg.Session.TTL(), cfg.Session.MaxSessions)
		a.executor = workflow.NewExecutor(graph, a.sessions, cfg.MaxSteps)
		a.logger.Info("Workflow compiled: %d nodes, entrypoint %q", graph.Len(), graph.Entry())
	}

	return a, nil
}

// Chat answers one user message within a conversation. An empty
// conversationID selects DefaultConversationID.
func (a *Agent) Chat(ctx context.Context, message, conversationID string) (ChatReply, error) {
	if strings.TrimSpace(message) == "" {
		return ChatReply{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, "message cannot be empty")
	}
	if a.client == nil {
		return ChatReply{}, llmerrors.NewError(llmerrors.ErrorTypeUnknown, "LLM client not initialized")
	}
	if conversationID == "" {
		conversationID = DefaultConversationID
	}
	ctx = metrics.WithConversationID(ctx, conversationID)

	var text string
	var err error
	if a.executor != nil {
		text, err = a.executor.Run(ctx, conversationID, message)
	} else {
		text, err = a.completeDirect(ctx, message)
	}
	if err != nil {
		return ChatReply{}, err
	}

	return ChatReply{
		Text:           text,
		Provider:       a.cfg.Provider,
		Model:          a.cfg.Model,
		ConversationID: conversationID,
		Timestamp:      time.Now().UTC(),
	}, nil
}

func (a *Agent) completeDirect(ctx context.Context, message string) (string, error) {
	messages := make([]llm.CompletionMessage, 0, 2)
	if a.cfg.SystemPrompt != "" {
		messages = append(messages, llm.NewSystemMessage(a.cfg.SystemPrompt))
	}
	messages = append(messages, llm.NewUserMessage(message))

	resp, err := a.client.Complete(ctx, llm.NewCompletionRequest(messages))
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// Ready reports whether the agent can serve chat requests.
func (a *Agent) Ready() bool {
	return a.client != nil
}

// Mode returns the serving mode fixed at construction.
func (a *Agent) Mode() string {
	return a.cfg.Mode
}

// Config returns the agent's configuration. Callers must treat it as
// read-only.
func (a *Agent) Config() *config.Config {
	return a.cfg
}

// Sessions returns the workflow session store, or nil in direct mode.
func (a *Agent) Sessions() *workflow.SessionStore {
	return a.sessions
}

// Executor returns the workflow executor, or nil in direct mode.
func (a *Agent) Executor() *workflow.Executor {
	return a.executor
}

// Close releases background resources.
func (a *Agent) Close() {
	if a.sessions != nil {
		a.sessions.Close()
	}
}
