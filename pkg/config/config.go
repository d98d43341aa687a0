// Package config loads and validates the agent process configuration.
//
// Configuration is layered: built-in defaults, then an optional YAML file,
// then AGENT_* environment variables. The API key never comes from the file;
// it is resolved through the secrets store with environment fallback.
// Validation collects every problem before failing so a bad deployment
// surfaces its whole error list in one crash loop instead of one field at a
// time.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"kubeagentic/pkg/workflow"
)

// Provider identifiers. The set is closed: unknown providers are rejected at
// load time rather than discovered at the first request.
const (
	ProviderOpenAI = "openai"
	ProviderVLLM   = "vllm"
	ProviderClaude = "claude"
	ProviderGemini = "gemini"
)

// Agent modes.
const (
	ModeDirect   = "direct"
	ModeWorkflow = "workflow"
)

// Defaults match the deployment controller's injected values, so a bare
// process behaves like a managed one.
const (
	DefaultModel        = "gpt-3.5-turbo"
	DefaultSystemPrompt = "You are a helpful AI assistant."
	DefaultPort         = 8080

	DefaultRequestTimeoutSeconds = 60
)

// Environment variable names. PORT has no AGENT_ prefix because the serving
// platform injects it.
const (
	EnvProvider        = "AGENT_PROVIDER"
	EnvModel           = "AGENT_MODEL"
	EnvSystemPrompt    = "AGENT_SYSTEM_PROMPT"
	EnvAPIKey          = "AGENT_API_KEY"
	EnvEndpoint        = "AGENT_ENDPOINT"
	EnvMode            = "AGENT_MODE"
	EnvWorkflowConfig  = "AGENT_WORKFLOW_CONFIG"
	EnvToolsCount      = "AGENT_TOOLS_COUNT"
	EnvPort            = "PORT"
	EnvConfigFile      = "AGENT_CONFIG_FILE"
	EnvSecretsPassword = "AGENT_SECRETS_PASSWORD"
	EnvPrometheusURL   = "AGENT_PROMETHEUS_URL"
	EnvTranscriptPath  = "AGENT_TRANSCRIPT_PATH"
)

// Config is the complete agent configuration. Load returns it by value to its
// owner; there is no package-level instance.
type Config struct {
	Provider     string `yaml:"provider"`
	Model        string `yaml:"model"`
	SystemPrompt string `yaml:"system_prompt"`
	Endpoint     string `yaml:"endpoint"`
	Mode         string `yaml:"mode"`
	ToolsCount   int    `yaml:"tools_count"`
	Port         int    `yaml:"port"`
	MaxSteps     int    `yaml:"max_steps"`

	// Workflow is the inline definition; WorkflowFile points to a standalone
	// YAML or JSON definition. AGENT_WORKFLOW_CONFIG overrides both.
	Workflow     *workflow.Spec `yaml:"workflow"`
	WorkflowFile string         `yaml:"workflow_file"`

	Request    RequestConfig    `yaml:"request"`
	Retry      RetryConfig      `yaml:"retry"`
	Session    SessionConfig    `yaml:"session"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Transcript TranscriptConfig `yaml:"transcript"`

	// APIKey is resolved from the secrets store or environment, never from
	// the config file.
	APIKey string `yaml:"-"`
}

// RequestConfig bounds a single upstream call.
type RequestConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// Timeout returns the per-request deadline.
func (r RequestConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// RetryConfig shapes the transient-failure retry schedule.
type RetryConfig struct {
	MaxAttempts    int     `yaml:"max_attempts"`
	InitialDelayMs int     `yaml:"initial_delay_ms"`
	MaxDelayMs     int     `yaml:"max_delay_ms"`
	BackoffFactor  float64 `yaml:"backoff_factor"`
	Jitter         bool    `yaml:"jitter"`
}

// InitialDelay returns the delay before the first retry.
func (r RetryConfig) InitialDelay() time.Duration {
	return time.Duration(r.InitialDelayMs) * time.Millisecond
}

// MaxDelay returns the ceiling for backoff growth.
func (r RetryConfig) MaxDelay() time.Duration {
	return time.Duration(r.MaxDelayMs) * time.Millisecond
}

// SessionConfig bounds the conversation session store.
type SessionConfig struct {
	TTLMinutes  int `yaml:"ttl_minutes"`
	MaxSessions int `yaml:"max_sessions"`
}

// TTL returns how long an idle session survives.
func (s SessionConfig) TTL() time.Duration {
	return time.Duration(s.TTLMinutes) * time.Minute
}

// MetricsConfig wires optional aggregate stats queried back from the
// Prometheus server that scrapes this agent. Empty URL disables the query
// service; the stats endpoint then serves in-process data only.
type MetricsConfig struct {
	PrometheusURL string `yaml:"prometheus_url"`
}

// TranscriptConfig controls the optional SQLite exchange log. An empty path
// disables recording.
type TranscriptConfig struct {
	Path string `yaml:"path"`
}

// ValidationError aggregates every configuration problem found during Load.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration (%d problems):\n  - %s",
		len(e.Problems), strings.Join(e.Problems, "\n  - "))
}

// DefaultConfig returns the built-in defaults, matching an unconfigured
// managed deployment.
func DefaultConfig() *Config {
	return &Config{
		Provider:     ProviderOpenAI,
		Model:        DefaultModel,
		SystemPrompt: DefaultSystemPrompt,
		Mode:         ModeDirect,
		Port:         DefaultPort,
		MaxSteps:     workflow.DefaultMaxSteps,
		Request: RequestConfig{
			TimeoutSeconds: DefaultRequestTimeoutSeconds,
		},
		Retry: RetryConfig{
			MaxAttempts:    3,
			InitialDelayMs: 100,
			MaxDelayMs:     10_000,
			BackoffFactor:  2.0,
			Jitter:         true,
		},
		Session: SessionConfig{
			TTLMinutes:  30,
			MaxSessions: workflow.DefaultMaxSessions,
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// configPath (or AGENT_CONFIG_FILE when empty), and environment overrides.
// An unreadable file fails immediately; every other problem is collected and
// reported together in a ValidationError.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	path := configPath
	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	problems := applyEnv(cfg)

	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	cfg.Mode = strings.ToLower(strings.TrimSpace(cfg.Mode))

	if key, err := GetSecret(EnvAPIKey); err == nil {
		cfg.APIKey = key
	}

	problems = append(problems, resolveWorkflow(cfg)...)
	problems = append(problems, cfg.validate()...)
	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	return cfg, nil
}

// applyEnv overlays AGENT_* variables onto cfg. Unparseable numeric values
// are reported, not silently dropped.
func applyEnv(cfg *Config) []string {
	var problems []string

	if v := os.Getenv(EnvProvider); v != "" {
		cfg.Provider = v
	}
	if v := os.Getenv(EnvModel); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv(EnvSystemPrompt); v != "" {
		cfg.SystemPrompt = v
	}
	if v := os.Getenv(EnvEndpoint); v != "" {
		cfg.Endpoint = v
	}
	if v := os.Getenv(EnvMode); v != "" {
		cfg.Mode = v
	}
	if v := os.Getenv(EnvToolsCount); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s must be an integer, got %q", EnvToolsCount, v))
		} else {
			cfg.ToolsCount = n
		}
	}
	if v := os.Getenv(EnvPort); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s must be an integer, got %q", EnvPort, v))
		} else {
			cfg.Port = n
		}
	}
	if v := os.Getenv(EnvPrometheusURL); v != "" {
		cfg.Metrics.PrometheusURL = v
	}
	if v := os.Getenv(EnvTranscriptPath); v != "" {
		cfg.Transcript.Path = v
	}
	return problems
}

// resolveWorkflow fills cfg.Workflow from the highest-priority source that
// provides one: the environment, the inline config section, then the
// workflow file.
func resolveWorkflow(cfg *Config) []string {
	if raw := os.Getenv(EnvWorkflowConfig); raw != "" {
		spec, err := workflow.ParseSpec([]byte(raw))
		if err != nil {
			return []string{fmt.Sprintf("%s: %v", EnvWorkflowConfig, err)}
		}
		cfg.Workflow = spec
		return nil
	}
	if cfg.Workflow == nil && cfg.WorkflowFile != "" {
		spec, err := workflow.LoadSpecFile(cfg.WorkflowFile)
		if err != nil {
			return []string{err.Error()}
		}
		cfg.Workflow = spec
	}
	return nil
}

func (c *Config) validate() []string {
	var problems []string

	switch c.Provider {
	case ProviderOpenAI, ProviderVLLM, ProviderClaude, ProviderGemini:
	default:
		problems = append(problems, fmt.Sprintf("provider must be one of %s, %s, %s, %s (got %q)",
			ProviderOpenAI, ProviderVLLM, ProviderClaude, ProviderGemini, c.Provider))
	}

	if c.Model == "" {
		problems = append(problems, "model cannot be empty")
	}
	if c.APIKey == "" {
		problems = append(problems, fmt.Sprintf("api key is required: set %s or provide an encrypted secrets file", EnvAPIKey))
	}

	switch {
	case c.Provider == ProviderVLLM && c.Endpoint == "":
		problems = append(problems, fmt.Sprintf("provider %s requires an endpoint: self-hosted servers have no default URL (set %s)", ProviderVLLM, EnvEndpoint))
	case c.Endpoint != "" && (c.Provider == ProviderClaude || c.Provider == ProviderGemini):
		problems = append(problems, fmt.Sprintf("endpoint overrides are not supported for provider %s", c.Provider))
	case c.Endpoint != "":
		u, err := url.Parse(c.Endpoint)
		if err != nil || u.Scheme == "" || u.Host == "" {
			problems = append(problems, fmt.Sprintf("endpoint %q is not a valid URL (expected scheme://host)", c.Endpoint))
		}
	}

	if c.Metrics.PrometheusURL != "" {
		u, err := url.Parse(c.Metrics.PrometheusURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			problems = append(problems, fmt.Sprintf("metrics.prometheus_url %q is not a valid URL (expected scheme://host)", c.Metrics.PrometheusURL))
		}
	}

	switch c.Mode {
	case ModeDirect:
	case ModeWorkflow:
		if c.Workflow == nil {
			problems = append(problems, fmt.Sprintf("mode %q requires a workflow definition: set the workflow section, workflow_file, or %s", ModeWorkflow, EnvWorkflowConfig))
		}
	default:
		problems = append(problems, fmt.Sprintf("mode must be %q or %q (got %q)", ModeDirect, ModeWorkflow, c.Mode))
	}

	if c.Port < 1 || c.Port > 65535 {
		problems = append(problems, fmt.Sprintf("port must be between 1 and 65535 (got %d)", c.Port))
	}
	if c.ToolsCount < 0 {
		problems = append(problems, fmt.Sprintf("tools_count cannot be negative (got %d)", c.ToolsCount))
	}
	if c.MaxSteps < 1 {
		problems = append(problems, fmt.Sprintf("max_steps must be at least 1 (got %d)", c.MaxSteps))
	}
	if c.Request.TimeoutSeconds < 1 {
		problems = append(problems, fmt.Sprintf("request.timeout_seconds must be at least 1 (got %d)", c.Request.TimeoutSeconds))
	}

	if c.Retry.MaxAttempts < 1 {
		problems = append(problems, fmt.Sprintf("retry.max_attempts must be at least 1 (got %d)", c.Retry.MaxAttempts))
	}
	if c.Retry.InitialDelayMs < 1 {
		problems = append(problems, fmt.Sprintf("retry.initial_delay_ms must be at least 1 (got %d)", c.Retry.InitialDelayMs))
	}
	if c.Retry.MaxDelayMs < c.Retry.InitialDelayMs {
		problems = append(problems, fmt.Sprintf("retry.max_delay_ms (%d) cannot be less than retry.initial_delay_ms (%d)", c.Retry.MaxDelayMs, c.Retry.InitialDelayMs))
	}
	if c.Retry.BackoffFactor < 1 {
		problems = append(problems, fmt.Sprintf("retry.backoff_factor must be at least 1 (got %g)", c.Retry.BackoffFactor))
	}

	if c.Session.TTLMinutes < 1 {
		problems = append(problems, fmt.Sprintf("session.ttl_minutes must be at least 1 (got %d)", c.Session.TTLMinutes))
	}
	if c.Session.MaxSessions < 1 {
		problems = append(problems, fmt.Sprintf("session.max_sessions must be at least 1 (got %d)", c.Session.MaxSessions))
	}

	return problems
}

// SystemPromptSummary returns the system prompt truncated for display on
// config surfaces. The full prompt is never exposed over HTTP.
func (c *Config) SystemPromptSummary() string {
	const maxLen = 100
	runes := []rune(c.SystemPrompt)
	if len(runes) > maxLen {
		return string(runes[:maxLen]) + "..."
	}
	return c.SystemPrompt
}

// HasCustomEndpoint reports whether an endpoint override is configured.
func (c *Config) HasCustomEndpoint() bool {
	return c.Endpoint != ""
}
