package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearAgentEnv blanks every configuration variable so tests see only what
// they set. t.Setenv restores the originals afterward.
func clearAgentEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		EnvProvider, EnvModel, EnvSystemPrompt, EnvAPIKey, EnvEndpoint,
		EnvMode, EnvWorkflowConfig, EnvToolsCount, EnvPort, EnvConfigFile,
		EnvPrometheusURL, EnvTranscriptPath,
	} {
		t.Setenv(key, "")
	}
	SetDecryptedSecrets(nil)
	t.Cleanup(func() { SetDecryptedSecrets(nil) })
}

// TestLoadDefaults verifies an environment carrying only the API key
// produces the stock configuration.
func TestLoadDefaults(t *testing.T) {
	clearAgentEnv(t)
	t.Setenv(EnvAPIKey, "test-key")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ProviderOpenAI, cfg.Provider)
	assert.Equal(t, DefaultModel, cfg.Model)
	assert.Equal(t, DefaultSystemPrompt, cfg.SystemPrompt)
	assert.Equal(t, ModeDirect, cfg.Mode)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, "test-key", cfg.APIKey)
	assert.Equal(t, 50, cfg.MaxSteps)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 30, cfg.Session.TTLMinutes)
	assert.Equal(t, 1000, cfg.Session.MaxSessions)
	assert.Equal(t, 60, cfg.Request.TimeoutSeconds)
	assert.Nil(t, cfg.Workflow)
}

// TestLoadEnvOverrides verifies every AGENT_* variable lands on its field.
func TestLoadEnvOverrides(t *testing.T) {
	clearAgentEnv(t)
	t.Setenv(EnvAPIKey, "test-key")
	t.Setenv(EnvProvider, "claude")
	t.Setenv(EnvModel, "claude-sonnet-4-20250514")
	t.Setenv(EnvSystemPrompt, "You are a pirate.")
	t.Setenv(EnvToolsCount, "3")
	t.Setenv(EnvPort, "9090")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ProviderClaude, cfg.Provider)
	assert.Equal(t, "claude-sonnet-4-20250514", cfg.Model)
	assert.Equal(t, "You are a pirate.", cfg.SystemPrompt)
	assert.Equal(t, 3, cfg.ToolsCount)
	assert.Equal(t, 9090, cfg.Port)
}

// TestLoadYAMLFile verifies file values override defaults while absent keys
// keep them.
func TestLoadYAMLFile(t *testing.T) {
	clearAgentEnv(t)
	t.Setenv(EnvAPIKey, "test-key")

	path := filepath.Join(t.TempDir(), "agent.yaml")
	content := `provider: vllm
model: meta-llama/Llama-3.1-8B-Instruct
endpoint: http://vllm.inference.svc:8000/v1
retry:
  max_attempts: 5
  initial_delay_ms: 250
  max_delay_ms: 5000
  backoff_factor: 2.0
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ProviderVLLM, cfg.Provider)
	assert.Equal(t, "meta-llama/Llama-3.1-8B-Instruct", cfg.Model)
	assert.Equal(t, "http://vllm.inference.svc:8000/v1", cfg.Endpoint)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 250, cfg.Retry.InitialDelayMs)
	// Untouched sections keep their defaults.
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, 30, cfg.Session.TTLMinutes)
}

// TestLoadEnvBeatsFile verifies precedence: defaults < file < environment.
func TestLoadEnvBeatsFile(t *testing.T) {
	clearAgentEnv(t)
	t.Setenv(EnvAPIKey, "test-key")
	t.Setenv(EnvModel, "model-from-env")

	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model: model-from-file\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "model-from-env", cfg.Model)
}

// TestLoadConfigFileFromEnv verifies AGENT_CONFIG_FILE supplies the path
// when the caller passes none.
func TestLoadConfigFileFromEnv(t *testing.T) {
	clearAgentEnv(t)
	t.Setenv(EnvAPIKey, "test-key")

	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 3000\n"), 0o644))
	t.Setenv(EnvConfigFile, path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Port)
}

// TestLoadNormalizesProvider verifies provider and mode are trimmed and
// lowercased before validation.
func TestLoadNormalizesProvider(t *testing.T) {
	clearAgentEnv(t)
	t.Setenv(EnvAPIKey, "test-key")
	t.Setenv(EnvProvider, " OpenAI ")
	t.Setenv(EnvMode, "Direct")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, cfg.Provider)
	assert.Equal(t, ModeDirect, cfg.Mode)
}

// TestLoadMissingAPIKey verifies the one secret every provider needs is
// enforced.
func TestLoadMissingAPIKey(t *testing.T) {
	clearAgentEnv(t)

	_, err := Load("")
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, err.Error(), "api key is required")
}

// TestLoadAggregatesProblems verifies every problem is reported in one
// error instead of failing on the first.
func TestLoadAggregatesProblems(t *testing.T) {
	clearAgentEnv(t)
	t.Setenv(EnvProvider, "alien")
	t.Setenv(EnvMode, "hybrid")
	t.Setenv(EnvPort, "70000")

	_, err := Load("")
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.GreaterOrEqual(t, len(verr.Problems), 4)
	assert.Contains(t, err.Error(), "provider must be one of")
	assert.Contains(t, err.Error(), "api key is required")
	assert.Contains(t, err.Error(), `mode must be "direct" or "workflow"`)
	assert.Contains(t, err.Error(), "port must be between")
}

// TestLoadNumericEnvProblems verifies unparseable numeric variables are
// listed rather than ignored.
func TestLoadNumericEnvProblems(t *testing.T) {
	clearAgentEnv(t)
	t.Setenv(EnvAPIKey, "test-key")
	t.Setenv(EnvToolsCount, "several")
	t.Setenv(EnvPort, "http")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AGENT_TOOLS_COUNT must be an integer")
	assert.Contains(t, err.Error(), "PORT must be an integer")
}

// TestLoadVLLMRequiresEndpoint verifies self-hosted deployments must name
// their server.
func TestLoadVLLMRequiresEndpoint(t *testing.T) {
	clearAgentEnv(t)
	t.Setenv(EnvAPIKey, "test-key")
	t.Setenv(EnvProvider, "vllm")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires an endpoint")

	t.Setenv(EnvEndpoint, "http://vllm.inference.svc:8000/v1")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.HasCustomEndpoint())
}

// TestLoadRejectsEndpointForClaude verifies hosted-only providers refuse an
// endpoint override instead of silently ignoring it.
func TestLoadRejectsEndpointForClaude(t *testing.T) {
	clearAgentEnv(t)
	t.Setenv(EnvAPIKey, "test-key")
	t.Setenv(EnvProvider, "claude")
	t.Setenv(EnvModel, "claude-sonnet-4-20250514")
	t.Setenv(EnvEndpoint, "http://somewhere:9000")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "endpoint overrides are not supported")
}

// TestLoadRejectsMalformedEndpoint verifies endpoint values must be URLs.
func TestLoadRejectsMalformedEndpoint(t *testing.T) {
	clearAgentEnv(t)
	t.Setenv(EnvAPIKey, "test-key")
	t.Setenv(EnvEndpoint, "vllm.inference.svc:not-a-port/")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not a valid URL")
}

// TestLoadWorkflowFromEnv verifies the inline JSON definition used by the
// deployment controller.
func TestLoadWorkflowFromEnv(t *testing.T) {
	clearAgentEnv(t)
	t.Setenv(EnvAPIKey, "test-key")
	t.Setenv(EnvMode, "workflow")
	t.Setenv(EnvWorkflowConfig, `{"entrypoint": "start", "nodes": [{"name": "start", "type": "llm"}]}`)

	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg.Workflow)
	require.Len(t, cfg.Workflow.Nodes, 1)
	assert.Equal(t, "start", cfg.Workflow.Nodes[0].Name)
}

// TestLoadWorkflowModeWithoutDefinition verifies workflow mode demands a
// definition from some source.
func TestLoadWorkflowModeWithoutDefinition(t *testing.T) {
	clearAgentEnv(t)
	t.Setenv(EnvAPIKey, "test-key")
	t.Setenv(EnvMode, "workflow")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires a workflow definition")
}

// TestLoadWorkflowBadJSON verifies a broken inline definition is reported as
// a config problem naming its source.
func TestLoadWorkflowBadJSON(t *testing.T) {
	clearAgentEnv(t)
	t.Setenv(EnvAPIKey, "test-key")
	t.Setenv(EnvMode, "workflow")
	t.Setenv(EnvWorkflowConfig, `{"nodes": [`)

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvWorkflowConfig)
}

// TestLoadWorkflowFromFileSection verifies the workflow can live inline in
// the YAML config.
func TestLoadWorkflowFromFileSection(t *testing.T) {
	clearAgentEnv(t)
	t.Setenv(EnvAPIKey, "test-key")

	path := filepath.Join(t.TempDir(), "agent.yaml")
	content := `mode: workflow
workflow:
  entrypoint: greet
  nodes:
    - name: greet
      type: llm
      prompt: "Say hello to {user_input}"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Workflow)
	assert.Equal(t, "greet", cfg.Workflow.Entrypoint)
}

// TestLoadWorkflowFileReference verifies workflow_file points at a
// standalone definition.
func TestLoadWorkflowFileReference(t *testing.T) {
	clearAgentEnv(t)
	t.Setenv(EnvAPIKey, "test-key")

	dir := t.TempDir()
	wfPath := filepath.Join(dir, "flow.yaml")
	require.NoError(t, os.WriteFile(wfPath, []byte("nodes:\n  - name: start\n    type: tool\n"), 0o644))

	cfgPath := filepath.Join(dir, "agent.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("mode: workflow\nworkflow_file: "+wfPath+"\n"), 0o644))

	cfg, err := Load(cfgPath)
	require.NoError(t, err)
	require.NotNil(t, cfg.Workflow)
	assert.Equal(t, "start", cfg.Workflow.Nodes[0].Name)
}

// TestLoadEnvWorkflowBeatsFileSection verifies the environment definition
// wins when both are present.
func TestLoadEnvWorkflowBeatsFileSection(t *testing.T) {
	clearAgentEnv(t)
	t.Setenv(EnvAPIKey, "test-key")
	t.Setenv(EnvWorkflowConfig, `{"nodes": [{"name": "from_env", "type": "llm"}], "entrypoint": "from_env"}`)

	path := filepath.Join(t.TempDir(), "agent.yaml")
	content := `mode: workflow
workflow:
  entrypoint: from_file
  nodes:
    - name: from_file
      type: llm
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Workflow)
	assert.Equal(t, "from_env", cfg.Workflow.Nodes[0].Name)
}

// TestLoadUnreadableFile verifies a missing config file fails immediately.
func TestLoadUnreadableFile(t *testing.T) {
	clearAgentEnv(t)
	t.Setenv(EnvAPIKey, "test-key")

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

// TestLoadBadYAML verifies an unparseable config file fails immediately.
func TestLoadBadYAML(t *testing.T) {
	clearAgentEnv(t)
	t.Setenv(EnvAPIKey, "test-key")

	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider: [unclosed"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

// TestAPIKeyPrecedence verifies the decrypted secrets store wins over the
// environment variable.
func TestAPIKeyPrecedence(t *testing.T) {
	clearAgentEnv(t)
	t.Setenv(EnvAPIKey, "from-env")
	SetDecryptedSecrets(map[string]string{EnvAPIKey: "from-secrets"})

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-secrets", cfg.APIKey)
}

// TestSystemPromptSummary verifies long prompts are truncated for display.
func TestSystemPromptSummary(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SystemPrompt = "short prompt"
	assert.Equal(t, "short prompt", cfg.SystemPromptSummary())

	cfg.SystemPrompt = strings.Repeat("x", 150)
	summary := cfg.SystemPromptSummary()
	assert.Equal(t, strings.Repeat("x", 100)+"...", summary)
}

// TestDurationHelpers verifies the unit-suffix fields convert correctly.
func TestDurationHelpers(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "1m40s", (RetryConfig{InitialDelayMs: 100_000}).InitialDelay().String())
	assert.Equal(t, "10s", cfg.Retry.MaxDelay().String())
	assert.Equal(t, "1m0s", cfg.Request.Timeout().String())
	assert.Equal(t, "30m0s", cfg.Session.TTL().String())
}

// TestLoadMetricsAndTranscriptSections verifies the optional observability
// sections load from YAML, accept env overrides, and reject bad URLs.
func TestLoadMetricsAndTranscriptSections(t *testing.T) {
	clearAgentEnv(t)
	t.Setenv(EnvAPIKey, "test-key")

	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
metrics:
  prometheus_url: http://prometheus:9090
transcript:
  path: /var/lib/agent/transcript.db
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://prometheus:9090", cfg.Metrics.PrometheusURL)
	assert.Equal(t, "/var/lib/agent/transcript.db", cfg.Transcript.Path)

	t.Setenv(EnvPrometheusURL, "http://prom.monitoring:9090")
	t.Setenv(EnvTranscriptPath, "/tmp/chat.db")
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://prom.monitoring:9090", cfg.Metrics.PrometheusURL)
	assert.Equal(t, "/tmp/chat.db", cfg.Transcript.Path)

	t.Setenv(EnvPrometheusURL, "not a url")
	_, err = Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metrics.prometheus_url")
}
