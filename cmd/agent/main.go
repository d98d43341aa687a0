// The agent binary serves one configured LLM persona over HTTP. It loads
// and validates configuration, decrypts the secrets file when present,
// assembles the provider client with its middleware chain, and runs the API
// server until SIGINT or SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"kubeagentic/pkg/agent"
	agentmetrics "kubeagentic/pkg/agent/middleware/metrics"
	"kubeagentic/pkg/api"
	"kubeagentic/pkg/config"
	"kubeagentic/pkg/logx"
	"kubeagentic/pkg/metrics"
	"kubeagentic/pkg/transcript"
	"kubeagentic/pkg/version"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "secrets" {
		os.Exit(runSecrets(os.Args[2:]))
	}

	var (
		configPath  = flag.String("config", "", "Path to YAML config file (or AGENT_CONFIG_FILE)")
		secretsDir  = flag.String("secrets-dir", ".", "Directory holding the encrypted secrets file")
		logsDir     = flag.String("logs", "logs", "Directory for log files")
		tee         = flag.Bool("tee", false, "Output logs to both console and file (default: file only)")
		debug       = flag.Bool("debug", false, "Enable debug logging")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("agent %s\n", version.Version)
		fmt.Printf("  commit: %s\n", version.Commit)
		fmt.Printf("  built:  %s\n", version.Date)
		os.Exit(0)
	}

	// Initialize log file rotation BEFORE any logging occurs so configuration
	// loading is captured too.
	if err := logx.InitializeLogFile(*logsDir, 4, *tee); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize log file: %v\n", err)
		os.Exit(1)
	}

	exitCode := run(*configPath, *secretsDir, *debug)

	if closeErr := logx.CloseLogFile(); closeErr != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", closeErr)
	}
	os.Exit(exitCode)
}

// run contains the main application logic and returns an exit code. This
// allows defers to execute before os.Exit is called.
func run(configPath, secretsDir string, debug bool) int {
	logger := logx.NewLogger("main")
	if debug {
		logx.SetDebug(true)
	}

	if err := loadSecrets(secretsDir); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load secrets: %v\n", err)
		return 1
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	promRecorder := agentmetrics.NewPrometheusRecorder()
	internalRecorder := agentmetrics.NewInternalRecorder()

	ag, err := agent.New(cfg, agentmetrics.Multi(promRecorder, internalRecorder))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize agent: %v\n", err)
		return 1
	}
	defer ag.Close()

	instrumentSessions(ag, internalRecorder)

	server := api.NewServer(ag, cfg)
	server.SetInternalRecorder(internalRecorder)

	if cfg.Metrics.PrometheusURL != "" {
		queryService, err := metrics.NewQueryService(cfg.Metrics.PrometheusURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create metrics query service: %v\n", err)
			return 1
		}
		server.SetQueryService(queryService)
		logger.Info("Stats aggregation enabled via %s", cfg.Metrics.PrometheusURL)
	}

	if cfg.Transcript.Path != "" {
		store, err := transcript.Open(cfg.Transcript.Path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open transcript store: %v\n", err)
			return 1
		}
		defer func() {
			if closeErr := store.Close(); closeErr != nil {
				logger.Error("Failed to close transcript store: %v", closeErr)
			}
		}()
		server.SetTranscripts(store)
	}

	logger.Info("KubeAgentic agent %s starting (provider=%s, model=%s, mode=%s, port=%d)",
		version.Version, cfg.Provider, cfg.Model, cfg.Mode, cfg.Port)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Serve(ctx, cfg.Port); err != nil {
		fmt.Fprintf(os.Stderr, "Server failed: %v\n", err)
		return 1
	}

	logger.Info("Shutdown complete")
	return 0
}

// instrumentSessions registers session and workflow gauges on the default
// registry and keeps conversation metrics in sync with eviction. Direct mode
// has no session store, so this is a no-op there.
func instrumentSessions(ag *agent.Agent, internalRecorder *agentmetrics.InternalRecorder) {
	if sessions := ag.Sessions(); sessions != nil {
		prometheus.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "agent_active_sessions",
				Help: "Number of conversation sessions currently held in memory",
			},
			func() float64 { return float64(sessions.Len()) },
		))

		evictions := prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agent_session_evictions_total",
			Help: "Total number of sessions evicted by idle timeout or capacity",
		})
		prometheus.MustRegister(evictions)

		sessions.SetEvictionHook(func(conversationID string) {
			evictions.Inc()
			// Conversation metrics follow the session out.
			internalRecorder.ClearConversationMetrics(conversationID)
		})
	}

	if executor := ag.Executor(); executor != nil {
		steps := prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "workflow_steps",
			Help:    "Number of node executions per workflow run",
			Buckets: prometheus.LinearBuckets(1, 5, 10),
		})
		prometheus.MustRegister(steps)

		executor.SetStepsObserver(func(_ string, stepCount int) {
			steps.Observe(float64(stepCount))
		})
	}
}

// loadSecrets decrypts the secrets file when one exists, sourcing the
// password from the environment or an interactive prompt.
func loadSecrets(secretsDir string) error {
	if !config.SecretsFileExists(secretsDir) {
		return nil
	}

	password, err := resolvePassword()
	if err != nil {
		return err
	}

	secrets, err := config.DecryptSecretsFile(secretsDir, password)
	if err != nil {
		return err
	}
	config.SetDecryptedSecrets(secrets)
	logx.Infof("Loaded %d secrets from %s", len(secrets), config.SecretsFilePath(secretsDir))
	return nil
}
