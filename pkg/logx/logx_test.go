package logx

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// setupTestLogger redirects shared log output into a buffer.
func setupTestLogger() *bytes.Buffer {
	var buf bytes.Buffer
	sharedOutput.swap(&buf)
	return &buf
}

// resetTestLogger restores the default stderr output.
func resetTestLogger() {
	sharedOutput.swap(os.Stderr)
}

func TestNewLogger(t *testing.T) {
	logger := NewLogger("executor")

	if logger.GetComponent() != "executor" {
		t.Errorf("Expected component 'executor', got '%s'", logger.GetComponent())
	}

	if logger == nil {
		t.Error("Expected logger to be initialized")
	}
}

func TestLogFormat(t *testing.T) {
	buf := setupTestLogger()
	defer resetTestLogger()

	logger := NewLogger("provider")
	logger.Info("Test message with %s", "formatting")

	output := buf.String()

	if !strings.Contains(output, "[provider]") {
		t.Errorf("Expected component in output, got: %s", output)
	}

	if !strings.Contains(output, "INFO") {
		t.Errorf("Expected log level in output, got: %s", output)
	}

	if !strings.Contains(output, "Test message with formatting") {
		t.Errorf("Expected formatted message in output, got: %s", output)
	}

	// Check timestamp format (basic check)
	if !strings.Contains(output, "T") || !strings.Contains(output, "Z") {
		t.Errorf("Expected ISO timestamp in output, got: %s", output)
	}
}

func TestLogLevels(t *testing.T) {
	logger := NewLogger("executor")

	tests := []struct {
		level    Level
		logFunc  func(string, ...any)
		expected string
	}{
		{LevelDebug, logger.Debug, "DEBUG"},
		{LevelInfo, logger.Info, "INFO"},
		{LevelWarn, logger.Warn, "WARN"},
		{LevelError, logger.Error, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			buf := setupTestLogger()
			defer resetTestLogger()

			// Enable debug for DEBUG level test.
			if tt.level == LevelDebug {
				SetDebug(true)
				defer SetDebug(false)
			}

			tt.logFunc("test message")

			output := buf.String()
			if !strings.Contains(output, tt.expected) {
				t.Errorf("Expected level '%s' in output, got: %s", tt.expected, output)
			}
		})
	}
}

func TestDebugSuppressedByDefault(t *testing.T) {
	buf := setupTestLogger()
	defer resetTestLogger()

	SetDebug(false)
	logger := NewLogger("executor")
	logger.Debug("hidden message")

	if buf.Len() != 0 {
		t.Errorf("Expected no output for debug when disabled, got: %s", buf.String())
	}
}

func TestLogFormatting(t *testing.T) {
	buf := setupTestLogger()
	defer resetTestLogger()

	logger := NewLogger("workflow")
	logger.Info("Processing step %d for conversation %s", 3, "single-turn")

	output := buf.String()

	if !strings.Contains(output, "Processing step 3 for conversation single-turn") {
		t.Errorf("Expected formatted message, got: %s", output)
	}
}

func TestMultipleComponents(t *testing.T) {
	buf := setupTestLogger()
	defer resetTestLogger()

	server := NewLogger("server")
	executor := NewLogger("executor")

	server.Info("Handling request")
	executor.Info("Running workflow")

	output := buf.String()
	lines := strings.Split(strings.TrimSpace(output), "\n")

	if len(lines) != 2 {
		t.Errorf("Expected 2 log lines, got %d", len(lines))
	}

	if len(lines) > 0 && !strings.Contains(lines[0], "[server]") {
		t.Errorf("Expected first line to contain [server], got: %s", lines[0])
	}

	if len(lines) > 1 && !strings.Contains(lines[1], "[executor]") {
		t.Errorf("Expected second line to contain [executor], got: %s", lines[1])
	}
}

func TestLogLevelConstants(t *testing.T) {
	expectedLevels := map[Level]string{
		LevelDebug: "DEBUG",
		LevelInfo:  "INFO",
		LevelWarn:  "WARN",
		LevelError: "ERROR",
	}

	for level, expected := range expectedLevels {
		if string(level) != expected {
			t.Errorf("Expected level constant %s to equal '%s', got '%s'",
				expected, expected, string(level))
		}
	}
}

func TestTimestampFormat(t *testing.T) {
	buf := setupTestLogger()
	defer resetTestLogger()

	logger := NewLogger("test")
	logger.Info("timestamp test")

	output := buf.String()

	// Extract timestamp (should be between first [ and ])
	start := strings.Index(output, "[")
	end := strings.Index(output, "]")

	if start == -1 || end == -1 || end <= start {
		t.Fatalf("Could not find timestamp in output: %s", output)
	}

	timestamp := output[start+1 : end]

	_, err := time.Parse("2006-01-02T15:04:05.000Z", timestamp)
	if err != nil {
		t.Errorf("Invalid timestamp format '%s': %v", timestamp, err)
	}
}

func TestErrorfReturnsError(t *testing.T) {
	buf := setupTestLogger()
	defer resetTestLogger()

	err := Errorf("provider %s failed", "openai")
	if err == nil {
		t.Fatal("Expected Errorf to return an error")
	}

	if err.Error() != "provider openai failed" {
		t.Errorf("Unexpected error message: %s", err.Error())
	}

	if !strings.Contains(buf.String(), "provider openai failed") {
		t.Errorf("Expected error to be logged, got: %s", buf.String())
	}
}

func TestWrap(t *testing.T) {
	base := errors.New("connection refused")

	wrapped := Wrap(base, "sending request")
	if wrapped == nil {
		t.Fatal("Expected wrapped error")
	}

	if wrapped.Error() != "sending request: connection refused" {
		t.Errorf("Unexpected wrapped message: %s", wrapped.Error())
	}

	if !errors.Is(wrapped, base) {
		t.Error("Expected wrapped error to match the base error")
	}

	if Wrap(nil, "ignored") != nil {
		t.Error("Expected Wrap(nil) to return nil")
	}
}

func TestInitializeLogFileRotation(t *testing.T) {
	defer resetTestLogger()
	dir := t.TempDir()

	// Seed an existing log so initialization rotates it.
	existing := filepath.Join(dir, "agent.log")
	if err := os.WriteFile(existing, []byte("old run\n"), 0o644); err != nil {
		t.Fatalf("Failed to seed log file: %v", err)
	}

	if err := InitializeLogFile(dir, 3, false); err != nil {
		t.Fatalf("InitializeLogFile failed: %v", err)
	}

	logger := NewLogger("boot")
	logger.Info("fresh run")

	if err := CloseLogFile(); err != nil {
		t.Fatalf("CloseLogFile failed: %v", err)
	}

	rotated, err := os.ReadFile(filepath.Join(dir, "agent.log.1"))
	if err != nil {
		t.Fatalf("Expected rotated log file: %v", err)
	}
	if !strings.Contains(string(rotated), "old run") {
		t.Errorf("Expected rotated file to hold previous contents, got: %s", rotated)
	}

	current, err := os.ReadFile(existing)
	if err != nil {
		t.Fatalf("Expected fresh log file: %v", err)
	}
	if !strings.Contains(string(current), "fresh run") {
		t.Errorf("Expected new log file to hold current run output, got: %s", current)
	}
}
