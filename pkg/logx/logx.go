// Package logx provides structured logging for the agent process.
//
// Loggers are component-scoped: each subsystem creates its own Logger with
// NewLogger and gets a stable [timestamp] [component] LEVEL: message line
// format. Output goes to stderr by default; InitializeLogFile switches all
// loggers to a rotating log file (optionally teed to the console).
package logx

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Logger writes component-scoped log lines.
type Logger struct {
	component string
	logger    *log.Logger
}

// Level identifies log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// switchableWriter lets InitializeLogFile redirect every logger that was
// created before the log file existed.
type switchableWriter struct {
	dest io.Writer
	mu   sync.RWMutex
}

func (w *switchableWriter) Write(p []byte) (int, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.dest.Write(p) //nolint:wrapcheck // Thin writer passthrough
}

func (w *switchableWriter) swap(dest io.Writer) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.dest = dest
}

// Shared state for all loggers.
//
//nolint:gochecknoglobals // Intentional process-wide logging state
var (
	sharedOutput = &switchableWriter{dest: os.Stderr}

	debugEnabled bool
	debugMutex   sync.RWMutex

	logFile   *os.File
	logFileMu sync.Mutex
)

func init() { //nolint:gochecknoinits // Required for env var initialization
	if debug := os.Getenv("DEBUG"); debug == "1" || strings.EqualFold(debug, "true") {
		debugEnabled = true
	}
}

// NewLogger creates a logger scoped to the given component name.
func NewLogger(component string) *Logger {
	return &Logger{
		component: component,
		logger:    log.New(sharedOutput, "", 0),
	}
}

// SetDebug enables or disables debug-level logging process-wide.
func SetDebug(enabled bool) {
	debugMutex.Lock()
	defer debugMutex.Unlock()
	debugEnabled = enabled
}

// IsDebugEnabled returns whether debug logging is enabled.
func IsDebugEnabled() bool {
	debugMutex.RLock()
	defer debugMutex.RUnlock()
	return debugEnabled
}

// InitializeLogFile routes all log output to <logsDir>/agent.log, rotating
// any existing files so at most keep generations are retained (agent.log.1
// is the most recent rotated file). When tee is true output also continues
// to stderr. Must be called before serving traffic so startup logs land in
// the file.
func InitializeLogFile(logsDir string, keep int, tee bool) error {
	logFileMu.Lock()
	defer logFileMu.Unlock()

	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return fmt.Errorf("failed to create log directory %s: %w", logsDir, err)
	}

	if keep < 1 {
		keep = 1
	}
	base := filepath.Join(logsDir, "agent.log")

	// Shift agent.log.(n) -> agent.log.(n+1), dropping the oldest.
	oldest := fmt.Sprintf("%s.%d", base, keep-1)
	_ = os.Remove(oldest)
	for i := keep - 2; i >= 1; i-- {
		_ = os.Rename(fmt.Sprintf("%s.%d", base, i), fmt.Sprintf("%s.%d", base, i+1))
	}
	if _, err := os.Stat(base); err == nil && keep > 1 {
		_ = os.Rename(base, base+".1")
	}

	f, err := os.OpenFile(base, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", base, err)
	}
	logFile = f

	if tee {
		sharedOutput.swap(io.MultiWriter(os.Stderr, f))
	} else {
		sharedOutput.swap(f)
	}
	return nil
}

// CloseLogFile flushes and closes the log file, restoring stderr output.
// Should be called during shutdown.
func CloseLogFile() error {
	logFileMu.Lock()
	defer logFileMu.Unlock()

	if logFile == nil {
		return nil
	}
	sharedOutput.swap(os.Stderr)
	err := logFile.Close()
	logFile = nil
	if err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	return nil
}

func (l *Logger) log(level Level, format string, args ...any) {
	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	message := fmt.Sprintf(format, args...)
	l.logger.Printf("[%s] [%s] %s: %s", timestamp, l.component, level, message)
}

// Debug logs a debug message when debug logging is enabled (DEBUG=1).
func (l *Logger) Debug(format string, args ...any) {
	if !IsDebugEnabled() {
		return
	}
	l.log(LevelDebug, format, args...)
}

func (l *Logger) Info(format string, args ...any) {
	l.log(LevelInfo, format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.log(LevelWarn, format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.log(LevelError, format, args...)
}

// GetComponent returns the component name this logger is scoped to.
func (l *Logger) GetComponent() string {
	return l.component
}

// Package-level convenience logger for code without a component logger.
//
//nolint:gochecknoglobals // Shares the switchable output writer
var defaultLogger = NewLogger("agent")

// Debugf logs a debug message via the default logger.
func Debugf(format string, args ...any) {
	defaultLogger.Debug(format, args...)
}

// Infof logs an info message via the default logger.
func Infof(format string, args ...any) {
	defaultLogger.Info(format, args...)
}

// Warnf logs a warning via the default logger.
func Warnf(format string, args ...any) {
	defaultLogger.Warn(format, args...)
}

// Errorf logs an error message via the default logger and returns it.
func Errorf(format string, args ...any) error {
	err := fmt.Errorf(format, args...) //nolint:err113 // Dynamic errors intended here
	defaultLogger.Error("%s", err.Error())
	return err
}

// Wrap annotates an error with a message, logging nothing.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}
