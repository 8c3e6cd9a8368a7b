// Package logger wires the process-wide structured logger and the run audit
// trail. The main logger follows the log section of the daemon config; the
// audit trail is a separate JSON stream of completed runs, written to a
// size-rotated file when one is configured.
package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Config mirrors the daemon's log settings.
type Config struct {
	Level   string
	Format  string
	Outputs []string

	// AuditPath enables the run audit trail when non-empty. The remaining
	// Audit fields bound the rotated file set.
	AuditPath       string
	AuditMaxSizeMB  int
	AuditMaxBackups int
	AuditMaxAgeDays int
}

// RunEntry is the set of fields recorded in the audit trail for one run.
type RunEntry struct {
	RunID      string
	Task       string
	PlanSource string
	Steps      int
	ToolCalls  int
}

var (
	mu        sync.RWMutex
	appLogger *slog.Logger
	runLogger *slog.Logger
	closers   []io.Closer
)

// Init builds the global loggers from the config. Calling it again replaces
// them, which the tests rely on.
func Init(cfg Config) error {
	handler, opened, err := newHandler(cfg)
	if err != nil {
		return err
	}

	app := slog.New(handler)
	run := app
	if cfg.AuditPath != "" {
		writer, err := newAuditWriter(cfg.AuditPath, cfg.AuditMaxSizeMB, cfg.AuditMaxBackups, cfg.AuditMaxAgeDays)
		if err != nil {
			return err
		}
		opened = append(opened, writer)
		run = slog.New(slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	mu.Lock()
	defer mu.Unlock()
	appLogger = app
	runLogger = run
	closers = append(closers, opened...)
	return nil
}

// L returns the application logger, or slog's default before Init ran.
func L() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if appLogger == nil {
		return slog.Default()
	}
	return appLogger
}

// RecordRun appends one entry to the run audit trail. Without a configured
// audit file the entry goes to the application logger.
func RecordRun(entry RunEntry) {
	mu.RLock()
	target := runLogger
	mu.RUnlock()
	if target == nil {
		target = L()
	}
	target.Info("run completed",
		slog.String("run_id", entry.RunID),
		slog.String("task", entry.Task),
		slog.String("plan_source", entry.PlanSource),
		slog.Int("steps", entry.Steps),
		slog.Int("tool_calls", entry.ToolCalls),
	)
}

// Sync closes every file the loggers opened.
func Sync() error {
	mu.Lock()
	defer mu.Unlock()
	var err error
	for _, closer := range closers {
		err = errors.Join(err, closer.Close())
	}
	closers = nil
	return err
}

func newHandler(cfg Config) (slog.Handler, []io.Closer, error) {
	var opened []io.Closer
	writers := make([]io.Writer, 0, len(cfg.Outputs))
	for _, out := range cfg.Outputs {
		writer, closer, err := resolveOutput(out)
		if err != nil {
			return nil, nil, err
		}
		if closer != nil {
			opened = append(opened, closer)
		}
		writers = append(writers, writer)
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = os.Stdout
	case 1:
		writer = writers[0]
	default:
		writer = io.MultiWriter(writers...)
	}

	opts := &slog.HandlerOptions{Level: toLevel(cfg.Level), AddSource: true}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.NewTextHandler(writer, opts), opened, nil
	}
	return slog.NewJSONHandler(writer, opts), opened, nil
}

func resolveOutput(path string) (io.Writer, io.Closer, error) {
	switch strings.ToLower(path) {
	case "stdout":
		return os.Stdout, nil, nil
	case "stderr":
		return os.Stderr, nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return file, file, nil
}

func toLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
