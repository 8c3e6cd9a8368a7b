package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// backupStamp names rotated audit files; lexical order equals time order.
const backupStamp = "20060102T150405.000000000"

// auditWriter appends to the audit file and rotates it when the next write
// would push it past the size limit. Rotated files carry a timestamp suffix
// and are pruned by count and age.
type auditWriter struct {
	mu      sync.Mutex
	path    string
	limit   int64
	keep    int
	maxAge  time.Duration
	file    *os.File
	written int64
}

func newAuditWriter(path string, maxSizeMB, keep, maxAgeDays int) (*auditWriter, error) {
	if path == "" {
		return nil, fmt.Errorf("audit log path cannot be empty")
	}
	if maxSizeMB <= 0 {
		maxSizeMB = 100
	}
	if keep <= 0 {
		keep = 7
	}
	if maxAgeDays <= 0 {
		maxAgeDays = 30
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit log directory: %w", err)
	}
	w := &auditWriter{
		path:   path,
		limit:  int64(maxSizeMB) * 1024 * 1024,
		keep:   keep,
		maxAge: time.Duration(maxAgeDays) * 24 * time.Hour,
	}
	// Open eagerly so a bad path fails at Init time.
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *auditWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.open(); err != nil {
		return 0, err
	}
	if w.written+int64(len(p)) > w.limit {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := w.file.Write(p)
	w.written += int64(n)
	return n, err
}

func (w *auditWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	w.written = 0
	return err
}

// open lazily opens the current audit file and resumes its byte count.
func (w *auditWriter) open() error {
	if w.file != nil {
		return nil
	}
	file, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("stat audit log: %w", err)
	}
	w.file = file
	w.written = info.Size()
	return nil
}

// rotate renames the current file to a timestamped backup and reopens.
func (w *auditWriter) rotate() error {
	if w.file != nil {
		_ = w.file.Close()
		w.file = nil
		w.written = 0
	}
	backup := fmt.Sprintf("%s.%s", w.path, time.Now().Format(backupStamp))
	if err := os.Rename(w.path, backup); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("rotate audit log: %w", err)
	}
	w.prune()
	return w.open()
}

// prune removes backups beyond the retention count or older than maxAge.
func (w *auditWriter) prune() {
	prefix := filepath.Base(w.path) + "."
	dir := filepath.Dir(w.path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	var backups []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		backups = append(backups, entry.Name())
	}
	sort.Strings(backups)

	cutoff := time.Now().Add(-w.maxAge)
	excess := len(backups) - w.keep
	for idx, name := range backups {
		full := filepath.Join(dir, name)
		if idx < excess {
			_ = os.Remove(full)
			continue
		}
		if info, err := os.Stat(full); err == nil && info.ModTime().Before(cutoff) {
			_ = os.Remove(full)
		}
	}
}
