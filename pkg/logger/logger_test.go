package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRecordRunWritesAuditFile(t *testing.T) {
	dir := t.TempDir()
	auditPath := filepath.Join(dir, "audit.log")

	if err := Init(Config{
		Level:     "info",
		Format:    "json",
		Outputs:   []string{"stderr"},
		AuditPath: auditPath,
	}); err != nil {
		t.Fatalf("init: %v", err)
	}

	RecordRun(RunEntry{
		RunID:      "run-1",
		Task:       "summarize sales",
		PlanSource: "rules",
		Steps:      2,
		ToolCalls:  2,
	})
	if err := Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}

	raw, err := os.ReadFile(auditPath)
	if err != nil {
		t.Fatalf("read audit log: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(raw), &entry); err != nil {
		t.Fatalf("decode audit entry: %v", err)
	}
	if entry["run_id"] != "run-1" || entry["plan_source"] != "rules" {
		t.Fatalf("unexpected audit entry: %v", entry)
	}
	if entry["msg"] != "run completed" {
		t.Fatalf("unexpected message: %v", entry["msg"])
	}
}

func TestInitRejectsUnwritableAuditPath(t *testing.T) {
	err := Init(Config{
		Outputs:   []string{"stderr"},
		AuditPath: string([]byte{0}),
	})
	if err == nil {
		t.Fatal("expected error for invalid audit path")
	}
}

func TestAuditWriterRotatesAndPrunes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.log")

	writer, err := newAuditWriter(path, 1, 1, 1)
	if err != nil {
		t.Fatalf("new audit writer: %v", err)
	}
	writer.limit = 64

	payload := []byte(strings.Repeat("a", 40))
	for i := 0; i < 3; i++ {
		if _, err := writer.Write(payload); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	current := 0
	backups := 0
	for _, entry := range entries {
		switch {
		case entry.Name() == "audit.log":
			current++
		case strings.HasPrefix(entry.Name(), "audit.log."):
			backups++
		}
	}
	if current != 1 {
		t.Fatalf("expected current audit file, found %d", current)
	}
	// keep=1 时第二次轮转会淘汰最早的备份。
	if backups != 1 {
		t.Fatalf("expected 1 retained backup, got %d", backups)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat current file: %v", err)
	}
	if info.Size() != 40 {
		t.Fatalf("unexpected current size: %d", info.Size())
	}
}
