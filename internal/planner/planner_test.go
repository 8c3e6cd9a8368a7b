package planner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"InsightAgent/internal/llm"
	"InsightAgent/internal/plancache"
)

type stubLLM struct {
	plan  *llm.Plan
	err   error
	calls int
}

func (s *stubLLM) PlanTask(_ context.Context, _ llm.Request) (*llm.Plan, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.plan, nil
}

func (s *stubLLM) Respond(_ context.Context, _ string) (string, error) {
	return "direct answer", nil
}

func TestDefaultPlaybookFileRules(t *testing.T) {
	playbook := DefaultPlaybook()

	cases := []struct {
		task    string
		hasFile bool
		want    []string
	}{
		{
			task:    "Summarize the uploaded file",
			hasFile: true,
			want:    []string{"Load the CSV file", "Generate summary statistics"},
		},
		{
			task:    "Find missing values in the csv",
			hasFile: false,
			want:    []string{"Load the CSV file", "Detect missing values"},
		},
		{
			task:    "Check missing data and give a summary",
			hasFile: true,
			want:    []string{"Load the CSV file", "Detect missing values", "Generate summary statistics"},
		},
		{
			task:    "Summarize the quarterly report",
			hasFile: false,
			want:    []string{"Generate summary statistics"},
		},
		{
			task:    "Translate this text",
			hasFile: false,
			want:    []string{"Analyze the task", "Execute the task"},
		},
		{
			task:    "Do something with the data",
			hasFile: true,
			want:    []string{"Load the CSV file"},
		},
	}

	for _, tc := range cases {
		got := playbook.Plan(tc.task, tc.hasFile)
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("task %q (file=%v): got %v, want %v", tc.task, tc.hasFile, got, tc.want)
		}
	}
}

func TestCreatePlanWithoutLLMUsesRules(t *testing.T) {
	p := New()
	plan, source := p.CreatePlan(context.Background(), llm.Request{Task: "summarize sales", HasFile: true})
	if source != SourceRules {
		t.Fatalf("expected rules source, got %q", source)
	}
	if len(plan.Steps) == 0 {
		t.Fatal("expected non-empty plan")
	}
}

func TestCreatePlanPrefersLLM(t *testing.T) {
	client := &stubLLM{plan: &llm.Plan{Steps: []string{"Detect missing values"}}}
	p := New(WithLLM(client))

	plan, source := p.CreatePlan(context.Background(), llm.Request{Task: "missing check", HasFile: true})
	if source != SourceLLM {
		t.Fatalf("expected llm source, got %q", source)
	}
	if len(plan.Steps) != 1 || plan.Steps[0] != "Detect missing values" {
		t.Fatalf("unexpected plan: %v", plan.Steps)
	}
}

func TestCreatePlanFallsBackOnLLMError(t *testing.T) {
	client := &stubLLM{err: errors.New("api unavailable")}
	p := New(WithLLM(client))

	plan, source := p.CreatePlan(context.Background(), llm.Request{Task: "summarize sales", HasFile: true})
	if source != SourceRules {
		t.Fatalf("expected rules fallback, got %q", source)
	}
	want := []string{"Load the CSV file", "Generate summary statistics"}
	if !reflect.DeepEqual(plan.Steps, want) {
		t.Fatalf("unexpected fallback plan: %v", plan.Steps)
	}
}

func TestCreatePlanFallsBackOnEmptyPlan(t *testing.T) {
	client := &stubLLM{plan: &llm.Plan{}}
	p := New(WithLLM(client))

	_, source := p.CreatePlan(context.Background(), llm.Request{Task: "anything"})
	if source != SourceRules {
		t.Fatalf("expected rules fallback, got %q", source)
	}
}

func TestCreatePlanUsesCache(t *testing.T) {
	client := &stubLLM{plan: &llm.Plan{Steps: []string{"Generate summary statistics"}}}
	cache := plancache.NewMemoryCache(0)
	p := New(WithLLM(client), WithCache(cache))

	req := llm.Request{Task: "summarize sales", HasFile: true}
	if _, source := p.CreatePlan(context.Background(), req); source != SourceLLM {
		t.Fatalf("expected llm source on first call, got %q", source)
	}
	if _, source := p.CreatePlan(context.Background(), req); source != SourceCache {
		t.Fatalf("expected cache source on second call, got %q", source)
	}
	if client.calls != 1 {
		t.Fatalf("expected 1 llm call, got %d", client.calls)
	}
}

func TestCanRespond(t *testing.T) {
	if New().CanRespond() {
		t.Fatal("planner without llm should not respond")
	}
	p := New(WithLLM(&stubLLM{}))
	if !p.CanRespond() {
		t.Fatal("planner with llm should respond")
	}
	reply, err := p.Respond(context.Background(), "hello")
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if reply != "direct answer" {
		t.Fatalf("unexpected reply: %q", reply)
	}
}

func TestLoadPlaybookFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "playbook.yaml")
	raw := `file_context_keywords: ["csv", "dataset"]
file_rules:
  - step: "Load the CSV file"
  - keywords: ["missing"]
    step: "Detect missing values"
rules:
  - keywords: ["report"]
    step: "Generate summary statistics"
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write playbook: %v", err)
	}

	playbook, err := LoadPlaybook(path)
	if err != nil {
		t.Fatalf("load playbook: %v", err)
	}

	got := playbook.Plan("inspect the dataset for missing rows", false)
	want := []string{"Load the CSV file", "Detect missing values"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected plan: %v", got)
	}

	// 未配置 fallback 时沿用默认值。
	got = playbook.Plan("anything else", false)
	if !reflect.DeepEqual(got, DefaultPlaybook().Fallback) {
		t.Fatalf("expected default fallback, got %v", got)
	}
}

func TestLoadPlaybookMissingPath(t *testing.T) {
	if _, err := LoadPlaybook(""); err == nil {
		t.Fatal("expected error for empty path")
	}
	if _, err := LoadPlaybook("does/not/exist.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
