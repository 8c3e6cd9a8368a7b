package tool

import (
	"context"
	"strings"
	"testing"

	"InsightAgent/internal/dataset"
)

func noopRun(_ context.Context, _ *dataset.Table) (string, error) {
	return "ok", nil
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(&Tool{Name: "Demo tool", Run: noopRun}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := registry.Register(&Tool{Name: "demo TOOL", Run: noopRun}); err == nil {
		t.Fatal("expected duplicate registration error")
	}
}

func TestRegisterRejectsInvalidTools(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(&Tool{Name: "  ", Run: noopRun}); err == nil {
		t.Fatal("expected error for empty name")
	}
	if err := registry.Register(&Tool{Name: "no runner"}); err == nil {
		t.Fatal("expected error for missing run func")
	}
}

func TestBuiltinRegistry(t *testing.T) {
	registry := Builtin()
	names := registry.Names()
	if len(names) != 2 {
		t.Fatalf("expected 2 builtin tools, got %d", len(names))
	}
	if names[0] != "Generate summary statistics" || names[1] != "Detect missing values" {
		t.Fatalf("unexpected builtin names: %v", names)
	}
	for _, spec := range registry.Specs() {
		if spec.Description == "" {
			t.Fatalf("tool %q has no description", spec.Name)
		}
	}
}

func TestMatchExactName(t *testing.T) {
	registry := Builtin()
	matched, ok := registry.Match("generate summary statistics")
	if !ok {
		t.Fatal("expected exact match")
	}
	if matched.Name != "Generate summary statistics" {
		t.Fatalf("unexpected tool: %q", matched.Name)
	}
}

func TestMatchAliasSubstring(t *testing.T) {
	registry := Builtin()

	cases := map[string]string{
		"Detect missing values in the dataset": "Detect missing values",
		"Please summarize the data":            "Generate summary statistics",
		"describe all columns":                 "Generate summary statistics",
		"check for missing entries":            "Detect missing values",
	}
	for step, want := range cases {
		matched, ok := registry.Match(step)
		if !ok {
			t.Fatalf("step %q did not match", step)
		}
		if matched.Name != want {
			t.Fatalf("step %q matched %q, want %q", step, matched.Name, want)
		}
	}
}

func TestMatchFuzzyTypo(t *testing.T) {
	registry := Builtin()
	matched, ok := registry.Match("Generate sumary statistics")
	if !ok {
		t.Fatal("expected fuzzy match for typo")
	}
	if matched.Name != "Generate summary statistics" {
		t.Fatalf("unexpected tool: %q", matched.Name)
	}
}

func TestMatchRejectsUnrelatedSteps(t *testing.T) {
	registry := Builtin()
	for _, step := range []string{"Analyze the task", "Execute the task", "Load the CSV file", ""} {
		if matched, ok := registry.Match(step); ok {
			t.Fatalf("step %q unexpectedly matched %q", step, matched.Name)
		}
	}
}

func TestBuiltinToolsRun(t *testing.T) {
	registry := Builtin()
	table, err := dataset.Parse("t.csv", strings.NewReader("a,b\n1,\n2,3\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	missingTool, _ := registry.Get("Detect missing values")
	output, err := missingTool.Run(context.Background(), table)
	if err != nil {
		t.Fatalf("run missing tool: %v", err)
	}
	if !strings.Contains(output, "Missing Values Summary") {
		t.Fatalf("unexpected missing output:\n%s", output)
	}

	summaryTool, _ := registry.Get("Generate summary statistics")
	output, err = summaryTool.Run(context.Background(), table)
	if err != nil {
		t.Fatalf("run summary tool: %v", err)
	}
	if !strings.Contains(output, "count") {
		t.Fatalf("unexpected summary output:\n%s", output)
	}
}
