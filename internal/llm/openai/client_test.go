package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"InsightAgent/internal/llm"
)

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatalf("expected error when api key is missing")
	}
}

func TestPlanTaskSuccess(t *testing.T) {
	var captured struct {
		Authorization string
		Body          map[string]any
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.Authorization = r.Header.Get("Authorization")
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&captured.Body); err != nil {
			t.Fatalf("failed to decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{
					"message": map[string]any{
						"content": `Here is the plan: {"plan": ["Load the CSV file", "Detect missing values"], "tool_calls": [{"tool_name": "Detect missing values", "arguments": {}}]}`,
					},
				},
			},
		})
	}))
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "test", BaseURL: srv.URL, Timeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	client.httpClient = srv.Client()

	plan, err := client.PlanTask(context.Background(), llm.Request{
		Task:    "Find missing values",
		HasFile: true,
		Tools:   []llm.ToolSpec{{Name: "Detect missing values"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"Load the CSV file", "Detect missing values"}
	if !reflect.DeepEqual(plan.Steps, want) {
		t.Fatalf("unexpected steps: %v", plan.Steps)
	}
	if len(plan.ToolCalls) != 1 || plan.ToolCalls[0].ToolName != "Detect missing values" {
		t.Fatalf("unexpected tool calls: %+v", plan.ToolCalls)
	}

	if captured.Authorization != "Bearer test" {
		t.Fatalf("unexpected authorization header: %q", captured.Authorization)
	}
	if got := captured.Body["temperature"]; got != 0.0 {
		t.Fatalf("unexpected temperature: %v", got)
	}
}

func TestPlanTaskRejectsMalformedOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "I cannot produce a plan for that."}},
			},
		})
	}))
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "test", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	client.httpClient = srv.Client()

	if _, err := client.PlanTask(context.Background(), llm.Request{Task: "anything"}); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestPlanTaskServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "test", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	client.httpClient = srv.Client()

	if _, err := client.PlanTask(context.Background(), llm.Request{Task: "anything"}); err == nil {
		t.Fatal("expected error for 429 response")
	}
}

func TestRespondTrimsContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "  a concise answer \n"}},
			},
		})
	}))
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "test", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	client.httpClient = srv.Client()

	reply, err := client.Respond(context.Background(), "question")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "a concise answer" {
		t.Fatalf("unexpected reply: %q", reply)
	}
}

func TestExtractJSON(t *testing.T) {
	raw, err := extractJSON(`prefix {"plan": ["a", {"nested": true}]} suffix`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(raw, "{") || !strings.HasSuffix(raw, "}") {
		t.Fatalf("unexpected extraction: %q", raw)
	}

	if _, err := extractJSON("no json here"); err == nil {
		t.Fatal("expected error when no object present")
	}
}

func TestBuildPlanPromptIncludesHistory(t *testing.T) {
	prompt := buildPlanPrompt(llm.Request{
		Task:    "summarize",
		HasFile: true,
		History: []llm.HistoryEntry{
			{Task: "earlier task", Result: "earlier result"},
		},
	})
	if !strings.Contains(prompt, "Has file: true") {
		t.Fatalf("expected file flag in prompt:\n%s", prompt)
	}
	if !strings.Contains(prompt, "earlier task") {
		t.Fatalf("expected history in prompt:\n%s", prompt)
	}
}
