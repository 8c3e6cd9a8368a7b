package insight

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCreateRunSendsMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/runs" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if got := r.FormValue("task"); got != "Summarize the CSV" {
			t.Fatalf("unexpected task: %q", got)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer file.Close()
		if header.Filename != "sales.csv" {
			t.Fatalf("unexpected file name: %q", header.Filename)
		}
		_ = json.NewEncoder(w).Encode(Run{ID: "run-1", Result: "done"})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	run, err := client.CreateRun(context.Background(), RunSubmission{
		Task:        "Summarize the CSV",
		DatasetName: "sales.csv",
		Dataset:     strings.NewReader("a,b\n1,2\n"),
	})
	if err != nil {
		t.Fatalf("create run: %v", err)
	}
	if run.ID != "run-1" {
		t.Fatalf("unexpected run id: %q", run.ID)
	}
}

func TestCreateRunWithoutDataset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if _, _, err := r.FormFile("file"); err != http.ErrMissingFile {
			t.Fatalf("expected missing file, got %v", err)
		}
		_ = json.NewEncoder(w).Encode(Run{ID: "run-2"})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	if _, err := client.CreateRun(context.Background(), RunSubmission{Task: "Analyze"}); err != nil {
		t.Fatalf("create run: %v", err)
	}
}

func TestCreateRunRequiresTask(t *testing.T) {
	client, err := NewClient("http://127.0.0.1:0", nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.CreateRun(context.Background(), RunSubmission{}); err == nil {
		t.Fatal("expected error for empty task")
	}
}

func TestListRunsPassesLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/runs" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("limit"); got != "3" {
			t.Fatalf("unexpected limit: %q", got)
		}
		_ = json.NewEncoder(w).Encode([]Run{{ID: "a"}, {ID: "b"}, {ID: "c"}})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	runs, err := client.ListRuns(context.Background(), 3)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(runs))
	}
}

func TestAPIErrorDecoding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"code":    "INVALID_ARGUMENT",
			"message": "task 字段不能为空",
		})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.ListRuns(context.Background(), 0)
	if err == nil {
		t.Fatal("expected error")
	}
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.Code != "INVALID_ARGUMENT" {
		t.Fatalf("unexpected error code: %s", apiErr.Code)
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", apiErr.StatusCode)
	}
}

func TestCheckHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(Health{Status: "ok", Message: "InsightAgent backend is running"})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	health, err := client.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("check health: %v", err)
	}
	if health.Status != "ok" {
		t.Fatalf("unexpected status: %q", health.Status)
	}
}
