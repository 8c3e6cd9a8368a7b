package insight

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. Runs are synchronous on the server side, so the default
// leaves room for LLM-backed planning.
const DefaultHTTPTimeout = 90 * time.Second

// Client wraps the HTTP interactions with the InsightAgent REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// RunSubmission represents the payload required to start a run. Dataset is
// optional; when set, DatasetName is used as the uploaded file name.
type RunSubmission struct {
	Task        string
	DatasetName string
	Dataset     io.Reader
}

// ToolCall is one entry of the structured execution log returned by a run.
type ToolCall struct {
	Step      string         `json:"step"`
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
	Status    string         `json:"status"`
	Reason    string         `json:"reason,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// Run contains the plan, execution log and final result of a run.
type Run struct {
	ID         string     `json:"id"`
	Task       string     `json:"task"`
	Plan       []string   `json:"plan"`
	PlanSource string     `json:"plan_source"`
	ToolCalls  []ToolCall `json:"tool_calls"`
	Result     string     `json:"result"`
	CreatedAt  int64      `json:"created_at"`
}

// Health reports the backend liveness status.
type Health struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("insight api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("insight api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the InsightAgent API. When httpClient is
// nil, a default client with a sensible timeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// CreateRun submits a task, waits for the synchronous execution and returns
// the finished run.
func (c *Client) CreateRun(ctx context.Context, submission RunSubmission) (Run, error) {
	if submission.Task == "" {
		return Run{}, errors.New("insight: task must not be empty")
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("task", submission.Task); err != nil {
		return Run{}, fmt.Errorf("encode task field: %w", err)
	}
	if submission.Dataset != nil {
		name := submission.DatasetName
		if name == "" {
			name = "dataset.csv"
		}
		part, err := writer.CreateFormFile("file", name)
		if err != nil {
			return Run{}, fmt.Errorf("create file part: %w", err)
		}
		if _, err := io.Copy(part, submission.Dataset); err != nil {
			return Run{}, fmt.Errorf("copy dataset: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return Run{}, fmt.Errorf("finalize multipart body: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/v1/runs", &body)
	if err != nil {
		return Run{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var run Run
	if err := c.do(req, &run); err != nil {
		return Run{}, err
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first. A non-positive limit
// falls back to the server default.
func (c *Client) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	endpoint := "/api/v1/runs"
	if limit > 0 {
		endpoint += "?limit=" + strconv.Itoa(limit)
	}
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	var runs []Run
	if err := c.do(req, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

// CheckHealth probes the backend health endpoint.
func (c *Client) CheckHealth(ctx context.Context) (Health, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return Health{}, err
	}
	var health Health
	if err := c.do(req, &health); err != nil {
		return Health{}, err
	}
	return health, nil
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	rel := &url.URL{Path: path.Join(c.baseURL.Path, parsed.Path), RawQuery: parsed.RawQuery}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, &apiErr)
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return &apiErr
	}

	if out == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
