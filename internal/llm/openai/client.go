package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"InsightAgent/internal/llm"
)

const (
	defaultBaseURL   = "https://api.openai.com/v1"
	defaultModelName = "gpt-4o-mini"
	defaultTimeout   = 60 * time.Second
)

// Config 描述了调用 OpenAI Chat Completions API 所需的信息。
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client 通过 HTTP 调用 OpenAI 兼容接口完成任务规划与直接回答。
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewClient 根据配置创建 OpenAI 客户端。
func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("未提供 OpenAI API Key")
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModelName
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// PlanTask 调用大模型生成结构化执行计划。
func (c *Client) PlanTask(ctx context.Context, req llm.Request) (*llm.Plan, error) {
	content, err := c.complete(ctx, planSystemPrompt(req.Tools), buildPlanPrompt(req))
	if err != nil {
		return nil, err
	}

	plan, err := parsePlan(content)
	if err != nil {
		return nil, err
	}
	return plan, nil
}

// Respond 针对无需工具的任务直接生成自然语言回答。
func (c *Client) Respond(ctx context.Context, task string) (string, error) {
	content, err := c.complete(ctx, respondSystemPrompt, task)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(content), nil
}

// complete 发送一次对话请求并返回首个 choice 的内容。
func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	payload, err := buildPayload(c.model, system, user)
	if err != nil {
		return "", err
	}

	endpoint := c.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("构建 OpenAI 请求失败: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("请求 OpenAI 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("OpenAI 返回错误状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("解析 OpenAI 响应失败: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", errors.New("OpenAI 响应中没有有效的 choices")
	}

	content := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if content == "" {
		return "", errors.New("OpenAI 响应内容为空")
	}
	return content, nil
}

func buildPayload(model, system, user string) ([]byte, error) {
	type message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}

	messages := []message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}

	body := map[string]any{
		"model":       model,
		"messages":    messages,
		"temperature": 0.0,
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("序列化 OpenAI 请求失败: %w", err)
	}
	return encoded, nil
}

// parsePlan 从模型输出中提取并校验计划 JSON。
func parsePlan(content string) (*llm.Plan, error) {
	raw, err := extractJSON(content)
	if err != nil {
		raw = content
	}

	var decoded struct {
		Plan      json.RawMessage `json:"plan"`
		ToolCalls json.RawMessage `json:"tool_calls"`
	}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, fmt.Errorf("无法从模型输出解析计划 JSON: %w", err)
	}

	var plan llm.Plan
	if len(decoded.Plan) == 0 || json.Unmarshal(decoded.Plan, &plan.Steps) != nil {
		return nil, errors.New("模型输出缺少有效的 plan 数组")
	}
	if len(decoded.ToolCalls) > 0 {
		if err := json.Unmarshal(decoded.ToolCalls, &plan.ToolCalls); err != nil {
			return nil, errors.New("模型输出的 tool_calls 不是列表")
		}
	}
	return &plan, nil
}

// extractJSON 通过括号扫描提取文本中首个完整的 JSON 对象。
func extractJSON(text string) (string, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", errors.New("模型输出中没有 JSON 对象")
	}
	depth := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}
	return text[start:], nil
}

func planSystemPrompt(tools []llm.ToolSpec) string {
	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.Name)
	}
	toolsInfo := "No tools available"
	if len(names) > 0 {
		toolsInfo = strings.Join(names, ", ")
	}
	return "You are an assistant that converts a user's plain-English task into a structured execution plan. " +
		"Respond ONLY with a single valid JSON object and nothing else. The JSON must contain the keys: " +
		"'plan' (an array of short human-readable step strings) and 'tool_calls' (an array of objects with keys 'tool_name' and 'arguments'). " +
		"If there are no suggested tool calls, return an empty array for 'tool_calls'. Keep the plan concise.\n\n" +
		"Available tools to reference in your plan:\n- " + toolsInfo
}

const respondSystemPrompt = "You are a helpful assistant. Provide a concise, direct answer. " +
	"If the question is unclear, ask a brief clarifying question."

func buildPlanPrompt(req llm.Request) string {
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("Task: %s\nHas file: %t\n", strings.TrimSpace(req.Task), req.HasFile))

	if len(req.History) > 0 {
		builder.WriteString("\nRecent runs for context:\n")
		for idx, entry := range req.History {
			builder.WriteString(fmt.Sprintf("[%d] task: %s | result: %s\n",
				idx+1,
				strings.TrimSpace(entry.Task),
				truncate(entry.Result),
			))
			if idx >= 4 {
				break
			}
		}
	}

	builder.WriteString("\nGenerate a plan that references the available tools (if applicable). ")
	builder.WriteString("Return the JSON object that represents the plan. Example format:\n")
	builder.WriteString(`{"plan": ["Load the CSV file", "Detect missing values"], "tool_calls": [{"tool_name": "Detect missing values", "arguments": {}}]}`)
	return builder.String()
}

func truncate(text string) string {
	text = strings.TrimSpace(text)
	if len([]rune(text)) > 80 {
		return string([]rune(text)[:80]) + "..."
	}
	return text
}

var _ llm.Client = (*Client)(nil)
