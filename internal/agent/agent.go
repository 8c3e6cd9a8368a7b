package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"InsightAgent/internal/dataset"
	xerrors "InsightAgent/internal/errors"
	"InsightAgent/internal/llm"
	"InsightAgent/internal/planner"
	"InsightAgent/internal/storage/mysql"
	"InsightAgent/internal/tool"
	"InsightAgent/pkg/logger"
)

// 工具调用状态。
const (
	StatusSuccess = "success"
	StatusSkipped = "skipped"
	StatusError   = "error"
)

// 跳过原因。
const (
	ReasonNoFile         = "no_file_provided"
	ReasonNoMatchingTool = "no_matching_tool"
)

// RunRequest 描述一次运行请求。Table 在未上传文件时为 nil。
type RunRequest struct {
	ID    string
	Task  string
	Table *dataset.Table
}

// ToolCall 是执行日志中的一条工具调用记录。
type ToolCall struct {
	Step      string         `json:"step"`
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
	Status    string         `json:"status"`
	Reason    string         `json:"reason,omitempty"`
	Error     string         `json:"error,omitempty"`

	// output 仅在执行循环中携带工具产出，不参与序列化。
	output string
}

// RunResult 汇总一次运行的计划、执行日志与最终结果。
type RunResult struct {
	ID         string     `json:"id"`
	Task       string     `json:"task"`
	Plan       []string   `json:"plan"`
	PlanSource string     `json:"plan_source"`
	ToolCalls  []ToolCall `json:"tool_calls"`
	Result     string     `json:"result"`
	CreatedAt  int64      `json:"created_at"`
}

// Agent 协调规划器与工具注册表，是系统的业务核心。
type Agent struct {
	planner      *planner.Planner
	registry     *tool.Registry
	runStorage   mysql.RunRepository
	historyDepth int
	llmTimeout   time.Duration
}

// Option 定义可选的 Agent 配置。
type Option func(*Agent)

// defaultHistoryDepth 是规划时可参考的历史运行数量的默认值。
const defaultHistoryDepth = 5

// WithHistoryDepth 设置规划时可参考的历史运行数量。
func WithHistoryDepth(depth int) Option {
	return func(a *Agent) {
		a.historyDepth = depth
	}
}

// WithLLMTimeout 设置调用大模型的超时时间。
func WithLLMTimeout(timeout time.Duration) Option {
	return func(a *Agent) {
		if timeout <= 0 {
			a.llmTimeout = 0
			return
		}
		a.llmTimeout = timeout
	}
}

// New 创建一个 Agent。
func New(p *planner.Planner, registry *tool.Registry, repo mysql.RunRepository, opts ...Option) *Agent {
	ag := &Agent{
		planner:      p,
		registry:     registry,
		runStorage:   repo,
		historyDepth: defaultHistoryDepth,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ag)
		}
	}
	if ag.historyDepth <= 0 {
		ag.historyDepth = defaultHistoryDepth
	}
	return ag
}

// Execute 规划任务并逐步执行匹配到的工具，返回带执行日志的结果。
func (a *Agent) Execute(ctx context.Context, req RunRequest) (*RunResult, error) {
	if a.planner == nil || a.registry == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "Agent 未初始化")
	}

	task := strings.TrimSpace(req.Task)
	if task == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "任务内容不能为空")
	}

	hasFile := req.Table != nil

	// 规划阶段。大模型调用受超时约束，失败时由 Planner 降级到规则。
	planCtx := ctx
	if a.llmTimeout > 0 {
		var cancel context.CancelFunc
		planCtx, cancel = context.WithTimeout(ctx, a.llmTimeout)
		defer cancel()
	}
	plan, source := a.planner.CreatePlan(planCtx, llm.Request{
		Task:    task,
		HasFile: hasFile,
		Tools:   a.registry.Specs(),
		History: a.loadHistory(ctx),
	})

	// 执行阶段。逐条步骤匹配工具并记录结果。
	toolCalls := make([]ToolCall, 0, len(plan.Steps))
	result := ""
	for _, step := range plan.Steps {
		call := a.executeStep(ctx, step, req.Table)
		toolCalls = append(toolCalls, call)

		switch call.Status {
		case StatusSuccess:
			result = call.output
		case StatusSkipped:
			if call.Reason == ReasonNoFile {
				result = a.noFileResult(call.ToolName)
			}
		case StatusError:
			result = fmt.Sprintf("Error running tool: %s", call.Error)
		}
	}

	// 没有任何工具产出时，尝试让大模型直接回答。
	if result == "" {
		result = a.respondDirectly(ctx, task)
	}

	runID := strings.TrimSpace(req.ID)
	if runID == "" {
		runID = uuid.NewString()
	}

	runResult := &RunResult{
		ID:         runID,
		Task:       task,
		Plan:       plan.Steps,
		PlanSource: string(source),
		ToolCalls:  toolCalls,
		Result:     result,
		CreatedAt:  time.Now().Unix(),
	}

	if a.runStorage != nil {
		if err := a.saveRun(ctx, runResult); err != nil {
			return nil, err
		}
	}

	logger.RecordRun(logger.RunEntry{
		RunID:      runID,
		Task:       task,
		PlanSource: runResult.PlanSource,
		Steps:      len(plan.Steps),
		ToolCalls:  len(toolCalls),
	})
	return runResult, nil
}

// executeStep 将单条步骤解析为工具并执行。
func (a *Agent) executeStep(ctx context.Context, step string, table *dataset.Table) ToolCall {
	call := ToolCall{Step: step, Arguments: map[string]any{}}

	matched, ok := a.registry.Match(step)
	if !ok {
		call.Status = StatusSkipped
		call.Reason = ReasonNoMatchingTool
		return call
	}
	call.ToolName = matched.Name

	if matched.NeedsFile && table == nil {
		call.Status = StatusSkipped
		call.Reason = ReasonNoFile
		return call
	}

	output, err := matched.Run(ctx, table)
	if err != nil {
		call.Status = StatusError
		call.Error = err.Error()
		logger.L().Warn("工具执行失败",
			slog.String("tool", matched.Name),
			slog.String("step", step),
			slog.Any("error", err),
		)
		return call
	}

	call.Status = StatusSuccess
	call.output = output
	return call
}

// noFileResult 返回工具自带的缺文件提示语，未配置时退回通用措辞。
func (a *Agent) noFileResult(toolName string) string {
	if matched, ok := a.registry.Get(toolName); ok && matched.NoFileMessage != "" {
		return matched.NoFileMessage
	}
	return fmt.Sprintf("No file provided for %s", strings.ToLower(toolName))
}

// respondDirectly 在没有可用工具时让大模型直接回答任务。
func (a *Agent) respondDirectly(ctx context.Context, task string) string {
	if !a.planner.CanRespond() {
		return "No registered tool matched the requested task."
	}
	reply, err := a.planner.Respond(ctx, task)
	if err != nil {
		logger.L().Warn("大模型直接回答失败", slog.Any("error", err))
		return "No registered tool matched the requested task."
	}
	return reply
}

// saveRun 将运行结果写入仓库。
func (a *Agent) saveRun(ctx context.Context, result *RunResult) error {
	encoded, err := json.Marshal(result.ToolCalls)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化执行日志失败")
	}
	record := mysql.RunRecord{
		ID:         result.ID,
		Task:       result.Task,
		Plan:       result.Plan,
		PlanSource: result.PlanSource,
		ToolCalls:  string(encoded),
		Result:     result.Result,
		CreatedAt:  result.CreatedAt,
	}
	if err := a.runStorage.Save(ctx, record); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "保存运行记录失败")
	}
	return nil
}

// loadHistory 加载历史运行记录以供大模型规划参考。
func (a *Agent) loadHistory(ctx context.Context) []llm.HistoryEntry {
	if a.runStorage == nil || a.historyDepth <= 0 {
		return nil
	}

	records, err := a.runStorage.ListLatest(ctx, a.historyDepth)
	if err != nil {
		logger.L().Warn("加载历史运行失败", slog.Any("error", err))
		return nil
	}

	history := make([]llm.HistoryEntry, 0, len(records))
	for _, record := range records {
		history = append(history, llm.HistoryEntry{
			Task:      record.Task,
			Result:    record.Result,
			CreatedAt: record.CreatedAt,
		})
	}
	return history
}

// ListHistory 获取最近的运行记录。
func (a *Agent) ListHistory(ctx context.Context, limit int) ([]RunResult, error) {
	if a.runStorage == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置运行仓库")
	}

	records, err := a.runStorage.ListLatest(ctx, limit)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询运行记录失败")
	}

	results := make([]RunResult, 0, len(records))
	for _, record := range records {
		result := RunResult{
			ID:         record.ID,
			Task:       record.Task,
			Plan:       record.Plan,
			PlanSource: record.PlanSource,
			Result:     record.Result,
			CreatedAt:  record.CreatedAt,
		}
		if record.ToolCalls != "" {
			if err := json.Unmarshal([]byte(record.ToolCalls), &result.ToolCalls); err != nil {
				result.ToolCalls = nil
			}
		}
		results = append(results, result)
	}
	return results, nil
}
