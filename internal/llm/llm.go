package llm

import "context"

// Request 描述发送给大模型的规划上下文。
type Request struct {
	Task    string
	HasFile bool
	Tools   []ToolSpec
	History []HistoryEntry
}

// ToolSpec 描述注册表中一个可供规划引用的工具。
type ToolSpec struct {
	Name        string
	Description string
}

// PlannedCall 是大模型建议的一次工具调用。
type PlannedCall struct {
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
}

// Plan 是大模型推理得到的结构化执行计划。
type Plan struct {
	Steps     []string      `json:"plan"`
	ToolCalls []PlannedCall `json:"tool_calls"`
}

// HistoryEntry 描述了一次历史运行，用于为大模型提供上下文记忆。
type HistoryEntry struct {
	Task      string
	Result    string
	CreatedAt int64
}

// Client 定义了调用大模型的统一接口。
type Client interface {
	// PlanTask 将自然语言任务转换为结构化计划。
	PlanTask(ctx context.Context, req Request) (*Plan, error)
	// Respond 针对没有可用工具的任务直接生成自然语言回答。
	Respond(ctx context.Context, task string) (string, error)
}
