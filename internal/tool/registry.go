package tool

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"InsightAgent/internal/dataset"
	xerrors "InsightAgent/internal/errors"
	"InsightAgent/internal/llm"
)

// RunFunc 是工具的执行入口。table 在工具不需要文件时可能为 nil。
type RunFunc func(ctx context.Context, table *dataset.Table) (string, error)

// Tool 描述注册表中的一个数据分析工具。
type Tool struct {
	Name        string
	Aliases     []string
	Description string
	NeedsFile   bool
	// NoFileMessage 是该工具需要文件但未上传时写入最终结果的提示语。
	NoFileMessage string
	Run           RunFunc
}

// Registry 保存固定的工具集合，按名称检索。
type Registry struct {
	tools map[string]*Tool
	order []string
}

// NewRegistry 创建一个空的注册表。
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register 将工具加入注册表。重复注册同名工具会返回错误。
func (r *Registry) Register(tool *Tool) error {
	if tool == nil || strings.TrimSpace(tool.Name) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "工具名称不能为空")
	}
	if tool.Run == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "工具缺少执行函数")
	}
	key := normalize(tool.Name)
	if _, ok := r.tools[key]; ok {
		return xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("工具 %q 已注册", tool.Name))
	}
	r.tools[key] = tool
	r.order = append(r.order, key)
	return nil
}

// Get 按名称（大小写不敏感）查找工具。
func (r *Registry) Get(name string) (*Tool, bool) {
	tool, ok := r.tools[normalize(name)]
	return tool, ok
}

// Names 返回注册顺序下的所有工具名称。
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.order))
	for _, key := range r.order {
		names = append(names, r.tools[key].Name)
	}
	return names
}

// Specs 返回供规划提示词引用的工具说明列表。
func (r *Registry) Specs() []llm.ToolSpec {
	specs := make([]llm.ToolSpec, 0, len(r.order))
	for _, key := range r.order {
		tool := r.tools[key]
		specs = append(specs, llm.ToolSpec{Name: tool.Name, Description: tool.Description})
	}
	return specs
}

// all 返回按名称排序的工具列表，供匹配器稳定遍历。
func (r *Registry) all() []*Tool {
	tools := make([]*Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		tools = append(tools, tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Builtin 构造包含全部内置数据分析工具的注册表。
func Builtin() *Registry {
	registry := NewRegistry()
	// 固定的两个分析工具，与规则规划器产出的步骤名保持一致。
	_ = registry.Register(&Tool{
		Name:          "Generate summary statistics",
		Aliases:       []string{"summary statistics", "summarize", "describe"},
		Description:   "Compute per-column descriptive statistics for the uploaded CSV",
		NeedsFile:     true,
		NoFileMessage: "No file provided for generating summary statistics",
		Run: func(_ context.Context, table *dataset.Table) (string, error) {
			return dataset.SummaryStatistics(table), nil
		},
	})
	_ = registry.Register(&Tool{
		Name:          "Detect missing values",
		Aliases:       []string{"missing values", "missing"},
		Description:   "Report missing-value counts and percentages per column",
		NeedsFile:     true,
		NoFileMessage: "No file provided to detect missing values",
		Run: func(_ context.Context, table *dataset.Table) (string, error) {
			return dataset.MissingValues(table), nil
		},
	})
	return registry
}
