package planner

import (
	"context"
	"log/slog"
	"strings"

	"InsightAgent/internal/llm"
	"InsightAgent/internal/plancache"
	"InsightAgent/pkg/logger"
)

// Source 标记一份计划的来源。
type Source string

const (
	SourceRules Source = "rules"
	SourceLLM   Source = "llm"
	SourceCache Source = "cache"
)

// Planner 将自然语言任务转换为有序的执行步骤。
//
// 配置了大模型客户端时优先走缓存与大模型；任何失败都会降级到规则规划，
// 因此 CreatePlan 永远不会让请求失败。
type Planner struct {
	llmClient llm.Client
	cache     plancache.Cache
	playbook  Playbook
}

// Option 定义可选的 Planner 配置。
type Option func(*Planner)

// WithLLM 启用大模型规划。
func WithLLM(client llm.Client) Option {
	return func(p *Planner) {
		p.llmClient = client
	}
}

// WithCache 启用计划缓存。仅对大模型产出的计划生效。
func WithCache(cache plancache.Cache) Option {
	return func(p *Planner) {
		p.cache = cache
	}
}

// WithPlaybook 覆盖默认的规则集。
func WithPlaybook(playbook Playbook) Option {
	return func(p *Planner) {
		p.playbook = playbook
	}
}

// New 创建 Planner。
func New(opts ...Option) *Planner {
	p := &Planner{playbook: DefaultPlaybook()}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// CreatePlan 生成执行计划并返回其来源。
func (p *Planner) CreatePlan(ctx context.Context, req llm.Request) (*llm.Plan, Source) {
	task := strings.TrimSpace(req.Task)
	req.Task = task

	if p.llmClient != nil {
		if plan, source, ok := p.planViaLLM(ctx, req); ok {
			return plan, source
		}
	}

	steps := p.playbook.Plan(task, req.HasFile)
	return &llm.Plan{Steps: steps}, SourceRules
}

// planViaLLM 依次尝试缓存与大模型。失败时返回 ok=false 触发规则降级。
func (p *Planner) planViaLLM(ctx context.Context, req llm.Request) (*llm.Plan, Source, bool) {
	key := plancache.Key(req.Task, req.HasFile)

	if p.cache != nil {
		cached, err := p.cache.Get(ctx, key)
		if err != nil {
			logger.L().Warn("读取计划缓存失败", slog.Any("error", err))
		} else if cached != nil && len(cached.Steps) > 0 {
			return cached, SourceCache, true
		}
	}

	plan, err := p.llmClient.PlanTask(ctx, req)
	if err != nil {
		logger.L().Warn("大模型规划失败，降级到规则规划",
			slog.Any("error", err),
			slog.String("task", req.Task),
		)
		return nil, SourceRules, false
	}
	if plan == nil || len(plan.Steps) == 0 {
		logger.L().Warn("大模型返回空计划，降级到规则规划", slog.String("task", req.Task))
		return nil, SourceRules, false
	}

	if p.cache != nil {
		if err := p.cache.Set(ctx, key, plan); err != nil {
			logger.L().Warn("写入计划缓存失败", slog.Any("error", err))
		}
	}
	return plan, SourceLLM, true
}

// CanRespond 指示是否可以让大模型直接回答无工具可用的任务。
func (p *Planner) CanRespond() bool {
	return p.llmClient != nil
}

// Respond 调用大模型直接生成回答。
func (p *Planner) Respond(ctx context.Context, task string) (string, error) {
	return p.llmClient.Respond(ctx, task)
}
