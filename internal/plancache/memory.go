package plancache

import (
	"context"
	"sync"
	"time"

	"InsightAgent/internal/llm"
)

// MemoryCache 以内存方式缓存计划，主要用于单机部署与测试。
type MemoryCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	plan      llm.Plan
	expiresAt time.Time
}

// NewMemoryCache 创建内存缓存。ttl 小于等于 0 时使用 5 分钟。
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &MemoryCache{
		ttl:     ttl,
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get 实现 Cache 接口。
func (c *MemoryCache) Get(_ context.Context, key string) (*llm.Plan, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, nil
	}
	plan := clonePlan(entry.plan)
	return &plan, nil
}

// Set 实现 Cache 接口。
func (c *MemoryCache) Set(_ context.Context, key string, plan *llm.Plan) error {
	if plan == nil {
		return nil
	}
	c.mu.Lock()
	c.entries[key] = memoryEntry{
		plan:      clonePlan(*plan),
		expiresAt: c.now().Add(c.ttl),
	}
	c.mu.Unlock()
	return nil
}

// Close 对内存缓存无需操作。
func (c *MemoryCache) Close() error {
	return nil
}

func clonePlan(plan llm.Plan) llm.Plan {
	cloned := llm.Plan{
		Steps:     append([]string(nil), plan.Steps...),
		ToolCalls: make([]llm.PlannedCall, 0, len(plan.ToolCalls)),
	}
	for _, call := range plan.ToolCalls {
		copied := llm.PlannedCall{ToolName: call.ToolName}
		if call.Arguments != nil {
			copied.Arguments = make(map[string]any, len(call.Arguments))
			for k, v := range call.Arguments {
				copied.Arguments[k] = v
			}
		}
		cloned.ToolCalls = append(cloned.ToolCalls, copied)
	}
	return cloned
}

var _ Cache = (*MemoryCache)(nil)
