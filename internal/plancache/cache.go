package plancache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"InsightAgent/internal/llm"
)

// Cache 缓存大模型产出的执行计划，避免对相同任务重复推理。
// Get 未命中时返回 (nil, nil)；缓存故障由调用方降级处理。
type Cache interface {
	Get(ctx context.Context, key string) (*llm.Plan, error)
	Set(ctx context.Context, key string, plan *llm.Plan) error
	Close() error
}

// Key 根据任务文本与是否携带文件生成稳定的缓存键。
func Key(task string, hasFile bool) string {
	digest := sha256.Sum256([]byte(fmt.Sprintf("%s|%t", task, hasFile)))
	return "insight:plan:" + hex.EncodeToString(digest[:])
}
