package plancache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"InsightAgent/internal/llm"
)

// RedisConfig 描述 Redis 缓存的连接参数。
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

// RedisCache 使用 Redis 存储序列化后的计划，供多实例共享。
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache 创建 Redis 缓存实例并验证连通性。
func NewRedisCache(cfg RedisConfig) (*RedisCache, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return &RedisCache{client: client, ttl: ttl}, nil
}

// Get 实现 Cache 接口。
func (c *RedisCache) Get(ctx context.Context, key string) (*llm.Plan, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("读取计划缓存失败: %w", err)
	}
	var plan llm.Plan
	if err := json.Unmarshal(raw, &plan); err != nil {
		// 旧格式或损坏的缓存条目按未命中处理。
		return nil, nil
	}
	return &plan, nil
}

// Set 实现 Cache 接口。
func (c *RedisCache) Set(ctx context.Context, key string, plan *llm.Plan) error {
	if plan == nil {
		return nil
	}
	encoded, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("序列化计划失败: %w", err)
	}
	if err := c.client.Set(ctx, key, encoded, c.ttl).Err(); err != nil {
		return fmt.Errorf("写入计划缓存失败: %w", err)
	}
	return nil
}

// Close 关闭 Redis 连接。
func (c *RedisCache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

var _ Cache = (*RedisCache)(nil)
