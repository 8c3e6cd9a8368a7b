package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"InsightAgent/internal/agent"
	"InsightAgent/internal/api"
	"InsightAgent/internal/config"
	"InsightAgent/internal/llm"
	"InsightAgent/internal/llm/openai"
	"InsightAgent/internal/plancache"
	"InsightAgent/internal/planner"
	"InsightAgent/internal/storage/mysql"
	"InsightAgent/internal/tool"
	"InsightAgent/pkg/logger"
)

// main 是 InsightAgent 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("insightd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	auditPath := ""
	if cfg.Log.Audit.Enabled {
		auditPath = cfg.Log.Audit.Path
	}
	if err := logger.Init(logger.Config{
		Level:           cfg.Log.Level,
		Format:          cfg.Log.Format,
		Outputs:         cfg.Log.Outputs,
		AuditPath:       auditPath,
		AuditMaxSizeMB:  cfg.Log.Audit.MaxSizeMB,
		AuditMaxBackups: cfg.Log.Audit.MaxBackups,
		AuditMaxAgeDays: cfg.Log.Audit.MaxAgeDays,
	}); err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := os.MkdirAll(cfg.Runtime.DataDir, 0o755); err != nil {
		return err
	}

	// 初始化大模型客户端（可选）。
	llmClient, err := createLLMClient(cfg)
	if err != nil {
		return err
	}

	// 初始化计划缓存（可选）。
	planCache, err := createPlanCache(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if planCache != nil {
			_ = planCache.Close()
		}
	}()

	// 初始化规则集。
	playbook := planner.DefaultPlaybook()
	if cfg.Planner.Playbook != "" {
		loaded, err := planner.LoadPlaybook(cfg.Planner.Playbook)
		if err != nil {
			return err
		}
		playbook = loaded
	}

	plannerOpts := []planner.Option{planner.WithPlaybook(playbook)}
	if llmClient != nil {
		plannerOpts = append(plannerOpts, planner.WithLLM(llmClient))
	}
	if planCache != nil {
		plannerOpts = append(plannerOpts, planner.WithCache(planCache))
	}
	taskPlanner := planner.New(plannerOpts...)

	// 初始化运行记录仓库。
	var runRepo mysql.RunRepository
	switch cfg.Storage.RunStore.Driver {
	case "memory", "":
		repo, err := mysql.NewMemoryRunRepository(cfg.Runtime.DataDir)
		if err != nil {
			return err
		}
		runRepo = repo
	case "mysql":
		repo, err := mysql.NewSQLRunRepository(cfg.Storage.RunStore.DSN)
		if err != nil {
			return err
		}
		runRepo = repo
	default:
		return mysql.ErrUnsupportedDriver
	}
	if closer, ok := runRepo.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	opts := []agent.Option{
		agent.WithHistoryDepth(cfg.Planner.HistoryDepth),
	}
	if cfg.LLM.Provider == "openai" {
		opts = append(opts, agent.WithLLMTimeout(cfg.LLM.OpenAI.Timeout()))
	}

	ag := agent.New(taskPlanner, tool.Builtin(), runRepo, opts...)

	logger.L().Info("insightd 启动",
		slog.String("address", cfg.Server.Address),
		slog.String("llm_provider", cfg.LLM.Provider),
		slog.String("run_store", cfg.Storage.RunStore.Driver),
		slog.String("plan_cache", cfg.PlanCache.Driver),
	)

	server := api.NewServer(cfg.Server.Address, ag, cfg.Server.CORSOrigins)
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// loadConfig 加载配置文件，不存在时回退到内置默认值。
func loadConfig() (*config.Config, error) {
	configPath := os.Getenv("INSIGHT_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "insight.json")
		if _, err := os.Stat(configPath); err != nil {
			return config.Default(), nil
		}
	}
	return config.Load(configPath)
}

func createLLMClient(cfg *config.Config) (llm.Client, error) {
	switch cfg.LLM.Provider {
	case "", "none", "rules":
		return nil, nil
	case "openai":
		apiKey := strings.TrimSpace(cfg.LLM.OpenAI.APIKey)
		if apiKey == "" && cfg.LLM.OpenAI.APIKeyEnv != "" {
			apiKey = strings.TrimSpace(os.Getenv(cfg.LLM.OpenAI.APIKeyEnv))
		}
		if apiKey == "" {
			return nil, errors.New("OpenAI provider 需要配置 api_key 或 api_key_env")
		}
		return openai.NewClient(openai.Config{
			APIKey:  apiKey,
			BaseURL: cfg.LLM.OpenAI.BaseURL,
			Model:   cfg.LLM.OpenAI.Model,
			Timeout: cfg.LLM.OpenAI.Timeout(),
		})
	default:
		return nil, fmt.Errorf("未知的大模型 provider: %s", cfg.LLM.Provider)
	}
}

func createPlanCache(cfg *config.Config) (plancache.Cache, error) {
	switch cfg.PlanCache.Driver {
	case "", "none":
		return nil, nil
	case "memory":
		return plancache.NewMemoryCache(cfg.PlanCache.TTL()), nil
	case "redis":
		return plancache.NewRedisCache(plancache.RedisConfig{
			Address:  cfg.PlanCache.Redis.Address,
			Password: cfg.PlanCache.Redis.Password,
			DB:       cfg.PlanCache.Redis.DB,
			TTL:      cfg.PlanCache.TTL(),
		})
	default:
		return nil, fmt.Errorf("未知的计划缓存驱动: %s", cfg.PlanCache.Driver)
	}
}
