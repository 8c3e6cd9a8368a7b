package mysql

import (
	"bufio"
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// RunRecord 表示一次智能体运行的落库结构。
type RunRecord struct {
	ID         string   `json:"id"`
	Task       string   `json:"task"`
	Plan       []string `json:"plan"`
	PlanSource string   `json:"plan_source"`
	ToolCalls  string   `json:"tool_calls"`
	Result     string   `json:"result"`
	CreatedAt  int64    `json:"created_at"`
}

// RunRepository 抽象运行记录的持久化接口。
type RunRepository interface {
	Save(ctx context.Context, record RunRecord) error
	ListLatest(ctx context.Context, limit int) ([]RunRecord, error)
}

// ErrUnsupportedDriver 表示配置了未知的存储驱动。
var ErrUnsupportedDriver = errors.New("暂不支持的存储驱动")

// memoryCacheLimit 限制内存中保留的最近记录条数。
const memoryCacheLimit = 512

// MemoryRunRepository 使用本地 JSONL 文件持久化运行记录，方便单机部署。
type MemoryRunRepository struct {
	mu       sync.RWMutex
	dataFile string
	records  []RunRecord
}

// NewMemoryRunRepository 创建一个基于文件的运行仓库。
func NewMemoryRunRepository(dataDir string) (*MemoryRunRepository, error) {
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}
	path := filepath.Join(dataDir, "runs.log")
	repo := &MemoryRunRepository{dataFile: path}
	if err := repo.loadFromDisk(); err != nil {
		return nil, err
	}
	return repo, nil
}

// Save 以追加写的方式记录运行结果。
func (m *MemoryRunRepository) Save(_ context.Context, record RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	file, err := os.OpenFile(m.dataFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("打开运行日志失败: %w", err)
	}
	defer file.Close()

	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("序列化运行记录失败: %w", err)
	}

	if _, err := file.Write(append(encoded, '\n')); err != nil {
		return fmt.Errorf("写入运行日志失败: %w", err)
	}

	m.records = append([]RunRecord{record}, m.records...)
	if len(m.records) > memoryCacheLimit {
		m.records = m.records[:memoryCacheLimit]
	}
	return nil
}

// ListLatest 返回最近的运行记录，按时间倒序排列。
func (m *MemoryRunRepository) ListLatest(_ context.Context, limit int) ([]RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > len(m.records) {
		limit = len(m.records)
	}

	results := make([]RunRecord, limit)
	copy(results, m.records[:limit])
	return results, nil
}

func (m *MemoryRunRepository) loadFromDisk() error {
	file, err := os.OpenFile(m.dataFile, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("读取运行日志失败: %w", err)
	}
	defer file.Close()

	// 运行结果可能远超 bufio.Scanner 的默认缓冲上限，这里按行流式读取。
	reader := bufio.NewReader(file)
	var restored []RunRecord
	for {
		line, readErr := reader.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			var record RunRecord
			if err := json.Unmarshal(line, &record); err == nil {
				restored = append([]RunRecord{record}, restored...)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return fmt.Errorf("解析运行日志失败: %w", readErr)
		}
	}

	if len(restored) > memoryCacheLimit {
		restored = restored[:memoryCacheLimit]
	}
	if len(restored) > 0 {
		m.records = restored
	}
	return nil
}

// SQLRunRepository 使用真实的 MySQL 数据库存储运行记录。
type SQLRunRepository struct {
	db *sql.DB
}

// NewSQLRunRepository 创建连接池并初始化数据表。
func NewSQLRunRepository(dsn string) (*SQLRunRepository, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("MySQL DSN 不能为空")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("连接 MySQL 失败: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("无法连接到 MySQL: %w", err)
	}

	repo := &SQLRunRepository{db: db}
	if err := repo.initSchema(); err != nil {
		return nil, err
	}
	return repo, nil
}

func (s *SQLRunRepository) initSchema() error {
	const schema = `CREATE TABLE IF NOT EXISTS runs (
        id VARCHAR(36) PRIMARY KEY,
        task TEXT NOT NULL,
        plan TEXT NOT NULL,
        plan_source VARCHAR(16) DEFAULT '',
        tool_calls TEXT NOT NULL,
        result MEDIUMTEXT NOT NULL,
        created_at BIGINT NOT NULL,
        INDEX idx_created_at (created_at)
)`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("初始化 runs 表失败: %w", err)
	}
	return nil
}

// Save 将运行记录写入 MySQL。
func (s *SQLRunRepository) Save(ctx context.Context, record RunRecord) error {
	plan, err := json.Marshal(record.Plan)
	if err != nil {
		return fmt.Errorf("序列化计划失败: %w", err)
	}

	const stmt = `INSERT INTO runs
        (id, task, plan, plan_source, tool_calls, result, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`

	if _, err := s.db.ExecContext(ctx, stmt,
		record.ID,
		record.Task,
		string(plan),
		record.PlanSource,
		record.ToolCalls,
		record.Result,
		record.CreatedAt,
	); err != nil {
		return fmt.Errorf("写入 MySQL 失败: %w", err)
	}
	return nil
}

// ListLatest 查询最近的若干条运行记录。
func (s *SQLRunRepository) ListLatest(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, task, plan, plan_source, tool_calls, result, created_at
        FROM runs ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("查询运行记录失败: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var record RunRecord
		var plan string
		if err := rows.Scan(&record.ID, &record.Task, &plan, &record.PlanSource, &record.ToolCalls, &record.Result, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("解析运行记录失败: %w", err)
		}
		if err := json.Unmarshal([]byte(plan), &record.Plan); err != nil {
			record.Plan = nil
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历运行记录失败: %w", err)
	}

	return records, nil
}

// Close 关闭底层数据库连接。
func (s *SQLRunRepository) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
