package planner

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rule 定义一条关键词触发的规划规则。Keywords 为空表示总是触发。
type Rule struct {
	Keywords []string `yaml:"keywords"`
	Step     string   `yaml:"step"`
}

// Playbook 描述规则规划器的完整规则集。
//
// FileRules 在任务提到 CSV 或携带上传文件时按顺序评估；
// Rules 在没有文件语境时评估；两者都未产出步骤时使用 Fallback。
type Playbook struct {
	FileContextKeywords []string `yaml:"file_context_keywords"`
	FileRules           []Rule   `yaml:"file_rules"`
	Rules               []Rule   `yaml:"rules"`
	Fallback            []string `yaml:"fallback"`
}

// DefaultPlaybook 返回与内置工具集对应的默认规则。
func DefaultPlaybook() Playbook {
	return Playbook{
		FileContextKeywords: []string{"csv"},
		FileRules: []Rule{
			{Step: "Load the CSV file"},
			{Keywords: []string{"missing"}, Step: "Detect missing values"},
			{Keywords: []string{"summarize", "summary"}, Step: "Generate summary statistics"},
		},
		Rules: []Rule{
			{Keywords: []string{"summarize", "summary"}, Step: "Generate summary statistics"},
		},
		Fallback: []string{"Analyze the task", "Execute the task"},
	}
}

// LoadPlaybook 从 YAML 文件加载规则集。
func LoadPlaybook(path string) (Playbook, error) {
	var playbook Playbook
	if path == "" {
		return playbook, errors.New("playbook 路径不能为空")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return playbook, fmt.Errorf("读取 playbook 失败: %w", err)
	}
	if err := yaml.Unmarshal(raw, &playbook); err != nil {
		return playbook, fmt.Errorf("解析 playbook 失败: %w", err)
	}
	if len(playbook.Fallback) == 0 {
		playbook.Fallback = DefaultPlaybook().Fallback
	}
	return playbook, nil
}

// Plan 按规则将任务转换为有序步骤列表。
func (p Playbook) Plan(task string, hasFile bool) []string {
	lowered := strings.ToLower(task)

	var steps []string
	if hasFile || p.mentionsFileContext(lowered) {
		steps = applyRules(p.FileRules, lowered)
	} else {
		steps = applyRules(p.Rules, lowered)
	}

	if len(steps) == 0 {
		steps = append(steps, p.Fallback...)
	}
	return steps
}

func (p Playbook) mentionsFileContext(lowered string) bool {
	for _, keyword := range p.FileContextKeywords {
		if keyword != "" && strings.Contains(lowered, strings.ToLower(keyword)) {
			return true
		}
	}
	return false
}

func applyRules(rules []Rule, lowered string) []string {
	var steps []string
	for _, rule := range rules {
		if rule.Step == "" {
			continue
		}
		if rule.matches(lowered) {
			steps = append(steps, rule.Step)
		}
	}
	return steps
}

func (r Rule) matches(lowered string) bool {
	if len(r.Keywords) == 0 {
		return true
	}
	for _, keyword := range r.Keywords {
		if keyword != "" && strings.Contains(lowered, strings.ToLower(keyword)) {
			return true
		}
	}
	return false
}
