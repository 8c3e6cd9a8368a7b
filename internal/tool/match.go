package tool

import (
	"strings"

	"github.com/xrash/smetrics"
)

// fuzzyThreshold 是模糊匹配接受的最低相似度。
const fuzzyThreshold = 0.85

// Match 将一条计划步骤解析为注册表中的工具。
// 解析顺序：精确名称 → 别名/子串 → Jaro-Winkler 模糊匹配。
// 未匹配到任何工具时返回 (nil, false)。
func (r *Registry) Match(step string) (*Tool, bool) {
	normalized := normalize(step)
	if normalized == "" {
		return nil, false
	}

	if tool, ok := r.tools[normalized]; ok {
		return tool, true
	}

	for _, tool := range r.all() {
		if strings.Contains(normalized, normalize(tool.Name)) {
			return tool, true
		}
		for _, alias := range tool.Aliases {
			if strings.Contains(normalized, normalize(alias)) {
				return tool, true
			}
		}
	}

	var best *Tool
	bestScore := 0.0
	for _, tool := range r.all() {
		score := smetrics.JaroWinkler(normalized, normalize(tool.Name), 0.7, 4)
		if score > bestScore {
			best = tool
			bestScore = score
		}
	}
	if best != nil && bestScore >= fuzzyThreshold {
		return best, true
	}
	return nil, false
}
