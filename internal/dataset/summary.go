package dataset

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// columnSummary 汇总单列的描述性统计。
type columnSummary struct {
	name    string
	count   int
	unique  int
	top     string
	freq    int
	numeric bool
	mean    float64
	std     float64
	min     float64
	max     float64
}

// SummaryStatistics 生成与 pandas describe(include="all") 同型的描述统计文本：
// 所有列给出 count/unique/top/freq，数值列追加 mean/std/min/max。
func SummaryStatistics(t *Table) string {
	if t.RowCount() == 0 {
		return "⚠️ CSV has 0 rows (nothing to summarize)."
	}
	if t.ColumnCount() == 0 {
		return "⚠️ CSV has 0 columns (nothing to summarize)."
	}

	summaries := make([]columnSummary, 0, t.ColumnCount())
	hasNumeric := false
	for col, name := range t.Columns {
		summary := summarizeColumn(t, col, name)
		if summary.numeric {
			hasNumeric = true
		}
		summaries = append(summaries, summary)
	}

	statRows := []string{"count", "unique", "top", "freq"}
	if hasNumeric {
		statRows = append(statRows, "mean", "std", "min", "max")
	}

	cells := make([][]string, 0, len(statRows))
	for _, stat := range statRows {
		row := make([]string, 0, len(summaries)+1)
		row = append(row, stat)
		for _, summary := range summaries {
			row = append(row, summary.render(stat))
		}
		cells = append(cells, row)
	}

	header := append([]string{""}, columnNames(summaries)...)
	return renderTable(header, cells)
}

func summarizeColumn(t *Table, col int, name string) columnSummary {
	values := t.columnValues(col)
	summary := columnSummary{name: name, count: len(values)}

	frequency := make(map[string]int, len(values))
	for _, value := range values {
		frequency[value]++
	}
	summary.unique = len(frequency)

	keys := make([]string, 0, len(frequency))
	for key := range frequency {
		keys = append(keys, key)
	}
	// 频次相同时取字典序靠前的值，保证输出稳定。
	sort.Strings(keys)
	for _, key := range keys {
		if frequency[key] > summary.freq {
			summary.top = key
			summary.freq = frequency[key]
		}
	}

	numbers, ok := t.numericValues(col)
	if !ok {
		return summary
	}
	summary.numeric = true
	summary.min = numbers[0]
	summary.max = numbers[0]
	sum := 0.0
	for _, number := range numbers {
		sum += number
		summary.min = math.Min(summary.min, number)
		summary.max = math.Max(summary.max, number)
	}
	summary.mean = sum / float64(len(numbers))

	if len(numbers) > 1 {
		variance := 0.0
		for _, number := range numbers {
			diff := number - summary.mean
			variance += diff * diff
		}
		// 与 pandas 一致使用样本标准差。
		summary.std = math.Sqrt(variance / float64(len(numbers)-1))
	}
	return summary
}

func (s columnSummary) render(stat string) string {
	switch stat {
	case "count":
		return fmt.Sprintf("%d", s.count)
	case "unique":
		return fmt.Sprintf("%d", s.unique)
	case "top":
		if s.top == "" {
			return "NaN"
		}
		return s.top
	case "freq":
		if s.freq == 0 {
			return "NaN"
		}
		return fmt.Sprintf("%d", s.freq)
	case "mean", "std", "min", "max":
		if !s.numeric {
			return "NaN"
		}
		switch stat {
		case "mean":
			return formatNumber(s.mean)
		case "std":
			return formatNumber(s.std)
		case "min":
			return formatNumber(s.min)
		default:
			return formatNumber(s.max)
		}
	default:
		return "NaN"
	}
}

func formatNumber(value float64) string {
	if value == math.Trunc(value) && math.Abs(value) < 1e15 {
		return fmt.Sprintf("%.1f", value)
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.6f", value), "0"), ".")
}

func columnNames(summaries []columnSummary) []string {
	names := make([]string, 0, len(summaries))
	for _, summary := range summaries {
		names = append(names, summary.name)
	}
	return names
}

// renderTable 按列宽右对齐渲染一张纯文本表格。
func renderTable(header []string, rows [][]string) string {
	widths := make([]int, len(header))
	for i, cell := range header {
		widths[i] = len(cell)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var builder strings.Builder
	writeRow := func(row []string) {
		for i, cell := range row {
			if i > 0 {
				builder.WriteString("  ")
			}
			if i == 0 {
				builder.WriteString(fmt.Sprintf("%-*s", widths[i], cell))
				continue
			}
			builder.WriteString(fmt.Sprintf("%*s", widths[i], cell))
		}
		builder.WriteString("\n")
	}

	writeRow(header)
	for _, row := range rows {
		writeRow(row)
	}
	return strings.TrimRight(builder.String(), "\n")
}
