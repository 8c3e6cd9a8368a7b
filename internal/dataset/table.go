package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Table 保存一次上传的 CSV 解析结果，供所有工具共享读取。
type Table struct {
	Name    string
	Columns []string
	Rows    [][]string
}

// naTokens 列出会被视为缺失值的单元格内容。
var naTokens = map[string]struct{}{
	"":     {},
	"na":   {},
	"n/a":  {},
	"nan":  {},
	"null": {},
}

// Parse 从 reader 中读取 CSV 内容。允许行宽不一致，短行按缺失处理。
func Parse(name string, r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("解析 CSV 失败: %w", err)
	}

	table := &Table{Name: name}
	if len(records) == 0 {
		return table, nil
	}

	table.Columns = records[0]
	table.Rows = records[1:]
	return table, nil
}

// RowCount 返回数据行数（不含表头）。
func (t *Table) RowCount() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// ColumnCount 返回列数。
func (t *Table) ColumnCount() int {
	if t == nil {
		return 0
	}
	return len(t.Columns)
}

// Cell 返回指定行列的原始内容。短行中不存在的列视为空。
func (t *Table) Cell(row, col int) string {
	if row < 0 || row >= len(t.Rows) {
		return ""
	}
	record := t.Rows[row]
	if col < 0 || col >= len(record) {
		return ""
	}
	return record[col]
}

// IsMissing 判断单元格内容是否为缺失值。
func IsMissing(value string) bool {
	_, ok := naTokens[strings.ToLower(strings.TrimSpace(value))]
	return ok
}

// columnValues 返回某一列的全部非缺失值。
func (t *Table) columnValues(col int) []string {
	values := make([]string, 0, len(t.Rows))
	for row := range t.Rows {
		value := t.Cell(row, col)
		if IsMissing(value) {
			continue
		}
		values = append(values, strings.TrimSpace(value))
	}
	return values
}

// numericValues 尝试将某一列解析为数值。第二个返回值指明整列是否均为数值。
func (t *Table) numericValues(col int) ([]float64, bool) {
	values := t.columnValues(col)
	if len(values) == 0 {
		return nil, false
	}
	parsed := make([]float64, 0, len(values))
	for _, value := range values {
		number, err := strconv.ParseFloat(strings.ReplaceAll(value, ",", ""), 64)
		if err != nil {
			return nil, false
		}
		parsed = append(parsed, number)
	}
	return parsed, true
}
