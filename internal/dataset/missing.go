package dataset

import (
	"fmt"
	"sort"
)

// missingColumn 记录单列的缺失统计。
type missingColumn struct {
	name    string
	missing int
}

// MissingValues 统计每列的缺失值数量与占比，按缺失数降序、列名升序排列。
func MissingValues(t *Table) string {
	totalRows := t.RowCount()
	totalCols := t.ColumnCount()

	if totalRows == 0 {
		return "⚠️ CSV has 0 rows (nothing to analyze)."
	}
	if totalCols == 0 {
		return "⚠️ CSV has 0 columns (nothing to analyze)."
	}

	counts := make([]missingColumn, 0, totalCols)
	totalMissing := 0
	for col, name := range t.Columns {
		missing := 0
		for row := 0; row < totalRows; row++ {
			if IsMissing(t.Cell(row, col)) {
				missing++
			}
		}
		if missing > 0 {
			counts = append(counts, missingColumn{name: name, missing: missing})
			totalMissing += missing
		}
	}

	if len(counts) == 0 {
		return fmt.Sprintf("✅ No missing values found. (rows=%d, cols=%d)", totalRows, totalCols)
	}

	sort.Slice(counts, func(i, j int) bool {
		if counts[i].missing != counts[j].missing {
			return counts[i].missing > counts[j].missing
		}
		return counts[i].name < counts[j].name
	})

	rows := make([][]string, 0, len(counts))
	for _, entry := range counts {
		percent := float64(entry.missing) / float64(totalRows) * 100
		rows = append(rows, []string{
			entry.name,
			fmt.Sprintf("%d", entry.missing),
			fmt.Sprintf("%.2f%%", percent),
		})
	}

	table := renderTable([]string{"column", "missing", "percent"}, rows)

	return fmt.Sprintf(
		"Missing Values Summary\n- rows: %d\n- cols: %d\n- total missing cells: %d\n\n%s",
		totalRows, totalCols, totalMissing, table,
	)
}
