package excel

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Range 工作表内的矩形范围；ToRow/ToCol 为 0 表示不设上界
type Range struct {
	Sheet   string
	FromCol int
	FromRow int
	ToCol   int
	ToRow   int
}

// ParseRange 解析 "Sheet"、"Sheet!B2"（单个单元格）或 "'My Sheet'!A1:C3"（行列从 1 开始）
func ParseRange(s string) (Range, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Range{}, fmt.Errorf("empty range")
	}

	r := Range{FromCol: 1, FromRow: 1}
	bang := strings.LastIndex(s, "!")
	if bang < 0 {
		r.Sheet = unquoteSheet(s)
		return r, nil
	}

	r.Sheet = unquoteSheet(s[:bang])
	if r.Sheet == "" {
		return Range{}, fmt.Errorf("range %q has no sheet name", s)
	}

	cells := strings.SplitN(s[bang+1:], ":", 2)
	col, row, err := excelize.CellNameToCoordinates(strings.TrimSpace(cells[0]))
	if err != nil {
		return Range{}, fmt.Errorf("invalid range %q: %w", s, err)
	}
	r.FromCol, r.FromRow = col, row

	if len(cells) == 2 {
		col, row, err := excelize.CellNameToCoordinates(strings.TrimSpace(cells[1]))
		if err != nil {
			return Range{}, fmt.Errorf("invalid range %q: %w", s, err)
		}
		if col < r.FromCol || row < r.FromRow {
			return Range{}, fmt.Errorf("invalid range %q: end before start", s)
		}
		r.ToCol, r.ToRow = col, row
	} else {
		r.ToCol, r.ToRow = r.FromCol, r.FromRow
	}
	return r, nil
}

func unquoteSheet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		s = strings.ReplaceAll(s[1:len(s)-1], "''", "'")
	}
	return s
}

// clip 从整表网格中截取范围，行尾空单元格被去掉
func (r Range) clip(rows [][]string) [][]string {
	out := [][]string{}
	for i := r.FromRow - 1; i < len(rows); i++ {
		if r.ToRow > 0 && i >= r.ToRow {
			break
		}
		row := rows[i]
		var cells []string
		if r.FromCol-1 < len(row) {
			end := len(row)
			if r.ToCol > 0 && r.ToCol < end {
				end = r.ToCol
			}
			cells = append([]string{}, row[r.FromCol-1:end]...)
		}
		for len(cells) > 0 && cells[len(cells)-1] == "" {
			cells = cells[:len(cells)-1]
		}
		out = append(out, cells)
	}
	return out
}
