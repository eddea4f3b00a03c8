package parser

import (
	"strings"

	"github.com/Mohit-Baraiya11/DPR/internal/model"
)

// EmptyRunLimit 连续多少个定位字段全空的行视为数据区结束
const EmptyRunLimit = 4

const (
	categoryRow  = 0 // 第 1 行：分类
	headerRow    = 1 // 第 2 行：真正的表头
	firstDataRow = 2 // 第 3 行起为数据
)

// BuildIndex 从工作表已用区域（行优先，第 1 行为分类、第 2 行为表头）构建行/列索引
func BuildIndex(rows [][]string) (*model.SheetIndex, error) {
	if len(rows) < 2 {
		return nil, &model.EmptySheetError{Rows: len(rows)}
	}

	header := rows[headerRow]
	breakpoint := FindBreakpoint(header)

	fields := make([]string, breakpoint)
	for i := 0; i < breakpoint; i++ {
		fields[i] = strings.TrimSpace(header[i])
	}

	return &model.SheetIndex{
		Breakpoint: breakpoint,
		Rows:       buildRowIndex(rows, fields),
		Columns:    buildColumnIndex(rows[categoryRow], header, breakpoint),
	}, nil
}

// FindBreakpoint 表头中第一个空单元格的位置；没有空单元格时为表头长度
func FindBreakpoint(header []string) int {
	for i, cell := range header {
		if IsBlank(cell) {
			return i
		}
	}
	return len(header)
}

func buildRowIndex(rows [][]string, fields []string) model.RowIndex {
	index := model.RowIndex{
		Fields: fields,
		Rows:   []model.RowEntry{},
	}

	emptyRun := 0
	for i := firstDataRow; i < len(rows); i++ {
		values := padRow(rows[i], len(fields))
		if allBlank(values) {
			emptyRun++
			if emptyRun >= EmptyRunLimit {
				break
			}
			continue
		}
		emptyRun = 0
		index.Rows = append(index.Rows, model.RowEntry{
			Number: i + 1,
			Values: values,
		})
	}

	return index
}

func buildColumnIndex(categories, header []string, breakpoint int) model.ColumnIndex {
	index := model.ColumnIndex{Columns: []model.Column{}}

	category := ""
	for c := breakpoint; c < len(header); c++ {
		if c < len(categories) && !IsBlank(categories[c]) {
			category = strings.TrimSpace(categories[c])
		}

		label := strings.TrimSpace(header[c])
		if label == "" {
			// 开头的空隙跳过，已收集到表头后遇到空单元格即结束
			if len(index.Columns) > 0 {
				break
			}
			continue
		}

		index.Columns = append(index.Columns, model.Column{
			ID:       ColumnName(c),
			Label:    label,
			Category: category,
		})
	}

	return index
}

// padRow 截取前 width 个单元格，不足补空字符串
func padRow(row []string, width int) []string {
	out := make([]string, width)
	for i := 0; i < width && i < len(row); i++ {
		out[i] = strings.TrimSpace(row[i])
	}
	return out
}

func allBlank(values []string) bool {
	for _, v := range values {
		if !IsBlank(v) {
			return false
		}
	}
	return true
}
