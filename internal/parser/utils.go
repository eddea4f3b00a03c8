package parser

import (
	"strings"
	"unicode"

	"github.com/xuri/excelize/v2"
)

// IsBlank 单元格去空白后为空
func IsBlank(cell string) bool {
	return strings.TrimSpace(cell) == ""
}

// NormalizeKey 规范化定位字段：去首尾空白、压缩内部空白、转小写
// "  A   Building " → "a building"
func NormalizeKey(value string) string {
	return strings.ToLower(strings.Join(strings.Fields(value), " "))
}

// NormalizeTerm 规范化工作项/列名：转小写，非字母数字的连续字符折叠为一个空格
// "Granite-Kitchen  OTTA" → "granite kitchen otta"
func NormalizeTerm(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	pendingSpace := false
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
			continue
		}
		pendingSpace = true
	}
	return b.String()
}

// ContainsEither 两个已规范化的字符串是否存在任一方向的包含关系（空串不匹配）
func ContainsEither(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// ColumnName 0-based 列序号 → 列字母（0 → A, 27 → AB）
func ColumnName(idx int) string {
	name, err := excelize.ColumnNumberToName(idx + 1)
	if err != nil {
		return ""
	}
	return name
}

// CellName 列字母 + 1-based 行号 → 单元格引用（"F", 3 → "F3"）
func CellName(column string, row int) (string, error) {
	col, err := excelize.ColumnNameToNumber(column)
	if err != nil {
		return "", err
	}
	return excelize.CoordinatesToCellName(col, row)
}
