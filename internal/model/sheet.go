package model

// KeyField 行定位字段（断点列之前的表头，例如 Location / Peta Location）
type KeyField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// RowEntry 行索引中的一行：行号（1-based）+ 与 RowIndex.Fields 等长的字段值
type RowEntry struct {
	Number int      `json:"row"`
	Values []string `json:"values"`
}

// RowIndex 行索引：行号 → 定位字段
// 每行 Values 长度都等于 len(Fields)，缺失单元格补空字符串
type RowIndex struct {
	Fields []string   `json:"fields"`
	Rows   []RowEntry `json:"rows"`
}

// Lookup 按行号查找
func (r RowIndex) Lookup(number int) (RowEntry, bool) {
	for _, row := range r.Rows {
		if row.Number == number {
			return row, true
		}
	}
	return RowEntry{}, false
}

// KeyFields 返回一行的 (字段名, 值) 列表，顺序与 Fields 一致
func (r RowIndex) KeyFields(row RowEntry) []KeyField {
	out := make([]KeyField, 0, len(r.Fields))
	for i, name := range r.Fields {
		value := ""
		if i < len(row.Values) {
			value = row.Values[i]
		}
		out = append(out, KeyField{Name: name, Value: value})
	}
	return out
}

// Column 工作列
type Column struct {
	ID       string `json:"id"`       // 列字母，例如 F / AB
	Label    string `json:"label"`    // 第 2 行表头
	Category string `json:"category"` // 第 1 行分类（合并单元格向右延续）
}

// ColumnIndex 列索引：列字母 → 表头，保持表头顺序
type ColumnIndex struct {
	Columns []Column `json:"columns"`
}

// Lookup 按列字母查找
func (c ColumnIndex) Lookup(id string) (Column, bool) {
	for _, col := range c.Columns {
		if col.ID == id {
			return col, true
		}
	}
	return Column{}, false
}

// SheetIndex 单次请求构建的表格索引快照，构建后只读
type SheetIndex struct {
	Breakpoint int         `json:"breakpoint"` // 0-based，第一个空表头所在列
	Rows       RowIndex    `json:"rowIndex"`
	Columns    ColumnIndex `json:"columnIndex"`
}
