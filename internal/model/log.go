package model

import "time"

// LogEntry 追加写的更新日志，每个成功应用的 ResolvedUpdate 恰好一条
type LogEntry struct {
	ID          string     `json:"id"`
	Timestamp   time.Time  `json:"timestamp"`
	Actor       string     `json:"actor"`
	Location    string     `json:"location"` // 提交人所在位置
	Spreadsheet string     `json:"spreadsheet"`
	Sheet       string     `json:"sheet"`
	KeyFields   []KeyField `json:"keyFields"`
	ColumnLabel string     `json:"columnLabel"`
	Status      Status     `json:"status"`
	Delta       float64    `json:"delta"`
	Before      float64    `json:"before"`
	Cumulative  float64    `json:"cumulative"`
	Instruction string     `json:"instruction"`
	Feedback    string     `json:"feedback"`
	Cell        string     `json:"cell"`
}

// LogFilter 日志查询条件
type LogFilter struct {
	Spreadsheet string
	Actor       string
	Location    string
	Limit       int
}

// CellMutation 单元格级写入（值 + 可选的标记格式）
type CellMutation struct {
	Sheet    string `json:"sheet"`
	Cell     string `json:"cell"`
	Value    any    `json:"value"`
	Fill     string `json:"fill,omitempty"` // #RRGGBB，为空表示不改格式
	Bold     bool   `json:"bold,omitempty"`
	Centered bool   `json:"centered,omitempty"`
}
