package excel

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/Mohit-Baraiya11/DPR/internal/model"
)

// DefaultLogSheet 工作簿内日志表名称
const DefaultLogSheet = "LOGS"

// LogHeader 日志表表头
var LogHeader = []string{
	"Time", "Site Engineer", "Location", "Sheet", "Updation",
	"Requested Quantity", "Updated Quantity", "User Query", "Feedback", "Updated Cell",
}

// LogRow 单条日志对应的表格行
func LogRow(e model.LogEntry, unit string) []any {
	keys := make([]string, 0, len(e.KeyFields))
	for _, kf := range e.KeyFields {
		keys = append(keys, kf.Name+" "+kf.Value)
	}
	updation := strings.TrimSpace(fmt.Sprintf("%s %s %s", strings.Join(keys, ", "), e.ColumnLabel, e.Status))

	return []any{
		e.Timestamp.Format("2006-01-02 15:04:05"),
		e.Actor,
		e.Location,
		e.Sheet,
		updation,
		fmt.Sprintf("%g %s", e.Delta, unit),
		fmt.Sprintf("%g %s", e.Cumulative, unit),
		e.Instruction,
		e.Feedback,
		e.Cell,
	}
}

// MirrorLogs 把日志追加到工作簿内的日志表
func (w *Workbooks) MirrorLogs(id, sheet, unit string, entries []model.LogEntry) error {
	if sheet == "" {
		sheet = DefaultLogSheet
	}
	rows := make([][]any, len(entries))
	for i, e := range entries {
		rows[i] = LogRow(e, unit)
	}
	return w.AppendRows(id, sheet, LogHeader, rows)
}

// ExportLogs 生成只包含日志的工作簿（调用方负责 Close）
func ExportLogs(entries []model.LogEntry, unit string) (*excelize.File, error) {
	f := excelize.NewFile()

	sheet := DefaultLogSheet
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}

	if err := setRow(f, sheet, 1, stringsToAny(LogHeader)); err != nil {
		f.Close()
		return nil, err
	}
	style, err := f.NewStyle(headerStyle())
	if err == nil {
		_ = f.SetRowStyle(sheet, 1, 1, style)
	}

	for i, e := range entries {
		if err := setRow(f, sheet, i+2, LogRow(e, unit)); err != nil {
			f.Close()
			return nil, err
		}
	}

	_ = f.SetColWidth(sheet, "A", "A", 20)
	_ = f.SetColWidth(sheet, "B", "D", 16)
	_ = f.SetColWidth(sheet, "E", "E", 40)
	_ = f.SetColWidth(sheet, "F", "G", 18)
	_ = f.SetColWidth(sheet, "H", "I", 50)
	return f, nil
}
