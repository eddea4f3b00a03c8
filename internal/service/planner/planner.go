// Package planner 把一批 ResolvedUpdate 转换为单元格写入与更新日志。
//
// 所有写入在应用前一次性规划完成。数量采用累加语义：新值 = 追踪区已有值 + 本次数量，
// 同一请求内多次命中同一单元格时按顺序累加。重复提交同一请求会重复累加。
package planner

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Mohit-Baraiya11/DPR/internal/model"
	"github.com/Mohit-Baraiya11/DPR/internal/parser"
)

const (
	DefaultWIPColor   = "#F20000"
	DefaultCOMColor   = "#00F200"
	DefaultUnit       = "m³"
	DefaultDateFormat = "2006-01-02"
)

// Options 规划参数
type Options struct {
	Spreadsheet   string
	Sheet         string // 主表：写入日期与颜色标记
	TrackingSheet string // 追踪区：写入累计数量
	Actor         string
	Location      string
	Unit          string
	WIPColor      string
	COMColor      string
	DateFormat    string
	Now           time.Time
	NewID         func() string
}

// Skipped 因目标越界而跳过的更新
type Skipped struct {
	Update model.ResolvedUpdate `json:"update"`
	Reason string               `json:"reason"`
	Err    error                `json:"-"`
}

// Plan 规划结果
type Plan struct {
	Markers    []model.CellMutation `json:"markers"`
	Quantities []model.CellMutation `json:"quantities"`
	Logs       []model.LogEntry     `json:"logs"`
	Skipped    []Skipped            `json:"skipped"`
}

// Mutations 按应用顺序返回全部写入（先标记后数量）
func (p *Plan) Mutations() []model.CellMutation {
	out := make([]model.CellMutation, 0, len(p.Markers)+len(p.Quantities))
	out = append(out, p.Markers...)
	out = append(out, p.Quantities...)
	return out
}

// Empty 没有任何需要应用的写入
func (p *Plan) Empty() bool {
	return len(p.Markers) == 0 && len(p.Quantities) == 0
}

// Build 规划一批更新；prior 为追踪区单元格原始值（单元格引用 → 文本）
func Build(idx *model.SheetIndex, updates []model.ResolvedUpdate, prior map[string]string, opts Options) *Plan {
	opts = withDefaults(opts)

	plan := &Plan{
		Markers:    []model.CellMutation{},
		Quantities: []model.CellMutation{},
		Logs:       []model.LogEntry{},
		Skipped:    []Skipped{},
	}

	date := opts.Now.Format(opts.DateFormat)
	running := make(map[string]float64)

	for _, u := range updates {
		cell, err := targetCell(idx, u)
		if err != nil {
			plan.Skipped = append(plan.Skipped, Skipped{Update: u, Reason: err.Error(), Err: err})
			continue
		}

		before, ok := running[cell]
		if !ok {
			before = PriorValue(prior[cell])
		}
		after := before + u.Quantity
		running[cell] = after

		plan.Markers = append(plan.Markers, model.CellMutation{
			Sheet:    opts.Sheet,
			Cell:     cell,
			Value:    MarkerText(u.Status, after, opts.Unit, date),
			Fill:     opts.color(u.Status),
			Bold:     true,
			Centered: true,
		})
		plan.Quantities = append(plan.Quantities, model.CellMutation{
			Sheet: opts.TrackingSheet,
			Cell:  cell,
			Value: after,
		})
		plan.Logs = append(plan.Logs, model.LogEntry{
			ID:          opts.NewID(),
			Timestamp:   opts.Now,
			Actor:       opts.Actor,
			Location:    opts.Location,
			Spreadsheet: opts.Spreadsheet,
			Sheet:       opts.Sheet,
			KeyFields:   u.KeyFields,
			ColumnLabel: u.ColumnLabel,
			Status:      u.Status,
			Delta:       u.Quantity,
			Before:      before,
			Cumulative:  after,
			Instruction: u.Instruction,
			Feedback:    u.Feedback,
			Cell:        cell,
		})
	}

	return plan
}

// targetCell 行必须在行索引中，列必须在列索引中
func targetCell(idx *model.SheetIndex, u model.ResolvedUpdate) (string, error) {
	if _, ok := idx.Rows.Lookup(u.Row); !ok {
		return "", &model.UnknownSheetTargetError{Row: u.Row, Column: u.Column}
	}
	if _, ok := idx.Columns.Lookup(u.Column); !ok {
		return "", &model.UnknownSheetTargetError{Row: u.Row, Column: u.Column}
	}
	cell, err := parser.CellName(u.Column, u.Row)
	if err != nil {
		return "", &model.UnknownSheetTargetError{Row: u.Row, Column: u.Column}
	}
	return cell, nil
}

// PriorValue 追踪区已有值；缺失或非数字视为 0
func PriorValue(raw string) float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// MarkerText 主表标记单元格文本："COM - 20 m³ - 2025-07-01"
func MarkerText(status model.Status, cumulative float64, unit, date string) string {
	return string(status) + " - " + FormatQuantity(cumulative) + " " + unit + " - " + date
}

// FormatQuantity 去掉多余的小数位
func FormatQuantity(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// CellValues 把工作表网格展开为 单元格引用 → 文本（用于读取追踪区已有值）
func CellValues(grid [][]string) map[string]string {
	out := make(map[string]string)
	for r, row := range grid {
		for c, v := range row {
			if v == "" {
				continue
			}
			out[parser.ColumnName(c)+strconv.Itoa(r+1)] = v
		}
	}
	return out
}

func (o Options) color(status model.Status) string {
	if status == model.StatusCOM {
		return o.COMColor
	}
	return o.WIPColor
}

func withDefaults(o Options) Options {
	if o.Unit == "" {
		o.Unit = DefaultUnit
	}
	if o.WIPColor == "" {
		o.WIPColor = DefaultWIPColor
	}
	if o.COMColor == "" {
		o.COMColor = DefaultCOMColor
	}
	if o.DateFormat == "" {
		o.DateFormat = DefaultDateFormat
	}
	if o.Now.IsZero() {
		o.Now = time.Now()
	}
	if o.NewID == nil {
		o.NewID = func() string { return uuid.New().String() }
	}
	if o.TrackingSheet == "" {
		o.TrackingSheet = o.Sheet + " QTY"
	}
	return o
}
