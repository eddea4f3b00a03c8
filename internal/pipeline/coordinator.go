// Package pipeline 串联一次更新请求：读取快照、建索引、解释、解析、规划、写入、记录日志。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Mohit-Baraiya11/DPR/internal/model"
	"github.com/Mohit-Baraiya11/DPR/internal/parser"
	"github.com/Mohit-Baraiya11/DPR/internal/service/excel"
	"github.com/Mohit-Baraiya11/DPR/internal/service/oracle"
	"github.com/Mohit-Baraiya11/DPR/internal/service/planner"
	"github.com/Mohit-Baraiya11/DPR/internal/service/resolver"
)

// 请求结果状态
const (
	StatusSuccess  = "success"
	StatusRejected = "rejected"
	StatusNoData   = "no_data"
	StatusError    = "error"
)

// 固定的用户提示
const (
	OracleFailureMessage = "Sorry, the update could not be processed right now. Please try again in a moment."
	NoDataMessage        = "The selected sheet has no data to update."
	NoInstructionMessage = "No update instructions were found in the message."
)

// ErrInvalidRequest 请求缺少必填字段
var ErrInvalidRequest = errors.New("invalid request")

// SheetStore 表格存储
type SheetStore interface {
	Read(id, rng string) ([][]string, error)
	BatchMutate(id string, mutations []model.CellMutation) error
	MirrorLogs(id, sheet, unit string, entries []model.LogEntry) error
}

// LogStore 更新日志存储
type LogStore interface {
	AppendUpdateLogs(ctx context.Context, entries []model.LogEntry) error
}

// Options 工作表写入参数
type Options struct {
	TrackingSuffix string
	LogSheet       string
	Unit           string
	WIPColor       string
	COMColor       string
	DateFormat     string
}

// Coordinator 请求协调器
type Coordinator struct {
	sheets      SheetStore
	logs        LogStore
	interpreter oracle.Interpreter
	opts        Options
	logger      *zap.Logger

	now   func() time.Time
	newID func() string
}

// NewCoordinator 创建协调器
func NewCoordinator(sheets SheetStore, logs LogStore, interpreter oracle.Interpreter, opts Options, logger *zap.Logger) *Coordinator {
	if opts.TrackingSuffix == "" {
		opts.TrackingSuffix = " QTY"
	}
	if opts.LogSheet == "" {
		opts.LogSheet = excel.DefaultLogSheet
	}
	if opts.Unit == "" {
		opts.Unit = planner.DefaultUnit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		sheets:      sheets,
		logs:        logs,
		interpreter: interpreter,
		opts:        opts,
		logger:      logger,
		now:         time.Now,
		newID:       func() string { return uuid.New().String() },
	}
}

// Request 一次更新请求
type Request struct {
	Spreadsheet string `json:"spreadsheetId"`
	Sheet       string `json:"sheetName"`
	Query       string `json:"query"`
	Actor       string `json:"actor"`
	Location    string `json:"location"`
}

// UpdateSummary 已应用的单元格更新
type UpdateSummary struct {
	Cell        string           `json:"cell"`
	Row         int              `json:"row"`
	Column      string           `json:"column"`
	ColumnLabel string           `json:"columnLabel"`
	KeyFields   []model.KeyField `json:"keyFields"`
	Status      model.Status     `json:"status"`
	Quantity    float64          `json:"quantity"`
	Before      float64          `json:"before"`
	Cumulative  float64          `json:"cumulative"`
	Feedback    string           `json:"feedback"`
}

// SkippedSummary 被跳过的更新
type SkippedSummary struct {
	Row    int    `json:"row"`
	Column string `json:"column"`
	Reason string `json:"reason"`
}

// Report 请求结果
type Report struct {
	RequestID   string           `json:"requestId"`
	Status      string           `json:"status"`
	Spreadsheet string           `json:"spreadsheetId"`
	Sheet       string           `json:"sheetName"`
	Message     string           `json:"message,omitempty"`
	Updates     []UpdateSummary  `json:"updates"`
	Feedback    []string         `json:"feedback"`
	Skipped     []SkippedSummary `json:"skipped"`
	Warnings    []string         `json:"warnings,omitempty"`
}

// ProgressEvent 进度事件
type ProgressEvent struct {
	Type      string    `json:"type"`    // start/stage/done/error
	Message   string    `json:"message"` // 事件消息
	Data      any       `json:"data"`    // 附加数据
	Timestamp time.Time `json:"timestamp"`
}

// Process 同步处理请求。返回的 Report 总是非空；err 非空时 Report.Status 为 error
func (c *Coordinator) Process(ctx context.Context, req Request) (*Report, error) {
	return c.process(ctx, req, func(ProgressEvent) {})
}

// ProcessStream 异步处理请求，返回进度通道（处理结束后关闭）
func (c *Coordinator) ProcessStream(ctx context.Context, req Request) <-chan ProgressEvent {
	progressChan := make(chan ProgressEvent, 32)

	go func() {
		defer close(progressChan)

		emit := func(e ProgressEvent) {
			e.Timestamp = c.now()
			select {
			case progressChan <- e:
			case <-ctx.Done():
			}
		}

		emit(ProgressEvent{Type: "start", Message: "processing update", Data: map[string]string{
			"spreadsheetId": req.Spreadsheet,
			"sheetName":     req.Sheet,
		}})

		report, err := c.process(ctx, req, emit)
		if err != nil {
			emit(ProgressEvent{Type: "error", Message: report.Message, Data: report})
			return
		}
		emit(ProgressEvent{Type: "done", Message: report.Status, Data: report})
	}()

	return progressChan
}

func stage(emit func(ProgressEvent), name string, data any) {
	emit(ProgressEvent{Type: "stage", Message: name, Data: data})
}

func (c *Coordinator) process(ctx context.Context, req Request, emit func(ProgressEvent)) (*Report, error) {
	req.Spreadsheet = strings.TrimSpace(req.Spreadsheet)
	req.Sheet = strings.TrimSpace(req.Sheet)
	req.Query = strings.TrimSpace(req.Query)

	report := &Report{
		RequestID:   c.newID(),
		Spreadsheet: req.Spreadsheet,
		Sheet:       req.Sheet,
		Updates:     []UpdateSummary{},
		Feedback:    []string{},
		Skipped:     []SkippedSummary{},
	}
	logger := c.logger.With(
		zap.String("request", report.RequestID),
		zap.String("spreadsheet", req.Spreadsheet),
		zap.String("sheet", req.Sheet))

	fail := func(msg string, err error) (*Report, error) {
		report.Status = StatusError
		report.Message = msg
		return report, err
	}

	if req.Spreadsheet == "" || req.Sheet == "" || req.Query == "" {
		return fail("spreadsheetId, sheetName and query are required",
			fmt.Errorf("%w: spreadsheetId, sheetName and query are required", ErrInvalidRequest))
	}

	// 1. 并发读取主表与追踪表快照
	stage(emit, "read", nil)
	primary, tracking, err := c.readSnapshot(ctx, req)
	if err != nil {
		logger.Error("failed to read sheet snapshot", zap.Error(err))
		return fail("Failed to read the spreadsheet: "+err.Error(), err)
	}

	// 2. 建立索引
	idx, err := parser.BuildIndex(primary)
	if err != nil {
		var empty *model.EmptySheetError
		if errors.As(err, &empty) {
			report.Status = StatusNoData
			report.Message = NoDataMessage
			return report, nil
		}
		return fail("Failed to index the sheet: "+err.Error(), err)
	}
	stage(emit, "index", map[string]int{
		"rows":    len(idx.Rows.Rows),
		"columns": len(idx.Columns.Columns),
	})

	// 3. 解释自然语言
	stage(emit, "interpret", nil)
	resolutions, err := c.interpret(ctx, idx, req.Query)
	if err != nil {
		logger.Warn("oracle failed", zap.Error(err))
		return fail(OracleFailureMessage, err)
	}

	// 4. 汇总解析结果
	var updates []model.ResolvedUpdate
	for _, res := range resolutions {
		report.Feedback = append(report.Feedback, res.Feedback...)
		updates = append(updates, res.Updates...)
	}
	stage(emit, "resolve", map[string]int{
		"instructions": len(resolutions),
		"updates":      len(updates),
	})

	if len(updates) == 0 {
		report.Status = StatusRejected
		return report, nil
	}

	// 5. 规划写入
	plan := planner.Build(idx, updates, planner.CellValues(tracking), planner.Options{
		Spreadsheet:   req.Spreadsheet,
		Sheet:         req.Sheet,
		TrackingSheet: req.Sheet + c.opts.TrackingSuffix,
		Actor:         req.Actor,
		Location:      req.Location,
		Unit:          c.opts.Unit,
		WIPColor:      c.opts.WIPColor,
		COMColor:      c.opts.COMColor,
		DateFormat:    c.opts.DateFormat,
		Now:           c.now(),
		NewID:         c.newID,
	})
	for _, s := range plan.Skipped {
		logger.Warn("skipped update outside indexed sheet",
			zap.Int("row", s.Update.Row),
			zap.String("column", s.Update.Column),
			zap.Error(s.Err))
		report.Skipped = append(report.Skipped, SkippedSummary{Row: s.Update.Row, Column: s.Update.Column, Reason: s.Reason})
	}
	if plan.Empty() {
		report.Status = StatusRejected
		return report, nil
	}

	// 6. 一次性写入
	stage(emit, "apply", map[string]int{"mutations": len(plan.Markers) + len(plan.Quantities)})
	if err := c.sheets.BatchMutate(req.Spreadsheet, plan.Mutations()); err != nil {
		logger.Error("failed to apply mutations", zap.Error(err))
		return fail("Failed to update the spreadsheet: "+err.Error(), err)
	}

	// 7. 记录日志：写入已完成，日志失败只产生告警
	stage(emit, "log", map[string]int{"entries": len(plan.Logs)})
	if err := c.logs.AppendUpdateLogs(ctx, plan.Logs); err != nil {
		logger.Error("cells updated but audit log failed",
			zap.Int("entries", len(plan.Logs)),
			zap.Error(err))
		report.Warnings = append(report.Warnings, "Cells were updated but the audit log could not be saved: "+err.Error())
	}
	if err := c.sheets.MirrorLogs(req.Spreadsheet, c.opts.LogSheet, c.opts.Unit, plan.Logs); err != nil {
		logger.Warn("failed to mirror logs into workbook", zap.Error(err))
		report.Warnings = append(report.Warnings, "Cells were updated but the "+c.opts.LogSheet+" sheet could not be appended: "+err.Error())
	}

	for _, e := range plan.Logs {
		column, row, _ := excelize.SplitCellName(e.Cell)
		report.Updates = append(report.Updates, UpdateSummary{
			Cell:        e.Cell,
			Row:         row,
			Column:      column,
			ColumnLabel: e.ColumnLabel,
			KeyFields:   e.KeyFields,
			Status:      e.Status,
			Quantity:    e.Delta,
			Before:      e.Before,
			Cumulative:  e.Cumulative,
			Feedback:    e.Feedback,
		})
	}
	report.Status = StatusSuccess
	logger.Info("update applied",
		zap.Int("updates", len(report.Updates)),
		zap.Int("skipped", len(report.Skipped)))
	return report, nil
}

// readSnapshot 追踪表不存在时视为空
func (c *Coordinator) readSnapshot(ctx context.Context, req Request) (primary, tracking [][]string, err error) {
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := c.sheets.Read(req.Spreadsheet, req.Sheet)
		if err != nil {
			return err
		}
		primary = rows
		return nil
	})
	g.Go(func() error {
		rows, err := c.sheets.Read(req.Spreadsheet, req.Sheet+c.opts.TrackingSuffix)
		if err != nil {
			var notFound *excel.SheetNotFoundError
			if errors.As(err, &notFound) {
				return nil
			}
			return err
		}
		tracking = rows
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return primary, tracking, nil
}

// interpret 调用 oracle 并逐条解析；格式错误只拒绝对应指令
func (c *Coordinator) interpret(ctx context.Context, idx *model.SheetIndex, query string) ([]resolver.Resolution, error) {
	candidate, err := c.interpreter.Interpret(ctx, oracle.BuildPrompt(idx, query))
	if err != nil {
		if errors.Is(err, model.ErrMalformedCandidate) {
			res := resolver.Reject(err)
			res.Feedback = []string{malformedFeedback(query)}
			return []resolver.Resolution{res}, nil
		}
		return nil, err
	}

	instructions, errs := candidate.Convert(query)
	if len(instructions) == 0 {
		res := resolver.Reject(fmt.Errorf("%w: no instructions", model.ErrMalformedCandidate))
		res.Feedback = []string{NoInstructionMessage}
		return []resolver.Resolution{res}, nil
	}

	out := make([]resolver.Resolution, len(instructions))
	for i, in := range instructions {
		if errs[i] != nil {
			out[i] = resolver.Reject(errs[i])
			out[i].Feedback = []string{malformedFeedback(in.Text)}
		} else {
			out[i] = resolver.Resolve(idx, in)
		}
		out[i].Index = i
	}
	return out, nil
}

func malformedFeedback(text string) string {
	return fmt.Sprintf("Could not understand %q. Please mention the location fields and the work type.", text)
}
