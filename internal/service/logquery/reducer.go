// Package logquery 基于更新日志回答自然语言问题。
//
// Reducer 只负责截断、格式化与固定回复，回答本身交给 oracle.Answerer。
package logquery

import (
	"context"
	"sort"
	"strings"

	"github.com/Mohit-Baraiya11/DPR/internal/model"
	"github.com/Mohit-Baraiya11/DPR/internal/service/oracle"
	"github.com/Mohit-Baraiya11/DPR/internal/service/planner"
)

const (
	DefaultMaxEntries = 200
	DefaultMaxBytes   = 64 << 10

	// NoLogsMessage 没有可用日志时的固定回复
	NoLogsMessage = "No log entries are available for this spreadsheet."
	// RefusalMessage 与日志无关的问题的固定回复
	RefusalMessage = "I can only answer questions about the recorded site updates."
)

// Reducer 日志问答
type Reducer struct {
	answerer   oracle.Answerer
	maxEntries int
	maxBytes   int
	unit       string
}

// NewReducer 创建 Reducer；maxEntries/maxBytes 小于等于 0 时使用默认值
func NewReducer(answerer oracle.Answerer, maxEntries, maxBytes int, unit string) *Reducer {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if unit == "" {
		unit = planner.DefaultUnit
	}
	return &Reducer{answerer: answerer, maxEntries: maxEntries, maxBytes: maxBytes, unit: unit}
}

// Summarize 用日志回答 query；oracle 失败时返回其错误
func (r *Reducer) Summarize(ctx context.Context, entries []model.LogEntry, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return RefusalMessage, nil
	}

	text := r.Reduce(entries)
	if text == "" {
		return NoLogsMessage, nil
	}

	answer, err := r.answerer.Answer(ctx, oracle.LogSystemPrompt, "LOG ENTRIES:\n"+text+"\n\nQUESTION:\n"+query)
	if err != nil {
		return "", err
	}
	answer = strings.TrimSpace(answer)
	if answer == "" || strings.Contains(answer, oracle.OffTopicMarker) {
		return RefusalMessage, nil
	}
	return answer, nil
}

// Reduce 保留最新的 maxEntries 条并受 maxBytes 限制，按时间正序输出；
// 没有任何条目可保留时返回空串
func (r *Reducer) Reduce(entries []model.LogEntry) string {
	if len(entries) == 0 {
		return ""
	}

	newest := make([]model.LogEntry, len(entries))
	copy(newest, entries)
	sort.SliceStable(newest, func(i, j int) bool {
		return newest[i].Timestamp.After(newest[j].Timestamp)
	})
	if len(newest) > r.maxEntries {
		newest = newest[:r.maxEntries]
	}

	kept := make([]string, 0, len(newest))
	size := 0
	for _, e := range newest {
		line := FormatEntry(e, r.unit)
		if size+len(line)+1 > r.maxBytes {
			break
		}
		size += len(line) + 1
		kept = append(kept, line)
	}

	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return strings.Join(kept, "\n")
}

// FormatEntries 每条日志一行
func FormatEntries(entries []model.LogEntry, unit string) string {
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = FormatEntry(e, unit)
	}
	return strings.Join(lines, "\n")
}

// FormatEntry 单条日志的紧凑文本
func FormatEntry(e model.LogEntry, unit string) string {
	keys := make([]string, 0, len(e.KeyFields))
	for _, kf := range e.KeyFields {
		keys = append(keys, kf.Name+" "+kf.Value)
	}

	var b strings.Builder
	b.WriteString("Time: ")
	b.WriteString(e.Timestamp.Format("2006-01-02 15:04:05"))
	b.WriteString(" | Site Engineer: ")
	b.WriteString(e.Actor)
	b.WriteString(" | Location: ")
	b.WriteString(e.Location)
	b.WriteString(" | Updation: ")
	b.WriteString(strings.Join(keys, ", "))
	b.WriteString(" ")
	b.WriteString(e.ColumnLabel)
	b.WriteString(" ")
	b.WriteString(string(e.Status))
	b.WriteString(" | Requested Quantity: ")
	b.WriteString(planner.FormatQuantity(e.Delta) + " " + unit)
	b.WriteString(" | Updated Quantity: ")
	b.WriteString(planner.FormatQuantity(e.Cumulative) + " " + unit)
	b.WriteString(" | User Query: ")
	b.WriteString(e.Instruction)
	b.WriteString(" | Feedback: ")
	b.WriteString(e.Feedback)
	b.WriteString(" | Updated Cell: ")
	b.WriteString(e.Sheet + "!" + e.Cell)
	return b.String()
}
