package oracle

import (
	"encoding/json"
	"strings"

	"github.com/Mohit-Baraiya11/DPR/internal/model"
)

// ResolutionSystemPrompt 指令解释的系统提示词
const ResolutionSystemPrompt = `You read short site-progress messages written by construction engineers and
turn them into structured instructions against the spreadsheet described in SHEET DATA.

Return JSON only, shaped as:
{"instructions":[{"text":"...","key_fields":[{"name":"Location","values":["A building"]}],
"work_terms":["brickwork"],"status_words":["completed"],"quantities":[20]}]}

Rules:
- One instruction per independent update in the message. "text" is the part of the message it came from.
- key_fields uses the field names listed under key_fields in SHEET DATA. Copy values as the user wrote them.
  Expand ranges and lists ("101 to 104", "101, 102") into every value.
- work_terms are the work types the user named, as written. Never invent one.
- status_words are the words describing progress ("completed", "done", "in progress"). Leave empty when absent.
- quantities are the numbers the user gave for the work, in the order given. Leave empty when absent.
- Do not decide whether rows or columns exist. Do not pick between similar columns.`

// LogSystemPrompt 日志问答的系统提示词
const LogSystemPrompt = `You answer questions about recorded site updates using only the LOG ENTRIES given.
Each entry lists: Time, Site Engineer, Location, Updation, Requested Quantity, Updated Quantity,
User Query, Feedback, Updated Cell.
If the entries do not contain the answer, say so. Never use outside knowledge.
If the question is not about the recorded updates, reply with exactly: ` + OffTopicMarker

// OffTopicMarker 模型判定问题无关时的固定回复
const OffTopicMarker = "OFF_TOPIC"

type promptRow struct {
	Row    int               `json:"row"`
	Fields map[string]string `json:"fields"`
}

type promptColumn struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Category string `json:"category,omitempty"`
}

type promptSheet struct {
	KeyFields []string       `json:"key_fields"`
	Rows      []promptRow    `json:"rows"`
	Columns   []promptColumn `json:"columns"`
}

// BuildPrompt 组装发送给 oracle 的用户提示：表结构 + 原始消息
func BuildPrompt(idx *model.SheetIndex, query string) string {
	sheet := promptSheet{
		KeyFields: idx.Rows.Fields,
		Rows:      make([]promptRow, 0, len(idx.Rows.Rows)),
		Columns:   make([]promptColumn, 0, len(idx.Columns.Columns)),
	}
	for _, r := range idx.Rows.Rows {
		fields := make(map[string]string, len(r.Values))
		for i, name := range idx.Rows.Fields {
			if i < len(r.Values) {
				fields[name] = r.Values[i]
			}
		}
		sheet.Rows = append(sheet.Rows, promptRow{Row: r.Number, Fields: fields})
	}
	for _, c := range idx.Columns.Columns {
		sheet.Columns = append(sheet.Columns, promptColumn{ID: c.ID, Label: c.Label, Category: c.Category})
	}

	data, _ := json.Marshal(sheet)

	var b strings.Builder
	b.WriteString("SHEET DATA:\n")
	b.Write(data)
	b.WriteString("\n\nUSER MESSAGE:\n")
	b.WriteString(strings.TrimSpace(query))
	return b.String()
}
