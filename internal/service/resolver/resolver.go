// Package resolver 把一条结构化指令解析为 (行, 列, 状态, 数量) 更新。
//
// 行匹配是守门步骤：定位字段必须全部精确匹配（忽略大小写与首尾空白），
// 行匹配失败时不会再评估列、状态与数量。列匹配使用规范化后的双向包含，
// 命中多个列即视为歧义并整体拒绝该指令。
package resolver

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Mohit-Baraiya11/DPR/internal/model"
	"github.com/Mohit-Baraiya11/DPR/internal/parser"
)

// Resolution 单条指令的解析结果；Err 非空表示整条指令被拒绝，Updates 为空
type Resolution struct {
	Index    int                    `json:"index"`
	Updates  []model.ResolvedUpdate `json:"updates"`
	Feedback []string               `json:"feedback"`
	Err      error                  `json:"-"`
}

// Rejected 该指令是否被拒绝
func (r Resolution) Rejected() bool {
	return r.Err != nil
}

// Reject 构造拒绝结果，反馈文本取自错误本身
func Reject(err error) Resolution {
	return Resolution{
		Updates:  []model.ResolvedUpdate{},
		Feedback: []string{err.Error()},
		Err:      err,
	}
}

// ResolveAll 逐条独立解析，输出顺序与输入一致
func ResolveAll(idx *model.SheetIndex, instructions []model.Instruction) []Resolution {
	out := make([]Resolution, 0, len(instructions))
	for i, in := range instructions {
		res := Resolve(idx, in)
		res.Index = i
		out = append(out, res)
	}
	return out
}

// Resolve 解析单条指令
func Resolve(idx *model.SheetIndex, in model.Instruction) Resolution {
	rows, missing := matchRows(idx.Rows, in.Targets)
	if len(rows) == 0 {
		return Reject(&model.NoRowMatchError{Targets: in.Targets})
	}

	columns, err := matchColumns(idx.Columns, in.WorkTerms)
	if err != nil {
		return Reject(err)
	}

	status := NormalizeStatus(statusSource(in))
	quantities := instructionQuantities(in)

	res := Resolution{
		Updates:  []model.ResolvedUpdate{},
		Feedback: make([]string, 0, len(missing)+len(rows)*len(columns)),
	}
	for _, t := range missing {
		res.Feedback = append(res.Feedback, missingTargetFeedback(idx.Rows.Fields, t))
	}

	for _, p := range expand(rows, columns, quantities) {
		keyFields := idx.Rows.KeyFields(p.row)
		feedback := fmt.Sprintf("%s has been updated to %s for %s", describeKeyFields(keyFields), status, p.column.Label)
		res.Updates = append(res.Updates, model.ResolvedUpdate{
			Row:         p.row.Number,
			Column:      p.column.ID,
			Status:      status,
			Quantity:    p.quantity,
			Feedback:    feedback,
			ColumnLabel: p.column.Label,
			KeyFields:   keyFields,
			Instruction: in.Text,
		})
		res.Feedback = append(res.Feedback, feedback)
	}

	return res
}

// matchRows 对每个定位组合做精确匹配，返回命中的行（按首次命中去重）与未命中的组合
func matchRows(index model.RowIndex, targets []model.Target) ([]model.RowEntry, []model.Target) {
	matched := make([]model.RowEntry, 0)
	missing := make([]model.Target, 0)
	if len(index.Fields) == 0 {
		return matched, targets
	}

	fieldKeys := make([]string, len(index.Fields))
	for i, f := range index.Fields {
		fieldKeys[i] = parser.NormalizeKey(f)
	}

	seen := make(map[int]struct{})
	for _, t := range targets {
		normalized := normalizeTarget(t)
		hit := false
		for _, row := range index.Rows {
			if !rowMatches(row, fieldKeys, normalized) {
				continue
			}
			hit = true
			if _, ok := seen[row.Number]; ok {
				continue
			}
			seen[row.Number] = struct{}{}
			matched = append(matched, row)
		}
		if !hit {
			missing = append(missing, t)
		}
	}
	return matched, missing
}

func normalizeTarget(t model.Target) map[string]string {
	out := make(map[string]string, len(t))
	for k, v := range t {
		out[parser.NormalizeKey(k)] = parser.NormalizeKey(v)
	}
	return out
}

func rowMatches(row model.RowEntry, fieldKeys []string, target map[string]string) bool {
	for i, key := range fieldKeys {
		want, ok := target[key]
		if !ok {
			return false
		}
		have := ""
		if i < len(row.Values) {
			have = row.Values[i]
		}
		if parser.NormalizeKey(have) != want {
			return false
		}
	}
	return true
}

// matchColumns 每个工作项必须恰好命中一个列，否则整条指令拒绝
func matchColumns(index model.ColumnIndex, terms []string) ([]model.Column, error) {
	if len(terms) == 0 {
		return nil, &model.ColumnNotFoundError{Term: ""}
	}

	out := make([]model.Column, 0, len(terms))
	for _, term := range terms {
		col, err := MatchColumn(index, term)
		if err != nil {
			return nil, err
		}
		out = append(out, col)
	}
	return out, nil
}

// MatchColumn 单个工作项的列匹配：规范化后任一方向包含即为候选，候选按列顺序排列
func MatchColumn(index model.ColumnIndex, term string) (model.Column, error) {
	needle := parser.NormalizeTerm(term)
	candidates := make([]model.Column, 0, 2)
	for _, col := range index.Columns {
		if parser.ContainsEither(parser.NormalizeTerm(col.Label), needle) {
			candidates = append(candidates, col)
		}
	}

	switch len(candidates) {
	case 0:
		return model.Column{}, &model.ColumnNotFoundError{Term: strings.TrimSpace(term)}
	case 1:
		return candidates[0], nil
	default:
		labels := make([]string, len(candidates))
		for i, c := range candidates {
			labels[i] = c.Label
		}
		return model.Column{}, &model.AmbiguousColumnError{Term: strings.TrimSpace(term), Labels: labels}
	}
}

func describeKeyFields(fields []model.KeyField) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, strings.TrimSpace(f.Name+" "+f.Value))
	}
	return strings.Join(parts, ", ")
}

// missingTargetFeedback 按表头顺序描述未命中的定位组合，表头之外的键按名称排序追加
func missingTargetFeedback(fields []string, t model.Target) string {
	known := make(map[string]struct{}, len(fields))
	parts := make([]string, 0, len(t))
	for _, f := range fields {
		key := parser.NormalizeKey(f)
		known[key] = struct{}{}
		for name, value := range t {
			if parser.NormalizeKey(name) == key {
				parts = append(parts, strings.TrimSpace(f+" "+value))
				break
			}
		}
	}

	extra := make([]string, 0)
	for name := range t {
		if _, ok := known[parser.NormalizeKey(name)]; !ok {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		parts = append(parts, strings.TrimSpace(name+" "+t[name]))
	}

	return fmt.Sprintf("No exact match found for %s.", strings.Join(parts, ", "))
}
