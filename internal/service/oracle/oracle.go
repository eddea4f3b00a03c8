// Package oracle 封装自然语言理解步骤。
//
// oracle 的输出被视为不可信输入：DecodeCandidate 只做结构上的宽松解析，
// 每条指令在 Instructions 中单独校验，某条指令不合法只会让它自己被拒绝。
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Mohit-Baraiya11/DPR/internal/model"
)

// maxTargets 单条指令展开后的定位组合上限
const maxTargets = 500

// Interpreter 把提示词解释为候选指令
type Interpreter interface {
	Interpret(ctx context.Context, prompt string) (*Candidate, error)
}

// Answerer 只依据给定文本回答问题
type Answerer interface {
	Answer(ctx context.Context, system, prompt string) (string, error)
}

// Candidate oracle 返回的候选解析
type Candidate struct {
	Instructions []CandidateInstruction `json:"instructions"`
}

// CandidateInstruction 单条候选指令（字段均未校验）
type CandidateInstruction struct {
	Text        string         `json:"text"`
	KeyFields   KeyFieldValues `json:"key_fields"`
	WorkTerms   FlexStrings    `json:"work_terms"`
	StatusWords FlexStrings    `json:"status_words"`
	Quantities  []RawQuantity  `json:"quantities"`
}

// KeyFieldValues 定位字段 → 取值列表（范围已由 oracle 展开）
type KeyFieldValues map[string][]string

// UnmarshalJSON 同时接受 [{"name":..,"values":[..]}] 与 {"Location":["A"]} 两种形式
func (k *KeyFieldValues) UnmarshalJSON(data []byte) error {
	out := make(KeyFieldValues)
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*k = out
		return nil
	}

	if data[0] == '[' {
		var list []struct {
			Name   string      `json:"name"`
			Values FlexStrings `json:"values"`
			Value  FlexStrings `json:"value"`
		}
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		for _, item := range list {
			name := strings.TrimSpace(item.Name)
			if name == "" {
				continue
			}
			out[name] = append(out[name], item.Values...)
			out[name] = append(out[name], item.Value...)
		}
		*k = out
		return nil
	}

	var m map[string]FlexStrings
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	for name, values := range m {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		out[name] = append(out[name], values...)
	}
	*k = out
	return nil
}

// FlexStrings 接受字符串、数字或它们的数组
type FlexStrings []string

// UnmarshalJSON 宽松解析
func (f *FlexStrings) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = nil
		return nil
	}
	if data[0] == '[' {
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		out := make(FlexStrings, 0, len(raw))
		for _, r := range raw {
			if s, ok := scalarString(r); ok {
				out = append(out, s)
			}
		}
		*f = out
		return nil
	}
	if s, ok := scalarString(data); ok {
		*f = FlexStrings{s}
		return nil
	}
	return fmt.Errorf("unsupported value %s", data)
}

// RawQuantity 原样保留 oracle 给出的数量文本，由 Resolver 负责校验
type RawQuantity string

// UnmarshalJSON 数字与字符串保留原文，其它类型置空（之后会被视为 0）
func (q *RawQuantity) UnmarshalJSON(data []byte) error {
	s, _ := scalarString(bytes.TrimSpace(data))
	*q = RawQuantity(s)
	return nil
}

func scalarString(data []byte) (string, bool) {
	if len(data) == 0 {
		return "", false
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return "", false
		}
		return s, true
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return "", false
		}
		return n.String(), true
	default:
		return "", false
	}
}

// DecodeCandidate 解析 oracle 原始输出；无法解析时返回 ErrMalformedCandidate
func DecodeCandidate(raw []byte) (*Candidate, error) {
	raw = bytes.TrimSpace(stripCodeFence(raw))
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty response", model.ErrMalformedCandidate)
	}

	var c Candidate
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrMalformedCandidate, err)
	}
	if c.Instructions == nil {
		return nil, fmt.Errorf("%w: missing instructions", model.ErrMalformedCandidate)
	}
	return &c, nil
}

// stripCodeFence 去掉模型偶尔包裹的 ```json 代码块
func stripCodeFence(raw []byte) []byte {
	s := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(s, "```") {
		return raw
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return []byte(s)
}

// Instruction 校验并转换单条候选指令；query 用于补全缺失的原始文本
func (ci CandidateInstruction) Instruction(query string) (model.Instruction, error) {
	text := strings.TrimSpace(ci.Text)
	if text == "" {
		text = strings.TrimSpace(query)
	}

	targets, err := expandTargets(ci.KeyFields)
	if err != nil {
		return model.Instruction{Text: text}, err
	}

	terms := make([]string, 0, len(ci.WorkTerms))
	for _, t := range ci.WorkTerms {
		if t = strings.TrimSpace(t); t != "" {
			terms = append(terms, t)
		}
	}
	if len(terms) == 0 {
		return model.Instruction{Text: text}, fmt.Errorf("%w: no work type in %q", model.ErrMalformedCandidate, text)
	}

	quantities := make([]string, len(ci.Quantities))
	for i, q := range ci.Quantities {
		quantities[i] = string(q)
	}

	return model.Instruction{
		Text:       text,
		Targets:    targets,
		WorkTerms:  terms,
		StatusWord: strings.Join(ci.StatusWords, " "),
		Quantities: quantities,
	}, nil
}

// Convert 转换全部候选指令；只有一条指令时允许用整段 query 作为原始文本
func (c *Candidate) Convert(query string) ([]model.Instruction, []error) {
	fallback := ""
	if len(c.Instructions) == 1 {
		fallback = query
	}

	out := make([]model.Instruction, len(c.Instructions))
	errs := make([]error, len(c.Instructions))
	for i, ci := range c.Instructions {
		out[i], errs[i] = ci.Instruction(fallback)
	}
	return out, errs
}

// expandTargets 对各字段取值做笛卡尔积；字段名排序保证结果确定
func expandTargets(fields KeyFieldValues) ([]model.Target, error) {
	names := make([]string, 0, len(fields))
	for name, values := range fields {
		if len(values) == 0 {
			continue
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: no location fields", model.ErrMalformedCandidate)
	}
	sort.Strings(names)

	targets := []model.Target{{}}
	for _, name := range names {
		next := make([]model.Target, 0, len(targets)*len(fields[name]))
		for _, t := range targets {
			for _, v := range fields[name] {
				nt := make(model.Target, len(t)+1)
				for k, val := range t {
					nt[k] = val
				}
				nt[name] = strings.TrimSpace(v)
				next = append(next, nt)
			}
		}
		if len(next) > maxTargets {
			return nil, fmt.Errorf("%w: more than %d location combinations", model.ErrMalformedCandidate, maxTargets)
		}
		targets = next
	}
	return targets, nil
}

// Unavailable 未配置 oracle 时使用，所有调用都返回不可重试的错误
type Unavailable struct{}

// ErrUnavailable oracle 未配置
var ErrUnavailable = errors.New("language oracle is not configured")

func (Unavailable) Interpret(context.Context, string) (*Candidate, error) {
	return nil, ErrUnavailable
}

func (Unavailable) Answer(context.Context, string, string) (string, error) {
	return "", ErrUnavailable
}
