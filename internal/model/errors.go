package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedCandidate oracle 返回的结构无法解析或不完整（不重试）
var ErrMalformedCandidate = errors.New("malformed oracle candidate")

// NoRowMatchMessage 所有定位组合都没有精确匹配时的反馈
const NoRowMatchMessage = "No exact match found in the given sheet."

// EmptySheetError 原始数据不足两行，无法建立索引
type EmptySheetError struct {
	Rows int
}

func (e *EmptySheetError) Error() string {
	return fmt.Sprintf("sheet has no data: %d row(s), need at least 2", e.Rows)
}

// NoRowMatchError 没有任何行与指令的定位字段精确匹配
type NoRowMatchError struct {
	Targets []Target
}

func (e *NoRowMatchError) Error() string {
	return NoRowMatchMessage
}

// ColumnNotFoundError 工作项在列索引中找不到
type ColumnNotFoundError struct {
	Term string
}

func (e *ColumnNotFoundError) Error() string {
	return fmt.Sprintf("Work type '%s' not found in available columns.", e.Term)
}

// AmbiguousColumnError 工作项匹配到多个列
type AmbiguousColumnError struct {
	Term   string
	Labels []string
}

func (e *AmbiguousColumnError) Error() string {
	return fmt.Sprintf("Multiple matches found for '%s'. Please specify which one you mean: %s.",
		e.Term, strings.Join(e.Labels, ", "))
}

// UnknownSheetTargetError 计划中的行/列超出索引范围
type UnknownSheetTargetError struct {
	Row    int
	Column string
}

func (e *UnknownSheetTargetError) Error() string {
	return fmt.Sprintf("target row %d column %q is outside the indexed sheet", e.Row, e.Column)
}

// OracleFailure oracle 调用在重试上限内仍失败
type OracleFailure struct {
	Attempts int
	Err      error
}

func (e *OracleFailure) Error() string {
	return fmt.Sprintf("oracle failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *OracleFailure) Unwrap() error {
	return e.Err
}

// IsRejection 判断错误是否属于单条指令的可恢复拒绝
func IsRejection(err error) bool {
	var noRow *NoRowMatchError
	var notFound *ColumnNotFoundError
	var ambiguous *AmbiguousColumnError
	return errors.As(err, &noRow) ||
		errors.As(err, &notFound) ||
		errors.As(err, &ambiguous) ||
		errors.Is(err, ErrMalformedCandidate)
}
