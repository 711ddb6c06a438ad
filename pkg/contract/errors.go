package contract

import (
	"errors"
	"fmt"
)

// 最小错误分类。致命错误同步上抛，不返回部分结果。
var (
	// ErrInvalidPattern: 展开后的正则无法编译。
	ErrInvalidPattern = errors.New("invalid pattern")
	// ErrInvalidRule: 规则未设置或设置了多个模式字段。
	ErrInvalidRule = errors.New("invalid rule")
	// ErrInvalidConfig: 选项不一致（如 max_content_length 低于下限）。
	ErrInvalidConfig = errors.New("invalid config")
	// ErrRunawayMatch: 合并正则匹配循环超过迭代上限。
	ErrRunawayMatch = errors.New("runaway matching")
	// ErrInvariantViolation: 领域不变量违例（通用哨兵）。
	ErrInvariantViolation = errors.New("invariant violation")
	// ErrPathInvalid: 目标标识映射为无效/越界路径（例如绝对路径或 '..' 逃逸）。
	ErrPathInvalid = errors.New("path invalid")
	// ErrSeqInvalid: 装配时段序列违规（逆序/混入其他书目）。
	ErrSeqInvalid = errors.New("sequence invalid")
	// ErrDecode: 输入字节无法解码为页序列。
	ErrDecode = errors.New("decode error")
)

// PatternError 携带出错的模式文本与底层原因。
// errors.Is(err, ErrInvalidPattern) 成立，同时可 errors.As 取出底层正则错误。
type PatternError struct {
	// Kind: 模式来源，如 "template"、"breakpoint"、"page_start_guard"、"replace"。
	Kind    string
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("invalid %s pattern %q: %v", e.Kind, e.Pattern, e.Err)
	}
	return fmt.Sprintf("invalid pattern %q: %v", e.Pattern, e.Err)
}

func (e *PatternError) Unwrap() []error { return []error{ErrInvalidPattern, e.Err} }
