package contract

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MinContentLength: MaxContentLength 的下限（设置时）。低于该值无法保证断点循环的推进。
const MinContentLength = 50

// Options: SegmentPages 的运行选项。
// JSON 使用 snake_case；Logger 仅可通过代码注入。
type Options struct {
	// Rules: 结构规则，按数组顺序参与同位置决胜。
	Rules []SplitRule `json:"rules,omitempty" validate:"dive"`
	// MaxPages: 段允许的最大页 ID 跨度；nil 表示不限制。0 表示每段只含一个页 ID。
	MaxPages *int `json:"max_pages,omitempty" validate:"omitempty,min=0"`
	// MaxContentLength: 段内容最大长度（rune 计）；0 表示不限制，设置时须 >= MinContentLength。
	MaxContentLength int `json:"max_content_length,omitempty" validate:"omitempty,min=50"`
	// Breakpoints: 超限段的有序回退模式；为空时不做断点后处理（超限段原样透传）。
	Breakpoints []Breakpoint `json:"breakpoints,omitempty" validate:"dive"`
	// Prefer: 空值视为 longer。
	Prefer Prefer `json:"prefer,omitempty" validate:"omitempty,oneof=longer shorter"`
	// PageJoiner: 空值视为 space。
	PageJoiner PageJoiner `json:"page_joiner,omitempty" validate:"omitempty,oneof=space newline"`
	// Preprocess: 内置文本归一步骤，逐页按序执行（先于 Replace）。
	Preprocess []PreprocessStep `json:"preprocess,omitempty"`
	// Replace: 原样正则替换规则，逐页按序执行。
	Replace []ReplaceRule `json:"replace,omitempty"`
	// Debug: 为每个段写入 Provenance。
	Debug bool `json:"debug,omitempty"`

	Logger *Logger `json:"-" validate:"-"`
}

// EffectivePrefer 返回生效的选择策略。
func (o Options) EffectivePrefer() Prefer {
	if o.Prefer == "" {
		return PreferLonger
	}
	return o.Prefer
}

// EffectiveJoiner 返回生效的页分隔符渲染方式。
func (o Options) EffectiveJoiner() PageJoiner {
	if o.PageJoiner == "" {
		return JoinSpace
	}
	return o.PageJoiner
}

// 内置预处理步骤名。
const (
	StepRemoveZeroWidth  = "remove_zero_width"
	StepCondenseEllipsis = "condense_ellipsis"
	StepFixTrailingWaw   = "fix_trailing_waw"
	StepNFC              = "nfc"
	StepCollapseSpaces   = "collapse_spaces"
)

// PreprocessStep: 内置文本归一步骤；可按页 ID 范围限定。
// JSON 可写为字符串（仅类型）或对象。
type PreprocessStep struct {
	Type string `json:"type"`
	// Mode: 仅 remove_zero_width 使用；"all" 时同时移除 ZWJ/ZWNJ。
	Mode string `json:"mode,omitempty"`
	Min  *int   `json:"min,omitempty"`
	Max  *int   `json:"max,omitempty"`
}

// UnmarshalJSON 接受字符串或对象。
func (p *PreprocessStep) UnmarshalJSON(raw []byte) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		*p = PreprocessStep{Type: s}
		return nil
	}
	type plain PreprocessStep
	var v plain
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("preprocess step: %v: %w", err, ErrInvalidConfig)
	}
	*p = PreprocessStep(v)
	return nil
}

// ReplaceRule: 原样正则替换（预处理钩子，独立于匹配引擎）。
type ReplaceRule struct {
	Regex       string `json:"regex"`
	Replacement string `json:"replacement"`
	// Flags: g（全部替换）、i、m、s 的任意组合。
	Flags   string `json:"flags,omitempty"`
	Min     *int   `json:"min,omitempty"`
	Max     *int   `json:"max,omitempty"`
	PageIDs []int  `json:"page_ids,omitempty"`
}

// AppliesTo 判断替换规则是否作用于该页。
func (r ReplaceRule) AppliesTo(pageID int) bool {
	if len(r.PageIDs) > 0 {
		found := false
		for _, id := range r.PageIDs {
			if id == pageID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return InBounds(r.Min, r.Max, pageID)
}
