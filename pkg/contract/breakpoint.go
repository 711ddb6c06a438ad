package contract

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Prefer: 窗口内候选匹配的选择策略。
type Prefer string

const (
	// PreferLonger 取窗口内最后一个匹配（段尽量长）。
	PreferLonger Prefer = "longer"
	// PreferShorter 取窗口内第一个匹配（段尽量短）。
	PreferShorter Prefer = "shorter"
)

// PageJoiner: 多页段内部页分隔符的渲染方式。
type PageJoiner string

const (
	JoinSpace   PageJoiner = "space"
	JoinNewline PageJoiner = "newline"
)

// Rune 返回分隔符对应的字符。
func (j PageJoiner) Rune() rune {
	if j == JoinNewline {
		return '\n'
	}
	return ' '
}

// Breakpoint: 超限段的有序回退模式。
// 约束：
// - Pattern/Regex/Words 至多设置一个；三者皆空即“页边界”哨兵；
// - 列表顺序有意义：每个窗口内第一个可用且命中的模式胜出；
// - 匹配只看到窗口之后有限的内容：256 个 rune，再延伸到所在行行尾（至多再 4096 个 rune）。
//   需要看得更远的先行断言（?=…）把可见范围末尾当作内容结尾。
type Breakpoint struct {
	// Pattern: token 模板（自动转义括号并展开 token）。
	Pattern string `json:"pattern,omitempty"`
	// Regex: 原样正则。
	Regex string `json:"regex,omitempty"`
	// Words: 字面词列表；是否整词取决于调用方是否保留尾随空格（如 "بل "）。
	Words []string `json:"words,omitempty"`
	// Split: 空值时 words 取 at，其余取 after。
	Split SplitMode `json:"split,omitempty" validate:"omitempty,oneof=at after"`

	Min     *int        `json:"min,omitempty"`
	Max     *int        `json:"max,omitempty"`
	Exclude []PageRange `json:"exclude,omitempty"`
	// SkipWhen: 段全文匹配该模板时本断点对该段不生效。
	SkipWhen string `json:"skip_when,omitempty"`
}

// IsPageBoundary 判断是否为空模式哨兵。
func (b Breakpoint) IsPageBoundary() bool {
	return b.Pattern == "" && b.Regex == "" && len(b.Words) == 0
}

// EffectiveSplit 返回生效的切分位置。
func (b Breakpoint) EffectiveSplit() SplitMode {
	if b.Split != "" {
		return b.Split
	}
	if len(b.Words) > 0 {
		return SplitAt
	}
	return SplitAfter
}

// Label 返回用于 debug 来源与日志的模式文本。
func (b Breakpoint) Label() string {
	switch {
	case b.Regex != "":
		return b.Regex
	case len(b.Words) > 0:
		bs, _ := json.Marshal(b.Words)
		return string(bs)
	default:
		return b.Pattern
	}
}

// Applies 判断断点在当前页 ID 是否可用（min/max）。
func (b Breakpoint) Applies(pageID int) bool { return InBounds(b.Min, b.Max, pageID) }

// Excludes 判断页 ID 是否被本断点排除。
func (b Breakpoint) Excludes(pageID int) bool { return InRanges(b.Exclude, pageID) }

// UnmarshalJSON 接受字符串（视为 Pattern）或对象。
func (b *Breakpoint) UnmarshalJSON(raw []byte) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		*b = Breakpoint{Pattern: s}
		return nil
	}
	type plain Breakpoint
	var p plain
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return fmt.Errorf("breakpoint: %v: %w", err, ErrInvalidConfig)
	}
	*b = Breakpoint(p)
	return nil
}

// MarshalJSON 对纯模板断点输出字符串形式，保持配置往返稳定。
func (b Breakpoint) MarshalJSON() ([]byte, error) {
	if b.Regex == "" && len(b.Words) == 0 && b.Split == "" && b.Min == nil && b.Max == nil && len(b.Exclude) == 0 && b.SkipWhen == "" {
		return json.Marshal(b.Pattern)
	}
	type plain Breakpoint
	return json.Marshal(plain(b))
}
