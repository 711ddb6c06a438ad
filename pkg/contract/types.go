package contract

import (
	"encoding/json"
	"fmt"
)

// BookID: 逻辑书目标识（通常为输入路径，经 NormalizeBookID 规范化）。
type BookID string

// Meta: 段落元信息。结构规则的 meta 与命名捕获合并写入；核心流程只写不读。
type Meta map[string]any

// Page: 原子输入页。
// 约束：
// - ID 由调用方分配，可不连续、可有任意间隔；
// - 输入切片顺序即拼接顺序（与 ID 数值大小无关）；
// - 交给引擎后视为只读。
type Page struct {
	ID      int    `json:"id"`
	Content string `json:"content"`
}

// Segment: 输出段。
// 约束：
// - To 仅在内容跨越多个页 ID 时出现（To != nil 且 *To != From）；
// - Content 已去尾部空白，多页内部的页分隔符按 PageJoiner 渲染；
// - 返回后不再修改。
type Segment struct {
	Content string      `json:"content"`
	From    int         `json:"from"`
	To      *int        `json:"to,omitempty"`
	Meta    Meta        `json:"meta,omitempty"`
	Debug   *Provenance `json:"debug,omitempty"`
}

// LastPage 返回段的末页 ID（To 缺省时等于 From）。
func (s Segment) LastPage() int {
	if s.To != nil {
		return *s.To
	}
	return s.From
}

// Span 返回 ID 距离（不是数组下标距离）。
func (s Segment) Span() int { return s.LastPage() - s.From }

// Int 返回 v 的指针，便于构造可选数值字段（0 为有效值）。
func Int(v int) *int { return &v }

// PageRange: 闭区间 [From, To] 的页 ID 范围。
// JSON 支持三种写法：5、[10, 20]、{"from":10,"to":20}。
type PageRange struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// Contains 判断 id 是否落在区间内。
func (r PageRange) Contains(id int) bool { return id >= r.From && id <= r.To }

// UnmarshalJSON 接受单值、二元数组或对象。
func (r *PageRange) UnmarshalJSON(b []byte) error {
	var single int
	if err := json.Unmarshal(b, &single); err == nil {
		r.From, r.To = single, single
		return nil
	}
	var pair []int
	if err := json.Unmarshal(b, &pair); err == nil {
		switch len(pair) {
		case 1:
			r.From, r.To = pair[0], pair[0]
		case 2:
			r.From, r.To = pair[0], pair[1]
		default:
			return fmt.Errorf("page range: expect [from,to], got %d items: %w", len(pair), ErrInvalidConfig)
		}
		if r.From > r.To {
			return fmt.Errorf("page range: from %d > to %d: %w", r.From, r.To, ErrInvalidConfig)
		}
		return nil
	}
	type plain PageRange
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return fmt.Errorf("page range: %w", ErrInvalidConfig)
	}
	if p.From > p.To {
		return fmt.Errorf("page range: from %d > to %d: %w", p.From, p.To, ErrInvalidConfig)
	}
	*r = PageRange(p)
	return nil
}

// InRanges 判断 id 是否命中任一区间。
func InRanges(ranges []PageRange, id int) bool {
	for _, r := range ranges {
		if r.Contains(id) {
			return true
		}
	}
	return false
}

// InBounds 判断 id 是否满足可选的 [min, max] 约束。
func InBounds(min, max *int, id int) bool {
	if min != nil && id < *min {
		return false
	}
	if max != nil && id > *max {
		return false
	}
	return true
}

// Provenance: debug 模式下记录段边界的来源（结构规则或断点）。
type Provenance struct {
	Rule       *RuleProvenance       `json:"rule,omitempty"`
	Breakpoint *BreakpointProvenance `json:"breakpoint,omitempty"`
	// Kind 仅用于无规则来源的段：fallback（无任何切分点）/ leading（首个切分点之前的内容）。
	Kind string `json:"kind,omitempty"`
}

// RuleProvenance: 触发边界的结构规则。
type RuleProvenance struct {
	Index       int    `json:"index"`
	PatternType string `json:"pattern_type"`
}

// BreakpointProvenance: 触发边界的断点；Kind 取 BreakKind 常量。
type BreakpointProvenance struct {
	Index   int    `json:"index"`
	Pattern string `json:"pattern"`
	Kind    string `json:"kind"`
}

// 断点边界种类。
const (
	BreakPattern          = "pattern"
	BreakPageBoundary     = "page_boundary"
	BreakExcludedPage     = "excluded_page"
	BreakSafetyLinguistic = "safety_linguistic"
	BreakSafetyUnicode    = "safety_unicode"
	BreakHard             = "hard"
)
