package contract

// SplitMode: 切分位置。at=匹配起点（匹配归下一段），after=匹配终点（匹配归上一段）。
type SplitMode string

const (
	SplitAt    SplitMode = "at"
	SplitAfter SplitMode = "after"
)

// Occurrence: 出现次数过滤。
type Occurrence string

const (
	OccurrenceAll   Occurrence = "all"
	OccurrenceFirst Occurrence = "first"
	OccurrenceLast  Occurrence = "last"
)

// 模式类型名（用于错误信息与 debug 来源）。
const (
	PatternRegex           = "regex"
	PatternTemplate        = "template"
	PatternLineStartsWith  = "line_starts_with"
	PatternLineStartsAfter = "line_starts_after"
	PatternLineEndsWith    = "line_ends_with"
)

// SplitRule: 声明式结构规则。
// 约束：五个模式字段必须恰好设置一个，否则规则无效（ErrInvalidRule）。
// 引擎每次调用只读使用，不修改规则。
type SplitRule struct {
	// Regex: 原样正则（不做自动转义与 token 展开）。含匿名捕获组时以最后一个位置组作为内容起点。
	Regex string `json:"regex,omitempty"`
	// Template: token 模板，如 "{{raqms:num}} {{dash}} "。
	Template string `json:"template,omitempty"`
	// LineStartsWith: 行首标记列表，标记保留在段内容中。
	LineStartsWith []string `json:"line_starts_with,omitempty"`
	// LineStartsAfter: 行首标记列表，标记从段内容中剔除（切分点仍在标记起点）。
	LineStartsAfter []string `json:"line_starts_after,omitempty"`
	// LineEndsWith: 行尾标记列表。
	LineEndsWith []string `json:"line_ends_with,omitempty"`

	// Split: 空值按模式类型取默认（line_ends_with 为 after，其余为 at）。
	Split SplitMode `json:"split,omitempty" validate:"omitempty,oneof=at after"`
	// Occurrence: 空值视为 all。
	Occurrence Occurrence `json:"occurrence,omitempty" validate:"omitempty,oneof=all first last"`
	// Fuzzy: nil 表示按模板引用的 token 自动决定。
	Fuzzy *bool `json:"fuzzy,omitempty"`
	// MaxSpan: >0 时出现次数过滤按页 ID 窗口（宽度 MaxSpan）分别进行。
	MaxSpan int `json:"max_span,omitempty" validate:"min=0"`
	// PageStartGuard: 仅对页首匹配生效；前一页末尾非空白字符须匹配该模式（可含 token）。
	PageStartGuard string `json:"page_start_guard,omitempty"`

	Min     *int        `json:"min,omitempty"`
	Max     *int        `json:"max,omitempty"`
	Exclude []PageRange `json:"exclude,omitempty"`
	Meta    Meta        `json:"meta,omitempty"`
}

// PatternType 返回已设置的模式字段名与设置数量。
func (r SplitRule) PatternType() (string, int) {
	name, n := "", 0
	if r.Regex != "" {
		name, n = PatternRegex, n+1
	}
	if r.Template != "" {
		name, n = PatternTemplate, n+1
	}
	if len(r.LineStartsWith) > 0 {
		name, n = PatternLineStartsWith, n+1
	}
	if len(r.LineStartsAfter) > 0 {
		name, n = PatternLineStartsAfter, n+1
	}
	if len(r.LineEndsWith) > 0 {
		name, n = PatternLineEndsWith, n+1
	}
	return name, n
}

// EffectiveSplit 返回生效的切分位置。
func (r SplitRule) EffectiveSplit() SplitMode {
	if r.Split != "" {
		return r.Split
	}
	if len(r.LineEndsWith) > 0 {
		return SplitAfter
	}
	return SplitAt
}

// EffectiveOccurrence 返回生效的出现次数过滤。
func (r SplitRule) EffectiveOccurrence() Occurrence {
	if r.Occurrence == "" {
		return OccurrenceAll
	}
	return r.Occurrence
}

// Accepts 判断页 ID 是否满足 min/max/exclude 约束。
func (r SplitRule) Accepts(pageID int) bool {
	return InBounds(r.Min, r.Max, pageID) && !InRanges(r.Exclude, pageID)
}
