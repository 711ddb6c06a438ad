// Package pagemap 将页序列拼接为单一可匹配文本，并提供偏移 → 页 ID 的反查。
package pagemap

import (
	"sort"
	"strings"
	"unicode"

	"pagesplit/pkg/contract"
)

// Separator: 页间分隔符。
const Separator = '\n'

// Boundary: 单页在拼接文本中的区间 [Start, End)（rune 偏移）。
type Boundary struct {
	Start, End int
	ID         int
}

// Map: 拼接文本与页边界索引。构建后只读。
type Map struct {
	Text   []rune
	Bounds []Boundary
	// Breaks: 分隔符所在偏移（升序）。
	Breaks []int
}

// NormalizeNewlines 将 CRLF/CR 统一为 LF。
func NormalizeNewlines(s string) string {
	if !strings.ContainsRune(s, '\r') {
		return s
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// Build 按输入顺序拼接页内容（页间插入单个 '\n'）。
func Build(pages []contract.Page) *Map {
	m := &Map{Bounds: make([]Boundary, 0, len(pages))}
	if len(pages) > 1 {
		m.Breaks = make([]int, 0, len(pages)-1)
	}
	for i, p := range pages {
		if i > 0 {
			m.Breaks = append(m.Breaks, len(m.Text))
			m.Text = append(m.Text, Separator)
		}
		start := len(m.Text)
		m.Text = append(m.Text, []rune(NormalizeNewlines(p.Content))...)
		m.Bounds = append(m.Bounds, Boundary{Start: start, End: len(m.Text), ID: p.ID})
	}
	return m
}

// Len 返回页数。
func (m *Map) Len() int { return len(m.Bounds) }

// Index 二分查找 offset 所在页下标：最后一个 Start <= offset 的页。
// 分隔符偏移归前一页（已知缝隙情况）；越界偏移夹取到首/末页。
func (m *Map) Index(offset int) int {
	n := len(m.Bounds)
	if n == 0 {
		return -1
	}
	i := sort.Search(n, func(i int) bool { return m.Bounds[i].Start > offset }) - 1
	if i < 0 {
		return 0
	}
	return i
}

// ID 返回 offset 所在页 ID；无页时返回 0。
func (m *Map) ID(offset int) int {
	i := m.Index(offset)
	if i < 0 {
		return 0
	}
	return m.Bounds[i].ID
}

// IsBreak 报告 offset 是否为拼接引入的页分隔符。
func (m *Map) IsBreak(offset int) bool {
	i := sort.SearchInts(m.Breaks, offset)
	return i < len(m.Breaks) && m.Breaks[i] == offset
}

// Page 返回第 i 页的内容切片（共享底层数组，只读）。
func (m *Map) Page(i int) []rune {
	b := m.Bounds[i]
	return m.Text[b.Start:b.End:b.End]
}

// FirstContent 返回第 i 页第一个非空白字符的偏移；整页空白时返回 End。
func (m *Map) FirstContent(i int) int {
	b := m.Bounds[i]
	for j := b.Start; j < b.End; j++ {
		if !unicode.IsSpace(m.Text[j]) {
			return j
		}
	}
	return b.End
}
