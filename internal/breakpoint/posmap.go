package breakpoint

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"pagesplit/internal/pagemap"
	"pagesplit/pkg/contract"
)

// confirmPrefix: 页首内容确认比较的 rune 数。
const confirmPrefix = 16

// posMap: 段内容坐标系下的页位置表。
// starts/ends 由原始（未剥离）页长累加得到；段内容可在拼接页文本中定位时
// （anchored）整体平移到内容坐标，否则退化为名义偏移并在推进时按页首内容确认。
// exact 表示定位唯一确定（偏移经校验或仅一处与段页归属一致）；否则推进时同样按页首内容确认。
type posMap struct {
	starts, ends []int
	ids          []int
	pages        [][]rune
	anchored     bool
	exact        bool
	fast         bool
}

// anchorHint: 段内容起点相对首页起点的已知偏移。
type anchorHint struct {
	off int
	ok  bool
}

func newPosMap(content string, pages []contract.Page, joiner rune, fast bool, hint anchorHint) *posMap {
	n := len(pages)
	m := &posMap{starts: make([]int, n), ends: make([]int, n), ids: make([]int, n), fast: fast}
	if !fast {
		m.pages = make([][]rune, n)
	}
	var joined strings.Builder
	off := 0
	for i, p := range pages {
		text := pagemap.NormalizeNewlines(p.Content)
		if i > 0 {
			joined.WriteRune(joiner)
			off++
		}
		joined.WriteString(text)
		l := utf8.RuneCountInString(text)
		m.starts[i], m.ends[i], m.ids[i] = off, off+l, p.ID
		if !fast {
			m.pages[i] = []rune(text)
		}
		off += l
	}
	shift := 0
	if at, exact, ok := m.locate(joined.String(), content, hint); ok {
		shift, m.anchored, m.exact = at, true, exact
	}
	for i := range m.starts {
		m.starts[i] -= shift
		m.ends[i] -= shift
	}
	return m
}

// locate 返回段内容在拼接页文本中的 rune 起点。
// 优先使用经校验的 hint；否则在全部出现位置中取首个与段页归属一致者
// （首个非空白字符落在首页、末个非空白字符落在末页），仅一处一致时视为 exact；
// 均不一致时取首次出现。
func (m *posMap) locate(joined, content string, hint anchorHint) (at int, exact, ok bool) {
	if content == "" {
		return 0, false, false
	}
	if hint.ok && hint.off >= 0 {
		if b := byteOffset(joined, hint.off); b >= 0 && strings.HasPrefix(joined[b:], content) {
			return hint.off, true, true
		}
	}
	lead, tail := spaceBounds(content)
	first, consistent, matches := -1, -1, 0
	runes, prev := 0, 0
	for from := 0; from <= len(joined); {
		i := strings.Index(joined[from:], content)
		if i < 0 {
			break
		}
		b := from + i
		runes += utf8.RuneCountInString(joined[prev:b])
		prev = b
		if first < 0 {
			first = runes
		}
		if m.rawPage(runes+lead) == 0 && m.rawPage(runes+tail) == len(m.starts)-1 {
			if consistent < 0 {
				consistent = runes
			}
			matches++
		}
		_, size := utf8.DecodeRuneInString(joined[b:])
		from = b + max(size, 1)
	}
	switch {
	case consistent >= 0:
		return consistent, matches == 1, true
	case first >= 0:
		return first, false, true
	}
	return 0, false, false
}

// rawPage 返回拼接坐标（平移前）下 off 所在页下标。
func (m *posMap) rawPage(off int) int {
	i := sort.Search(len(m.starts), func(i int) bool { return m.starts[i] > off }) - 1
	return max(i, 0)
}

// spaceBounds 返回首个与末个非空白字符的 rune 下标。
func spaceBounds(s string) (lead, tail int) {
	r := []rune(s)
	for lead < len(r) && unicode.IsSpace(r[lead]) {
		lead++
	}
	tail = len(r) - 1
	for tail > lead && unicode.IsSpace(r[tail]) {
		tail--
	}
	return lead, tail
}

// byteOffset 将 rune 偏移转换为字节偏移；越界返回 -1。
func byteOffset(s string, runes int) int {
	n := 0
	for b := range s {
		if n == runes {
			return b
		}
		n++
	}
	if n == runes {
		return len(s)
	}
	return -1
}

func (m *posMap) len() int { return len(m.starts) }

// pageOf 返回内容偏移 off 所在页（相对下标）；分隔符归前一页，越界夹取。
// 快路径直接二分累计偏移表；常规路径自 hint 起线性走查（结果相同）。
func (m *posMap) pageOf(off, hint int) int {
	n := len(m.starts)
	if m.fast {
		i := sort.Search(n, func(i int) bool { return m.starts[i] > off }) - 1
		if i < 0 {
			return 0
		}
		return i
	}
	i := hint
	if i < 0 || i >= n {
		i = 0
	}
	for i+1 < n && m.starts[i+1] <= off {
		i++
	}
	for i > 0 && m.starts[i] > off {
		i--
	}
	return i
}

// confirm 在定位不唯一时按页首内容修正页下标：剩余内容恰以下一页开头时前移一页。
func (m *posMap) confirm(content []rune, off, idx int) int {
	if m.exact || m.fast || idx+1 >= len(m.starts) {
		return idx
	}
	if hasPagePrefix(content[off:], m.pages[idx+1]) && !hasPagePrefix(content[off:], m.pages[idx]) {
		return idx + 1
	}
	return idx
}

func hasPagePrefix(rest, page []rune) bool {
	i := 0
	for i < len(page) && unicode.IsSpace(page[i]) {
		i++
	}
	page = page[i:]
	k := min(confirmPrefix, len(rest), len(page))
	if k == 0 {
		return false
	}
	for j := 0; j < k; j++ {
		if rest[j] != page[j] {
			return false
		}
	}
	return true
}
