// Package breakpoint 对超出页跨度/长度预算的段做迭代细分。
// 每个超限段在滑动窗口内按序尝试断点模式，未命中时依次回退到页边界、
// 语言安全位置、字素安全位置与硬切；页归属始终经位置表映射回真实页。
package breakpoint

import (
	"unicode"

	"pagesplit/pkg/contract"
)

// DefaultFastPathThreshold: 段内页数达到该值时启用累计偏移快路径。
const DefaultFastPathThreshold = 1000

// Options: 断点引擎选项。
type Options struct {
	MaxPages         *int
	MaxContentLength int
	Breakpoints      []contract.Breakpoint
	Prefer           contract.Prefer
	// Joiner: 段内页分隔符字符（须与结构切分时一致）。
	Joiner rune
	Debug  bool
	// FastPathThreshold: <=0 取 DefaultFastPathThreshold。
	FastPathThreshold int
	Logger            *contract.Logger
}

// Engine: 断点引擎。构建时编译全部断点；Apply 无共享可变状态。
type Engine struct {
	opts  Options
	bps   []compiled
	pages []contract.Page
	index map[int]int
}

// New 编译断点并索引页 ID（重复 ID 取首次出现）。
func New(pages []contract.Page, opts Options) (*Engine, error) {
	bps, err := compileAll(opts.Breakpoints)
	if err != nil {
		return nil, err
	}
	if opts.Joiner == 0 {
		opts.Joiner = ' '
	}
	if opts.FastPathThreshold <= 0 {
		opts.FastPathThreshold = DefaultFastPathThreshold
	}
	e := &Engine{opts: opts, bps: bps, pages: pages, index: make(map[int]int, len(pages))}
	for i, p := range pages {
		if _, ok := e.index[p.ID]; !ok {
			e.index[p.ID] = i
		}
	}
	return e, nil
}

// Apply 细分超限段；合规段原样透传。未配置断点时不做任何处理。
// 段内容在其页文本中的位置按内容检索确定（见 ApplyAnchored）。
func (e *Engine) Apply(segs []contract.Segment) ([]contract.Segment, error) {
	return e.ApplyAnchored(segs, nil)
}

// ApplyAnchored 同 Apply；offsets 与 segs 一一对应，给出内容起点相对 From 页起点的
// rune 偏移（split.Build 产出）。偏移与页文本不符或 offsets 为 nil 时退回内容检索。
func (e *Engine) ApplyAnchored(segs []contract.Segment, offsets []int) ([]contract.Segment, error) {
	if len(e.bps) == 0 {
		return segs, nil
	}
	if offsets != nil && len(offsets) != len(segs) {
		offsets = nil
	}
	out := make([]contract.Segment, 0, len(segs))
	for i, s := range segs {
		if !e.oversized(s) {
			out = append(out, s)
			continue
		}
		hint := anchorHint{}
		if offsets != nil {
			hint = anchorHint{off: offsets[i], ok: true}
		}
		pieces, err := e.split(s, hint)
		if err != nil {
			return nil, err
		}
		e.opts.Logger.Debugf("segment subdivided", "from", s.From, "to", s.LastPage(), "pieces", len(pieces))
		out = append(out, pieces...)
	}
	return out, nil
}

func (e *Engine) oversized(s contract.Segment) bool {
	if e.opts.MaxPages != nil && s.Span() > *e.opts.MaxPages {
		return true
	}
	return e.opts.MaxContentLength > 0 && len([]rune(s.Content)) > e.opts.MaxContentLength
}

// cursor: 单个超限段的迭代状态。
type cursor struct {
	content []rune
	pm      *posMap
	skipped []bool
	// end: 最后一个非空白字符之后的位置。
	end int
}

func (e *Engine) split(seg contract.Segment, hint anchorHint) ([]contract.Segment, error) {
	si, ok1 := e.index[seg.From]
	ei, ok2 := e.index[seg.LastPage()]
	if !ok1 || !ok2 || ei < si {
		e.opts.Logger.Warnf("segment pages not found, passing through", "from", seg.From, "to", seg.LastPage())
		return []contract.Segment{seg}, nil
	}
	pages := e.pages[si : ei+1]
	cs := &cursor{
		content: []rune(seg.Content),
		pm:      newPosMap(seg.Content, pages, e.opts.Joiner, len(pages) >= e.opts.FastPathThreshold, hint),
		skipped: make([]bool, len(e.bps)),
	}
	cs.end = len(cs.content)
	for cs.end > 0 && unicode.IsSpace(cs.content[cs.end-1]) {
		cs.end--
	}
	for i, bp := range e.bps {
		if bp.skip != nil {
			ok, err := bp.skip.MatchString(seg.Content)
			if err != nil {
				return nil, err
			}
			cs.skipped[i] = ok
		}
	}
	if e.opts.Logger.TraceEnabled() {
		e.opts.Logger.Tracef("position map", "from", seg.From, "pages", len(pages), "anchored", cs.pm.anchored, "exact", cs.pm.exact, "fast", cs.pm.fast)
	}

	var out []contract.Segment
	prov := seg.Debug
	c := skipSpace(cs.content, 0, cs.end)
	cur := cs.pm.pageOf(c, 0)
	for c < cs.end {
		if e.fits(cs, c, cur) {
			out = e.emit(out, cs, seg, c, cs.end, cur, prov)
			break
		}
		w, winIdx, lengthBounded := e.window(cs, c, cur)
		b, bprov, err := e.choose(cs, c, cur, w, winIdx, lengthBounded)
		if err != nil {
			return nil, err
		}
		out = e.emit(out, cs, seg, c, b, cur, prov)
		prov = bprov
		c = skipSpace(cs.content, b, cs.end)
		if c < cs.end {
			next := cs.pm.confirm(cs.content, c, cs.pm.pageOf(c, cur))
			cur = max(cur, next)
		}
	}
	return out, nil
}

// fits 判断剩余内容 [c, end) 是否已满足预算。
func (e *Engine) fits(cs *cursor, c, cur int) bool {
	if e.opts.MaxPages != nil {
		last := cs.pm.pageOf(cs.end-1, cur)
		if cs.pm.ids[last]-cs.pm.ids[cur] > *e.opts.MaxPages {
			return false
		}
	}
	return e.opts.MaxContentLength <= 0 || cs.end-c <= e.opts.MaxContentLength
}

// emit 裁剪 [c, b) 并追加为一个段；仅首段继承原 meta。
func (e *Engine) emit(out []contract.Segment, cs *cursor, seg contract.Segment, c, b, cur int, prov *contract.Provenance) []contract.Segment {
	for b > c && unicode.IsSpace(cs.content[b-1]) {
		b--
	}
	c = skipSpace(cs.content, c, b)
	if c >= b {
		return out
	}
	from := cs.pm.ids[cs.pm.pageOf(c, cur)]
	piece := contract.Segment{Content: string(cs.content[c:b]), From: from}
	if to := cs.pm.ids[cs.pm.pageOf(b-1, cur)]; to != from {
		piece.To = contract.Int(to)
	}
	if len(out) == 0 {
		piece.Meta = seg.Meta
	}
	if e.opts.Debug {
		piece.Debug = prov
	}
	return append(out, piece)
}

func skipSpace(content []rune, c, end int) int {
	for c < end && unicode.IsSpace(content[c]) {
		c++
	}
	return c
}

// pageEnd 返回第 i 页在内容坐标系中的结束位置（夹取到内容范围）。
func (cs *cursor) pageEnd(i int) int { return min(max(cs.pm.ends[i], 0), len(cs.content)) }

// pageStart 同上，返回起始位置。
func (cs *cursor) pageStart(i int) int { return min(max(cs.pm.starts[i], 0), len(cs.content)) }
