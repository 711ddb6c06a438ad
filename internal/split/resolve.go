// Package split 对拼接文本运行全部结构规则，解析切分点并构建带页归属的段。
package split

import (
	"sort"

	"pagesplit/internal/pagemap"
	"pagesplit/internal/rules"
	"pagesplit/pkg/contract"
)

// Options: 解析选项。
type Options struct {
	// Joiner: 段内页分隔符的渲染字符（' ' 或 '\n'）。
	Joiner rune
	Debug  bool
	// IterationLimit: 合并扫描迭代上限；<=0 取默认值。
	IterationLimit int
	Logger         *contract.Logger
}

// Point: 切分点（rune 偏移）。
type Point struct {
	Index int
	// ContentStart: 相对 Index 的内容起点；-1 表示无（不剥离标记）。
	ContentStart int
	Meta         contract.Meta
	Rule         int
	PatternType  string
	After        bool
}

// score 衡量切分点携带的信息量：内容起点优先，其次 meta。
func (p Point) score() int {
	s := 0
	if p.ContentStart >= 0 {
		s += 2
	}
	if len(p.Meta) > 0 {
		s++
	}
	return s
}

// candidate: 通过页约束的单次命中。
type candidate struct {
	hit    rules.Hit
	pageID int
}

// Resolve 解析切分点并构建段。
func Resolve(pm *pagemap.Map, compiled []*rules.Compiled, opts Options) ([]contract.Segment, error) {
	segs, _, err := ResolveAnchored(pm, compiled, opts)
	return segs, err
}

// ResolveAnchored 同 Resolve，并返回每段内容起点相对其 From 页起点的偏移（见 Build）。
func ResolveAnchored(pm *pagemap.Map, compiled []*rules.Compiled, opts Options) ([]contract.Segment, []int, error) {
	points, err := Points(pm, compiled, opts)
	if err != nil {
		return nil, nil, err
	}
	segs, offsets := Build(pm, points, opts)
	opts.Logger.Debugf("split resolved", "rules", len(compiled), "points", len(points), "segments", len(segs))
	return segs, offsets, nil
}

// Points 扫描、过滤、去重并按偏移排序返回切分点。
func Points(pm *pagemap.Map, compiled []*rules.Compiled, opts Options) ([]Point, error) {
	if len(compiled) == 0 || len(pm.Text) == 0 {
		return nil, nil
	}
	sc, err := rules.NewScanner(compiled)
	if err != nil {
		return nil, err
	}
	sc.Limit = opts.IterationLimit
	sc.Logger = opts.Logger

	perRule := make([][]candidate, len(compiled))
	err = sc.Scan(pm.Text, func(c *rules.Compiled, h rules.Hit) error {
		idx := pm.Index(h.Start)
		id := pm.Bounds[idx].ID
		if !c.Rule.Accepts(id) {
			return nil
		}
		if c.Guard != nil && idx > 0 && atPageStart(pm, idx, h.Start) && !c.GuardAccepts(pm.Page(idx-1)) {
			if opts.Logger.TraceEnabled() {
				opts.Logger.Tracef("page start guard rejected", "rule", c.Index, "page", id)
			}
			return nil
		}
		perRule[c.Index] = append(perRule[c.Index], candidate{hit: h, pageID: id})
		return nil
	})
	if err != nil {
		return nil, err
	}

	byIndex := make(map[int]Point)
	for ri, cands := range perRule {
		c := compiled[ri]
		sort.SliceStable(cands, func(i, j int) bool { return cands[i].hit.Start < cands[j].hit.Start })
		for _, cd := range filterOccurrence(cands, c.Rule.EffectiveOccurrence(), c.Rule.MaxSpan) {
			p := newPoint(c, cd.hit)
			if old, ok := byIndex[p.Index]; ok && !replaces(old, p) {
				continue
			}
			byIndex[p.Index] = p
		}
	}
	out := make([]Point, 0, len(byIndex))
	for _, p := range byIndex {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

// replaces 决定同偏移的后到切分点是否取代已有切分点：
// 信息量更多者胜；信息量相同且非零时后注册者胜；均无信息时保留先到者。
func replaces(old, p Point) bool {
	ns, cur := p.score(), old.score()
	return ns > cur || (ns == cur && ns > 0)
}

// atPageStart 判断 offset 是否位于第 idx 页起点到首个非空白字符之间。
func atPageStart(pm *pagemap.Map, idx, offset int) bool {
	return offset >= pm.Bounds[idx].Start && offset <= pm.FirstContent(idx)
}

func newPoint(c *rules.Compiled, h rules.Hit) Point {
	p := Point{Index: h.Start, ContentStart: -1, Rule: c.Index, PatternType: c.PatternType}
	if c.Rule.EffectiveSplit() == contract.SplitAfter {
		p.Index, p.After = h.End, true
	} else if h.ContentStart >= 0 {
		p.ContentStart = h.ContentStart
	}
	if len(c.Rule.Meta) > 0 || len(h.Captures) > 0 {
		p.Meta = make(contract.Meta, len(c.Rule.Meta)+len(h.Captures))
		for k, v := range c.Rule.Meta {
			p.Meta[k] = v
		}
		for k, v := range h.Captures {
			p.Meta[k] = v
		}
	}
	return p
}
