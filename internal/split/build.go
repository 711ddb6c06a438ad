package split

import (
	"sort"
	"unicode"

	"pagesplit/internal/pagemap"
	"pagesplit/pkg/contract"
)

// 无规则来源段的 debug 种类。
const (
	KindFallback = "fallback"
	KindLeading  = "leading"
)

// Build 由有序切分点构建段。
// 段区间为 [point.Index+ContentStart, next.Index)；尾部空白总是去除，
// 剥离标记、after 切分与前导段同时去除首部空白；空段丢弃。
// 无任何切分点时整体作为单一回退段（内容为空则无段）。
// offsets[i] 为 segs[i] 内容起点相对其 From 页起点的 rune 偏移（可为负：起点落在前页末尾空白）。
func Build(pm *pagemap.Map, points []Point, opts Options) (segs []contract.Segment, offsets []int) {
	text := pm.Text
	if len(points) == 0 {
		if seg, off, ok := makeSegment(pm, 0, len(text), true, opts); ok {
			if opts.Debug {
				seg.Debug = &contract.Provenance{Kind: KindFallback}
			}
			return []contract.Segment{seg}, []int{off}
		}
		return nil, nil
	}
	out := make([]contract.Segment, 0, len(points)+1)
	offs := make([]int, 0, len(points)+1)
	if first := points[0].Index; first > 0 {
		if seg, off, ok := makeSegment(pm, 0, first, true, opts); ok {
			if opts.Debug {
				seg.Debug = &contract.Provenance{Kind: KindLeading}
			}
			out = append(out, seg)
			offs = append(offs, off)
		}
	}
	for i, p := range points {
		end := len(text)
		if i+1 < len(points) {
			end = points[i+1].Index
		}
		start := p.Index
		if p.ContentStart > 0 {
			start += p.ContentStart
		}
		if start > end {
			start = end
		}
		seg, off, ok := makeSegment(pm, start, end, p.ContentStart >= 0 || p.After, opts)
		if !ok {
			continue
		}
		if len(p.Meta) > 0 {
			seg.Meta = p.Meta
		}
		if opts.Debug {
			seg.Debug = &contract.Provenance{Rule: &contract.RuleProvenance{Index: p.Rule, PatternType: p.PatternType}}
		}
		out = append(out, seg)
		offs = append(offs, off)
	}
	return out, offs
}

// makeSegment 裁剪 [start, end) 并计算页归属与内容起点偏移；内容为空时 ok=false。
func makeSegment(pm *pagemap.Map, start, end int, trimLeading bool, opts Options) (contract.Segment, int, bool) {
	text := pm.Text
	for end > start && unicode.IsSpace(text[end-1]) {
		end--
	}
	first := start
	for first < end && unicode.IsSpace(text[first]) {
		first++
	}
	if first == end {
		return contract.Segment{}, 0, false
	}
	if trimLeading {
		start = first
	}
	joiner := opts.Joiner
	if joiner == 0 {
		joiner = ' '
	}
	buf := make([]rune, end-start)
	copy(buf, text[start:end])
	for _, b := range breaksIn(pm, start, end) {
		buf[b-start] = joiner
	}
	fromIdx := pm.Index(first)
	seg := contract.Segment{Content: string(buf), From: pm.Bounds[fromIdx].ID}
	if to := pm.ID(end - 1); to != seg.From {
		seg.To = contract.Int(to)
	}
	return seg, start - pm.Bounds[fromIdx].Start, true
}

// breaksIn 返回 [start, end) 内的页分隔符偏移。
func breaksIn(pm *pagemap.Map, start, end int) []int {
	lo, hi := sort.SearchInts(pm.Breaks, start), sort.SearchInts(pm.Breaks, end)
	return pm.Breaks[lo:hi]
}
