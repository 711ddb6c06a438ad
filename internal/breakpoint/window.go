package breakpoint

import (
	"pagesplit/pkg/contract"
)

// window 计算当前窗口：结束位置 w、窗口末页下标与是否由长度约束限定。
// 页跨度窗口按 ID 距离取最大连续下标；长度约束更紧时取交集。
func (e *Engine) window(cs *cursor, c, cur int) (w, winIdx int, lengthBounded bool) {
	n := cs.pm.len()
	w, winIdx = len(cs.content), n-1
	if e.opts.MaxPages != nil {
		winIdx = cur
		base := cs.pm.ids[cur]
		for winIdx+1 < n && cs.pm.ids[winIdx+1]-base <= *e.opts.MaxPages {
			winIdx++
		}
		w = cs.pageEnd(winIdx)
	}
	if l := e.opts.MaxContentLength; l > 0 && c+l < w {
		w, lengthBounded = c+l, true
	}
	if w <= c {
		// 名义偏移漂移时保证推进
		w = c + 1
	}
	return w, winIdx, lengthBounded
}

// choose 在窗口 (c, w] 内选择断开位置，并返回新段的来源记录。
func (e *Engine) choose(cs *cursor, c, cur, w, winIdx int, lengthBounded bool) (int, *contract.Provenance, error) {
	id := cs.pm.ids[cur]
	applicable, excludedHere := 0, false
	// limit/limitIdx: 被排除页截断后的最紧窗口，供无命中时回退
	limit, limitIdx := w, winIdx
	for _, bp := range e.bps {
		if cs.skipped[bp.index] || !bp.bp.Applies(id) {
			continue
		}
		if bp.bp.Excludes(id) {
			excludedHere = true
			continue
		}
		applicable++
		// 窗口截止到本断点排除的第一页之前
		wEnd, wIdx, clamped := w, winIdx, false
		for i := cur + 1; i <= winIdx; i++ {
			if bp.bp.Excludes(cs.pm.ids[i]) {
				wEnd, wIdx, clamped = min(wEnd, cs.pageStart(i)), i-1, true
				break
			}
		}
		if clamped && wEnd < limit {
			limit, limitIdx = wEnd, wIdx
		}
		if bp.re == nil {
			if lengthBounded && !clamped {
				b, kind := safety(cs.content, c, w)
				return b, e.prov(bp.index, bp.bp.Label(), kind), nil
			}
			b := cs.pageEnd(wIdx)
			if e.opts.Prefer == contract.PreferShorter {
				b = cs.pageEnd(cur)
			}
			if b = min(b, wEnd); b > c {
				return b, e.prov(bp.index, "", contract.BreakPageBoundary), nil
			}
			continue
		}
		b, ok, err := e.search(bp, cs.content, c, wEnd)
		if err != nil {
			return 0, nil, err
		}
		if ok {
			return b, e.prov(bp.index, bp.bp.Label(), contract.BreakPattern), nil
		}
	}
	if applicable == 0 && excludedHere {
		// 当前页被所有可用断点排除：单独成段
		if b := cs.pageEnd(cur); b > c && b <= w {
			return b, e.prov(-1, "", contract.BreakExcludedPage), nil
		}
	}
	if limit < w {
		// 下一个被排除页之前的页边界
		if b := cs.pageEnd(limitIdx); b > c && b <= limit {
			return b, e.prov(-1, "", contract.BreakPageBoundary), nil
		}
	}
	if lengthBounded {
		b, kind := safety(cs.content, c, w)
		return b, e.prov(-1, "", kind), nil
	}
	return max(cs.pageEnd(winIdx), c+1), e.prov(-1, "", contract.BreakPageBoundary), nil
}

// 匹配可见范围：窗口之后 searchTail 个 rune，再延伸到所在行行尾，至多 lineTail 个 rune。
const (
	searchTail = 256
	lineTail   = 4096
)

// visibleEnd 返回断点匹配切片的结束位置。
func visibleEnd(content []rune, wEnd int) int {
	end := min(len(content), wEnd+searchTail)
	limit := min(len(content), end+lineTail)
	for end < limit && content[end] != '\n' {
		end++
	}
	return end
}

// search 在 [c, wEnd) 内查找断点匹配：longer 取最后一个，shorter 取第一个。
// 零长度匹配与窗口起点处的 at 匹配跳过。
// 只在窗口加有限尾部（见 visibleEnd）的切片上匹配，避免无命中时每轮扫描到全文末尾。
func (e *Engine) search(bp compiled, content []rune, c, wEnd int) (int, bool, error) {
	shorter := e.opts.Prefer == contract.PreferShorter
	best, found := 0, false
	content = content[:visibleEnd(content, wEnd)]
	m, err := bp.re.FindRunesMatchStartingAt(content, c)
	for err == nil && m != nil && m.Index < wEnd {
		if stop := m.Index + m.Length; m.Length > 0 && stop <= wEnd {
			pos := m.Index
			if bp.split == contract.SplitAfter {
				pos = stop
			}
			if pos > c {
				best, found = pos, true
				if shorter {
					break
				}
			}
		}
		m, err = bp.re.FindNextMatch(m)
	}
	return best, found, err
}

func (e *Engine) prov(index int, pattern, kind string) *contract.Provenance {
	if !e.opts.Debug {
		return nil
	}
	return &contract.Provenance{Breakpoint: &contract.BreakpointProvenance{Index: index, Pattern: pattern, Kind: kind}}
}
