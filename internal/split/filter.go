package split

import "pagesplit/pkg/contract"

// filterOccurrence 按 occurrence 过滤同一规则的命中（输入已按偏移排序）。
// maxSpan > 0 时按页 ID 窗口 [w, w+maxSpan-1] 分别取 first/last，
// w 为首个未消费命中的页 ID；窗口按 ID 差推进，可处理不连续 ID。
func filterOccurrence(cands []candidate, occ contract.Occurrence, maxSpan int) []candidate {
	if occ == contract.OccurrenceAll || len(cands) == 0 {
		return cands
	}
	if maxSpan <= 0 {
		if occ == contract.OccurrenceFirst {
			return cands[:1]
		}
		return cands[len(cands)-1:]
	}
	var out []candidate
	for i := 0; i < len(cands); {
		w := cands[i].pageID
		j := i
		for j < len(cands) && cands[j].pageID <= w+maxSpan-1 && cands[j].pageID >= w {
			j++
		}
		if j == i {
			// 页 ID 不单调（输入顺序与 ID 顺序不一致）时单独成窗
			j = i + 1
		}
		if occ == contract.OccurrenceFirst {
			out = append(out, cands[i])
		} else {
			out = append(out, cands[j-1])
		}
		i = j
	}
	return out
}
