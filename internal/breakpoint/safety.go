package breakpoint

import (
	"strings"
	"unicode"

	"github.com/rivo/uniseg"

	"pagesplit/pkg/contract"
)

// lookback: 安全回退向前查找的最大 rune 数。
const lookback = 100

// breakChars: 语言安全的断开字符（其后断开）。
const breakChars = ".!?؟،,;؛:"

func isBreakChar(r rune) bool { return unicode.IsSpace(r) || strings.ContainsRune(breakChars, r) }

// safety 在 (c, w] 内寻找断开位置：
// 1) 向前 lookback 内最近的空白/标点之后；
// 2) 否则最近的字素簇边界（且不贴近 ZWJ/ZWNJ、变体选择符、组合符号）；
// 3) 否则在 w 处硬切。
func safety(content []rune, c, w int) (int, string) {
	lo := max(c+1, w-lookback)
	for p := w; p >= lo; p-- {
		if isBreakChar(content[p-1]) {
			return p, contract.BreakSafetyLinguistic
		}
	}
	if p := graphemeBoundary(content, c, w); p > c {
		return p, contract.BreakSafetyUnicode
	}
	return w, contract.BreakHard
}

// graphemeBoundary 返回 (c, w] 内最大的安全字素边界；无则返回 -1。
func graphemeBoundary(content []rune, c, w int) int {
	start := max(c, w-lookback)
	// 向后多取几个字符，使 w 处的簇判断完整
	end := min(len(content), w+4)
	g := uniseg.NewGraphemes(string(content[start:end]))
	best, off := -1, start
	for g.Next() {
		off += len(g.Runes())
		if off > w {
			break
		}
		if off > c && safeCut(content, off) {
			best = off
		}
	}
	return best
}

// safeCut 判断在 off 处切开是否不会拆散连接符序列或组合字符。
func safeCut(content []rune, off int) bool {
	if off <= 0 || off >= len(content) {
		return true
	}
	prev, next := content[off-1], content[off]
	if isJoiner(prev) || isJoiner(next) {
		return false
	}
	return !isVariationSelector(next) && !unicode.In(next, unicode.Mn, unicode.Me)
}

func isJoiner(r rune) bool { return r == 0x200C || r == 0x200D }

func isVariationSelector(r rune) bool {
	return (r >= 0xFE00 && r <= 0xFE0F) || (r >= 0xE0100 && r <= 0xE01EF)
}
