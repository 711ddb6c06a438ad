// Package fuzzy 提供阿拉伯文变音不敏感（fuzzy）的正则片段变换。
// 纯函数、无状态；表在包初始化时构造，之后只读。
package fuzzy

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dlclark/regexp2"
)

// Marks: 可选变音/延长符号类（harakat U+064B–U+065F、上标 alef U+0670、tatweel U+0640）。
const Marks = `[\u064B-\u065F\u0670\u0640]*`

// 字母等价类：同类字母互相匹配。
var classes = [][]rune{
	{'ا', 'أ', 'إ', 'آ', 'ٱ'},
	{'ة', 'ه'},
	{'ى', 'ي'},
}

var equiv = func() map[rune]string {
	m := make(map[rune]string)
	for _, c := range classes {
		cls := "[" + string(c) + "]"
		for _, r := range c {
			m[r] = cls
		}
	}
	return m
}()

// IsMark 判断 r 是否为可忽略的变音/延长符号。
func IsMark(r rune) bool {
	return (r >= 0x064B && r <= 0x065F) || r == 0x0670 || r == 0x0640
}

// IsLetter 判断 r 是否为阿拉伯字母（基本区 U+0621–U+064A 及扩展 U+0671–U+06D3）。
func IsLetter(r rune) bool {
	return (r >= 0x0621 && r <= 0x063A) || (r >= 0x0641 && r <= 0x064A) || (r >= 0x0671 && r <= 0x06D3)
}

// Strip 移除字符串中的全部变音/延长符号（用于比较与测试）。
func Strip(s string) string {
	return strings.Map(func(r rune) rune {
		if IsMark(r) {
			return -1
		}
		return r
	}, s)
}

// Text 将字面文本转义后做 fuzzy 变换。
func Text(s string) string { return Pattern(Quote(s)) }

// Quote 按 regexp2 语法转义字面文本。不可打印字符原样保留：
// regexp2.Escape 对 U+0100 以上字符输出的 \u 转义不补足四位。
func Quote(s string) string {
	var b strings.Builder
	start := 0
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r != utf8.RuneError && !unicode.IsPrint(r) {
			b.WriteString(regexp2.Escape(s[start:i]))
			b.WriteString(s[i : i+size])
			start = i + size
		}
		i += size
	}
	b.WriteString(regexp2.Escape(s[start:]))
	return b.String()
}

// Pattern 对正则源码做 fuzzy 变换：
// - 转义序列（\x、\p{..}、\k<..>）与字符类 [...] 原样保留；
// - 命名组语法 (?<name> / (?'name' 原样保留；
// - 阿拉伯字母替换为等价类（若有）并追加 Marks；源中已有的变音符号被丢弃；
// - 字母后紧跟量词时以 (?:...) 包裹，避免 Marks 与量词叠加。
// 变换逐字符进行，不跨越 '|'，因此对各分支独立成立。
func Pattern(src string) string {
	var b strings.Builder
	b.Grow(len(src) * 4)
	for i := 0; i < len(src); {
		r, size := utf8.DecodeRuneInString(src[i:])
		switch {
		case r == '\\':
			j := skipEscape(src, i)
			b.WriteString(src[i:j])
			i = j
		case r == '[':
			j := skipClass(src, i)
			b.WriteString(src[i:j])
			i = j
		case r == '(' && strings.HasPrefix(src[i:], "(?"):
			j := skipGroupHead(src, i)
			b.WriteString(src[i:j])
			i = j
		case IsMark(r):
			i += size
		case IsLetter(r):
			i += size
			frag := string(r)
			if cls, ok := equiv[r]; ok {
				frag = cls
			}
			frag += Marks
			// 先跳过源中紧随的变音符号，再判断量词
			for i < len(src) {
				nr, ns := utf8.DecodeRuneInString(src[i:])
				if !IsMark(nr) {
					break
				}
				i += ns
			}
			if i < len(src) && isQuantifier(src[i:]) {
				frag = "(?:" + frag + ")"
			}
			b.WriteString(frag)
		default:
			b.WriteString(src[i : i+size])
			i += size
		}
	}
	return b.String()
}

func isQuantifier(s string) bool {
	switch s[0] {
	case '*', '+', '?':
		return true
	case '{':
		// {n} / {n,} / {n,m}
		j := 1
		for j < len(s) && (s[j] >= '0' && s[j] <= '9' || s[j] == ',') {
			j++
		}
		return j > 1 && j < len(s) && s[j] == '}'
	}
	return false
}

// skipEscape 返回从 i（指向 '\'）开始的转义序列结束位置。
func skipEscape(s string, i int) int {
	j := i + 1
	if j >= len(s) {
		return j
	}
	_, size := utf8.DecodeRuneInString(s[j:])
	c := s[j]
	j += size
	switch c {
	case 'p', 'P':
		if j < len(s) && s[j] == '{' {
			if k := strings.IndexByte(s[j:], '}'); k >= 0 {
				return j + k + 1
			}
		}
	case 'k':
		if j < len(s) && (s[j] == '<' || s[j] == '\'') {
			end := byte('>')
			if s[j] == '\'' {
				end = '\''
			}
			if k := strings.IndexByte(s[j+1:], end); k >= 0 {
				return j + 1 + k + 1
			}
		}
	}
	return j
}

// skipClass 返回从 i（指向 '['）开始的字符类结束位置（含 ']'）；未闭合时到末尾。
func skipClass(s string, i int) int {
	j := i + 1
	if j < len(s) && s[j] == '^' {
		j++
	}
	// 首位 ']' 视为字面量
	if j < len(s) && s[j] == ']' {
		j++
	}
	for j < len(s) {
		switch s[j] {
		case '\\':
			j = skipEscape(s, j)
			continue
		case ']':
			return j + 1
		}
		j++
	}
	return len(s)
}

// skipGroupHead 跳过 "(?<name>"、"(?'name'" 等组头；lookbehind "(?<=" "(?<!" 仅跳过前缀。
func skipGroupHead(s string, i int) int {
	j := i + 2
	if j >= len(s) {
		return j
	}
	switch s[j] {
	case '<':
		if j+1 < len(s) && (s[j+1] == '=' || s[j+1] == '!') {
			return j + 2
		}
		if k := strings.IndexByte(s[j:], '>'); k >= 0 {
			return j + k + 1
		}
	case '\'':
		if k := strings.IndexByte(s[j+1:], '\''); k >= 0 {
			return j + 1 + k + 1
		}
	}
	return j
}
