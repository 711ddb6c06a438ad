package tokens

import (
	"strconv"
	"strings"

	"pagesplit/internal/fuzzy"
)

// Options: 展开选项。
type Options struct {
	// Fuzzy: 对 token 片段与字面文本施加变音不敏感变换（在包裹捕获组之前）。
	Fuzzy bool
}

// Result: 展开结果。CaptureNames 按出现顺序，重名已加后缀（name_2、name_3…）。
type Result struct {
	Pattern      string
	CaptureNames []string
}

// Expand 展开模板中的 {{token}}、{{token:name}}、{{:name}}。
// 未知 token 原样保留为字面文本（匹配失败而非报错）。
func Expand(template string, opts Options) Result { return expandWith(table, template, opts) }

// ReferencesFuzzyDefault 报告模板是否引用了默认 fuzzy 的 token。
func ReferencesFuzzyDefault(template string) bool {
	for _, p := range scan(template) {
		if p.isToken && fuzzyDefault[p.token] {
			return true
		}
	}
	return false
}

// part: 模板扫描单元：字面文本或 token 引用。
type part struct {
	text    string
	isToken bool
	token   string
	name    string
}

func expandWith(tbl map[string]string, template string, opts Options) Result {
	var (
		b     strings.Builder
		names []string
		seen  = map[string]int{}
	)
	register := func(name string) string {
		seen[name]++
		if n := seen[name]; n > 1 {
			// 加后缀后仍可能与用户名冲突，继续递增
			for {
				cand := name + "_" + strconv.Itoa(n)
				if seen[cand] == 0 {
					seen[cand] = 1
					name = cand
					break
				}
				n++
			}
		}
		names = append(names, name)
		return name
	}
	for _, p := range scan(template) {
		if !p.isToken {
			if opts.Fuzzy {
				b.WriteString(fuzzy.Pattern(p.text))
			} else {
				b.WriteString(p.text)
			}
			continue
		}
		if p.token == "" {
			// {{:name}}：捕获余下整行
			b.WriteString("(?<" + register(p.name) + ">.+)")
			continue
		}
		frag, ok := tbl[p.token]
		if !ok {
			b.WriteString(p.text)
			continue
		}
		alts := splitAlternatives(frag)
		if opts.Fuzzy {
			for i := range alts {
				alts[i] = fuzzy.Pattern(alts[i])
			}
		}
		frag = strings.Join(alts, "|")
		switch {
		case p.name != "":
			b.WriteString("(?<" + register(p.name) + ">" + frag + ")")
		case len(alts) > 1:
			b.WriteString("(?:" + frag + ")")
		default:
			b.WriteString(frag)
		}
	}
	return Result{Pattern: b.String(), CaptureNames: names}
}

// scan 将模板切分为字面文本与 token 引用；不合法的 {{...}} 视为文本。
func scan(s string) []part {
	var out []part
	var text strings.Builder
	flush := func() {
		if text.Len() > 0 {
			out = append(out, part{text: text.String()})
			text.Reset()
		}
	}
	for i := 0; i < len(s); {
		if s[i] == '\\' && i+1 < len(s) {
			text.WriteString(s[i : i+2])
			i += 2
			continue
		}
		if strings.HasPrefix(s[i:], "{{") {
			if end := strings.Index(s[i+2:], "}}"); end >= 0 {
				inner := s[i+2 : i+2+end]
				raw := s[i : i+2+end+2]
				if tok, name, ok := parseRef(inner); ok {
					flush()
					out = append(out, part{text: raw, isToken: true, token: tok, name: name})
					i += len(raw)
					continue
				}
			}
		}
		text.WriteByte(s[i])
		i++
	}
	flush()
	return out
}

// parseRef 解析 "token"、"token:name"、":name"。
func parseRef(inner string) (token, name string, ok bool) {
	token, name, hasName := strings.Cut(inner, ":")
	if !isWord(token) && token != "" {
		return "", "", false
	}
	if hasName && !isWord(name) {
		return "", "", false
	}
	if token == "" && name == "" {
		return "", "", false
	}
	return token, name, true
}

func isWord(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if !(c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}

// splitAlternatives 按顶层 '|' 切分正则片段（跳过转义、字符类与括号内部）。
func splitAlternatives(s string) []string {
	var out []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '[':
			for i++; i < len(s) && s[i] != ']'; i++ {
				if s[i] == '\\' {
					i++
				}
			}
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		case '|':
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	return append(out, s[start:])
}
