// Package rules 将声明式 SplitRule 编译为可执行匹配器，并提供多规则合并扫描。
package rules

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/dlclark/regexp2"

	"pagesplit/internal/tokens"
	"pagesplit/pkg/contract"
)

// Options: 全部用户模式的编译选项（^/$ 按行匹配）。
const Options = regexp2.Multiline

// Compiled: 单条规则的编译结果。只读，可在同一次调用内复用。
type Compiled struct {
	Index       int
	Rule        contract.SplitRule
	PatternType string
	// Source: 完整正则源码；Scan 为合并扫描使用的片段（line_starts_after 不含行余部分）。
	Source string
	Scan   string
	Re     *regexp2.Regexp
	// Anchored: \G(?:Source)，用于在给定位置复核并取回本规则自己的捕获。
	Anchored *regexp2.Regexp
	// CaptureNames: 写入 meta 的命名捕获。
	CaptureNames []string
	// UsesCapture: 内容起点取最后一个参与匹配的位置组。
	UsesCapture         bool
	UsesLineStartsAfter bool
	Fuzzy               bool
	// Backref: 含反向引用，不能并入合并正则（组编号会偏移）。
	Backref bool
	Guard   *regexp2.Regexp
}

var errExactlyOne = errors.New("rule must specify exactly one pattern type")

// Compile 编译单条规则。非法模式返回 *contract.PatternError（errors.Is ErrInvalidPattern）。
func Compile(index int, rule contract.SplitRule) (*Compiled, error) {
	ptype, n := rule.PatternType()
	if n != 1 {
		return nil, fmt.Errorf("rule %d: %w (found %d): %w", index, errExactlyOne, n, contract.ErrInvalidRule)
	}
	c := &Compiled{Index: index, Rule: rule, PatternType: ptype, Fuzzy: effectiveFuzzy(rule)}
	expand := func(p string) string {
		return tokens.Expand(tokens.EscapeTemplate(p), tokens.Options{Fuzzy: c.Fuzzy}).Pattern
	}
	alts := func(list []string) string {
		parts := make([]string, len(list))
		for i, p := range list {
			parts[i] = expand(p)
		}
		return "(?:" + strings.Join(parts, "|") + ")"
	}
	switch ptype {
	case contract.PatternRegex:
		c.Source = rule.Regex
	case contract.PatternTemplate:
		c.Source = expand(rule.Template)
	case contract.PatternLineStartsWith:
		c.Source = "^" + alts(rule.LineStartsWith)
	case contract.PatternLineStartsAfter:
		c.Scan = "^" + alts(rule.LineStartsAfter)
		c.Source = c.Scan + "(.*)"
		c.UsesLineStartsAfter = true
	case contract.PatternLineEndsWith:
		c.Source = alts(rule.LineEndsWith) + "$"
	}
	if c.Scan == "" {
		c.Scan = c.Source
	}
	re, err := regexp2.Compile(c.Source, Options)
	if err != nil {
		return nil, fmt.Errorf("rule %d: %w", index, &contract.PatternError{Kind: ptype, Pattern: c.Source, Err: err})
	}
	c.Re = re
	if c.Anchored, err = regexp2.Compile(`\G(?:`+c.Source+`)`, Options); err != nil {
		return nil, fmt.Errorf("rule %d: %w", index, &contract.PatternError{Kind: ptype, Pattern: c.Source, Err: err})
	}
	for _, name := range re.GetGroupNames() {
		if isNumeric(name) {
			if name != "0" {
				c.UsesCapture = true
			}
			continue
		}
		c.CaptureNames = append(c.CaptureNames, name)
	}
	c.Backref = hasBackref(c.Source)
	if rule.PageStartGuard != "" {
		src := "^(?:" + tokens.Expand(tokens.EscapeTemplate(rule.PageStartGuard), tokens.Options{}).Pattern + ")$"
		if c.Guard, err = regexp2.Compile(src, regexp2.None); err != nil {
			return nil, fmt.Errorf("rule %d: %w", index, &contract.PatternError{Kind: "page_start_guard", Pattern: src, Err: err})
		}
	}
	return c, nil
}

// CompileAll 按顺序编译全部规则；首个错误即返回。
func CompileAll(rules []contract.SplitRule) ([]*Compiled, error) {
	out := make([]*Compiled, 0, len(rules))
	for i, r := range rules {
		c, err := Compile(i, r)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// GuardAccepts 检查前一页末尾非空白字符是否满足页首守卫。
// 无守卫时恒为真；前一页无非空白内容时拒绝。
func (c *Compiled) GuardAccepts(prevPage []rune) bool {
	if c.Guard == nil {
		return true
	}
	for i := len(prevPage) - 1; i >= 0; i-- {
		if unicode.IsSpace(prevPage[i]) {
			continue
		}
		ok, err := c.Guard.MatchRunes(prevPage[i : i+1])
		return err == nil && ok
	}
	return false
}

// Hit: 单次匹配（rune 偏移，左闭右开）。
type Hit struct {
	Start, End int
	// ContentStart: 相对 Start 的内容起点；-1 表示无。
	ContentStart int
	Captures     map[string]string
}

// hit 从本规则自身正则的匹配结果中提取切分信息。
func (c *Compiled) hit(m *regexp2.Match) Hit {
	h := Hit{Start: m.Index, End: m.Index + m.Length, ContentStart: -1}
	if c.UsesCapture {
		groups := m.Groups()
		// 自末尾向前找最后一个参与匹配的位置组，避免命名组造成的编号漂移
		for i := len(groups) - 1; i > 0; i-- {
			g := groups[i]
			if !isNumeric(g.Name) || len(g.Captures) == 0 {
				continue
			}
			if off := g.Index - m.Index; off > 0 {
				h.ContentStart = off
			} else {
				h.ContentStart = 0
			}
			break
		}
	}
	for _, name := range c.CaptureNames {
		g := m.GroupByName(name)
		if g == nil || len(g.Captures) == 0 {
			continue
		}
		if h.Captures == nil {
			h.Captures = make(map[string]string, len(c.CaptureNames))
		}
		h.Captures[name] = g.String()
	}
	return h
}

func effectiveFuzzy(r contract.SplitRule) bool {
	if r.Fuzzy != nil {
		return *r.Fuzzy
	}
	if r.Regex != "" {
		return false
	}
	for _, group := range [][]string{{r.Template}, r.LineStartsWith, r.LineStartsAfter, r.LineEndsWith} {
		for _, p := range group {
			if tokens.ReferencesFuzzyDefault(p) {
				return true
			}
		}
	}
	return false
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// hasBackref 检测 \1..\9 或 \k<name> / \k'name'（跳过字符类内部）。
func hasBackref(src string) bool {
	inClass := false
	for i := 0; i < len(src); i++ {
		switch src[i] {
		case '\\':
			if i+1 >= len(src) {
				return false
			}
			next := src[i+1]
			if !inClass && (next >= '1' && next <= '9' || next == 'k') {
				return true
			}
			i++
		case '[':
			inClass = true
		case ']':
			inClass = false
		}
	}
	return false
}
