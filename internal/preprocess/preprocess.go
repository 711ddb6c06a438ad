// Package preprocess 在匹配前逐页执行内置文本归一与原样正则替换。
package preprocess

import (
	"fmt"
	"strings"

	"github.com/dlclark/regexp2"
	"golang.org/x/text/unicode/norm"

	"pagesplit/internal/pagemap"
	"pagesplit/pkg/contract"
)

// transform: 单个内置步骤。
type transform func(string) string

type step struct {
	def contract.PreprocessStep
	fn  transform
}

// Pipeline: 编译后的预处理流水线；只读，可并发复用。
type Pipeline struct {
	steps    []step
	replaces []replacer
}

// New 校验并编译预处理步骤与替换规则。
func New(steps []contract.PreprocessStep, reps []contract.ReplaceRule) (*Pipeline, error) {
	p := &Pipeline{}
	for i, s := range steps {
		fn, err := builtin(s)
		if err != nil {
			return nil, fmt.Errorf("preprocess %d: %w", i, err)
		}
		p.steps = append(p.steps, step{def: s, fn: fn})
	}
	for i, r := range reps {
		rp, err := compileReplace(r)
		if err != nil {
			return nil, fmt.Errorf("replace %d: %w", i, err)
		}
		p.replaces = append(p.replaces, rp)
	}
	return p, nil
}

// Empty 报告流水线是否无任何步骤。
func (p *Pipeline) Empty() bool { return p == nil || len(p.steps)+len(p.replaces) == 0 }

// Apply 返回处理后的新页切片（输入不修改）；先内置步骤后替换规则，均按声明顺序。
func (p *Pipeline) Apply(pages []contract.Page) ([]contract.Page, error) {
	if p.Empty() {
		return pages, nil
	}
	out := make([]contract.Page, len(pages))
	for i, pg := range pages {
		text := pagemap.NormalizeNewlines(pg.Content)
		for _, s := range p.steps {
			if contract.InBounds(s.def.Min, s.def.Max, pg.ID) {
				text = s.fn(text)
			}
		}
		for _, r := range p.replaces {
			if !r.rule.AppliesTo(pg.ID) {
				continue
			}
			var err error
			if text, err = r.re.Replace(text, r.rule.Replacement, -1, r.count); err != nil {
				return nil, fmt.Errorf("replace on page %d: %w", pg.ID, err)
			}
		}
		out[i] = contract.Page{ID: pg.ID, Content: text}
	}
	return out, nil
}

func builtin(s contract.PreprocessStep) (transform, error) {
	switch s.Type {
	case contract.StepRemoveZeroWidth:
		switch s.Mode {
		case "":
			return removeRunes(zeroWidth), nil
		case "all":
			return removeRunes(zeroWidth + joiners), nil
		}
		return nil, fmt.Errorf("remove_zero_width: unknown mode %q: %w", s.Mode, contract.ErrInvalidConfig)
	case contract.StepCondenseEllipsis:
		return condenseEllipsis, nil
	case contract.StepFixTrailingWaw:
		return fixTrailingWaw, nil
	case contract.StepNFC:
		return norm.NFC.String, nil
	case contract.StepCollapseSpaces:
		return collapseSpaces, nil
	}
	return nil, fmt.Errorf("unknown preprocess step %q: %w", s.Type, contract.ErrInvalidConfig)
}

const (
	zeroWidth = "\u200b\u200e\u200f\u2060\ufeff"
	joiners   = "\u200c\u200d"
)

func removeRunes(set string) transform {
	return func(s string) string {
		if !strings.ContainsAny(s, set) {
			return s
		}
		return strings.Map(func(r rune) rune {
			if strings.ContainsRune(set, r) {
				return -1
			}
			return r
		}, s)
	}
}

// condenseEllipsis 将三个及以上连续的 '.' 归并为 '…'。
func condenseEllipsis(s string) string {
	if !strings.Contains(s, "...") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		if s[i] != '.' {
			b.WriteByte(s[i])
			i++
			continue
		}
		j := i
		for j < len(s) && s[j] == '.' {
			j++
		}
		if j-i >= 3 {
			b.WriteString("…")
		} else {
			b.WriteString(s[i:j])
		}
		i = j
	}
	return b.String()
}

// collapseSpaces 将连续空格/制表符归并为单个空格（换行保留）。
func collapseSpaces(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prev := false
	for _, r := range s {
		if r == ' ' || r == '\t' {
			if !prev {
				b.WriteByte(' ')
			}
			prev = true
			continue
		}
		prev = false
		b.WriteRune(r)
	}
	return b.String()
}

// detachedWaw: 独立的连词 و（行首或空白之后）后跟空白，再接字母。
var detachedWaw = regexp2.MustCompile(`(?<=^|[ \t])و[ \t]+(?=\p{L})`, regexp2.Multiline)

// fixTrailingWaw 将与后词分离的 و 重新连写到后词上。
func fixTrailingWaw(s string) string {
	if !strings.Contains(s, "و") {
		return s
	}
	out, err := detachedWaw.Replace(s, "و", -1, -1)
	if err != nil {
		return s
	}
	return out
}
