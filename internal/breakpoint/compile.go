package breakpoint

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dlclark/regexp2"

	"pagesplit/internal/fuzzy"
	"pagesplit/internal/rules"
	"pagesplit/internal/tokens"
	"pagesplit/pkg/contract"
)

// compiled: 编译后的断点。re 为 nil 表示页边界哨兵。
type compiled struct {
	index int
	bp    contract.Breakpoint
	re    *regexp2.Regexp
	skip  *regexp2.Regexp
	split contract.SplitMode
}

func compileAll(bps []contract.Breakpoint) ([]compiled, error) {
	out := make([]compiled, 0, len(bps))
	for i, bp := range bps {
		c, err := compileOne(i, bp)
		if err != nil {
			return nil, fmt.Errorf("breakpoint %d: %w", i, err)
		}
		out = append(out, c)
	}
	return out, nil
}

func compileOne(i int, bp contract.Breakpoint) (compiled, error) {
	c := compiled{index: i, bp: bp, split: bp.EffectiveSplit()}
	set := 0
	for _, b := range []bool{bp.Pattern != "", bp.Regex != "", len(bp.Words) > 0} {
		if b {
			set++
		}
	}
	if set > 1 {
		return c, fmt.Errorf("pattern, regex and words are mutually exclusive: %w", contract.ErrInvalidConfig)
	}
	var src string
	switch {
	case bp.Regex != "":
		src = bp.Regex
	case len(bp.Words) > 0:
		words := make([]string, 0, len(bp.Words))
		for _, w := range bp.Words {
			if w != "" {
				words = append(words, w)
			}
		}
		if len(words) == 0 {
			return c, fmt.Errorf("words must not be empty: %w", contract.ErrInvalidConfig)
		}
		// 长词优先，避免短词抢先命中长词前缀
		sort.SliceStable(words, func(a, b int) bool { return len([]rune(words[a])) > len([]rune(words[b])) })
		for k, w := range words {
			words[k] = fuzzy.Quote(w)
		}
		src = "(?:" + strings.Join(words, "|") + ")"
	case bp.Pattern != "":
		src = expandTemplate(bp.Pattern)
	}
	if src != "" {
		re, err := regexp2.Compile(src, rules.Options)
		if err != nil {
			return c, &contract.PatternError{Kind: "breakpoint", Pattern: src, Err: err}
		}
		c.re = re
	}
	if bp.SkipWhen != "" {
		s := expandTemplate(bp.SkipWhen)
		re, err := regexp2.Compile(s, rules.Options)
		if err != nil {
			return c, &contract.PatternError{Kind: "skip_when", Pattern: s, Err: err}
		}
		c.skip = re
	}
	return c, nil
}

func expandTemplate(p string) string {
	return tokens.Expand(tokens.EscapeTemplate(p), tokens.Options{Fuzzy: tokens.ReferencesFuzzyDefault(p)}).Pattern
}
