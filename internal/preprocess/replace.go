package preprocess

import (
	"fmt"

	"github.com/dlclark/regexp2"

	"pagesplit/pkg/contract"
)

type replacer struct {
	rule  contract.ReplaceRule
	re    *regexp2.Regexp
	count int
}

// compileReplace 根据 flags（g/i/m/s）编译替换规则；无 g 时只替换首个匹配。
func compileReplace(r contract.ReplaceRule) (replacer, error) {
	rp := replacer{rule: r, count: 1}
	opt := regexp2.None
	for _, f := range r.Flags {
		switch f {
		case 'g':
			rp.count = -1
		case 'i':
			opt |= regexp2.IgnoreCase
		case 'm':
			opt |= regexp2.Multiline
		case 's':
			opt |= regexp2.Singleline
		case 'u':
			// 输入本就按 Unicode 处理
		default:
			return rp, fmt.Errorf("unknown flag %q: %w", f, contract.ErrInvalidConfig)
		}
	}
	if r.Regex == "" {
		return rp, fmt.Errorf("empty regex: %w", contract.ErrInvalidConfig)
	}
	re, err := regexp2.Compile(r.Regex, opt)
	if err != nil {
		return rp, &contract.PatternError{Kind: "replace", Pattern: r.Regex, Err: err}
	}
	rp.re = re
	return rp, nil
}
