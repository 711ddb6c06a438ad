// Package segmenter 是分段引擎的公共入口。
//
// 流程：预处理（逐页归一与替换）→ 页表拼接 → 结构规则切分 → 断点细分。
// 两个入口均为纯函数：无 I/O、无跨调用共享的可变状态，可被多个 goroutine 并发调用。
// 致命错误（非法模式/规则/配置、匹配失控）同步返回，不返回部分结果。
package segmenter

import (
	"fmt"

	"pagesplit/internal/breakpoint"
	"pagesplit/internal/pagemap"
	"pagesplit/internal/preprocess"
	"pagesplit/internal/rules"
	"pagesplit/internal/split"
	"pagesplit/pkg/contract"
)

// SegmentPages 按结构规则切分页序列，并在设置预算时对超限段做断点细分。
func SegmentPages(pages []contract.Page, opts contract.Options) ([]contract.Segment, error) {
	if err := Validate(opts); err != nil {
		return nil, err
	}
	log := opts.Logger
	pp, err := preprocess.New(opts.Preprocess, opts.Replace)
	if err != nil {
		return nil, err
	}
	pages, err = pp.Apply(pages)
	if err != nil {
		return nil, err
	}
	compiled, err := rules.CompileAll(opts.Rules)
	if err != nil {
		return nil, err
	}
	pm := pagemap.Build(pages)
	segs, offsets, err := split.ResolveAnchored(pm, compiled, split.Options{
		Joiner: opts.EffectiveJoiner().Rune(),
		Debug:  opts.Debug,
		Logger: log,
	})
	if err != nil {
		return nil, err
	}
	out, err := applyBreakpoints(segs, offsets, pages, opts)
	if err != nil {
		return nil, err
	}
	log.Infof("segmentation finished", "pages", len(pages), "rules", len(compiled), "segments", len(out))
	return out, nil
}

// ApplyBreakpoints 仅执行断点细分阶段。pages 须为产生 segs 时使用的（已预处理的）页；
// 本函数不再重复预处理。段内容在页文本中的位置按内容检索确定：同一段页范围内
// 内容重复出现且多处与段的页归属一致时，取首个一致位置。
func ApplyBreakpoints(segs []contract.Segment, pages []contract.Page, opts contract.Options) ([]contract.Segment, error) {
	if err := Validate(opts); err != nil {
		return nil, err
	}
	return applyBreakpoints(segs, nil, pages, opts)
}

func applyBreakpoints(segs []contract.Segment, offsets []int, pages []contract.Page, opts contract.Options) ([]contract.Segment, error) {
	if len(opts.Breakpoints) == 0 || (opts.MaxPages == nil && opts.MaxContentLength == 0) {
		return segs, nil
	}
	e, err := breakpoint.New(pages, breakpoint.Options{
		MaxPages:         opts.MaxPages,
		MaxContentLength: opts.MaxContentLength,
		Breakpoints:      opts.Breakpoints,
		Prefer:           opts.EffectivePrefer(),
		Joiner:           opts.EffectiveJoiner().Rune(),
		Debug:            opts.Debug,
		Logger:           opts.Logger,
	})
	if err != nil {
		return nil, err
	}
	return e.ApplyAnchored(segs, offsets)
}

// Validate 检查选项的一致性（枚举取值与数值下限）；模式本身在编译时检查。
func Validate(opts contract.Options) error {
	if opts.MaxPages != nil && *opts.MaxPages < 0 {
		return fmt.Errorf("max_pages %d < 0: %w", *opts.MaxPages, contract.ErrInvalidConfig)
	}
	if opts.MaxContentLength < 0 || (opts.MaxContentLength > 0 && opts.MaxContentLength < contract.MinContentLength) {
		return fmt.Errorf("max_content_length %d below %d: %w", opts.MaxContentLength, contract.MinContentLength, contract.ErrInvalidConfig)
	}
	switch opts.Prefer {
	case "", contract.PreferLonger, contract.PreferShorter:
	default:
		return fmt.Errorf("prefer %q: %w", opts.Prefer, contract.ErrInvalidConfig)
	}
	switch opts.PageJoiner {
	case "", contract.JoinSpace, contract.JoinNewline:
	default:
		return fmt.Errorf("page_joiner %q: %w", opts.PageJoiner, contract.ErrInvalidConfig)
	}
	for i, r := range opts.Rules {
		if err := validateRule(r); err != nil {
			return fmt.Errorf("rule %d: %w", i, err)
		}
	}
	for i, b := range opts.Breakpoints {
		if !validSplit(b.Split) {
			return fmt.Errorf("breakpoint %d: split %q: %w", i, b.Split, contract.ErrInvalidConfig)
		}
	}
	return nil
}

func validateRule(r contract.SplitRule) error {
	if !validSplit(r.Split) {
		return fmt.Errorf("split %q: %w", r.Split, contract.ErrInvalidConfig)
	}
	switch r.Occurrence {
	case "", contract.OccurrenceAll, contract.OccurrenceFirst, contract.OccurrenceLast:
	default:
		return fmt.Errorf("occurrence %q: %w", r.Occurrence, contract.ErrInvalidConfig)
	}
	if r.MaxSpan < 0 {
		return fmt.Errorf("max_span %d < 0: %w", r.MaxSpan, contract.ErrInvalidConfig)
	}
	return nil
}

func validSplit(m contract.SplitMode) bool {
	return m == "" || m == contract.SplitAt || m == contract.SplitAfter
}
