package contract

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// IssueCode: 段校验问题分类。
type IssueCode string

const (
	IssueUnknownPage IssueCode = "unknown_page"
	IssueOrder       IssueCode = "order"
	IssueSpan        IssueCode = "span"
	IssueLength      IssueCode = "length"
	IssueAttribution IssueCode = "attribution"
	IssueEmpty       IssueCode = "empty"
)

// Issue: 单条校验问题；Index 为段下标。
type Issue struct {
	Index  int       `json:"index"`
	Code   IssueCode `json:"code"`
	Detail string    `json:"detail"`
}

// Limits: 校验使用的上限（与 Options 同义）。
type Limits struct {
	MaxPages         *int
	MaxContentLength int
}

// attributionPrefix: 归属校验取段首“首词”的最大 rune 数。
const attributionPrefix = 24

// ValidateSegments 对输出段做独立的只读校验（纯函数，无 I/O）。
// 说明：页分隔符恰好落在二分查找缝隙时的归属偏差是已知边界情况，
// 此处以 IssueAttribution 报告而非视为内部错误。
func ValidateSegments(pages []Page, segs []Segment, lim Limits) []Issue {
	pos := make(map[int]int, len(pages))
	for i, p := range pages {
		if _, ok := pos[p.ID]; !ok {
			pos[p.ID] = i
		}
	}
	var issues []Issue
	prevFrom := 0
	for i, s := range segs {
		fromIdx, ok := pos[s.From]
		if !ok {
			issues = append(issues, Issue{Index: i, Code: IssueUnknownPage, Detail: fmt.Sprintf("from=%d", s.From)})
			continue
		}
		if s.To != nil {
			if _, ok := pos[*s.To]; !ok {
				issues = append(issues, Issue{Index: i, Code: IssueUnknownPage, Detail: fmt.Sprintf("to=%d", *s.To)})
			} else if pos[*s.To] < fromIdx {
				issues = append(issues, Issue{Index: i, Code: IssueOrder, Detail: fmt.Sprintf("to=%d precedes from=%d", *s.To, s.From)})
			}
		}
		if i > 0 && fromIdx < prevFrom {
			issues = append(issues, Issue{Index: i, Code: IssueOrder, Detail: fmt.Sprintf("from=%d precedes previous segment", s.From)})
		}
		prevFrom = fromIdx
		if strings.TrimSpace(s.Content) == "" {
			issues = append(issues, Issue{Index: i, Code: IssueEmpty, Detail: "empty content"})
			continue
		}
		if lim.MaxPages != nil && s.Span() > *lim.MaxPages {
			issues = append(issues, Issue{Index: i, Code: IssueSpan, Detail: fmt.Sprintf("span %d > %d", s.Span(), *lim.MaxPages)})
		}
		if lim.MaxContentLength > 0 {
			if n := utf8.RuneCountInString(s.Content); n > lim.MaxContentLength {
				issues = append(issues, Issue{Index: i, Code: IssueLength, Detail: fmt.Sprintf("length %d > %d", n, lim.MaxContentLength)})
			}
		}
		if head := firstWord(s.Content); head != "" && !strings.Contains(pages[fromIdx].Content, head) {
			issues = append(issues, Issue{Index: i, Code: IssueAttribution, Detail: fmt.Sprintf("prefix %q not on page %d", head, s.From)})
		}
	}
	return issues
}

func firstWord(s string) string {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	n := 0
	for i, r := range s {
		if unicode.IsSpace(r) || n == attributionPrefix {
			return s[:i]
		}
		n++
	}
	return s
}
