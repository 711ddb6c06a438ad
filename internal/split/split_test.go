package split

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagesplit/internal/pagemap"
	"pagesplit/internal/rules"
	"pagesplit/pkg/contract"
)

func resolve(t *testing.T, pages []contract.Page, opts Options, rs ...contract.SplitRule) []contract.Segment {
	t.Helper()
	cs, err := rules.CompileAll(rs)
	require.NoError(t, err)
	segs, err := Resolve(pagemap.Build(pages), cs, opts)
	require.NoError(t, err)
	return segs
}

func contents(segs []contract.Segment) []string {
	out := make([]string, len(segs))
	for i, s := range segs {
		out[i] = s.Content
	}
	return out
}

// TestResolveAnchored_Offsets 偏移为内容起点相对 From 页起点的 rune 距离。
func TestResolveAnchored_Offsets(t *testing.T) {
	pages := []contract.Page{{ID: 1, Content: "مقدمة\nباب أ"}, {ID: 2, Content: "نص\nباب ب"}}
	cs, err := rules.CompileAll([]contract.SplitRule{{LineStartsWith: []string{"باب"}}})
	require.NoError(t, err)
	segs, offsets, err := ResolveAnchored(pagemap.Build(pages), cs, Options{Joiner: ' '})
	require.NoError(t, err)
	assert.Equal(t, []string{"مقدمة", "باب أ نص", "باب ب"}, contents(segs))
	assert.Equal(t, []int{0, 6, 3}, offsets)
	assert.Equal(t, []int{1, 1, 2}, []int{segs[0].From, segs[1].From, segs[2].From})
}

// TestResolve_OccurrenceLastAfter 取最后一次命中、after 切分。
func TestResolve_OccurrenceLastAfter(t *testing.T) {
	segs := resolve(t, []contract.Page{{ID: 1, Content: "Sentence 1. Sentence 2. Sentence 3"}}, Options{},
		contract.SplitRule{Occurrence: contract.OccurrenceLast, Regex: `\.\s*`, Split: contract.SplitAfter})
	assert.Equal(t, []string{"Sentence 1. Sentence 2.", "Sentence 3"}, contents(segs))
	for _, s := range segs {
		assert.Equal(t, 1, s.From)
		assert.Nil(t, s.To)
	}
}

// TestResolve_LineStartsAfter 标记从本段剔除，前一段也不包含标记。
func TestResolve_LineStartsAfter(t *testing.T) {
	pages := []contract.Page{{ID: 1, Content: "١ - أول\nنص"}, {ID: 2, Content: "٢ - ثان"}}
	segs := resolve(t, pages, Options{}, contract.SplitRule{LineStartsAfter: []string{"{{raqms:num}} {{dash}} "}})
	require.Len(t, segs, 2)
	assert.Equal(t, "أول\nنص", segs[0].Content)
	assert.Equal(t, contract.Meta{"num": "١"}, segs[0].Meta)
	assert.Equal(t, "ثان", segs[1].Content)
	assert.Equal(t, 2, segs[1].From)
	assert.Equal(t, contract.Meta{"num": "٢"}, segs[1].Meta)
}

// TestResolve_MultiPageJoiner 段内页分隔符按 joiner 渲染，原文换行保留。
func TestResolve_MultiPageJoiner(t *testing.T) {
	pages := []contract.Page{{ID: 1, Content: "باب أ\nسطر"}, {ID: 2, Content: "تتمة"}, {ID: 3, Content: "باب ب"}}
	rule := contract.SplitRule{LineStartsWith: []string{"باب"}}

	segs := resolve(t, pages, Options{Joiner: ' '}, rule)
	require.Len(t, segs, 2)
	assert.Equal(t, "باب أ\nسطر تتمة", segs[0].Content)
	assert.Equal(t, 1, segs[0].From)
	require.NotNil(t, segs[0].To)
	assert.Equal(t, 2, *segs[0].To)
	assert.Nil(t, segs[1].To)

	segs = resolve(t, pages, Options{Joiner: '\n'}, rule)
	assert.Equal(t, "باب أ\nسطر\nتتمة", segs[0].Content)
}

// TestResolve_Fallback 无切分点时整体成段；空内容无段。
func TestResolve_Fallback(t *testing.T) {
	pages := []contract.Page{{ID: 4, Content: "  أ  "}, {ID: 9, Content: "ب"}}
	segs := resolve(t, pages, Options{Debug: true})
	require.Len(t, segs, 1)
	assert.Equal(t, "أ   ب", segs[0].Content)
	assert.Equal(t, 4, segs[0].From)
	assert.Equal(t, 9, *segs[0].To)
	assert.Equal(t, KindFallback, segs[0].Debug.Kind)

	segs = resolve(t, pages, Options{}, contract.SplitRule{Regex: "لا يوجد"})
	assert.Len(t, segs, 1)

	assert.Empty(t, resolve(t, []contract.Page{{ID: 1, Content: " \n "}}, Options{}))
	assert.Empty(t, resolve(t, nil, Options{}))
}

// TestResolve_Leading 首个切分点之前的内容成为前导段。
func TestResolve_Leading(t *testing.T) {
	pages := []contract.Page{{ID: 1, Content: "مقدمة\nباب الطهارة"}}
	segs := resolve(t, pages, Options{Debug: true}, contract.SplitRule{LineStartsWith: []string{"باب"}})
	require.Len(t, segs, 2)
	assert.Equal(t, "مقدمة", segs[0].Content)
	assert.Equal(t, KindLeading, segs[0].Debug.Kind)
	assert.Nil(t, segs[0].Meta)
	assert.Equal(t, "باب الطهارة", segs[1].Content)
	require.NotNil(t, segs[1].Debug.Rule)
	assert.Equal(t, contract.PatternLineStartsWith, segs[1].Debug.Rule.PatternType)
}

// TestResolve_Dedupe 同偏移切分点：内容起点优先于 meta，meta 优先于无信息。
func TestResolve_Dedupe(t *testing.T) {
	pages := []contract.Page{{ID: 1, Content: "باب أ\nباب ب"}}

	segs := resolve(t, pages, Options{},
		contract.SplitRule{LineStartsWith: []string{"باب"}},
		contract.SplitRule{LineStartsWith: []string{"باب"}, Meta: contract.Meta{"type": "chapter"}},
	)
	require.Len(t, segs, 2)
	assert.Equal(t, contract.Meta{"type": "chapter"}, segs[0].Meta)

	segs = resolve(t, pages, Options{Debug: true},
		contract.SplitRule{LineStartsAfter: []string{"باب "}},
		contract.SplitRule{LineStartsWith: []string{"باب"}, Meta: contract.Meta{"type": "chapter"}},
	)
	require.Len(t, segs, 2)
	assert.Equal(t, "أ", segs[0].Content)
	assert.Nil(t, segs[0].Meta)
	assert.Equal(t, 0, segs[0].Debug.Rule.Index)
}

// TestReplaces 信息量相同且非零时后者胜，均无信息保留先到者。
func TestReplaces(t *testing.T) {
	bare := Point{ContentStart: -1}
	meta := Point{ContentStart: -1, Meta: contract.Meta{"a": 1}}
	strip := Point{ContentStart: 3}
	assert.False(t, replaces(bare, bare))
	assert.True(t, replaces(bare, meta))
	assert.True(t, replaces(meta, meta))
	assert.True(t, replaces(meta, strip))
	assert.False(t, replaces(strip, meta))
}

// TestResolve_PageConstraints min/max/exclude 按命中所在页过滤。
func TestResolve_PageConstraints(t *testing.T) {
	var pages []contract.Page
	for _, id := range []int{1, 2, 3, 4, 5} {
		pages = append(pages, contract.Page{ID: id, Content: "# h"})
	}
	pm := pagemap.Build(pages)
	cs, err := rules.CompileAll([]contract.SplitRule{{
		LineStartsWith: []string{"#"}, Min: contract.Int(2), Max: contract.Int(5), Exclude: []contract.PageRange{{From: 4, To: 4}},
	}})
	require.NoError(t, err)
	pts, err := Points(pm, cs, Options{})
	require.NoError(t, err)
	var ids []int
	for _, p := range pts {
		ids = append(ids, pm.ID(p.Index))
	}
	assert.Equal(t, []int{2, 3, 5}, ids)
}

// TestResolve_MaxSpanWindows first 按页 ID 窗口分别生效，窗口按 ID 差推进。
func TestResolve_MaxSpanWindows(t *testing.T) {
	var pages []contract.Page
	for _, id := range []int{1, 2, 3, 10} {
		pages = append(pages, contract.Page{ID: id, Content: "x. y."})
	}
	pm := pagemap.Build(pages)
	cs, err := rules.CompileAll([]contract.SplitRule{{Regex: `\.`, Split: contract.SplitAfter, Occurrence: contract.OccurrenceFirst, MaxSpan: 2}})
	require.NoError(t, err)
	pts, err := Points(pm, cs, Options{})
	require.NoError(t, err)
	var ids []int
	for _, p := range pts {
		ids = append(ids, pm.ID(p.Index-1))
	}
	assert.Equal(t, []int{1, 3, 10}, ids)

	cs[0].Rule.Occurrence = contract.OccurrenceLast
	pts, err = Points(pm, cs, Options{})
	require.NoError(t, err)
	require.Len(t, pts, 3)
	// 窗口 [1,2] 的最后一次命中在第 2 页末尾
	assert.Equal(t, pm.Bounds[1].End, pts[0].Index)
}

// TestResolve_PageStartGuard 页首命中要求前一页以守卫字符结尾；页内命中不受影响。
func TestResolve_PageStartGuard(t *testing.T) {
	rule := contract.SplitRule{LineStartsWith: []string{"{{naql}}"}, PageStartGuard: "{{tarqim}}"}

	segs := resolve(t, []contract.Page{{ID: 1, Content: "قال فلان"}, {ID: 2, Content: "حدثنا زيد"}}, Options{}, rule)
	require.Len(t, segs, 1)
	assert.Equal(t, "قال فلان حدثنا زيد", segs[0].Content)

	segs = resolve(t, []contract.Page{{ID: 1, Content: "تم الكلام."}, {ID: 2, Content: "حدثنا زيد"}}, Options{}, rule)
	require.Len(t, segs, 2)
	assert.Equal(t, 2, segs[1].From)

	segs = resolve(t, []contract.Page{{ID: 1, Content: "قال فلان\nحدثنا عمرو"}}, Options{}, rule)
	assert.Len(t, segs, 2)
}

// TestResolve_FuzzyToken 默认 fuzzy 的 token 匹配带变音的文本并写入 meta。
func TestResolve_FuzzyToken(t *testing.T) {
	segs := resolve(t, []contract.Page{{ID: 1, Content: "كِتَابُ الإيمان\nنص\nكتاب العلم"}}, Options{},
		contract.SplitRule{LineStartsWith: []string{"{{kitab:k}}"}})
	require.Len(t, segs, 2)
	assert.Equal(t, "كِتَابُ", segs[0].Meta["k"])
	assert.Equal(t, "كتاب العلم", segs[1].Content)
}

// TestResolve_ContentConservation 无标记剥离时，段内容拼接还原原文（忽略空白差异）。
func TestResolve_ContentConservation(t *testing.T) {
	pages := []contract.Page{
		{ID: 1, Content: "مقدمة قصيرة\n١ - الأول. نص"},
		{ID: 3, Content: "تتمة\n٢ - الثاني"},
		{ID: 8, Content: "٣ - الثالث؟ آخر"},
	}
	segs := resolve(t, pages, Options{},
		contract.SplitRule{LineStartsWith: []string{"{{numbered}}"}},
		contract.SplitRule{Regex: `[.؟]`, Split: contract.SplitAfter},
	)
	var got []string
	for _, s := range segs {
		got = append(got, strings.Fields(s.Content)...)
	}
	var want []string
	for _, p := range pages {
		want = append(want, strings.Fields(p.Content)...)
	}
	assert.Equal(t, want, got)
}

// TestResolve_Idempotent 同一输入重复调用结果一致。
func TestResolve_Idempotent(t *testing.T) {
	pages := []contract.Page{{ID: 1, Content: "باب أ. نص\nباب ب"}, {ID: 2, Content: "فصل ج"}}
	rs := []contract.SplitRule{{LineStartsWith: []string{"{{bab}}", "{{fasl}}"}}, {LineEndsWith: []string{`\.`}}}
	a := resolve(t, pages, Options{Debug: true}, rs...)
	b := resolve(t, pages, Options{Debug: true}, rs...)
	assert.Equal(t, a, b)
}

// TestResolve_Runaway 迭代上限错误上抛，不返回部分结果。
func TestResolve_Runaway(t *testing.T) {
	cs, err := rules.CompileAll([]contract.SplitRule{{Regex: "."}})
	require.NoError(t, err)
	segs, err := Resolve(pagemap.Build([]contract.Page{{ID: 1, Content: "abcdef"}}), cs, Options{IterationLimit: 2})
	assert.ErrorIs(t, err, contract.ErrRunawayMatch)
	assert.Nil(t, segs)
}
