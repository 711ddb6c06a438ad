// Package tokens 实现 {{token}} 模板展开：静态 token 表、括号自动转义与命名捕获登记。
package tokens

import "sort"

// 基础 token：名称 → 原始正则片段。包初始化后只读。
var base = map[string]string{
	"bab":      "باب",
	"basmalah": "بسم الله|﷽",
	"bullet":   "[•*°]",
	"dash":     "[-–—ـ]",
	"fasl":     "فصل|مسألة",
	"harf":     "[أ-ي]",
	"harfs":    `[أ-ي](?:\s+[أ-ي])*`,
	"kitab":    "كتاب",
	"naql":     "حدثنا|أخبرنا|حدثني|وحدثنا|أنبأنا|سمعت",
	"raqm":     "[٠-٩]",
	"raqms":    "[٠-٩]+",
	"num":      `\d`,
	"nums":     `\d+`,
	"tarqim":   "[.!?؟؛]",
}

// 组合 token：值为模板，初始化时展开为片段。
var composite = map[string]string{
	"numbered": "{{raqms}} {{dash}} ",
}

// 引用即默认开启 fuzzy 的 token（章节/书/节/basmala/传述语）。
var fuzzyDefault = map[string]bool{
	"bab":      true,
	"basmalah": true,
	"fasl":     true,
	"kitab":    true,
	"naql":     true,
}

var table = func() map[string]string {
	m := make(map[string]string, len(base)+len(composite))
	for k, v := range base {
		m[k] = v
	}
	// 组合 token 可以引用其他组合 token，按依赖反复展开直到稳定
	pending := make(map[string]string, len(composite))
	for k, v := range composite {
		pending[k] = v
	}
	for len(pending) > 0 {
		progressed := false
		for k, v := range pending {
			if refsUnresolved(v, pending) {
				continue
			}
			m[k] = expandWith(m, v, Options{}).Pattern
			delete(pending, k)
			progressed = true
		}
		if !progressed {
			// 循环引用：保留字面模板
			for k, v := range pending {
				m[k] = v
			}
			break
		}
	}
	return m
}()

func refsUnresolved(tpl string, pending map[string]string) bool {
	for _, ref := range scan(tpl) {
		if ref.isToken {
			if _, ok := pending[ref.token]; ok {
				return true
			}
		}
	}
	return false
}

// Lookup 返回 token 的正则片段；未知 token 返回 ok=false。
func Lookup(name string) (fragment string, ok bool) {
	fragment, ok = table[name]
	return fragment, ok
}

// IsFuzzyDefault 报告 token 是否默认开启 fuzzy。
func IsFuzzyDefault(name string) bool { return fuzzyDefault[name] }

// Names 返回全部 token 名（排序）。
func Names() []string {
	out := make([]string, 0, len(table))
	for k := range table {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
