package tokens

import "strings"

// EscapeTemplate 转义 {{...}} 之外的字面 ( ) [ ]；已被反斜杠转义的字符保持不变。
// 须在展开前执行，保证 token 片段内部的字符类不受影响。
func EscapeTemplate(s string) string {
	if !strings.ContainsAny(s, "()[]") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 8)
	for i := 0; i < len(s); {
		switch {
		case s[i] == '\\' && i+1 < len(s):
			b.WriteString(s[i : i+2])
			i += 2
		case strings.HasPrefix(s[i:], "{{"):
			end := strings.Index(s[i+2:], "}}")
			if end < 0 {
				b.WriteString(s[i:])
				return b.String()
			}
			b.WriteString(s[i : i+2+end+2])
			i += 2 + end + 2
		case s[i] == '(' || s[i] == ')' || s[i] == '[' || s[i] == ']':
			b.WriteByte('\\')
			b.WriteByte(s[i])
			i++
		default:
			b.WriteByte(s[i])
			i++
		}
	}
	return b.String()
}
