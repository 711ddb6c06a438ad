// Package pagetext 将纯文本解码为 []Page：按换页符 '\f' 或页标记行分页。
package pagetext

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/dlclark/regexp2"

	"pagesplit/pkg/contract"
)

// Options 为纯文本解码器的可选配置。
type Options struct {
	// Marker: 页标记行正则（整行匹配由调用方锚定）。命名组 id 或第 1 组为页 ID；
	// 无捕获时取上一页 ID + 1。标记行本身不计入内容。为空时仅按 '\f' 分页。
	Marker string `json:"marker"`
	// FirstID: 首页 ID，默认 1。
	FirstID *int `json:"first_id"`
	// KeepEmpty: 保留空白页（默认丢弃，但仍占用 ID）。
	KeepEmpty bool `json:"keep_empty"`
}

type decoder struct {
	marker    *regexp2.Regexp
	firstID   int
	keepEmpty bool
}

var _ contract.Decoder = (*decoder)(nil)

// New 从原样 JSON Options 创建解码器。
func New(raw json.RawMessage) (contract.Decoder, error) {
	var opts Options
	if len(bytes.TrimSpace(raw)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&opts); err != nil {
			return nil, fmt.Errorf("pagetext options: %v: %w", err, contract.ErrInvalidConfig)
		}
	}
	d := &decoder{firstID: 1, keepEmpty: opts.KeepEmpty}
	if opts.FirstID != nil {
		d.firstID = *opts.FirstID
	}
	if opts.Marker != "" {
		re, err := regexp2.Compile(opts.Marker, regexp2.None)
		if err != nil {
			return nil, &contract.PatternError{Kind: "page_marker", Pattern: opts.Marker, Err: err}
		}
		d.marker = re
	}
	return d, nil
}

// state 为单次 Decode 的分页状态。
type state struct {
	d     *decoder
	book  contract.BookID
	id    int
	begun bool
	lines []string
	seen  map[int]struct{}
	out   []contract.Page
}

// Decode 逐行读取；CRLF 归一为 LF，非法 UTF-8 快速失败。
func (d *decoder) Decode(ctx context.Context, bookID contract.BookID, r io.Reader) ([]contract.Page, error) {
	br := bufio.NewReader(r)
	st := &state{d: d, book: bookID, id: d.firstID, seen: map[int]struct{}{}}
	for lineNo := 1; ; lineNo++ {
		if err := ctxErr(ctx); err != nil {
			return nil, err
		}
		line, eof, err := readTrimmedLine(br)
		if err != nil {
			return nil, err
		}
		if eof {
			break
		}
		if lineNo == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		if !utf8.ValidString(line) {
			return nil, fmt.Errorf("%s: line %d: invalid UTF-8: %w", bookID, lineNo, contract.ErrDecode)
		}
		for i, part := range strings.Split(line, "\f") {
			if i > 0 {
				if err := st.next(nil); err != nil {
					return nil, err
				}
				if part == "" {
					continue
				}
			}
			if err := st.line(part, lineNo); err != nil {
				return nil, err
			}
		}
	}
	if err := st.flush(); err != nil {
		return nil, err
	}
	return st.out, nil
}

func (st *state) line(s string, lineNo int) error {
	if st.d.marker != nil {
		m, err := st.d.marker.FindStringMatch(s)
		if err != nil {
			return fmt.Errorf("%s: line %d: %v: %w", st.book, lineNo, err, contract.ErrDecode)
		}
		if m != nil {
			id, ok, err := markerID(m)
			if err != nil {
				return fmt.Errorf("%s: line %d: %v: %w", st.book, lineNo, err, contract.ErrDecode)
			}
			if ok {
				return st.next(&id)
			}
			if !st.begun && blank(st.lines) {
				// 文首标记开启首页，不递增 ID
				st.begun = true
				st.lines = st.lines[:0]
				return nil
			}
			return st.next(nil)
		}
	}
	st.lines = append(st.lines, s)
	return nil
}

// next 结束当前页并开启新页；id 为空时顺延。
func (st *state) next(id *int) error {
	if err := st.flush(); err != nil {
		return err
	}
	if id != nil {
		st.id = *id
	} else {
		st.id++
	}
	st.begun = true
	st.lines = st.lines[:0]
	return nil
}

func (st *state) flush() error {
	content := strings.TrimRight(strings.Join(st.lines, "\n"), "\n")
	if strings.TrimSpace(content) == "" && !st.d.keepEmpty {
		return nil
	}
	if !st.begun && len(st.lines) == 0 {
		return nil
	}
	if _, dup := st.seen[st.id]; dup {
		return fmt.Errorf("%s: duplicate page id %d: %w", st.book, st.id, contract.ErrDecode)
	}
	st.seen[st.id] = struct{}{}
	st.out = append(st.out, contract.Page{ID: st.id, Content: content})
	return nil
}

// markerID 取命名组 id，否则第 1 组；无捕获返回 ok=false。
func markerID(m *regexp2.Match) (int, bool, error) {
	g := m.GroupByName("id")
	if g == nil && m.GroupCount() > 1 {
		g = m.GroupByNumber(1)
	}
	if g == nil || len(g.Captures) == 0 {
		return 0, false, nil
	}
	id, err := parseDigits(g.String())
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// parseDigits 解析十进制页号；接受 ASCII 与阿拉伯-印度数字。
func parseDigits(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty page id")
	}
	n := 0
	for _, r := range s {
		v := digitValue(r)
		if v < 0 {
			return 0, fmt.Errorf("invalid page id %q", s)
		}
		n = n*10 + v
		if n > 1<<31 {
			return 0, fmt.Errorf("page id %q out of range", s)
		}
	}
	return n, nil
}

func digitValue(r rune) int {
	switch {
	case r >= '0' && r <= '9':
		return int(r - '0')
	case r >= '\u0660' && r <= '\u0669':
		return int(r - '\u0660')
	case r >= '\u06f0' && r <= '\u06f9':
		return int(r - '\u06f0')
	}
	return -1
}

func blank(lines []string) bool {
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			return false
		}
	}
	return true
}

// readTrimmedLine 读取一行，归一 CRLF→LF，并去除结尾换行符；返回该行、是否 EOF。
func readTrimmedLine(br *bufio.Reader) (line string, eof bool, err error) {
	s, err := br.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			eof = true
		} else {
			return "", false, err
		}
	}
	s = strings.TrimSuffix(s, "\n")
	s = strings.TrimSuffix(s, "\r")
	return s, eof && s == "", nil
}

func ctxErr(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
