// Package linear 按页序线性装配段：校验 From 非降序并编码为 jsonl/json/text。
package linear

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"pagesplit/pkg/contract"
)

// 输出格式。
const (
	FormatJSONL = "jsonl"
	FormatJSON  = "json"
	FormatText  = "text"
)

// Options: 线性装配选项。
type Options struct {
	// Format: jsonl（默认）/json/text。
	Format string `json:"format"`
	// Indent: json 格式的缩进；为空时紧凑输出。
	Indent string `json:"indent"`
	// Separator: text 格式的段间分隔，默认空行 "\n\n"。
	Separator *string `json:"separator"`
	// Meta/Debug: jsonl/json 是否保留 meta 与 debug 字段，默认保留。
	Meta  *bool `json:"meta"`
	Debug *bool `json:"debug"`
}

type assembler struct {
	format string
	indent string
	sep    string
	meta   bool
	debug  bool
}

// New 从原样 JSON Options 创建线性装配器。
func New(raw json.RawMessage) (contract.Assembler, error) {
	var opts Options
	if len(bytes.TrimSpace(raw)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&opts); err != nil {
			return nil, fmt.Errorf("linear options: %v: %w", err, contract.ErrInvalidConfig)
		}
	}
	a := &assembler{format: opts.Format, indent: opts.Indent, sep: "\n\n", meta: true, debug: true}
	switch a.format {
	case "":
		a.format = FormatJSONL
	case FormatJSONL, FormatJSON, FormatText:
	default:
		return nil, fmt.Errorf("linear: unknown format %q: %w", a.format, contract.ErrInvalidConfig)
	}
	if opts.Separator != nil {
		a.sep = *opts.Separator
	}
	if opts.Meta != nil {
		a.meta = *opts.Meta
	}
	if opts.Debug != nil {
		a.debug = *opts.Debug
	}
	return a, nil
}

// Ext 返回与格式匹配的输出扩展名。
func Ext(format string) string {
	switch format {
	case FormatJSON:
		return ".json"
	case FormatText:
		return ".txt"
	default:
		return ".jsonl"
	}
}

// Assemble 校验段序（From 非降序、To 不早于 From）后编码；违例返回 ErrSeqInvalid。
func (a *assembler) Assemble(ctx context.Context, bookID contract.BookID, segs []contract.Segment) (io.Reader, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	for i, s := range segs {
		if s.To != nil && *s.To < s.From {
			return nil, fmt.Errorf("%s: segment %d: to=%d < from=%d: %w", bookID, i, *s.To, s.From, contract.ErrSeqInvalid)
		}
		if i > 0 && s.From < segs[i-1].From {
			return nil, fmt.Errorf("%s: segment %d: from=%d < previous %d: %w", bookID, i, s.From, segs[i-1].From, contract.ErrSeqInvalid)
		}
	}
	if len(segs) == 0 {
		if a.format == FormatJSON {
			return strings.NewReader("[]\n"), nil
		}
		return strings.NewReader(""), nil
	}

	switch a.format {
	case FormatText:
		// 零拷贝倾向：拼接多个只读字符串 reader
		rs := make([]io.Reader, 0, 2*len(segs))
		for i, s := range segs {
			if i > 0 {
				rs = append(rs, strings.NewReader(a.sep))
			}
			rs = append(rs, strings.NewReader(s.Content))
		}
		rs = append(rs, strings.NewReader("\n"))
		return io.MultiReader(rs...), nil
	case FormatJSON:
		out := make([]contract.Segment, len(segs))
		for i, s := range segs {
			out[i] = a.strip(s)
		}
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", a.indent)
		if err := enc.Encode(out); err != nil {
			return nil, err
		}
		return &buf, nil
	default:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		for _, s := range segs {
			if err := enc.Encode(a.strip(s)); err != nil {
				return nil, err
			}
		}
		return &buf, nil
	}
}

func (a *assembler) strip(s contract.Segment) contract.Segment {
	if !a.meta {
		s.Meta = nil
	}
	if !a.debug {
		s.Debug = nil
	}
	return s
}

var _ contract.Assembler = (*assembler)(nil)
